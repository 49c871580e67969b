package bridge

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/spritetalk/internal/bus"
	"github.com/normanking/spritetalk/internal/playback"
	"github.com/normanking/spritetalk/internal/sprites"
)

// AudioPayload is sent to the frontend with avatar:load-audio.
type AudioPayload struct {
	ID       string `json:"id"`
	MimeType string `json:"mimeType"`
	Data     string `json:"data"` // base64
}

// AvatarBridge exposes the talking avatar to the frontend. It is the
// coordinator's audio factory: every utterance becomes a WebAudioSource
// played by the webview, and every frame update is emitted as
// avatar:frame.
type AvatarBridge struct {
	emitter
	store    *sprites.Store
	eventBus *bus.EventBus
	logger   zerolog.Logger
	now      func() time.Time

	mu      sync.Mutex
	player  *playback.Coordinator
	style   string
	sources map[string]*WebAudioSource
	unsub   func()
}

// NewAvatarBridge creates the avatar bridge for the given sprite style.
func NewAvatarBridge(store *sprites.Store, style string, eventBus *bus.EventBus, logger zerolog.Logger) *AvatarBridge {
	return &AvatarBridge{
		store:    store,
		style:    style,
		eventBus: eventBus,
		logger:   logger.With().Str("component", "avatar-bridge").Logger(),
		now:      time.Now,
		sources:  make(map[string]*WebAudioSource),
	}
}

// AttachPlayer connects the coordinator that uses this bridge as its audio
// factory, applies the current style and forwards its updates.
func (b *AvatarBridge) AttachPlayer(player *playback.Coordinator) error {
	frames, err := b.store.FrameMap(b.Style())
	if err != nil {
		return fmt.Errorf("failed to resolve sprite style: %w", err)
	}
	player.SetFrames(frames)

	b.mu.Lock()
	if b.unsub != nil {
		b.unsub()
	}
	b.player = player
	b.unsub = player.Subscribe(func(u playback.Update) {
		b.send("avatar:frame", u)
	})
	b.mu.Unlock()

	b.store.OnReload(b.onManifestReload)
	return nil
}

// Bind sets the Wails runtime context
func (b *AvatarBridge) Bind(ctx context.Context) {
	b.bindContext(ctx)
	b.logger.Info().Str("style", b.Style()).Msg("Avatar bridge bound")
}

// NewSource implements playback.AudioFactory.
func (b *AvatarBridge) NewSource(ctx context.Context, u playback.Utterance) (playback.AudioSource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src := newWebAudioSource(u.ID, b.now, b.send, b.detach)

	b.mu.Lock()
	b.sources[u.ID] = src
	b.mu.Unlock()

	b.send("avatar:load-audio", AudioPayload{
		ID:       u.ID,
		MimeType: mimeType(u.Format),
		Data:     base64.StdEncoding.EncodeToString(u.Audio),
	})
	return src, nil
}

func (b *AvatarBridge) detach(src *WebAudioSource) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sources[src.ID()] == src {
		delete(b.sources, src.ID())
	}
}

func (b *AvatarBridge) source(id string) *WebAudioSource {
	b.mu.Lock()
	defer b.mu.Unlock()
	src := b.sources[id]
	if src == nil {
		b.logger.Debug().Str("utterance_id", id).Msg("Audio report for unknown utterance")
	}
	return src
}

// ReportAudioMetadata is called on the element's loadedmetadata event.
func (b *AvatarBridge) ReportAudioMetadata(id string, duration float64) {
	if src := b.source(id); src != nil {
		src.ReportMetadata(duration)
	}
}

// ReportAudioPlaying is called on the element's playing event.
func (b *AvatarBridge) ReportAudioPlaying(id string, t float64) {
	if src := b.source(id); src != nil {
		src.ReportPlaying(t)
	}
}

// ReportAudioTime is called on timeupdate.
func (b *AvatarBridge) ReportAudioTime(id string, t float64) {
	if src := b.source(id); src != nil {
		src.ReportTime(t)
	}
}

// ReportAudioPaused is called when the element pauses before the end.
func (b *AvatarBridge) ReportAudioPaused(id string, t float64) {
	if src := b.source(id); src != nil {
		src.ReportPaused(t)
	}
}

// ReportAudioEnded is called on the element's ended event.
func (b *AvatarBridge) ReportAudioEnded(id string) {
	if src := b.source(id); src != nil {
		src.ReportEnded()
	}
}

// ReportAudioError is called on the element's error event or a rejected
// play() promise.
func (b *AvatarBridge) ReportAudioError(id string, message string) {
	if src := b.source(id); src != nil {
		b.logger.Warn().Str("utterance_id", id).Str("error", message).Msg("Frontend audio error")
		src.ReportError(message)
	}
}

// GetSnapshot returns the latest frame update.
func (b *AvatarBridge) GetSnapshot() playback.Update {
	player := b.getPlayer()
	if player == nil {
		return playback.Update{State: playback.StateIdle}
	}
	return player.Snapshot()
}

// IsSpeaking reports whether an utterance is loading or playing.
func (b *AvatarBridge) IsSpeaking() bool {
	player := b.getPlayer()
	return player != nil && player.Playing()
}

// StopSpeaking cancels the current utterance.
func (b *AvatarBridge) StopSpeaking() {
	if player := b.getPlayer(); player != nil {
		player.Cancel()
	}
}

// GetStyles returns every available sprite style.
func (b *AvatarBridge) GetStyles() []*sprites.Style {
	m := b.store.Manifest()
	styles := make([]*sprites.Style, 0, len(m.Styles))
	for _, name := range m.StyleNames() {
		styles = append(styles, m.Styles[name])
	}
	return styles
}

// GetStyle returns the active sprite style.
func (b *AvatarBridge) GetStyle() (*sprites.Style, error) {
	return b.store.Style(b.Style())
}

// Style returns the active style name.
func (b *AvatarBridge) Style() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.style
}

// SetStyle switches the sprite style used for frame selection.
func (b *AvatarBridge) SetStyle(name string) error {
	style, err := b.store.Style(name)
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.style = style.Name
	player := b.player
	b.mu.Unlock()

	if player != nil {
		player.SetFrames(style.FrameMap())
	}

	b.logger.Info().Str("style", style.Name).Msg("Avatar style changed")
	b.send("avatar:style-changed", style)
	b.eventBus.Publish(bus.Event{
		Type: bus.EventTypeAvatarStyle,
		Data: map[string]any{"style": style.Name},
	})
	return nil
}

func (b *AvatarBridge) onManifestReload(m *sprites.Manifest) {
	style, err := m.Style(b.Style())
	if err != nil {
		// The active style disappeared; fall back to the manifest default.
		style, err = m.Style("")
		if err != nil {
			b.logger.Error().Err(err).Msg("Reloaded manifest has no usable style")
			return
		}
		b.mu.Lock()
		b.style = style.Name
		b.mu.Unlock()
	}

	if player := b.getPlayer(); player != nil {
		player.SetFrames(style.FrameMap())
	}
	b.send("avatar:sprites-reloaded", style)
	b.eventBus.Publish(bus.Event{
		Type: bus.EventTypeSpritesReload,
		Data: map[string]any{"style": style.Name},
	})
}

func (b *AvatarBridge) getPlayer() *playback.Coordinator {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.player
}

// Shutdown stops forwarding frame updates.
func (b *AvatarBridge) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.unsub != nil {
		b.unsub()
		b.unsub = nil
	}
}

func mimeType(format string) string {
	switch format {
	case "wav":
		return "audio/wav"
	case "ogg", "opus":
		return "audio/ogg"
	case "pcm":
		return "audio/L16"
	default:
		return "audio/mpeg"
	}
}
