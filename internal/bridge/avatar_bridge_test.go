package bridge

import (
	"context"
	"encoding/base64"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/spritetalk/internal/bus"
	"github.com/normanking/spritetalk/internal/lipsync"
	"github.com/normanking/spritetalk/internal/playback"
	"github.com/normanking/spritetalk/internal/sprites"
)

type avatarHarness struct {
	bridge *AvatarBridge
	coord  *playback.Coordinator
	sched  *playback.ManualScheduler
	clock  *fakeClock
	rec    *eventRecorder
	bus    *bus.EventBus
}

func newAvatarHarness(t *testing.T) *avatarHarness {
	t.Helper()
	store, err := sprites.NewStore("", zerolog.Nop())
	require.NoError(t, err)

	h := &avatarHarness{
		sched: playback.NewManualScheduler(),
		clock: newFakeClock(),
		rec:   &eventRecorder{},
		bus:   bus.NewEventBus(),
	}
	h.bridge = NewAvatarBridge(store, "classic", h.bus, zerolog.Nop())
	h.bridge.now = h.clock.Now
	h.bridge.set(h.rec.emit)

	h.coord = playback.New(playback.Options{
		Audio:     h.bridge,
		Scheduler: h.sched,
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, h.bridge.AttachPlayer(h.coord))
	t.Cleanup(func() { _ = h.coord.Close() })
	return h
}

func (h *avatarHarness) flush() {
	h.sched.Flush(h.clock.Now())
}

func speechUtterance(id string) playback.Utterance {
	return playback.Utterance{
		ID:     id,
		Text:   "hello",
		Audio:  []byte("ID3 fake mp3"),
		Format: "mp3",
		Visemes: lipsync.Sequence{
			{Category: lipsync.CategoryOpen, Start: 0, Duration: 0.5},
			{Category: lipsync.CategoryClosed, Start: 0.5, Duration: 0.5},
		},
		NominalDuration: 1.0,
	}
}

func TestAvatarBridge_PlaysThroughWebAudio(t *testing.T) {
	h := newAvatarHarness(t)
	u := speechUtterance("u1")

	require.NoError(t, h.coord.Submit(context.Background(), u))

	loads := h.rec.named("avatar:load-audio")
	require.Len(t, loads, 1)
	payload := loads[0].data[0].(AudioPayload)
	assert.Equal(t, "u1", payload.ID)
	assert.Equal(t, "audio/mpeg", payload.MimeType)
	assert.Equal(t, base64.StdEncoding.EncodeToString(u.Audio), payload.Data)

	h.flush()
	assert.Equal(t, playback.StateLoading, h.coord.State())

	// Real audio is twice as long as the viseme timestamps suggest.
	h.bridge.ReportAudioMetadata("u1", 2.0)
	h.flush()
	require.Len(t, h.rec.named("avatar:play-audio"), 1)
	assert.Equal(t, playback.StateLoading, h.coord.State())

	h.bridge.ReportAudioPlaying("u1", 0)
	h.clock.Advance(1200 * time.Millisecond)
	h.flush()

	snap := h.coord.Snapshot()
	assert.Equal(t, playback.StatePlaying, snap.State)
	assert.Equal(t, lipsync.CategoryClosed, snap.Viseme, "timeline rescaled to the real duration")
	assert.True(t, snap.Speaking)
	assert.InDelta(t, 1.2, snap.Time, 1e-9)
	assert.Equal(t, 2.0, snap.Duration)
	assert.True(t, h.bridge.IsSpeaking())

	frames := h.rec.named("avatar:frame")
	require.NotEmpty(t, frames)
	assert.Equal(t, snap, frames[len(frames)-1].data[0].(playback.Update))

	h.bridge.ReportAudioEnded("u1")
	h.flush()

	snap = h.bridge.GetSnapshot()
	assert.Equal(t, playback.StateEnded, snap.State)
	assert.Equal(t, lipsync.DefaultFrame, snap.Frame)
	assert.False(t, h.bridge.IsSpeaking())
	assert.Len(t, h.rec.named("avatar:stop-audio"), 1)
	assert.Empty(t, h.bridge.sources, "source detached after release")
}

func TestAvatarBridge_FrontendErrorFailsUtterance(t *testing.T) {
	h := newAvatarHarness(t)
	require.NoError(t, h.coord.Submit(context.Background(), speechUtterance("u1")))
	h.flush()

	h.bridge.ReportAudioError("u1", "NotAllowedError: autoplay blocked")
	h.flush()

	snap := h.coord.Snapshot()
	assert.Equal(t, playback.StateFailed, snap.State)
	assert.Contains(t, snap.Error, "autoplay blocked")
	assert.False(t, h.coord.Playing())
}

func TestAvatarBridge_StopSpeaking(t *testing.T) {
	h := newAvatarHarness(t)
	require.NoError(t, h.coord.Submit(context.Background(), speechUtterance("u1")))
	h.bridge.ReportAudioMetadata("u1", 1.0)

	h.bridge.StopSpeaking()

	assert.False(t, h.coord.Playing())
	assert.Equal(t, playback.StateIdle, h.coord.State())
	assert.Len(t, h.rec.named("avatar:stop-audio"), 1)

	// Late reports for the cancelled utterance go nowhere.
	h.bridge.ReportAudioPlaying("u1", 0)
	h.flush()
	assert.Equal(t, playback.StateIdle, h.coord.State())
}

func TestAvatarBridge_RejectsWhileSpeaking(t *testing.T) {
	h := newAvatarHarness(t)
	require.NoError(t, h.coord.Submit(context.Background(), speechUtterance("u1")))

	err := h.coord.Submit(context.Background(), speechUtterance("u2"))
	assert.ErrorIs(t, err, playback.ErrPlaybackInProgress)
	assert.Len(t, h.rec.named("avatar:load-audio"), 1)
}

func TestAvatarBridge_SetStyle(t *testing.T) {
	h := newAvatarHarness(t)

	var published atomic.Int32
	h.bus.Subscribe(bus.EventTypeAvatarStyle, func(e bus.Event) { published.Add(1) })

	require.NoError(t, h.bridge.SetStyle("pixel"))
	assert.Equal(t, "pixel", h.bridge.Style())

	style, err := h.bridge.GetStyle()
	require.NoError(t, err)
	assert.Equal(t, 6, style.FrameCount)
	require.Len(t, h.rec.named("avatar:style-changed"), 1)

	require.Eventually(t, func() bool { return published.Load() == 1 }, time.Second, 10*time.Millisecond)

	err = h.bridge.SetStyle("missing")
	assert.ErrorIs(t, err, sprites.ErrUnknownStyle)
	assert.Equal(t, "pixel", h.bridge.Style())

	names := make([]string, 0)
	for _, s := range h.bridge.GetStyles() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"classic", "pixel"}, names)
}

func TestAvatarBridge_UnknownReportsIgnored(t *testing.T) {
	h := newAvatarHarness(t)
	assert.NotPanics(t, func() {
		h.bridge.ReportAudioMetadata("nope", 1)
		h.bridge.ReportAudioPlaying("nope", 0)
		h.bridge.ReportAudioTime("nope", 0.5)
		h.bridge.ReportAudioPaused("nope", 0.5)
		h.bridge.ReportAudioEnded("nope")
		h.bridge.ReportAudioError("nope", "x")
	})
	assert.Equal(t, playback.StateIdle, h.bridge.GetSnapshot().State)
}

func TestMimeType(t *testing.T) {
	assert.Equal(t, "audio/mpeg", mimeType("mp3"))
	assert.Equal(t, "audio/mpeg", mimeType(""))
	assert.Equal(t, "audio/wav", mimeType("wav"))
	assert.Equal(t, "audio/ogg", mimeType("opus"))
}
