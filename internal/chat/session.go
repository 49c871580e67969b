package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/spritetalk/internal/backend"
	"github.com/normanking/spritetalk/internal/bus"
	"github.com/normanking/spritetalk/internal/playback"
)

// ErrEmptyMessage is returned by Send for blank input.
var ErrEmptyMessage = errors.New("message is empty")

// Backend is the subset of the backend client a session needs.
type Backend interface {
	Query(ctx context.Context, req backend.QueryRequest) (*backend.QueryResponse, error)
	Upload(ctx context.Context, files ...backend.File) (*backend.UploadResponse, error)
	ClearDocuments(ctx context.Context) error
	Speak(ctx context.Context, text string) (*backend.Speech, error)
}

// Player accepts utterances for the avatar.
type Player interface {
	Submit(ctx context.Context, u playback.Utterance) error
}

// SessionConfig configures a chat session.
type SessionConfig struct {
	Provider      string
	UseRAG        bool
	SpeechEnabled bool
	SpeechTimeout time.Duration
	MaxMessages   int
}

// DefaultSessionConfig returns sensible defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Provider:      "groq",
		UseRAG:        true,
		SpeechEnabled: true,
		SpeechTimeout: 60 * time.Second,
		MaxMessages:   DefaultMaxMessages,
	}
}

// Session is one conversation. Text turns are synchronous; speech for each
// assistant reply runs in the background and never affects the turn.
type Session struct {
	mu      sync.RWMutex
	cfg     SessionConfig
	backend Backend
	player  Player
	history *History
	bus     *bus.EventBus
	logger  zerolog.Logger

	speechWG  sync.WaitGroup
	onMessage func(Message)
}

// NewSession creates a session. player may be nil to disable speech.
func NewSession(cfg SessionConfig, b Backend, player Player, eventBus *bus.EventBus, logger zerolog.Logger) *Session {
	if cfg.SpeechTimeout <= 0 {
		cfg.SpeechTimeout = DefaultSessionConfig().SpeechTimeout
	}
	return &Session{
		cfg:     cfg,
		backend: b,
		player:  player,
		history: NewHistory(cfg.MaxMessages),
		bus:     eventBus,
		logger:  logger.With().Str("component", "chat").Logger(),
	}
}

// SetMessageHandler sets a callback for every message added to the history.
func (s *Session) SetMessageHandler(fn func(Message)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMessage = fn
}

// Send runs one chat turn. On a backend failure an error-kind message is
// recorded and returned together with the error.
func (s *Session) Send(ctx context.Context, text string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ErrEmptyMessage
	}

	s.add(NewMessage(KindUser, text))

	cfg := s.Config()
	resp, err := s.backend.Query(ctx, backend.QueryRequest{
		Query:    text,
		Provider: cfg.Provider,
		UseRAG:   cfg.UseRAG,
	})
	if err != nil {
		msg := NewMessage(KindError, errorText(err))
		s.add(msg)
		s.logger.Error().Err(err).Str("provider", cfg.Provider).Msg("Chat query failed")
		s.bus.Publish(bus.Event{
			Type: bus.EventTypeChatError,
			Data: map[string]any{"error": err.Error(), "message_id": msg.ID},
		})
		return msg, fmt.Errorf("chat query failed: %w", err)
	}

	msg := NewMessage(KindAssistant, resp.Response)
	msg.ContextUsed = resp.ContextUsed
	s.add(msg)

	if cfg.SpeechEnabled && s.player != nil && strings.TrimSpace(resp.Response) != "" {
		s.speechWG.Add(1)
		go func() {
			defer s.speechWG.Done()
			s.speak(msg.ID, resp.Response, cfg.SpeechTimeout)
		}()
	}
	return msg, nil
}

// Speak synthesizes text and submits it to the player. It is what Send
// runs in the background and returns its errors instead of logging them.
func (s *Session) Speak(ctx context.Context, id, text string) error {
	if s.player == nil {
		return fmt.Errorf("speech is not available")
	}

	speech, err := s.backend.Speak(ctx, text)
	if err != nil {
		return fmt.Errorf("speech synthesis failed: %w", err)
	}

	return s.player.Submit(ctx, playback.Utterance{
		ID:              id,
		Text:            speech.Text,
		Audio:           speech.Audio,
		Format:          speech.Format,
		Visemes:         speech.Visemes,
		NominalDuration: speech.Duration,
	})
}

func (s *Session) speak(id, text string, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.Speak(ctx, id, text); err != nil {
		if errors.Is(err, playback.ErrPlaybackInProgress) {
			s.logger.Warn().Str("message_id", id).Msg("Skipped speech: avatar is still speaking")
			return
		}
		s.logger.Warn().Err(err).Str("message_id", id).Msg("Speech failed")
		s.bus.Publish(bus.Event{
			Type: bus.EventTypeSpeechFailed,
			Data: map[string]any{"utterance_id": id, "error": err.Error()},
		})
	}
}

// WaitSpeech blocks until background speech requests have been handed to
// the player (or failed).
func (s *Session) WaitSpeech() {
	s.speechWG.Wait()
}

// UploadDocuments sends files for indexing and records a system message.
func (s *Session) UploadDocuments(ctx context.Context, files ...backend.File) (Message, error) {
	resp, err := s.backend.Upload(ctx, files...)
	if err != nil {
		msg := NewMessage(KindError, "Upload failed: "+errorText(err))
		s.add(msg)
		return msg, fmt.Errorf("upload failed: %w", err)
	}

	msg := NewMessage(KindSystem, fmt.Sprintf("Indexed %d chunks from %d file(s).", resp.ChunksAdded, len(files)))
	s.add(msg)
	s.bus.Publish(bus.Event{
		Type: bus.EventTypeDocsUploaded,
		Data: map[string]any{"files": len(files), "chunks": resp.ChunksAdded},
	})
	return msg, nil
}

// ClearDocuments empties the document index and records a system message.
func (s *Session) ClearDocuments(ctx context.Context) (Message, error) {
	if err := s.backend.ClearDocuments(ctx); err != nil {
		msg := NewMessage(KindError, "Clearing documents failed: "+errorText(err))
		s.add(msg)
		return msg, fmt.Errorf("clear documents failed: %w", err)
	}

	msg := NewMessage(KindSystem, "All documents cleared.")
	s.add(msg)
	s.bus.Publish(bus.Event{Type: bus.EventTypeDocsCleared})
	return msg, nil
}

// Messages returns the conversation so far.
func (s *Session) Messages() []Message {
	return s.history.Messages()
}

// ClearHistory forgets the conversation.
func (s *Session) ClearHistory() {
	s.history.Clear()
}

// Config returns the current settings.
func (s *Session) Config() SessionConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// SetProvider changes the LLM provider for subsequent turns.
func (s *Session) SetProvider(provider string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Provider = provider
}

// SetUseRAG toggles document retrieval for subsequent turns.
func (s *Session) SetUseRAG(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.UseRAG = enabled
}

// SetSpeechEnabled toggles speaking assistant replies.
func (s *Session) SetSpeechEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.SpeechEnabled = enabled
}

func (s *Session) add(m Message) {
	s.history.Append(m)

	s.mu.RLock()
	fn := s.onMessage
	s.mu.RUnlock()
	if fn != nil {
		fn(m)
	}
	s.bus.Publish(bus.Event{
		Type: bus.EventTypeChatMessage,
		Data: map[string]any{"id": m.ID, "kind": string(m.Kind)},
	})
}

func errorText(err error) string {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}
	return err.Error()
}
