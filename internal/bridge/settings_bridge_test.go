package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/spritetalk/internal/backend"
	"github.com/normanking/spritetalk/internal/chat"
	"github.com/normanking/spritetalk/internal/config"
)

func TestSettingsBridge_SaveAppliesAndPersists(t *testing.T) {
	cfg := config.DefaultConfig()
	b := NewSettingsBridge(cfg, nil, zerolog.Nop())
	rec := &eventRecorder{}
	b.set(rec.emit)

	var saved *config.Config
	b.save = func(c *config.Config) error {
		saved = c
		return nil
	}

	settings := b.GetSettings()
	assert.Equal(t, 50, settings.TransitionMs)
	assert.Equal(t, "classic", settings.Style)

	settings.Provider = "ollama"
	settings.TransitionMs = 120
	settings.Style = "pixel"
	require.NoError(t, b.SaveSettings(settings))

	require.NotNil(t, saved)
	assert.Equal(t, "ollama", cfg.Backend.Provider)
	assert.Equal(t, 120*time.Millisecond, cfg.LipSync.TransitionDuration)
	assert.Equal(t, "pixel", cfg.Avatar.Style)
	assert.Len(t, rec.named("settings:saved"), 1)
}

func TestSettingsBridge_InvalidSettingsNotSaved(t *testing.T) {
	cfg := config.DefaultConfig()
	b := NewSettingsBridge(cfg, nil, zerolog.Nop())
	b.save = func(*config.Config) error {
		t.Fatal("invalid settings must not be written")
		return nil
	}

	settings := b.GetSettings()
	settings.CycleRate = 0
	require.Error(t, b.SaveSettings(settings))
	assert.Equal(t, 8.0, cfg.LipSync.CycleRate)
}

func TestSettingsBridge_SaveFailureKeepsConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	b := NewSettingsBridge(cfg, nil, zerolog.Nop())
	b.save = func(*config.Config) error { return errors.New("read-only home") }

	settings := b.GetSettings()
	settings.Provider = "openai"
	require.Error(t, b.SaveSettings(settings))
	assert.Equal(t, "groq", cfg.Backend.Provider)
}

type stubBackend struct {
	err error
}

func (s *stubBackend) Query(ctx context.Context, req backend.QueryRequest) (*backend.QueryResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &backend.QueryResponse{Response: "ok"}, nil
}

func (s *stubBackend) Upload(ctx context.Context, files ...backend.File) (*backend.UploadResponse, error) {
	return &backend.UploadResponse{ChunksAdded: len(files)}, nil
}

func (s *stubBackend) ClearDocuments(ctx context.Context) error { return nil }

func (s *stubBackend) Speak(ctx context.Context, text string) (*backend.Speech, error) {
	return nil, errors.New("no tts")
}

func TestChatBridge_ErrorsBecomeMessages(t *testing.T) {
	sb := &stubBackend{err: &backend.APIError{Status: 503, Detail: "LLM provider unavailable"}}
	session := chat.NewSession(chat.DefaultSessionConfig(), sb, nil, nil, zerolog.Nop())
	b := NewChatBridge(session, zerolog.Nop())

	msg, err := b.SendMessage("hi")
	require.NoError(t, err)
	assert.Equal(t, chat.KindError, msg.Kind)
	assert.Equal(t, "LLM provider unavailable", msg.Text)

	_, err = b.SendMessage("   ")
	assert.ErrorIs(t, err, chat.ErrEmptyMessage)
}

func TestChatBridge_UploadAndSettings(t *testing.T) {
	session := chat.NewSession(chat.DefaultSessionConfig(), &stubBackend{}, nil, nil, zerolog.Nop())
	b := NewChatBridge(session, zerolog.Nop())

	msg, err := b.UploadDocuments([]UploadFile{{Name: "notes.txt", Data: "aGVsbG8="}})
	require.NoError(t, err)
	assert.Equal(t, chat.KindSystem, msg.Kind)

	_, err = b.UploadDocuments([]UploadFile{{Name: "bad", Data: "%%%"}})
	assert.Error(t, err)

	_, err = b.UploadDocuments(nil)
	assert.Error(t, err)

	require.NoError(t, b.SetProvider("anthropic"))
	assert.Error(t, b.SetProvider("skynet"))
	b.SetUseRAG(false)
	assert.Equal(t, ChatSettings{Provider: "anthropic", UseRAG: false, SpeechEnabled: true}, b.GetChatSettings())
}
