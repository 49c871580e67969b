package bridge

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/normanking/spritetalk/internal/backend"
	"github.com/normanking/spritetalk/internal/chat"
)

// UploadFile is a document picked in the frontend.
type UploadFile struct {
	Name string `json:"name"`
	Data string `json:"data"` // base64
}

// ChatSettings are the per-session chat toggles.
type ChatSettings struct {
	Provider      string `json:"provider"`
	UseRAG        bool   `json:"useRag"`
	SpeechEnabled bool   `json:"speechEnabled"`
}

// Providers lists the LLM providers the backend accepts.
var Providers = []string{"groq", "openai", "anthropic", "ollama"}

// ChatBridge exposes the chat session to the frontend
type ChatBridge struct {
	emitter
	ctx     context.Context
	session *chat.Session
	logger  zerolog.Logger
}

// NewChatBridge creates a new chat bridge
func NewChatBridge(session *chat.Session, logger zerolog.Logger) *ChatBridge {
	return &ChatBridge{
		ctx:     context.Background(),
		session: session,
		logger:  logger.With().Str("component", "chat-bridge").Logger(),
	}
}

// Bind sets the Wails context and streams new messages to the frontend.
func (b *ChatBridge) Bind(ctx context.Context) {
	b.ctx = ctx
	b.bindContext(ctx)
	b.session.SetMessageHandler(func(m chat.Message) {
		b.send("chat:message", m)
	})
}

// SendMessage runs one chat turn and returns the reply. Backend failures
// come back as an error-kind message rather than a rejected promise.
func (b *ChatBridge) SendMessage(text string) (chat.Message, error) {
	msg, err := b.session.Send(b.ctx, text)
	if err != nil && msg.Kind == chat.KindError {
		return msg, nil
	}
	return msg, err
}

// UploadDocuments indexes base64-encoded files.
func (b *ChatBridge) UploadDocuments(files []UploadFile) (chat.Message, error) {
	if len(files) == 0 {
		return chat.Message{}, fmt.Errorf("no files selected")
	}

	parts := make([]backend.File, 0, len(files))
	for _, f := range files {
		data, err := base64.StdEncoding.DecodeString(f.Data)
		if err != nil {
			return chat.Message{}, fmt.Errorf("failed to decode %s: %w", f.Name, err)
		}
		parts = append(parts, backend.File{Name: f.Name, Content: bytes.NewReader(data)})
	}

	b.logger.Info().Int("files", len(parts)).Msg("Uploading documents")
	msg, err := b.session.UploadDocuments(b.ctx, parts...)
	if err != nil && msg.Kind == chat.KindError {
		return msg, nil
	}
	return msg, err
}

// ClearDocuments empties the document index.
func (b *ChatBridge) ClearDocuments() (chat.Message, error) {
	msg, err := b.session.ClearDocuments(b.ctx)
	if err != nil && msg.Kind == chat.KindError {
		return msg, nil
	}
	return msg, err
}

// GetMessages returns the conversation so far.
func (b *ChatBridge) GetMessages() []chat.Message {
	return b.session.Messages()
}

// ClearHistory forgets the conversation.
func (b *ChatBridge) ClearHistory() {
	b.session.ClearHistory()
	b.send("chat:cleared")
}

// GetProviders returns the selectable LLM providers.
func (b *ChatBridge) GetProviders() []string {
	return append([]string(nil), Providers...)
}

// GetChatSettings returns the current toggles.
func (b *ChatBridge) GetChatSettings() ChatSettings {
	cfg := b.session.Config()
	return ChatSettings{
		Provider:      cfg.Provider,
		UseRAG:        cfg.UseRAG,
		SpeechEnabled: cfg.SpeechEnabled,
	}
}

// SetProvider selects the LLM provider for the next turns.
func (b *ChatBridge) SetProvider(provider string) error {
	for _, p := range Providers {
		if p == provider {
			b.session.SetProvider(provider)
			b.logger.Info().Str("provider", provider).Msg("Provider changed")
			return nil
		}
	}
	return fmt.Errorf("unknown provider %q", provider)
}

// SetUseRAG toggles document retrieval.
func (b *ChatBridge) SetUseRAG(enabled bool) {
	b.session.SetUseRAG(enabled)
}

// SetSpeechEnabled toggles spoken replies.
func (b *ChatBridge) SetSpeechEnabled(enabled bool) {
	b.session.SetSpeechEnabled(enabled)
}
