// Package chat runs the text conversation with the backend and hands
// assistant replies to the avatar for speech.
package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes how a message is rendered.
type Kind string

const (
	KindUser      Kind = "user"
	KindAssistant Kind = "assistant"
	// KindError carries a failed backend turn; it is shown in the
	// conversation instead of an assistant reply.
	KindError  Kind = "error"
	KindSystem Kind = "system"
)

// Message is one entry in the conversation.
type Message struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	Text        string    `json:"text"`
	ContextUsed bool      `json:"contextUsed"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewMessage stamps a message with an id and the current time.
func NewMessage(kind Kind, text string) Message {
	return Message{
		ID:        uuid.NewString(),
		Kind:      kind,
		Text:      text,
		CreatedAt: time.Now(),
	}
}

// DefaultMaxMessages bounds the in-memory history.
const DefaultMaxMessages = 200

// History is a bounded, thread-safe message log.
type History struct {
	mu       sync.RWMutex
	messages []Message
	max      int
}

// NewHistory creates a history keeping at most max messages.
func NewHistory(max int) *History {
	if max <= 0 {
		max = DefaultMaxMessages
	}
	return &History{
		messages: make([]Message, 0, 16),
		max:      max,
	}
}

// Append adds a message, dropping the oldest beyond the limit.
func (h *History) Append(m Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages = append(h.messages, m)
	if len(h.messages) > h.max {
		h.messages = h.messages[len(h.messages)-h.max:]
	}
}

// Messages returns a copy of the history, oldest first.
func (h *History) Messages() []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Last returns the newest message.
func (h *History) Last() (Message, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.messages) == 0 {
		return Message{}, false
	}
	return h.messages[len(h.messages)-1], true
}

// Len returns the number of stored messages.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// Clear removes all messages.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = h.messages[:0]
}
