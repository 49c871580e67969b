// Package bus provides an internal event bus for component communication
package bus

import (
	"sync"
)

// EventType identifies different event types
type EventType string

// Event types for SpriteTalk
const (
	// Speech playback events
	EventTypeSpeechQueued   EventType = "speech.queued"
	EventTypeSpeechStarted  EventType = "speech.started"
	EventTypeSpeechEnded    EventType = "speech.ended"
	EventTypeSpeechFailed   EventType = "speech.failed"
	EventTypeSpeechRejected EventType = "speech.rejected"
	EventTypeSpeechCanceled EventType = "speech.cancelled"

	// Avatar events
	EventTypeAvatarFrame   EventType = "avatar.frame"
	EventTypeAvatarStyle   EventType = "avatar.style_changed"
	EventTypeSpritesReload EventType = "avatar.sprites_reloaded"

	// Chat events
	EventTypeChatMessage   EventType = "chat.message"
	EventTypeChatError     EventType = "chat.error"
	EventTypeDocsUploaded  EventType = "chat.documents_uploaded"
	EventTypeDocsCleared   EventType = "chat.documents_cleared"
	EventTypeSettingsSaved EventType = "settings.saved"
)

// Event represents a bus event
type Event struct {
	Type EventType
	Data map[string]any
}

// Handler is a function that handles events
type Handler func(Event)

// EventBus is a simple pub/sub event bus
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for an event type
func (b *EventBus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeMultiple adds a handler for multiple event types
func (b *EventBus) SubscribeMultiple(eventTypes []EventType, handler Handler) {
	for _, et := range eventTypes {
		b.Subscribe(et, handler)
	}
}

// Publish sends an event to all subscribed handlers without waiting.
// A nil bus drops the event so components can run without one.
func (b *EventBus) Publish(event Event) {
	if b == nil {
		return
	}
	for _, handler := range b.snapshot(event.Type) {
		// Call handlers in goroutines to avoid blocking the publisher
		go handler(event)
	}
}

// PublishSync sends an event and waits for all handlers to complete
func (b *EventBus) PublishSync(event Event) {
	if b == nil {
		return
	}
	var wg sync.WaitGroup
	for _, handler := range b.snapshot(event.Type) {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			h(event)
		}(handler)
	}
	wg.Wait()
}

// HandlerCount returns how many handlers are registered for an event type
func (b *EventBus) HandlerCount(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType])
}

// Clear removes all handlers
func (b *EventBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[EventType][]Handler)
}

func (b *EventBus) snapshot(eventType EventType) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	handlers := make([]Handler, len(b.handlers[eventType]))
	copy(handlers, b.handlers[eventType])
	return handlers
}
