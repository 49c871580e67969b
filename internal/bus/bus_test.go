package bus

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEventBus_PublishSyncDeliversToAllHandlers(t *testing.T) {
	b := NewEventBus()
	var count atomic.Int32

	b.Subscribe(EventTypeSpeechStarted, func(e Event) {
		assert.Equal(t, "u1", e.Data["utterance_id"])
		count.Add(1)
	})
	b.SubscribeMultiple([]EventType{EventTypeSpeechStarted, EventTypeSpeechEnded}, func(Event) {
		count.Add(1)
	})

	b.PublishSync(Event{Type: EventTypeSpeechStarted, Data: map[string]any{"utterance_id": "u1"}})
	assert.Equal(t, int32(2), count.Load())

	b.PublishSync(Event{Type: EventTypeSpeechEnded})
	assert.Equal(t, int32(3), count.Load())
}

func TestEventBus_PublishIsAsync(t *testing.T) {
	b := NewEventBus()
	done := make(chan Event, 1)
	b.Subscribe(EventTypeChatError, func(e Event) { done <- e })

	b.Publish(Event{Type: EventTypeChatError})

	select {
	case e := <-done:
		assert.Equal(t, EventTypeChatError, e.Type)
	case <-time.After(time.Second):
		t.Fatal("handler not called")
	}
}

func TestEventBus_NilBusDropsEvents(t *testing.T) {
	var b *EventBus
	assert.NotPanics(t, func() {
		b.Publish(Event{Type: EventTypeAvatarFrame})
		b.PublishSync(Event{Type: EventTypeAvatarFrame})
	})
}

func TestEventBus_Clear(t *testing.T) {
	b := NewEventBus()
	b.Subscribe(EventTypeAvatarFrame, func(Event) {})
	assert.Equal(t, 1, b.HandlerCount(EventTypeAvatarFrame))

	b.Clear()
	assert.Equal(t, 0, b.HandlerCount(EventTypeAvatarFrame))
}
