// Package bridge provides Wails Go-JS bindings.
package bridge

import (
	"context"
	"sync"

	"github.com/wailsapp/wails/v2/pkg/runtime"
)

// emitFunc sends a runtime event to the frontend.
type emitFunc func(event string, data ...interface{})

// emitter holds the event sink of a bridge. Events emitted before Bind are
// dropped.
type emitter struct {
	mu   sync.RWMutex
	emit emitFunc
}

func (e *emitter) bindContext(ctx context.Context) {
	e.set(func(event string, data ...interface{}) {
		runtime.EventsEmit(ctx, event, data...)
	})
}

func (e *emitter) set(fn emitFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emit = fn
}

func (e *emitter) send(event string, data ...interface{}) {
	e.mu.RLock()
	fn := e.emit
	e.mu.RUnlock()
	if fn != nil {
		fn(event, data...)
	}
}
