package playback

import (
	"sync"
	"time"
)

// DefaultFrameInterval approximates a 60 Hz display refresh.
const DefaultFrameInterval = 16 * time.Millisecond

// FrameFunc is called once per requested frame with the frame timestamp.
type FrameFunc func(now time.Time)

// CancelFunc drops a pending frame request. Calling it after the frame ran,
// or more than once, is harmless.
type CancelFunc func()

// Scheduler hands out single-shot frame callbacks, like a browser's
// requestAnimationFrame. A loop re-requests a frame from inside its callback.
type Scheduler interface {
	RequestFrame(fn FrameFunc) CancelFunc
}

// TickerScheduler fires each requested frame after a fixed interval on a
// timer goroutine.
type TickerScheduler struct {
	interval time.Duration
}

// NewTickerScheduler creates a scheduler. A non-positive interval selects
// DefaultFrameInterval.
func NewTickerScheduler(interval time.Duration) *TickerScheduler {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	return &TickerScheduler{interval: interval}
}

// Interval returns the frame interval.
func (s *TickerScheduler) Interval() time.Duration {
	return s.interval
}

// RequestFrame schedules fn for the next frame.
func (s *TickerScheduler) RequestFrame(fn FrameFunc) CancelFunc {
	timer := time.AfterFunc(s.interval, func() {
		fn(time.Now())
	})
	return func() { timer.Stop() }
}

// ManualScheduler queues frame requests until Flush is called. It lets
// tests and offline renderers drive the frame loop at chosen timestamps.
type ManualScheduler struct {
	mu      sync.Mutex
	nextID  int
	pending map[int]FrameFunc
	order   []int
}

// NewManualScheduler creates an empty manual scheduler.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{pending: make(map[int]FrameFunc)}
}

// RequestFrame queues fn until the next Flush.
func (s *ManualScheduler) RequestFrame(fn FrameFunc) CancelFunc {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.pending[id] = fn
	s.order = append(s.order, id)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.pending, id)
	}
}

// Pending returns the number of queued frame requests.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Flush runs every request queued before the call, in request order, with
// now as the frame time. Requests made by the callbacks wait for the next
// Flush. It returns how many callbacks ran.
func (s *ManualScheduler) Flush(now time.Time) int {
	s.mu.Lock()
	order := s.order
	s.order = nil
	fns := make([]FrameFunc, 0, len(order))
	for _, id := range order {
		if fn, ok := s.pending[id]; ok {
			fns = append(fns, fn)
			delete(s.pending, id)
		}
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(now)
	}
	return len(fns)
}
