package bridge

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/spritetalk/internal/playback"
)

type recordedEvent struct {
	name string
	data []interface{}
}

type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *eventRecorder) emit(name string, data ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{name: name, data: data})
}

func (r *eventRecorder) named(name string) []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []recordedEvent
	for _, e := range r.events {
		if e.name == name {
			out = append(out, e)
		}
	}
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestWebAudioSource_Lifecycle(t *testing.T) {
	clock := newFakeClock()
	rec := &eventRecorder{}
	src := newWebAudioSource("u1", clock.Now, rec.emit, nil)

	assert.Equal(t, playback.AudioLoading, src.Status())
	assert.Zero(t, src.Duration())

	src.ReportMetadata(3.0)
	assert.Equal(t, playback.AudioReady, src.Status())
	assert.Equal(t, 3.0, src.Duration())

	require.NoError(t, src.Start())
	require.Len(t, rec.named("avatar:play-audio"), 1)
	assert.Equal(t, playback.AudioReady, src.Status(), "playing only once the element confirms")

	src.ReportPlaying(1.0)
	assert.Equal(t, playback.AudioPlaying, src.Status())
	assert.InDelta(t, 1.0, src.CurrentTime(), 1e-9)

	clock.Advance(500 * time.Millisecond)
	assert.InDelta(t, 1.5, src.CurrentTime(), 1e-9)

	src.ReportTime(1.4)
	assert.InDelta(t, 1.4, src.CurrentTime(), 1e-9)

	clock.Advance(10 * time.Second)
	assert.InDelta(t, 3.0, src.CurrentTime(), 1e-9, "capped at duration")

	src.ReportEnded()
	assert.Equal(t, playback.AudioEnded, src.Status())
	assert.InDelta(t, 3.0, src.CurrentTime(), 1e-9)
}

func TestWebAudioSource_PauseFreezesClock(t *testing.T) {
	clock := newFakeClock()
	src := newWebAudioSource("u1", clock.Now, func(string, ...interface{}) {}, nil)
	src.ReportMetadata(5)
	src.ReportPlaying(0)
	clock.Advance(time.Second)

	src.ReportPaused(1.0)
	clock.Advance(time.Second)

	assert.Equal(t, playback.AudioPaused, src.Status())
	assert.InDelta(t, 1.0, src.CurrentTime(), 1e-9)
}

func TestWebAudioSource_InvalidMetadata(t *testing.T) {
	src := newWebAudioSource("u1", nil, func(string, ...interface{}) {}, nil)

	src.ReportMetadata(math.Inf(1))
	assert.Equal(t, playback.AudioReady, src.Status())
	assert.Zero(t, src.Duration(), "streams report Infinity")

	src.ReportMetadata(math.NaN())
	assert.Zero(t, src.Duration())
}

func TestWebAudioSource_Error(t *testing.T) {
	src := newWebAudioSource("u1", nil, func(string, ...interface{}) {}, nil)

	src.ReportError("")
	assert.Equal(t, playback.AudioFailed, src.Status())
	require.Error(t, src.Err())
	assert.Equal(t, "audio element error", src.Err().Error())

	assert.EqualError(t, src.Start(), "audio element error")

	src.ReportPlaying(0)
	assert.Equal(t, playback.AudioFailed, src.Status(), "failure is terminal")
}

func TestWebAudioSource_StopIsIdempotent(t *testing.T) {
	rec := &eventRecorder{}
	stops := 0
	src := newWebAudioSource("u1", nil, rec.emit, func(*WebAudioSource) { stops++ })
	src.ReportMetadata(2)
	src.ReportPlaying(0.5)

	src.Stop()
	src.Stop()

	assert.Equal(t, 1, stops)
	assert.Len(t, rec.named("avatar:stop-audio"), 1)
	assert.Equal(t, playback.AudioPaused, src.Status())
	assert.Zero(t, src.CurrentTime(), "rewound")

	src.ReportPlaying(0)
	src.ReportEnded()
	assert.Equal(t, playback.AudioPaused, src.Status(), "reports after stop are ignored")
	assert.Error(t, src.Start())
}
