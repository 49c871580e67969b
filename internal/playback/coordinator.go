package playback

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/normanking/spritetalk/internal/bus"
	"github.com/normanking/spritetalk/internal/lipsync"
	"github.com/normanking/spritetalk/internal/metrics"
)

// DefaultMetadataTimeout bounds how long an utterance may stay in Loading.
const DefaultMetadataTimeout = 10 * time.Second

// Options configures a Coordinator.
type Options struct {
	Audio     AudioFactory
	Scheduler Scheduler
	Frames    lipsync.FrameMap

	TransitionDuration float64       // seconds, 0 selects the lipsync default
	NearestWindow      float64       // seconds, 0 selects the lipsync default
	CycleRate          float64       // frames per second within a held viseme
	MetadataTimeout    time.Duration // 0 disables the timeout

	Bus     *bus.EventBus
	Metrics *metrics.Metrics
	Logger  zerolog.Logger
}

// Session is the single owned playback of one utterance. It is created by
// Submit and discarded on end, failure or cancellation.
type Session struct {
	utterance   Utterance
	audio       AudioSource
	cancelFrame CancelFunc

	state   State
	visemes lipsync.Sequence

	estimated float64
	nominal   float64
	rescaled  bool
	started   bool
	speaking  bool

	lastIndex    int
	frameCount   uint64
	loadingSince time.Time
}

// ID returns the utterance id.
func (s *Session) ID() string { return s.utterance.ID }

// Subscriber receives updates in publication order.
type Subscriber func(Update)

// Coordinator plays at most one utterance at a time.
//
// Frame callbacks and API calls are serialised on one mutex, so Cancel waits
// for an in-flight frame and nothing is published for a session after it
// has been cancelled. Subscribers are called with that mutex held and must
// not call back into the Coordinator synchronously.
type Coordinator struct {
	mu      sync.Mutex
	opts    Options
	logger  zerolog.Logger
	frames  lipsync.FrameMap
	interp  *lipsync.Interpolator
	session *Session
	last    Update
	epoch   time.Time
	closed  bool

	subMu     sync.RWMutex
	subs      map[int]Subscriber
	nextSubID int
}

// New creates a Coordinator. Options.Audio is required; a missing scheduler
// defaults to a TickerScheduler at DefaultFrameInterval.
func New(opts Options) *Coordinator {
	if opts.Scheduler == nil {
		opts.Scheduler = NewTickerScheduler(DefaultFrameInterval)
	}
	if opts.NearestWindow <= 0 {
		opts.NearestWindow = lipsync.DefaultNearestWindow
	}
	if opts.CycleRate <= 0 {
		opts.CycleRate = lipsync.DefaultCycleRate
	}
	if opts.Frames == nil {
		opts.Frames = lipsync.FrameMap{}
	}

	return &Coordinator{
		opts:   opts,
		logger: opts.Logger.With().Str("component", "playback").Logger(),
		frames: opts.Frames.Clone(),
		interp: lipsync.NewInterpolator(opts.TransitionDuration),
		last:   Update{State: StateIdle, Frame: lipsync.DefaultFrame},
		subs:   make(map[int]Subscriber),
	}
}

// Subscribe registers fn for every published update and returns a function
// that removes it.
func (c *Coordinator) Subscribe(fn Subscriber) func() {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	id := c.nextSubID
	c.nextSubID++
	c.subs[id] = fn

	return func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		delete(c.subs, id)
	}
}

// SetFrames swaps the sprite frame map, e.g. after a manifest reload or a
// style change. It takes effect on the next frame.
func (c *Coordinator) SetFrames(frames lipsync.FrameMap) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = frames.Clone()
}

// State returns the current session state, Idle when there is none.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return StateIdle
	}
	return c.session.state
}

// Playing reports whether the playback guard is held.
func (c *Coordinator) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeLocked()
}

// Snapshot returns the most recently published update.
func (c *Coordinator) Snapshot() Update {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Submit starts playback of u. While another utterance is loading or
// playing the request is dropped with ErrPlaybackInProgress and the
// current playback is left untouched.
func (c *Coordinator) Submit(ctx context.Context, u Utterance) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitLocked(ctx, u)
}

// Interrupt cancels whatever is playing and starts u.
func (c *Coordinator) Interrupt(ctx context.Context, u Utterance) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelLocked("interrupted")
	return c.submitLocked(ctx, u)
}

// Cancel stops the active session, releases its audio and returns the
// avatar to rest. When Cancel returns no further update for that session
// will be published. Safe to call at any time.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelLocked("cancelled")
}

// Close cancels playback and refuses further submissions.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelLocked("closed")
	c.closed = true
	return nil
}

func (c *Coordinator) activeLocked() bool {
	return c.session != nil && c.session.state.Active()
}

func (c *Coordinator) submitLocked(ctx context.Context, u Utterance) error {
	if c.closed {
		return ErrClosed
	}

	if c.activeLocked() {
		current := c.session.utterance.ID
		c.logger.Warn().
			Str("utterance_id", u.ID).
			Str("playing_id", current).
			Msg("Rejected utterance: playback already in progress")
		c.opts.Metrics.RecordUtterance(metrics.OutcomeRejected)
		c.opts.Bus.Publish(bus.Event{
			Type: bus.EventTypeSpeechRejected,
			Data: map[string]any{"utterance_id": u.ID, "playing_id": current},
		})
		return ErrPlaybackInProgress
	}

	if len(u.Audio) == 0 {
		return ErrEmptyAudio
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}

	// Previous session is terminal here; make sure its resources are gone.
	if c.session != nil {
		c.release(c.session)
		c.session = nil
	}

	src, err := c.opts.Audio.NewSource(ctx, u)
	if err != nil {
		c.opts.Metrics.RecordUtterance(metrics.OutcomeFailed)
		return fmt.Errorf("failed to create audio source: %w", err)
	}

	s := &Session{
		utterance: u,
		audio:     src,
		state:     StateLoading,
		visemes:   u.Visemes,
		estimated: u.Visemes.EstimatedDuration(),
		nominal:   u.NominalDuration,
	}

	// The guard is held from here on, before the audio is started.
	c.session = s
	c.opts.Metrics.RecordUtterance(metrics.OutcomeStarted)
	c.opts.Metrics.SetPlaybackActive(true)

	c.logger.Info().
		Str("utterance_id", u.ID).
		Int("visemes", len(u.Visemes)).
		Int("audio_bytes", len(u.Audio)).
		Msg("Utterance submitted")
	c.opts.Bus.Publish(bus.Event{
		Type: bus.EventTypeSpeechQueued,
		Data: map[string]any{"utterance_id": u.ID, "text": u.Text},
	})

	c.publish(Update{
		UtteranceID: u.ID,
		State:       StateLoading,
		Frame:       c.last.Frame,
		Duration:    u.NominalDuration,
	})
	c.schedule(s)
	return nil
}

func (c *Coordinator) cancelLocked(reason string) {
	s := c.session
	if s == nil {
		return
	}
	c.session = nil
	wasActive := s.state.Active()
	c.release(s)
	if !wasActive {
		return
	}

	s.state = StateIdle
	c.opts.Metrics.RecordUtterance(metrics.OutcomeCancelled)
	c.logger.Info().
		Str("utterance_id", s.utterance.ID).
		Str("reason", reason).
		Msg("Playback cancelled")
	c.opts.Bus.Publish(bus.Event{
		Type: bus.EventTypeSpeechCanceled,
		Data: map[string]any{"utterance_id": s.utterance.ID, "reason": reason},
	})

	c.settle()
	c.publish(Update{
		UtteranceID: s.utterance.ID,
		State:       StateIdle,
		Frame:       c.interp.Target(),
	})
}

// release drops the pending frame and stops the audio. Idempotent.
func (c *Coordinator) release(s *Session) {
	if s.cancelFrame != nil {
		s.cancelFrame()
		s.cancelFrame = nil
	}
	if s.audio != nil {
		s.audio.Stop()
	}
	s.speaking = false
	c.opts.Metrics.SetPlaybackActive(false)
}

func (c *Coordinator) schedule(s *Session) {
	s.cancelFrame = c.opts.Scheduler.RequestFrame(func(now time.Time) {
		c.tick(s, now)
	})
}

func (c *Coordinator) tick(s *Session, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// A frame that fired while Cancel or a new Submit held the lock.
	if c.session != s || !s.state.Active() {
		return
	}
	s.cancelFrame = nil
	s.frameCount++
	if c.epoch.IsZero() {
		c.epoch = now
	}

	switch s.state {
	case StateLoading:
		c.load(s, now)
	case StatePlaying:
		c.render(s, now)
	}
}

// load polls the audio source until it starts playing.
func (c *Coordinator) load(s *Session, now time.Time) {
	if s.loadingSince.IsZero() {
		s.loadingSince = now
	}

	switch s.audio.Status() {
	case AudioFailed:
		c.onError(s, audioError(s.audio))
		return

	case AudioLoading:

	case AudioReady:
		if !s.started {
			if err := c.onReady(s, now); err != nil {
				c.onError(s, err)
				return
			}
		}

	case AudioPlaying:
		if !s.started {
			if err := c.onReady(s, now); err != nil {
				c.onError(s, err)
				return
			}
		}
		c.onStart(s)
		c.render(s, now)
		return

	case AudioPaused, AudioEnded:
		// Finished (or was stopped externally) before the first frame.
		c.onEnd(s)
		return
	}

	if timeout := c.opts.MetadataTimeout; timeout > 0 && now.Sub(s.loadingSince) >= timeout {
		c.onError(s, fmt.Errorf("%w after %s", ErrMetadataTimeout, timeout))
		return
	}
	c.schedule(s)
}

// onReady captures the real duration and starts the audio.
func (c *Coordinator) onReady(s *Session, now time.Time) error {
	if d := s.audio.Duration(); d > 0 {
		s.nominal = d
	}
	c.opts.Metrics.RecordMetadataWait(now.Sub(s.loadingSince))

	s.started = true
	if err := s.audio.Start(); err != nil {
		return fmt.Errorf("failed to start audio: %w", err)
	}

	c.logger.Debug().
		Str("utterance_id", s.utterance.ID).
		Float64("duration", s.nominal).
		Float64("estimated", s.estimated).
		Msg("Audio ready")
	return nil
}

func (c *Coordinator) onStart(s *Session) {
	s.state = StatePlaying
	s.speaking = true

	c.logger.Info().Str("utterance_id", s.utterance.ID).Msg("Speech started")
	c.opts.Bus.Publish(bus.Event{
		Type: bus.EventTypeSpeechStarted,
		Data: map[string]any{"utterance_id": s.utterance.ID, "duration": s.nominal},
	})
}

func (c *Coordinator) onEnd(s *Session) {
	s.state = StateEnded
	s.lastIndex = 0
	c.release(s)
	c.settle()

	c.opts.Metrics.RecordUtterance(metrics.OutcomeCompleted)
	c.logger.Info().
		Str("utterance_id", s.utterance.ID).
		Uint64("frames", s.frameCount).
		Msg("Speech ended")
	c.opts.Bus.Publish(bus.Event{
		Type: bus.EventTypeSpeechEnded,
		Data: map[string]any{"utterance_id": s.utterance.ID},
	})

	c.publish(Update{
		UtteranceID: s.utterance.ID,
		State:       StateEnded,
		Frame:       c.interp.Target(),
		VisemeIndex: s.lastIndex,
		Duration:    s.nominal,
	})
}

func (c *Coordinator) onError(s *Session, err error) {
	s.state = StateFailed
	s.lastIndex = 0
	c.release(s)
	c.settle()

	c.opts.Metrics.RecordUtterance(metrics.OutcomeFailed)
	c.logger.Error().
		Err(err).
		Str("utterance_id", s.utterance.ID).
		Msg("Speech playback failed")
	c.opts.Bus.Publish(bus.Event{
		Type: bus.EventTypeSpeechFailed,
		Data: map[string]any{"utterance_id": s.utterance.ID, "error": err.Error()},
	})

	c.publish(Update{
		UtteranceID: s.utterance.ID,
		State:       StateFailed,
		Frame:       c.interp.Target(),
		VisemeIndex: s.lastIndex,
		Duration:    s.nominal,
		Error:       err.Error(),
	})
}

// render is one lip-sync step against the audio clock.
func (c *Coordinator) render(s *Session, now time.Time) {
	switch s.audio.Status() {
	case AudioFailed:
		c.onError(s, audioError(s.audio))
		return
	case AudioPaused, AudioEnded:
		c.onEnd(s)
		return
	}

	t := s.audio.CurrentTime()
	d := s.audio.Duration()

	if !s.rescaled && d > 0 {
		s.visemes = lipsync.Rescale(s.visemes, s.estimated, d)
		s.rescaled = true
		s.nominal = d
		if f := lipsync.ScaleFactor(s.estimated, d); f != 1 {
			c.logger.Debug().
				Str("utterance_id", s.utterance.ID).
				Float64("factor", f).
				Msg("Rescaled viseme timeline")
		}
	}

	category, idx := lipsync.Resolve(t, s.visemes, c.opts.NearestWindow)
	if idx >= 0 {
		s.lastIndex = idx
	}

	target := lipsync.SelectFrameWith(category, s.visemes, t, c.frames,
		lipsync.SelectorOptions{CycleRate: c.opts.CycleRate})

	clock := now.Sub(c.epoch).Seconds()
	c.interp.SetTargetFrame(target, clock)
	frame := c.interp.Frame(clock)

	c.publish(Update{
		UtteranceID: s.utterance.ID,
		State:       StatePlaying,
		Frame:       frame,
		Viseme:      category,
		VisemeIndex: s.lastIndex,
		Progress:    progress(t, s.nominal),
		Speaking:    s.speaking,
		Time:        t,
		Duration:    s.nominal,
	})
	c.schedule(s)
}

// settle returns the interpolator to the rest frame without easing.
func (c *Coordinator) settle() {
	rest := c.frames.Candidates(lipsync.CategorySilence)
	frame := lipsync.DefaultFrame
	if len(rest) > 0 {
		frame = rest[0]
	}
	c.interp.SetTargetFrame(frame, 0)
	c.interp.Reset()
}

func (c *Coordinator) publish(u Update) {
	changed := u.Frame != c.last.Frame
	c.last = u
	c.opts.Metrics.RecordFrame(changed)

	if changed {
		c.opts.Bus.Publish(bus.Event{
			Type: bus.EventTypeAvatarFrame,
			Data: map[string]any{"utterance_id": u.UtteranceID, "frame": u.Frame, "viseme": int(u.Viseme)},
		})
	}

	c.subMu.RLock()
	subs := make([]Subscriber, 0, len(c.subs))
	for id := 0; id < c.nextSubID; id++ {
		if fn, ok := c.subs[id]; ok {
			subs = append(subs, fn)
		}
	}
	c.subMu.RUnlock()

	for _, fn := range subs {
		fn(u)
	}
}

// progress is t/d as a percentage clamped to [0, 100].
func progress(t, d float64) float64 {
	if d <= 0 || math.IsNaN(t) || math.IsNaN(d) || math.IsInf(d, 0) {
		return 0
	}
	p := t / d * 100
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}

func audioError(src AudioSource) error {
	if err := src.Err(); err != nil {
		return fmt.Errorf("audio source failed: %w", err)
	}
	return errors.New("audio source failed")
}
