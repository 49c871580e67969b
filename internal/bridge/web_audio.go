package bridge

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/normanking/spritetalk/internal/playback"
)

// WebAudioSource is an audio source played by the webview's <audio>
// element. The frontend reports metadata, start, progress, end and errors;
// between reports the position is extrapolated from the wall clock so the
// lip-sync loop sees a smooth clock.
type WebAudioSource struct {
	id     string
	now    func() time.Time
	emit   emitFunc
	onStop func(*WebAudioSource)

	mu         sync.Mutex
	status     playback.AudioStatus
	duration   float64
	position   float64
	reportedAt time.Time
	err        error
	stopped    bool
}

func newWebAudioSource(id string, now func() time.Time, emit emitFunc, onStop func(*WebAudioSource)) *WebAudioSource {
	if now == nil {
		now = time.Now
	}
	return &WebAudioSource{
		id:     id,
		now:    now,
		emit:   emit,
		onStop: onStop,
		status: playback.AudioLoading,
	}
}

// ID is the utterance the audio belongs to.
func (s *WebAudioSource) ID() string { return s.id }

// Start asks the frontend to play. The source only reports AudioPlaying
// once the element confirms it.
func (s *WebAudioSource) Start() error {
	s.mu.Lock()
	stopped, status, err := s.stopped, s.status, s.err
	s.mu.Unlock()

	if stopped {
		return errors.New("audio source was stopped")
	}
	if status == playback.AudioFailed {
		return err
	}
	s.emit("avatar:play-audio", map[string]interface{}{"id": s.id})
	return nil
}

// Stop pauses and rewinds the element and detaches the source.
func (s *WebAudioSource) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	if s.status != playback.AudioEnded && s.status != playback.AudioFailed {
		s.status = playback.AudioPaused
	}
	s.position = 0
	s.mu.Unlock()

	s.emit("avatar:stop-audio", map[string]interface{}{"id": s.id})
	if s.onStop != nil {
		s.onStop(s)
	}
}

func (s *WebAudioSource) Status() playback.AudioStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// CurrentTime returns the last reported position plus the time elapsed
// since, capped at the duration.
func (s *WebAudioSource) CurrentTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.position
	if s.status == playback.AudioPlaying && !s.reportedAt.IsZero() {
		t += s.now().Sub(s.reportedAt).Seconds()
	}
	if s.duration > 0 && t > s.duration {
		t = s.duration
	}
	return t
}

func (s *WebAudioSource) Duration() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

func (s *WebAudioSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// ReportMetadata records the decoded duration.
func (s *WebAudioSource) ReportMetadata(duration float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if duration > 0 && !math.IsInf(duration, 0) && !math.IsNaN(duration) {
		s.duration = duration
	}
	if s.status == playback.AudioLoading {
		s.status = playback.AudioReady
	}
}

// ReportPlaying marks playback as started at position t.
func (s *WebAudioSource) ReportPlaying(t float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.status == playback.AudioEnded || s.status == playback.AudioFailed {
		return
	}
	s.status = playback.AudioPlaying
	s.position = t
	s.reportedAt = s.now()
}

// ReportTime resynchronises the extrapolated clock.
func (s *WebAudioSource) ReportTime(t float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.status != playback.AudioPlaying {
		return
	}
	s.position = t
	s.reportedAt = s.now()
}

// ReportPaused records a pause initiated by the user or the browser.
func (s *WebAudioSource) ReportPaused(t float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.status != playback.AudioPlaying {
		return
	}
	s.status = playback.AudioPaused
	s.position = t
}

// ReportEnded records natural end of playback.
func (s *WebAudioSource) ReportEnded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.status == playback.AudioFailed {
		return
	}
	s.status = playback.AudioEnded
	s.position = s.duration
}

// ReportError records a decode or playback failure.
func (s *WebAudioSource) ReportError(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.status == playback.AudioEnded {
		return
	}
	if message == "" {
		message = "audio element error"
	}
	s.status = playback.AudioFailed
	s.err = errors.New(message)
}
