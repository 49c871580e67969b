package playback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/wav"
)

// ErrUnknownFormat is returned by ProbeDuration for payloads it cannot decode.
var ErrUnknownFormat = errors.New("unknown audio format")

// minEstimatedDuration and bytesPerSecond reproduce the speech service's own
// size-based guess for compressed audio it could not parse.
const (
	minEstimatedDuration = 0.5
	bytesPerSecond       = 2000.0
)

// ClockSource is an AudioSource without an audio device: playback position
// is wall time since Start, bounded by a known duration. It drives headless
// rendering and tests.
type ClockSource struct {
	mu        sync.Mutex
	now       func() time.Time
	duration  float64
	status    AudioStatus
	startedAt time.Time
	position  float64
}

// NewClockSource creates a source of the given length. A nil clock uses
// time.Now.
func NewClockSource(duration float64, now func() time.Time) *ClockSource {
	if now == nil {
		now = time.Now
	}
	return &ClockSource{
		now:      now,
		duration: duration,
		status:   AudioReady,
	}
}

// Start begins the clock.
func (c *ClockSource) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.status {
	case AudioPlaying:
		return nil
	case AudioFailed:
		return errors.New("clock source failed")
	}
	c.startedAt = c.now()
	c.position = 0
	c.status = AudioPlaying
	return nil
}

// Stop pauses and rewinds.
func (c *ClockSource) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == AudioPlaying {
		c.status = AudioPaused
	}
	c.position = 0
}

// Status reports Ended once the clock passes the duration.
func (c *ClockSource) Status() AudioStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advance()
	return c.status
}

// CurrentTime returns seconds since Start, capped at the duration.
func (c *ClockSource) CurrentTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advance()
	return c.position
}

// Duration returns the length given at construction.
func (c *ClockSource) Duration() float64 {
	return c.duration
}

// Err always returns nil.
func (c *ClockSource) Err() error { return nil }

func (c *ClockSource) advance() {
	if c.status != AudioPlaying {
		return
	}
	c.position = c.now().Sub(c.startedAt).Seconds()
	if c.position >= c.duration {
		c.position = c.duration
		c.status = AudioEnded
	}
}

// ClockFactory builds ClockSources whose length is probed from the
// utterance audio.
func ClockFactory(now func() time.Time) AudioFactory {
	return AudioFactoryFunc(func(ctx context.Context, u Utterance) (AudioSource, error) {
		if len(u.Audio) == 0 {
			return nil, ErrEmptyAudio
		}
		d, err := ProbeDuration(u.Audio, u.Format)
		if err != nil {
			d = EstimateDuration(len(u.Audio))
		}
		return NewClockSource(d, now), nil
	})
}

// ProbeDuration decodes the audio header and returns its length in seconds.
// format may be empty, in which case it is sniffed from the payload.
func ProbeDuration(audio []byte, format string) (float64, error) {
	var (
		stream beep.StreamSeekCloser
		f      beep.Format
		err    error
	)

	switch sniffFormat(audio, format) {
	case "wav":
		stream, f, err = wav.Decode(bytes.NewReader(audio))
	case "mp3":
		stream, f, err = mp3.Decode(nopSeekCloser{bytes.NewReader(audio)})
	default:
		return 0, ErrUnknownFormat
	}
	if err != nil {
		return 0, fmt.Errorf("failed to decode audio: %w", err)
	}
	defer stream.Close()

	n := stream.Len()
	if n <= 0 || f.SampleRate <= 0 {
		return 0, fmt.Errorf("audio has no samples")
	}
	return f.SampleRate.D(n).Seconds(), nil
}

// EstimateDuration guesses the length of a compressed payload from its size.
func EstimateDuration(size int) float64 {
	d := float64(size) / bytesPerSecond
	if d < minEstimatedDuration {
		return minEstimatedDuration
	}
	return d
}

func sniffFormat(audio []byte, hint string) string {
	switch strings.ToLower(strings.TrimPrefix(hint, ".")) {
	case "wav", "wave", "audio/wav", "audio/x-wav":
		return "wav"
	case "mp3", "mpeg", "audio/mpeg", "audio/mp3":
		return "mp3"
	}

	switch {
	case len(audio) >= 12 && string(audio[0:4]) == "RIFF" && string(audio[8:12]) == "WAVE":
		return "wav"
	case len(audio) >= 3 && string(audio[0:3]) == "ID3":
		return "mp3"
	case len(audio) >= 2 && audio[0] == 0xFF && audio[1]&0xE0 == 0xE0:
		return "mp3"
	}
	return ""
}

// nopSeekCloser keeps the reader seekable so the mp3 decoder can compute
// the stream length.
type nopSeekCloser struct {
	*bytes.Reader
}

func (nopSeekCloser) Close() error { return nil }
