// Package playback drives one utterance at a time: it owns the audio source,
// runs the per-frame lip-sync loop against the audio clock and publishes
// sprite frame updates to subscribers.
package playback

import (
	"context"
	"errors"

	"github.com/normanking/spritetalk/internal/lipsync"
)

var (
	// ErrPlaybackInProgress is returned by Submit while an utterance is
	// loading or playing.
	ErrPlaybackInProgress = errors.New("playback already in progress")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("playback coordinator closed")

	// ErrMetadataTimeout fails an utterance whose audio never became playable.
	ErrMetadataTimeout = errors.New("timed out waiting for audio metadata")

	// ErrEmptyAudio rejects an utterance without an audio payload.
	ErrEmptyAudio = errors.New("empty audio payload")
)

// State is the lifecycle state of a playback session.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StatePlaying State = "playing"
	StateEnded   State = "ended"
	StateFailed  State = "failed"
)

// Active reports whether the state holds the playback guard.
func (s State) Active() bool {
	return s == StateLoading || s == StatePlaying
}

// Utterance is one piece of synthesized speech with its viseme timeline.
type Utterance struct {
	ID              string           `json:"id"`
	Text            string           `json:"text"`
	Audio           []byte           `json:"-"`
	Format          string           `json:"format"`
	Visemes         lipsync.Sequence `json:"visemes"`
	NominalDuration float64          `json:"duration"`
}

// Update is published to subscribers on every rendered frame and on every
// state change.
type Update struct {
	UtteranceID string           `json:"utteranceId"`
	State       State            `json:"state"`
	Frame       int              `json:"frame"`
	Viseme      lipsync.Category `json:"viseme"`
	// VisemeIndex is the last event the clock landed in; 0 once playback stops.
	VisemeIndex int              `json:"visemeIndex"`
	Progress    float64          `json:"progress"`
	Speaking    bool             `json:"speaking"`
	Time        float64          `json:"time"`
	Duration    float64          `json:"duration"`
	Error       string           `json:"error,omitempty"`
}

// AudioStatus is what an audio source reports about itself.
type AudioStatus int

const (
	// AudioLoading means metadata (the real duration) is not known yet.
	AudioLoading AudioStatus = iota
	// AudioReady means metadata is known and playback has not begun.
	AudioReady
	AudioPlaying
	AudioPaused
	AudioEnded
	AudioFailed
)

var audioStatusNames = map[AudioStatus]string{
	AudioLoading: "loading",
	AudioReady:   "ready",
	AudioPlaying: "playing",
	AudioPaused:  "paused",
	AudioEnded:   "ended",
	AudioFailed:  "failed",
}

func (s AudioStatus) String() string {
	if name, ok := audioStatusNames[s]; ok {
		return name
	}
	return "unknown"
}

// AudioSource is one playable audio resource. Implementations must be safe
// for concurrent use: the coordinator polls from the scheduler goroutine
// while the host may report progress from another.
type AudioSource interface {
	// Start begins playback. It must not block until playback ends.
	Start() error
	// Stop pauses, rewinds and releases the resource. Idempotent.
	Stop()
	Status() AudioStatus
	// CurrentTime is the playback position in seconds.
	CurrentTime() float64
	// Duration is the real audio length in seconds, 0 while unknown.
	Duration() float64
	// Err explains an AudioFailed status.
	Err() error
}

// AudioFactory creates the audio source for an utterance.
type AudioFactory interface {
	NewSource(ctx context.Context, u Utterance) (AudioSource, error)
}

// AudioFactoryFunc adapts a function to AudioFactory.
type AudioFactoryFunc func(ctx context.Context, u Utterance) (AudioSource, error)

// NewSource calls f.
func (f AudioFactoryFunc) NewSource(ctx context.Context, u Utterance) (AudioSource, error) {
	return f(ctx, u)
}
