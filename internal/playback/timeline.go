package playback

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/spritetalk/internal/lipsync"
)

// DefaultTimelineFPS is the sampling rate of RenderTimeline.
const DefaultTimelineFPS = 30.0

// TimelineOptions configures an offline render.
type TimelineOptions struct {
	FPS float64
	// Duration is the real audio length in seconds. 0 probes the utterance
	// audio and then falls back to the viseme timeline.
	Duration           float64
	Frames             lipsync.FrameMap
	TransitionDuration float64
	NearestWindow      float64
	CycleRate          float64
	Logger             zerolog.Logger
}

// RenderTimeline plays u against a simulated clock and returns every
// update the coordinator published, sampled at opts.FPS. It runs the same
// code path as live playback.
func RenderTimeline(u Utterance, opts TimelineOptions) ([]Update, error) {
	fps := opts.FPS
	if fps <= 0 {
		fps = DefaultTimelineFPS
	}

	duration := opts.Duration
	if duration <= 0 && len(u.Audio) > 0 {
		if d, err := ProbeDuration(u.Audio, u.Format); err == nil {
			duration = d
		}
	}
	if duration <= 0 {
		duration = u.Visemes.EstimatedDuration()
	}
	if duration <= 0 {
		duration = u.NominalDuration
	}
	if duration <= 0 {
		return nil, errors.New("cannot determine audio duration")
	}
	if len(u.Audio) == 0 {
		// The clock source never reads the payload.
		u.Audio = []byte{0}
	}

	now := time.Unix(0, 0)
	clock := func() time.Time { return now }
	sched := NewManualScheduler()

	coord := New(Options{
		Audio: AudioFactoryFunc(func(ctx context.Context, _ Utterance) (AudioSource, error) {
			return NewClockSource(duration, clock), nil
		}),
		Scheduler:          sched,
		Frames:             opts.Frames,
		TransitionDuration: opts.TransitionDuration,
		NearestWindow:      opts.NearestWindow,
		CycleRate:          opts.CycleRate,
		Logger:             opts.Logger,
	})
	defer coord.Close()

	var updates []Update
	coord.Subscribe(func(up Update) {
		updates = append(updates, up)
	})

	if err := coord.Submit(context.Background(), u); err != nil {
		return nil, err
	}

	step := time.Duration(float64(time.Second) / fps)
	start := now
	maxSteps := int(duration*fps) + 3
	for i := 0; i <= maxSteps && coord.Playing(); i++ {
		now = start.Add(time.Duration(i) * step)
		sched.Flush(now)
	}
	return updates, nil
}
