package lipsync

import "math"

// DefaultTransitionDuration is the time (seconds) taken to ease between frames.
const DefaultTransitionDuration = 0.05

// Interpolator eases the displayed sprite frame toward a target frame.
//
// It has two states: idle (showing target) and transitioning (blending
// from the previously shown frame to target). One Interpolator lives for
// the whole avatar display session and is Reset between utterances.
// It is not safe for concurrent use; the playback coordinator serialises
// access.
type Interpolator struct {
	current         int
	target          int
	transitionStart float64
	transitioning   bool
	duration        float64
}

// NewInterpolator creates an idle interpolator showing frame 1.
// A non-positive duration selects DefaultTransitionDuration.
func NewInterpolator(duration float64) *Interpolator {
	if duration <= 0 || !finite(duration) {
		duration = DefaultTransitionDuration
	}
	return &Interpolator{
		current:  1,
		target:   1,
		duration: duration,
	}
}

// SetTargetFrame starts a transition to frame at time now. Re-targeting the
// current target is a no-op.
func (ip *Interpolator) SetTargetFrame(frame int, now float64) {
	if frame == ip.target {
		return
	}
	ip.current = ip.target
	ip.target = frame
	ip.transitionStart = now
	ip.transitioning = true
}

// Frame returns the frame to display at time now.
func (ip *Interpolator) Frame(now float64) int {
	if !ip.transitioning {
		return ip.target
	}

	progress := (now - ip.transitionStart) / ip.duration
	if progress < 0 {
		progress = 0
	}
	if progress >= 1 {
		ip.transitioning = false
		ip.current = ip.target
		return ip.target
	}

	eased := easeInOut(progress)
	blended := float64(ip.current) + float64(ip.target-ip.current)*eased
	return int(math.Round(blended))
}

// Reset drops any partial transition and settles on the target frame.
func (ip *Interpolator) Reset() {
	ip.transitioning = false
	ip.current = ip.target
	ip.transitionStart = 0
}

// Transitioning reports whether a transition is in progress.
func (ip *Interpolator) Transitioning() bool { return ip.transitioning }

// Target returns the frame being eased toward.
func (ip *Interpolator) Target() int { return ip.target }

// Current returns the frame the active transition started from.
func (ip *Interpolator) Current() int { return ip.current }

// Duration returns the fixed transition length in seconds.
func (ip *Interpolator) Duration() float64 { return ip.duration }

func easeInOut(p float64) float64 {
	if p < 0.5 {
		return 2 * p * p
	}
	q := 1 - p
	return 1 - 2*q*q
}
