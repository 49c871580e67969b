package lipsync

import "math"

// DefaultCycleRate is how many candidate frames per second are stepped
// through while one viseme is held.
const DefaultCycleRate = 8.0

// DefaultFrame is the closed-mouth idle frame used when nothing else applies.
const DefaultFrame = 1

// FrameMap lists the sprite frames drawn for each category, in cycling order.
type FrameMap map[Category][]int

// Candidates returns the frames for c, falling back to silence and then to
// a single DefaultFrame.
func (m FrameMap) Candidates(c Category) []int {
	if frames, ok := m[c]; ok {
		return frames
	}
	if frames, ok := m[CategorySilence]; ok {
		return frames
	}
	return []int{DefaultFrame}
}

// Clone returns a deep copy.
func (m FrameMap) Clone() FrameMap {
	out := make(FrameMap, len(m))
	for c, frames := range m {
		out[c] = append([]int(nil), frames...)
	}
	return out
}

// SelectorOptions tunes SelectFrameWith.
type SelectorOptions struct {
	CycleRate float64
}

// SelectFrame picks the sprite frame for category at time t using the
// default cycle rate.
func SelectFrame(category Category, seq Sequence, t float64, frames FrameMap) int {
	return SelectFrameWith(category, seq, t, frames, SelectorOptions{CycleRate: DefaultCycleRate})
}

// SelectFrameWith picks the sprite frame for category at time t.
//
// While t is inside an event of exactly this category, the candidate list
// is stepped through at opts.CycleRate so a held viseme still shows some
// mouth movement. Otherwise the first candidate is used.
func SelectFrameWith(category Category, seq Sequence, t float64, frames FrameMap, opts SelectorOptions) int {
	candidates := frames.Candidates(category)
	if len(candidates) == 0 {
		return DefaultFrame
	}

	rate := opts.CycleRate
	if rate <= 0 || !finite(rate) {
		rate = DefaultCycleRate
	}

	for _, e := range seq {
		if e.Category != category || !e.Contains(t) {
			continue
		}
		elapsed := t - e.Start
		idx := int(math.Floor(elapsed*rate)) % len(candidates)
		return candidates[idx]
	}

	return candidates[0]
}
