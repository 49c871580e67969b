// Package lipsync resolves timed viseme sequences into sprite frames.
//
// Everything in this package is pure: no I/O, no goroutines, no clocks.
// Times are seconds on the audio playback clock.
package lipsync

import (
	"encoding/json"
	"math"
)

// Category is one of the eight mouth-shape classes the avatars are drawn for.
type Category int

const (
	CategorySilence     Category = 0 // sil, pau
	CategoryOpen        Category = 1 // A, E sounds
	CategorySmile       Category = 2 // I sounds
	CategoryRound       Category = 3 // O sounds
	CategoryPursed      Category = 4 // U sounds
	CategoryClosed      Category = 5 // M, B, P
	CategoryTeethOnLip  Category = 6 // F, V
	CategoryTeethShown  Category = 7 // Th, S, Z
	categoryCount                = 8
)

var categoryNames = [categoryCount]string{
	"silence",
	"open",
	"smile",
	"round",
	"pursed",
	"closed",
	"teeth_lip",
	"teeth",
}

// String returns the canonical category name.
func (c Category) String() string {
	if !c.Valid() {
		return "unknown"
	}
	return categoryNames[c]
}

// Valid reports whether c is within 0..7.
func (c Category) Valid() bool {
	return c >= 0 && c < categoryCount
}

// Categories returns all categories in numeric order.
func Categories() []Category {
	out := make([]Category, categoryCount)
	for i := range out {
		out[i] = Category(i)
	}
	return out
}

// VisemeEvent is one phoneme-class interval [Start, Start+Duration).
type VisemeEvent struct {
	Category Category `json:"viseme"`
	Start    float64  `json:"start"`
	Duration float64  `json:"duration"`
}

// End returns Start+Duration. Zero-duration events are degenerate: their
// interval is empty and only the nearest-neighbour fallback can match them.
func (e VisemeEvent) End() float64 {
	return e.Start + e.Duration
}

// Contains reports whether t falls inside [Start, End).
func (e VisemeEvent) Contains(t float64) bool {
	return e.Start <= t && t < e.End()
}

// distance returns how far t lies outside the event interval, 0 inside.
func (e VisemeEvent) distance(t float64) float64 {
	switch {
	case t < e.Start:
		return e.Start - t
	case t >= e.End():
		return t - e.End()
	default:
		return 0
	}
}

// wireEvent tolerates the shapes the speech service has produced over
// time: "viseme" or "category", optional "end", nulls and missing fields.
type wireEvent struct {
	Viseme   *float64 `json:"viseme"`
	Category *float64 `json:"category"`
	Start    *float64 `json:"start"`
	Duration *float64 `json:"duration"`
	End      *float64 `json:"end"`
}

// UnmarshalJSON decodes an event, defaulting missing numeric fields to 0.
func (e *VisemeEvent) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*e = VisemeEvent{}

	raw := w.Viseme
	if raw == nil {
		raw = w.Category
	}
	if raw != nil && finite(*raw) {
		if c := Category(int(*raw)); c.Valid() {
			e.Category = c
		}
	}

	if w.Start != nil && finite(*w.Start) {
		e.Start = *w.Start
	}

	switch {
	case w.Duration != nil && finite(*w.Duration):
		e.Duration = *w.Duration
	case w.End != nil && finite(*w.End):
		e.Duration = *w.End - e.Start
	}
	if e.Duration < 0 {
		e.Duration = 0
	}

	return nil
}

// Sequence is an ordered list of viseme events for one utterance.
// Events are sorted by non-decreasing Start and never mutated once the
// sequence is handed to playback.
type Sequence []VisemeEvent

// EstimatedDuration is the end of the last event, or 0 for an empty sequence.
func (s Sequence) EstimatedDuration() float64 {
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1].End()
}

// Sorted reports whether starts are non-decreasing.
func (s Sequence) Sorted() bool {
	for i := 1; i < len(s); i++ {
		if s[i].Start < s[i-1].Start {
			return false
		}
	}
	return true
}

// Clone returns a copy that shares no storage with s.
func (s Sequence) Clone() Sequence {
	if s == nil {
		return nil
	}
	out := make(Sequence, len(s))
	copy(out, s)
	return out
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
