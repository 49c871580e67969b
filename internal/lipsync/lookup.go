package lipsync

import "sort"

// LinearSearchLimit is the sequence length below which Lookup scans linearly.
const LinearSearchLimit = 50

// DefaultNearestWindow is how far (seconds) outside any interval a query
// may fall and still be attributed to the closest event.
const DefaultNearestWindow = 0.2

// Lookup returns the category active at time t.
//
// With no containing interval, t before the end of the final event yields
// the final event's category (gaps between intervals); anything later is
// silence.
func Lookup(t float64, seq Sequence) Category {
	if len(seq) < LinearSearchLimit {
		return LookupLinear(t, seq)
	}
	return LookupBinary(t, seq)
}

// LookupLinear is Lookup using an in-order scan.
func LookupLinear(t float64, seq Sequence) Category {
	if len(seq) == 0 {
		return CategorySilence
	}
	if i := findLinear(t, seq); i >= 0 {
		return seq[i].Category
	}
	return tail(t, seq)
}

// LookupBinary is Lookup using binary search over start order.
func LookupBinary(t float64, seq Sequence) Category {
	if len(seq) == 0 {
		return CategorySilence
	}
	if i := findBinary(t, seq); i >= 0 {
		return seq[i].Category
	}
	return tail(t, seq)
}

// Find returns the index of the event whose interval contains t, or -1.
func Find(t float64, seq Sequence) int {
	if len(seq) < LinearSearchLimit {
		return findLinear(t, seq)
	}
	return findBinary(t, seq)
}

// Resolve returns the category for t and the index of the event that
// produced it (-1 when the answer came from the gap/silence fallback).
//
// Order: containing interval, then the closest event within window
// seconds, then Lookup.
func Resolve(t float64, seq Sequence, window float64) (Category, int) {
	if len(seq) == 0 {
		return CategorySilence, -1
	}
	if i := Find(t, seq); i >= 0 {
		return seq[i].Category, i
	}
	if i := nearest(t, seq, window); i >= 0 {
		return seq[i].Category, i
	}
	return Lookup(t, seq), -1
}

func findLinear(t float64, seq Sequence) int {
	for i, e := range seq {
		if e.Contains(t) {
			return i
		}
	}
	return -1
}

// findBinary locates the last event starting at or before t and walks back
// over zero-width events to the nearest real interval. Intervals do not
// overlap, so that interval is the only one that can contain t.
func findBinary(t float64, seq Sequence) int {
	i := sort.Search(len(seq), func(i int) bool { return seq[i].Start > t }) - 1
	for i >= 0 && seq[i].Duration <= 0 {
		i--
	}
	if i >= 0 && seq[i].Contains(t) {
		return i
	}
	return -1
}

func nearest(t float64, seq Sequence, window float64) int {
	if window <= 0 {
		return -1
	}
	best, bestDist := -1, window
	for i, e := range seq {
		if d := e.distance(t); d <= bestDist {
			if best == -1 || d < bestDist {
				best, bestDist = i, d
			}
		}
	}
	return best
}

func tail(t float64, seq Sequence) Category {
	last := seq[len(seq)-1]
	if t < last.End() {
		return last.Category
	}
	return CategorySilence
}
