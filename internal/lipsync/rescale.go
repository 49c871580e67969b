package lipsync

// Rescale stretches seq so its timing matches the real audio length.
//
// When either duration is non-positive (or not finite) seq is returned
// as-is. Otherwise a new sequence is built with every Start and Duration
// multiplied by actual/estimated; seq itself is never modified. Applying
// Rescale twice compounds the factor, so callers run it once per utterance.
func Rescale(seq Sequence, estimated, actual float64) Sequence {
	if !finite(estimated) || !finite(actual) || estimated <= 0 || actual <= 0 {
		return seq
	}

	scale := actual / estimated
	out := make(Sequence, len(seq))
	for i, e := range seq {
		out[i] = VisemeEvent{
			Category: e.Category,
			Start:    e.Start * scale,
			Duration: e.Duration * scale,
		}
	}
	return out
}

// ScaleFactor returns the multiplier Rescale would apply (1 for identity).
func ScaleFactor(estimated, actual float64) float64 {
	if !finite(estimated) || !finite(actual) || estimated <= 0 || actual <= 0 {
		return 1
	}
	return actual / estimated
}
