package lipsync

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRescale_IdentityWhenDurationUnknown(t *testing.T) {
	seq := Sequence{{Category: CategoryOpen, Start: 0.1, Duration: 0.3}}

	for _, tc := range []struct{ est, act float64 }{
		{0, 2}, {-1, 2}, {1, 0}, {1, -3}, {1, math.NaN()}, {math.Inf(1), 1},
	} {
		out := Rescale(seq, tc.est, tc.act)
		assert.Equal(t, seq, out)
		assert.Equal(t, 1.0, ScaleFactor(tc.est, tc.act))
	}
}

func TestRescale_ScalesEveryEventWithoutMutatingInput(t *testing.T) {
	seq := Sequence{
		{Category: CategoryOpen, Start: 0, Duration: 0.5},
		{Category: CategoryClosed, Start: 0.5, Duration: 0.5},
	}
	original := seq.Clone()

	out := Rescale(seq, seq.EstimatedDuration(), 2.0)
	require.Len(t, out, 2)

	assert.Equal(t, Sequence{
		{Category: CategoryOpen, Start: 0, Duration: 1.0},
		{Category: CategoryClosed, Start: 1.0, Duration: 1.0},
	}, out)
	assert.Equal(t, original, seq)
	assert.Equal(t, CategoryClosed, Lookup(1.2, out))
}

func TestRescale_AppliedTwiceCompounds(t *testing.T) {
	seq := Sequence{{Category: CategoryOpen, Start: 1, Duration: 1}}
	once := Rescale(seq, 2, 3)
	twice := Rescale(once, 2, 3)

	assert.InDelta(t, 1.5, once[0].Start, 1e-12)
	assert.InDelta(t, 2.25, twice[0].Start, 1e-12)
}

func TestSequence_EstimatedDuration(t *testing.T) {
	assert.Equal(t, 0.0, Sequence(nil).EstimatedDuration())
	seq := Sequence{{Start: 0, Duration: 0.2}, {Start: 0.2, Duration: 0.3}}
	assert.InDelta(t, 0.5, seq.EstimatedDuration(), 1e-12)
	assert.True(t, seq.Sorted())
	assert.False(t, Sequence{{Start: 1}, {Start: 0}}.Sorted())
}
