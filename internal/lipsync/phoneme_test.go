package lipsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhonemeCategory(t *testing.T) {
	cases := map[string]Category{
		"AH":  CategoryOpen,
		"AH0": CategoryOpen,
		"IY1": CategorySmile,
		"OW":  CategoryRound,
		"UW":  CategoryPursed,
		"M":   CategoryClosed,
		"F":   CategoryTeethOnLip,
		"SH":  CategoryTeethShown,
		"ER":  CategoryOpen,
		"er":  CategorySmile,
		"w":   CategoryPursed,
		"sil": CategorySilence,
		"":    CategorySilence,
		"QQ":  CategorySilence,
		"xyz": CategorySilence,
	}
	for symbol, want := range cases {
		assert.Equal(t, want, PhonemeCategory(symbol), "symbol %q", symbol)
	}
}

func TestFromPhonemes(t *testing.T) {
	seq := FromPhonemes([]Phoneme{
		{Symbol: "HH", Start: 0, End: 0.1},
		{Symbol: "OW", Start: 0.1, End: 0.3},
		{Symbol: "SIL", Start: 0.3, End: 0.2},
	})
	require.Len(t, seq, 3)
	assert.Equal(t, CategoryOpen, seq[0].Category)
	assert.Equal(t, CategoryRound, seq[1].Category)
	assert.InDelta(t, 0.2, seq[1].Duration, 1e-12)
	assert.Equal(t, 0.0, seq[2].Duration)
}

func TestEstimateFromText(t *testing.T) {
	empty := EstimateFromText("   ", 0)
	require.Len(t, empty, 1)
	assert.Equal(t, CategorySilence, empty[0].Category)

	seq := EstimateFromText("hello mom", 2.0)
	require.NotEmpty(t, seq)
	assert.True(t, seq.Sorted())
	assert.InDelta(t, 2.0, seq.EstimatedDuration(), 1e-9)

	// "mom" has three letters, no inserted closure
	tailEvents := seq[len(seq)-3:]
	assert.Equal(t, []Category{CategoryClosed, CategoryRound, CategoryClosed},
		[]Category{tailEvents[0].Category, tailEvents[1].Category, tailEvents[2].Category})

	guessed := EstimateFromText("one two three", 0)
	assert.InDelta(t, 3*SecondsPerWord, guessed.EstimatedDuration(), 1e-9)
}
