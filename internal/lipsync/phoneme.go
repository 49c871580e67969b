package lipsync

import (
	"strings"
	"unicode"
)

// Phoneme is a timed phoneme as produced by forced aligners and TTS
// alignment APIs.
type Phoneme struct {
	Symbol string  `json:"phoneme"`
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
}

// ARPABET (upper case) symbol to category.
var arpabetCategories = map[string]Category{
	"SIL": CategorySilence, "PAU": CategorySilence, "SP": CategorySilence,

	"AA": CategoryOpen, "AE": CategoryOpen, "AH": CategoryOpen, "AW": CategoryOpen, "AY": CategoryOpen,
	"EH": CategoryOpen, "EY": CategoryOpen, "ER": CategoryOpen,

	"IH": CategorySmile, "IY": CategorySmile, "Y": CategorySmile,

	"AO": CategoryRound, "OW": CategoryRound, "OY": CategoryRound,

	"UH": CategoryPursed, "UW": CategoryPursed, "W": CategoryPursed,

	"B": CategoryClosed, "M": CategoryClosed, "P": CategoryClosed,

	"F": CategoryTeethOnLip, "V": CategoryTeethOnLip,

	"TH": CategoryTeethShown, "DH": CategoryTeethShown, "S": CategoryTeethShown,
	"Z": CategoryTeethShown, "SH": CategoryTeethShown, "ZH": CategoryTeethShown,
	"CH": CategoryTeethShown, "JH": CategoryTeethShown,

	"D": CategoryOpen, "G": CategoryOpen, "K": CategoryOpen, "L": CategoryOpen,
	"N": CategoryOpen, "NG": CategoryOpen, "T": CategoryOpen, "HH": CategoryOpen,
	"R": CategorySmile,
}

// Lower-case aligner symbols. These differ from ARPABET in a few places
// (er and w/y are grouped differently).
var phoneCategories = map[string]Category{
	"sil": CategorySilence, "pau": CategorySilence,

	"aa": CategoryOpen, "ae": CategoryOpen, "ah": CategoryOpen, "aw": CategoryOpen, "ay": CategoryOpen,
	"eh": CategoryOpen, "ey": CategoryOpen,

	"er": CategorySmile, "ih": CategorySmile, "iy": CategorySmile,

	"ao": CategoryRound, "ow": CategoryRound, "oy": CategoryRound,

	"uh": CategoryPursed, "uw": CategoryPursed,

	"b": CategoryClosed, "m": CategoryClosed, "p": CategoryClosed,

	"f": CategoryTeethOnLip, "v": CategoryTeethOnLip,

	"dh": CategoryTeethShown, "th": CategoryTeethShown, "s": CategoryTeethShown,
	"z": CategoryTeethShown, "sh": CategoryTeethShown, "zh": CategoryTeethShown,

	"d": CategoryOpen, "g": CategoryOpen, "k": CategoryOpen, "l": CategoryOpen, "n": CategoryOpen,
	"r": CategorySmile, "t": CategoryOpen, "w": CategoryPursed, "y": CategorySmile,
	"ch": CategoryTeethShown, "jh": CategoryTeethShown, "ng": CategoryOpen, "hh": CategoryOpen,
}

// PhonemeCategory maps a phoneme symbol to its category. Upper-case input
// is read as ARPABET (stress digits such as "AH0" are ignored); anything
// else uses the aligner table. Unknown symbols are silence.
func PhonemeCategory(symbol string) Category {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return CategorySilence
	}

	if isUpper(symbol) {
		if c, ok := arpabetCategories[symbol]; ok {
			return c
		}
		trimmed := strings.TrimRightFunc(symbol, unicode.IsDigit)
		if c, ok := arpabetCategories[trimmed]; ok {
			return c
		}
		if len(trimmed) >= 2 {
			if c, ok := arpabetCategories[trimmed[:2]]; ok {
				return c
			}
		}
		return CategorySilence
	}

	if c, ok := phoneCategories[strings.ToLower(symbol)]; ok {
		return c
	}
	return CategorySilence
}

// FromPhonemes converts aligned phonemes into a viseme sequence.
func FromPhonemes(phonemes []Phoneme) Sequence {
	seq := make(Sequence, 0, len(phonemes))
	for _, p := range phonemes {
		d := p.End - p.Start
		if d < 0 {
			d = 0
		}
		seq = append(seq, VisemeEvent{
			Category: PhonemeCategory(p.Symbol),
			Start:    p.Start,
			Duration: d,
		})
	}
	return seq
}

// SecondsPerWord is the speaking rate assumed when no duration is known.
const SecondsPerWord = 0.4

// EstimateFromText builds a rough sequence from spelling alone. It is only
// used when the speech service returns audio without alignment data.
// A non-positive duration is estimated from the word count.
func EstimateFromText(text string, duration float64) Sequence {
	words := strings.Fields(text)
	if len(words) == 0 {
		return Sequence{{Category: CategorySilence, Start: 0, Duration: 0.5}}
	}
	if duration <= 0 || !finite(duration) {
		duration = float64(len(words)) * SecondsPerWord
	}

	perWord := duration / float64(len(words))
	seq := make(Sequence, 0, len(text))
	now := 0.0

	for _, word := range words {
		shapes := spellingCategories(strings.ToLower(word))
		step := perWord / float64(len(shapes))
		for _, c := range shapes {
			seq = append(seq, VisemeEvent{Category: c, Start: now, Duration: step})
			now += step
		}
	}
	return seq
}

func spellingCategories(word string) []Category {
	out := make([]Category, 0, len(word)+1)
	for _, r := range word {
		switch {
		case r == 'a' || r == 'e':
			out = append(out, CategoryOpen)
		case r == 'i':
			out = append(out, CategorySmile)
		case r == 'o':
			out = append(out, CategoryRound)
		case r == 'u':
			out = append(out, CategoryPursed)
		case strings.ContainsRune("mbp", r):
			out = append(out, CategoryClosed)
		case strings.ContainsRune("fv", r):
			out = append(out, CategoryTeethOnLip)
		case strings.ContainsRune("szth", r):
			out = append(out, CategoryTeethShown)
		default:
			out = append(out, CategoryOpen)
		}
	}

	// a short closure in the middle of longer words
	if len(out) > 3 {
		mid := len(out) / 2
		out = append(out[:mid], append([]Category{CategorySilence}, out[mid:]...)...)
	}
	if len(out) == 0 {
		out = append(out, CategorySilence)
	}
	return out
}

func isUpper(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return hasLetter
}
