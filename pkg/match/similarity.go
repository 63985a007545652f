package match

import (
	"strings"
	"unicode/utf8"

	lev "github.com/agnivade/levenshtein"
)

// foldDiacritics maps Polish diacritic letters onto their ASCII base letters. Used only
// inside the scorer: the recognizer loses diacritics all the time, so the edit distance is
// measured diacritic-insensitively while normalization itself keeps them apart.
var foldDiacritics = strings.NewReplacer(
	"ą", "a", "ć", "c", "ę", "e", "ł", "l", "ń", "n", "ó", "o", "ś", "s", "ź", "z", "ż", "z",
)

// Similarity scores how likely two normalized strings denote the same nickname.
// Result is in [0,1]:
//
//   - identical strings score 1.0 (including two empty strings);
//   - a non-empty substring relation scores 0.95; OCR regularly truncates the tail of a
//     nick when the score column crowds it, so containment is strong evidence;
//   - strings equal after folding Polish diacritics score 0.95, below exact equality so a
//     roster holding both spellings still resolves to the exact one;
//   - otherwise 1 - dist/maxLen over the folded forms, plus a 0.1-weighted length-similarity
//     bonus, capped at 1.0.
//
// Callers are expected to pass Normalize()d inputs; Similarity itself does no folding of
// case or punctuation.
func Similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 0.95
	}
	fa := foldDiacritics.Replace(a)
	fb := foldDiacritics.Replace(b)
	if fa == fb {
		return 0.95
	}
	la := utf8.RuneCountInString(a)
	lb := utf8.RuneCountInString(b)
	maxLen := la
	if lb > maxLen {
		maxLen = lb
	}
	d := lev.ComputeDistance(fa, fb)
	base := 1 - float64(d)/float64(maxLen)
	diff := la - lb
	if diff < 0 {
		diff = -diff
	}
	lenSim := 1 - float64(diff)/float64(maxLen)
	s := base + 0.1*lenSim
	if s > 1 {
		s = 1
	}
	if s < 0 {
		s = 0
	}
	return s
}
