package match

import "strings"

// polishLetters are the diacritic letters that survive normalization. Nicknames in the
// communities we serve mix plain Latin and Polish spellings, so stripping diacritics here
// would collapse distinct nicks (e.g. "Zolw" vs "Żółw" are different people).
const polishLetters = "ąćęłńóśźż"

// Normalize lowercases s and strips everything that is not a Latin letter, a digit, or a
// Polish diacritic letter. The result can be empty; an empty result means "never matches".
// Normalize(Normalize(s)) == Normalize(s) for every s.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case strings.ContainsRune(polishLetters, r):
			b.WriteRune(r)
		}
	}
	return b.String()
}
