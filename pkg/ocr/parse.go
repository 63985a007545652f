package ocr

import (
	"regexp"
	"strconv"
	"strings"
)

// Reading is one parsed leaderboard row: the raw OCR nickname token, the numeric score, and
// whether the recognizer flagged the row as low-confidence. Score 0 is a distinguished value
// consumed by the punishment subsystem downstream.
type Reading struct {
	Nick      string
	Score     int
	Uncertain bool
}

// UncertainMarker is appended by the recognizer to rows it is unsure about.
const UncertainMarker = "©"

// lineRE captures the leaderboard row grammar: a leading alphabetic token (Polish diacritics
// allowed, digits/underscore/dot/dash permitted after the first rune), whitespace, and a
// trailing non-negative integer. Anything else on a line disqualifies it.
var lineRE = regexp.MustCompile(`^([A-Za-zĄĆĘŁŃÓŚŹŻąćęłńóśźż][A-Za-z0-9ĄĆĘŁŃÓŚŹŻąćęłńóśźż._\-]*)\s+([0-9]+)$`)

// ParseLines extracts (nick, score, uncertain) readings from raw OCR text, in source order.
// Lines that do not match the row grammar are dropped; the function is line-local and
// idempotent over its input.
func ParseLines(text string) []Reading {
	var out []Reading
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		// The recognizer usually appends the marker at end of line, but it can also land
		// directly after the nick ("Dave© 0"). Either way the whole row is uncertain.
		uncertain := false
		if strings.Contains(line, UncertainMarker) {
			uncertain = true
			line = strings.TrimSpace(strings.ReplaceAll(line, UncertainMarker, ""))
		}
		m := lineRE.FindStringSubmatch(line)
		if len(m) != 3 {
			continue
		}
		score, err := strconv.Atoi(m[2])
		if err != nil {
			// regex guarantees digits; Atoi can still overflow on absurd runs
			continue
		}
		out = append(out, Reading{Nick: m[1], Score: score, Uncertain: uncertain})
	}
	return out
}
