package match

import (
	"log"
	"unicode/utf8"
)

// RosterEntry is one member of the guild roster snapshot taken at session open.
// Alias is the member's chat handle; DisplayName is the server nickname shown in game.
type RosterEntry struct {
	MemberID    string
	DisplayName string
	Alias       string
}

// Result describes the member chosen for an OCR token.
type Result struct {
	MemberID    string
	DisplayName string
	Similarity  float64
}

// Matcher matches OCR nickname tokens against a roster snapshot. Threshold is the minimum
// similarity for a positive match (default 0.7). LogThreshold is the lower floor for
// near-miss diagnostics when Verbose is on; it never affects matching.
type Matcher struct {
	Threshold    float64
	LogThreshold float64
	Verbose      bool
}

// DefaultThreshold is the source community's tuned minimum similarity.
const DefaultThreshold = 0.7

// DefaultLogThreshold gates near-miss logging only, never matching.
const DefaultLogThreshold = 0.3

// NewMatcher returns a Matcher with the default thresholds.
func NewMatcher() *Matcher {
	return &Matcher{Threshold: DefaultThreshold, LogThreshold: DefaultLogThreshold}
}

// Best returns the roster member best matching token, or ok=false when no member reaches
// the threshold. Ties are broken by longer normalized display name (a longer exact-ish hit
// is more specific), then lexicographic member id so the outcome is deterministic.
func (m *Matcher) Best(token string, roster []RosterEntry) (Result, bool) {
	normTok := Normalize(token)
	if normTok == "" {
		return Result{}, false
	}
	var (
		best      Result
		bestNorm  string
		bestFound bool
	)
	for _, entry := range roster {
		normName := Normalize(entry.DisplayName)
		sim := Similarity(normTok, normName)
		if entry.Alias != "" {
			if s := Similarity(normTok, Normalize(entry.Alias)); s > sim {
				sim = s
			}
		}
		if !bestFound || betterCandidate(sim, normName, entry.MemberID, best.Similarity, bestNorm, best.MemberID) {
			best = Result{MemberID: entry.MemberID, DisplayName: entry.DisplayName, Similarity: sim}
			bestNorm = normName
			bestFound = true
		}
	}
	if !bestFound || best.Similarity < m.Threshold {
		if m.Verbose && bestFound && best.Similarity >= m.LogThreshold {
			log.Printf("match near-miss token=%q best=%q sim=%.3f threshold=%.2f", token, best.DisplayName, best.Similarity, m.Threshold)
		}
		return Result{}, false
	}
	if m.Verbose {
		log.Printf("match token=%q member=%q sim=%.3f", token, best.DisplayName, best.Similarity)
	}
	return best, true
}

func betterCandidate(sim float64, norm, id string, curSim float64, curNorm, curID string) bool {
	if sim != curSim {
		return sim > curSim
	}
	if nl, cl := utf8.RuneCountInString(norm), utf8.RuneCountInString(curNorm); nl != cl {
		return nl > cl
	}
	return id < curID
}
