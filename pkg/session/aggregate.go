package session

import (
	"fmt"
	"sort"

	"cwscore/pkg/store"
)

// MatchedReading is one leaderboard row after roster matching: Nick is the canonical member
// display name, never the raw OCR token.
type MatchedReading struct {
	MemberID  string
	Nick      string
	Score     int
	Uncertain bool
}

// ImageReadings groups the matched readings of one processed screenshot.
type ImageReadings struct {
	Source   string
	Readings []MatchedReading
}

// Conflict is a nick observed with two or more distinct scores across the session's images.
// Choices are the distinct scores, ascending.
type Conflict struct {
	Nick    string `json:"nick"`
	Choices []int  `json:"choices"`
}

// ReadingSet is the per-session merge of all image readings: for every canonical nick, the
// distinct scores seen and how many images reported each. Iteration preserves the order in
// which nicks first appeared across images.
type ReadingSet struct {
	order     []string
	scores    map[string]map[int]int
	members   map[string]string
	certainly map[string]bool // nick had at least one non-uncertain reading
}

// BuildReadingSet merges per-image readings. Within a single image a nick can only count
// once: the last occurrence wins (leaderboard screenshots scroll, so the later row is the
// fresher crop). Deterministic given the input order.
func BuildReadingSet(images []ImageReadings) *ReadingSet {
	rs := &ReadingSet{
		scores:    map[string]map[int]int{},
		members:   map[string]string{},
		certainly: map[string]bool{},
	}
	for _, img := range images {
		perImage := map[string]MatchedReading{}
		imgOrder := []string{}
		for _, r := range img.Readings {
			if _, seen := perImage[r.Nick]; !seen {
				imgOrder = append(imgOrder, r.Nick)
			}
			perImage[r.Nick] = r
		}
		for _, nick := range imgOrder {
			r := perImage[nick]
			if _, seen := rs.scores[nick]; !seen {
				rs.order = append(rs.order, nick)
				rs.scores[nick] = map[int]int{}
			}
			rs.scores[nick][r.Score]++
			rs.members[nick] = r.MemberID
			if !r.Uncertain {
				rs.certainly[nick] = true
			}
		}
	}
	return rs
}

// Len returns the number of distinct nicks in the set.
func (rs *ReadingSet) Len() int { return len(rs.order) }

// Nicks returns the nicks in first-seen order.
func (rs *ReadingSet) Nicks() []string { return append([]string(nil), rs.order...) }

// MemberID returns the member id recorded for nick.
func (rs *ReadingSet) MemberID(nick string) string { return rs.members[nick] }

// Conflicts returns every nick with two or more distinct scores, in first-seen order.
func (rs *ReadingSet) Conflicts() []Conflict {
	var out []Conflict
	for _, nick := range rs.order {
		if len(rs.scores[nick]) < 2 {
			continue
		}
		choices := make([]int, 0, len(rs.scores[nick]))
		for s := range rs.scores[nick] {
			choices = append(choices, s)
		}
		sort.Ints(choices)
		out = append(out, Conflict{Nick: nick, Choices: choices})
	}
	return out
}

// UncertainNicks returns nicks whose every reading carried the uncertainty marker, in
// first-seen order. These need an explicit operator include/exclude decision.
func (rs *ReadingSet) UncertainNicks() []string {
	var out []string
	for _, nick := range rs.order {
		if !rs.certainly[nick] {
			out = append(out, nick)
		}
	}
	return out
}

// HasScore reports whether score is one of the recorded readings for nick.
func (rs *ReadingSet) HasScore(nick string, score int) bool {
	_, ok := rs.scores[nick][score]
	return ok
}

// Final produces the resolved result set: one score per nick, in first-seen order.
// resolved supplies the operator's conflict choices; excluded marks uncertain nicks the
// operator rejected. It is an error if any conflicted nick is left unresolved.
func (rs *ReadingSet) Final(resolved map[string]int, excluded map[string]bool) ([]store.PlayerScore, error) {
	var out []store.PlayerScore
	for _, nick := range rs.order {
		if excluded[nick] {
			continue
		}
		var score int
		if chosen, ok := resolved[nick]; ok {
			score = chosen
		} else if len(rs.scores[nick]) == 1 {
			for s := range rs.scores[nick] {
				score = s
			}
		} else {
			return nil, fmt.Errorf("unresolved conflict for %q", nick)
		}
		out = append(out, store.PlayerScore{MemberID: rs.members[nick], DisplayName: nick, Score: score})
	}
	return out, nil
}
