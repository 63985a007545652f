// Package stats computes the human-facing summary shown to the operator before commit:
// TOP-30 totals, zero-score counts, and per-player movement against historical bests.
package stats

import (
	"sort"

	"cwscore/pkg/store"
)

// Top30Size is how many highest scores enter the weekly total.
const Top30Size = 30

// PlayerDelta is one player's movement against their historical best. HasBest is false for
// players with no prior phase-1 score; Delta is meaningless then.
type PlayerDelta struct {
	MemberID    string
	DisplayName string
	Score       int
	Best        int
	Delta       int
	HasBest     bool
}

// Summary aggregates one result set for the final confirmation prompt.
type Summary struct {
	Top30Sum  int
	ZeroCount int
	AboveZero int
	Deltas    []PlayerDelta
	Progress  int // sum of positive deltas over players with current score > 0
	Regress   int // sum of |negative deltas| over players with current score > 0
}

// HistoricalBestFunc resolves a member's best prior phase-1 score. ok=false means no history.
type HistoricalBestFunc func(memberID string) (best int, ok bool)

// Top30Sum returns the sum of the 30 highest scores (all of them when fewer than 30).
func Top30Sum(players []store.PlayerScore) int {
	scores := make([]int, len(players))
	for i, p := range players {
		scores[i] = p.Score
	}
	sort.Sort(sort.Reverse(sort.IntSlice(scores)))
	if len(scores) > Top30Size {
		scores = scores[:Top30Size]
	}
	sum := 0
	for _, s := range scores {
		sum += s
	}
	return sum
}

// Compute builds the full phase-1 summary. best may be nil when no history is wanted
// (e.g. phase 2 rounds); deltas are then omitted.
func Compute(players []store.PlayerScore, best HistoricalBestFunc) Summary {
	out := Summary{Top30Sum: Top30Sum(players)}
	for _, p := range players {
		if p.Score == 0 {
			out.ZeroCount++
		} else {
			out.AboveZero++
		}
		if best == nil {
			continue
		}
		h, ok := best(p.MemberID)
		d := PlayerDelta{MemberID: p.MemberID, DisplayName: p.DisplayName, Score: p.Score}
		if ok && h > 0 {
			d.Best = h
			d.Delta = p.Score - h
			d.HasBest = true
			if p.Score > 0 {
				if d.Delta > 0 {
					out.Progress += d.Delta
				} else if d.Delta < 0 {
					out.Regress += -d.Delta
				}
			}
		}
		out.Deltas = append(out.Deltas, d)
	}
	return out
}

// Phase2Top30Total sums each round's own TOP-30, not the TOP-30 of per-member summed scores.
func Phase2Top30Total(rounds []store.RoundRecord) int {
	total := 0
	for _, r := range rounds {
		total += Top30Sum(r.Players)
	}
	return total
}
