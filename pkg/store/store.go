package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"
)

// PlayerScore is one player's final score inside a stored record.
type PlayerScore struct {
	MemberID    string `json:"memberId"`
	DisplayName string `json:"displayName"`
	Score       int    `json:"score"`
}

// RoundRecord is one of the three phase-2 rounds.
type RoundRecord struct {
	Round   int           `json:"round"`
	Players []PlayerScore `json:"players"`
}

// SummaryRecord holds the per-member sums across phase-2 rounds.
type SummaryRecord struct {
	Players []PlayerScore `json:"players"`
}

// Record is the canonical stored result set for one (guild, phase, year, week, clan).
// Phase 1 carries Players only; phase 2 carries exactly three Rounds and a Summary.
type Record struct {
	WeekNumber int            `json:"weekNumber"`
	Year       int            `json:"year"`
	Clan       string         `json:"clan"`
	Players    []PlayerScore  `json:"players,omitempty"`
	Rounds     []RoundRecord  `json:"rounds,omitempty"`
	Summary    *SummaryRecord `json:"summary,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	CreatedBy  string         `json:"createdBy"`
}

// Key addresses one record in the hierarchical layout
// <root>/phases/guild_<id>/phase<P>/<year>/week-<N>_<clan>.json.
type Key struct {
	Guild string
	Phase int
	Year  int
	Week  int
	Clan  string
}

// WeekEntry is one row of ListAvailableWeeks.
type WeekEntry struct {
	Week      int
	Year      int
	Clans     []string
	CreatedAt time.Time
}

// ErrCorrupt is returned when a record file exists but cannot be decoded.
var ErrCorrupt = errors.New("corrupted result record")

// Store persists result records as JSON files under a root directory. Writes go through a
// temp file and rename so a crash mid-commit leaves either the old or the new record, never
// a partial one. Concurrent reads are safe; writes per key are serialized by the rename.
type Store struct {
	root string
}

// New returns a Store rooted at dir (typically "data").
func New(dir string) *Store {
	return &Store{root: dir}
}

func (s *Store) phaseDir(guild string, phase int) string {
	return filepath.Join(s.root, "phases", "guild_"+guild, fmt.Sprintf("phase%d", phase))
}

func (s *Store) path(k Key) string {
	return filepath.Join(s.phaseDir(k.Guild, k.Phase), strconv.Itoa(k.Year),
		fmt.Sprintf("week-%d_%s.json", k.Week, k.Clan))
}

// Exists reports whether a record is stored under k.
func (s *Store) Exists(k Key) bool {
	_, err := os.Stat(s.path(k))
	return err == nil
}

// Get loads the record under k. A missing file is not an error: Get returns (nil, nil).
func (s *Store) Get(k Key) (*Record, error) {
	data, err := os.ReadFile(s.path(k))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path(k), err)
	}
	return &rec, nil
}

// Put stores rec under k, creating parent directories as needed. When a prior record exists
// its CreatedBy is preserved: edits replace data, not authorship.
func (s *Store) Put(k Key, rec *Record) error {
	if prior, err := s.Get(k); err == nil && prior != nil && prior.CreatedBy != "" {
		rec.CreatedBy = prior.CreatedBy
	}
	path := s.path(k)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".week-*.tmp")
	if err != nil {
		return fmt.Errorf("temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close record: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename record: %w", err)
	}
	return nil
}

var weekFileRE = regexp.MustCompile(`^week-(\d+)_(.+)\.json$`)

// ListAvailableWeeks enumerates the stored weeks for (guild, phase), newest year/week first,
// with the clans present and the latest createdAt among them.
func (s *Store) ListAvailableWeeks(guild string, phase int) ([]WeekEntry, error) {
	base := s.phaseDir(guild, phase)
	years, err := os.ReadDir(base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list years: %w", err)
	}
	type yw struct{ year, week int }
	entries := map[yw]*WeekEntry{}
	for _, yd := range years {
		if !yd.IsDir() {
			continue
		}
		year, err := strconv.Atoi(yd.Name())
		if err != nil {
			continue
		}
		files, err := os.ReadDir(filepath.Join(base, yd.Name()))
		if err != nil {
			continue
		}
		for _, f := range files {
			m := weekFileRE.FindStringSubmatch(f.Name())
			if m == nil {
				continue
			}
			week, _ := strconv.Atoi(m[1])
			clan := m[2]
			key := yw{year: year, week: week}
			e, ok := entries[key]
			if !ok {
				e = &WeekEntry{Week: week, Year: year}
				entries[key] = e
			}
			e.Clans = append(e.Clans, clan)
			rec, err := s.Get(Key{Guild: guild, Phase: phase, Year: year, Week: week, Clan: clan})
			if err == nil && rec != nil && rec.CreatedAt.After(e.CreatedAt) {
				e.CreatedAt = rec.CreatedAt
			}
		}
	}
	out := make([]WeekEntry, 0, len(entries))
	for _, e := range entries {
		sort.Strings(e.Clans)
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year > out[j].Year
		}
		return out[i].Week > out[j].Week
	})
	return out, nil
}

// HistoricalBests scans the phase-1 records of (guild, clan), excluding the given week, and
// returns every member's maximum score in a single directory walk. Missing directories yield
// an empty map.
func (s *Store) HistoricalBests(guild string, exclude WeekInfo, clan string) (map[string]int, error) {
	out := map[string]int{}
	base := s.phaseDir(guild, 1)
	years, err := os.ReadDir(base)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("list years: %w", err)
	}
	for _, yd := range years {
		if !yd.IsDir() {
			continue
		}
		year, err := strconv.Atoi(yd.Name())
		if err != nil {
			continue
		}
		files, err := os.ReadDir(filepath.Join(base, yd.Name()))
		if err != nil {
			continue
		}
		for _, f := range files {
			m := weekFileRE.FindStringSubmatch(f.Name())
			if m == nil || m[2] != clan {
				continue
			}
			week, _ := strconv.Atoi(m[1])
			if year == exclude.Year && week == exclude.Week {
				continue
			}
			rec, err := s.Get(Key{Guild: guild, Phase: 1, Year: year, Week: week, Clan: clan})
			if err != nil || rec == nil {
				continue
			}
			for _, p := range rec.Players {
				if cur, ok := out[p.MemberID]; !ok || p.Score > cur {
					out[p.MemberID] = p.Score
				}
			}
		}
	}
	return out, nil
}

// HistoricalBest is the single-member view over HistoricalBests. ok is false when the member
// never scored before.
func (s *Store) HistoricalBest(guild, memberID string, exclude WeekInfo, clan string) (int, bool, error) {
	bests, err := s.HistoricalBests(guild, exclude, clan)
	if err != nil {
		return 0, false, err
	}
	best, ok := bests[memberID]
	return best, ok, nil
}

// RecomputeSummary rebuilds a phase-2 summary as the per-member sum across rounds. Display
// names follow the latest round a member appears in; ordering is score descending then
// member id for determinism.
func RecomputeSummary(rounds []RoundRecord) *SummaryRecord {
	sums := map[string]int{}
	names := map[string]string{}
	for _, r := range rounds {
		for _, p := range r.Players {
			sums[p.MemberID] += p.Score
			names[p.MemberID] = p.DisplayName
		}
	}
	players := make([]PlayerScore, 0, len(sums))
	for id, total := range sums {
		players = append(players, PlayerScore{MemberID: id, DisplayName: names[id], Score: total})
	}
	sort.Slice(players, func(i, j int) bool {
		if players[i].Score != players[j].Score {
			return players[i].Score > players[j].Score
		}
		return players[i].MemberID < players[j].MemberID
	})
	return &SummaryRecord{Players: players}
}

// PutPhase2Round replaces one round of a committed phase-2 record and recomputes the summary
// from the sum over rounds per member. CreatedBy of the prior record is preserved by Put.
func (s *Store) PutPhase2Round(k Key, round int, players []PlayerScore) error {
	if round < 1 || round > 3 {
		return fmt.Errorf("round %d out of range", round)
	}
	rec, err := s.Get(k)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("no phase-2 record for guild=%s year=%d week=%d clan=%s", k.Guild, k.Year, k.Week, k.Clan)
	}
	if len(rec.Rounds) != 3 {
		return fmt.Errorf("%w: expected 3 rounds, have %d", ErrCorrupt, len(rec.Rounds))
	}
	rec.Rounds[round-1] = RoundRecord{Round: round, Players: players}
	rec.Summary = RecomputeSummary(rec.Rounds)
	return s.Put(k, rec)
}
