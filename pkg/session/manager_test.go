package session

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cwscore/pkg/config"
	"cwscore/pkg/match"
	"cwscore/pkg/ocr"
	"cwscore/pkg/store"
)

type fakeRoster struct{ entries []match.RosterEntry }

func (f fakeRoster) Snapshot(guildID, roleID string) ([]match.RosterEntry, error) {
	return f.entries, nil
}

// scriptedOCR hands out canned recognition texts in submission order.
type scriptedOCR struct {
	mu    sync.Mutex
	texts []string
}

func (s *scriptedOCR) push(texts ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, texts...)
}

func (s *scriptedOCR) recognize(path, whitelist string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.texts) == 0 {
		return "", fmt.Errorf("no scripted text left for %s", path)
	}
	t := s.texts[0]
	s.texts = s.texts[1:]
	return t, nil
}

type eventSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *eventSink) add(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *eventSink) byType(typ string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, ev := range s.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// stubDownload ignores the URL and drops a tiny valid PNG in dir, so the preprocessing step
// has real pixels to chew on.
func stubDownload(url, dir string) (string, error) {
	f, err := os.CreateTemp(dir, "shot-*.png")
	if err != nil {
		return "", err
	}
	f.Close()
	if err := ocr.SaveImage(image.NewNRGBA(image.Rect(0, 0, 8, 8)), f.Name()); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func writeTestConfig(t *testing.T) *config.Provider {
	t.Helper()
	dir := t.TempDir()
	tempDir := filepath.Join(dir, "tmp")
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	doc := fmt.Sprintf(`guilds:
  g1:
    target_roles:
      "0": "role0"
      "1": "role1"
    role_display_names:
      "0": "First Clan"
    timezone: UTC
    ocr:
      preprocessing:
        white_threshold: 200
      temp_dir: %s
      match_threshold: 0.7
`, tempDir)
	path := filepath.Join(dir, "guilds.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	p, err := config.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return p
}

func testRoster() []match.RosterEntry {
	return []match.RosterEntry{
		{MemberID: "m1", DisplayName: "Alice"},
		{MemberID: "m2", DisplayName: "Bob"},
		{MemberID: "m3", DisplayName: "Carol"},
		{MemberID: "m4", DisplayName: "Dave"},
	}
}

func newTestManager(t *testing.T) (*Manager, *scriptedOCR, *eventSink) {
	t.Helper()
	script := &scriptedOCR{}
	sink := &eventSink{}
	m := NewManager(writeTestConfig(t), store.New(t.TempDir()), fakeRoster{testRoster()}, nil)
	m.Download = stubDownload
	m.Recognize = script.recognize
	m.Notify = sink.add
	m.now = func() time.Time { return time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC) }
	t.Cleanup(m.Shutdown)
	return m, script, sink
}

func mustOpen(t *testing.T, m *Manager, operator string, phase int, clan string) *Snapshot {
	t.Helper()
	res, err := m.Open(OpenRequest{GuildID: "g1", OperatorID: operator, Phase: phase, Clan: clan})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if res.Session == nil {
		t.Fatalf("expected a session, got %+v", res)
	}
	return res.Session
}

func findEvent(events []Event, typ string) *Event {
	for i := range events {
		if events[i].Type == typ {
			return &events[i]
		}
	}
	return nil
}

func TestOpenValidation(t *testing.T) {
	m, _, _ := newTestManager(t)
	if _, err := m.Open(OpenRequest{GuildID: "nope", OperatorID: "op1", Phase: 1, Clan: "0"}); !errors.Is(err, ErrGuildNotConfigured) {
		t.Fatalf("expected ErrGuildNotConfigured, got %v", err)
	}
	if _, err := m.Open(OpenRequest{GuildID: "g1", OperatorID: "op1", Phase: 3, Clan: "0"}); err == nil {
		t.Fatalf("expected invalid phase error")
	}
	if _, err := m.Open(OpenRequest{GuildID: "g1", OperatorID: "op1", Phase: 1, Clan: "red"}); !errors.Is(err, ErrUnknownClan) {
		t.Fatalf("expected ErrUnknownClan, got %v", err)
	}
}

func TestSingleImageCommit(t *testing.T) {
	m, script, _ := newTestManager(t)
	snap := mustOpen(t, m, "op1", 1, "0")
	if snap.Stage != "awaiting_images" || snap.Week != 35 || snap.Year != 2026 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	script.push("Alice 1200\nBob 0")
	outcomes, events, err := m.SubmitImages(snap.ID, "op1", []string{"u1"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(outcomes) != 1 || !outcomes[0].OK || outcomes[0].Readings != 2 {
		t.Fatalf("unexpected outcomes %+v", outcomes)
	}
	if findEvent(events, EventImagesProcessed) == nil {
		t.Fatalf("missing images_processed event")
	}

	events, err = m.Decide(snap.ID, "op1", Decision{Action: ActionDone})
	if err != nil {
		t.Fatalf("done: %v", err)
	}
	sum := findEvent(events, EventSummary)
	if sum == nil || sum.Summary == nil {
		t.Fatalf("expected summary event, got %+v", events)
	}
	if sum.Summary.Stats.Top30Sum != 1200 || sum.Summary.Stats.ZeroCount != 1 {
		t.Fatalf("unexpected stats %+v", sum.Summary.Stats)
	}
	if sum.Summary.ClanLabel != "First Clan" {
		t.Fatalf("unexpected clan label %q", sum.Summary.ClanLabel)
	}

	events, err = m.Decide(snap.ID, "op1", Decision{Action: ActionConfirmCommit})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	term := findEvent(events, EventTerminal)
	if term == nil || term.Status != StatusCommitted {
		t.Fatalf("expected committed terminal, got %+v", events)
	}

	rec, err := m.Store.Get(store.Key{Guild: "g1", Phase: 1, Year: 2026, Week: 35, Clan: "0"})
	if err != nil || rec == nil {
		t.Fatalf("record not stored: %v", err)
	}
	if len(rec.Players) != 2 || rec.Players[0].MemberID != "m1" || rec.Players[0].Score != 1200 {
		t.Fatalf("unexpected record %+v", rec.Players)
	}
	if rec.CreatedBy != "op1" {
		t.Fatalf("createdBy not recorded: %q", rec.CreatedBy)
	}

	// the gate must be free again
	if _, ok := m.ActiveSession("g1"); ok {
		t.Fatalf("gate not released after commit")
	}
	mustOpen(t, m, "op2", 1, "1")
}

func TestConflictResolution(t *testing.T) {
	m, script, _ := newTestManager(t)
	snap := mustOpen(t, m, "op1", 1, "0")

	script.push("Alice 1200", "Alice 1250\nCarol 950")
	if _, _, err := m.SubmitImages(snap.ID, "op1", []string{"u1", "u2"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	events, err := m.Decide(snap.ID, "op1", Decision{Action: ActionDone})
	if err != nil {
		t.Fatalf("done: %v", err)
	}
	prompt := findEvent(events, EventConflictPrompt)
	if prompt == nil || prompt.Conflict == nil || prompt.Conflict.Nick != "Alice" {
		t.Fatalf("expected conflict prompt for Alice, got %+v", events)
	}
	if len(prompt.Conflict.Choices) != 2 || prompt.Conflict.Choices[0] != 1200 || prompt.Conflict.Choices[1] != 1250 {
		t.Fatalf("unexpected choices %+v", prompt.Conflict.Choices)
	}

	// a score that was never read must be rejected, state untouched
	if _, err := m.Decide(snap.ID, "op1", Decision{Action: ActionResolve, Nick: "Alice", Score: 1300}); err == nil {
		t.Fatalf("expected rejection of unread score")
	}

	events, err = m.Decide(snap.ID, "op1", Decision{Action: ActionResolve, Nick: "Alice", Score: 1250})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	sum := findEvent(events, EventSummary)
	if sum == nil {
		t.Fatalf("expected summary after last conflict, got %+v", events)
	}
	if sum.Summary.Stats.Top30Sum != 2200 {
		t.Fatalf("expected top30 2200, got %d", sum.Summary.Stats.Top30Sum)
	}
	var alice *store.PlayerScore
	for i := range sum.Summary.Players {
		if sum.Summary.Players[i].MemberID == "m1" {
			alice = &sum.Summary.Players[i]
		}
	}
	if alice == nil || alice.Score != 1250 {
		t.Fatalf("resolution not applied: %+v", sum.Summary.Players)
	}
}

func TestUncertainRowExcluded(t *testing.T) {
	m, script, _ := newTestManager(t)
	snap := mustOpen(t, m, "op1", 1, "0")

	script.push("Alice 1200\nDave© 0")
	if _, _, err := m.SubmitImages(snap.ID, "op1", []string{"u1"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	events, err := m.Decide(snap.ID, "op1", Decision{Action: ActionDone})
	if err != nil {
		t.Fatalf("done: %v", err)
	}
	prompt := findEvent(events, EventUncertainPrompt)
	if prompt == nil || prompt.Nick != "Dave" {
		t.Fatalf("expected uncertain prompt for Dave, got %+v", events)
	}

	events, err = m.Decide(snap.ID, "op1", Decision{Action: ActionIncludeUncertain, Nick: "Dave", Include: false})
	if err != nil {
		t.Fatalf("include_uncertain: %v", err)
	}
	sum := findEvent(events, EventSummary)
	if sum == nil {
		t.Fatalf("expected summary, got %+v", events)
	}
	if len(sum.Summary.Players) != 1 || sum.Summary.Players[0].MemberID != "m1" {
		t.Fatalf("Dave should be excluded: %+v", sum.Summary.Players)
	}

	if _, err := m.Decide(snap.ID, "op1", Decision{Action: ActionConfirmCommit}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	rec, err := m.Store.Get(store.Key{Guild: "g1", Phase: 1, Year: 2026, Week: 35, Clan: "0"})
	if err != nil || rec == nil {
		t.Fatalf("record not stored: %v", err)
	}
	if len(rec.Players) != 1 {
		t.Fatalf("excluded player leaked into the record: %+v", rec.Players)
	}
}

func TestWrongStageDecisions(t *testing.T) {
	m, script, _ := newTestManager(t)
	snap := mustOpen(t, m, "op1", 1, "0")

	for _, action := range []string{ActionDone, ActionConfirmCommit, ActionCancelCommit, ActionResolve, ActionIncludeUncertain} {
		if _, err := m.Decide(snap.ID, "op1", Decision{Action: action, Nick: "Alice"}); !errors.Is(err, ErrWrongStage) {
			t.Fatalf("%s before images: expected ErrWrongStage, got %v", action, err)
		}
	}
	if _, err := m.Decide(snap.ID, "op1", Decision{Action: "frobnicate"}); err == nil {
		t.Fatalf("unknown action must fail")
	}
	if _, err := m.Decide(snap.ID, "op2", Decision{Action: ActionCancel}); !errors.Is(err, ErrNotOperator) {
		t.Fatalf("expected ErrNotOperator, got %v", err)
	}
	if _, err := m.Decide("missing", "op1", Decision{Action: ActionCancel}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// session must have survived all of the above untouched
	script.push("Alice 1200")
	if _, _, err := m.SubmitImages(snap.ID, "op1", []string{"u1"}); err != nil {
		t.Fatalf("submit after wrong-stage noise: %v", err)
	}
}

func TestCancelCommitReturnsToCompletion(t *testing.T) {
	m, script, _ := newTestManager(t)
	snap := mustOpen(t, m, "op1", 1, "0")
	script.push("Alice 1200")
	if _, _, err := m.SubmitImages(snap.ID, "op1", []string{"u1"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := m.Decide(snap.ID, "op1", Decision{Action: ActionDone}); err != nil {
		t.Fatalf("done: %v", err)
	}
	if _, err := m.Decide(snap.ID, "op1", Decision{Action: ActionCancelCommit}); err != nil {
		t.Fatalf("cancel_commit: %v", err)
	}
	st, err := m.Status(snap.ID, "op1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Stage != "awaiting_completion" {
		t.Fatalf("expected awaiting_completion, got %s", st.Stage)
	}
	// another image and a second done must still work
	script.push("Carol 950")
	if _, _, err := m.SubmitImages(snap.ID, "op1", []string{"u2"}); err != nil {
		t.Fatalf("second submit: %v", err)
	}
	events, err := m.Decide(snap.ID, "op1", Decision{Action: ActionDone})
	if err != nil {
		t.Fatalf("second done: %v", err)
	}
	sum := findEvent(events, EventSummary)
	if sum == nil || sum.Summary.Stats.Top30Sum != 2150 {
		t.Fatalf("expected top30 2150 after extra image, got %+v", sum)
	}
}

func TestUnreadableImageKeepsSession(t *testing.T) {
	m, script, _ := newTestManager(t)
	snap := mustOpen(t, m, "op1", 1, "0")

	script.push("RANKING\n---")
	outcomes, _, err := m.SubmitImages(snap.ID, "op1", []string{"u1"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if outcomes[0].OK || outcomes[0].Reason == "" {
		t.Fatalf("expected failed outcome, got %+v", outcomes[0])
	}
	st, err := m.Status(snap.ID, "op1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Stage != "awaiting_images" {
		t.Fatalf("session should still await images, got %s", st.Stage)
	}

	// a token the roster does not know is dropped, not fatal
	script.push("Xyzzy 500")
	outcomes, _, err = m.SubmitImages(snap.ID, "op1", []string{"u2"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if outcomes[0].OK || outcomes[0].Dropped != 1 {
		t.Fatalf("expected dropped-only outcome, got %+v", outcomes[0])
	}
}

func TestOverwriteConfirmation(t *testing.T) {
	m, script, _ := newTestManager(t)
	key := store.Key{Guild: "g1", Phase: 1, Year: 2026, Week: 35, Clan: "0"}
	old := &store.Record{WeekNumber: 35, Year: 2026, Clan: "0",
		Players:   []store.PlayerScore{{MemberID: "m1", DisplayName: "Alice", Score: 100}},
		CreatedAt: time.Now(), CreatedBy: "op0"}
	if err := m.Store.Put(key, old); err != nil {
		t.Fatalf("seed: %v", err)
	}

	res, err := m.Open(OpenRequest{GuildID: "g1", OperatorID: "op1", Phase: 1, Clan: "0"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !res.OverwriteRequired || res.Session != nil {
		t.Fatalf("expected overwrite gate, got %+v", res)
	}
	// no state may exist yet: the gate is still free for others
	if _, ok := m.ActiveSession("g1"); ok {
		t.Fatalf("overwrite prompt must not hold the gate")
	}

	res, err = m.Open(OpenRequest{GuildID: "g1", OperatorID: "op1", Phase: 1, Clan: "0", ConfirmOverwrite: true})
	if err != nil || res.Session == nil {
		t.Fatalf("confirmed open failed: %+v err=%v", res, err)
	}

	script.push("Alice 1200")
	if _, _, err := m.SubmitImages(res.Session.ID, "op1", []string{"u1"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := m.Decide(res.Session.ID, "op1", Decision{Action: ActionDone}); err != nil {
		t.Fatalf("done: %v", err)
	}
	if _, err := m.Decide(res.Session.ID, "op1", Decision{Action: ActionConfirmCommit}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	rec, err := m.Store.Get(key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Players[0].Score != 1200 {
		t.Fatalf("overwrite not applied: %+v", rec.Players)
	}
	if rec.CreatedBy != "op0" {
		t.Fatalf("original creator must survive an overwrite: %q", rec.CreatedBy)
	}
}

func TestGateQueueAndReservation(t *testing.T) {
	m, _, sink := newTestManager(t)
	snap := mustOpen(t, m, "op1", 1, "0")

	if _, err := m.Open(OpenRequest{GuildID: "g1", OperatorID: "op1", Phase: 1, Clan: "1"}); !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("expected ErrAlreadyActive, got %v", err)
	}

	res, err := m.Open(OpenRequest{GuildID: "g1", OperatorID: "op2", Phase: 1, Clan: "0"})
	if err != nil {
		t.Fatalf("open op2: %v", err)
	}
	if !res.Queued || res.Position != 1 {
		t.Fatalf("expected queue position 1, got %+v", res)
	}
	// re-asking does not double-enqueue
	res, err = m.Open(OpenRequest{GuildID: "g1", OperatorID: "op2", Phase: 1, Clan: "0"})
	if err != nil || !res.Queued || res.Position != 1 {
		t.Fatalf("re-queue changed position: %+v err=%v", res, err)
	}
	if m.QueueLength("g1") != 1 {
		t.Fatalf("queue length %d", m.QueueLength("g1"))
	}

	if _, err := m.Decide(snap.ID, "op1", Decision{Action: ActionCancel}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	reservations := sink.byType(EventReservation)
	if len(reservations) != 1 || reservations[0].Operator != "op2" {
		t.Fatalf("expected reservation for op2, got %+v", reservations)
	}

	// another operator cannot jump the reservation
	res, err = m.Open(OpenRequest{GuildID: "g1", OperatorID: "op3", Phase: 1, Clan: "0"})
	if err != nil || !res.Queued {
		t.Fatalf("op3 should be queued behind the reservation: %+v err=%v", res, err)
	}

	// the reserved operator claims the gate
	mustOpen(t, m, "op2", 1, "0")
}

func TestReservationExpiryPromotesNext(t *testing.T) {
	m, _, sink := newTestManager(t)
	m.ReservationTTL = 30 * time.Millisecond
	snap := mustOpen(t, m, "op1", 1, "0")
	if _, err := m.Open(OpenRequest{GuildID: "g1", OperatorID: "op2", Phase: 1, Clan: "0"}); err != nil {
		t.Fatalf("queue op2: %v", err)
	}
	if _, err := m.Open(OpenRequest{GuildID: "g1", OperatorID: "op3", Phase: 1, Clan: "0"}); err != nil {
		t.Fatalf("queue op3: %v", err)
	}
	if _, err := m.Decide(snap.ID, "op1", Decision{Action: ActionCancel}); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		rs := sink.byType(EventReservation)
		if len(rs) >= 2 {
			if rs[0].Operator != "op2" || rs[1].Operator != "op3" {
				t.Fatalf("unexpected promotion order %+v", rs)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("op3 never promoted: %+v", sink.byType(EventReservation))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestInactivityTimeout(t *testing.T) {
	m, _, sink := newTestManager(t)
	m.Timeout = 30 * time.Millisecond
	snap := mustOpen(t, m, "op1", 1, "0")

	deadline := time.Now().Add(2 * time.Second)
	for {
		terms := sink.byType(EventTerminal)
		if len(terms) > 0 {
			if terms[0].Status != StatusTimeout {
				t.Fatalf("expected timeout terminal, got %+v", terms[0])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("session never timed out")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, err := m.Status(snap.ID, "op1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after timeout, got %v", err)
	}
	if _, ok := m.ActiveSession("g1"); ok {
		t.Fatalf("gate not released by timeout")
	}
}

// A timer that fired right before an operator action refreshed the session carries a stale
// generation and must leave the session alone.
func TestStaleTimerKeepsRefreshedSession(t *testing.T) {
	m, script, _ := newTestManager(t)
	snap := mustOpen(t, m, "op1", 1, "0")

	script.push("Alice 1200")
	if _, _, err := m.SubmitImages(snap.ID, "op1", []string{"u1"}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	m.mu.Lock()
	gen := m.sessions[snap.ID].timerGen
	m.mu.Unlock()
	if gen < 2 {
		t.Fatalf("submit should have re-armed the timer, generation %d", gen)
	}

	m.expire(snap.ID, gen-1)
	if _, err := m.Status(snap.ID, "op1"); err != nil {
		t.Fatalf("stale expiry terminated a live session: %v", err)
	}

	m.expire(snap.ID, gen)
	if _, err := m.Status(snap.ID, "op1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("current-generation expiry should terminate, got %v", err)
	}
}

func TestPhase2ThreeRounds(t *testing.T) {
	m, script, _ := newTestManager(t)
	snap := mustOpen(t, m, "op1", 2, "0")
	if snap.Round != 1 {
		t.Fatalf("expected round 1, got %+v", snap)
	}

	round := func(text string) *SummaryPayload {
		t.Helper()
		script.push(text)
		if _, _, err := m.SubmitImages(snap.ID, "op1", []string{"u"}); err != nil {
			t.Fatalf("submit: %v", err)
		}
		events, err := m.Decide(snap.ID, "op1", Decision{Action: ActionDone})
		if err != nil {
			t.Fatalf("done: %v", err)
		}
		sum := findEvent(events, EventSummary)
		if sum == nil || sum.Summary == nil {
			t.Fatalf("expected round summary, got %+v", events)
		}
		return sum.Summary
	}

	sum := round("Alice 100\nBob 10")
	if sum.TotalTop30 != 110 {
		t.Fatalf("round 1 total should equal its own top30, got %d", sum.TotalTop30)
	}
	// committing before round 3 is a stage error
	if _, err := m.Decide(snap.ID, "op1", Decision{Action: ActionConfirmCommit}); !errors.Is(err, ErrWrongStage) {
		t.Fatalf("commit before round 3: expected ErrWrongStage, got %v", err)
	}
	if _, err := m.Decide(snap.ID, "op1", Decision{Action: ActionNextRound}); err != nil {
		t.Fatalf("next_round 1->2: %v", err)
	}

	round("Alice 200\nBob 20")
	if _, err := m.Decide(snap.ID, "op1", Decision{Action: ActionNextRound}); err != nil {
		t.Fatalf("next_round 2->3: %v", err)
	}

	sum = round("Alice 50\nBob 30")
	// the cross-round total sums each round's own top-30: 110 + 220 + 80
	if sum.TotalTop30 != 410 {
		t.Fatalf("expected total top30 410 on the final round, got %d", sum.TotalTop30)
	}
	if _, err := m.Decide(snap.ID, "op1", Decision{Action: ActionNextRound}); !errors.Is(err, ErrWrongStage) {
		t.Fatalf("next_round on round 3: expected ErrWrongStage, got %v", err)
	}
	events, err := m.Decide(snap.ID, "op1", Decision{Action: ActionConfirmCommit})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if term := findEvent(events, EventTerminal); term == nil || term.Status != StatusCommitted {
		t.Fatalf("expected committed, got %+v", events)
	}

	rec, err := m.Store.Get(store.Key{Guild: "g1", Phase: 2, Year: 2026, Week: 35, Clan: "0"})
	if err != nil || rec == nil {
		t.Fatalf("record not stored: %v", err)
	}
	if len(rec.Rounds) != 3 {
		t.Fatalf("expected 3 rounds, got %d", len(rec.Rounds))
	}
	if rec.Rounds[1].Round != 2 || rec.Rounds[1].Players[0].Score != 200 {
		t.Fatalf("unexpected round 2 %+v", rec.Rounds[1])
	}
	if len(rec.Summary.Players) != 2 || rec.Summary.Players[0].MemberID != "m1" || rec.Summary.Players[0].Score != 350 {
		t.Fatalf("unexpected summary %+v", rec.Summary.Players)
	}
}

func TestNextRoundRejectedInPhase1(t *testing.T) {
	m, script, _ := newTestManager(t)
	snap := mustOpen(t, m, "op1", 1, "0")
	script.push("Alice 1200")
	if _, _, err := m.SubmitImages(snap.ID, "op1", []string{"u1"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := m.Decide(snap.ID, "op1", Decision{Action: ActionDone}); err != nil {
		t.Fatalf("done: %v", err)
	}
	if _, err := m.Decide(snap.ID, "op1", Decision{Action: ActionNextRound}); !errors.Is(err, ErrWrongStage) {
		t.Fatalf("expected ErrWrongStage, got %v", err)
	}
}

func TestHistoricalDeltasInSummary(t *testing.T) {
	m, script, _ := newTestManager(t)
	prior := &store.Record{WeekNumber: 34, Year: 2026, Clan: "0",
		Players:   []store.PlayerScore{{MemberID: "m1", DisplayName: "Alice", Score: 1000}},
		CreatedAt: time.Now(), CreatedBy: "op0"}
	if err := m.Store.Put(store.Key{Guild: "g1", Phase: 1, Year: 2026, Week: 34, Clan: "0"}, prior); err != nil {
		t.Fatalf("seed history: %v", err)
	}

	snap := mustOpen(t, m, "op1", 1, "0")
	script.push("Alice 1200")
	if _, _, err := m.SubmitImages(snap.ID, "op1", []string{"u1"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	events, err := m.Decide(snap.ID, "op1", Decision{Action: ActionDone})
	if err != nil {
		t.Fatalf("done: %v", err)
	}
	sum := findEvent(events, EventSummary)
	if sum == nil || len(sum.Summary.Stats.Deltas) != 1 {
		t.Fatalf("expected one delta, got %+v", sum)
	}
	d := sum.Summary.Stats.Deltas[0]
	if !d.HasBest || d.Best != 1000 || d.Delta != 200 {
		t.Fatalf("unexpected delta %+v", d)
	}
	if sum.Summary.Stats.Progress != 200 {
		t.Fatalf("unexpected progress %d", sum.Summary.Stats.Progress)
	}
}

func TestCancelRemovesTempFiles(t *testing.T) {
	m, script, _ := newTestManager(t)
	snap := mustOpen(t, m, "op1", 1, "0")
	script.push("Alice 1200")
	if _, _, err := m.SubmitImages(snap.ID, "op1", []string{"u1"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	gcfg, _ := m.Config.Guild("g1")
	if _, err := m.Decide(snap.ID, "op1", Decision{Action: ActionCancel}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	entries, err := os.ReadDir(gcfg.OCR.TempDir)
	if err != nil {
		t.Fatalf("read temp dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("temp files left behind: %d", len(entries))
	}
}
