package session

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"cwscore/pkg/config"
	"cwscore/pkg/match"
	"cwscore/pkg/ocr"
	"cwscore/pkg/stats"
	"cwscore/pkg/store"
)

// RosterSource supplies the member snapshot for a guild clan role at session open. The
// chat-platform collaborator keeps the members table in sync; the core only reads.
type RosterSource interface {
	Snapshot(guildID, roleID string) ([]match.RosterEntry, error)
}

// ImageAudit records the outcome of every processed screenshot for later moderator review.
// Implementations must be safe for concurrent use; a nil audit is allowed.
type ImageAudit interface {
	RecordImage(sessionID, guildID, source string, readings int, failed bool, reason string)
}

// Notifier receives events that are not a direct response to an operator call, e.g. the
// reservation handed to a promoted waiter or a timeout terminal.
type Notifier func(ev Event)

const (
	// DefaultTimeout is the per-step inactivity limit; every operator action refreshes it.
	DefaultTimeout = 10 * time.Minute
	// DefaultReservationTTL is how long a promoted waiter can claim the gate before the
	// next waiter is promoted instead.
	DefaultReservationTTL = 3 * time.Minute
)

type waiter struct {
	operatorID string
	enqueued   time.Time
}

type reservation struct {
	operatorID string
	timer      *time.Timer
}

// Manager is the process-wide coordinator: the session map, the per-guild single-flight
// gates and the FIFO waiter queues all live here, guarded by one mutex. Downloads, OCR,
// store scans and the commit write all run outside the lock.
type Manager struct {
	Store     *store.Store
	Config    *config.Provider
	Roster    RosterSource
	Audit     ImageAudit
	Download  Downloader
	Recognize Recognizer
	Notify    Notifier

	Timeout        time.Duration
	ReservationTTL time.Duration

	now func() time.Time

	mu        sync.Mutex
	sessions  map[string]*Session
	active    map[string]*Session // guild id -> holder of the gate
	waiters   map[string][]waiter
	reserved  map[string]*reservation
	retention map[string]*ocr.Retention
}

// NewManager wires a coordinator over the given collaborators. Override the exported
// function fields (Download, Recognize, Notify) before first use when needed.
func NewManager(cfg *config.Provider, st *store.Store, roster RosterSource, audit ImageAudit) *Manager {
	return &Manager{
		Store:          st,
		Config:         cfg,
		Roster:         roster,
		Audit:          audit,
		Download:       DownloadAttachment,
		Recognize:      ocr.Recognize,
		Timeout:        DefaultTimeout,
		ReservationTTL: DefaultReservationTTL,
		now:            time.Now,
		sessions:       map[string]*Session{},
		active:         map[string]*Session{},
		waiters:        map[string][]waiter{},
		reserved:       map[string]*reservation{},
	}
}

func (m *Manager) notify(ev Event) {
	if m.Notify != nil {
		m.Notify(ev)
	}
}

func (m *Manager) retentionFor(gcfg config.GuildConfig) *ocr.Retention {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.retention == nil {
		m.retention = map[string]*ocr.Retention{}
	}
	r, ok := m.retention[gcfg.OCR.ProcessedDir]
	if !ok {
		r = ocr.NewRetention(gcfg.OCR.ProcessedDir, gcfg.OCR.MaxProcessedFiles)
		m.retention[gcfg.OCR.ProcessedDir] = r
	}
	return r
}

// OpenRequest asks for a new session.
type OpenRequest struct {
	GuildID          string
	OperatorID       string
	Phase            int
	Clan             string
	ConfirmOverwrite bool
}

// OpenResult is the outcome of Open: exactly one of Session, Queued or OverwriteRequired
// applies.
type OpenResult struct {
	Session           *Snapshot `json:"session,omitempty"`
	Queued            bool      `json:"queued,omitempty"`
	Position          int       `json:"position,omitempty"`
	OverwriteRequired bool      `json:"overwriteRequired,omitempty"`
	Events            []Event   `json:"events,omitempty"`
}

// Open admits the operator into a new session for (guild, phase, clan), or queues them when
// the guild gate is held. An existing stored record for the target week demands an explicit
// overwrite confirmation before any state is created.
func (m *Manager) Open(req OpenRequest) (*OpenResult, error) {
	gcfg, ok := m.Config.Guild(req.GuildID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGuildNotConfigured, req.GuildID)
	}
	if req.Phase != 1 && req.Phase != 2 {
		return nil, fmt.Errorf("invalid phase %d", req.Phase)
	}
	roleID, ok := gcfg.TargetRoles[req.Clan]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownClan, req.Clan)
	}

	m.mu.Lock()
	if holder, busy := m.active[req.GuildID]; busy {
		if holder.OperatorID == req.OperatorID {
			m.mu.Unlock()
			return nil, ErrAlreadyActive
		}
		pos := m.enqueueLocked(req.GuildID, req.OperatorID)
		m.mu.Unlock()
		return &OpenResult{Queued: true, Position: pos, Events: []Event{{
			Type: EventQueued, GuildID: req.GuildID, Operator: req.OperatorID, Position: pos,
			Message: fmt.Sprintf("a session is already running for this guild; you are number %d in the queue", pos),
		}}}, nil
	}
	if res, held := m.reserved[req.GuildID]; held && res.operatorID != req.OperatorID {
		pos := m.enqueueLocked(req.GuildID, req.OperatorID)
		m.mu.Unlock()
		return &OpenResult{Queued: true, Position: pos, Events: []Event{{
			Type: EventQueued, GuildID: req.GuildID, Operator: req.OperatorID, Position: pos,
			Message: fmt.Sprintf("the gate is reserved for another operator; you are number %d in the queue", pos),
		}}}, nil
	}
	m.mu.Unlock()

	week := store.WeekAt(m.now(), gcfg.Location())
	key := store.Key{Guild: req.GuildID, Phase: req.Phase, Year: week.Year, Week: week.Week, Clan: req.Clan}
	if m.Store.Exists(key) && !req.ConfirmOverwrite {
		return &OpenResult{OverwriteRequired: true, Events: []Event{{
			Type: EventNotice, GuildID: req.GuildID,
			Message: fmt.Sprintf("results for week %d/%d %s already exist; confirm to overwrite", week.Week, week.Year, gcfg.ClanLabel(req.Clan)),
		}}}, nil
	}

	roster, err := m.Roster.Snapshot(req.GuildID, roleID)
	if err != nil {
		return nil, fmt.Errorf("roster snapshot: %w", err)
	}

	// the historical-best scan is disk-bound; take it once here so the summary later never
	// touches the store under the coordinator lock
	var bests map[string]int
	if req.Phase == 1 {
		bests, err = m.Store.HistoricalBests(req.GuildID, week, req.Clan)
		if err != nil {
			log.Printf("historical best scan failed guild=%s clan=%s: %v", req.GuildID, req.Clan, err)
			bests = map[string]int{}
		}
	}

	ses := &Session{
		ID:         uuid.NewString(),
		GuildID:    req.GuildID,
		OperatorID: req.OperatorID,
		Phase:      req.Phase,
		Clan:       req.Clan,
		Week:       week,
		CreatedAt:  m.now(),
		Stage:      StageAwaitingImages,
		Roster:     roster,
		bests:      bests,
		resolved:   map[string]int{},
		included:   map[string]bool{},
	}
	if req.Phase == 2 {
		ses.Round = 1
	}

	m.mu.Lock()
	// re-check: the gate may have been taken while we were hitting disk
	if _, busy := m.active[req.GuildID]; busy {
		pos := m.enqueueLocked(req.GuildID, req.OperatorID)
		m.mu.Unlock()
		return &OpenResult{Queued: true, Position: pos, Events: []Event{{
			Type: EventQueued, GuildID: req.GuildID, Operator: req.OperatorID, Position: pos,
		}}}, nil
	}
	if res, held := m.reserved[req.GuildID]; held && res.operatorID == req.OperatorID {
		res.timer.Stop()
		delete(m.reserved, req.GuildID)
	}
	m.active[req.GuildID] = ses
	m.sessions[ses.ID] = ses
	m.refreshTimerLocked(ses)
	snap := ses.snapshot()
	m.mu.Unlock()

	log.Printf("session opened id=%s guild=%s operator=%s phase=%d clan=%s week=%d/%d",
		ses.ID, req.GuildID, req.OperatorID, req.Phase, req.Clan, week.Week, week.Year)
	return &OpenResult{Session: &snap, Events: []Event{{
		Type: EventAwaitingImages, SessionID: ses.ID, GuildID: req.GuildID,
		Message: "post the leaderboard screenshots",
	}}}, nil
}

func (m *Manager) enqueueLocked(guildID, operatorID string) int {
	for i, w := range m.waiters[guildID] {
		if w.operatorID == operatorID {
			return i + 1
		}
	}
	m.waiters[guildID] = append(m.waiters[guildID], waiter{operatorID: operatorID, enqueued: m.now()})
	return len(m.waiters[guildID])
}

// SubmitImages ingests screenshot URLs into the session, running the per-image pipeline for
// each. Per-image failures never abort the session.
func (m *Manager) SubmitImages(sessionID string, operatorID string, urls []string) ([]ImageOutcome, []Event, error) {
	m.mu.Lock()
	ses, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return nil, nil, ErrNotFound
	}
	if ses.OperatorID != operatorID {
		m.mu.Unlock()
		return nil, nil, ErrNotOperator
	}
	if ses.Stage != StageAwaitingImages && ses.Stage != StageAwaitingCompletion {
		m.mu.Unlock()
		return nil, nil, fmt.Errorf("%w: images are not accepted in stage %s", ErrWrongStage, ses.Stage)
	}
	gcfg, ok := m.Config.Guild(ses.GuildID)
	if !ok {
		m.mu.Unlock()
		return nil, nil, fmt.Errorf("%w: %s", ErrGuildNotConfigured, ses.GuildID)
	}
	roster := ses.Roster
	m.mu.Unlock()

	// pipeline work happens outside the lock; attachment order is preserved
	results := make([]pipelineResult, 0, len(urls))
	for _, url := range urls {
		results = append(results, m.processImage(gcfg, roster, url))
	}

	m.mu.Lock()
	if ses.terminal {
		m.mu.Unlock()
		// the session timed out under our feet; orphaned temp files are removed here
		for _, r := range results {
			for _, f := range r.tempFiles {
				os.Remove(f)
			}
		}
		return nil, nil, ErrNotFound
	}
	outcomes := make([]ImageOutcome, 0, len(results))
	for _, r := range results {
		ses.TempFiles = append(ses.TempFiles, r.tempFiles...)
		if r.outcome.OK {
			ses.Images = append(ses.Images, r.readings)
		}
		outcomes = append(outcomes, r.outcome)
	}
	if ses.hasReadings() {
		ses.Stage = StageAwaitingCompletion
	}
	m.refreshTimerLocked(ses)
	events := []Event{{Type: EventImagesProcessed, SessionID: ses.ID, Outcomes: outcomes}}
	if ses.Stage == StageAwaitingCompletion {
		events = append(events, Event{Type: EventNotice, SessionID: ses.ID, Message: "all screenshots in? say done, or add more"})
	}
	m.mu.Unlock()

	if m.Audit != nil {
		for _, o := range outcomes {
			m.Audit.RecordImage(sessionID, ses.GuildID, o.Source, o.Readings, !o.OK, o.Reason)
		}
	}
	return outcomes, events, nil
}

// Decide applies one operator decision. Wrong-stage decisions return ErrWrongStage with the
// session untouched. The lock is released explicitly per branch because confirm_commit has
// to drop it around the store write.
func (m *Manager) Decide(sessionID, operatorID string, d Decision) ([]Event, error) {
	m.mu.Lock()
	ses, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	if ses.OperatorID != operatorID {
		m.mu.Unlock()
		return nil, ErrNotOperator
	}

	switch d.Action {
	case ActionConfirmCommit:
		if ses.Stage != StageFinalConfirmation {
			m.mu.Unlock()
			return nil, fmt.Errorf("%w: nothing to commit in stage %s", ErrWrongStage, ses.Stage)
		}
		if ses.Phase == 2 && ses.Round < 3 {
			m.mu.Unlock()
			return nil, fmt.Errorf("%w: round %d of 3 is not the last; use next_round", ErrWrongStage, ses.Round)
		}
		return m.commitUnlocking(ses)
	default:
		events, err := m.decideLocked(ses, d)
		m.mu.Unlock()
		return events, err
	}
}

func (m *Manager) decideLocked(ses *Session, d Decision) ([]Event, error) {
	switch d.Action {
	case ActionCancel:
		return m.finishLocked(ses, StatusCancelled, "session cancelled"), nil

	case ActionDone:
		if ses.Stage != StageAwaitingCompletion {
			return nil, fmt.Errorf("%w: done is only valid once images are in (stage %s)", ErrWrongStage, ses.Stage)
		}
		m.refreshTimerLocked(ses)
		return m.analyseLocked(ses)

	case ActionAddMore:
		if ses.Stage != StageAwaitingCompletion {
			return nil, fmt.Errorf("%w: add_more is only valid while awaiting completion (stage %s)", ErrWrongStage, ses.Stage)
		}
		ses.Stage = StageAwaitingImages
		m.refreshTimerLocked(ses)
		return []Event{{Type: EventAwaitingImages, SessionID: ses.ID, Message: "post more screenshots"}}, nil

	case ActionResolve:
		if ses.Stage != StageResolvingConflicts {
			return nil, fmt.Errorf("%w: nothing to resolve in stage %s", ErrWrongStage, ses.Stage)
		}
		cur := ses.currentConflict()
		if cur == nil {
			return nil, fmt.Errorf("%w: no conflict pending", ErrWrongStage)
		}
		if d.Nick != cur.Nick {
			return nil, fmt.Errorf("expected a decision for %q, got %q", cur.Nick, d.Nick)
		}
		if !ses.set.HasScore(d.Nick, d.Score) {
			return nil, fmt.Errorf("score %d is not among the readings for %q", d.Score, d.Nick)
		}
		// decisions are final for the rest of the session
		ses.resolved[d.Nick] = d.Score
		ses.conflictIdx++
		m.refreshTimerLocked(ses)
		return m.advanceResolutionLocked(ses)

	case ActionIncludeUncertain:
		if ses.Stage != StageResolvingConflicts {
			return nil, fmt.Errorf("%w: no uncertain rows pending in stage %s", ErrWrongStage, ses.Stage)
		}
		cur := ses.currentUncertain()
		if cur == "" || ses.currentConflict() != nil {
			return nil, fmt.Errorf("%w: no uncertain row pending", ErrWrongStage)
		}
		if d.Nick != cur {
			return nil, fmt.Errorf("expected a decision for %q, got %q", cur, d.Nick)
		}
		ses.included[d.Nick] = d.Include
		ses.uncertainIdx++
		m.refreshTimerLocked(ses)
		return m.advanceResolutionLocked(ses)

	case ActionCancelCommit:
		if ses.Stage != StageFinalConfirmation {
			return nil, fmt.Errorf("%w: no commit pending in stage %s", ErrWrongStage, ses.Stage)
		}
		ses.Stage = StageAwaitingCompletion
		ses.summary = nil
		ses.pending = nil
		m.refreshTimerLocked(ses)
		return []Event{{Type: EventNotice, SessionID: ses.ID, Message: "commit cancelled; add more screenshots or say done again"}}, nil

	case ActionNextRound:
		if ses.Phase != 2 {
			return nil, fmt.Errorf("%w: next_round only applies to phase 2", ErrWrongStage)
		}
		if ses.Stage != StageFinalConfirmation {
			return nil, fmt.Errorf("%w: finish the current round first (stage %s)", ErrWrongStage, ses.Stage)
		}
		if ses.Round >= 3 {
			return nil, fmt.Errorf("%w: round 3 is the last; use confirm_commit", ErrWrongStage)
		}
		ses.roundResults = append(ses.roundResults, store.RoundRecord{Round: ses.Round, Players: ses.pending})
		ses.Round++
		ses.Images = nil
		ses.set = nil
		ses.conflicts = nil
		ses.conflictIdx = 0
		ses.resolved = map[string]int{}
		ses.uncertain = nil
		ses.uncertainIdx = 0
		ses.included = map[string]bool{}
		ses.pending = nil
		ses.summary = nil
		ses.Stage = StageAwaitingImages
		m.refreshTimerLocked(ses)
		return []Event{{Type: EventAwaitingImages, SessionID: ses.ID,
			Message: fmt.Sprintf("round %d: post the leaderboard screenshots", ses.Round)}}, nil

	default:
		return nil, fmt.Errorf("unknown action %q", d.Action)
	}
}

// analyseLocked merges readings and routes to conflict resolution or straight to the final
// summary. Caller holds the mutex.
func (m *Manager) analyseLocked(ses *Session) ([]Event, error) {
	set := BuildReadingSet(ses.Images)
	if set.Len() == 0 {
		ses.Stage = StageAwaitingImages
		return []Event{{Type: EventNotice, SessionID: ses.ID,
			Message: "no players were recognized on any screenshot; check the images and try again"}}, nil
	}
	ses.set = set
	ses.conflicts = set.Conflicts()
	ses.conflictIdx = 0
	ses.uncertain = set.UncertainNicks()
	ses.uncertainIdx = 0
	if len(ses.conflicts) > 0 || len(ses.uncertain) > 0 {
		ses.Stage = StageResolvingConflicts
		return m.advanceResolutionLocked(ses)
	}
	return m.enterFinalLocked(ses)
}

// advanceResolutionLocked emits the next pending prompt, or moves on to the summary once
// everything is decided. Caller holds the mutex.
func (m *Manager) advanceResolutionLocked(ses *Session) ([]Event, error) {
	if c := ses.currentConflict(); c != nil {
		return []Event{{Type: EventConflictPrompt, SessionID: ses.ID, Conflict: c,
			Message: fmt.Sprintf("%s was read with different scores; pick the right one", c.Nick)}}, nil
	}
	if n := ses.currentUncertain(); n != "" {
		return []Event{{Type: EventUncertainPrompt, SessionID: ses.ID, Nick: n,
			Message: fmt.Sprintf("the reading for %s was marked uncertain; include it?", n)}}, nil
	}
	return m.enterFinalLocked(ses)
}

// enterFinalLocked resolves the reading set and builds the confirmation summary. Caller
// holds the mutex.
func (m *Manager) enterFinalLocked(ses *Session) ([]Event, error) {
	excluded := map[string]bool{}
	for nick, include := range ses.included {
		if !include {
			excluded[nick] = true
		}
	}
	players, err := ses.set.Final(ses.resolved, excluded)
	if err != nil {
		// unreachable through the decision flow; surfacing keeps a stuck set diagnosable
		return nil, err
	}
	ses.pending = players

	gcfg, _ := m.Config.Guild(ses.GuildID)
	var best stats.HistoricalBestFunc
	if ses.Phase == 1 {
		// the bests map was snapshotted at open; no store access here
		bests := ses.bests
		best = func(memberID string) (int, bool) {
			b, ok := bests[memberID]
			return b, ok
		}
	}
	summary := &SummaryPayload{
		Clan:      ses.Clan,
		ClanLabel: gcfg.ClanLabel(ses.Clan),
		Phase:     ses.Phase,
		Week:      ses.Week.Week,
		Year:      ses.Week.Year,
		Players:   players,
		Stats:     stats.Compute(players, best),
	}
	if ses.Phase == 2 {
		summary.Round = ses.Round
		rounds := append(append([]store.RoundRecord(nil), ses.roundResults...),
			store.RoundRecord{Round: ses.Round, Players: players})
		summary.TotalTop30 = stats.Phase2Top30Total(rounds)
	}
	ses.summary = summary
	ses.Stage = StageFinalConfirmation
	m.refreshTimerLocked(ses)
	return []Event{{Type: EventSummary, SessionID: ses.ID, Summary: summary}}, nil
}

// commitUnlocking snapshots the record under the lock, writes it with the lock released and
// finishes the session. The inactivity timer is stopped before unlocking so a timeout cannot
// tear the session down mid-write. Caller holds the mutex; it is released on return. A store
// failure is fatal: the session is cleaned up and the gate released.
func (m *Manager) commitUnlocking(ses *Session) ([]Event, error) {
	key := store.Key{Guild: ses.GuildID, Phase: ses.Phase, Year: ses.Week.Year, Week: ses.Week.Week, Clan: ses.Clan}
	rec := &store.Record{
		WeekNumber: ses.Week.Week,
		Year:       ses.Week.Year,
		Clan:       ses.Clan,
		CreatedAt:  m.now(),
		CreatedBy:  ses.OperatorID,
	}
	if ses.Phase == 1 {
		rec.Players = append([]store.PlayerScore(nil), ses.pending...)
	} else {
		rounds := append(append([]store.RoundRecord(nil), ses.roundResults...),
			store.RoundRecord{Round: ses.Round, Players: ses.pending})
		rec.Rounds = rounds
		rec.Summary = store.RecomputeSummary(rounds)
	}
	if ses.timer != nil {
		ses.timer.Stop()
	}
	players := len(ses.pending)
	m.mu.Unlock()

	err := m.Store.Put(key, rec)

	m.mu.Lock()
	if err != nil {
		events := m.finishLocked(ses, StatusError, fmt.Sprintf("storing results failed: %v", err))
		m.mu.Unlock()
		return events, fmt.Errorf("store results: %w", err)
	}
	log.Printf("session committed id=%s guild=%s phase=%d clan=%s week=%d/%d players=%d",
		ses.ID, ses.GuildID, ses.Phase, ses.Clan, ses.Week.Week, ses.Week.Year, players)
	events := m.finishLocked(ses, StatusCommitted, "results saved")
	m.mu.Unlock()
	return events, nil
}

// finishLocked is the idempotent terminal transition: temp files removed best effort, timer
// stopped, gate released, head waiter promoted. Caller holds the mutex.
func (m *Manager) finishLocked(ses *Session, status, message string) []Event {
	if ses.terminal {
		return nil
	}
	ses.terminal = true
	if ses.timer != nil {
		ses.timer.Stop()
	}
	for _, f := range ses.TempFiles {
		_ = os.Remove(f)
	}
	delete(m.sessions, ses.ID)
	if m.active[ses.GuildID] == ses {
		delete(m.active, ses.GuildID)
		m.promoteLocked(ses.GuildID)
	}
	log.Printf("session finished id=%s guild=%s status=%s", ses.ID, ses.GuildID, status)
	return []Event{{Type: EventTerminal, SessionID: ses.ID, GuildID: ses.GuildID, Status: status, Message: message}}
}

// promoteLocked hands the gate to the next FIFO waiter as a short-lived reservation. If the
// reservation lapses unused, the next waiter is promoted. Caller holds the mutex.
func (m *Manager) promoteLocked(guildID string) {
	queue := m.waiters[guildID]
	if len(queue) == 0 {
		return
	}
	next := queue[0]
	m.waiters[guildID] = queue[1:]
	res := &reservation{operatorID: next.operatorID}
	res.timer = time.AfterFunc(m.ReservationTTL, func() {
		m.mu.Lock()
		if cur, ok := m.reserved[guildID]; ok && cur == res {
			delete(m.reserved, guildID)
			m.promoteLocked(guildID)
		}
		m.mu.Unlock()
	})
	m.reserved[guildID] = res
	log.Printf("gate reserved guild=%s operator=%s ttl=%s", guildID, next.operatorID, m.ReservationTTL)
	m.notify(Event{Type: EventReservation, GuildID: guildID, Operator: next.operatorID,
		Message: "the guild gate is yours; open your session before the reservation expires"})
}

// refreshTimerLocked (re)arms the inactivity timer. Each arm gets a fresh generation: a
// timer that already fired and is waiting on the mutex while the operator acts must not
// terminate the refreshed session. Caller holds the mutex.
func (m *Manager) refreshTimerLocked(ses *Session) {
	ses.timerGen++
	gen := ses.timerGen
	if ses.timer != nil {
		ses.timer.Stop()
	}
	id := ses.ID
	ses.timer = time.AfterFunc(m.Timeout, func() { m.expire(id, gen) })
}

// expire handles inactivity timer firing. A stale generation means the timer lost the race
// against an operator refresh and the session stays alive.
func (m *Manager) expire(sessionID string, gen int) {
	m.mu.Lock()
	ses, ok := m.sessions[sessionID]
	if !ok || ses.timerGen != gen {
		m.mu.Unlock()
		return
	}
	events := m.finishLocked(ses, StatusTimeout, "session timed out after inactivity")
	m.mu.Unlock()
	for _, ev := range events {
		m.notify(ev)
	}
}

// Status returns a read-only snapshot of the session.
func (m *Manager) Status(sessionID, operatorID string) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ses, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if ses.OperatorID != operatorID {
		return nil, ErrNotOperator
	}
	snap := ses.snapshot()
	return &snap, nil
}

// ActiveSession returns the snapshot of the guild's active session, if any. Used by the
// transport's status surfaces.
func (m *Manager) ActiveSession(guildID string) (*Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ses, ok := m.active[guildID]
	if !ok {
		return nil, false
	}
	snap := ses.snapshot()
	return &snap, true
}

// QueueLength reports the waiter queue size for a guild.
func (m *Manager) QueueLength(guildID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.waiters[guildID])
}

// Shutdown cancels every live session and stops all timers. Terminal events are emitted so
// the transport can close out its prompts.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	var all []*Session
	for _, ses := range m.sessions {
		all = append(all, ses)
	}
	var events []Event
	for _, ses := range all {
		events = append(events, m.finishLocked(ses, StatusCancelled, "service shutting down")...)
	}
	for _, res := range m.reserved {
		res.timer.Stop()
	}
	m.reserved = map[string]*reservation{}
	m.waiters = map[string][]waiter{}
	m.mu.Unlock()
	for _, ev := range events {
		m.notify(ev)
	}
}
