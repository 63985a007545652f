// Package session implements the multi-image OCR aggregation workflow: per-guild
// single-flight sessions that ingest screenshots, merge readings, walk the operator through
// conflict resolution and commit a reconciled result set to the store.
package session

import (
	"errors"
	"time"

	"cwscore/pkg/match"
	"cwscore/pkg/stats"
	"cwscore/pkg/store"
)

// Stage is the session state machine discriminant.
type Stage int

const (
	// StageAwaitingImages: no readable screenshot ingested yet (or a new phase-2 round just started).
	StageAwaitingImages Stage = iota
	// StageAwaitingCompletion: at least one image ingested; operator may add more or say done.
	StageAwaitingCompletion
	// StageResolvingConflicts: walking the operator through conflicts and uncertain rows.
	StageResolvingConflicts
	// StageFinalConfirmation: summary shown, waiting for commit / cancel / next round.
	StageFinalConfirmation
)

func (s Stage) String() string {
	switch s {
	case StageAwaitingImages:
		return "awaiting_images"
	case StageAwaitingCompletion:
		return "awaiting_completion"
	case StageResolvingConflicts:
		return "resolving_conflicts"
	case StageFinalConfirmation:
		return "final_confirmation"
	}
	return "unknown"
}

// Decision actions accepted by Manager.Decide.
const (
	ActionDone             = "done"
	ActionAddMore          = "add_more"
	ActionCancel           = "cancel"
	ActionResolve          = "resolve"
	ActionIncludeUncertain = "include_uncertain"
	ActionConfirmCommit    = "confirm_commit"
	ActionCancelCommit     = "cancel_commit"
	ActionNextRound        = "next_round"
)

// Decision is one operator action against a session.
type Decision struct {
	Action  string `json:"action" binding:"required"`
	Nick    string `json:"nick,omitempty"`
	Score   int    `json:"score,omitempty"`
	Include bool   `json:"include,omitempty"`
}

// Event types emitted to the transport layer for rendering.
const (
	EventAwaitingImages  = "awaiting_images"
	EventImagesProcessed = "images_processed"
	EventConflictPrompt  = "conflict_prompt"
	EventUncertainPrompt = "uncertain_prompt"
	EventSummary         = "summary"
	EventNotice          = "notice"
	EventTerminal        = "terminal"
	EventQueued          = "queued"
	EventReservation     = "reservation"
)

// Event is an outbound payload for the chat transport. The core never talks to the chat
// platform itself; it only emits these and the transport renders them.
type Event struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	GuildID   string          `json:"guildId,omitempty"`
	Operator  string          `json:"operator,omitempty"`
	Message   string          `json:"message,omitempty"`
	Conflict  *Conflict       `json:"conflict,omitempty"`
	Nick      string          `json:"nick,omitempty"`
	Outcomes  []ImageOutcome  `json:"outcomes,omitempty"`
	Summary   *SummaryPayload `json:"summary,omitempty"`
	Status    string          `json:"status,omitempty"`
	Position  int             `json:"position,omitempty"`
}

// SummaryPayload is the final-confirmation view of one result set. TotalTop30 is phase 2
// only: the sum of each round's own TOP-30 across the rounds played so far, the pending one
// included.
type SummaryPayload struct {
	Clan       string              `json:"clan"`
	ClanLabel  string              `json:"clanLabel"`
	Phase      int                 `json:"phase"`
	Round      int                 `json:"round,omitempty"`
	Week       int                 `json:"week"`
	Year       int                 `json:"year"`
	Players    []store.PlayerScore `json:"players"`
	Stats      stats.Summary       `json:"stats"`
	TotalTop30 int                 `json:"totalTop30,omitempty"`
}

// Terminal statuses reported in the single end-of-session event.
const (
	StatusCommitted = "committed"
	StatusCancelled = "cancelled"
	StatusTimeout   = "timeout"
	StatusError     = "error"
)

// Session is the owned state of one (guild, operator) workflow. All fields are guarded by
// the Manager mutex; sessions are never handed out, only snapshots of them.
type Session struct {
	ID         string
	GuildID    string
	OperatorID string
	Phase      int
	Clan       string
	Round      int // phase 2 only, 1..3
	Week       store.WeekInfo
	CreatedAt  time.Time
	Stage      Stage

	Roster []match.RosterEntry

	Images    []ImageReadings
	TempFiles []string

	// bests is the phase-1 historical-best snapshot per member id, taken once at open so the
	// final summary never touches the store under the coordinator lock.
	bests map[string]int

	set          *ReadingSet
	conflicts    []Conflict
	conflictIdx  int
	resolved     map[string]int
	uncertain    []string
	uncertainIdx int
	included     map[string]bool
	pending      []store.PlayerScore // resolved result of the current analyse
	summary      *SummaryPayload

	roundResults []store.RoundRecord // completed phase-2 rounds

	timer    *time.Timer
	timerGen int // guards against an already-fired timer racing an operator refresh
	terminal bool
}

// Snapshot is the read-only session view returned to the transport.
type Snapshot struct {
	ID               string          `json:"id"`
	GuildID          string          `json:"guildId"`
	OperatorID       string          `json:"operatorId"`
	Phase            int             `json:"phase"`
	Round            int             `json:"round,omitempty"`
	Clan             string          `json:"clan"`
	Week             int             `json:"week"`
	Year             int             `json:"year"`
	Stage            string          `json:"stage"`
	Images           int             `json:"images"`
	PendingConflict  *Conflict       `json:"pendingConflict,omitempty"`
	PendingUncertain string          `json:"pendingUncertain,omitempty"`
	Summary          *SummaryPayload `json:"summary,omitempty"`
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		ID:         s.ID,
		GuildID:    s.GuildID,
		OperatorID: s.OperatorID,
		Phase:      s.Phase,
		Clan:       s.Clan,
		Week:       s.Week.Week,
		Year:       s.Week.Year,
		Stage:      s.Stage.String(),
		Images:     len(s.Images),
	}
	if s.Phase == 2 {
		snap.Round = s.Round
	}
	if s.Stage == StageResolvingConflicts {
		if c := s.currentConflict(); c != nil {
			snap.PendingConflict = c
		} else if n := s.currentUncertain(); n != "" {
			snap.PendingUncertain = n
		}
	}
	if s.Stage == StageFinalConfirmation {
		snap.Summary = s.summary
	}
	return snap
}

func (s *Session) currentConflict() *Conflict {
	if s.conflictIdx < len(s.conflicts) {
		c := s.conflicts[s.conflictIdx]
		return &c
	}
	return nil
}

func (s *Session) currentUncertain() string {
	if s.uncertainIdx < len(s.uncertain) {
		return s.uncertain[s.uncertainIdx]
	}
	return ""
}

// hasReadings reports whether any ingested image produced at least one matched reading.
func (s *Session) hasReadings() bool {
	for _, img := range s.Images {
		if len(img.Readings) > 0 {
			return true
		}
	}
	return false
}

// Sentinel errors surfaced to the transport. Stage mismatches leave state unchanged.
var (
	ErrNotFound           = errors.New("session not found")
	ErrWrongStage         = errors.New("decision does not match the current session stage")
	ErrNotOperator        = errors.New("session belongs to a different operator")
	ErrGuildNotConfigured = errors.New("guild is not configured")
	ErrUnknownClan        = errors.New("unknown clan key")
	ErrAlreadyActive      = errors.New("operator already holds the active session")
)
