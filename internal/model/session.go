package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Stage is a state of the session pipeline
type Stage string

const (
	StageCreated               Stage = "CREATED"
	StageDecomposed            Stage = "DECOMPOSED"
	StageDiscovering           Stage = "DISCOVERING"
	StageExtracting            Stage = "EXTRACTING"
	StageClaimsExtracted       Stage = "CLAIMS_EXTRACTED"
	StageRanked                Stage = "RANKED"
	StageGapAnalyzed           Stage = "GAP_ANALYZED"
	StageAwaitingClarification Stage = "AWAITING_CLARIFICATION"
	StageClarified             Stage = "CLARIFIED"
	StageDone                  Stage = "DONE"
	StageFailed                Stage = "FAILED"
)

// stageOrder is the only legal forward sequence. FAILED sits outside it.
var stageOrder = []Stage{
	StageCreated,
	StageDecomposed,
	StageDiscovering,
	StageExtracting,
	StageClaimsExtracted,
	StageRanked,
	StageGapAnalyzed,
	StageAwaitingClarification,
	StageClarified,
	StageDone,
}

// Ordinal returns the position of the stage in the forward sequence, or -1
// for FAILED and unrecognised values.
func (s Stage) Ordinal() int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// IsTerminal reports whether no further transition is possible
func (s Stage) IsTerminal() bool {
	return s == StageDone || s == StageFailed
}

// CanTransition reports whether moving from s to next keeps the machine
// strictly forward. Skipping AWAITING_CLARIFICATION is the only legal jump.
func (s Stage) CanTransition(next Stage) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StageFailed {
		return true
	}
	from, to := s.Ordinal(), next.Ordinal()
	if from < 0 || to < 0 {
		return false
	}
	if to == from+1 {
		return true
	}
	return s == StageGapAnalyzed && next == StageClarified
}

// Stages returns the forward stage sequence
func Stages() []Stage {
	out := make([]Stage, len(stageOrder))
	copy(out, stageOrder)
	return out
}

// SubQuestion is one research question derived from the session question
type SubQuestion struct {
	ID        string   `json:"id"`
	SessionID string   `json:"session_id"`
	Text      string   `json:"text"`
	SourceIDs []string `json:"source_ids"` // Append-only, discovery order

	// SearchError is set when discovery failed for this sub-question
	SearchError string `json:"search_error,omitempty"`
}

// Transition records one stage change
type Transition struct {
	From Stage     `json:"from"`
	To   Stage     `json:"to"`
	At   time.Time `json:"at"`
}

// StageError is the serialisable record of the error that failed a session
type StageError struct {
	Stage   Stage  `json:"stage"`   // Stage being attempted when the error occurred
	Kind    string `json:"kind"`    // decomposition, reasoner, canceled, store, internal
	Message string `json:"message"` // Error text
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s during %s: %s", e.Kind, e.Stage, e.Message)
}

// Session is one end-to-end run of the pipeline for a single question
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Question  string    `json:"question"`

	Stage              Stage        `json:"stage"`
	LastCompletedStage Stage        `json:"last_completed_stage,omitempty"`
	Error              *StageError  `json:"error,omitempty"`
	History            []Transition `json:"history,omitempty"`

	SubQuestions []SubQuestion `json:"sub_questions"`
	Sources      []Source      `json:"sources"`
	Claims       []Claim       `json:"claims"`

	// Unranked holds ids of sources excluded from ranking with the reason
	Unranked []UnrankedSource `json:"unranked,omitempty"`
	RankedAt *time.Time       `json:"ranked_at,omitempty"`

	Gaps                 []Gap           `json:"gaps"`
	Clarifications       []Clarification `json:"clarifications,omitempty"`
	Answers              []Answer        `json:"answers,omitempty"`
	ClarificationSkipped bool            `json:"clarification_skipped,omitempty"`

	Recommendation *Recommendation `json:"recommendation,omitempty"`

	// Version increments on every persisted write
	Version int `json:"version"`
}

// NewSessionID returns an id of the form run_YYYY_MM_DD_<8 hex>
func NewSessionID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("run_%s_%s", now.UTC().Format("2006_01_02"), suffix)
}

// NewSession creates a session in the CREATED stage
func NewSession(question string, now time.Time) *Session {
	return &Session{
		ID:        NewSessionID(now),
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
		Question:  question,
		Stage:     StageCreated,

		LastCompletedStage: StageCreated,
	}
}

// Source returns the source with the given id
func (s *Session) Source(id string) (*Source, bool) {
	for i := range s.Sources {
		if s.Sources[i].ID == id {
			return &s.Sources[i], true
		}
	}
	return nil, false
}

// ClaimsFor returns the claims owned by a source, in extraction order
func (s *Session) ClaimsFor(sourceID string) []Claim {
	var out []Claim
	for _, c := range s.Claims {
		if c.SourceID == sourceID {
			out = append(out, c)
		}
	}
	return out
}

// Gap returns the gap with the given id
func (s *Session) Gap(id string) (*Gap, bool) {
	for i := range s.Gaps {
		if s.Gaps[i].ID == id {
			return &s.Gaps[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy so a persisted snapshot is never aliased by a
// running orchestrator.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.Error != nil {
		e := *s.Error
		c.Error = &e
	}
	if s.RankedAt != nil {
		t := *s.RankedAt
		c.RankedAt = &t
	}
	c.History = append([]Transition(nil), s.History...)

	c.SubQuestions = make([]SubQuestion, len(s.SubQuestions))
	for i, sq := range s.SubQuestions {
		sq.SourceIDs = append([]string(nil), sq.SourceIDs...)
		c.SubQuestions[i] = sq
	}

	c.Sources = make([]Source, len(s.Sources))
	for i, src := range s.Sources {
		c.Sources[i] = src.clone()
	}

	c.Claims = make([]Claim, len(s.Claims))
	for i, cl := range s.Claims {
		c.Claims[i] = cl.clone()
	}

	c.Unranked = append([]UnrankedSource(nil), s.Unranked...)

	c.Gaps = make([]Gap, len(s.Gaps))
	for i, g := range s.Gaps {
		g.ClaimIDs = append([]string(nil), g.ClaimIDs...)
		c.Gaps[i] = g
	}

	c.Clarifications = make([]Clarification, len(s.Clarifications))
	for i, cl := range s.Clarifications {
		cl.GapIDs = append([]string(nil), cl.GapIDs...)
		cl.ExampleAnswers = append([]string(nil), cl.ExampleAnswers...)
		c.Clarifications[i] = cl
	}

	c.Answers = append([]Answer(nil), s.Answers...)
	c.Recommendation = s.Recommendation.Clone()
	return &c
}
