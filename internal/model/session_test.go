package model

import (
	"regexp"
	"testing"
	"time"
)

func TestStage_CanTransition(t *testing.T) {
	tests := []struct {
		from, to Stage
		want     bool
	}{
		{StageCreated, StageDecomposed, true},
		{StageDecomposed, StageDiscovering, true},
		{StageGapAnalyzed, StageAwaitingClarification, true},
		{StageGapAnalyzed, StageClarified, true}, // Clarification skipped
		{StageAwaitingClarification, StageClarified, true},
		{StageClarified, StageDone, true},
		{StageCreated, StageDiscovering, false},
		{StageRanked, StageClaimsExtracted, false},
		{StageDone, StageCreated, false},
		{StageDone, StageFailed, false},
		{StageFailed, StageCreated, false},
		{StageExtracting, StageFailed, true},
		{StageAwaitingClarification, StageFailed, true},
		{StageCreated, StageCreated, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestStages_OrderIsStrictlyIncreasing(t *testing.T) {
	stages := Stages()
	for i, s := range stages {
		if s.Ordinal() != i {
			t.Errorf("Ordinal(%s) = %d, want %d", s, s.Ordinal(), i)
		}
	}
	if StageFailed.Ordinal() != -1 {
		t.Errorf("FAILED must sit outside the forward order")
	}
}

func TestNewSessionID_Format(t *testing.T) {
	now := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	id := NewSessionID(now)

	pattern := regexp.MustCompile(`^run_2026_03_09_[0-9a-f]{8}$`)
	if !pattern.MatchString(id) {
		t.Errorf("unexpected session id %q", id)
	}
	if id == NewSessionID(now) {
		t.Error("expected distinct ids for two calls")
	}
}

func TestSession_CloneIsDeep(t *testing.T) {
	text := "page body"
	score := 42.0
	value := 10.0
	s := NewSession("Should we adopt technology X?", time.Now())
	s.SubQuestions = []SubQuestion{{ID: "sq_1", Text: "cost?", SourceIDs: []string{"src_1"}}}
	s.Sources = []Source{{ID: "src_1", URL: "https://a.example", Text: &text, RankScore: &score, Status: ExtractionOK}}
	s.Claims = []Claim{{ID: "c_1", SourceID: "src_1", Value: &value}}
	s.Gaps = []Gap{{ID: "gap_1", Kind: GapUnknown, Subject: "sq_1"}}
	s.Recommendation = &Recommendation{Decision: "adopt", Risks: []string{"cost"}}

	c := s.Clone()
	c.SubQuestions[0].SourceIDs[0] = "changed"
	*c.Sources[0].Text = "changed"
	*c.Sources[0].RankScore = 0
	*c.Claims[0].Value = 0
	c.Gaps[0].Subject = "changed"
	c.Recommendation.Risks[0] = "changed"

	if s.SubQuestions[0].SourceIDs[0] != "src_1" {
		t.Error("sub-question source ids aliased")
	}
	if *s.Sources[0].Text != "page body" || *s.Sources[0].RankScore != 42 {
		t.Error("source pointers aliased")
	}
	if *s.Claims[0].Value != 10 {
		t.Error("claim value aliased")
	}
	if s.Gaps[0].Subject != "sq_1" {
		t.Error("gaps aliased")
	}
	if s.Recommendation.Risks[0] != "cost" {
		t.Error("recommendation aliased")
	}
}

func TestSession_ClaimsFor(t *testing.T) {
	s := &Session{Claims: []Claim{
		{ID: "c_1", SourceID: "a"},
		{ID: "c_2", SourceID: "b"},
		{ID: "c_3", SourceID: "a"},
	}}

	got := s.ClaimsFor("a")
	if len(got) != 2 || got[0].ID != "c_1" || got[1].ID != "c_3" {
		t.Errorf("ClaimsFor(a) = %+v", got)
	}
	if len(s.ClaimsFor("missing")) != 0 {
		t.Error("expected no claims for unknown source")
	}
}
