package extract

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/ppiankov/decisio/internal/llm"
	"github.com/ppiankov/decisio/internal/model"
)

// fakeReasoner decodes a canned response the way llm.Reasoner does
type fakeReasoner struct {
	response   string
	err        error
	lastPrompt string
}

func (f *fakeReasoner) Reason(ctx context.Context, systemRole, prompt string, out llm.Schema) error {
	f.lastPrompt = prompt
	if f.err != nil {
		return f.err
	}
	if err := json.Unmarshal([]byte(f.response), out); err != nil {
		return &llm.ReasonerError{Call: out.SchemaName(), Err: llm.ErrMalformedResponse}
	}
	if err := out.Validate(); err != nil {
		return &llm.ReasonerError{Call: out.SchemaName(), Err: llm.ErrSchemaMismatch}
	}
	return nil
}

func testSource(text string) *model.Source {
	return &model.Source{
		ID:     "src_1",
		URL:    "https://example.com/article",
		Title:  "Running X in production",
		Text:   &text,
		Status: model.ExtractionOK,
	}
}

func TestClaimExtractor_Extract(t *testing.T) {
	reasoner := &fakeReasoner{response: `{"claims": [
		{"text": "X reduced p99 latency by 40 percent in our cluster", "type": "Metric", "stance": "supports",
		 "subject": "X", "attribute": "latency", "value": 40, "unit": "percent", "confidence": 0.9},
		{"text": "X is transforming the way teams build software", "type": "benefit", "stance": "SUPPORTS"},
		{"text": "Too short", "type": "risk"},
		{"text": "Upgrades of X required two days of downtime", "type": "failure", "stance": "Opposes",
		 "subject": "X", "attribute": "upgrades", "hedged": true},
		{"text": "Upgrades of X required two days of downtime", "type": "failure", "stance": "OPPOSES"}
	]}`}

	extractor := NewClaimExtractor(reasoner, model.DefaultConfig().Claims)
	claims, err := extractor.Extract(context.Background(), "Should we adopt X?", testSource("body text"))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if len(claims) != 2 {
		t.Fatalf("Expected 2 claims after filtering, got %d: %+v", len(claims), claims)
	}

	first := claims[0]
	if first.ID != "src_1_c1" || first.SourceID != "src_1" {
		t.Errorf("Unexpected ids: %s / %s", first.ID, first.SourceID)
	}
	if first.Type != model.ClaimTypeMetric {
		t.Errorf("Expected metric type, got %s", first.Type)
	}
	if first.Stance != model.StanceSupports {
		t.Errorf("Expected SUPPORTS, got %s", first.Stance)
	}
	if first.Value == nil || *first.Value != 40 || first.Unit != "percent" {
		t.Errorf("Expected value 40 percent, got %v %s", first.Value, first.Unit)
	}
	if first.Confidence != 0.9 {
		t.Errorf("Expected confidence 0.9, got %f", first.Confidence)
	}

	second := claims[1]
	if second.ID != "src_1_c2" {
		t.Errorf("Expected second claim id src_1_c2, got %s", second.ID)
	}
	if second.Confidence != 0.8 {
		t.Errorf("Expected default confidence 0.8, got %f", second.Confidence)
	}
	if second.Stance != model.StanceOpposes {
		t.Errorf("Expected mixed-case stance to parse as OPPOSES, got %s", second.Stance)
	}
	if !second.Hedged {
		t.Error("Expected hedged flag to be kept")
	}

	if !strings.Contains(reasoner.lastPrompt, "Should we adopt X?") {
		t.Error("Prompt should carry the research question")
	}
}

func TestClaimExtractor_MaxPerSource(t *testing.T) {
	var items []string
	for i := 0; i < 10; i++ {
		items = append(items, `{"text": "Distinct concrete claim number `+string(rune('a'+i))+` about X", "type": "example"}`)
	}
	reasoner := &fakeReasoner{response: `{"claims": [` + strings.Join(items, ",") + `]}`}

	extractor := NewClaimExtractor(reasoner, model.DefaultConfig().Claims)
	claims, err := extractor.Extract(context.Background(), "q", testSource("body"))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(claims) != 7 {
		t.Errorf("Expected claims capped at 7, got %d", len(claims))
	}
}

func TestClaimExtractor_TruncatesInput(t *testing.T) {
	reasoner := &fakeReasoner{response: `{"claims": []}`}
	cfg := model.DefaultConfig().Claims
	cfg.MaxInputChars = 50

	extractor := NewClaimExtractor(reasoner, cfg)
	claims, err := extractor.Extract(context.Background(), "q", testSource(strings.Repeat("z", 500)))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(claims) != 0 {
		t.Errorf("Expected no claims, got %d", len(claims))
	}
	if strings.Contains(reasoner.lastPrompt, strings.Repeat("z", 51)) {
		t.Error("Content sent to the reasoner was not truncated")
	}
}

func TestClaimExtractor_Errors(t *testing.T) {
	tests := []struct {
		name     string
		reasoner *fakeReasoner
		wantIs   error
	}{
		{"missing claims array", &fakeReasoner{response: `{"items": []}`}, llm.ErrSchemaMismatch},
		{"malformed", &fakeReasoner{response: `not json`}, llm.ErrMalformedResponse},
		{"unknown stance", &fakeReasoner{response: `{"claims": [{"text": "X split the team into two camps on upgrades", "stance": "mixed"}]}`}, llm.ErrSchemaMismatch},
		{"provider failure", &fakeReasoner{err: &llm.ReasonerError{Call: "claim_extraction", Err: llm.ErrEmptyResponse}}, llm.ErrEmptyResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			extractor := NewClaimExtractor(tt.reasoner, model.DefaultConfig().Claims)
			_, err := extractor.Extract(context.Background(), "q", testSource("body"))
			if !errors.Is(err, tt.wantIs) {
				t.Errorf("Expected %v, got %v", tt.wantIs, err)
			}
			var reasonerErr *llm.ReasonerError
			if !errors.As(err, &reasonerErr) {
				t.Errorf("Expected *llm.ReasonerError, got %T", err)
			}
		})
	}
}

func TestClaimExtractor_NoText(t *testing.T) {
	extractor := NewClaimExtractor(&fakeReasoner{}, model.DefaultConfig().Claims)
	src := &model.Source{ID: "src_9"}
	if _, err := extractor.Extract(context.Background(), "q", src); err == nil {
		t.Error("Expected error for source without text")
	}
}
