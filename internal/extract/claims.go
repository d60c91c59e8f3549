package extract

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/ppiankov/decisio/internal/llm"
	"github.com/ppiankov/decisio/internal/model"
)

const claimsSystemRole = `You are an evidence extraction assistant. Extract specific, atomic claims that the article actually states.

Rules:
1. Each claim is one concrete assertion attributable to the article.
2. Categorize each claim as one of: benefit, risk, limitation, example, metric, practice, failure.
3. Stance is relative to the research question: SUPPORTS, OPPOSES or NEUTRAL.
4. subject names the thing the claim is about and attribute the property it asserts (e.g. subject "postgres", attribute "write latency").
5. When the claim states a number, give value and unit.
6. confidence is how firmly the article asserts it, from 0 to 1. Set hedged when the article itself hedges or cannot back the claim.

Avoid generic statements, marketing language and opinions without evidence.
Prefer reported failures, quantitative data, concrete examples, risks and limitations.`

// genericPatterns mark fluff that carries no decision value
var genericPatterns = []string{
	"is transforming",
	"is revolutionizing",
	"is changing the world",
	"has the potential",
	"is becoming increasingly",
	"is gaining traction",
	"is on the rise",
	"is here to stay",
	"is the future",
	"companies are adopting",
	"organizations are using",
	"the industry is moving",
}

// ClaimExtractor turns cleaned source text into typed claims
type ClaimExtractor struct {
	reasoner llm.LanguageReasoner
	config   model.ClaimsConfig
}

// NewClaimExtractor creates a claim extractor backed by reasoner
func NewClaimExtractor(reasoner llm.LanguageReasoner, config model.ClaimsConfig) *ClaimExtractor {
	return &ClaimExtractor{reasoner: reasoner, config: config}
}

type claimsResult struct {
	Claims []claimItem `json:"claims"`
}

type claimItem struct {
	Text       string   `json:"text"`
	Type       string   `json:"type"`
	Stance     string   `json:"stance"`
	Subject    string   `json:"subject"`
	Attribute  string   `json:"attribute"`
	Value      *float64 `json:"value"`
	Unit       string   `json:"unit"`
	Confidence *float64 `json:"confidence"`
	Hedged     bool     `json:"hedged"`
}

func (r *claimsResult) SchemaName() string { return "claim_extraction" }

func (r *claimsResult) SchemaHint() string {
	return `{"claims": [{"text": "...", "type": "risk|benefit|limitation|example|metric|practice|failure", "stance": "SUPPORTS|OPPOSES|NEUTRAL", "subject": "...", "attribute": "...", "value": 12.5, "unit": "ms", "confidence": 0.8, "hedged": false}]}`
}

func (r *claimsResult) Validate() error {
	if r.Claims == nil {
		return errors.New(`missing "claims" array`)
	}
	for i, c := range r.Claims {
		if _, ok := model.ParseStance(c.Stance); !ok {
			return fmt.Errorf("claim %d: unknown stance %q", i, c.Stance)
		}
	}
	return nil
}

// Extract asks the reasoner for the claims of one extracted source. Claims
// that are too short or generic are dropped, and at most MaxPerSource are kept.
// Claim ids derive from the source id, so repeated runs number them alike.
func (e *ClaimExtractor) Extract(ctx context.Context, question string, src *model.Source) ([]model.Claim, error) {
	if src.Text == nil {
		return nil, fmt.Errorf("source %s has no extracted text", src.ID)
	}

	prompt := fmt.Sprintf(`RESEARCH QUESTION: %s

ARTICLE TITLE: %s
ARTICLE URL: %s

CONTENT:
%s

---

Extract up to %d claims that would help someone decide on the research question.`,
		question, src.Title, src.URL, truncateForPrompt(*src.Text, e.config.MaxInputChars), e.config.MaxPerSource)

	var result claimsResult
	if err := e.reasoner.Reason(ctx, claimsSystemRole, prompt, &result); err != nil {
		return nil, err
	}

	claims := make([]model.Claim, 0, len(result.Claims))
	seen := make(map[string]bool)
	for _, item := range result.Claims {
		text := strings.TrimSpace(item.Text)
		key := strings.ToLower(text)
		if len(text) < e.config.MinLength || isGeneric(key) || seen[key] {
			continue
		}
		seen[key] = true

		stance, _ := model.ParseStance(item.Stance)
		claims = append(claims, model.Claim{
			ID:         fmt.Sprintf("%s_c%d", src.ID, len(claims)+1),
			SourceID:   src.ID,
			Text:       text,
			Type:       model.ParseClaimType(strings.ToLower(strings.TrimSpace(item.Type))),
			Stance:     stance,
			Subject:    strings.TrimSpace(item.Subject),
			Attribute:  strings.TrimSpace(item.Attribute),
			Value:      item.Value,
			Unit:       strings.TrimSpace(item.Unit),
			Confidence: e.confidence(item.Confidence),
			Hedged:     item.Hedged,
		})

		if e.config.MaxPerSource > 0 && len(claims) == e.config.MaxPerSource {
			break
		}
	}

	return claims, nil
}

// confidence clamps a reported confidence into [0,1]; a missing one gets the default
func (e *ClaimExtractor) confidence(reported *float64) float64 {
	if reported == nil {
		return e.config.DefaultConfidence
	}
	return math.Max(0, math.Min(1, *reported))
}

func isGeneric(lower string) bool {
	for _, pattern := range genericPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}
