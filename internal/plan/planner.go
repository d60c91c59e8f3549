package plan

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ppiankov/decisio/internal/llm"
	"github.com/ppiankov/decisio/internal/model"
)

const decompositionSystemRole = `You are a decision support assistant. Break a decision question into research sub-questions that gather evidence FOR and AGAINST the decision.

Rules:
1. Each sub-question must be answerable from external sources.
2. Avoid duplicates and near-duplicates.
3. Cover decision-relevant angles: evidence of success in practice, reported failures and limitations, unresolved risks, conditions required for success, practitioner recommendations.
4. Use decision-oriented language, not academic phrasing ("What studies have been published...").`

// DecompositionError means the question could not be split into usable
// sub-questions. It is fatal for the session.
type DecompositionError struct {
	Question string
	Err      error
}

func (e *DecompositionError) Error() string {
	return fmt.Sprintf("decomposition failed: %v", e.Err)
}

func (e *DecompositionError) Unwrap() error {
	return e.Err
}

var errNoSubQuestions = errors.New("reasoner returned no sub-questions")

type decomposition struct {
	SubQuestions []string `json:"sub_questions"`
}

func (d *decomposition) SchemaName() string { return "decomposition" }

func (d *decomposition) SchemaHint() string {
	return `{"sub_questions": ["question 1", "question 2"]}`
}

func (d *decomposition) Validate() error {
	if d.SubQuestions == nil {
		return errors.New(`missing "sub_questions" array`)
	}
	return nil
}

// Planner decomposes a decision question into sub-questions
type Planner struct {
	reasoner llm.LanguageReasoner
	config   model.PlanConfig
}

// NewPlanner creates a planner backed by reasoner
func NewPlanner(reasoner llm.LanguageReasoner, config model.PlanConfig) *Planner {
	return &Planner{reasoner: reasoner, config: config}
}

// Decompose returns the cleaned sub-question texts of question: trimmed,
// deduplicated case-insensitively and capped at MaxSubQuestions. Any
// reasoner failure or an empty result is a *DecompositionError.
func (p *Planner) Decompose(ctx context.Context, question string) ([]string, error) {
	limit := p.config.MaxSubQuestions
	if limit <= 0 {
		limit = 7
	}

	prompt := fmt.Sprintf(`Break down this decision question into at most %d evidence-gathering sub-questions:

QUESTION: %s

Generate sub-questions that help someone DECIDE, not just learn. Focus on evidence of success or failure in real-world use, reported risks and limitations, conditions required for success and practitioner recommendations.`,
		limit, question)

	var result decomposition
	if err := p.reasoner.Reason(ctx, decompositionSystemRole, prompt, &result); err != nil {
		return nil, &DecompositionError{Question: question, Err: err}
	}

	cleaned := clean(result.SubQuestions, limit)
	if len(cleaned) == 0 {
		return nil, &DecompositionError{Question: question, Err: errNoSubQuestions}
	}
	return cleaned, nil
}

func clean(raw []string, limit int) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(raw))
	for _, sq := range raw {
		sq = strings.Join(strings.Fields(sq), " ")
		if sq == "" {
			continue
		}
		key := strings.ToLower(sq)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, sq)
		if len(out) == limit {
			break
		}
	}
	return out
}

// SubQuestions builds the session records for texts, with ids sq_1..n
func SubQuestions(sessionID string, texts []string) []model.SubQuestion {
	out := make([]model.SubQuestion, len(texts))
	for i, text := range texts {
		out[i] = model.SubQuestion{
			ID:        fmt.Sprintf("sq_%d", i+1),
			SessionID: sessionID,
			Text:      text,
			SourceIDs: []string{},
		}
	}
	return out
}
