package clarify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ppiankov/decisio/internal/llm"
	"github.com/ppiankov/decisio/internal/model"
)

const clarifierSystemRole = `You are a decision support assistant. Based on gaps identified in the research, you write clarifying questions for the person making the decision.

Each question must:
1. Shape the decision: its answer changes the recommendation.
2. Be answerable in one sentence, in plain English.
3. Not repeat another question.
4. Reference the ids of the gaps it addresses.

Good: "Is human review acceptable, or must the system run unattended?"
Bad: "What is your opinion on X?" (too vague)`

// maxReasonerQuestions bounds the questions taken from the reasoner. Gaps it
// leaves uncovered still get a fallback question each.
const maxReasonerQuestions = 3

type clarificationResult struct {
	Questions []questionItem `json:"questions"`
}

type questionItem struct {
	Question       string   `json:"question"`
	WhyItMatters   string   `json:"why_it_matters"`
	ExampleAnswers []string `json:"example_answers"`
	GapIDs         []string `json:"gap_ids"`
}

func (r *clarificationResult) SchemaName() string { return "clarification" }

func (r *clarificationResult) SchemaHint() string {
	return `{"questions": [{"question": "...", "why_it_matters": "...", "example_answers": ["...", "..."], "gap_ids": ["gap_1"]}]}`
}

func (r *clarificationResult) Validate() error {
	if r.Questions == nil {
		return errors.New(`missing "questions" array`)
	}
	for i, q := range r.Questions {
		if strings.TrimSpace(q.Question) == "" {
			return fmt.Errorf("question %d is empty", i+1)
		}
	}
	return nil
}

// Clarifier turns high-severity gaps into questions for the user
type Clarifier struct {
	reasoner  llm.LanguageReasoner
	threshold float64
}

// NewClarifier creates a clarifier asking about gaps at or above threshold
func NewClarifier(reasoner llm.LanguageReasoner, threshold float64) *Clarifier {
	return &Clarifier{reasoner: reasoner, threshold: threshold}
}

// Threshold returns the severity from which a gap needs clarification
func (c *Clarifier) Threshold() float64 {
	return c.threshold
}

// NeedsClarification reports whether any gap reaches the threshold
func (c *Clarifier) NeedsClarification(gaps []model.Gap) bool {
	return len(c.eligible(gaps)) > 0
}

func (c *Clarifier) eligible(gaps []model.Gap) []model.Gap {
	var out []model.Gap
	for _, g := range gaps {
		if g.Severity >= c.threshold {
			out = append(out, g)
		}
	}
	return out
}

// Clarify asks the reasoner for questions about every gap at or above the
// threshold. Question references to unknown or ineligible gaps are dropped,
// and each eligible gap the reasoner does not reference gets a fallback
// question, so every such gap is covered. Ids are clar_1..n.
func (c *Clarifier) Clarify(ctx context.Context, question string, gaps []model.Gap) ([]model.Clarification, error) {
	eligible := c.eligible(gaps)
	if len(eligible) == 0 {
		return nil, nil
	}

	var result clarificationResult
	if err := c.reasoner.Reason(ctx, clarifierSystemRole, buildPrompt(question, eligible), &result); err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(eligible))
	for _, g := range eligible {
		known[g.ID] = true
	}

	covered := make(map[string]bool)
	var clarifications []model.Clarification
	for _, item := range result.Questions {
		if len(clarifications) == maxReasonerQuestions {
			break
		}
		var ids []string
		for _, id := range item.GapIDs {
			id = strings.TrimSpace(id)
			if known[id] && !contains(ids, id) {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			continue
		}
		for _, id := range ids {
			covered[id] = true
		}
		clarifications = append(clarifications, model.Clarification{
			Question:       strings.TrimSpace(item.Question),
			WhyItMatters:   strings.TrimSpace(item.WhyItMatters),
			ExampleAnswers: item.ExampleAnswers,
			GapIDs:         ids,
		})
	}

	for _, g := range eligible {
		if !covered[g.ID] {
			clarifications = append(clarifications, Fallback(g))
		}
	}

	for i := range clarifications {
		clarifications[i].ID = fmt.Sprintf("clar_%d", i+1)
	}
	return clarifications, nil
}

// Fallback builds a deterministic question about one gap
func Fallback(g model.Gap) model.Clarification {
	var q, why string
	switch g.Kind {
	case model.GapConflict:
		q = sentence(g.Description) + " Which side matches your situation, or do you have first-hand data?"
		why = "The recommendation flips depending on which side of this disagreement holds for you."
	case model.GapUnknown:
		q = sentence(g.Description) + " Can you share context or constraints that answer it?"
		why = "Without evidence on this point the recommendation has to treat it as an open risk."
	default:
		q = sentence(g.Description) + " Can you confirm or rule it out?"
		why = "If the claim does not hold for you, the recommendation may change."
	}
	return model.Clarification{
		Question:     q,
		WhyItMatters: why,
		GapIDs:       []string{g.ID},
	}
}

// sentence terminates text with a full stop unless it already ends in punctuation
func sentence(text string) string {
	text = strings.TrimSpace(text)
	if text == "" || strings.ContainsAny(text[len(text)-1:], ".?!") {
		return text
	}
	return text + "."
}

func buildPrompt(question string, gaps []model.Gap) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ORIGINAL QUESTION: %s\n\nIDENTIFIED GAPS:\n", question)
	for _, g := range gaps {
		fmt.Fprintf(&b, "- [%s] %s (severity %.2f): %s\n", g.ID, g.Kind, g.Severity, g.Description)
	}
	fmt.Fprintf(&b, "\n---\n\nWrite 1-%d clarifying questions that would most change the recommendation if answered. Reference gap ids exactly as given.", maxReasonerQuestions)
	return b.String()
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
