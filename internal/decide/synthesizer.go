package decide

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ppiankov/decisio/internal/llm"
	"github.com/ppiankov/decisio/internal/model"
)

// Disclaimer is attached to every recommendation
const Disclaimer = "This analysis is for informational purposes only and is not professional legal, medical or financial advice. Consult qualified professionals for important decisions."

const (
	maxEvidence   = 5
	maxKeyReasons = 6
	maxTradeOffs  = 4
	maxRisks      = 5
	maxNextSteps  = 5

	maxPromptClaims = 20
	maxClaimsByType = 3
)

const decisionSystemRole = `You are a decision support assistant producing a final recommendation from research evidence.

CONFIDENCE:
- high: only if evidence is overwhelming, consistent and gaps are minimal
- medium: the default when evidence is mixed, gaps exist or context matters
- low: evidence is sparse, highly conflicting or major unknowns remain

STYLE:
- Be nuanced, not absolute. Prefer conditional phrasing that says when and where the recommendation applies.
- Cite specific evidence for every key reason.
- Respect the user's clarification answers.`

// claimPriority orders claim types by decision value in the prompt
var claimPriority = []model.ClaimType{
	model.ClaimTypeRisk,
	model.ClaimTypeFailure,
	model.ClaimTypeLimitation,
	model.ClaimTypeMetric,
	model.ClaimTypePractice,
	model.ClaimTypeExample,
	model.ClaimTypeBenefit,
	model.ClaimTypeUnknown,
}

type decisionResult struct {
	Decision         string           `json:"decision"`
	Confidence       string           `json:"confidence"`
	ConfidenceReason string           `json:"confidence_reason"`
	KeyReasons       []string         `json:"key_reasons"`
	TradeOffs        []model.TradeOff `json:"trade_offs"`
	Risks            []string         `json:"risks"`
	NextSteps        []string         `json:"next_steps"`
	SourceNotes      []sourceNote     `json:"source_notes"`
}

type sourceNote struct {
	SourceID string `json:"source_id"`
	Why      string `json:"why"`
}

func (r *decisionResult) SchemaName() string { return "decision" }

func (r *decisionResult) SchemaHint() string {
	return `{"decision": "1-2 sentence recommendation", "confidence": "low|medium|high", "confidence_reason": "...", "key_reasons": ["..."], "trade_offs": [{"pro": "...", "con": "..."}], "risks": ["..."], "next_steps": ["..."], "source_notes": [{"source_id": "src_1", "why": "..."}]}`
}

func (r *decisionResult) Validate() error {
	if strings.TrimSpace(r.Decision) == "" {
		return errors.New(`missing "decision"`)
	}
	if _, ok := model.ParseConfidence(strings.ToLower(strings.TrimSpace(r.Confidence))); !ok {
		return fmt.Errorf("unknown confidence %q", r.Confidence)
	}
	return nil
}

// Synthesizer drafts the final recommendation of a session
type Synthesizer struct {
	reasoner llm.LanguageReasoner
}

// NewSynthesizer creates a synthesizer backed by reasoner
func NewSynthesizer(reasoner llm.LanguageReasoner) *Synthesizer {
	return &Synthesizer{reasoner: reasoner}
}

// Synthesize asks the reasoner for a decision over the ranked evidence and
// the clarification answers of sess. The residual gaps, evidence weights,
// list caps and confidence cap are applied here, not left to the reasoner.
// sess is not modified.
func (s *Synthesizer) Synthesize(ctx context.Context, sess *model.Session) (*model.Recommendation, error) {
	ranked := rankedSources(sess)
	residual := ResidualGaps(sess)

	var result decisionResult
	if err := s.reasoner.Reason(ctx, decisionSystemRole, buildPrompt(sess, ranked, residual), &result); err != nil {
		return nil, err
	}

	notes := make(map[string]string)
	for _, n := range result.SourceNotes {
		if why := strings.TrimSpace(n.Why); why != "" {
			notes[strings.TrimSpace(n.SourceID)] = why
		}
	}

	evidence := evidenceRefs(ranked, notes)
	confidence, _ := model.ParseConfidence(strings.ToLower(strings.TrimSpace(result.Confidence)))

	return &model.Recommendation{
		Decision:     strings.TrimSpace(result.Decision),
		Confidence:   capConfidence(confidence, residual, len(evidence)),
		Evidence:     evidence,
		ResidualGaps: residual,
		KeyReasons:   capList(result.KeyReasons, maxKeyReasons),
		TradeOffs:    capTradeOffs(result.TradeOffs, maxTradeOffs),
		Risks:        capList(result.Risks, maxRisks),
		NextSteps:    capList(result.NextSteps, maxNextSteps),
		Disclaimer:   Disclaimer,
	}, nil
}

// rankedSources returns the ranked sources of sess in rank order
func rankedSources(sess *model.Session) []model.Source {
	var out []model.Source
	for _, src := range sess.Sources {
		if src.Rank > 0 && src.RankScore != nil {
			out = append(out, src)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out
}

// evidenceRefs weights the top ranked sources by rank score, normalised to
// sum to 1. Sources scoring zero share the weight equally.
func evidenceRefs(ranked []model.Source, notes map[string]string) []model.EvidenceRef {
	if len(ranked) > maxEvidence {
		ranked = ranked[:maxEvidence]
	}

	var total float64
	for _, src := range ranked {
		total += *src.RankScore
	}

	refs := make([]model.EvidenceRef, 0, len(ranked))
	for _, src := range ranked {
		weight := 1 / float64(len(ranked))
		if total > 0 {
			weight = *src.RankScore / total
		}
		why, ok := notes[src.ID]
		if !ok {
			why = justification(src)
		}
		refs = append(refs, model.EvidenceRef{
			SourceID: src.ID,
			URL:      src.URL,
			Title:    src.Title,
			Weight:   weight,
			Why:      why,
		})
	}
	return refs
}

// justification summarises the rank signals of a source
func justification(src model.Source) string {
	parts := make([]string, 0, len(src.RankSignals)+1)
	parts = append(parts, fmt.Sprintf("rank %d, score %.2f", src.Rank, *src.RankScore))
	for _, sig := range src.RankSignals {
		if sig.Description != "" {
			parts = append(parts, sig.Description)
		}
	}
	return strings.Join(parts, "; ")
}

func buildPrompt(sess *model.Session, ranked []model.Source, residual []model.Gap) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ORIGINAL QUESTION: %s\n\n", sess.Question)

	b.WriteString("KEY EVIDENCE (from ranked sources):\n")
	titles := make(map[string]string, len(ranked))
	for _, src := range ranked {
		titles[src.ID] = src.Title
	}
	byType := make(map[model.ClaimType][]model.Claim)
	for _, c := range sess.Claims {
		if _, ok := titles[c.SourceID]; ok {
			byType[c.Type] = append(byType[c.Type], c)
		}
	}
	count := 0
	for _, t := range claimPriority {
		claims := byType[t]
		if len(claims) > maxClaimsByType {
			claims = claims[:maxClaimsByType]
		}
		for _, c := range claims {
			if count == maxPromptClaims {
				break
			}
			fmt.Fprintf(&b, "[%s] [%s] %s\n  Source: %s (%s)\n", strings.ToUpper(string(t)), c.Stance, c.Text, titles[c.SourceID], c.SourceID)
			count++
		}
	}
	if count == 0 {
		b.WriteString("No specific evidence extracted.\n")
	}

	b.WriteString("\nRESIDUAL GAPS:\n")
	if len(residual) == 0 {
		b.WriteString("None.\n")
	}
	for _, g := range residual {
		fmt.Fprintf(&b, "- %s (severity %.2f): %s\n", g.Kind, g.Severity, g.Description)
	}

	b.WriteString("\nTOP SOURCES:\n")
	if len(ranked) == 0 {
		b.WriteString("No sources available.\n")
	}
	for i, src := range ranked {
		if i == maxEvidence {
			break
		}
		fmt.Fprintf(&b, "- %s: %s\n  URL: %s\n  Score: %.2f\n", src.ID, src.Title, src.URL, *src.RankScore)
	}

	if answers := answerLines(sess); len(answers) > 0 {
		b.WriteString("\nUSER CLARIFICATIONS:\n")
		for _, line := range answers {
			b.WriteString(line + "\n")
		}
	} else if sess.ClarificationSkipped {
		b.WriteString("\nThe user skipped clarification; treat open questions as unresolved.\n")
	}

	b.WriteString("\n---\n\nSynthesize this into a nuanced, actionable recommendation. Factor the residual gaps into the confidence level.")
	return b.String()
}

func answerLines(sess *model.Session) []string {
	questions := make(map[string]string, len(sess.Clarifications))
	for _, c := range sess.Clarifications {
		questions[c.ID] = c.Question
	}
	var lines []string
	for _, a := range sess.Answers {
		if a.Text == "" {
			continue
		}
		if q, ok := questions[a.ClarificationID]; ok {
			lines = append(lines, fmt.Sprintf("Q: %s\nA: %s", q, a.Text))
		} else {
			lines = append(lines, "Note: "+a.Text)
		}
	}
	return lines
}

func capList(items []string, max int) []string {
	out := make([]string, 0, max)
	for _, item := range items {
		if item = strings.TrimSpace(item); item == "" {
			continue
		}
		out = append(out, item)
		if len(out) == max {
			break
		}
	}
	return out
}

func capTradeOffs(items []model.TradeOff, max int) []model.TradeOff {
	out := make([]model.TradeOff, 0, max)
	for _, t := range items {
		if t.Pro == "" && t.Con == "" {
			continue
		}
		out = append(out, t)
		if len(out) == max {
			break
		}
	}
	return out
}
