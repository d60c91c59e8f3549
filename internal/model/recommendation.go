package model

// Confidence is the qualitative confidence level of a recommendation
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// ParseConfidence normalises a confidence label
func ParseConfidence(s string) (Confidence, bool) {
	switch Confidence(s) {
	case ConfidenceLow, "LOW", "Low":
		return ConfidenceLow, true
	case ConfidenceMedium, "MEDIUM", "Medium":
		return ConfidenceMedium, true
	case ConfidenceHigh, "HIGH", "High":
		return ConfidenceHigh, true
	default:
		return "", false
	}
}

// Clarification is one question put to the user about one or more gaps
type Clarification struct {
	ID             string   `json:"id"`
	Question       string   `json:"question"`
	WhyItMatters   string   `json:"why_it_matters,omitempty"`
	ExampleAnswers []string `json:"example_answers,omitempty"`
	GapIDs         []string `json:"gap_ids"`
}

// Answer is the user's reply to a clarification
type Answer struct {
	ClarificationID string `json:"clarification_id,omitempty"`
	Text            string `json:"text"`
}

// EvidenceRef points at a ranked source supporting the decision
type EvidenceRef struct {
	SourceID string  `json:"source_id"`
	URL      string  `json:"url"`
	Title    string  `json:"title,omitempty"`
	Weight   float64 `json:"weight"` // Rank score normalised to sum to 1 across refs
	Why      string  `json:"why,omitempty"`
}

// TradeOff is one pro/con pair
type TradeOff struct {
	Pro string `json:"pro"`
	Con string `json:"con"`
}

// Recommendation is the terminal artifact of a session
type Recommendation struct {
	Decision     string        `json:"decision"`
	Confidence   Confidence    `json:"confidence"`
	Evidence     []EvidenceRef `json:"evidence"`
	ResidualGaps []Gap         `json:"residual_gaps"` // Caveats left unresolved

	KeyReasons []string   `json:"key_reasons,omitempty"`
	TradeOffs  []TradeOff `json:"trade_offs,omitempty"`
	Risks      []string   `json:"risks,omitempty"`
	NextSteps  []string   `json:"next_steps,omitempty"`
	Disclaimer string     `json:"disclaimer,omitempty"`
}

// Clone returns a deep copy
func (r *Recommendation) Clone() *Recommendation {
	if r == nil {
		return nil
	}
	c := *r
	c.Evidence = append([]EvidenceRef(nil), r.Evidence...)
	c.ResidualGaps = make([]Gap, len(r.ResidualGaps))
	for i, g := range r.ResidualGaps {
		g.ClaimIDs = append([]string(nil), g.ClaimIDs...)
		c.ResidualGaps[i] = g
	}
	c.KeyReasons = append([]string(nil), r.KeyReasons...)
	c.TradeOffs = append([]TradeOff(nil), r.TradeOffs...)
	c.Risks = append([]string(nil), r.Risks...)
	c.NextSteps = append([]string(nil), r.NextSteps...)
	return &c
}
