package model

import "strings"

// Stance is the polarity of a claim relative to the question it answers
type Stance string

const (
	StanceSupports Stance = "SUPPORTS"
	StanceOpposes  Stance = "OPPOSES"
	StanceNeutral  Stance = "NEUTRAL"
)

// ParseStance normalises a stance label in any case. An empty label is
// NEUTRAL; an unknown label reports ok=false.
func ParseStance(s string) (Stance, bool) {
	switch Stance(strings.ToUpper(strings.TrimSpace(s))) {
	case StanceSupports, "SUPPORT", "POSITIVE", "PRO":
		return StanceSupports, true
	case StanceOpposes, "OPPOSE", "NEGATIVE", "CON":
		return StanceOpposes, true
	case StanceNeutral, "":
		return StanceNeutral, true
	default:
		return StanceNeutral, false
	}
}

// Opposes reports whether two stances are mutually inconsistent
func (s Stance) Opposes(other Stance) bool {
	return (s == StanceSupports && other == StanceOpposes) ||
		(s == StanceOpposes && other == StanceSupports)
}

// ClaimType categorizes the nature of the claim
type ClaimType string

const (
	ClaimTypeBenefit    ClaimType = "benefit"    // Advantages or positive outcomes
	ClaimTypeRisk       ClaimType = "risk"       // Potential problems or dangers
	ClaimTypeLimitation ClaimType = "limitation" // Constraints or boundaries
	ClaimTypeExample    ClaimType = "example"    // Concrete usage examples
	ClaimTypeMetric     ClaimType = "metric"     // Quantitative measurements
	ClaimTypePractice   ClaimType = "practice"   // Recommended approaches
	ClaimTypeFailure    ClaimType = "failure"    // Documented failures
	ClaimTypeUnknown    ClaimType = "unknown"
)

// ParseClaimType maps a label to a known claim type
func ParseClaimType(s string) ClaimType {
	switch t := ClaimType(s); t {
	case ClaimTypeBenefit, ClaimTypeRisk, ClaimTypeLimitation, ClaimTypeExample,
		ClaimTypeMetric, ClaimTypePractice, ClaimTypeFailure:
		return t
	default:
		return ClaimTypeUnknown
	}
}

// Claim represents an atomic assertion extracted from a source
type Claim struct {
	ID       string    `json:"id"`
	SourceID string    `json:"source_id"`
	Text     string    `json:"text"`
	Type     ClaimType `json:"type"`
	Stance   Stance    `json:"stance"`

	// Subject and Attribute feed the topic key used for conflict detection
	Subject   string `json:"subject,omitempty"`
	Attribute string `json:"attribute,omitempty"`

	Value *float64 `json:"value,omitempty"` // Numeric value for comparison
	Unit  string   `json:"unit,omitempty"`

	Confidence float64 `json:"confidence"`       // As reported by the extraction call
	Hedged     bool    `json:"hedged,omitempty"` // Extraction flagged the claim as unverifiable
}

func (c Claim) clone() Claim {
	if c.Value != nil {
		v := *c.Value
		c.Value = &v
	}
	return c
}
