package model

// GapKind classifies a detected gap
type GapKind string

const (
	GapConflict   GapKind = "CONFLICT"
	GapUnknown    GapKind = "UNKNOWN"
	GapAssumption GapKind = "ASSUMPTION"
)

// Rank orders kinds for deterministic tie-breaking
func (k GapKind) Rank() int {
	switch k {
	case GapConflict:
		return 0
	case GapUnknown:
		return 1
	case GapAssumption:
		return 2
	default:
		return 3
	}
}

// Gap is a detected unknown, conflict, or assumption in the evidence
type Gap struct {
	ID          string  `json:"id"`
	Kind        GapKind `json:"kind"`
	Description string  `json:"description"`

	// ClaimIDs lists implicated claims: two or more for CONFLICT, none otherwise
	ClaimIDs []string `json:"claim_ids"`

	// Subject names what the gap is about: the sub-question id for UNKNOWN,
	// the basis claim id for ASSUMPTION and the topic key for CONFLICT.
	Subject string `json:"subject"`

	Severity float64 `json:"severity"` // In [0,1]
}
