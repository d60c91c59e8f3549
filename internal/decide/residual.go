package decide

import "github.com/ppiankov/decisio/internal/model"

// highSeverity marks UNKNOWN gaps that weigh on confidence
const highSeverity = 0.8

// ResidualGaps returns the gaps an answered clarification did not resolve,
// in session order. An answer resolves the CONFLICT and ASSUMPTION gaps of
// its clarification. UNKNOWN gaps stay residual whatever the answers say:
// answers carry preferences, not evidence.
func ResidualGaps(sess *model.Session) []model.Gap {
	answered := make(map[string]bool)
	for _, a := range sess.Answers {
		if a.ClarificationID != "" && a.Text != "" {
			answered[a.ClarificationID] = true
		}
	}

	resolved := make(map[string]bool)
	if !sess.ClarificationSkipped {
		for _, c := range sess.Clarifications {
			if !answered[c.ID] {
				continue
			}
			for _, id := range c.GapIDs {
				resolved[id] = true
			}
		}
	}

	residual := make([]model.Gap, 0, len(sess.Gaps))
	for _, g := range sess.Gaps {
		if g.Kind != model.GapUnknown && resolved[g.ID] {
			continue
		}
		g.ClaimIDs = append([]string(nil), g.ClaimIDs...)
		residual = append(residual, g)
	}
	return residual
}

// capConfidence lowers high confidence to medium when the residual gaps are
// too many or too serious, and to low when no ranked evidence exists
func capConfidence(c model.Confidence, residual []model.Gap, evidence int) model.Confidence {
	if evidence == 0 {
		return model.ConfidenceLow
	}
	if c != model.ConfidenceHigh {
		return c
	}

	unknowns, conflicts := 0, 0
	for _, g := range residual {
		switch {
		case g.Kind == model.GapUnknown && g.Severity >= highSeverity:
			unknowns++
		case g.Kind == model.GapConflict:
			conflicts++
		}
	}
	if len(residual) >= 5 || unknowns >= 2 || conflicts >= 2 {
		return model.ConfidenceMedium
	}
	return c
}
