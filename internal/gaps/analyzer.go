package gaps

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ppiankov/decisio/internal/model"
)

const (
	severityNoSources = 0.9
	severityNoClaims  = 0.7

	// neutralCredibility stands in for sources that carry no rank score
	neutralCredibility = 0.5
)

// Analyzer detects conflicts, unknowns and assumptions over a session's
// evidence. It is a pure function of its input.
type Analyzer struct {
	config model.GapsConfig
}

// NewAnalyzer creates an analyzer with the given thresholds
func NewAnalyzer(config model.GapsConfig) *Analyzer {
	return &Analyzer{config: config}
}

// Analyze returns the deduplicated gaps of sess, sorted by severity
// descending with ids gap_1..n. sess is not modified.
func (a *Analyzer) Analyze(sess *model.Session) []model.Gap {
	sources := make(map[string]*model.Source, len(sess.Sources))
	for i := range sess.Sources {
		sources[sess.Sources[i].ID] = &sess.Sources[i]
	}

	var found []model.Gap
	found = append(found, a.conflicts(sess.Claims, sources)...)
	found = append(found, a.unknowns(sess, sources)...)
	found = append(found, a.assumptions(sess.Claims)...)

	gaps := dedupe(found)
	sort.SliceStable(gaps, func(i, j int) bool {
		if gaps[i].Severity != gaps[j].Severity {
			return gaps[i].Severity > gaps[j].Severity
		}
		if gaps[i].Kind.Rank() != gaps[j].Kind.Rank() {
			return gaps[i].Kind.Rank() < gaps[j].Kind.Rank()
		}
		if gaps[i].Subject != gaps[j].Subject {
			return gaps[i].Subject < gaps[j].Subject
		}
		return strings.Join(gaps[i].ClaimIDs, ",") < strings.Join(gaps[j].ClaimIDs, ",")
	})

	for i := range gaps {
		gaps[i].ID = fmt.Sprintf("gap_%d", i+1)
	}
	return gaps
}

// conflicts emits at most one CONFLICT per topic partition, implicating
// every claim that disagrees with another claim of the partition
func (a *Analyzer) conflicts(claims []model.Claim, sources map[string]*model.Source) []model.Gap {
	partitions := make(map[string][]*model.Claim)
	var order []string
	for i := range claims {
		key := TopicKey(claims[i].Subject, claims[i].Attribute)
		if key == "" {
			continue
		}
		if _, ok := partitions[key]; !ok {
			order = append(order, key)
		}
		partitions[key] = append(partitions[key], &claims[i])
	}

	var gaps []model.Gap
	for _, key := range order {
		members := partitions[key]
		if len(members) < 2 {
			continue
		}

		implicated := make(map[string]bool)
		var reasons []string

		if stanceIDs := a.stanceDisagreement(members); len(stanceIDs) > 0 {
			for _, id := range stanceIDs {
				implicated[id] = true
			}
			reasons = append(reasons, "opposite stances")
		}
		if numericIDs := a.numericDisagreement(members); len(numericIDs) > 0 {
			for _, id := range numericIDs {
				implicated[id] = true
			}
			reasons = append(reasons, "inconsistent figures")
		}

		if len(implicated) < 2 {
			continue
		}

		ids := make([]string, 0, len(implicated))
		var credSum float64
		for _, c := range members {
			if implicated[c.ID] {
				ids = append(ids, c.ID)
				credSum += sourceCredibility(sources[c.SourceID])
			}
		}
		sort.Strings(ids)

		n := float64(len(ids))
		severity := 0.4 + 0.3*(1-1/n) + 0.3*(credSum/n)

		gaps = append(gaps, model.Gap{
			Kind: model.GapConflict,
			Description: fmt.Sprintf("Sources disagree on %s of %s (%s across %d claims)",
				members[0].Attribute, members[0].Subject, strings.Join(reasons, " and "), len(ids)),
			ClaimIDs: ids,
			Subject:  key,
			Severity: roundSeverity(severity),
		})
	}
	return gaps
}

// stanceDisagreement returns the SUPPORTS and OPPOSES claims when both occur
func (a *Analyzer) stanceDisagreement(members []*model.Claim) []string {
	var supports, opposes []string
	for _, c := range members {
		switch c.Stance {
		case model.StanceSupports:
			supports = append(supports, c.ID)
		case model.StanceOpposes:
			opposes = append(opposes, c.ID)
		}
	}
	if len(supports) == 0 || len(opposes) == 0 {
		return nil
	}
	return append(supports, opposes...)
}

// numericDisagreement returns claims whose value differs from another claim
// of the same unit by more than the relative tolerance
func (a *Analyzer) numericDisagreement(members []*model.Claim) []string {
	var ids []string
	flagged := make(map[string]bool)
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			x, y := members[i], members[j]
			if x.Value == nil || y.Value == nil || normalizeUnit(x.Unit) != normalizeUnit(y.Unit) {
				continue
			}
			if relativeDiff(*x.Value, *y.Value) <= a.config.NumericTolerance {
				continue
			}
			for _, c := range []*model.Claim{x, y} {
				if !flagged[c.ID] {
					flagged[c.ID] = true
					ids = append(ids, c.ID)
				}
			}
		}
	}
	return ids
}

// unknowns emits one UNKNOWN per sub-question without usable evidence
func (a *Analyzer) unknowns(sess *model.Session, sources map[string]*model.Source) []model.Gap {
	claimCount := make(map[string]int)
	for _, c := range sess.Claims {
		claimCount[c.SourceID]++
	}

	var gaps []model.Gap
	for _, sq := range sess.SubQuestions {
		okSources, claims := 0, 0
		for _, id := range sq.SourceIDs {
			src, ok := sources[id]
			if !ok || src.Status != model.ExtractionOK {
				continue
			}
			okSources++
			claims += claimCount[id]
		}

		switch {
		case okSources == 0:
			gaps = append(gaps, model.Gap{
				Kind:        model.GapUnknown,
				Description: fmt.Sprintf("No usable sources were found for: %s", sq.Text),
				Subject:     sq.ID,
				Severity:    severityNoSources,
			})
		case claims == 0:
			gaps = append(gaps, model.Gap{
				Kind:        model.GapUnknown,
				Description: fmt.Sprintf("Sources for %q yielded no concrete claims", sq.Text),
				Subject:     sq.ID,
				Severity:    severityNoClaims,
			})
		}
	}
	return gaps
}

// assumptions emits one ASSUMPTION per low-confidence or hedged claim
func (a *Analyzer) assumptions(claims []model.Claim) []model.Gap {
	var gaps []model.Gap
	for _, c := range claims {
		if c.Confidence >= a.config.ConfidenceFloor && !c.Hedged {
			continue
		}

		severity := 0.3 + 0.5*(1-c.Confidence)
		qualifier := fmt.Sprintf("low extraction confidence %.2f", c.Confidence)
		if c.Hedged {
			severity += 0.1
			qualifier = "hedged by its source"
		}

		gaps = append(gaps, model.Gap{
			Kind:        model.GapAssumption,
			Description: fmt.Sprintf("Relies on an unverified claim (%s): %s", qualifier, c.Text),
			Subject:     c.ID,
			Severity:    roundSeverity(math.Min(severity, 1)),
		})
	}
	return gaps
}

// dedupe keeps the first gap per (kind, subject, sorted claim ids)
func dedupe(gaps []model.Gap) []model.Gap {
	seen := make(map[string]bool)
	unique := make([]model.Gap, 0, len(gaps))
	for _, g := range gaps {
		ids := make([]string, 0, len(g.ClaimIDs))
		ids = append(ids, g.ClaimIDs...)
		sort.Strings(ids)
		key := string(g.Kind) + "\x00" + g.Subject + "\x00" + strings.Join(ids, ",")
		if seen[key] {
			continue
		}
		seen[key] = true
		g.ClaimIDs = ids
		unique = append(unique, g)
	}
	return unique
}

func sourceCredibility(src *model.Source) float64 {
	if src == nil || src.RankScore == nil {
		return neutralCredibility
	}
	return math.Max(0, math.Min(1, *src.RankScore/100))
}

func relativeDiff(x, y float64) float64 {
	denom := math.Max(math.Abs(x), math.Abs(y))
	if denom == 0 {
		return 0
	}
	return math.Abs(x-y) / denom
}

func roundSeverity(v float64) float64 {
	return math.Round(v*1000) / 1000
}
