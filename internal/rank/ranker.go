package rank

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/ppiankov/decisio/internal/credibility"
	"github.com/ppiankov/decisio/internal/model"
)

const hoursPerMonth = 24 * 30.44

// tierScores map authority tiers to the credibility signal
var tierScores = map[model.AuthorityTier]float64{
	model.TierPrimary:   1.0,
	model.TierSecondary: 0.7,
	model.TierTertiary:  0.4,
	model.TierUnknown:   0.5,
}

// lowQualityScore replaces the tier score of sources with low-credibility titles
const lowQualityScore = 0.2

// Input is what a signal sees of one source
type Input struct {
	Source      *model.Source
	Claims      int
	Credibility model.Credibility
	Now         time.Time
}

// SignalFunc computes one signal. Score must be in [0,1]; the ranker
// fills in the weight.
type SignalFunc func(in Input) model.Signal

// Scored is the ranking outcome of one source
type Scored struct {
	SourceID    string
	Score       float64
	Rank        int
	Signals     []model.Signal
	Credibility model.Credibility
}

// Result is one ranking pass over a session snapshot
type Result struct {
	Ranked   []Scored
	Unranked []model.UnrankedSource
	RankedAt time.Time
}

// Ranker scores sources from recency, credibility and evidence density.
// Each signal is a field so it can be replaced independently.
type Ranker struct {
	Recency     SignalFunc
	Credibility SignalFunc
	Density     SignalFunc

	config     model.RankingConfig
	classifier *credibility.Classifier
	now        func() time.Time
}

// NewRanker creates a ranker with the default signals
func NewRanker(config model.RankingConfig, classifier *credibility.Classifier) *Ranker {
	r := &Ranker{
		config:     config,
		classifier: classifier,
		now:        time.Now,
	}
	r.Recency = r.recencySignal
	r.Credibility = r.credibilitySignal
	r.Density = r.densitySignal
	return r
}

// WithClock fixes the reference time used for recency
func (r *Ranker) WithClock(now func() time.Time) *Ranker {
	r.now = now
	return r
}

// Rank scores every OK source with at least one claim. Other sources are
// listed in Unranked with the reason. Ranked is ordered by score
// descending, ties by discovery sequence.
func (r *Ranker) Rank(sources []model.Source, claims []model.Claim) Result {
	now := r.now()
	counts := make(map[string]int)
	for _, c := range claims {
		counts[c.SourceID]++
	}

	result := Result{RankedAt: now}
	sequence := make(map[string]int)

	for i := range sources {
		src := &sources[i]
		switch {
		case src.Status == model.ExtractionFailed:
			reason := "extraction failed"
			if src.Error != "" {
				reason += ": " + src.Error
			}
			result.Unranked = append(result.Unranked, model.UnrankedSource{SourceID: src.ID, Reason: reason})
			continue
		case src.Status != model.ExtractionOK:
			result.Unranked = append(result.Unranked, model.UnrankedSource{SourceID: src.ID, Reason: "not extracted"})
			continue
		case counts[src.ID] == 0:
			result.Unranked = append(result.Unranked, model.UnrankedSource{SourceID: src.ID, Reason: "no claims extracted"})
			continue
		}

		in := Input{Source: src, Claims: counts[src.ID], Credibility: r.classify(src), Now: now}
		score, signals := r.score(in)
		sequence[src.ID] = src.Sequence
		result.Ranked = append(result.Ranked, Scored{
			SourceID:    src.ID,
			Score:       score,
			Signals:     signals,
			Credibility: in.Credibility,
		})
	}

	sort.SliceStable(result.Ranked, func(i, j int) bool {
		a, b := result.Ranked[i], result.Ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if sequence[a.SourceID] != sequence[b.SourceID] {
			return sequence[a.SourceID] < sequence[b.SourceID]
		}
		return a.SourceID < b.SourceID
	})
	for i := range result.Ranked {
		result.Ranked[i].Rank = i + 1
	}

	return result
}

// score combines the weighted signals into 0..100, rounded to 2 decimals
func (r *Ranker) score(in Input) (float64, []model.Signal) {
	parts := []struct {
		fn     SignalFunc
		weight float64
	}{
		{r.Recency, r.config.RecencyWeight},
		{r.Credibility, r.config.CredibilityWeight},
		{r.Density, r.config.DensityWeight},
	}

	var weighted, total float64
	signals := make([]model.Signal, 0, len(parts))
	for _, p := range parts {
		sig := p.fn(in)
		sig.Score = clamp01(sig.Score)
		sig.Weight = p.weight
		weighted += p.weight * sig.Score
		total += p.weight
		signals = append(signals, sig)
	}

	if total == 0 {
		return 0, signals
	}
	return math.Round(100*weighted/total*100) / 100, signals
}

func (r *Ranker) classify(src *model.Source) model.Credibility {
	if src.Credibility != nil {
		return *src.Credibility
	}
	if r.classifier == nil {
		return model.Credibility{Tier: model.TierUnknown, MatchedRule: "default"}
	}
	return r.classifier.Classify(src.URL, src.Title)
}

// recencySignal is 1 up to FreshMonths, falls linearly to StaleFloor at
// StaleMonths and stays there. Unknown dates score NeutralRecency.
func (r *Ranker) recencySignal(in Input) model.Signal {
	cfg := r.config
	if in.Source.PublishedAt == nil {
		return model.Signal{
			Type:        model.SignalRecency,
			Score:       cfg.NeutralRecency,
			Description: "Publish date unknown (neutral)",
			Data:        map[string]interface{}{"age_months": nil},
		}
	}

	age := in.Now.Sub(*in.Source.PublishedAt).Hours() / hoursPerMonth
	var score float64
	switch {
	case age <= cfg.FreshMonths:
		score = 1
	case age >= cfg.StaleMonths:
		score = cfg.StaleFloor
	default:
		span := cfg.StaleMonths - cfg.FreshMonths
		score = 1 - (age-cfg.FreshMonths)/span*(1-cfg.StaleFloor)
	}

	return model.Signal{
		Type:        model.SignalRecency,
		Score:       score,
		Description: fmt.Sprintf("Published %.1f months ago", math.Max(age, 0)),
		Data: map[string]interface{}{
			"age_months":   age,
			"fresh_months": cfg.FreshMonths,
			"stale_months": cfg.StaleMonths,
			"formula":      "1 until fresh, linear to floor at stale",
		},
	}
}

// credibilitySignal maps the authority tier to a score
func (r *Ranker) credibilitySignal(in Input) model.Signal {
	cred := in.Credibility
	score := tierScores[cred.Tier]
	desc := fmt.Sprintf("Authority tier %s (%s)", cred.Tier, cred.MatchedRule)
	if cred.LowQuality {
		score = lowQualityScore
		desc = "Title matches a low-credibility pattern"
	}

	return model.Signal{
		Type:        model.SignalCredibility,
		Score:       score,
		Description: desc,
		Data: map[string]interface{}{
			"host":        cred.Host,
			"tier":        cred.Tier.String(),
			"low_quality": cred.LowQuality,
		},
	}
}

// densitySignal saturates with the number of claims: 1 - exp(-n/k)
func (r *Ranker) densitySignal(in Input) model.Signal {
	k := r.config.DensitySaturation
	score := 1 - math.Exp(-float64(in.Claims)/k)

	return model.Signal{
		Type:        model.SignalDensity,
		Score:       score,
		Description: fmt.Sprintf("%d claims extracted", in.Claims),
		Data: map[string]interface{}{
			"claims":     in.Claims,
			"saturation": k,
			"formula":    "1 - exp(-claims / saturation)",
		},
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
