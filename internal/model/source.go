package model

import (
	"strings"
	"time"
)

// ExtractionStatus is the per-source outcome of fetch + claim extraction
type ExtractionStatus string

const (
	ExtractionPending ExtractionStatus = "PENDING"
	ExtractionOK      ExtractionStatus = "OK"
	ExtractionFailed  ExtractionStatus = "FAILED"
)

// AuthorityTier represents the classification of source authority
type AuthorityTier int

const (
	TierUnknown   AuthorityTier = 0 // Not yet classified
	TierPrimary   AuthorityTier = 1 // Research papers, standards bodies, official documentation
	TierSecondary AuthorityTier = 2 // Engineering blogs, reputable trade media
	TierTertiary  AuthorityTier = 3 // Personal blogs, aggregators, marketing pages
)

func (t AuthorityTier) String() string {
	switch t {
	case TierPrimary:
		return "primary"
	case TierSecondary:
		return "secondary"
	case TierTertiary:
		return "tertiary"
	default:
		return "unknown"
	}
}

// ParseAuthorityTier converts a tier name to an AuthorityTier
func ParseAuthorityTier(s string) (AuthorityTier, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "primary", "1":
		return TierPrimary, true
	case "secondary", "2":
		return TierSecondary, true
	case "tertiary", "3":
		return TierTertiary, true
	case "unknown", "0", "":
		return TierUnknown, true
	default:
		return TierUnknown, false
	}
}

// Credibility holds the domain reputation signals of a source
type Credibility struct {
	Host        string        `json:"host"`
	Tier        AuthorityTier `json:"tier"`
	LowQuality  bool          `json:"low_quality,omitempty"`  // Title matched a low-credibility pattern
	MatchedRule string        `json:"matched_rule,omitempty"` // Which classification rule fired
}

// Source is a discovered web resource and its extraction state
type Source struct {
	ID          string     `json:"id"`
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	Snippet     string     `json:"snippet,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Provider    string     `json:"provider,omitempty"` // Search backend that returned it
	Sequence    int        `json:"sequence"`           // Discovery order within the session

	Text        *string          `json:"text,omitempty"`
	Status      ExtractionStatus `json:"status"`
	Error       string           `json:"error,omitempty"`
	UsedSnippet bool             `json:"used_snippet,omitempty"` // Text is the search snippet, not the page
	Adapter     string           `json:"adapter,omitempty"`      // Content adapter used for cleaning
	Credibility *Credibility     `json:"credibility,omitempty"`
	RankScore   *float64         `json:"rank_score,omitempty"`
	Rank        int              `json:"rank,omitempty"` // 1-based position, 0 when unranked
	RankSignals []Signal         `json:"rank_signals,omitempty"`
}

// UnrankedSource records why a source was left out of ranking
type UnrankedSource struct {
	SourceID string `json:"source_id"`
	Reason   string `json:"reason"`
}

// Signal is a transparent breakdown of one scoring input
type Signal struct {
	Type        SignalType             `json:"type"`
	Score       float64                `json:"score"`  // Normalised signal value in [0,1]
	Weight      float64                `json:"weight"` // Configured weight
	Description string                 `json:"description"`
	Data        map[string]interface{} `json:"data,omitempty"` // Inputs and formula
}

// SignalType classifies the scoring signal
type SignalType string

const (
	SignalRecency     SignalType = "recency"
	SignalCredibility SignalType = "credibility"
	SignalDensity     SignalType = "evidence_density"
)

func (s Source) clone() Source {
	if s.PublishedAt != nil {
		t := *s.PublishedAt
		s.PublishedAt = &t
	}
	if s.Text != nil {
		t := *s.Text
		s.Text = &t
	}
	if s.Credibility != nil {
		c := *s.Credibility
		s.Credibility = &c
	}
	if s.RankScore != nil {
		v := *s.RankScore
		s.RankScore = &v
	}
	if s.RankSignals != nil {
		signals := make([]Signal, len(s.RankSignals))
		for i, sig := range s.RankSignals {
			if sig.Data != nil {
				data := make(map[string]interface{}, len(sig.Data))
				for k, v := range sig.Data {
					data[k] = v
				}
				sig.Data = data
			}
			signals[i] = sig
		}
		s.RankSignals = signals
	}
	return s
}
