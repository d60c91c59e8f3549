package model

import (
	"errors"
	"fmt"
	"time"
)

// Config holds all runtime configuration. Sessions share it read-only.
type Config struct {
	HTTP         HTTPConfig         `yaml:"http" mapstructure:"http"`
	Cache        CacheConfig        `yaml:"cache" mapstructure:"cache"`
	LLM          LLMConfig          `yaml:"llm" mapstructure:"llm"`
	Search       SearchConfig       `yaml:"search" mapstructure:"search"`
	Plan         PlanConfig         `yaml:"plan" mapstructure:"plan"`
	Extract      ExtractConfig      `yaml:"extract" mapstructure:"extract"`
	Claims       ClaimsConfig       `yaml:"claims" mapstructure:"claims"`
	Ranking      RankingConfig      `yaml:"ranking" mapstructure:"ranking"`
	Credibility  CredibilityConfig  `yaml:"credibility" mapstructure:"credibility"`
	Gaps         GapsConfig         `yaml:"gaps" mapstructure:"gaps"`
	Concurrency  ConcurrencyConfig  `yaml:"concurrency" mapstructure:"concurrency"`
	RateLimiting RateLimitingConfig `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	Output       OutputConfig       `yaml:"output" mapstructure:"output"`
}

// HTTPConfig controls page fetching
type HTTPConfig struct {
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent     string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes  int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	InsecureTLS   bool          `yaml:"insecure_tls" mapstructure:"insecure_tls"`
	RespectRobots bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
	HTTPProxy     string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy    string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy       string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// CacheConfig controls the search and page caches
type CacheConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir     string        `yaml:"dir" mapstructure:"dir"` // Empty disables the disk layer
	TTL     time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// LLMConfig selects and tunes the reasoner provider
type LLMConfig struct {
	Provider   string `yaml:"provider" mapstructure:"provider"` // openai, anthropic, ollama
	Model      string `yaml:"model" mapstructure:"model"`
	APIKey     string `yaml:"-" mapstructure:"api_key"` // Never written to disk
	BaseURL    string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout    int    `yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxTokens  int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	MaxRetries int    `yaml:"max_retries" mapstructure:"max_retries"`
}

// SearchConfig selects the discovery backend and its filters
type SearchConfig struct {
	Provider          string   `yaml:"provider" mapstructure:"provider"` // tavily, serper
	APIKey            string   `yaml:"-" mapstructure:"api_key"`
	BaseURL           string   `yaml:"base_url,omitempty" mapstructure:"base_url"`
	MaxResults        int      `yaml:"max_results" mapstructure:"max_results"`             // Per sub-question
	MaxTotalSources   int      `yaml:"max_total_sources" mapstructure:"max_total_sources"` // Per session
	EnhanceQueries    bool     `yaml:"enhance_queries" mapstructure:"enhance_queries"`
	ExcludeDomains    []string `yaml:"exclude_domains" mapstructure:"exclude_domains"`
	LowQualityPattern []string `yaml:"low_quality_patterns" mapstructure:"low_quality_patterns"`
}

// PlanConfig bounds question decomposition
type PlanConfig struct {
	MaxSubQuestions int `yaml:"max_sub_questions" mapstructure:"max_sub_questions"`
}

// ExtractConfig bounds cleaned page text
type ExtractConfig struct {
	MaxChars        int  `yaml:"max_chars" mapstructure:"max_chars"`
	MinChars        int  `yaml:"min_chars" mapstructure:"min_chars"`
	SnippetFallback bool `yaml:"snippet_fallback" mapstructure:"snippet_fallback"`
	UseLastModified bool `yaml:"use_last_modified" mapstructure:"use_last_modified"`
}

// ClaimsConfig bounds claim extraction
type ClaimsConfig struct {
	MaxPerSource      int     `yaml:"max_per_source" mapstructure:"max_per_source"`
	MinLength         int     `yaml:"min_length" mapstructure:"min_length"`
	MaxInputChars     int     `yaml:"max_input_chars" mapstructure:"max_input_chars"`
	DefaultConfidence float64 `yaml:"default_confidence" mapstructure:"default_confidence"`
}

// RankingConfig holds the fixed ranking weights and signal shape
type RankingConfig struct {
	RecencyWeight     float64 `yaml:"recency_weight" mapstructure:"recency_weight"`
	CredibilityWeight float64 `yaml:"credibility_weight" mapstructure:"credibility_weight"`
	DensityWeight     float64 `yaml:"density_weight" mapstructure:"density_weight"`

	FreshMonths       float64 `yaml:"fresh_months" mapstructure:"fresh_months"`             // Full recency up to this age
	StaleMonths       float64 `yaml:"stale_months" mapstructure:"stale_months"`             // Floor recency from this age
	StaleFloor        float64 `yaml:"stale_floor" mapstructure:"stale_floor"`               // Recency score of stale sources
	NeutralRecency    float64 `yaml:"neutral_recency" mapstructure:"neutral_recency"`       // Unknown publish date
	DensitySaturation float64 `yaml:"density_saturation" mapstructure:"density_saturation"` // Claims for ~63% density
}

// CredibilityConfig controls domain tiering
type CredibilityConfig struct {
	DefaultTier       string            `yaml:"default_tier" mapstructure:"default_tier"`
	DomainTiers       map[string]string `yaml:"domain_tiers,omitempty" mapstructure:"domain_tiers"` // Overrides, domain -> tier
	LowQualityPattern []string          `yaml:"low_quality_patterns" mapstructure:"low_quality_patterns"`
}

// GapsConfig holds the thresholds of gap analysis
type GapsConfig struct {
	ClarifyThreshold float64 `yaml:"clarify_threshold" mapstructure:"clarify_threshold"`
	NumericTolerance float64 `yaml:"numeric_tolerance" mapstructure:"numeric_tolerance"` // Relative difference
	ConfidenceFloor  float64 `yaml:"confidence_floor" mapstructure:"confidence_floor"`
}

// ConcurrencyConfig bounds per-session fan-out
type ConcurrencyConfig struct {
	MaxFanout int `yaml:"max_fanout" mapstructure:"max_fanout"`
}

// RateLimitingConfig is applied per domain
type RateLimitingConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
}

// StoreConfig selects session persistence
type StoreConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"` // sqlite, memory
	Path   string `yaml:"path" mapstructure:"path"`
}

// OutputConfig controls report rendering
type OutputConfig struct {
	Verbose       bool `yaml:"verbose" mapstructure:"verbose"`
	IncludeFooter bool `yaml:"include_footer" mapstructure:"include_footer"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Timeout:       20 * time.Second,
			UserAgent:     "Decisio/0.1 (+https://github.com/ppiankov/decisio)",
			MaxBodyBytes:  2_000_000,
			RespectRobots: true,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     24 * time.Hour,
		},
		LLM: LLMConfig{
			Provider:   "openai",
			Timeout:    60,
			MaxTokens:  2000,
			MaxRetries: 2,
		},
		Search: SearchConfig{
			Provider:        "tavily",
			MaxResults:      5,
			MaxTotalSources: 30,
			EnhanceQueries:  true,
			ExcludeDomains: []string{
				"pinterest.com", "quora.com", "reddit.com",
				"facebook.com", "twitter.com", "x.com",
			},
			LowQualityPattern: []string{
				`(?i)^\d+\s+(best|top|ways|reasons|things)\b`,
				`(?i)\bultimate guide\b`,
				`(?i)\bwhat is\b.*\?$`,
			},
		},
		Plan: PlanConfig{
			MaxSubQuestions: 7,
		},
		Extract: ExtractConfig{
			MaxChars:        15000,
			MinChars:        100,
			SnippetFallback: false,
		},
		Claims: ClaimsConfig{
			MaxPerSource:      7,
			MinLength:         20,
			MaxInputChars:     8000,
			DefaultConfidence: 0.8,
		},
		Ranking: RankingConfig{
			RecencyWeight:     0.3,
			CredibilityWeight: 0.45,
			DensityWeight:     0.25,
			FreshMonths:       6,
			StaleMonths:       24,
			StaleFloor:        0.2,
			NeutralRecency:    0.5,
			DensitySaturation: 3,
		},
		Credibility: CredibilityConfig{
			DefaultTier: "unknown",
			LowQualityPattern: []string{
				`(?i)\bsponsored\b`,
				`(?i)\bpress release\b`,
				`(?i)\b(buy|discount|coupon)\b`,
			},
		},
		Gaps: GapsConfig{
			ClarifyThreshold: 0.6,
			NumericTolerance: 0.15,
			ConfidenceFloor:  0.5,
		},
		Concurrency: ConcurrencyConfig{
			MaxFanout: 4,
		},
		RateLimiting: RateLimitingConfig{
			RequestsPerSecond: 2,
			BurstSize:         5,
		},
		Store: StoreConfig{
			Driver: "sqlite",
		},
		Output: OutputConfig{
			IncludeFooter: true,
		},
	}
}

// Validate rejects configurations the pipeline cannot run with
func (c *Config) Validate() error {
	var errs []error

	r := c.Ranking
	if r.RecencyWeight < 0 || r.CredibilityWeight < 0 || r.DensityWeight < 0 {
		errs = append(errs, errors.New("ranking weights must be non-negative"))
	} else if r.RecencyWeight+r.CredibilityWeight+r.DensityWeight == 0 {
		errs = append(errs, errors.New("at least one ranking weight must be positive"))
	}
	if r.FreshMonths < 0 || r.StaleMonths <= r.FreshMonths {
		errs = append(errs, fmt.Errorf("ranking.stale_months (%.1f) must exceed ranking.fresh_months (%.1f)", r.StaleMonths, r.FreshMonths))
	}
	if !inUnit(r.StaleFloor) || !inUnit(r.NeutralRecency) {
		errs = append(errs, errors.New("ranking.stale_floor and ranking.neutral_recency must be within [0,1]"))
	}
	if r.DensitySaturation <= 0 {
		errs = append(errs, errors.New("ranking.density_saturation must be positive"))
	}

	if tier, ok := ParseAuthorityTier(c.Credibility.DefaultTier); !ok {
		errs = append(errs, fmt.Errorf("credibility.default_tier: unknown tier %q", c.Credibility.DefaultTier))
	} else if tier == TierPrimary {
		errs = append(errs, errors.New("credibility.default_tier must not be primary"))
	}
	for domain, tier := range c.Credibility.DomainTiers {
		if _, ok := ParseAuthorityTier(tier); !ok {
			errs = append(errs, fmt.Errorf("credibility.domain_tiers[%s]: unknown tier %q", domain, tier))
		}
	}

	if !inUnit(c.Gaps.ClarifyThreshold) {
		errs = append(errs, fmt.Errorf("gaps.clarify_threshold must be within [0,1], got %v", c.Gaps.ClarifyThreshold))
	}
	if c.Gaps.NumericTolerance < 0 {
		errs = append(errs, fmt.Errorf("gaps.numeric_tolerance must be non-negative, got %v", c.Gaps.NumericTolerance))
	}
	if !inUnit(c.Gaps.ConfidenceFloor) {
		errs = append(errs, fmt.Errorf("gaps.confidence_floor must be within [0,1], got %v", c.Gaps.ConfidenceFloor))
	}

	if c.Concurrency.MaxFanout < 1 {
		errs = append(errs, fmt.Errorf("concurrency.max_fanout must be at least 1, got %d", c.Concurrency.MaxFanout))
	}
	if c.Plan.MaxSubQuestions < 1 {
		errs = append(errs, errors.New("plan.max_sub_questions must be at least 1"))
	}
	if c.Search.MaxResults < 1 {
		errs = append(errs, errors.New("search.max_results must be at least 1"))
	}

	switch c.Store.Driver {
	case "sqlite", "memory":
	default:
		errs = append(errs, fmt.Errorf("store.driver: unknown driver %q (supported: sqlite, memory)", c.Store.Driver))
	}

	return errors.Join(errs...)
}

func inUnit(v float64) bool {
	return v >= 0 && v <= 1
}
