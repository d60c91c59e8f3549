package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/ppiankov/decisio/internal/cache"
	"github.com/ppiankov/decisio/internal/model"
)

// queryEnhancers bias results toward production experience. Only the
// first one missing from a query is appended.
var queryEnhancers = []string{"production", "real-world"}

// Discovery runs searches for sub-questions and filters the results
type Discovery struct {
	searcher   Searcher
	config     model.SearchConfig
	lowQuality []*regexp.Regexp
	cache      cache.Cache
	cacheTTL   time.Duration
}

// New creates a discovery stage over searcher
func New(searcher Searcher, config model.SearchConfig) (*Discovery, error) {
	patterns := make([]*regexp.Regexp, 0, len(config.LowQualityPattern))
	for _, p := range config.LowQualityPattern {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("search.low_quality_patterns %q: %w", p, err)
		}
		patterns = append(patterns, re)
	}
	return &Discovery{searcher: searcher, config: config, lowQuality: patterns}, nil
}

// WithCache stores raw search results in c for ttl
func (d *Discovery) WithCache(c cache.Cache, ttl time.Duration) *Discovery {
	d.cache = c
	d.cacheTTL = ttl
	return d
}

// Discover searches for one sub-question and returns at most
// MaxResults filtered, URL-unique results in provider order.
// Provider failures are returned as *SearchError.
func (d *Discovery) Discover(ctx context.Context, subQuestion string) ([]Result, error) {
	query := subQuestion
	if d.config.EnhanceQueries {
		query = EnhanceQuery(subQuestion)
	}

	// Over-fetch so filtering still leaves a full page
	raw, err := d.search(ctx, query, d.config.MaxResults+2)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	results := make([]Result, 0, d.config.MaxResults)
	for _, r := range raw {
		key := NormalizeURL(r.URL)
		if key == "" || seen[key] || !d.accept(r) {
			continue
		}
		seen[key] = true
		results = append(results, r)
		if len(results) == d.config.MaxResults {
			break
		}
	}
	return results, nil
}

func (d *Discovery) search(ctx context.Context, query string, n int) ([]Result, error) {
	key := cache.CacheKey(cache.NamespaceSearch, fmt.Sprintf("%s|%d|%s", d.searcher.Name(), n, query))
	if d.cache != nil {
		if data, ok := d.cache.Get(key); ok {
			var cached []Result
			if err := json.Unmarshal(data, &cached); err == nil {
				return cached, nil
			}
		}
	}

	results, err := d.searcher.Search(ctx, query, n)
	if err != nil {
		return nil, err
	}

	if d.cache != nil {
		if data, err := json.Marshal(results); err == nil {
			_ = d.cache.Set(key, data, d.cacheTTL)
		}
	}
	return results, nil
}

// accept applies the domain and title filters
func (d *Discovery) accept(r Result) bool {
	if r.Title == "" {
		return false
	}
	parsed, err := url.Parse(r.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return false
	}

	host := strings.ToLower(parsed.Hostname())
	for _, excluded := range d.config.ExcludeDomains {
		excluded = strings.ToLower(excluded)
		if host == excluded || strings.HasSuffix(host, "."+excluded) {
			return false
		}
	}

	for _, re := range d.lowQuality {
		if re.MatchString(r.Title) {
			return false
		}
	}
	return true
}

// EnhanceQuery appends the first production-context term the query lacks
func EnhanceQuery(query string) string {
	lower := strings.ToLower(query)
	for _, enhancer := range queryEnhancers {
		if !strings.Contains(lower, enhancer) {
			return strings.TrimSpace(query) + " " + enhancer
		}
	}
	return query
}

// NormalizeURL returns the identity of a URL for deduplication: lower-cased
// host, no fragment, no trailing slash. Invalid URLs yield "".
func NormalizeURL(raw string) string {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Host == "" {
		return ""
	}
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Fragment = ""
	parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	return parsed.String()
}
