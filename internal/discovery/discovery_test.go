package discovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ppiankov/decisio/internal/cache"
	"github.com/ppiankov/decisio/internal/model"
)

type fakeSearcher struct {
	results    []Result
	err        error
	calls      int
	lastQuery  string
	lastMaxRes int
}

func (f *fakeSearcher) Name() string { return "fake" }

func (f *fakeSearcher) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	f.calls++
	f.lastQuery = query
	f.lastMaxRes = maxResults
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func TestDiscover_Filters(t *testing.T) {
	searcher := &fakeSearcher{results: []Result{
		{URL: "https://engineering.example.com/x-in-prod", Title: "Running X in production"},
		{URL: "https://www.reddit.com/r/x/comments/1", Title: "Anyone using X?"},
		{URL: "https://blog.example.org/top", Title: "10 best reasons to use X"},
		{URL: "https://engineering.example.com/x-in-prod/#comments", Title: "Running X in production"},
		{URL: "ftp://files.example.com/x", Title: "X archive"},
		{URL: "https://news.example.net/x", Title: ""},
		{URL: "https://research.example.edu/x-study", Title: "A study of X failures"},
	}}

	cfg := model.DefaultConfig().Search
	d, err := New(searcher, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	results, err := d.Discover(context.Background(), "What are the risks of X?")
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	want := []string{"https://engineering.example.com/x-in-prod", "https://research.example.edu/x-study"}
	if len(results) != len(want) {
		t.Fatalf("Expected %d results, got %d: %+v", len(want), len(results), results)
	}
	for i, url := range want {
		if results[i].URL != url {
			t.Errorf("result %d = %s, want %s", i, results[i].URL, url)
		}
	}

	if searcher.lastQuery != "What are the risks of X? production" {
		t.Errorf("Unexpected enhanced query: %q", searcher.lastQuery)
	}
	if searcher.lastMaxRes != cfg.MaxResults+2 {
		t.Errorf("Expected over-fetch of %d, got %d", cfg.MaxResults+2, searcher.lastMaxRes)
	}
}

func TestDiscover_CapsResults(t *testing.T) {
	var results []Result
	for _, host := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		results = append(results, Result{URL: "https://" + host + ".example.com/", Title: "Result " + host})
	}
	cfg := model.DefaultConfig().Search
	d, _ := New(&fakeSearcher{results: results}, cfg)

	got, err := d.Discover(context.Background(), "q")
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(got) != cfg.MaxResults {
		t.Errorf("Expected %d results, got %d", cfg.MaxResults, len(got))
	}
}

func TestDiscover_Error(t *testing.T) {
	searchErr := &SearchError{Provider: "fake", Query: "q", Err: errors.New("boom")}
	d, _ := New(&fakeSearcher{err: searchErr}, model.DefaultConfig().Search)

	_, err := d.Discover(context.Background(), "q")
	var got *SearchError
	if !errors.As(err, &got) {
		t.Fatalf("Expected *SearchError, got %v", err)
	}
}

func TestDiscover_Cache(t *testing.T) {
	searcher := &fakeSearcher{results: []Result{{URL: "https://a.example.com/", Title: "A"}}}
	d, _ := New(searcher, model.DefaultConfig().Search)
	d.WithCache(cache.NewMemoryCache(time.Hour, time.Hour), time.Hour)

	for i := 0; i < 3; i++ {
		if _, err := d.Discover(context.Background(), "same question"); err != nil {
			t.Fatalf("Discover failed: %v", err)
		}
	}
	if searcher.calls != 1 {
		t.Errorf("Expected one search call with cache, got %d", searcher.calls)
	}
}

func TestNew_InvalidPattern(t *testing.T) {
	cfg := model.DefaultConfig().Search
	cfg.LowQualityPattern = []string{"("}
	if _, err := New(&fakeSearcher{}, cfg); err == nil {
		t.Error("Expected error for invalid pattern")
	}
}

func TestEnhanceQuery(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"Is X reliable?", "Is X reliable? production"},
		{"X in production", "X in production real-world"},
		{"X production real-world lessons", "X production real-world lessons"},
	}
	for _, tt := range tests {
		if got := EnhanceQuery(tt.query); got != tt.want {
			t.Errorf("EnhanceQuery(%q) = %q, want %q", tt.query, got, tt.want)
		}
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"https://Example.COM/path/", "https://example.com/path"},
		{"https://example.com/path#section", "https://example.com/path"},
		{"https://example.com/a?b=1", "https://example.com/a?b=1"},
		{"not a url", ""},
	}
	for _, tt := range tests {
		if got := NormalizeURL(tt.raw); got != tt.want {
			t.Errorf("NormalizeURL(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestParseDate(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		raw  string
		want time.Time
		ok   bool
	}{
		{"2025-06-01", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), true},
		{"2025-06-01T10:30:00Z", time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC), true},
		{"2025-06-01T10:30:00", time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC), true},
		{"June 1, 2025", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), true},
		{"Jun 1, 2025", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), true},
		{"3 days ago", time.Date(2026, 3, 12, 12, 0, 0, 0, time.UTC), true},
		{"1 month ago", time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC), true},
		{"", time.Time{}, false},
		{"sometime last spring", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got := parseDate(tt.raw, now)
			if !tt.ok {
				if got != nil {
					t.Errorf("Expected nil, got %v", got)
				}
				return
			}
			if got == nil || !got.Equal(tt.want) {
				t.Errorf("parseDate(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}
