package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/ppiankov/decisio/internal/model"
	"github.com/ppiankov/decisio/internal/util"
)

// Result is one search hit, normalized across providers
type Result struct {
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	Snippet     string     `json:"snippet"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Provider    string     `json:"provider"`
}

// Searcher is a web search backend
type Searcher interface {
	Name() string
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

// SearchError wraps any failure of a search call
type SearchError struct {
	Provider string
	Query    string
	Err      error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("search %s %q: %v", e.Provider, e.Query, e.Err)
}

func (e *SearchError) Unwrap() error {
	return e.Err
}

// ErrUnsupportedProvider is returned by NewSearcher for unknown names
type ErrUnsupportedProvider struct {
	Provider string
}

func (e ErrUnsupportedProvider) Error() string {
	return fmt.Sprintf("unknown search provider: %s (supported: tavily, serper)", e.Provider)
}

var errNoSearchKey = errors.New("no search API key: set TAVILY_API_KEY or SERPER_API_KEY")

// NewSearcher creates the configured search backend. An empty provider
// picks Tavily, then Serper, by which API key is present.
func NewSearcher(cfg model.SearchConfig, httpCfg model.HTTPConfig) (Searcher, error) {
	client := &http.Client{
		Timeout:   30 * time.Second,
		Transport: util.NewTransport(httpCfg.HTTPProxy, httpCfg.HTTPSProxy, httpCfg.NoProxy),
	}

	provider := cfg.Provider
	if provider == "" {
		switch {
		case keyFor(cfg, "tavily") != "":
			provider = "tavily"
		case keyFor(cfg, "serper") != "":
			provider = "serper"
		default:
			return nil, errNoSearchKey
		}
	}

	switch provider {
	case "tavily":
		return NewTavilyClient(keyFor(cfg, provider), cfg.BaseURL, client)
	case "serper":
		return NewSerperClient(keyFor(cfg, provider), cfg.BaseURL, client)
	default:
		return nil, ErrUnsupportedProvider{Provider: provider}
	}
}

// keyFor prefers the configured key, then the provider's environment variable
func keyFor(cfg model.SearchConfig, provider string) string {
	if cfg.APIKey != "" && (cfg.Provider == "" || cfg.Provider == provider) {
		return cfg.APIKey
	}
	switch provider {
	case "tavily":
		return os.Getenv("TAVILY_API_KEY")
	case "serper":
		return os.Getenv("SERPER_API_KEY")
	}
	return ""
}
