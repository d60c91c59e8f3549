package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ppiankov/decisio/internal/cache"
	"github.com/ppiankov/decisio/internal/extract/adapters"
	"github.com/ppiankov/decisio/internal/model"
	"golang.org/x/net/html"
)

var (
	// ErrTooShort means the cleaned page held less text than the configured minimum
	ErrTooShort = errors.New("page text too short")

	// ErrUnsupportedContent means the response was not an HTML or text page
	ErrUnsupportedContent = errors.New("unsupported content type")
)

// ExtractionError is returned for any page that could not be turned into text
type ExtractionError struct {
	URL string
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.URL, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Page is the cleaned text of one fetched URL
type Page struct {
	URL          string     `json:"url"`
	FinalURL     string     `json:"final_url"`
	Text         string     `json:"text"`
	Adapter      string     `json:"adapter"`
	LastModified *time.Time `json:"last_modified,omitempty"`
}

// Extractor fetches pages and reduces them to readable text
type Extractor struct {
	fetcher  *Fetcher
	registry *adapters.Registry
	cache    cache.Cache
	cacheTTL time.Duration
	maxChars int
	minChars int
}

// NewExtractor creates an extractor over fetcher. A nil registry uses the
// built-in site adapters.
func NewExtractor(fetcher *Fetcher, registry *adapters.Registry, cfg model.ExtractConfig) *Extractor {
	if registry == nil {
		registry = adapters.NewRegistry()
	}
	return &Extractor{
		fetcher:  fetcher,
		registry: registry,
		maxChars: cfg.MaxChars,
		minChars: cfg.MinChars,
	}
}

// WithCache stores cleaned pages in c for ttl
func (e *Extractor) WithCache(c cache.Cache, ttl time.Duration) *Extractor {
	e.cache = c
	e.cacheTTL = ttl
	return e
}

// Extract returns the cleaned text of rawURL. Every failure is an *ExtractionError.
func (e *Extractor) Extract(ctx context.Context, rawURL string) (*Page, error) {
	key := cache.CacheKey(cache.NamespacePage, rawURL)
	if e.cache != nil {
		if data, ok := e.cache.Get(key); ok {
			var page Page
			if err := json.Unmarshal(data, &page); err == nil {
				return &page, nil
			}
		}
	}

	result, err := e.fetcher.FetchWithRetry(ctx, rawURL)
	if err != nil {
		return nil, &ExtractionError{URL: rawURL, Err: err}
	}

	if !isHTML(result.ContentType) {
		return nil, &ExtractionError{URL: rawURL, Err: fmt.Errorf("%w: %s", ErrUnsupportedContent, result.ContentType)}
	}

	page, err := e.clean(rawURL, result)
	if err != nil {
		return nil, &ExtractionError{URL: rawURL, Err: err}
	}

	if e.cache != nil {
		if data, err := json.Marshal(page); err == nil {
			_ = e.cache.Set(key, data, e.cacheTTL)
		}
	}

	return page, nil
}

// clean runs the matching site adapter and applies the length bounds
func (e *Extractor) clean(rawURL string, result *FetchResult) (*Page, error) {
	var text, adapterName string

	if strings.HasPrefix(strings.ToLower(result.ContentType), "text/plain") {
		text, adapterName = strings.TrimSpace(result.HTML), "plain"
	} else {
		doc, err := html.Parse(strings.NewReader(result.HTML))
		if err != nil {
			return nil, fmt.Errorf("parse html: %w", err)
		}
		adapter := e.registry.FindAdapter(result.FinalURL, result.ContentType)
		text, adapterName = adapter.ExtractText(doc, result.FinalURL), adapter.Name()
	}

	if n := utf8.RuneCountInString(text); n < e.minChars {
		return nil, fmt.Errorf("%w: %d chars", ErrTooShort, n)
	}

	page := &Page{
		URL:      rawURL,
		FinalURL: result.FinalURL,
		Text:     truncateAtSentence(text, e.maxChars),
		Adapter:  adapterName,
	}
	if result.LastModified != "" {
		if t, err := http.ParseTime(result.LastModified); err == nil {
			page.LastModified = &t
		}
	}
	return page, nil
}
