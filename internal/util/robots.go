package util

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

const (
	robotsTTL        = time.Hour
	robotsFailureTTL = 5 * time.Minute
	maxRobotsBytes   = 500 << 10
)

var robotsNow = time.Now

// robotsEntry is the cached robots.txt of one host. ready is closed once
// data is set, so concurrent workers fetch each file only once.
type robotsEntry struct {
	ready     chan struct{}
	data      *robotstxt.RobotsData // nil when robots.txt could not be read
	expiresAt time.Time
	abandoned bool // the fetching caller was canceled
}

// RobotsChecker answers robots.txt questions for the page fetcher. Files
// are cached per scheme and host; hosts whose robots.txt cannot be read
// are treated as allow-all for a short while before being retried.
type RobotsChecker struct {
	mu         sync.Mutex
	entries    map[string]*robotsEntry
	httpClient *http.Client
	userAgent  string
	agentToken string
}

// NewRobotsChecker creates a robots.txt checker that fetches with client
func NewRobotsChecker(client *http.Client, userAgent string) *RobotsChecker {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &RobotsChecker{
		entries:    make(map[string]*robotsEntry),
		httpClient: client,
		userAgent:  userAgent,
		agentToken: NormalizeUserAgent(userAgent),
	}
}

// CanFetch reports whether rawURL may be fetched and the crawl delay the
// host asks for
func (r *RobotsChecker) CanFetch(ctx context.Context, rawURL string) (bool, time.Duration, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false, 0, fmt.Errorf("parse URL: %w", err)
	}
	if parsed.Host == "" {
		return false, 0, fmt.Errorf("parse URL: no host in %q", rawURL)
	}

	data, err := r.robotsFor(ctx, parsed.Scheme, parsed.Host)
	if err != nil {
		return false, 0, err
	}
	if data == nil {
		return true, 0, nil
	}

	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}
	if parsed.RawQuery != "" {
		path += "?" + parsed.RawQuery
	}

	var crawlDelay time.Duration
	if group := data.FindGroup(r.agentToken); group != nil {
		crawlDelay = group.CrawlDelay
	}
	return data.TestAgent(path, r.agentToken), crawlDelay, nil
}

// robotsFor returns the cached robots.txt of a host, fetching it when
// missing or expired. Only the caller's context ending is an error.
func (r *RobotsChecker) robotsFor(ctx context.Context, scheme, host string) (*robotstxt.RobotsData, error) {
	key := scheme + "://" + strings.ToLower(host)

	r.mu.Lock()
	entry, ok := r.entries[key]
	if ok {
		select {
		case <-entry.ready:
			if robotsNow().After(entry.expiresAt) {
				ok = false
			}
		default:
		}
	}
	owner := !ok
	if owner {
		entry = &robotsEntry{ready: make(chan struct{})}
		r.entries[key] = entry
	}
	r.mu.Unlock()

	if owner {
		data, err := r.fetch(ctx, key+"/robots.txt")
		if err != nil && ctx.Err() != nil {
			// Our own cancellation says nothing about the host; drop the entry
			// so the next caller fetches again.
			r.mu.Lock()
			if r.entries[key] == entry {
				delete(r.entries, key)
			}
			r.mu.Unlock()
			entry.abandoned = true
			close(entry.ready)
			return nil, ctx.Err()
		}
		entry.data = data
		entry.expiresAt = robotsNow().Add(robotsTTL)
		if err != nil {
			entry.expiresAt = robotsNow().Add(robotsFailureTTL)
		}
		close(entry.ready)
		return entry.data, nil
	}

	select {
	case <-entry.ready:
		if entry.abandoned {
			return r.robotsFor(ctx, scheme, host)
		}
		return entry.data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *RobotsChecker) fetch(ctx context.Context, robotsURL string) (*robotstxt.RobotsData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		return nil, fmt.Errorf("read robots.txt: %w", err)
	}

	// 4xx allows everything, 5xx disallows everything
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}
	return data, nil
}

// Clear drops every cached robots.txt
func (r *RobotsChecker) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]*robotsEntry)
}

// NormalizeUserAgent reduces a user agent to the product token robots.txt groups match on
func NormalizeUserAgent(ua string) string {
	parts := strings.Fields(ua)
	if len(parts) > 0 {
		return strings.Split(parts[0], "/")[0]
	}
	return ua
}
