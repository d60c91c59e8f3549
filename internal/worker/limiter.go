package worker

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// maxCrawlDelay bounds robots.txt crawl delays. A site asking for
	// minutes between fetches would stall the whole research stage.
	maxCrawlDelay = 10 * time.Second

	// maxDomains is the size at which idle per-domain limiters are dropped
	maxDomains = 1024
	idleAfter  = 10 * time.Minute
)

var limiterNow = time.Now

type domainLimiter struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// Limiter paces page fetches per site. One limiter is shared by every
// session of a process, so parallel sessions hitting the same site are
// paced together.
type Limiter struct {
	mu           sync.Mutex
	domains      map[string]*domainLimiter
	defaultRate  rate.Limit
	defaultBurst int
}

// NewLimiter creates a new rate limiter. A non-positive rate disables limiting.
func NewLimiter(requestsPerSecond float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 5
	}

	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		limit = rate.Inf
	}

	return &Limiter{
		domains:      make(map[string]*domainLimiter),
		defaultRate:  limit,
		defaultBurst: burst,
	}
}

// Wait blocks until the site of rawURL may be fetched
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	site, err := siteKey(rawURL)
	if err != nil {
		return err
	}
	if err := l.limiterFor(site).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit %s: %w", site, err)
	}
	return nil
}

// Allow reports whether the site of rawURL may be fetched right now,
// consuming a token when it may
func (l *Limiter) Allow(rawURL string) bool {
	site, err := siteKey(rawURL)
	if err != nil {
		return false
	}
	return l.limiterFor(site).Allow()
}

// ApplyCrawlDelay slows a site down to one request per delay, capped at
// maxCrawlDelay. It never speeds a site up beyond its current limit.
func (l *Limiter) ApplyCrawlDelay(rawURL string, delay time.Duration) {
	if delay <= 0 {
		return
	}
	site, err := siteKey(rawURL)
	if err != nil {
		return
	}

	limiter := l.limiterFor(site)
	delayed := rate.Every(min(delay, maxCrawlDelay))
	if limiter.Limit() > delayed {
		limiter.SetLimit(delayed)
		limiter.SetBurst(1)
	}
}

// Domains returns the number of sites currently tracked
func (l *Limiter) Domains() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.domains)
}

func (l *Limiter) limiterFor(site string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := limiterNow()
	if d, ok := l.domains[site]; ok {
		d.lastUsed = now
		return d.limiter
	}

	if len(l.domains) >= maxDomains {
		l.evictIdle(now)
	}
	d := &domainLimiter{limiter: rate.NewLimiter(l.defaultRate, l.defaultBurst), lastUsed: now}
	l.domains[site] = d
	return d.limiter
}

// evictIdle drops limiters of sites not fetched for idleAfter. Callers hold mu.
func (l *Limiter) evictIdle(now time.Time) {
	for site, d := range l.domains {
		if now.Sub(d.lastUsed) > idleAfter {
			delete(l.domains, site)
		}
	}
}

// siteKey maps a URL to the host its requests are paced under: lower
// case, without port and without a leading "www."
func siteKey(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	host := parsed.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	if host == "" {
		return "", fmt.Errorf("no host in %q", rawURL)
	}
	return host, nil
}
