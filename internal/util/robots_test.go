package util

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRobotsChecker_CanFetch(t *testing.T) {
	var robotsHits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			atomic.AddInt32(&robotsHits, 1)
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\nCrawl-delay: 2\n"))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	checker := NewRobotsChecker(server.Client(), "Decisio/0.1")
	ctx := context.Background()

	allowed, delay, err := checker.CanFetch(ctx, server.URL+"/public/page")
	if err != nil {
		t.Fatalf("CanFetch: %v", err)
	}
	if !allowed {
		t.Error("expected /public/page to be allowed")
	}
	if delay != 2*time.Second {
		t.Errorf("crawl delay = %v, want 2s", delay)
	}

	allowed, _, err = checker.CanFetch(ctx, server.URL+"/private/report")
	if err != nil {
		t.Fatalf("CanFetch: %v", err)
	}
	if allowed {
		t.Error("expected /private/report to be disallowed")
	}

	if hits := atomic.LoadInt32(&robotsHits); hits != 1 {
		t.Errorf("robots.txt fetched %d times, want 1 (cached)", hits)
	}
}

func TestRobotsChecker_MissingRobotsAllowsAll(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	checker := NewRobotsChecker(server.Client(), "Decisio/0.1")
	allowed, _, err := checker.CanFetch(context.Background(), server.URL+"/anything")
	if err != nil {
		t.Fatalf("CanFetch: %v", err)
	}
	if !allowed {
		t.Error("missing robots.txt should allow everything")
	}
}

func TestRobotsChecker_UnreachableAllows(t *testing.T) {
	checker := NewRobotsChecker(&http.Client{Timeout: 200 * time.Millisecond}, "Decisio/0.1")
	allowed, _, err := checker.CanFetch(context.Background(), "http://127.0.0.1:1/page")
	if err != nil {
		t.Fatalf("CanFetch: %v", err)
	}
	if !allowed {
		t.Error("unreachable robots.txt should not block fetching")
	}
}

func TestRobotsChecker_ConcurrentFetchOnce(t *testing.T) {
	var robotsHits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			atomic.AddInt32(&robotsHits, 1)
			time.Sleep(20 * time.Millisecond)
			_, _ = w.Write([]byte("User-agent: Decisio\nDisallow: /\n"))
		}
	}))
	defer server.Close()

	checker := NewRobotsChecker(server.Client(), "Decisio/0.1 (+https://example.com)")

	var wg sync.WaitGroup
	var allowedCount int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed, _, err := checker.CanFetch(context.Background(), server.URL+"/page")
			if err != nil {
				t.Errorf("CanFetch: %v", err)
			}
			if allowed {
				atomic.AddInt32(&allowedCount, 1)
			}
		}()
	}
	wg.Wait()

	if hits := atomic.LoadInt32(&robotsHits); hits != 1 {
		t.Errorf("robots.txt fetched %d times, want 1", hits)
	}
	if allowedCount != 0 {
		t.Errorf("%d fetches allowed despite Disallow: / for our agent", allowedCount)
	}
}

func TestRobotsChecker_ServerErrorDisallows(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	checker := NewRobotsChecker(server.Client(), "Decisio/0.1")
	allowed, _, err := checker.CanFetch(context.Background(), server.URL+"/page")
	if err != nil {
		t.Fatalf("CanFetch: %v", err)
	}
	if allowed {
		t.Error("5xx robots.txt should disallow fetching")
	}
}

func TestRobotsChecker_ExpiresEntries(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	orig := robotsNow
	robotsNow = func() time.Time { return now }
	defer func() { robotsNow = orig }()

	var robotsHits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&robotsHits, 1)
		_, _ = w.Write([]byte("User-agent: *\nAllow: /\n"))
	}))
	defer server.Close()

	checker := NewRobotsChecker(server.Client(), "Decisio/0.1")
	ctx := context.Background()
	_, _, _ = checker.CanFetch(ctx, server.URL+"/a")
	_, _, _ = checker.CanFetch(ctx, server.URL+"/b")

	now = now.Add(robotsTTL + time.Minute)
	_, _, _ = checker.CanFetch(ctx, server.URL+"/c")

	if hits := atomic.LoadInt32(&robotsHits); hits != 2 {
		t.Errorf("robots.txt fetched %d times, want 2", hits)
	}
}

func TestRobotsChecker_CanceledContext(t *testing.T) {
	checker := NewRobotsChecker(nil, "Decisio/0.1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := checker.CanFetch(ctx, "http://127.0.0.1:1/page"); err == nil {
		t.Error("expected the canceled context to be reported")
	}
}
