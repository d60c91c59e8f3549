package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ppiankov/decisio/internal/model"
)

func TestTavilyClient_Search(t *testing.T) {
	var got tavilyRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/search" {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = fmt.Fprint(w, `{"results": [
			{"title": "X in prod", "url": "https://a.example.com/x", "content": "We ran X.", "published_date": "2025-05-01"},
			{"title": "X notes", "url": "https://b.example.com/x", "content": "Notes."}
		]}`)
	}))
	defer server.Close()

	client, err := NewTavilyClient("tv-key", server.URL, server.Client())
	if err != nil {
		t.Fatalf("NewTavilyClient failed: %v", err)
	}

	results, err := client.Search(context.Background(), "x production", 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if got.APIKey != "tv-key" || got.Query != "x production" || got.MaxResults != 5 {
		t.Errorf("Unexpected request body: %+v", got)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if results[0].Snippet != "We ran X." || results[0].Provider != "tavily" {
		t.Errorf("Unexpected result: %+v", results[0])
	}
	if results[0].PublishedAt == nil || results[0].PublishedAt.Year() != 2025 {
		t.Errorf("Expected publish date, got %v", results[0].PublishedAt)
	}
	if results[1].PublishedAt != nil {
		t.Errorf("Expected nil publish date, got %v", results[1].PublishedAt)
	}
}

func TestSerperClient_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-KEY") != "sp-key" {
			t.Errorf("Missing API key header")
		}
		var req serperRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Q != "x" || req.Num != 1 {
			t.Errorf("Unexpected request: %+v", req)
		}
		_, _ = fmt.Fprint(w, `{"organic": [
			{"title": "X", "link": "https://a.example.com/x", "snippet": "s1", "date": "Jan 2, 2025"},
			{"title": "Y", "link": "https://b.example.com/y", "snippet": "s2"}
		]}`)
	}))
	defer server.Close()

	client, _ := NewSerperClient("sp-key", server.URL, server.Client())
	results, err := client.Search(context.Background(), "x", 1)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected results capped at 1, got %d", len(results))
	}
	if results[0].URL != "https://a.example.com/x" || results[0].Provider != "serper" {
		t.Errorf("Unexpected result: %+v", results[0])
	}
}

func TestSearchClients_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = fmt.Fprint(w, `{"detail": "invalid key"}`)
	}))
	defer server.Close()

	tavily, _ := NewTavilyClient("k", server.URL, server.Client())
	serper, _ := NewSerperClient("k", server.URL, server.Client())

	for _, s := range []Searcher{tavily, serper} {
		t.Run(s.Name(), func(t *testing.T) {
			_, err := s.Search(context.Background(), "q", 3)
			var searchErr *SearchError
			if !errors.As(err, &searchErr) {
				t.Fatalf("Expected *SearchError, got %v", err)
			}
			if searchErr.Provider != s.Name() || searchErr.Query != "q" {
				t.Errorf("Unexpected error fields: %+v", searchErr)
			}
		})
	}
}

func TestSearchClients_RequireKey(t *testing.T) {
	if _, err := NewTavilyClient("", "", nil); err == nil {
		t.Error("Expected error for missing Tavily key")
	}
	if _, err := NewSerperClient("", "", nil); err == nil {
		t.Error("Expected error for missing Serper key")
	}
}

func TestNewSearcher(t *testing.T) {
	t.Setenv("TAVILY_API_KEY", "")
	t.Setenv("SERPER_API_KEY", "")

	tests := []struct {
		name     string
		provider string
		apiKey   string
		env      map[string]string
		want     string
		wantErr  bool
	}{
		{name: "explicit tavily", provider: "tavily", apiKey: "k", want: "tavily"},
		{name: "explicit serper", provider: "serper", apiKey: "k", want: "serper"},
		{name: "auto from serper env", env: map[string]string{"SERPER_API_KEY": "s"}, want: "serper"},
		{name: "auto prefers tavily", env: map[string]string{"TAVILY_API_KEY": "t", "SERPER_API_KEY": "s"}, want: "tavily"},
		{name: "no keys", wantErr: true},
		{name: "unknown", provider: "bing", apiKey: "k", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg := model.DefaultConfig().Search
			cfg.Provider = tt.provider
			cfg.APIKey = tt.apiKey

			searcher, err := NewSearcher(cfg, model.DefaultConfig().HTTP)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error, got %v", searcher)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewSearcher failed: %v", err)
			}
			if searcher.Name() != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, searcher.Name())
			}
		})
	}
}
