package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const tavilyBaseURL = "https://api.tavily.com"

// TavilyClient calls the Tavily search API
type TavilyClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

type tavilyRequest struct {
	APIKey            string `json:"api_key"`
	Query             string `json:"query"`
	MaxResults        int    `json:"max_results"`
	IncludeAnswer     bool   `json:"include_answer"`
	IncludeRawContent bool   `json:"include_raw_content"`
	SearchDepth       string `json:"search_depth"`
}

type tavilyResponse struct {
	Results []struct {
		Title         string `json:"title"`
		URL           string `json:"url"`
		Content       string `json:"content"`
		PublishedDate string `json:"published_date"`
	} `json:"results"`
}

// NewTavilyClient creates a Tavily client. baseURL overrides the API host.
func NewTavilyClient(apiKey, baseURL string, client *http.Client) (*TavilyClient, error) {
	if apiKey == "" {
		return nil, errors.New("tavily API key is required (set TAVILY_API_KEY)")
	}
	if baseURL == "" {
		baseURL = tavilyBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &TavilyClient{
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: client,
	}, nil
}

// Name returns the provider name
func (c *TavilyClient) Name() string {
	return "tavily"
}

// Search runs one query
func (c *TavilyClient) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	body, err := json.Marshal(tavilyRequest{
		APIKey:      c.apiKey,
		Query:       query,
		MaxResults:  maxResults,
		SearchDepth: "basic",
	})
	if err != nil {
		return nil, c.fail(query, fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, c.fail(query, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.fail(query, fmt.Errorf("execute request: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.fail(query, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.fail(query, fmt.Errorf("API error (%d): %s", resp.StatusCode, truncate(string(respBody), 200)))
	}

	var parsed tavilyResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, c.fail(query, fmt.Errorf("unmarshal response: %w", err))
	}

	results := make([]Result, 0, len(parsed.Results))
	for _, item := range parsed.Results {
		results = append(results, Result{
			URL:         item.URL,
			Title:       item.Title,
			Snippet:     item.Content,
			PublishedAt: parseDate(item.PublishedDate, timeNow()),
			Provider:    c.Name(),
		})
	}
	return results, nil
}

func (c *TavilyClient) fail(query string, err error) error {
	return &SearchError{Provider: c.Name(), Query: query, Err: err}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
