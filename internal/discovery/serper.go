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

const serperBaseURL = "https://google.serper.dev"

// SerperClient calls the Serper (Google Search) API
type SerperClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

type serperRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num"`
}

type serperResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
		Date    string `json:"date"`
	} `json:"organic"`
}

// NewSerperClient creates a Serper client. baseURL overrides the API host.
func NewSerperClient(apiKey, baseURL string, client *http.Client) (*SerperClient, error) {
	if apiKey == "" {
		return nil, errors.New("serper API key is required (set SERPER_API_KEY)")
	}
	if baseURL == "" {
		baseURL = serperBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &SerperClient{
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: client,
	}, nil
}

// Name returns the provider name
func (c *SerperClient) Name() string {
	return "serper"
}

// Search runs one query
func (c *SerperClient) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	body, err := json.Marshal(serperRequest{Q: query, Num: maxResults})
	if err != nil {
		return nil, c.fail(query, fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, c.fail(query, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", c.apiKey)

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

	var parsed serperResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, c.fail(query, fmt.Errorf("unmarshal response: %w", err))
	}

	now := timeNow()
	results := make([]Result, 0, len(parsed.Organic))
	for _, item := range parsed.Organic {
		if maxResults > 0 && len(results) == maxResults {
			break
		}
		results = append(results, Result{
			URL:         item.Link,
			Title:       item.Title,
			Snippet:     item.Snippet,
			PublishedAt: parseDate(item.Date, now),
			Provider:    c.Name(),
		})
	}
	return results, nil
}

func (c *SerperClient) fail(query string, err error) error {
	return &SearchError{Provider: c.Name(), Query: query, Err: err}
}
