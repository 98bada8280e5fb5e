package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const tavilyURL = "https://api.tavily.com/search"

// Tavily is the Search implementation backed by the Tavily API.
type Tavily struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

// NewSearch returns nil when apiKey is empty.
func NewSearch(apiKey, endpoint string) Search {
	if strings.TrimSpace(apiKey) == "" {
		return nil
	}
	if endpoint == "" {
		endpoint = tavilyURL
	}
	return &Tavily{apiKey: apiKey, endpoint: endpoint, httpClient: &http.Client{Timeout: defaultHTTPTimeout}}
}

// Search returns at most max results for query.
func (t *Tavily) Search(ctx context.Context, query string, max int) ([]SearchResult, error) {
	if max <= 0 || max > 10 {
		max = 5
	}
	body, err := json.Marshal(map[string]any{
		"query":          query,
		"max_results":    max,
		"search_depth":   "advanced",
		"include_images": false,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}

	var data struct {
		Results []SearchResult `json:"results"`
	}
	if err := decodeResponse(resp, &data, "tavily"); err != nil {
		return nil, err
	}
	if len(data.Results) > max {
		data.Results = data.Results[:max]
	}
	return data.Results, nil
}
