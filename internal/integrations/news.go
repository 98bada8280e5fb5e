package integrations

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const newsAPIURL = "https://newsapi.org/v2"

const (
	defaultNewsPageSize = 10
	maxNewsPageSize     = 50
)

// HeadlinesQuery selects top headlines. Empty fields are not sent; an
// empty Country falls back to the client's default.
type HeadlinesQuery struct {
	Country  string
	Category string
	Query    string
	Max      int
}

// NewsSearch is a full-text article search.
type NewsSearch struct {
	Query    string
	Language string
	SortBy   string
	Max      int
}

// NewsAPI is the News implementation backed by NewsAPI.org.
type NewsAPI struct {
	apiKey         string
	baseURL        string
	defaultCountry string
	httpClient     *http.Client
}

// NewNews returns nil when apiKey is empty.
func NewNews(apiKey, defaultCountry, baseURL string) News {
	if strings.TrimSpace(apiKey) == "" {
		return nil
	}
	if baseURL == "" {
		baseURL = newsAPIURL
	}
	return &NewsAPI{
		apiKey:         apiKey,
		baseURL:        strings.TrimRight(baseURL, "/"),
		defaultCountry: defaultCountry,
		httpClient:     &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// TopHeadlines returns the current top headlines.
func (n *NewsAPI) TopHeadlines(ctx context.Context, q HeadlinesQuery) ([]Article, error) {
	params := url.Values{}
	params.Set("pageSize", strconv.Itoa(pageSize(q.Max)))
	country := q.Country
	if country == "" {
		country = n.defaultCountry
	}
	if country != "" {
		params.Set("country", strings.ToLower(country))
	}
	if q.Category != "" {
		params.Set("category", strings.ToLower(q.Category))
	}
	if q.Query != "" {
		params.Set("q", q.Query)
	}
	return n.get(ctx, "/top-headlines", params)
}

// Search returns articles matching q.Query, newest first by default.
func (n *NewsAPI) Search(ctx context.Context, q NewsSearch) ([]Article, error) {
	if strings.TrimSpace(q.Query) == "" {
		return nil, fmt.Errorf("news search query is required")
	}
	params := url.Values{}
	params.Set("q", q.Query)
	params.Set("pageSize", strconv.Itoa(pageSize(q.Max)))
	params.Set("language", valueOr(q.Language, "en"))
	params.Set("sortBy", valueOr(q.SortBy, "publishedAt"))
	return n.get(ctx, "/everything", params)
}

func (n *NewsAPI) get(ctx context.Context, path string, params url.Values) ([]Article, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Api-Key", n.apiKey)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("news request failed: %w", err)
	}

	var data struct {
		Articles []struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			Source      struct {
				Name string `json:"name"`
			} `json:"source"`
			URL         string `json:"url"`
			URLToImage  string `json:"urlToImage"`
			PublishedAt string `json:"publishedAt"`
		} `json:"articles"`
	}
	if err := decodeResponse(resp, &data, "newsapi"); err != nil {
		return nil, err
	}

	articles := make([]Article, 0, len(data.Articles))
	for _, a := range data.Articles {
		articles = append(articles, Article{
			Title:       a.Title,
			Description: a.Description,
			Source:      a.Source.Name,
			URL:         a.URL,
			ImageURL:    a.URLToImage,
			PublishedAt: a.PublishedAt,
		})
	}
	return articles, nil
}

func pageSize(max int) int {
	if max <= 0 {
		return defaultNewsPageSize
	}
	if max > maxNewsPageSize {
		return maxNewsPageSize
	}
	return max
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
