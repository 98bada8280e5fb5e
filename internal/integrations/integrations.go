// Package integrations holds the external collaborators used by the
// dispatcher: weather, news, web search and outgoing mail.
package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultHTTPTimeout = 20 * time.Second

// Weather reports current conditions and forecasts for a city.
type Weather interface {
	Current(ctx context.Context, city string) (*CurrentWeather, error)
	Forecast(ctx context.Context, city string, days int) ([]ForecastEntry, error)
}

// Search runs web searches.
type Search interface {
	Search(ctx context.Context, query string, max int) ([]SearchResult, error)
}

// News reads headlines and searches articles.
type News interface {
	TopHeadlines(ctx context.Context, q HeadlinesQuery) ([]Article, error)
	Search(ctx context.Context, q NewsSearch) ([]Article, error)
}

// Mailer transmits one outgoing email.
type Mailer interface {
	Send(ctx context.Context, msg Outgoing) error
}

// Outgoing is the transport view of an email.
type Outgoing struct {
	Mailbox string
	To      string
	Cc      string
	Subject string
	Body    string
}

// CurrentWeather is a normalized current-conditions reading.
type CurrentWeather struct {
	City        string    `json:"city"`
	Country     string    `json:"country,omitempty"`
	Temperature float64   `json:"temperature"`
	FeelsLike   float64   `json:"feels_like"`
	Humidity    int       `json:"humidity"`
	Description string    `json:"description"`
	WindSpeed   float64   `json:"wind_speed"`
	Timestamp   time.Time `json:"timestamp"`
}

// Summary renders a one-line description of w.
func (w *CurrentWeather) Summary() string {
	return fmt.Sprintf("Currently in %s: %.1f°C (%s), feels like %.1f°C. Humidity: %d%%, Wind: %.1f m/s.",
		w.City, w.Temperature, w.Description, w.FeelsLike, w.Humidity, w.WindSpeed)
}

// ForecastEntry is one three-hour forecast step.
type ForecastEntry struct {
	DateTime    string  `json:"datetime"`
	Temperature float64 `json:"temperature"`
	FeelsLike   float64 `json:"feels_like"`
	Humidity    int     `json:"humidity"`
	Description string  `json:"description"`
	WindSpeed   float64 `json:"wind_speed"`
}

// SearchResult is one web search hit.
type SearchResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score,omitempty"`
}

// Article is one normalized news article.
type Article struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Source      string `json:"source,omitempty"`
	URL         string `json:"url"`
	ImageURL    string `json:"image_url,omitempty"`
	PublishedAt string `json:"published_at,omitempty"`
}

func decodeResponse(resp *http.Response, out any, service string) error {
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s api error: %d %s", service, resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parse %s response: %w", service, err)
	}
	return nil
}
