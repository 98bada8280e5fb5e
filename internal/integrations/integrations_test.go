package integrations

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/assistant-engine/pkg/logger"
)

func TestConstructorsReturnNilWhenUnconfigured(t *testing.T) {
	assert.Nil(t, NewWeather("", "Istanbul,TR", ""))
	assert.Nil(t, NewSearch("  ", ""))
	assert.Nil(t, NewNews("", "tr", ""))
}

const newsBody = `{"status":"ok","totalResults":1,"articles":[{"source":{"id":null,"name":"Anadolu"},"title":"Bosphorus bridge reopens","description":"Traffic resumes.","url":"https://example.com/a","urlToImage":"https://example.com/a.jpg","publishedAt":"2026-10-14T08:00:00Z"}]}`

func TestNewsTopHeadlinesUsesDefaultCountry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/top-headlines", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("X-Api-Key"))
		q := r.URL.Query()
		assert.Equal(t, "tr", q.Get("country"))
		assert.Equal(t, "technology", q.Get("category"))
		assert.Equal(t, "50", q.Get("pageSize"))
		assert.False(t, q.Has("q"))
		_, _ = w.Write([]byte(newsBody))
	}))
	defer srv.Close()

	articles, err := NewNews("k", "tr", srv.URL).TopHeadlines(context.Background(), HeadlinesQuery{Category: "Technology", Max: 500})
	require.NoError(t, err)
	require.Len(t, articles, 1)
	assert.Equal(t, Article{
		Title:       "Bosphorus bridge reopens",
		Description: "Traffic resumes.",
		Source:      "Anadolu",
		URL:         "https://example.com/a",
		ImageURL:    "https://example.com/a.jpg",
		PublishedAt: "2026-10-14T08:00:00Z",
	}, articles[0])
}

func TestNewsSearchDefaults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/everything", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "golang", q.Get("q"))
		assert.Equal(t, "en", q.Get("language"))
		assert.Equal(t, "publishedAt", q.Get("sortBy"))
		assert.Equal(t, "10", q.Get("pageSize"))
		_, _ = w.Write([]byte(newsBody))
	}))
	defer srv.Close()

	news := NewNews("k", "", srv.URL)
	articles, err := news.Search(context.Background(), NewsSearch{Query: "golang"})
	require.NoError(t, err)
	assert.Len(t, articles, 1)

	_, err = news.Search(context.Background(), NewsSearch{Query: " "})
	assert.Error(t, err)
}

func TestNewsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"status":"error","code":"apiKeyInvalid"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewNews("bad", "", srv.URL).TopHeadlines(context.Background(), HeadlinesQuery{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestWeatherCurrent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/weather", r.URL.Path)
		assert.Equal(t, "Istanbul,TR", r.URL.Query().Get("q"))
		assert.Equal(t, "k", r.URL.Query().Get("appid"))
		_, _ = w.Write([]byte(`{"name":"Istanbul","sys":{"country":"TR"},"main":{"temp":21.5,"feels_like":20,"humidity":60},"weather":[{"description":"clear sky"}],"wind":{"speed":3.2}}`))
	}))
	defer srv.Close()

	w := NewWeather("k", "Istanbul,TR", srv.URL)
	cur, err := w.Current(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "Istanbul", cur.City)
	assert.Equal(t, "clear sky", cur.Description)
	assert.InDelta(t, 21.5, cur.Temperature, 0.001)
	assert.Contains(t, cur.Summary(), "Istanbul")
}

func TestWeatherForecastCapsDays(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "40", r.URL.Query().Get("cnt"))
		_, _ = w.Write([]byte(`{"list":[{"dt_txt":"2026-01-01 12:00:00","main":{"temp":5},"weather":[{"description":"snow"}]}]}`))
	}))
	defer srv.Close()

	entries, err := NewWeather("k", "Ankara", srv.URL).Forecast(context.Background(), "Ankara", 12)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "snow", entries[0].Description)
}

func TestWeatherUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewWeather("bad", "x", srv.URL).Current(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestTavilySearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "golang", body["query"])
		_, _ = w.Write([]byte(`{"results":[{"title":"a","url":"u1"},{"title":"b","url":"u2"},{"title":"c","url":"u3"}]}`))
	}))
	defer srv.Close()

	results, err := NewSearch("key", srv.URL).Search(context.Background(), "golang", 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Title)
}

func TestNewMailerFallsBackToLog(t *testing.T) {
	m := NewMailer(SMTPConfig{}, logger.NewNop())
	_, ok := m.(*LogMailer)
	require.True(t, ok)
	assert.NoError(t, m.Send(context.Background(), Outgoing{To: "a@b.c", Subject: "hi"}))

	_, ok = NewMailer(SMTPConfig{Host: "smtp.example.com", From: "me@example.com"}, logger.NewNop()).(*SMTPMailer)
	assert.True(t, ok)
}

func TestBuildMessageHeaders(t *testing.T) {
	raw := string(buildMessage("me@example.com", Outgoing{
		To: "a@example.com", Cc: "b@example.com", Subject: "Hello\r\nBcc: x@evil", Body: "line1\nline2",
	}))
	assert.Contains(t, raw, "Cc: b@example.com\r\n")
	assert.Contains(t, raw, "Subject: Hello  Bcc: x@evil\r\n")
	assert.True(t, strings.HasSuffix(raw, "line1\r\nline2"))
	assert.Equal(t, []string{"a@x", "b@y"}, splitAddresses(" a@x, ,b@y"))
}
