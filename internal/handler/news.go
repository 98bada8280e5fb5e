package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/capitalize-ai/assistant-engine/internal/apperr"
	"github.com/capitalize-ai/assistant-engine/internal/integrations"
)

// NewsHandler serves headlines and article search. A nil client answers
// 503.
type NewsHandler struct {
	news integrations.News
}

// NewNewsHandler creates a new news handler.
func NewNewsHandler(news integrations.News) *NewsHandler {
	return &NewsHandler{news: news}
}

// Headlines handles GET /news/headlines?country&category&query&page_size
func (h *NewsHandler) Headlines(w http.ResponseWriter, r *http.Request) {
	if h.news == nil {
		writeUnavailable(w, "news service is not configured")
		return
	}
	size, err := pageSizeParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	q := r.URL.Query()
	articles, err := h.news.TopHeadlines(r.Context(), integrations.HeadlinesQuery{
		Country:  q.Get("country"),
		Category: q.Get("category"),
		Query:    q.Get("query"),
		Max:      size,
	})
	h.articles(w, articles, err)
}

// Search handles GET /news/search?query&language&sort_by&page_size
func (h *NewsHandler) Search(w http.ResponseWriter, r *http.Request) {
	if h.news == nil {
		writeUnavailable(w, "news service is not configured")
		return
	}
	q := r.URL.Query()
	query := strings.TrimSpace(q.Get("query"))
	if query == "" {
		writeError(w, apperr.Validation("query is required"))
		return
	}
	size, err := pageSizeParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	articles, err := h.news.Search(r.Context(), integrations.NewsSearch{
		Query:    query,
		Language: q.Get("language"),
		SortBy:   q.Get("sort_by"),
		Max:      size,
	})
	h.articles(w, articles, err)
}

func (h *NewsHandler) articles(w http.ResponseWriter, articles []integrations.Article, err error) {
	if err != nil {
		writeError(w, apperr.Wrap(apperr.CodeUpstreamUnavailable, "news request failed", err))
		return
	}
	if articles == nil {
		articles = []integrations.Article{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"articles": articles})
}

func pageSizeParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("page_size")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, apperr.Validation("invalid page_size %q", raw)
	}
	return n, nil
}
