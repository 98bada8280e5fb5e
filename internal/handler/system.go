package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/capitalize-ai/assistant-engine/internal/apperr"
	"github.com/capitalize-ai/assistant-engine/internal/config"
	"github.com/capitalize-ai/assistant-engine/internal/model"
	"github.com/capitalize-ai/assistant-engine/internal/service"
	"github.com/capitalize-ai/assistant-engine/pkg/logger"
)

// BriefingHandler serves the daily briefing.
type BriefingHandler struct {
	briefing *service.BriefingService
	locate   Locator
}

// NewBriefingHandler creates a new briefing handler.
func NewBriefingHandler(briefing *service.BriefingService, locate Locator) *BriefingHandler {
	return &BriefingHandler{briefing: briefing, locate: locate}
}

// Get handles GET /briefing?timezone
func (h *BriefingHandler) Get(w http.ResponseWriter, r *http.Request) {
	b, err := h.briefing.Generate(r.Context(), h.locate(r.URL.Query().Get("timezone")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"briefing": b,
		"summary":  b.Summary(),
	})
}

// SettingsValidator checks that settings resolve to a usable client.
type SettingsValidator interface {
	Validate(s config.LLMSettings) error
	Providers() []string
}

// SettingsHandler reads and swaps the active LLM settings.
type SettingsHandler struct {
	cell      *config.SettingsCell
	validator SettingsValidator
	logger    *logger.Logger
}

// NewSettingsHandler creates a new settings handler.
func NewSettingsHandler(cell *config.SettingsCell, validator SettingsValidator, log *logger.Logger) *SettingsHandler {
	return &SettingsHandler{cell: cell, validator: validator, logger: log}
}

// updateSettingsRequest is a partial settings change.
type updateSettingsRequest struct {
	Provider    *string  `json:"provider,omitempty"`
	Model       *string  `json:"model,omitempty"`
	BaseURL     *string  `json:"base_url,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

// Get handles GET /settings/llm
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"settings":  h.cell.Load(),
		"providers": h.validator.Providers(),
	})
}

// Update handles POST /settings/llm. The new snapshot is published only if
// its provider resolves.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateSettingsRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	next, err := h.cell.Update(func(s *config.LLMSettings) error {
		if req.Provider != nil {
			s.Provider = strings.ToLower(strings.TrimSpace(*req.Provider))
		}
		if req.Model != nil {
			s.Model = strings.TrimSpace(*req.Model)
		}
		if req.BaseURL != nil {
			s.BaseURL = strings.TrimSpace(*req.BaseURL)
		}
		if req.Temperature != nil {
			if *req.Temperature < 0 || *req.Temperature > 2 {
				return apperr.Validation("temperature must be between 0 and 2")
			}
			s.Temperature = *req.Temperature
		}
		if req.MaxTokens != nil {
			if *req.MaxTokens <= 0 {
				return apperr.Validation("max_tokens must be positive")
			}
			s.MaxTokens = *req.MaxTokens
		}
		if err := h.validator.Validate(*s); err != nil {
			return apperr.Wrap(apperr.CodeValidation, "provider "+s.Provider+" is unavailable", err)
		}
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info("llm settings updated", "provider", next.Provider, "model", next.Model, "version", next.Version)
	writeJSON(w, http.StatusOK, map[string]any{"settings": next})
}

// JournalReader reads the newest journal entries.
type JournalReader interface {
	Recent(ctx context.Context, limit int) ([]model.JournalEntry, error)
}

// AuditHandler serves the action journal tail.
type AuditHandler struct {
	journal JournalReader
}

// NewAuditHandler creates a new audit handler. journal may be nil when NATS
// is disabled.
func NewAuditHandler(journal JournalReader) *AuditHandler {
	return &AuditHandler{journal: journal}
}

// Recent handles GET /audit?limit
func (h *AuditHandler) Recent(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		writeUnavailable(w, "action journal is disabled")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, apperr.Validation("invalid limit %q", raw))
			return
		}
		limit = n
	}
	entries, err := h.journal.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, apperr.Wrap(apperr.CodeUpstreamUnavailable, "journal read failed", err))
		return
	}
	if entries == nil {
		entries = []model.JournalEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}
