package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/capitalize-ai/assistant-engine/internal/apperr"
	"github.com/capitalize-ai/assistant-engine/internal/middleware"
	"github.com/capitalize-ai/assistant-engine/internal/model"
	"github.com/capitalize-ai/assistant-engine/internal/orchestrator"
	"github.com/capitalize-ai/assistant-engine/pkg/logger"
	"github.com/capitalize-ai/assistant-engine/pkg/metrics"
)

// TurnRunner runs one conversational turn.
type TurnRunner interface {
	RunTurn(ctx context.Context, req orchestrator.TurnRequest, out orchestrator.Emitter) error
}

// StreamHandler serves the chat turn as server-sent events.
type StreamHandler struct {
	turns  TurnRunner
	logger *logger.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(turns TurnRunner, log *logger.Logger) *StreamHandler {
	return &StreamHandler{turns: turns, logger: log}
}

// Stream handles POST /api/v1/chat/stream. Validation failures before the
// stream opens are plain JSON errors; everything after is an SSE event.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.TurnRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := middleware.ValidateMessageContent(req.Message); err != nil {
		writeError(w, err)
		return
	}
	if raw := r.URL.Query().Get("conversation_id"); raw != "" && req.ConversationID == nil {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, apperr.Validation("invalid conversation_id %q", raw))
			return
		}
		cid := uint(id)
		req.ConversationID = &cid
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apperr.Internal("streaming not supported"))
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Track active connection
	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	out := orchestrator.EmitterFunc(func(ev model.StreamEvent) error {
		return sendSSEEvent(w, flusher, ev)
	})
	if err := h.turns.RunTurn(r.Context(), req, out); err != nil {
		h.logger.WithRequest(chimw.GetReqID(r.Context()), middleware.GetCorrelationID(r.Context())).
			Warn("turn ended with error", "error", err)
	}
}

// sendSSEEvent writes one data line and flushes it.
func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, ev model.StreamEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
