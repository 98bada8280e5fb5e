package handler

import (
	"net/http"
	"strconv"

	"github.com/capitalize-ai/assistant-engine/internal/model"
	"github.com/capitalize-ai/assistant-engine/internal/service"
)

// MemoryHandler handles long-term memory endpoints.
type MemoryHandler struct {
	memory *service.MemoryService
}

// NewMemoryHandler creates a new memory handler.
func NewMemoryHandler(memory *service.MemoryService) *MemoryHandler {
	return &MemoryHandler{memory: memory}
}

// List handles GET /memory?category
func (h *MemoryHandler) List(w http.ResponseWriter, r *http.Request) {
	mems, err := h.memory.List(r.Context(), r.URL.Query().Get("category"))
	respond(w, mems, err)
}

// Store handles POST /memory
func (h *MemoryHandler) Store(w http.ResponseWriter, r *http.Request) {
	var req model.StoreMemoryRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	writeAction(w, h.memory.Store(r.Context(), req))
}

// Delete handles DELETE /memory/{id}
func (h *MemoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeAction(w, h.memory.Delete(r.Context(), id))
}

// KnowledgeHandler handles note and knowledge entry endpoints.
type KnowledgeHandler struct {
	knowledge *service.KnowledgeService
}

// NewKnowledgeHandler creates a new knowledge handler.
func NewKnowledgeHandler(knowledge *service.KnowledgeService) *KnowledgeHandler {
	return &KnowledgeHandler{knowledge: knowledge}
}

// List handles GET /knowledge?kind
func (h *KnowledgeHandler) List(w http.ResponseWriter, r *http.Request) {
	notes, err := h.knowledge.List(r.Context(), model.NoteKind(r.URL.Query().Get("kind")))
	respond(w, notes, err)
}

// AddNote handles POST /knowledge/notes
func (h *KnowledgeHandler) AddNote(w http.ResponseWriter, r *http.Request) {
	var req model.AddNoteRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	writeAction(w, h.knowledge.AddNote(r.Context(), req))
}

// AddEntry handles POST /knowledge/entries
func (h *KnowledgeHandler) AddEntry(w http.ResponseWriter, r *http.Request) {
	var req model.AddNoteRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	writeAction(w, h.knowledge.AddKnowledge(r.Context(), req))
}

// Search handles GET /knowledge/search?q&limit
func (h *KnowledgeHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	notes, err := h.knowledge.Search(r.Context(), q.Get("q"), limit)
	respond(w, notes, err)
}

// Delete handles DELETE /knowledge/{id}
func (h *KnowledgeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeAction(w, h.knowledge.Delete(r.Context(), id))
}
