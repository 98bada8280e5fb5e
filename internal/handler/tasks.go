package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/capitalize-ai/assistant-engine/internal/apperr"
	"github.com/capitalize-ai/assistant-engine/internal/model"
	"github.com/capitalize-ai/assistant-engine/internal/service"
)

// TaskHandler handles task endpoints.
type TaskHandler struct {
	tasks *service.TaskService
}

// NewTaskHandler creates a new task handler.
func NewTaskHandler(tasks *service.TaskService) *TaskHandler {
	return &TaskHandler{tasks: tasks}
}

// List handles GET /tasks?include_completed
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	include, err := queryBool(r, "include_completed")
	if err != nil {
		writeError(w, err)
		return
	}
	tasks, err := h.tasks.List(r.Context(), include)
	respond(w, tasks, err)
}

// Pending handles GET /tasks/pending
func (h *TaskHandler) Pending(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.tasks.Pending(r.Context())
	respond(w, tasks, err)
}

// Overdue handles GET /tasks/overdue
func (h *TaskHandler) Overdue(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.tasks.Overdue(r.Context())
	respond(w, tasks, err)
}

// DueSoon handles GET /tasks/due-soon?hours, defaulting to 24 hours.
func (h *TaskHandler) DueSoon(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if raw := r.URL.Query().Get("hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, apperr.Validation("invalid hours %q", raw))
			return
		}
		hours = n
	}
	tasks, err := h.tasks.DueSoon(r.Context(), time.Duration(hours)*time.Hour)
	respond(w, tasks, err)
}

// Get handles GET /tasks/{id}
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	task, err := h.tasks.Get(r.Context(), id)
	respond(w, task, err)
}

// Create handles POST /tasks
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateTaskRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	writeAction(w, h.tasks.Create(r.Context(), req))
}

// Update handles PATCH /tasks/{id}
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req model.UpdateTaskRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	writeAction(w, h.tasks.Update(r.Context(), id, req))
}

// Complete handles POST /tasks/{id}/complete
func (h *TaskHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeAction(w, h.tasks.Complete(r.Context(), id, confirmedFlag(r)))
}

// Reopen handles POST /tasks/{id}/reopen
func (h *TaskHandler) Reopen(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeAction(w, h.tasks.Reopen(r.Context(), id))
}

// Delete handles DELETE /tasks/{id}
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeAction(w, h.tasks.Delete(r.Context(), id, confirmedFlag(r)))
}

// respond writes v as JSON, or err.
func respond(w http.ResponseWriter, v any, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}
