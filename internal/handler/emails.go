package handler

import (
	"net/http"

	"github.com/capitalize-ai/assistant-engine/internal/model"
	"github.com/capitalize-ai/assistant-engine/internal/service"
)

// EmailHandler handles email endpoints.
type EmailHandler struct {
	emails *service.EmailService
}

// NewEmailHandler creates a new email handler.
func NewEmailHandler(emails *service.EmailService) *EmailHandler {
	return &EmailHandler{emails: emails}
}

// List handles GET /emails?status&mailbox
func (h *EmailHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	emails, err := h.emails.List(r.Context(), model.EmailStatus(q.Get("status")), model.Mailbox(q.Get("mailbox")))
	respond(w, emails, err)
}

// Pending handles GET /emails/pending
func (h *EmailHandler) Pending(w http.ResponseWriter, r *http.Request) {
	emails, err := h.emails.Pending(r.Context())
	respond(w, emails, err)
}

// Get handles GET /emails/{id}
func (h *EmailHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	email, err := h.emails.Get(r.Context(), id)
	respond(w, email, err)
}

// Draft handles POST /emails/draft
func (h *EmailHandler) Draft(w http.ResponseWriter, r *http.Request) {
	var req model.DraftEmailRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	writeAction(w, h.emails.Draft(r.Context(), req))
}

// Update handles PUT /emails/{id}
func (h *EmailHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req model.UpdateEmailRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	writeAction(w, h.emails.Update(r.Context(), id, req))
}

// Send handles POST /emails/{id}/send
func (h *EmailHandler) Send(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeAction(w, h.emails.Send(r.Context(), id, confirmedFlag(r)))
}

// Delete handles DELETE /emails/{id}
func (h *EmailHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeAction(w, h.emails.Delete(r.Context(), id, confirmedFlag(r)))
}
