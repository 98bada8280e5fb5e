package model

import (
	"github.com/capitalize-ai/assistant-engine/internal/apperr"
)

// ActionKind is the closed set of outcomes a mutating operation can report.
type ActionKind string

const (
	ActionCreated              ActionKind = "created"
	ActionUpdated              ActionKind = "updated"
	ActionCompleted            ActionKind = "completed"
	ActionDeleted              ActionKind = "deleted"
	ActionDrafted              ActionKind = "drafted"
	ActionSent                 ActionKind = "sent"
	ActionConfirmationRequired ActionKind = "confirmation_required"
	ActionError                ActionKind = "error"
)

// ActionResult is the envelope every mutating operation returns.
type ActionResult struct {
	Kind     ActionKind     `json:"kind"`
	Resource string         `json:"resource,omitempty"`
	Message  string         `json:"message"`
	Payload  map[string]any `json:"payload,omitempty"`
	Code     apperr.Code    `json:"code,omitempty"`
}

// NewAction builds a successful or confirmation result.
func NewAction(kind ActionKind, resource, message string, payload map[string]any) *ActionResult {
	return &ActionResult{Kind: kind, Resource: resource, Message: message, Payload: payload}
}

// ActionFailed converts err into an error result.
func ActionFailed(resource string, err error) *ActionResult {
	code := apperr.CodeOf(err)
	return &ActionResult{
		Kind:     ActionError,
		Resource: resource,
		Message:  apperr.Message(err),
		Code:     code,
	}
}

// Success reports whether the mutation was applied.
func (a *ActionResult) Success() bool {
	return a.Kind != ActionError && a.Kind != ActionConfirmationRequired
}

// Err returns the classified error for an error result, nil otherwise.
func (a *ActionResult) Err() error {
	if a.Kind != ActionError {
		return nil
	}
	return apperr.New(a.Code, a.Message)
}
