// Package service implements the resource services, the confirmation gate
// and the conversation context manager.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/capitalize-ai/assistant-engine/internal/apperr"
	"github.com/capitalize-ai/assistant-engine/internal/model"
	"github.com/capitalize-ai/assistant-engine/internal/store"
	"github.com/capitalize-ai/assistant-engine/pkg/logger"
)

// Journal receives an audit entry for every resource mutation attempt.
// Implementations must not block the caller for long and never fail it.
type Journal interface {
	Record(ctx context.Context, entry model.JournalEntry)
}

// NopJournal discards entries.
type NopJournal struct{}

func (NopJournal) Record(context.Context, model.JournalEntry) {}

// Clock returns the current time. Services default to time.Now.
type Clock func() time.Time

func recordAction(ctx context.Context, j Journal, log *logger.Logger, op string, id uint, r *model.ActionResult) {
	outcome := string(r.Kind)
	if r.Kind == model.ActionError {
		outcome = string(r.Code)
		log.Warn("action failed", "resource", r.Resource, "operation", op, "id", id, "code", r.Code, "message", r.Message)
	} else {
		log.Info("action", "resource", r.Resource, "operation", op, "id", id, "kind", r.Kind)
	}
	j.Record(ctx, model.JournalEntry{
		ID:         uuid.NewString(),
		Kind:       model.JournalAction,
		Resource:   r.Resource,
		Operation:  op,
		Outcome:    outcome,
		ResourceID: id,
		Message:    r.Message,
		CreatedAt:  time.Now().UTC(),
	})
}

// lookup converts a store miss into a NotFound error with msg.
func lookup[T any](v *T, err error, msg string) (*T, error) {
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("%s", msg)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "storage error", err)
	}
	return v, nil
}

func storageErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("not found")
	}
	return apperr.Wrap(apperr.CodeInternal, "storage error", err)
}

func ptrValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
