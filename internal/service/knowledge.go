package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"

	"github.com/capitalize-ai/assistant-engine/internal/apperr"
	"github.com/capitalize-ai/assistant-engine/internal/model"
	"github.com/capitalize-ai/assistant-engine/internal/store"
	"github.com/capitalize-ai/assistant-engine/pkg/logger"
)

const resourceNote = "note"

// KnowledgeService manages free-form notes and titled knowledge entries.
type KnowledgeService struct {
	notes   store.NoteRepo
	journal Journal
	log     *logger.Logger
}

// NewKnowledgeService creates a KnowledgeService.
func NewKnowledgeService(notes store.NoteRepo, journal Journal, log *logger.Logger) *KnowledgeService {
	if journal == nil {
		journal = NopJournal{}
	}
	return &KnowledgeService{notes: notes, journal: journal, log: log.With("service", "KnowledgeService")}
}

// AddNote stores a note. Title is optional.
func (s *KnowledgeService) AddNote(ctx context.Context, req model.AddNoteRequest) *model.ActionResult {
	return s.add(ctx, model.NoteKindNote, req)
}

// AddKnowledge stores a knowledge entry, which requires a title.
func (s *KnowledgeService) AddKnowledge(ctx context.Context, req model.AddNoteRequest) *model.ActionResult {
	if req.Title == nil || strings.TrimSpace(*req.Title) == "" {
		return s.done(ctx, "add", 0, model.ActionFailed(resourceNote, apperr.Validation("knowledge title is required")))
	}
	return s.add(ctx, model.NoteKindKnowledge, req)
}

func (s *KnowledgeService) add(ctx context.Context, kind model.NoteKind, req model.AddNoteRequest) *model.ActionResult {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return s.done(ctx, "add", 0, model.ActionFailed(resourceNote, apperr.Validation("content is required")))
	}

	note := &model.Note{Kind: kind, Title: trimmed(req.Title), Content: content, Category: trimmed(req.Category)}
	if len(req.Tags) > 0 {
		raw, err := json.Marshal(req.Tags)
		if err != nil {
			return s.done(ctx, "add", 0, model.ActionFailed(resourceNote, apperr.Validation("invalid tags")))
		}
		note.Tags = datatypes.JSON(raw)
	}

	if err := s.notes.Create(ctx, note); err != nil {
		return s.done(ctx, "add", 0, model.ActionFailed(resourceNote, storageErr(err)))
	}

	label := "note"
	if kind == model.NoteKindKnowledge {
		label = fmt.Sprintf("knowledge entry '%s'", ptrValue(note.Title))
	}
	return s.done(ctx, "add", note.ID, model.NewAction(model.ActionCreated, resourceNote,
		"Saved "+label, map[string]any{"note": note}))
}

// List returns entries of kind, or all entries when kind is empty.
func (s *KnowledgeService) List(ctx context.Context, kind model.NoteKind) ([]model.Note, error) {
	if kind != "" && kind != model.NoteKindNote && kind != model.NoteKindKnowledge {
		return nil, apperr.Validation("unknown kind %q", kind)
	}
	notes, err := s.notes.List(ctx, kind)
	if err != nil {
		return nil, storageErr(err)
	}
	return notes, nil
}

// Search is a case-insensitive substring match over content, title and
// category.
func (s *KnowledgeService) Search(ctx context.Context, query string, limit int) ([]model.Note, error) {
	if strings.TrimSpace(query) == "" {
		return nil, apperr.Validation("search query is required")
	}
	if limit <= 0 || limit > maxSearchLimit {
		limit = 10
	}
	notes, err := s.notes.Search(ctx, query, limit)
	if err != nil {
		return nil, storageErr(err)
	}
	return notes, nil
}

// Delete removes one entry.
func (s *KnowledgeService) Delete(ctx context.Context, id uint) *model.ActionResult {
	if err := s.notes.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = apperr.NotFound("Note %d not found", id)
		} else {
			err = storageErr(err)
		}
		return s.done(ctx, "delete", id, model.ActionFailed(resourceNote, err))
	}
	return s.done(ctx, "delete", id, model.NewAction(model.ActionDeleted, resourceNote,
		fmt.Sprintf("Deleted note %d", id), map[string]any{"id": id}))
}

func (s *KnowledgeService) done(ctx context.Context, op string, id uint, r *model.ActionResult) *model.ActionResult {
	recordAction(ctx, s.journal, s.log, op, id, r)
	return r
}

func trimmed(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return nil
	}
	return &v
}
