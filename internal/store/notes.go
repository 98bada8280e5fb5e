package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/capitalize-ai/assistant-engine/internal/model"
)

// NoteRepo persists knowledge store entries.
type NoteRepo interface {
	Create(ctx context.Context, note *model.Note) error
	List(ctx context.Context, kind model.NoteKind) ([]model.Note, error)
	Search(ctx context.Context, query string, limit int) ([]model.Note, error)
	Delete(ctx context.Context, id uint) error
}

type noteRepo struct {
	db *gorm.DB
}

// NewNoteRepo returns a gorm-backed NoteRepo.
func NewNoteRepo(db *gorm.DB) NoteRepo {
	return &noteRepo{db: db}
}

func (r *noteRepo) Create(ctx context.Context, note *model.Note) error {
	return r.db.WithContext(ctx).Create(note).Error
}

func (r *noteRepo) List(ctx context.Context, kind model.NoteKind) ([]model.Note, error) {
	q := r.db.WithContext(ctx).Model(&model.Note{})
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	var notes []model.Note
	err := q.Order("created_at DESC").Order("id DESC").Find(&notes).Error
	return notes, err
}

func (r *noteRepo) Search(ctx context.Context, query string, limit int) ([]model.Note, error) {
	pattern := likePattern(query)
	var notes []model.Note
	err := r.db.WithContext(ctx).
		Where("LOWER(content) LIKE ? OR LOWER(COALESCE(title, '')) LIKE ? OR LOWER(COALESCE(category, '')) LIKE ?", pattern, pattern, pattern).
		Order("created_at DESC").
		Limit(limit).
		Find(&notes).Error
	return notes, err
}

func (r *noteRepo) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&model.Note{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
