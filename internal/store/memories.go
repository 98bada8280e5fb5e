package store

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/capitalize-ai/assistant-engine/internal/model"
)

// MemoryRepo persists long-term user facts.
type MemoryRepo interface {
	// Upsert inserts or updates the fact keyed on (category, key).
	Upsert(ctx context.Context, mem *model.Memory) error
	Get(ctx context.Context, category, key string) (*model.Memory, error)
	List(ctx context.Context, category string) ([]model.Memory, error)
	Important(ctx context.Context, minImportance int) ([]model.Memory, error)
	Search(ctx context.Context, query string) ([]model.Memory, error)
	Delete(ctx context.Context, id uint) error
}

type memoryRepo struct {
	db *gorm.DB
}

// NewMemoryRepo returns a gorm-backed MemoryRepo.
func NewMemoryRepo(db *gorm.DB) MemoryRepo {
	return &memoryRepo{db: db}
}

func (r *memoryRepo) Upsert(ctx context.Context, mem *model.Memory) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "category"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "importance", "updated_at"}),
	}).Create(mem).Error
	if err != nil {
		return err
	}
	// The conflict path does not report the existing id on every dialect.
	stored, err := r.Get(ctx, mem.Category, mem.Key)
	if err != nil {
		return err
	}
	*mem = *stored
	return nil
}

func (r *memoryRepo) Get(ctx context.Context, category, key string) (*model.Memory, error) {
	var mem model.Memory
	err := r.db.WithContext(ctx).
		Where("category = ? AND key = ?", category, key).
		First(&mem).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &mem, nil
}

func (r *memoryRepo) List(ctx context.Context, category string) ([]model.Memory, error) {
	q := r.db.WithContext(ctx).Model(&model.Memory{})
	if category != "" {
		q = q.Where("category = ?", category)
	}
	var mems []model.Memory
	err := q.Order("category ASC").Order("importance DESC").Order("key ASC").Find(&mems).Error
	return mems, err
}

func (r *memoryRepo) Important(ctx context.Context, minImportance int) ([]model.Memory, error) {
	var mems []model.Memory
	err := r.db.WithContext(ctx).
		Where("importance >= ?", minImportance).
		Order("category ASC").
		Order("importance DESC").
		Order("key ASC").
		Find(&mems).Error
	return mems, err
}

func (r *memoryRepo) Search(ctx context.Context, query string) ([]model.Memory, error) {
	pattern := likePattern(query)
	var mems []model.Memory
	err := r.db.WithContext(ctx).
		Where("LOWER(key) LIKE ? OR LOWER(value) LIKE ?", pattern, pattern).
		Order("importance DESC").
		Find(&mems).Error
	return mems, err
}

func (r *memoryRepo) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&model.Memory{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
