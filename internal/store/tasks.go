package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/capitalize-ai/assistant-engine/internal/model"
)

// TaskFilter narrows task listings. Zero values do not filter.
type TaskFilter struct {
	Status    model.TaskStatus
	DueBefore *time.Time
	DueAfter  *time.Time
}

// TaskRepo persists tasks.
type TaskRepo interface {
	Create(ctx context.Context, task *model.Task) error
	Get(ctx context.Context, id uint) (*model.Task, error)
	List(ctx context.Context, filter TaskFilter) ([]model.Task, error)
	Save(ctx context.Context, task *model.Task) error
	Delete(ctx context.Context, id uint) error
}

type taskRepo struct {
	db *gorm.DB
}

// NewTaskRepo returns a gorm-backed TaskRepo.
func NewTaskRepo(db *gorm.DB) TaskRepo {
	return &taskRepo{db: db}
}

func (r *taskRepo) Create(ctx context.Context, task *model.Task) error {
	return r.db.WithContext(ctx).Create(task).Error
}

func (r *taskRepo) Get(ctx context.Context, id uint) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).First(&task, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &task, nil
}

// List orders by due date (undated last), then priority.
func (r *taskRepo) List(ctx context.Context, filter TaskFilter) ([]model.Task, error) {
	q := r.db.WithContext(ctx).Model(&model.Task{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.DueBefore != nil {
		q = q.Where("due_date IS NOT NULL AND due_date < ?", filter.DueBefore.UTC())
	}
	if filter.DueAfter != nil {
		q = q.Where("due_date IS NOT NULL AND due_date >= ?", filter.DueAfter.UTC())
	}

	var tasks []model.Task
	err := q.
		Order("CASE WHEN due_date IS NULL THEN 1 ELSE 0 END").
		Order("due_date ASC").
		Order("priority ASC").
		Order("id ASC").
		Find(&tasks).Error
	return tasks, err
}

func (r *taskRepo) Save(ctx context.Context, task *model.Task) error {
	return r.db.WithContext(ctx).Save(task).Error
}

func (r *taskRepo) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&model.Task{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
