package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/capitalize-ai/assistant-engine/internal/model"
)

// EventRepo persists calendar events.
type EventRepo interface {
	Create(ctx context.Context, ev *model.CalendarEvent) error
	Get(ctx context.Context, id uint) (*model.CalendarEvent, error)
	// Range returns events overlapping [start, end), ascending by start.
	Range(ctx context.Context, start, end time.Time) ([]model.CalendarEvent, error)
	// All returns every event ascending by start.
	All(ctx context.Context) ([]model.CalendarEvent, error)
	Save(ctx context.Context, ev *model.CalendarEvent) error
	Delete(ctx context.Context, id uint) error
}

type eventRepo struct {
	db *gorm.DB
}

// NewEventRepo returns a gorm-backed EventRepo.
func NewEventRepo(db *gorm.DB) EventRepo {
	return &eventRepo{db: db}
}

func (r *eventRepo) Create(ctx context.Context, ev *model.CalendarEvent) error {
	return r.db.WithContext(ctx).Create(ev).Error
}

func (r *eventRepo) Get(ctx context.Context, id uint) (*model.CalendarEvent, error) {
	var ev model.CalendarEvent
	if err := r.db.WithContext(ctx).First(&ev, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &ev, nil
}

func (r *eventRepo) Range(ctx context.Context, start, end time.Time) ([]model.CalendarEvent, error) {
	var events []model.CalendarEvent
	err := r.db.WithContext(ctx).
		Where("start_time < ? AND end_time > ?", end.UTC(), start.UTC()).
		Order("start_time ASC").
		Order("id ASC").
		Find(&events).Error
	return events, err
}

func (r *eventRepo) All(ctx context.Context) ([]model.CalendarEvent, error) {
	var events []model.CalendarEvent
	err := r.db.WithContext(ctx).
		Order("start_time ASC").
		Order("id ASC").
		Find(&events).Error
	return events, err
}

func (r *eventRepo) Save(ctx context.Context, ev *model.CalendarEvent) error {
	return r.db.WithContext(ctx).Save(ev).Error
}

func (r *eventRepo) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&model.CalendarEvent{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
