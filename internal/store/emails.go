package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/capitalize-ai/assistant-engine/internal/model"
)

// EmailFilter narrows email listings. Empty fields do not filter.
type EmailFilter struct {
	Statuses []model.EmailStatus
	Mailbox  model.Mailbox
}

// EmailRepo persists outgoing emails.
type EmailRepo interface {
	Create(ctx context.Context, email *model.Email) error
	Get(ctx context.Context, id uint) (*model.Email, error)
	List(ctx context.Context, filter EmailFilter) ([]model.Email, error)
	Search(ctx context.Context, query string, limit int) ([]model.Email, error)
	// Transition moves the email to status only while it is in one of from.
	// It reports false when the row was not in an allowed state.
	Transition(ctx context.Context, id uint, from []model.EmailStatus, to model.EmailStatus) (bool, error)
	// MarkSent records a completed transmission of a claimed email.
	MarkSent(ctx context.Context, id uint, at time.Time) (bool, error)
	// SaveDraft writes the editable fields and resets the status to draft
	// while the email is in one of from.
	SaveDraft(ctx context.Context, email *model.Email, from []model.EmailStatus) (bool, error)
	Delete(ctx context.Context, id uint) error
}

type emailRepo struct {
	db *gorm.DB
}

// NewEmailRepo returns a gorm-backed EmailRepo.
func NewEmailRepo(db *gorm.DB) EmailRepo {
	return &emailRepo{db: db}
}

func (r *emailRepo) Create(ctx context.Context, email *model.Email) error {
	return r.db.WithContext(ctx).Create(email).Error
}

func (r *emailRepo) Get(ctx context.Context, id uint) (*model.Email, error) {
	var email model.Email
	if err := r.db.WithContext(ctx).First(&email, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &email, nil
}

func (r *emailRepo) List(ctx context.Context, filter EmailFilter) ([]model.Email, error) {
	q := r.db.WithContext(ctx).Model(&model.Email{})
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN ?", filter.Statuses)
	}
	if filter.Mailbox != "" {
		q = q.Where("mailbox = ?", filter.Mailbox)
	}

	var emails []model.Email
	err := q.Order("created_at DESC").Order("id DESC").Find(&emails).Error
	return emails, err
}

func (r *emailRepo) Search(ctx context.Context, query string, limit int) ([]model.Email, error) {
	pattern := likePattern(query)
	var emails []model.Email
	err := r.db.WithContext(ctx).
		Where("LOWER(subject) LIKE ? OR LOWER(body) LIKE ? OR LOWER(to_address) LIKE ?", pattern, pattern, pattern).
		Order("created_at DESC").
		Limit(limit).
		Find(&emails).Error
	return emails, err
}

func (r *emailRepo) Transition(ctx context.Context, id uint, from []model.EmailStatus, to model.EmailStatus) (bool, error) {
	return r.update(ctx, id, from, map[string]any{"status": to})
}

func (r *emailRepo) MarkSent(ctx context.Context, id uint, at time.Time) (bool, error) {
	return r.update(ctx, id, []model.EmailStatus{model.EmailSending}, map[string]any{
		"status":  model.EmailSent,
		"sent_at": at,
	})
}

func (r *emailRepo) SaveDraft(ctx context.Context, email *model.Email, from []model.EmailStatus) (bool, error) {
	return r.update(ctx, email.ID, from, map[string]any{
		"mailbox":    email.Mailbox,
		"to_address": email.ToAddress,
		"cc_address": email.CcAddress,
		"subject":    email.Subject,
		"body":       email.Body,
		"status":     model.EmailDraft,
	})
}

// update applies fields as one conditional UPDATE so concurrent callers
// cannot both leave the same state.
func (r *emailRepo) update(ctx context.Context, id uint, from []model.EmailStatus, fields map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Email{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *emailRepo) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&model.Email{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
