package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/capitalize-ai/assistant-engine/internal/model"
)

// ConversationRepo persists conversations and their messages.
type ConversationRepo interface {
	Create(ctx context.Context, conv *model.Conversation) error
	Get(ctx context.Context, id uint) (*model.Conversation, error)
	List(ctx context.Context, limit, offset int) ([]model.Conversation, int64, error)
	Recent(ctx context.Context, excludeID uint, limit int) ([]model.Conversation, error)
	SetTitle(ctx context.Context, id uint, title string) error
	SetSummary(ctx context.Context, id uint, summary string) error
	Delete(ctx context.Context, id uint) error

	AppendMessage(ctx context.Context, msg *model.Message) error
	Messages(ctx context.Context, conversationID uint) ([]model.Message, error)
	CountMessages(ctx context.Context, conversationID uint) (int64, error)
	FirstMessage(ctx context.Context, conversationID uint, role model.Role) (*model.Message, error)
}

type conversationRepo struct {
	db *gorm.DB
}

// NewConversationRepo returns a gorm-backed ConversationRepo.
func NewConversationRepo(db *gorm.DB) ConversationRepo {
	return &conversationRepo{db: db}
}

func (r *conversationRepo) Create(ctx context.Context, conv *model.Conversation) error {
	return r.db.WithContext(ctx).Create(conv).Error
}

func (r *conversationRepo) Get(ctx context.Context, id uint) (*model.Conversation, error) {
	var conv model.Conversation
	if err := r.db.WithContext(ctx).First(&conv, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &conv, nil
}

func (r *conversationRepo) List(ctx context.Context, limit, offset int) ([]model.Conversation, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&model.Conversation{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var convs []model.Conversation
	err := r.db.WithContext(ctx).
		Order("updated_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&convs).Error
	if err != nil {
		return nil, 0, err
	}

	for i := range convs {
		n, err := r.CountMessages(ctx, convs[i].ID)
		if err != nil {
			return nil, 0, err
		}
		convs[i].MessageCount = n
	}
	return convs, total, nil
}

func (r *conversationRepo) Recent(ctx context.Context, excludeID uint, limit int) ([]model.Conversation, error) {
	var convs []model.Conversation
	err := r.db.WithContext(ctx).
		Where("id <> ?", excludeID).
		Order("updated_at DESC").
		Limit(limit).
		Find(&convs).Error
	return convs, err
}

func (r *conversationRepo) SetTitle(ctx context.Context, id uint, title string) error {
	return r.update(ctx, id, "title", title)
}

func (r *conversationRepo) SetSummary(ctx context.Context, id uint, summary string) error {
	return r.update(ctx, id, "summary", summary)
}

func (r *conversationRepo) update(ctx context.Context, id uint, column string, value any) error {
	res := r.db.WithContext(ctx).
		Model(&model.Conversation{}).
		Where("id = ?", id).
		Updates(map[string]any{column: value, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the conversation and its messages in one transaction.
func (r *conversationRepo) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&model.Message{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&model.Conversation{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *conversationRepo) AppendMessage(ctx context.Context, msg *model.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		return tx.Model(&model.Conversation{}).
			Where("id = ?", msg.ConversationID).
			Update("updated_at", msg.CreatedAt).Error
	})
}

func (r *conversationRepo) Messages(ctx context.Context, conversationID uint) ([]model.Message, error) {
	var msgs []model.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&msgs).Error
	return msgs, err
}

func (r *conversationRepo) CountMessages(ctx context.Context, conversationID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("conversation_id = ?", conversationID).
		Count(&n).Error
	return n, err
}

func (r *conversationRepo) FirstMessage(ctx context.Context, conversationID uint, role model.Role) (*model.Message, error) {
	var msg model.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND role = ?", conversationID, role).
		Order("created_at ASC").
		Order("id ASC").
		First(&msg).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &msg, nil
}
