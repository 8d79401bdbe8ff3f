package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/mbeoliero/deskline/internal/entity"
)

// ConversationRepo is the repository for conversation operations
type ConversationRepo struct {
	db *gorm.DB
}

// NewConversationRepo creates a new ConversationRepo
func NewConversationRepo(db *gorm.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// Create creates a new conversation
func (r *ConversationRepo) Create(ctx context.Context, conv *entity.Conversation) error {
	return r.db.WithContext(ctx).Create(conv).Error
}

// GetById gets conversation by Id, nil if missing
func (r *ConversationRepo) GetById(ctx context.Context, id string) (*entity.Conversation, error) {
	var conv entity.Conversation
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conv, nil
}

// Save writes every column of conv
func (r *ConversationRepo) Save(ctx context.Context, tx *gorm.DB, conv *entity.Conversation) error {
	return tx.WithContext(ctx).Save(conv).Error
}

// List lists conversations matching filter, most recently active first
func (r *ConversationRepo) List(ctx context.Context, filter entity.ConversationFilter) ([]*entity.Conversation, error) {
	q := r.db.WithContext(ctx).Model(&entity.Conversation{})
	if filter.SiteId != "" {
		q = q.Where("site_id = ?", filter.SiteId)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.AgentId != "" {
		q = q.Where("agent_id = ?", filter.AgentId)
	}
	if filter.VisitorId != "" {
		q = q.Where("visitor_id = ?", filter.VisitorId)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var convs []*entity.Conversation
	if err := q.Order("updated_at DESC").Order("id").Find(&convs).Error; err != nil {
		return nil, err
	}
	return convs, nil
}
