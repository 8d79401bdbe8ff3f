package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/mbeoliero/deskline/internal/entity"
	"github.com/mbeoliero/deskline/pkg/constant"
)

// MessageRepo is the repository for message operations
type MessageRepo struct {
	db *gorm.DB
}

// NewMessageRepo creates a new MessageRepo
func NewMessageRepo(db *gorm.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Create creates a new message
func (r *MessageRepo) Create(ctx context.Context, tx *gorm.DB, msg *entity.Message) error {
	return tx.WithContext(ctx).Create(msg).Error
}

// GetById gets message by Id, nil if missing
func (r *MessageRepo) GetById(ctx context.Context, id string) (*entity.Message, error) {
	var msg entity.Message
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

// GetByClientMsgId gets message by conversation, sender and client_msg_id (for idempotency check)
func (r *MessageRepo) GetByClientMsgId(ctx context.Context, conversationId, senderId, clientMsgId string) (*entity.Message, error) {
	var msg entity.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND sender_id = ? AND client_msg_id = ?", conversationId, senderId, clientMsgId).
		First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

// ListBefore returns up to hq.Limit non-deleted messages older than the query's cursors, ascending
func (r *MessageRepo) ListBefore(ctx context.Context, conversationId string, hq entity.HistoryQuery) ([]*entity.Message, error) {
	limit := hq.Limit
	if limit <= 0 || limit > constant.MaxHistoryLimit {
		limit = constant.MaxHistoryLimit
	}

	q := r.db.WithContext(ctx).
		Where("conversation_id = ? AND is_deleted = ?", conversationId, false)
	if hq.BeforeSeq > 0 {
		q = q.Where("seq < ?", hq.BeforeSeq)
	}
	if hq.Before > 0 {
		q = q.Where("timestamp < ?", hq.Before)
	}

	var messages []*entity.Message
	if err := q.Order("seq DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, err
	}

	// Reverse to ascending order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// Update writes every column of msg
func (r *MessageRepo) Update(ctx context.Context, msg *entity.Message) error {
	return r.db.WithContext(ctx).Save(msg).Error
}

// MarkRead marks unread visitor messages of a conversation as read, optionally
// restricted to ids. Returns the ids that changed.
func (r *MessageRepo) MarkRead(ctx context.Context, tx *gorm.DB, conversationId string, ids []string, readAt int64) ([]string, error) {
	q := tx.WithContext(ctx).Model(&entity.Message{}).
		Where("conversation_id = ? AND sender_type = ? AND is_read = ?", conversationId, constant.RoleVisitor, false)
	if len(ids) > 0 {
		q = q.Where("id IN ?", ids)
	}

	var unread []string
	if err := q.Order("seq").Pluck("id", &unread).Error; err != nil {
		return nil, err
	}
	if len(unread) == 0 {
		return nil, nil
	}

	err := tx.WithContext(ctx).Model(&entity.Message{}).
		Where("id IN ?", unread).
		Updates(map[string]interface{}{
			"is_read":    true,
			"read_at":    readAt,
			"updated_at": entity.NowUnixMilli(),
		}).Error
	if err != nil {
		return nil, err
	}
	return unread, nil
}
