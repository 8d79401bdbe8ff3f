package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/mbeoliero/deskline/internal/entity"
)

// Store is the durable conversation store backed by the repositories.
// Multi-row writes run in one database transaction.
type Store struct {
	repos *Repositories
}

// NewStore creates a Store
func NewStore(repos *Repositories) *Store {
	return &Store{repos: repos}
}

func (s *Store) CreateConversation(ctx context.Context, conv *entity.Conversation) error {
	return s.repos.Conversation.Create(ctx, conv)
}

func (s *Store) GetConversation(ctx context.Context, id string) (*entity.Conversation, error) {
	return s.repos.Conversation.GetById(ctx, id)
}

func (s *Store) SaveConversation(ctx context.Context, conv *entity.Conversation) error {
	return s.repos.Conversation.Save(ctx, s.repos.DB, conv)
}

func (s *Store) ListConversations(ctx context.Context, filter entity.ConversationFilter) ([]*entity.Conversation, error) {
	return s.repos.Conversation.List(ctx, filter)
}

// AppendMessage inserts msg and saves conv atomically
func (s *Store) AppendMessage(ctx context.Context, conv *entity.Conversation, msg *entity.Message) error {
	return s.repos.Transaction(ctx, func(tx *gorm.DB) error {
		if err := s.repos.Message.Create(ctx, tx, msg); err != nil {
			return err
		}
		return s.repos.Conversation.Save(ctx, tx, conv)
	})
}

func (s *Store) GetMessage(ctx context.Context, id string) (*entity.Message, error) {
	return s.repos.Message.GetById(ctx, id)
}

func (s *Store) GetMessageByClientMsgId(ctx context.Context, conversationId, senderId, clientMsgId string) (*entity.Message, error) {
	return s.repos.Message.GetByClientMsgId(ctx, conversationId, senderId, clientMsgId)
}

func (s *Store) GetMessages(ctx context.Context, conversationId string, q entity.HistoryQuery) ([]*entity.Message, error) {
	return s.repos.Message.ListBefore(ctx, conversationId, q)
}

func (s *Store) UpdateMessage(ctx context.Context, msg *entity.Message) error {
	return s.repos.Message.Update(ctx, msg)
}

// MarkRead marks visitor messages read and saves conv atomically
func (s *Store) MarkRead(ctx context.Context, conv *entity.Conversation, messageIds []string, readAt int64) ([]string, error) {
	var changed []string
	err := s.repos.Transaction(ctx, func(tx *gorm.DB) error {
		ids, err := s.repos.Message.MarkRead(ctx, tx, conv.Id, messageIds, readAt)
		if err != nil {
			return err
		}
		changed = ids
		return s.repos.Conversation.Save(ctx, tx, conv)
	})
	if err != nil {
		return nil, err
	}
	return changed, nil
}

func (s *Store) GetSite(ctx context.Context, id string) (*entity.Site, error) {
	return s.repos.Site.GetById(ctx, id)
}
