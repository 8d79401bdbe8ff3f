package service

import (
	"context"
	"strings"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/deskline/internal/entity"
	"github.com/mbeoliero/deskline/internal/event"
	"github.com/mbeoliero/deskline/internal/metrics"
	"github.com/mbeoliero/deskline/pkg/constant"
	"github.com/mbeoliero/deskline/pkg/errcode"
)

// SendMessageRequest represents send message request
type SendMessageRequest struct {
	ConversationId string             `json:"conversation_id"`
	ClientMsgId    string             `json:"client_msg_id,omitempty"`
	Content        string             `json:"content"`
	MsgType        string             `json:"msg_type,omitempty"`
	ReplyTo        string             `json:"reply_to,omitempty"`
	Attachment     *entity.Attachment `json:"attachment,omitempty"`
}

func (r *SendMessageRequest) validate() error {
	if r.ConversationId == "" {
		return errcode.ErrInvalidParam
	}
	if r.MsgType == "" {
		r.MsgType = constant.MsgTypeText
	}
	if !constant.IsValidMsgType(r.MsgType) || r.MsgType == constant.MsgTypeSystem {
		return errcode.ErrInvalidMessageType
	}
	if strings.TrimSpace(r.Content) == "" {
		if r.MsgType == constant.MsgTypeText || r.Attachment == nil || r.Attachment.Url == "" {
			return errcode.ErrEmptyContent
		}
	}
	return nil
}

// SendMessage appends a message to the conversation and broadcasts it to the room,
// sender included. A retry carrying an already-seen clientMsgId returns the stored
// message without broadcasting again.
func (c *Coordinator) SendMessage(ctx context.Context, p *Participant, req *SendMessageRequest) (*entity.Message, error) {
	if p == nil || p.Id == "" {
		return nil, errcode.ErrUnauthenticated
	}
	if !p.isAgent() && !p.isVisitor() {
		return nil, errcode.ErrNoPermission
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	unlock := c.locks.Lock(req.ConversationId)
	defer unlock()

	conv, err := c.loadConversation(ctx, req.ConversationId)
	if err != nil {
		return nil, err
	}
	if err := c.authorize(ctx, p, conv); err != nil {
		return nil, err
	}
	if conv.IsClosed() {
		return nil, errcode.ErrConversationClosed
	}

	if req.ClientMsgId != "" {
		existing, err := c.findByClientMsgId(ctx, conv.Id, p.Id, req.ClientMsgId)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			log.CtxDebug(ctx, "duplicate message: conversation_id=%s, client_msg_id=%s", conv.Id, req.ClientMsgId)
			return existing, nil
		}
	}

	if req.ReplyTo != "" {
		target, err := c.loadMessage(ctx, req.ReplyTo)
		if err != nil {
			if errcode.KindOf(err) == errcode.ErrNotFound {
				return nil, errcode.ErrInvalidReplyTo
			}
			return nil, err
		}
		if target.ConversationId != conv.Id {
			return nil, errcode.ErrInvalidReplyTo
		}
	}

	if p.isAgent() && !conv.HasAgent() {
		conv.AgentId = p.Id
	}
	wasWaiting := conv.Status == constant.ConvStatusWaiting
	if wasWaiting {
		if err := conv.TransitionTo(constant.ConvStatusActive); err != nil {
			return nil, err
		}
	}
	if p.isVisitor() {
		conv.UnreadCount++
	}

	msg, err := c.newMessage(conv, p.Id, p.Role, req.Content, req.MsgType)
	if err != nil {
		return nil, err
	}
	msg.ClientMsgId = req.ClientMsgId
	msg.ReplyTo = req.ReplyTo
	msg.Attachment = req.Attachment

	if err := c.appendLocked(ctx, conv, msg); err != nil {
		return nil, err
	}
	if wasWaiting {
		countTransition(conv.Status)
	}

	log.CtxInfo(ctx, "message sent: conversation_id=%s, sender_id=%s, seq=%d", conv.Id, p.Id, msg.Seq)
	return msg, nil
}

func (c *Coordinator) findByClientMsgId(ctx context.Context, conversationId, senderId, clientMsgId string) (*entity.Message, error) {
	sctx, cancel := c.storeCtx(ctx)
	defer cancel()

	msg, err := c.store.GetMessageByClientMsgId(sctx, conversationId, senderId, clientMsgId)
	if err != nil {
		log.CtxError(ctx, "check idempotency failed: conversation_id=%s, error=%v", conversationId, err)
		return nil, storeErr(err)
	}
	return msg, nil
}

// newMessage builds the next message of conv. Must be called inside conv's exclusive section.
func (c *Coordinator) newMessage(conv *entity.Conversation, senderId, senderType, content, msgType string) (*entity.Message, error) {
	id, err := c.ids.NextID()
	if err != nil {
		return nil, errcode.ErrInternalServer.Wrap(err)
	}

	ts := c.now()
	if ts < conv.LastMessageTime {
		ts = conv.LastMessageTime
	}

	return &entity.Message{
		Id:             id,
		ConversationId: conv.Id,
		Seq:            conv.LastSeq + 1,
		SenderId:       senderId,
		SenderType:     senderType,
		Content:        content,
		MsgType:        msgType,
		Timestamp:      ts,
	}, nil
}

// appendLocked commits msg together with conv's denormalized fields, then broadcasts
// new-message. Must be called inside conv's exclusive section. conv is only updated
// in place; on failure nothing is broadcast.
func (c *Coordinator) appendLocked(ctx context.Context, conv *entity.Conversation, msg *entity.Message) error {
	conv.LastSeq = msg.Seq
	conv.LastMessageTime = msg.Timestamp
	conv.LastMessage = entity.Preview(msg.Content, c.opts.PreviewLength)

	sctx, cancel := c.storeCtx(ctx)
	defer cancel()

	if err := c.store.AppendMessage(sctx, conv, msg); err != nil {
		log.CtxError(ctx, "append message failed: conversation_id=%s, seq=%d, error=%v", conv.Id, msg.Seq, err)
		return storeErr(err)
	}
	metrics.MessagesAppended.WithLabelValues(msg.SenderType).Inc()

	c.rooms.Broadcast(conv.Id, event.New(event.NewMessage, msg.ToMessageInfo()), nil)
	return nil
}

// appendSystem injects a system message recording a state change
func (c *Coordinator) appendSystem(ctx context.Context, conv *entity.Conversation, content string) (*entity.Message, error) {
	msg, err := c.newMessage(conv, "", constant.MsgTypeSystem, content, constant.MsgTypeSystem)
	if err != nil {
		return nil, err
	}
	if err := c.appendLocked(ctx, conv, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// EditMessage replaces a message's content. The first edit keeps the original for audit.
// Re-sending the current content is a no-op.
func (c *Coordinator) EditMessage(ctx context.Context, p *Participant, messageId, content string) (*entity.Message, error) {
	if err := requireAgent(p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, errcode.ErrEmptyContent
	}

	return c.mutateMessage(ctx, p, messageId, func(msg *entity.Message) (string, bool, error) {
		if msg.IsDeleted {
			return "", false, errcode.ErrMessageDeleted
		}
		if msg.Content == content {
			return "", false, nil
		}
		if !msg.IsEdited {
			msg.OriginalContent = msg.Content
			msg.IsEdited = true
		}
		msg.Content = content
		msg.EditedAt = c.now()
		return event.MessageEdited, true, nil
	})
}

// DeleteMessage soft-deletes a message. Deleting twice is a no-op.
func (c *Coordinator) DeleteMessage(ctx context.Context, p *Participant, messageId string) (*entity.Message, error) {
	if err := requireAgent(p); err != nil {
		return nil, err
	}

	return c.mutateMessage(ctx, p, messageId, func(msg *entity.Message) (string, bool, error) {
		if msg.IsDeleted {
			return "", false, nil
		}
		msg.IsDeleted = true
		msg.DeletedAt = c.now()
		msg.DeletedBy = p.Id
		return event.MessageDeleted, true, nil
	})
}

// mutateMessage runs fn on a fresh copy of the message inside its conversation's
// exclusive section, persists it if fn reports a change, and broadcasts the event fn names.
func (c *Coordinator) mutateMessage(ctx context.Context, p *Participant, messageId string,
	fn func(msg *entity.Message) (evt string, changed bool, err error)) (*entity.Message, error) {
	msg, err := c.loadMessage(ctx, messageId)
	if err != nil {
		return nil, err
	}

	unlock := c.locks.Lock(msg.ConversationId)
	defer unlock()

	conv, err := c.loadConversation(ctx, msg.ConversationId)
	if err != nil {
		return nil, err
	}
	if err := c.authorize(ctx, p, conv); err != nil {
		return nil, err
	}

	// reload under the lock
	msg, err = c.loadMessage(ctx, messageId)
	if err != nil {
		return nil, err
	}

	evt, changed, err := fn(msg)
	if err != nil {
		return nil, err
	}
	if !changed {
		return msg, nil
	}

	sctx, cancel := c.storeCtx(ctx)
	defer cancel()
	if err := c.store.UpdateMessage(sctx, msg); err != nil {
		log.CtxError(ctx, "update message failed: message_id=%s, error=%v", msg.Id, err)
		return nil, storeErr(err)
	}

	c.rooms.Broadcast(msg.ConversationId, event.New(evt, msg.ToMessageInfo()), nil)
	log.CtxInfo(ctx, "message updated: message_id=%s, event=%s, by=%s", msg.Id, evt, p.Id)
	return msg, nil
}

// MarkRead marks the conversation's unread visitor messages as read (all, or only
// messageIds) and zeroes the unread counter. Calling it again changes nothing.
func (c *Coordinator) MarkRead(ctx context.Context, p *Participant, conversationId string, messageIds []string) ([]string, error) {
	if err := requireAgent(p); err != nil {
		return nil, err
	}

	unlock := c.locks.Lock(conversationId)
	defer unlock()

	conv, err := c.loadConversation(ctx, conversationId)
	if err != nil {
		return nil, err
	}
	if err := c.authorize(ctx, p, conv); err != nil {
		return nil, err
	}

	hadUnread := conv.UnreadCount > 0
	conv.UnreadCount = 0
	readAt := c.now()

	sctx, cancel := c.storeCtx(ctx)
	defer cancel()
	readIds, err := c.store.MarkRead(sctx, conv, messageIds, readAt)
	if err != nil {
		log.CtxError(ctx, "mark read failed: conversation_id=%s, error=%v", conv.Id, err)
		return nil, storeErr(err)
	}

	if len(readIds) > 0 || hadUnread {
		c.rooms.Broadcast(conv.Id, event.New(event.MessagesRead, &event.MessagesReadData{
			ConversationId: conv.Id,
			MessageIds:     readIds,
			ReadBy:         p.Id,
			ReadAt:         readAt,
		}), p.Conn)
	}
	return readIds, nil
}

// History returns up to q.Limit non-deleted messages older than the query's cursors, oldest first.
// Clients page with BeforeSeq set to the oldest seq they hold.
func (c *Coordinator) History(ctx context.Context, p *Participant, conversationId string, q entity.HistoryQuery) ([]*entity.Message, error) {
	conv, err := c.loadConversation(ctx, conversationId)
	if err != nil {
		return nil, err
	}
	if err := c.authorize(ctx, p, conv); err != nil {
		return nil, err
	}

	if q.Limit <= 0 || q.Limit > c.opts.HistoryLimit {
		q.Limit = c.opts.HistoryLimit
	}

	sctx, cancel := c.storeCtx(ctx)
	defer cancel()
	msgs, err := c.store.GetMessages(sctx, conv.Id, q)
	if err != nil {
		log.CtxError(ctx, "get messages failed: conversation_id=%s, error=%v", conv.Id, err)
		return nil, storeErr(err)
	}
	return msgs, nil
}
