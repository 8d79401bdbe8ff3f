package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/deskline/internal/entity"
	"github.com/mbeoliero/deskline/internal/event"
	"github.com/mbeoliero/deskline/internal/metrics"
	"github.com/mbeoliero/deskline/pkg/constant"
	"github.com/mbeoliero/deskline/pkg/errcode"
	"github.com/mbeoliero/deskline/pkg/identity"
)

// CreateConversationRequest represents create conversation request
type CreateConversationRequest struct {
	SiteId   string            `json:"site_id"`
	Name     string            `json:"name,omitempty"`
	Email    string            `json:"email,omitempty"`
	Phone    string            `json:"phone,omitempty"`
	Subject  string            `json:"subject,omitempty"`
	Priority string            `json:"priority,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func countTransition(status string) {
	metrics.StatusTransitions.WithLabelValues(status).Inc()
}

// CreateConversation opens a waiting conversation for a visitor on an active site
func (c *Coordinator) CreateConversation(ctx context.Context, p *Participant, req *CreateConversationRequest) (*entity.Conversation, error) {
	if err := requireVisitor(p); err != nil {
		return nil, err
	}
	if req.SiteId == "" {
		return nil, errcode.ErrInvalidParam
	}
	if req.Priority == "" {
		req.Priority = constant.PriorityNormal
	}
	if !constant.IsValidPriority(req.Priority) {
		return nil, errcode.ErrInvalidPriority
	}

	sctx, cancel := c.storeCtx(ctx)
	defer cancel()

	site, err := c.store.GetSite(sctx, req.SiteId)
	if err != nil {
		log.CtxError(ctx, "get site failed: site_id=%s, error=%v", req.SiteId, err)
		return nil, storeErr(err)
	}
	if site == nil {
		return nil, errcode.ErrSiteNotFound
	}
	if !site.IsActive() {
		return nil, errcode.ErrSiteInactive
	}

	id, err := c.ids.NextID()
	if err != nil {
		return nil, errcode.ErrInternalServer.Wrap(err)
	}

	now := c.now()
	conv := &entity.Conversation{
		Id:           id,
		SiteId:       site.Id,
		VisitorId:    p.Id,
		VisitorName:  req.Name,
		VisitorEmail: req.Email,
		VisitorPhone: req.Phone,
		IsAnonymous:  req.Email == "",
		Status:       constant.ConvStatusWaiting,
		Priority:     req.Priority,
		Subject:      req.Subject,
		Metadata:     req.Metadata,
		StartTime:    now,
	}

	if err := c.store.CreateConversation(sctx, conv); err != nil {
		log.CtxError(ctx, "create conversation failed: site_id=%s, error=%v", site.Id, err)
		return nil, storeErr(err)
	}
	countTransition(conv.Status)

	log.CtxInfo(ctx, "conversation created: conversation_id=%s, site_id=%s, visitor_id=%s", conv.Id, site.Id, p.Id)
	return conv, nil
}

// GetConversation returns a conversation the caller may act on
func (c *Coordinator) GetConversation(ctx context.Context, p *Participant, conversationId string) (*entity.Conversation, error) {
	conv, err := c.loadConversation(ctx, conversationId)
	if err != nil {
		return nil, err
	}
	if err := c.authorize(ctx, p, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// ListConversations lists conversations for an agent
func (c *Coordinator) ListConversations(ctx context.Context, p *Participant, filter entity.ConversationFilter) ([]*entity.Conversation, error) {
	if err := requireAgent(p); err != nil {
		return nil, err
	}
	if filter.Limit <= 0 || filter.Limit > constant.MaxHistoryLimit {
		filter.Limit = constant.MaxHistoryLimit
	}

	sctx, cancel := c.storeCtx(ctx)
	defer cancel()

	convs, err := c.store.ListConversations(sctx, filter)
	if err != nil {
		log.CtxError(ctx, "list conversations failed: site_id=%s, error=%v", filter.SiteId, err)
		return nil, storeErr(err)
	}

	visible := make([]*entity.Conversation, 0, len(convs))
	for _, conv := range convs {
		if c.authz.CanActOnConversation(ctx, p.Id, conv) {
			visible = append(visible, conv)
		}
	}
	return visible, nil
}

// Transfer hands an assigned conversation to another agent. The new agent is
// paged on all of their connections even if they have not joined the room.
func (c *Coordinator) Transfer(ctx context.Context, p *Participant, conversationId, toAgent, reason string) (*entity.Conversation, error) {
	if err := requireAgent(p); err != nil {
		return nil, err
	}
	if toAgent == "" {
		return nil, errcode.ErrInvalidParam
	}
	if role, err := identity.RoleOf(toAgent); err != nil || role != identity.RoleAgent {
		return nil, errcode.ErrParticipantNotFound
	}
	reason = strings.TrimSpace(reason)

	unlock := c.locks.Lock(conversationId)
	defer unlock()

	conv, err := c.loadConversation(ctx, conversationId)
	if err != nil {
		return nil, err
	}
	if err := c.authorize(ctx, p, conv); err != nil {
		return nil, err
	}
	if conv.IsClosed() {
		return nil, errcode.ErrConversationClosed
	}
	if conv.AgentId == toAgent {
		return nil, errcode.ErrAlreadyAssigned
	}

	fromAgent := conv.AgentId
	if err := conv.RecordTransfer(toAgent, reason, c.now()); err != nil {
		return nil, err
	}

	shown := reason
	if shown == "" {
		shown = "none"
	}
	msg, err := c.appendSystem(ctx, conv, fmt.Sprintf("Conversation transferred to another agent. Reason: %s", shown))
	if err != nil {
		return nil, err
	}
	countTransition(conv.Status)

	data := &event.TransferredData{
		Conversation: conv,
		FromAgent:    fromAgent,
		ToAgent:      toAgent,
		Reason:       reason,
		Message:      msg.ToMessageInfo(),
	}
	c.rooms.Broadcast(conv.Id, event.New(event.ConversationTransferred, data), nil)
	c.rooms.DirectDeliver(c.presence.Lookup(toAgent), event.New(event.NewConversationAssigned, data))

	log.CtxInfo(ctx, "conversation transferred: conversation_id=%s, from=%s, to=%s", conv.Id, fromAgent, toAgent)
	return conv, nil
}

// Close ends a conversation. Closed is terminal.
func (c *Coordinator) Close(ctx context.Context, p *Participant, conversationId string) (*entity.Conversation, error) {
	if p == nil || p.Id == "" {
		return nil, errcode.ErrUnauthenticated
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
	if err := conv.TransitionTo(constant.ConvStatusClosed); err != nil {
		return nil, err
	}
	conv.EndTime = c.now()

	msg, err := c.appendSystem(ctx, conv, fmt.Sprintf("Conversation closed by %s", p.Role))
	if err != nil {
		return nil, err
	}
	countTransition(conv.Status)

	c.rooms.Broadcast(conv.Id, event.New(event.ConversationClosed, &event.ClosedData{
		Conversation: conv,
		ClosedBy:     p.Id,
		Message:      msg.ToMessageInfo(),
	}), nil)

	log.CtxInfo(ctx, "conversation closed: conversation_id=%s, by=%s", conv.Id, p.Id)
	return conv, nil
}

// Rate records the visitor's rating. A conversation can be rated once.
func (c *Coordinator) Rate(ctx context.Context, p *Participant, conversationId string, score int, comment string) (*entity.Conversation, error) {
	if score < constant.MinRatingScore || score > constant.MaxRatingScore {
		return nil, errcode.ErrInvalidRating
	}
	if err := requireVisitor(p); err != nil {
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
	if conv.Rating != nil {
		return nil, errcode.ErrAlreadyRated
	}

	conv.Rating = &entity.Rating{
		Score:   score,
		Comment: strings.TrimSpace(comment),
		RatedAt: c.now(),
	}
	if err := c.saveConversation(ctx, conv); err != nil {
		return nil, err
	}

	c.rooms.Broadcast(conv.Id, event.New(event.ConversationRated, &event.RatedData{
		ConversationId: conv.Id,
		Rating:         conv.Rating,
	}), nil)

	log.CtxInfo(ctx, "conversation rated: conversation_id=%s, score=%d", conv.Id, score)
	return conv, nil
}
