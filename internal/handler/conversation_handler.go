package handler

import (
	"context"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/deskline/internal/entity"
	"github.com/mbeoliero/deskline/internal/middleware"
	"github.com/mbeoliero/deskline/internal/service"
	"github.com/mbeoliero/deskline/pkg/errcode"
	"github.com/mbeoliero/deskline/pkg/response"
)

// ConversationHandler handles conversation-related requests
type ConversationHandler struct {
	coord *service.Coordinator
}

// NewConversationHandler creates a new ConversationHandler
func NewConversationHandler(coord *service.Coordinator) *ConversationHandler {
	return &ConversationHandler{coord: coord}
}

// CreateConversation handles a visitor opening a conversation
func (h *ConversationHandler) CreateConversation(ctx context.Context, c *app.RequestContext) {
	p := participantOf(c)
	if p == nil {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthenticated)
		return
	}

	var req service.CreateConversationRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}
	if req.SiteId == "" {
		req.SiteId = middleware.GetSiteId(c)
	}

	conv, err := h.coord.CreateConversation(ctx, p, &req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, conv)
}

// GetConversation handles get single conversation request
func (h *ConversationHandler) GetConversation(ctx context.Context, c *app.RequestContext) {
	p := participantOf(c)
	if p == nil {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthenticated)
		return
	}

	conversationId := c.Query("conversation_id")
	if conversationId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	conv, err := h.coord.GetConversation(ctx, p, conversationId)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, conv)
}

// ListConversations handles the agent queue listing
func (h *ConversationHandler) ListConversations(ctx context.Context, c *app.RequestContext) {
	p := participantOf(c)
	if p == nil {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthenticated)
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	filter := entity.ConversationFilter{
		SiteId:  c.Query("site_id"),
		Status:  c.Query("status"),
		AgentId: c.Query("agent_id"),
		Limit:   limit,
		Offset:  offset,
	}

	convs, err := h.coord.ListConversations(ctx, p, filter)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, convs)
}

// GetMessages handles conversation history paging
func (h *ConversationHandler) GetMessages(ctx context.Context, c *app.RequestContext) {
	p := participantOf(c)
	if p == nil {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthenticated)
		return
	}

	conversationId := c.Query("conversation_id")
	if conversationId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}
	var q entity.HistoryQuery
	q.Before, _ = strconv.ParseInt(c.Query("before"), 10, 64)
	q.BeforeSeq, _ = strconv.ParseInt(c.Query("before_seq"), 10, 64)
	q.Limit, _ = strconv.Atoi(c.Query("limit"))

	msgs, err := h.coord.History(ctx, p, conversationId, q)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, entity.ToMessageInfos(msgs))
}

// RateRequest represents a conversation rating request
type RateRequest struct {
	ConversationId string `json:"conversation_id"`
	Score          int    `json:"score"`
	Comment        string `json:"comment"`
}

// RateConversation handles the visitor's rating
func (h *ConversationHandler) RateConversation(ctx context.Context, c *app.RequestContext) {
	p := participantOf(c)
	if p == nil {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthenticated)
		return
	}

	var req RateRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	conv, err := h.coord.Rate(ctx, p, req.ConversationId, req.Score, req.Comment)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, conv)
}
