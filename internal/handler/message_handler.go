package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/deskline/internal/service"
	"github.com/mbeoliero/deskline/pkg/errcode"
	"github.com/mbeoliero/deskline/pkg/response"
)

// MessageHandler handles message moderation requests
type MessageHandler struct {
	coord *service.Coordinator
}

// NewMessageHandler creates a new MessageHandler
func NewMessageHandler(coord *service.Coordinator) *MessageHandler {
	return &MessageHandler{coord: coord}
}

// EditMessageRequest represents an edit request
type EditMessageRequest struct {
	MessageId string `json:"message_id"`
	Content   string `json:"content"`
}

// EditMessage handles message edit request
func (h *MessageHandler) EditMessage(ctx context.Context, c *app.RequestContext) {
	p := participantOf(c)
	if p == nil {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthenticated)
		return
	}

	var req EditMessageRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	msg, err := h.coord.EditMessage(ctx, p, req.MessageId, req.Content)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, msg.ToMessageInfo())
}

// DeleteMessageRequest represents a delete request
type DeleteMessageRequest struct {
	MessageId string `json:"message_id"`
}

// DeleteMessage handles message delete request
func (h *MessageHandler) DeleteMessage(ctx context.Context, c *app.RequestContext) {
	p := participantOf(c)
	if p == nil {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthenticated)
		return
	}

	var req DeleteMessageRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	msg, err := h.coord.DeleteMessage(ctx, p, req.MessageId)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, msg.ToMessageInfo())
}
