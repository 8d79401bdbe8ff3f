package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/deskline/internal/service"
	"github.com/mbeoliero/deskline/pkg/errcode"
	"github.com/mbeoliero/deskline/pkg/identity"
	"github.com/mbeoliero/deskline/pkg/response"
)

// AgentHandler exposes agent presence
type AgentHandler struct {
	coord *service.Coordinator
}

// NewAgentHandler creates a new AgentHandler
func NewAgentHandler(coord *service.Coordinator) *AgentHandler {
	return &AgentHandler{coord: coord}
}

// AgentStatusResponse is an agent's live presence
type AgentStatusResponse struct {
	AgentId     string `json:"agent_id"`
	Status      string `json:"status"`
	Connections int    `json:"connections"`
}

// OnlineAgentsResponse maps online agent ids to their status
type OnlineAgentsResponse struct {
	Agents map[string]string `json:"agents"`
}

// ListOnline handles online agent listing
func (h *AgentHandler) ListOnline(ctx context.Context, c *app.RequestContext) {
	response.Success(ctx, c, &OnlineAgentsResponse{Agents: h.coord.OnlineAgents()})
}

// GetStatus handles agent presence lookup
func (h *AgentHandler) GetStatus(ctx context.Context, c *app.RequestContext) {
	agentId := c.Query("agent_id")
	if role, err := identity.RoleOf(agentId); err != nil || role != identity.RoleAgent {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	status, conns := h.coord.AgentStatus(agentId)
	response.Success(ctx, c, &AgentStatusResponse{
		AgentId:     agentId,
		Status:      status,
		Connections: conns,
	})
}
