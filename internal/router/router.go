package router

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/adaptor"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/cloudwego/hertz/pkg/route"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mbeoliero/deskline/internal/config"
	"github.com/mbeoliero/deskline/internal/gateway"
	"github.com/mbeoliero/deskline/internal/handler"
	"github.com/mbeoliero/deskline/internal/middleware"
	"github.com/mbeoliero/deskline/pkg/jwt"
)

// Handlers holds all HTTP handlers
type Handlers struct {
	Auth         *handler.AuthHandler
	Conversation *handler.ConversationHandler
	Message      *handler.MessageHandler
	Agent        *handler.AgentHandler
}

// HealthChecker reports whether the backing stores are reachable
type HealthChecker interface {
	CheckConnection(ctx context.Context) error
}

// SetupRouter sets up all routes
func SetupRouter(r route.IRouter, cfg *config.Config, handlers *Handlers, wsServer *gateway.WsServer, verifier *jwt.Verifier, health HealthChecker) {
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	// Preflight requests are answered by the CORS middleware
	r.OPTIONS("/*path", func(ctx context.Context, c *app.RequestContext) {
		c.Status(consts.StatusNoContent)
	})

	r.GET("/health", func(ctx context.Context, c *app.RequestContext) {
		if health != nil {
			if err := health.CheckConnection(ctx); err != nil {
				c.JSON(consts.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		c.JSON(consts.StatusOK, map[string]string{"status": "ok"})
	})

	r.GET("/metrics", adaptor.HertzHandler(promhttp.Handler()))

	// Auth routes (no auth required)
	authGroup := r.Group("/auth")
	{
		authGroup.POST("/visitor", handlers.Auth.IssueVisitor)
	}

	auth := middleware.JWTAuth(verifier)

	convGroup := r.Group("/conversation", auth)
	{
		convGroup.POST("/create", handlers.Conversation.CreateConversation)
		convGroup.GET("/info", handlers.Conversation.GetConversation)
		convGroup.GET("/list", handlers.Conversation.ListConversations)
		convGroup.GET("/messages", handlers.Conversation.GetMessages)
		convGroup.POST("/rate", handlers.Conversation.RateConversation)
	}

	msgGroup := r.Group("/message", auth)
	{
		msgGroup.PUT("/edit", handlers.Message.EditMessage)
		msgGroup.POST("/delete", handlers.Message.DeleteMessage)
	}

	agentGroup := r.Group("/agent", auth)
	{
		agentGroup.GET("/status", handlers.Agent.GetStatus)
		agentGroup.GET("/online", handlers.Agent.ListOnline)
	}

	// WebSocket route; authentication happens in-band with the authenticate command
	upgrader := wsServer.NewHertzUpgrader()
	r.GET("/ws", func(ctx context.Context, c *app.RequestContext) {
		wsServer.HandleHertzConnection(ctx, c, upgrader)
	})
}
