package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/deskline/internal/config"
	"github.com/mbeoliero/deskline/internal/gateway"
	"github.com/mbeoliero/deskline/internal/handler"
	"github.com/mbeoliero/deskline/internal/presence"
	"github.com/mbeoliero/deskline/internal/repository"
	"github.com/mbeoliero/deskline/internal/room"
	"github.com/mbeoliero/deskline/internal/router"
	"github.com/mbeoliero/deskline/internal/service"
	"github.com/mbeoliero/deskline/pkg/constant"
	"github.com/mbeoliero/deskline/pkg/idgen"
	"github.com/mbeoliero/deskline/pkg/jwt"
)

const defaultConfigPath = "config/config.yaml"

func main() {
	ctx := context.TODO()

	configPath := os.Getenv("DESKLINE_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		log.CtxError(ctx, "failed to load config: %v", err)
		panic(err)
	}

	log.CtxInfo(ctx, "config loaded: mode=%s, driver=%s", cfg.Server.Mode, cfg.Database.Driver)

	// Initialize Redis key prefix
	constant.InitRedisKeyPrefix(cfg.Redis.KeyPrefix)
	log.CtxInfo(ctx, "redis key prefix: %s", constant.GetRedisKeyPrefix())

	// Initialize repositories
	repos, err := repository.NewRepositories(cfg)
	if err != nil {
		log.CtxError(ctx, "failed to initialize repositories: %v", err)
		panic(err)
	}
	defer repos.Close()

	// Check database connection
	if err := repos.CheckConnection(ctx); err != nil {
		log.CtxError(ctx, "database connection check failed: %v", err)
		panic(err)
	}
	log.CtxInfo(ctx, "database connection established")

	// Sonyflake ids for conversations and messages
	ids, err := idgen.NewSonyflakeGenerator(cfg.Server.MachineId)
	if err != nil {
		log.CtxError(ctx, "failed to initialize id generator: %v", err)
		panic(err)
	}

	// Coordinator and its in-memory collaborators
	store := repository.NewStore(repos)
	rooms := room.NewBroadcaster()
	registry := presence.NewRegistry(rooms)
	coord := service.NewCoordinator(store, rooms, registry, ids, service.Options{
		StoreTimeout:  cfg.Coordinator.StoreTimeout,
		PreviewLength: cfg.Coordinator.PreviewLength,
		HistoryLimit:  cfg.Coordinator.HistoryLimit,
	})
	coord.SetAuthorizer(service.NewSiteAuthorizer(cfg.Authz.AgentSites))
	if cfg.Redis.Enabled {
		coord.SetStatusMirror(repos.Presence)
	}

	verifier := jwt.NewVerifier(cfg.JWT.Secret, jwt.ExternalOptions{
		Enabled:     cfg.ExternalJWT.Enabled,
		Secret:      cfg.ExternalJWT.Secret,
		DefaultRole: cfg.ExternalJWT.DefaultRole,
	})

	// Initialize WebSocket server
	wsServer := gateway.NewWsServer(cfg, coord, verifier)

	// Initialize handlers
	handlers := &router.Handlers{
		Auth:         handler.NewAuthHandler(store, cfg.JWT.Secret, cfg.JWT.VisitorExpireHours),
		Conversation: handler.NewConversationHandler(coord),
		Message:      handler.NewMessageHandler(coord),
		Agent:        handler.NewAgentHandler(coord),
	}

	// Create Hertz server
	h := server.Default(
		server.WithHostPorts(fmt.Sprintf(":%d", cfg.Server.HTTPPort)),
	)

	// Setup routes
	router.SetupRouter(h, cfg, handlers, wsServer, verifier, repos)

	log.CtxInfo(ctx, "server starting on port %d", cfg.Server.HTTPPort)

	// Start server in goroutine
	go func() {
		h.Spin()
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.CtxInfo(ctx, "shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := h.Shutdown(shutdownCtx); err != nil {
		log.CtxError(ctx, "server shutdown error: %v", err)
	}

	log.CtxInfo(ctx, "server stopped")
}
