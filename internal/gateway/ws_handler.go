package gateway

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/websocket"
	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/deskline/pkg/errcode"
)

// NewHertzUpgrader creates the upgrader for the hertz /ws route
func (s *WsServer) NewHertzUpgrader() *websocket.HertzUpgrader {
	allowedOrigins := s.cfg.Server.AllowedOrigins
	return &websocket.HertzUpgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(ctx *app.RequestContext) bool {
			return CheckOrigin(string(ctx.Request.Header.Peek("Origin")), allowedOrigins)
		},
	}
}

// HandleHertzConnection handles a WebSocket connection from Hertz using hertz-contrib/websocket
func (s *WsServer) HandleHertzConnection(ctx context.Context, c *app.RequestContext, upgrader *websocket.HertzUpgrader) {
	if s.overLimit() {
		c.String(consts.StatusServiceUnavailable, errcode.ErrConnOverLimit.Msg)
		return
	}

	err := upgrader.Upgrade(c, func(conn *websocket.Conn) {
		wsConn := NewHertzWebSocketClientConn(conn, s.connOpts)
		client := s.newClient(wsConn)
		s.registerClient(ctx, client)

		// The connection is released when this handler returns
		client.readLoop()
		wsConn.Wait()
	})

	if err != nil {
		log.CtxWarn(ctx, "websocket upgrade failed: %v", err)
		return
	}
}
