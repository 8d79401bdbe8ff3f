package gateway

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mbeoliero/kit/log"
	"golang.org/x/time/rate"

	"github.com/mbeoliero/deskline/internal/config"
	"github.com/mbeoliero/deskline/internal/entity"
	"github.com/mbeoliero/deskline/internal/event"
	"github.com/mbeoliero/deskline/internal/service"
	"github.com/mbeoliero/deskline/pkg/errcode"
	"github.com/mbeoliero/deskline/pkg/identity"
	"github.com/mbeoliero/deskline/pkg/jwt"
)

// WsServer is the WebSocket server
type WsServer struct {
	upgrader      *websocket.Upgrader
	cfg           *config.Config
	coord         *service.Coordinator
	verifier      *jwt.Verifier
	connOpts      ConnOptions
	onlineConnNum atomic.Int64
	maxConnNum    int64
}

// NewWsServer creates a new WebSocket server
func NewWsServer(cfg *config.Config, coord *service.Coordinator, verifier *jwt.Verifier) *WsServer {
	server := &WsServer{
		cfg:        cfg,
		coord:      coord,
		verifier:   verifier,
		connOpts:   ConnOptionsFrom(cfg.WebSocket),
		maxConnNum: cfg.WebSocket.MaxConnNum,
	}
	server.upgrader = &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return CheckOrigin(r.Header.Get("Origin"), cfg.Server.AllowedOrigins)
		},
	}
	return server
}

// CheckOrigin validates the Origin header against allowed origins
func CheckOrigin(origin string, allowedOrigins []string) bool {
	// No origin header: same-origin request or non-browser client
	if origin == "" {
		return true
	}

	for _, allowed := range allowedOrigins {
		if allowed == "*" || strings.EqualFold(origin, allowed) {
			return true
		}
	}
	return false
}

func (s *WsServer) overLimit() bool {
	return s.maxConnNum > 0 && s.onlineConnNum.Load() >= s.maxConnNum
}

func (s *WsServer) newClient(conn ClientConn) *Client {
	limit := rate.Inf
	if s.cfg.WebSocket.CommandRate > 0 {
		limit = rate.Limit(s.cfg.WebSocket.CommandRate)
	}
	burst := s.cfg.WebSocket.CommandBurst
	if burst <= 0 {
		burst = 1
	}
	return NewClient(conn, uuid.New().String(), rate.NewLimiter(limit, burst), s)
}

// registerClient counts a new connection. Presence registration happens on authenticate.
func (s *WsServer) registerClient(ctx context.Context, client *Client) {
	s.onlineConnNum.Add(1)
	log.CtxDebug(ctx, "client connected: conn_id=%s, online_conns=%d", client.connId, s.onlineConnNum.Load())
}

// unregisterClient releases a closed connection and tells the coordinator if it was authenticated
func (s *WsServer) unregisterClient(client *Client) {
	s.onlineConnNum.Add(-1)
	if client.Participant() != nil {
		s.coord.Disconnect(context.Background(), client)
	}
	log.Debug("client disconnected: conn_id=%s, online_conns=%d", client.connId, s.onlineConnNum.Load())
}

// HandleConnection handles a new WebSocket connection over net/http
func (s *WsServer) HandleConnection(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	if s.overLimit() {
		http.Error(w, errcode.ErrConnOverLimit.Msg, http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.CtxWarn(ctx, "websocket upgrade failed: %v", err)
		return
	}

	client := s.newClient(NewWebSocketClientConn(conn, s.connOpts))
	s.registerClient(ctx, client)
	client.Start()
}

// GetOnlineConnCount returns online connection count
func (s *WsServer) GetOnlineConnCount() int64 {
	return s.onlineConnNum.Load()
}

// decodeData decodes a command payload. A missing payload leaves v zero.
func decodeData(data []byte, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	if err := Decode(data, v); err != nil {
		return errcode.ErrInvalidParam.Wrap(err)
	}
	return nil
}

// ========== Command Handlers ==========

// HandleAuthenticate binds the connection to the token's participant
func (s *WsServer) HandleAuthenticate(ctx context.Context, client *Client, req *WSRequest) (*event.Event, error) {
	if client.Participant() != nil {
		return nil, errcode.ErrAlreadyRegistered
	}

	var authReq AuthenticateReq
	if err := decodeData(req.Data, &authReq); err != nil {
		return nil, err
	}
	if !identity.RoleType(authReq.Role).Valid() {
		return nil, errcode.ErrInvalidParam
	}

	claims, err := s.verifier.Verify(authReq.Token, authReq.Role)
	if err != nil {
		log.CtxDebug(ctx, "token validation failed: conn_id=%s, role=%s, error=%v", client.connId, authReq.Role, err)
		return nil, err
	}

	if _, err := s.coord.Connect(ctx, claims.ParticipantId, claims.Role, client); err != nil {
		return nil, err
	}
	client.setParticipant(&service.Participant{Id: claims.ParticipantId, Role: claims.Role, Conn: client})

	return event.New(event.Authenticated, &event.AuthenticatedData{
		ParticipantId: claims.ParticipantId,
		Role:          claims.Role,
		ConnId:        client.connId,
	}), nil
}

// HandleJoin subscribes the connection to a conversation and makes it current
func (s *WsServer) HandleJoin(ctx context.Context, client *Client, req *WSRequest) (*event.Event, error) {
	var joinReq ConversationReq
	if err := decodeData(req.Data, &joinReq); err != nil {
		return nil, err
	}

	conv, err := s.coord.Join(ctx, client.Participant(), joinReq.ConversationId)
	if err != nil {
		return nil, err
	}
	client.setCurrent(conv.Id)

	return event.New(event.JoinedConversation, &event.JoinedData{Conversation: conv}), nil
}

// HandleLeave unsubscribes the connection from a conversation
func (s *WsServer) HandleLeave(ctx context.Context, client *Client, req *WSRequest) (*event.Event, error) {
	var leaveReq ConversationReq
	if err := decodeData(req.Data, &leaveReq); err != nil {
		return nil, err
	}

	conversationId := client.resolve(leaveReq.ConversationId)
	if err := s.coord.Leave(ctx, client.Participant(), conversationId); err != nil {
		return nil, err
	}
	client.clearCurrent(conversationId)

	return event.New(event.LeftConversation, &ConversationReq{ConversationId: conversationId}), nil
}

// HandleSendMessage appends a message to a conversation
func (s *WsServer) HandleSendMessage(ctx context.Context, client *Client, req *WSRequest) (*event.Event, error) {
	var sendReq SendMessageReq
	if err := decodeData(req.Data, &sendReq); err != nil {
		return nil, err
	}

	msg, err := s.coord.SendMessage(ctx, client.Participant(), &service.SendMessageRequest{
		ConversationId: client.resolve(sendReq.ConversationId),
		ClientMsgId:    sendReq.ClientMsgId,
		Content:        sendReq.Content,
		MsgType:        sendReq.MsgType,
		ReplyTo:        sendReq.ReplyTo,
		Attachment:     sendReq.Attachment,
	})
	if err != nil {
		return nil, err
	}

	return event.New(event.Ack, msg.ToMessageInfo()), nil
}

// HandleTyping relays start-typing and stop-typing
func (s *WsServer) HandleTyping(ctx context.Context, client *Client, req *WSRequest, typing bool) (*event.Event, error) {
	var typingReq ConversationReq
	if err := decodeData(req.Data, &typingReq); err != nil {
		return nil, err
	}

	conversationId := client.resolve(typingReq.ConversationId)
	if err := s.coord.Typing(ctx, client.Participant(), conversationId, typing); err != nil {
		return nil, err
	}
	return event.New(event.Ack, &ConversationReq{ConversationId: conversationId}), nil
}

// HandleMarkRead marks visitor messages read
func (s *WsServer) HandleMarkRead(ctx context.Context, client *Client, req *WSRequest) (*event.Event, error) {
	var readReq MarkReadReq
	if err := decodeData(req.Data, &readReq); err != nil {
		return nil, err
	}

	conversationId := client.resolve(readReq.ConversationId)
	ids, err := s.coord.MarkRead(ctx, client.Participant(), conversationId, readReq.MessageIds)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return event.New(event.Ack, &MarkReadResp{ConversationId: conversationId, MessageIds: ids}), nil
}

// HandleTransfer hands a conversation to another agent
func (s *WsServer) HandleTransfer(ctx context.Context, client *Client, req *WSRequest) (*event.Event, error) {
	var transferReq TransferReq
	if err := decodeData(req.Data, &transferReq); err != nil {
		return nil, err
	}

	conv, err := s.coord.Transfer(ctx, client.Participant(), client.resolve(transferReq.ConversationId), transferReq.ToAgentId, transferReq.Reason)
	if err != nil {
		return nil, err
	}
	return event.New(event.Ack, conv), nil
}

// HandleClose closes a conversation
func (s *WsServer) HandleClose(ctx context.Context, client *Client, req *WSRequest) (*event.Event, error) {
	var closeReq ConversationReq
	if err := decodeData(req.Data, &closeReq); err != nil {
		return nil, err
	}

	conv, err := s.coord.Close(ctx, client.Participant(), client.resolve(closeReq.ConversationId))
	if err != nil {
		return nil, err
	}
	return event.New(event.Ack, conv), nil
}

// HandleRate records the visitor's rating
func (s *WsServer) HandleRate(ctx context.Context, client *Client, req *WSRequest) (*event.Event, error) {
	var rateReq RateReq
	if err := decodeData(req.Data, &rateReq); err != nil {
		return nil, err
	}

	conv, err := s.coord.Rate(ctx, client.Participant(), client.resolve(rateReq.ConversationId), rateReq.Score, rateReq.Comment)
	if err != nil {
		return nil, err
	}
	return event.New(event.Ack, conv), nil
}

// HandleEditMessage edits a message
func (s *WsServer) HandleEditMessage(ctx context.Context, client *Client, req *WSRequest) (*event.Event, error) {
	var editReq EditMessageReq
	if err := decodeData(req.Data, &editReq); err != nil {
		return nil, err
	}

	msg, err := s.coord.EditMessage(ctx, client.Participant(), editReq.MessageId, editReq.Content)
	if err != nil {
		return nil, err
	}
	return event.New(event.Ack, msg.ToMessageInfo()), nil
}

// HandleDeleteMessage soft-deletes a message
func (s *WsServer) HandleDeleteMessage(ctx context.Context, client *Client, req *WSRequest) (*event.Event, error) {
	var deleteReq DeleteMessageReq
	if err := decodeData(req.Data, &deleteReq); err != nil {
		return nil, err
	}

	msg, err := s.coord.DeleteMessage(ctx, client.Participant(), deleteReq.MessageId)
	if err != nil {
		return nil, err
	}
	return event.New(event.Ack, msg.ToMessageInfo()), nil
}

// HandleSetStatus changes the agent's presence status
func (s *WsServer) HandleSetStatus(ctx context.Context, client *Client, req *WSRequest) (*event.Event, error) {
	var statusReq SetStatusReq
	if err := decodeData(req.Data, &statusReq); err != nil {
		return nil, err
	}

	if err := s.coord.SetStatus(ctx, client.Participant(), statusReq.Status); err != nil {
		return nil, err
	}
	return event.New(event.Ack, &StatusResp{Status: statusReq.Status}), nil
}

// HandleGetMessages pages conversation history
func (s *WsServer) HandleGetMessages(ctx context.Context, client *Client, req *WSRequest) (*event.Event, error) {
	var historyReq GetMessagesReq
	if err := decodeData(req.Data, &historyReq); err != nil {
		return nil, err
	}

	conversationId := client.resolve(historyReq.ConversationId)
	messages, err := s.coord.History(ctx, client.Participant(), conversationId, entity.HistoryQuery{
		Before:    historyReq.Before,
		BeforeSeq: historyReq.BeforeSeq,
		Limit:     historyReq.Limit,
	})
	if err != nil {
		return nil, err
	}
	return event.New(event.Ack, &MessagesResp{
		ConversationId: conversationId,
		Messages:       entity.ToMessageInfos(messages),
	}), nil
}
