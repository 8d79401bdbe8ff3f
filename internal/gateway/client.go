package gateway

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/mbeoliero/kit/log"
	"golang.org/x/time/rate"

	"github.com/mbeoliero/deskline/internal/event"
	"github.com/mbeoliero/deskline/internal/metrics"
	"github.com/mbeoliero/deskline/internal/service"
	"github.com/mbeoliero/deskline/pkg/errcode"
)

// Client is one live websocket connection. It starts unauthenticated and
// binds to a participant on a successful authenticate command.
type Client struct {
	mu          sync.Mutex
	conn        ClientConn
	connId      string
	server      *WsServer
	participant *service.Participant
	current     string // current conversation
	limiter     *rate.Limiter
	closed      atomic.Bool
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewClient creates a new client
func NewClient(conn ClientConn, connId string, limiter *rate.Limiter, server *WsServer) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		conn:    conn,
		connId:  connId,
		server:  server,
		limiter: limiter,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// ConnId returns the connection id
func (c *Client) ConnId() string {
	return c.connId
}

// Participant returns the authenticated participant, nil before authenticate
func (c *Client) Participant() *service.Participant {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.participant
}

func (c *Client) setParticipant(p *service.Participant) {
	c.mu.Lock()
	c.participant = p
	c.mu.Unlock()
}

// CurrentConversation returns the conversation last joined on this connection
func (c *Client) CurrentConversation() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Client) setCurrent(conversationId string) {
	c.mu.Lock()
	c.current = conversationId
	c.mu.Unlock()
}

func (c *Client) clearCurrent(conversationId string) {
	c.mu.Lock()
	if c.current == conversationId {
		c.current = ""
	}
	c.mu.Unlock()
}

// resolve falls back to the current conversation when conversationId is empty
func (c *Client) resolve(conversationId string) string {
	if conversationId != "" {
		return conversationId
	}
	return c.CurrentConversation()
}

// Start starts the client message handling
func (c *Client) Start() {
	go c.readLoop()
}

// readLoop continuously reads messages from the connection
func (c *Client) readLoop() {
	defer func() {
		if r := recover(); r != nil {
			log.CtxError(c.ctx, "client read loop panic: conn_id=%s, error=%v", c.connId, r)
		}
		c.close()
	}()

	for {
		message, err := c.conn.ReadMessage()
		if err != nil {
			log.CtxDebug(c.ctx, "read message error: conn_id=%s, error=%v", c.connId, err)
			return
		}

		if c.closed.Load() {
			return
		}

		if err := c.handleMessage(message); err != nil {
			log.CtxWarn(c.ctx, "reply failed, closing: conn_id=%s, error=%v", c.connId, err)
			return
		}
	}
}

// handleMessage handles a single incoming command. Command failures are
// replied as error events; only a failed reply is returned.
func (c *Client) handleMessage(message []byte) error {
	var req WSRequest
	if err := Decode(message, &req); err != nil || req.Event == "" {
		return c.replyError(&req, errcode.ErrInvalidProtocol)
	}

	if !c.limiter.Allow() {
		metrics.CommandResult(req.Event, errcode.ErrTooManyRequests)
		return c.replyError(&req, errcode.ErrTooManyRequests)
	}

	if req.Event != CmdAuthenticate && c.Participant() == nil {
		metrics.CommandResult(req.Event, errcode.ErrUnauthenticated)
		return c.replyError(&req, errcode.ErrUnauthenticated)
	}

	log.CtxDebug(c.ctx, "received command: event=%s, req_id=%s, conn_id=%s", req.Event, req.ReqId, c.connId)

	var (
		evt *event.Event
		err error
	)
	switch req.Event {
	case CmdAuthenticate:
		evt, err = c.server.HandleAuthenticate(c.ctx, c, &req)
	case CmdJoinConversation:
		evt, err = c.server.HandleJoin(c.ctx, c, &req)
	case CmdLeaveConversation:
		evt, err = c.server.HandleLeave(c.ctx, c, &req)
	case CmdSendMessage:
		evt, err = c.server.HandleSendMessage(c.ctx, c, &req)
	case CmdStartTyping:
		evt, err = c.server.HandleTyping(c.ctx, c, &req, true)
	case CmdStopTyping:
		evt, err = c.server.HandleTyping(c.ctx, c, &req, false)
	case CmdMarkRead:
		evt, err = c.server.HandleMarkRead(c.ctx, c, &req)
	case CmdTransferConversation:
		evt, err = c.server.HandleTransfer(c.ctx, c, &req)
	case CmdCloseConversation:
		evt, err = c.server.HandleClose(c.ctx, c, &req)
	case CmdRateConversation:
		evt, err = c.server.HandleRate(c.ctx, c, &req)
	case CmdEditMessage:
		evt, err = c.server.HandleEditMessage(c.ctx, c, &req)
	case CmdDeleteMessage:
		evt, err = c.server.HandleDeleteMessage(c.ctx, c, &req)
	case CmdSetStatus:
		evt, err = c.server.HandleSetStatus(c.ctx, c, &req)
	case CmdGetMessages:
		evt, err = c.server.HandleGetMessages(c.ctx, c, &req)
	default:
		err = errcode.ErrInvalidProtocol
	}

	metrics.CommandResult(req.Event, err)
	if err != nil {
		log.CtxDebug(c.ctx, "command failed: event=%s, conn_id=%s, error=%v", req.Event, c.connId, err)
		return c.replyError(&req, err)
	}

	evt.ReqId = req.ReqId
	return c.Push(evt)
}

// replyError sends an error event answering req
func (c *Client) replyError(req *WSRequest, err error) error {
	e := errcode.From(err)
	return c.Push(event.Reply(event.Error, req.ReqId, &event.ErrorData{
		Code:    e.Code,
		Kind:    e.KindName(),
		Message: e.Msg,
	}))
}

// Push encodes evt and queues it. It never blocks on the network.
// A full write queue closes the connection: the peer has a gap in its event
// stream and must reconnect and page history.
func (c *Client) Push(evt *event.Event) error {
	if c.closed.Load() {
		return ErrConnClosed
	}

	data, err := Encode(evt)
	if err != nil {
		return err
	}
	if err := c.conn.WriteMessage(data); err != nil {
		if errors.Is(err, ErrWriteChannelFull) {
			log.CtxWarn(c.ctx, "write queue full, closing slow consumer: conn_id=%s, event=%s", c.connId, evt.Type)
			c.Close()
		}
		return err
	}
	return nil
}

// Close closes the client connection
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.cancel()
	return c.conn.Close()
}

// close handles cleanup when connection is closed
func (c *Client) close() {
	c.Close()
	c.server.unregisterClient(c)
}

// IsClosed returns whether the client is closed
func (c *Client) IsClosed() bool {
	return c.closed.Load()
}
