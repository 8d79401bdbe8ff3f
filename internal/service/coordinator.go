package service

import (
	"context"
	"errors"
	"time"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/deskline/internal/entity"
	"github.com/mbeoliero/deskline/internal/event"
	"github.com/mbeoliero/deskline/internal/presence"
	"github.com/mbeoliero/deskline/pkg/constant"
	"github.com/mbeoliero/deskline/pkg/errcode"
	"github.com/mbeoliero/deskline/pkg/idgen"
	"github.com/mbeoliero/deskline/pkg/keylock"
)

// Store is the durable conversation/message store.
// Getters return (nil, nil) when the record does not exist.
type Store interface {
	CreateConversation(ctx context.Context, conv *entity.Conversation) error
	GetConversation(ctx context.Context, id string) (*entity.Conversation, error)
	SaveConversation(ctx context.Context, conv *entity.Conversation) error
	ListConversations(ctx context.Context, filter entity.ConversationFilter) ([]*entity.Conversation, error)
	// AppendMessage inserts msg and saves conv in one transaction
	AppendMessage(ctx context.Context, conv *entity.Conversation, msg *entity.Message) error
	GetMessage(ctx context.Context, id string) (*entity.Message, error)
	GetMessageByClientMsgId(ctx context.Context, conversationId, senderId, clientMsgId string) (*entity.Message, error)
	// GetMessages returns non-deleted messages older than the query's cursors, oldest first
	GetMessages(ctx context.Context, conversationId string, q entity.HistoryQuery) ([]*entity.Message, error)
	UpdateMessage(ctx context.Context, msg *entity.Message) error
	// MarkRead marks unread visitor messages (all, or only messageIds) as read and saves conv
	// in one transaction. Returns the ids that changed.
	MarkRead(ctx context.Context, conv *entity.Conversation, messageIds []string, readAt int64) ([]string, error)
	GetSite(ctx context.Context, id string) (*entity.Site, error)
}

// Broadcaster fans events out to the connections subscribed to a conversation
type Broadcaster interface {
	Subscribe(conversationId string, conn event.Conn) bool
	Unsubscribe(conversationId string, conn event.Conn) bool
	Broadcast(conversationId string, evt *event.Event, exclude event.Conn) int
	DirectDeliver(conns []event.Conn, evt *event.Event) int
	IsSubscribed(conversationId string, conn event.Conn) bool
}

// Presence tracks live connections per participant
type Presence interface {
	Register(participantId, role string, conn event.Conn) (*presence.Handle, error)
	Unregister(conn event.Conn) *presence.Departure
	Lookup(participantId string) []event.Conn
	SetStatus(participantId, status string) string
	Status(participantId string) string
	AllConns() []event.Conn
	Online(role string) []string
}

// StatusMirror publishes presence status outside the process
type StatusMirror interface {
	SetStatus(ctx context.Context, participantId, status string) error
}

// Participant is the authenticated caller of an operation.
// Conn is nil for callers that do not hold a live connection.
type Participant struct {
	Id   string
	Role string
	Conn event.Conn
}

func (p *Participant) isAgent() bool   { return p.Role == constant.RoleAgent }
func (p *Participant) isVisitor() bool { return p.Role == constant.RoleVisitor }

// Options tunes the coordinator
type Options struct {
	StoreTimeout  time.Duration
	PreviewLength int
	HistoryLimit  int
}

func (o *Options) withDefaults() {
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = 5 * time.Second
	}
	if o.PreviewLength <= 0 {
		o.PreviewLength = constant.DefaultPreviewLen
	}
	if o.HistoryLimit <= 0 || o.HistoryLimit > constant.MaxHistoryLimit {
		o.HistoryLimit = constant.MaxHistoryLimit
	}
}

// Coordinator owns the conversation state machine. Every state change of a
// conversation runs inside that conversation's exclusive section, is committed
// to the store, and only then broadcast to the room.
type Coordinator struct {
	store    Store
	rooms    Broadcaster
	presence Presence
	authz    Authorizer
	mirror   StatusMirror
	ids      idgen.IDGenerator
	locks    *keylock.KeyLock
	opts     Options
	now      func() int64
}

// NewCoordinator creates a Coordinator
func NewCoordinator(store Store, rooms Broadcaster, reg Presence, ids idgen.IDGenerator, opts Options) *Coordinator {
	opts.withDefaults()
	return &Coordinator{
		store:    store,
		rooms:    rooms,
		presence: reg,
		authz:    NewSiteAuthorizer(nil),
		ids:      ids,
		locks:    keylock.New(),
		opts:     opts,
		now:      entity.NowUnixMilli,
	}
}

// SetAuthorizer replaces the capability check
func (c *Coordinator) SetAuthorizer(authz Authorizer) {
	c.authz = authz
}

// SetStatusMirror sets where presence status changes are published
func (c *Coordinator) SetStatusMirror(mirror StatusMirror) {
	c.mirror = mirror
}

// storeCtx bounds one store call. It is detached from the caller so that work
// already started completes even if the initiating connection goes away.
func (c *Coordinator) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), c.opts.StoreTimeout)
}

// storeErr maps a raw store failure to ErrStoreUnavailable; business errors pass through
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	var e *errcode.Error
	if errors.As(err, &e) {
		return err
	}
	return errcode.ErrStoreUnavailable.Wrap(err)
}

func (c *Coordinator) loadConversation(ctx context.Context, id string) (*entity.Conversation, error) {
	if id == "" {
		return nil, errcode.ErrInvalidParam
	}
	sctx, cancel := c.storeCtx(ctx)
	defer cancel()

	conv, err := c.store.GetConversation(sctx, id)
	if err != nil {
		log.CtxError(ctx, "get conversation failed: conversation_id=%s, error=%v", id, err)
		return nil, storeErr(err)
	}
	if conv == nil {
		return nil, errcode.ErrConversationNotFound
	}
	return conv, nil
}

func (c *Coordinator) loadMessage(ctx context.Context, id string) (*entity.Message, error) {
	if id == "" {
		return nil, errcode.ErrInvalidParam
	}
	sctx, cancel := c.storeCtx(ctx)
	defer cancel()

	msg, err := c.store.GetMessage(sctx, id)
	if err != nil {
		log.CtxError(ctx, "get message failed: message_id=%s, error=%v", id, err)
		return nil, storeErr(err)
	}
	if msg == nil {
		return nil, errcode.ErrMessageNotFound
	}
	return msg, nil
}

func (c *Coordinator) authorize(ctx context.Context, p *Participant, conv *entity.Conversation) error {
	if p == nil || p.Id == "" {
		return errcode.ErrUnauthenticated
	}
	if !c.authz.CanActOnConversation(ctx, p.Id, conv) {
		return errcode.ErrNoPermission
	}
	return nil
}

func requireAgent(p *Participant) error {
	if p == nil || p.Id == "" {
		return errcode.ErrUnauthenticated
	}
	if !p.isAgent() {
		return errcode.ErrAgentOnly
	}
	return nil
}

func requireVisitor(p *Participant) error {
	if p == nil || p.Id == "" {
		return errcode.ErrUnauthenticated
	}
	if !p.isVisitor() {
		return errcode.ErrVisitorOnly
	}
	return nil
}

func requireConn(p *Participant) error {
	if p == nil || p.Id == "" {
		return errcode.ErrUnauthenticated
	}
	if p.Conn == nil {
		return errcode.ErrInvalidParam
	}
	return nil
}

// Connect registers an authenticated connection. An agent's first connection
// flips them online and announces it.
func (c *Coordinator) Connect(ctx context.Context, participantId, role string, conn event.Conn) (*presence.Handle, error) {
	if participantId == "" {
		return nil, errcode.ErrUnauthenticated
	}
	h, err := c.presence.Register(participantId, role, conn)
	if err != nil {
		return nil, err
	}

	if role == constant.RoleAgent && c.presence.Status(participantId) == constant.StatusOffline {
		c.changeStatus(ctx, participantId, constant.StatusOnline)
	}

	log.CtxInfo(ctx, "participant connected: participant_id=%s, role=%s, conn_id=%s", participantId, role, conn.ConnId())
	return h, nil
}

// Disconnect unregisters a connection, tells every room it was in, and takes
// the agent offline once their last connection is gone. Safe to call twice.
func (c *Coordinator) Disconnect(ctx context.Context, conn event.Conn) {
	dep := c.presence.Unregister(conn)
	if dep == nil {
		return
	}

	for _, conversationId := range dep.Rooms {
		c.rooms.Broadcast(conversationId, event.New(event.UserLeft, &event.ParticipantData{
			ConversationId: conversationId,
			ParticipantId:  dep.ParticipantId,
			Role:           dep.Role,
		}), nil)
	}

	if dep.Role == constant.RoleAgent && dep.LastConn && dep.PreviousStatus != constant.StatusOffline {
		c.announceStatus(ctx, dep.ParticipantId, constant.StatusOffline, dep.PreviousStatus)
	}

	log.CtxInfo(ctx, "participant disconnected: participant_id=%s, conn_id=%s, rooms=%d, last_conn=%v",
		dep.ParticipantId, conn.ConnId(), len(dep.Rooms), dep.LastConn)
}

// SetStatus updates an agent's presence status. Unchanged status is not broadcast.
func (c *Coordinator) SetStatus(ctx context.Context, p *Participant, status string) error {
	if err := requireAgent(p); err != nil {
		return err
	}
	switch status {
	case constant.StatusOnline, constant.StatusBusy, constant.StatusAway:
	default:
		return errcode.ErrInvalidStatus
	}
	c.changeStatus(ctx, p.Id, status)
	return nil
}

func (c *Coordinator) changeStatus(ctx context.Context, participantId, status string) {
	prev := c.presence.SetStatus(participantId, status)
	if prev == status {
		return
	}
	c.announceStatus(ctx, participantId, status, prev)
}

func (c *Coordinator) announceStatus(ctx context.Context, agentId, status, prev string) {
	c.rooms.DirectDeliver(c.presence.AllConns(), event.New(event.AgentStatusChanged, &event.AgentStatusData{
		AgentId:  agentId,
		Status:   status,
		Previous: prev,
	}))

	if c.mirror != nil {
		sctx, cancel := c.storeCtx(ctx)
		defer cancel()
		if err := c.mirror.SetStatus(sctx, agentId, status); err != nil {
			log.CtxWarn(ctx, "mirror presence status failed: agent_id=%s, status=%s, error=%v", agentId, status, err)
		}
	}
}

// AgentStatus returns an agent's presence status and number of live connections
func (c *Coordinator) AgentStatus(agentId string) (string, int) {
	return c.presence.Status(agentId), len(c.presence.Lookup(agentId))
}

// OnlineAgents lists agents with at least one live connection and their status
func (c *Coordinator) OnlineAgents() map[string]string {
	ids := c.presence.Online(constant.RoleAgent)
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		out[id] = c.presence.Status(id)
	}
	return out
}

// Join subscribes the caller's connection to a conversation. An agent joining
// an unassigned open conversation claims it, activating it if it was waiting.
func (c *Coordinator) Join(ctx context.Context, p *Participant, conversationId string) (*entity.Conversation, error) {
	if err := requireConn(p); err != nil {
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

	if p.isAgent() && !conv.HasAgent() && !conv.IsClosed() {
		claimed := conv.Clone()
		claimed.AgentId = p.Id
		wasWaiting := claimed.Status == constant.ConvStatusWaiting
		if wasWaiting {
			if err := claimed.TransitionTo(constant.ConvStatusActive); err != nil {
				return nil, err
			}
		}
		if err := c.saveConversation(ctx, claimed); err != nil {
			return nil, err
		}
		if wasWaiting {
			countTransition(claimed.Status)
		}
		conv = claimed
		log.CtxInfo(ctx, "conversation claimed: conversation_id=%s, agent_id=%s", conv.Id, p.Id)
	}

	if c.rooms.Subscribe(conv.Id, p.Conn) {
		c.rooms.Broadcast(conv.Id, event.New(event.UserJoined, &event.ParticipantData{
			ConversationId: conv.Id,
			ParticipantId:  p.Id,
			Role:           p.Role,
		}), p.Conn)
	}
	return conv, nil
}

// Leave unsubscribes the caller's connection. Leaving a room not joined is a no-op.
func (c *Coordinator) Leave(ctx context.Context, p *Participant, conversationId string) error {
	if err := requireConn(p); err != nil {
		return err
	}
	if conversationId == "" {
		return errcode.ErrInvalidParam
	}
	if c.rooms.Unsubscribe(conversationId, p.Conn) {
		c.rooms.Broadcast(conversationId, event.New(event.UserLeft, &event.ParticipantData{
			ConversationId: conversationId,
			ParticipantId:  p.Id,
			Role:           p.Role,
		}), nil)
	}
	return nil
}

// Typing relays a typing signal to the rest of the room. Nothing is persisted.
func (c *Coordinator) Typing(ctx context.Context, p *Participant, conversationId string, typing bool) error {
	if err := requireConn(p); err != nil {
		return err
	}
	if conversationId == "" {
		return errcode.ErrInvalidParam
	}
	if !c.rooms.IsSubscribed(conversationId, p.Conn) {
		return errcode.ErrNotJoined
	}

	typ := event.UserStoppedTyping
	if typing {
		typ = event.UserTyping
	}
	c.rooms.Broadcast(conversationId, event.New(typ, &event.ParticipantData{
		ConversationId: conversationId,
		ParticipantId:  p.Id,
		Role:           p.Role,
	}), p.Conn)
	return nil
}

func (c *Coordinator) saveConversation(ctx context.Context, conv *entity.Conversation) error {
	sctx, cancel := c.storeCtx(ctx)
	defer cancel()

	if err := c.store.SaveConversation(sctx, conv); err != nil {
		log.CtxError(ctx, "save conversation failed: conversation_id=%s, error=%v", conv.Id, err)
		return storeErr(err)
	}
	return nil
}
