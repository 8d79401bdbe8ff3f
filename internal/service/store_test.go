package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/deskline/internal/entity"
	"github.com/mbeoliero/deskline/internal/event"
	"github.com/mbeoliero/deskline/internal/presence"
	"github.com/mbeoliero/deskline/internal/room"
	"github.com/mbeoliero/deskline/pkg/constant"
)

var errStoreDown = errors.New("store down")

// memStore is an in-memory Store. Every read and write copies, so callers
// never share state with the store.
type memStore struct {
	mu       sync.Mutex
	convs    map[string]*entity.Conversation
	msgs     map[string]*entity.Message
	order    map[string][]string // conversationId -> message ids in append order
	sites    map[string]*entity.Site
	fail     atomic.Bool
	appendCh chan struct{} // if set, AppendMessage blocks until it can receive
}

func newMemStore() *memStore {
	return &memStore{
		convs: make(map[string]*entity.Conversation),
		msgs:  make(map[string]*entity.Message),
		order: make(map[string][]string),
		sites: map[string]*entity.Site{
			"site-1": {Id: "site-1", Status: constant.SiteStatusActive},
			"site-2": {Id: "site-2", Status: constant.SiteStatusInactive},
		},
	}
}

func (s *memStore) CreateConversation(ctx context.Context, conv *entity.Conversation) error {
	if s.fail.Load() {
		return errStoreDown
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs[conv.Id] = conv.Clone()
	return nil
}

func (s *memStore) GetConversation(ctx context.Context, id string) (*entity.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.convs[id].Clone(), nil
}

func (s *memStore) SaveConversation(ctx context.Context, conv *entity.Conversation) error {
	if s.fail.Load() {
		return errStoreDown
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs[conv.Id] = conv.Clone()
	return nil
}

func (s *memStore) ListConversations(ctx context.Context, filter entity.ConversationFilter) ([]*entity.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entity.Conversation
	for _, conv := range s.convs {
		if filter.SiteId != "" && conv.SiteId != filter.SiteId {
			continue
		}
		if filter.Status != "" && conv.Status != filter.Status {
			continue
		}
		out = append(out, conv.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out, nil
}

func (s *memStore) AppendMessage(ctx context.Context, conv *entity.Conversation, msg *entity.Message) error {
	if s.appendCh != nil {
		select {
		case <-s.appendCh:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.fail.Load() {
		return errStoreDown
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.msgs[msg.Id]; dup {
		return fmt.Errorf("duplicate message id %s", msg.Id)
	}
	s.msgs[msg.Id] = msg.Clone()
	s.order[msg.ConversationId] = append(s.order[msg.ConversationId], msg.Id)
	s.convs[conv.Id] = conv.Clone()
	return nil
}

func (s *memStore) GetMessage(ctx context.Context, id string) (*entity.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.msgs[id].Clone(), nil
}

func (s *memStore) GetMessageByClientMsgId(ctx context.Context, conversationId, senderId, clientMsgId string) (*entity.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order[conversationId] {
		m := s.msgs[id]
		if m.SenderId == senderId && m.ClientMsgId == clientMsgId {
			return m.Clone(), nil
		}
	}
	return nil, nil
}

func (s *memStore) GetMessages(ctx context.Context, conversationId string, q entity.HistoryQuery) ([]*entity.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entity.Message
	ids := s.order[conversationId]
	for i := len(ids) - 1; i >= 0 && len(out) < q.Limit; i-- {
		m := s.msgs[ids[i]]
		if m.IsDeleted || (q.Before > 0 && m.Timestamp >= q.Before) || (q.BeforeSeq > 0 && m.Seq >= q.BeforeSeq) {
			continue
		}
		out = append(out, m.Clone())
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *memStore) UpdateMessage(ctx context.Context, msg *entity.Message) error {
	if s.fail.Load() {
		return errStoreDown
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs[msg.Id] = msg.Clone()
	return nil
}

func (s *memStore) MarkRead(ctx context.Context, conv *entity.Conversation, messageIds []string, readAt int64) ([]string, error) {
	if s.fail.Load() {
		return nil, errStoreDown
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[string]bool, len(messageIds))
	for _, id := range messageIds {
		want[id] = true
	}
	var read []string
	for _, id := range s.order[conv.Id] {
		m := s.msgs[id]
		if m.IsRead || m.SenderType != constant.RoleVisitor || (len(want) > 0 && !want[id]) {
			continue
		}
		m.IsRead = true
		m.ReadAt = readAt
		read = append(read, id)
	}
	s.convs[conv.Id] = conv.Clone()
	return read, nil
}

func (s *memStore) GetSite(ctx context.Context, id string) (*entity.Site, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	site, ok := s.sites[id]
	if !ok {
		return nil, nil
	}
	cp := *site
	return &cp, nil
}

func (s *memStore) messages(conversationId string) []*entity.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*entity.Message, 0, len(s.order[conversationId]))
	for _, id := range s.order[conversationId] {
		out = append(out, s.msgs[id].Clone())
	}
	return out
}

// recConn records every event pushed to it
type recConn struct {
	id     string
	mu     sync.Mutex
	events []*event.Event
}

func (c *recConn) ConnId() string { return c.id }

func (c *recConn) Push(evt *event.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *recConn) all() []*event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*event.Event(nil), c.events...)
}

func (c *recConn) ofType(typ string) []*event.Event {
	var out []*event.Event
	for _, e := range c.all() {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func (c *recConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

type seqIds struct{ n atomic.Int64 }

func (g *seqIds) NextID() (string, error) {
	return fmt.Sprintf("id-%d", g.n.Add(1)), nil
}

type recMirror struct {
	mu       sync.Mutex
	statuses map[string]string
}

func (m *recMirror) SetStatus(ctx context.Context, participantId, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[participantId] = status
	return nil
}

func (m *recMirror) get(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statuses[id]
}

type harness struct {
	coord    *Coordinator
	store    *memStore
	rooms    *room.Broadcaster
	registry *presence.Registry
	mirror   *recMirror
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := newMemStore()
	rooms := room.NewBroadcaster()
	registry := presence.NewRegistry(rooms)
	mirror := &recMirror{statuses: make(map[string]string)}
	coord := NewCoordinator(store, rooms, registry, &seqIds{}, Options{StoreTimeout: time.Second})
	coord.SetStatusMirror(mirror)
	return &harness{coord: coord, store: store, rooms: rooms, registry: registry, mirror: mirror}
}

// connect registers a new connection for participantId and returns the caller
func (h *harness) connect(t *testing.T, participantId, role, connId string) (*Participant, *recConn) {
	t.Helper()
	conn := &recConn{id: connId}
	_, err := h.coord.Connect(t.Context(), participantId, role, conn)
	require.NoError(t, err)
	return &Participant{Id: participantId, Role: role, Conn: conn}, conn
}

func (h *harness) createConversation(t *testing.T, visitor *Participant) *entity.Conversation {
	t.Helper()
	conv, err := h.coord.CreateConversation(t.Context(), visitor, &CreateConversationRequest{SiteId: "site-1"})
	require.NoError(t, err)
	return conv
}

func (h *harness) send(t *testing.T, p *Participant, conversationId, content string) *entity.Message {
	t.Helper()
	msg, err := h.coord.SendMessage(t.Context(), p, &SendMessageRequest{ConversationId: conversationId, Content: content})
	require.NoError(t, err)
	return msg
}

func (h *harness) conv(t *testing.T, id string) *entity.Conversation {
	t.Helper()
	conv, err := h.store.GetConversation(t.Context(), id)
	require.NoError(t, err)
	require.NotNil(t, conv)
	return conv
}
