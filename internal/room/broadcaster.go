package room

import (
	"sort"
	"sync"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/deskline/internal/event"
	"github.com/mbeoliero/deskline/internal/metrics"
)

// Broadcaster tracks which connections are subscribed to each conversation
// and fans events out to them. Delivery within one room is serialized, so
// callers that broadcast in commit order get the same order on every member.
type Broadcaster struct {
	mu          sync.RWMutex
	rooms       map[string]*room               // conversationId -> room
	memberships map[string]map[string]struct{} // connId -> conversationIds
}

type room struct {
	mu      sync.Mutex
	members []event.Conn
}

// NewBroadcaster creates an empty Broadcaster
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		rooms:       make(map[string]*room),
		memberships: make(map[string]map[string]struct{}),
	}
}

// Subscribe adds conn to the room. Returns false if it was already a member.
func (b *Broadcaster) Subscribe(conversationId string, conn event.Conn) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	connId := conn.ConnId()
	if _, ok := b.memberships[connId][conversationId]; ok {
		return false
	}

	r, ok := b.rooms[conversationId]
	if !ok {
		r = &room{}
		b.rooms[conversationId] = r
	}
	r.mu.Lock()
	r.members = append(r.members, conn)
	r.mu.Unlock()

	if b.memberships[connId] == nil {
		b.memberships[connId] = make(map[string]struct{})
	}
	b.memberships[connId][conversationId] = struct{}{}
	return true
}

// Unsubscribe removes conn from the room. Unknown rooms or connections are a no-op.
func (b *Broadcaster) Unsubscribe(conversationId string, conn event.Conn) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.unsubscribeLocked(conversationId, conn.ConnId())
}

func (b *Broadcaster) unsubscribeLocked(conversationId, connId string) bool {
	rooms, ok := b.memberships[connId]
	if !ok {
		return false
	}
	if _, ok := rooms[conversationId]; !ok {
		return false
	}
	delete(rooms, conversationId)
	if len(rooms) == 0 {
		delete(b.memberships, connId)
	}

	r, ok := b.rooms[conversationId]
	if !ok {
		return true
	}
	r.mu.Lock()
	members := make([]event.Conn, 0, len(r.members))
	for _, c := range r.members {
		if c.ConnId() != connId {
			members = append(members, c)
		}
	}
	r.members = members
	empty := len(members) == 0
	r.mu.Unlock()

	if empty {
		delete(b.rooms, conversationId)
	}
	return true
}

// LeaveAll removes conn from every room it joined and returns those conversation ids
func (b *Broadcaster) LeaveAll(conn event.Conn) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	connId := conn.ConnId()
	left := make([]string, 0, len(b.memberships[connId]))
	for conversationId := range b.memberships[connId] {
		left = append(left, conversationId)
	}
	for _, conversationId := range left {
		b.unsubscribeLocked(conversationId, connId)
	}
	sort.Strings(left)
	return left
}

// Broadcast pushes evt to every member of the room except exclude.
// Push failures are logged and swallowed. Returns the number of successful deliveries.
func (b *Broadcaster) Broadcast(conversationId string, evt *event.Event, exclude event.Conn) int {
	b.mu.RLock()
	r, ok := b.rooms[conversationId]
	b.mu.RUnlock()
	if !ok {
		return 0
	}

	excludeId := ""
	if exclude != nil {
		excludeId = exclude.ConnId()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delivered := 0
	for _, c := range r.members {
		if excludeId != "" && c.ConnId() == excludeId {
			continue
		}
		if push(c, evt) {
			delivered++
		}
	}
	return delivered
}

// DirectDeliver pushes evt to conns regardless of room membership
func (b *Broadcaster) DirectDeliver(conns []event.Conn, evt *event.Event) int {
	delivered := 0
	for _, c := range conns {
		if push(c, evt) {
			delivered++
		}
	}
	return delivered
}

// IsSubscribed reports whether conn is a member of the room
func (b *Broadcaster) IsSubscribed(conversationId string, conn event.Conn) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.memberships[conn.ConnId()][conversationId]
	return ok
}

// RoomsOf returns the conversation ids conn is subscribed to
func (b *Broadcaster) RoomsOf(conn event.Conn) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rooms := make([]string, 0, len(b.memberships[conn.ConnId()]))
	for conversationId := range b.memberships[conn.ConnId()] {
		rooms = append(rooms, conversationId)
	}
	sort.Strings(rooms)
	return rooms
}

// Members returns a snapshot of the room's connections
func (b *Broadcaster) Members(conversationId string) []event.Conn {
	b.mu.RLock()
	r, ok := b.rooms[conversationId]
	b.mu.RUnlock()
	if !ok {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	members := make([]event.Conn, len(r.members))
	copy(members, r.members)
	return members
}

// RoomCount returns the number of non-empty rooms
func (b *Broadcaster) RoomCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rooms)
}

func push(c event.Conn, evt *event.Event) bool {
	if err := c.Push(evt); err != nil {
		metrics.DeliveryFailures.WithLabelValues(evt.Type).Inc()
		log.Warn("push event failed: conn_id=%s, event=%s, error=%v", c.ConnId(), evt.Type, err)
		return false
	}
	return true
}
