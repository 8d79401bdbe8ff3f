package presence

import (
	"sort"
	"sync"
	"time"

	"github.com/mbeoliero/deskline/internal/event"
	"github.com/mbeoliero/deskline/internal/metrics"
	"github.com/mbeoliero/deskline/pkg/constant"
	"github.com/mbeoliero/deskline/pkg/errcode"
)

// RoomIndex is the part of the room broadcaster the registry needs on unregister
type RoomIndex interface {
	LeaveAll(conn event.Conn) []string
}

// Handle is the registration of one live connection
type Handle struct {
	ParticipantId string
	Role          string
	Conn          event.Conn
	ConnectedAt   time.Time
}

// Departure describes what an unregister removed
type Departure struct {
	*Handle
	// Rooms the connection was subscribed to
	Rooms []string
	// LastConn is true when the participant has no connections left
	LastConn bool
	// PreviousStatus is the status before going offline, set only when LastConn
	PreviousStatus string
}

// Registry maps participants to their live connections (multi-tab aware)
type Registry struct {
	mu           sync.RWMutex
	participants map[string][]*Handle // participantId -> handles
	conns        map[string]*Handle   // connId -> handle
	statuses     map[string]string    // participantId -> status
	rooms        RoomIndex
}

// NewRegistry creates a Registry. rooms may be nil.
func NewRegistry(rooms RoomIndex) *Registry {
	return &Registry{
		participants: make(map[string][]*Handle),
		conns:        make(map[string]*Handle),
		statuses:     make(map[string]string),
		rooms:        rooms,
	}
}

// Register binds conn to a participant. Registering the same connection twice fails.
func (r *Registry) Register(participantId, role string, conn event.Conn) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[conn.ConnId()]; exists {
		return nil, errcode.ErrAlreadyRegistered
	}

	h := &Handle{
		ParticipantId: participantId,
		Role:          role,
		Conn:          conn,
		ConnectedAt:   time.Now(),
	}
	r.conns[conn.ConnId()] = h
	r.participants[participantId] = append(r.participants[participantId], h)
	r.updateGaugesLocked()
	return h, nil
}

// Unregister removes conn and all of its room subscriptions. Unknown connections return nil.
func (r *Registry) Unregister(conn event.Conn) *Departure {
	r.mu.Lock()
	h, ok := r.conns[conn.ConnId()]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	delete(r.conns, conn.ConnId())

	remaining := make([]*Handle, 0, len(r.participants[h.ParticipantId]))
	for _, other := range r.participants[h.ParticipantId] {
		if other.Conn.ConnId() != conn.ConnId() {
			remaining = append(remaining, other)
		}
	}

	dep := &Departure{Handle: h}
	if len(remaining) == 0 {
		delete(r.participants, h.ParticipantId)
		dep.LastConn = true
		dep.PreviousStatus = r.statusLocked(h.ParticipantId)
		delete(r.statuses, h.ParticipantId)
	} else {
		r.participants[h.ParticipantId] = remaining
	}
	r.updateGaugesLocked()
	r.mu.Unlock()

	if r.rooms != nil {
		dep.Rooms = r.rooms.LeaveAll(conn)
	}
	return dep
}

// Lookup returns the live connections of a participant
func (r *Registry) Lookup(participantId string) []event.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handles := r.participants[participantId]
	conns := make([]event.Conn, 0, len(handles))
	for _, h := range handles {
		conns = append(conns, h.Conn)
	}
	return conns
}

// SetStatus updates the participant's presence status and returns the previous one
func (r *Registry) SetStatus(participantId, status string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.statusLocked(participantId)
	if status == constant.StatusOffline {
		delete(r.statuses, participantId)
	} else {
		r.statuses[participantId] = status
	}
	return prev
}

// Status returns the participant's presence status
func (r *Registry) Status(participantId string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.statusLocked(participantId)
}

func (r *Registry) statusLocked(participantId string) string {
	if s, ok := r.statuses[participantId]; ok {
		return s
	}
	return constant.StatusOffline
}

// Online returns the ids of connected participants with the given role, or all roles if empty
func (r *Registry) Online(role string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.participants))
	for id, handles := range r.participants {
		if role == "" || (len(handles) > 0 && handles[0].Role == role) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// AllConns returns every registered connection
func (r *Registry) AllConns() []event.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]event.Conn, 0, len(r.conns))
	for _, h := range r.conns {
		conns = append(conns, h.Conn)
	}
	return conns
}

// ConnCount returns the total number of connections
func (r *Registry) ConnCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// ParticipantCount returns the number of participants with at least one connection
func (r *Registry) ParticipantCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants)
}

func (r *Registry) updateGaugesLocked() {
	metrics.OnlineConns.Set(float64(len(r.conns)))
	metrics.OnlineParticipants.Set(float64(len(r.participants)))
}
