package event

import "github.com/mbeoliero/deskline/internal/entity"

// Outbound event names
const (
	Authenticated           = "authenticated"
	JoinedConversation      = "joined-conversation"
	LeftConversation        = "left-conversation"
	NewMessage              = "new-message"
	MessageEdited           = "message-edited"
	MessageDeleted          = "message-deleted"
	MessagesRead            = "messages-read"
	UserTyping              = "user-typing"
	UserStoppedTyping       = "user-stopped-typing"
	UserJoined              = "user-joined"
	UserLeft                = "user-left"
	ConversationTransferred = "conversation-transferred"
	ConversationClosed      = "conversation-closed"
	ConversationRated       = "conversation-rated"
	AgentStatusChanged      = "agent-status-changed"
	NewConversationAssigned = "new-conversation-assigned"
	Ack                     = "ack"
	Error                   = "error"
)

// Event is the envelope pushed to a connection
type Event struct {
	Type  string `json:"event"`
	ReqId string `json:"req_id,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// New creates an event without a request id
func New(typ string, data any) *Event {
	return &Event{Type: typ, Data: data}
}

// Reply creates an event answering the request reqId
func Reply(typ, reqId string, data any) *Event {
	return &Event{Type: typ, ReqId: reqId, Data: data}
}

// Conn is a live connection that can receive events.
// Push must not block on network I/O; implementations enqueue and return.
type Conn interface {
	ConnId() string
	Push(evt *Event) error
}

// AuthenticatedData is sent once a connection binds to a participant
type AuthenticatedData struct {
	ParticipantId string `json:"participant_id"`
	Role          string `json:"role"`
	ConnId        string `json:"conn_id"`
}

// JoinedData answers join-conversation
type JoinedData struct {
	Conversation *entity.Conversation `json:"conversation"`
}

// ParticipantData is carried by user-joined, user-left and typing events
type ParticipantData struct {
	ConversationId string `json:"conversation_id"`
	ParticipantId  string `json:"participant_id"`
	Role           string `json:"role"`
}

// MessagesReadData is carried by messages-read
type MessagesReadData struct {
	ConversationId string   `json:"conversation_id"`
	MessageIds     []string `json:"message_ids"`
	ReadBy         string   `json:"read_by"`
	ReadAt         int64    `json:"read_at"`
}

// TransferredData is carried by conversation-transferred and new-conversation-assigned
type TransferredData struct {
	Conversation *entity.Conversation `json:"conversation"`
	FromAgent    string               `json:"from_agent"`
	ToAgent      string               `json:"to_agent"`
	Reason       string               `json:"reason,omitempty"`
	Message      *entity.MessageInfo  `json:"message,omitempty"`
}

// ClosedData is carried by conversation-closed
type ClosedData struct {
	Conversation *entity.Conversation `json:"conversation"`
	ClosedBy     string               `json:"closed_by"`
	Message      *entity.MessageInfo  `json:"message,omitempty"`
}

// RatedData is carried by conversation-rated
type RatedData struct {
	ConversationId string         `json:"conversation_id"`
	Rating         *entity.Rating `json:"rating"`
}

// AgentStatusData is carried by agent-status-changed
type AgentStatusData struct {
	AgentId  string `json:"agent_id"`
	Status   string `json:"status"`
	Previous string `json:"previous"`
}

// ErrorData is carried by error
type ErrorData struct {
	Code    int    `json:"code"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
