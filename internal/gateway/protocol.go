package gateway

import (
	"encoding/json"

	"github.com/bytedance/sonic"

	"github.com/mbeoliero/deskline/internal/entity"
)

// WSRequest is one inbound command frame
type WSRequest struct {
	Event string          `json:"event"`            // Command name
	ReqId string          `json:"req_id,omitempty"` // Echoed on the reply
	Data  json.RawMessage `json:"data,omitempty"`   // Command payload
}

// AuthenticateReq binds the connection to a participant
type AuthenticateReq struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

// ConversationReq names a conversation. Empty falls back to the connection's current conversation.
type ConversationReq struct {
	ConversationId string `json:"conversation_id"`
}

// SendMessageReq represents send message request data
type SendMessageReq struct {
	ConversationId string             `json:"conversation_id"`
	ClientMsgId    string             `json:"client_msg_id,omitempty"`
	Content        string             `json:"content"`
	MsgType        string             `json:"msg_type,omitempty"`
	ReplyTo        string             `json:"reply_to,omitempty"`
	Attachment     *entity.Attachment `json:"attachment,omitempty"`
}

// MarkReadReq marks visitor messages read. No ids means all unread.
type MarkReadReq struct {
	ConversationId string   `json:"conversation_id"`
	MessageIds     []string `json:"message_ids,omitempty"`
}

// TransferReq hands a conversation to another agent
type TransferReq struct {
	ConversationId string `json:"conversation_id"`
	ToAgentId      string `json:"to_agent_id"`
	Reason         string `json:"reason,omitempty"`
}

// RateReq rates a conversation
type RateReq struct {
	ConversationId string `json:"conversation_id"`
	Score          int    `json:"score"`
	Comment        string `json:"comment,omitempty"`
}

// EditMessageReq replaces a message's content
type EditMessageReq struct {
	MessageId string `json:"message_id"`
	Content   string `json:"content"`
}

// DeleteMessageReq soft-deletes a message
type DeleteMessageReq struct {
	MessageId string `json:"message_id"`
}

// SetStatusReq changes an agent's presence status
type SetStatusReq struct {
	Status string `json:"status"`
}

// GetMessagesReq pages conversation history
type GetMessagesReq struct {
	ConversationId string `json:"conversation_id"`
	Before         int64  `json:"before,omitempty"`
	BeforeSeq      int64  `json:"before_seq,omitempty"`
	Limit          int    `json:"limit,omitempty"`
}

// MessagesResp answers get-messages
type MessagesResp struct {
	ConversationId string                `json:"conversation_id"`
	Messages       []*entity.MessageInfo `json:"messages"`
}

// MarkReadResp answers mark-read
type MarkReadResp struct {
	ConversationId string   `json:"conversation_id"`
	MessageIds     []string `json:"message_ids"`
}

// StatusResp answers set-status
type StatusResp struct {
	Status string `json:"status"`
}

// Encode encodes data to JSON bytes
func Encode(v interface{}) ([]byte, error) {
	return sonic.Marshal(v)
}

// Decode decodes JSON bytes to struct
func Decode(data []byte, v interface{}) error {
	return sonic.Unmarshal(data, v)
}
