package entity

import (
	"github.com/mbeoliero/deskline/pkg/constant"
	"github.com/mbeoliero/deskline/pkg/errcode"
)

// TransferRecord is one entry of a conversation's hand-off history
type TransferRecord struct {
	FromAgent string `json:"from_agent"`
	ToAgent   string `json:"to_agent"`
	Reason    string `json:"reason,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Rating is the visitor's feedback on a conversation
type Rating struct {
	Score   int    `json:"score"`
	Comment string `json:"comment,omitempty"`
	RatedAt int64  `json:"rated_at"`
}

// Conversation represents a support conversation between a visitor and at most one agent
type Conversation struct {
	Id              string            `json:"id" gorm:"column:id;primaryKey;size:64"`
	SiteId          string            `json:"site_id" gorm:"column:site_id;size:64;index:idx_site_status,priority:1"`
	VisitorId       string            `json:"visitor_id" gorm:"column:visitor_id;size:64;index"`
	VisitorName     string            `json:"visitor_name,omitempty" gorm:"column:visitor_name;size:128"`
	VisitorEmail    string            `json:"visitor_email,omitempty" gorm:"column:visitor_email;size:255"`
	VisitorPhone    string            `json:"visitor_phone,omitempty" gorm:"column:visitor_phone;size:32"`
	IsAnonymous     bool              `json:"is_anonymous" gorm:"column:is_anonymous"`
	AgentId         string            `json:"agent_id,omitempty" gorm:"column:agent_id;size:64;index"`
	Status          string            `json:"status" gorm:"column:status;size:16;index:idx_site_status,priority:2"`
	Priority        string            `json:"priority" gorm:"column:priority;size:16"`
	Subject         string            `json:"subject,omitempty" gorm:"column:subject;size:255"`
	TransferHistory []TransferRecord  `json:"transfer_history" gorm:"column:transfer_history;serializer:json"`
	UnreadCount     int64             `json:"unread_count" gorm:"column:unread_count"`
	LastSeq         int64             `json:"last_seq" gorm:"column:last_seq"`
	LastMessage     string            `json:"last_message,omitempty" gorm:"column:last_message;size:512"`
	LastMessageTime int64             `json:"last_message_time,omitempty" gorm:"column:last_message_time"`
	Rating          *Rating           `json:"rating,omitempty" gorm:"column:rating;serializer:json"`
	Metadata        map[string]string `json:"metadata,omitempty" gorm:"column:metadata;serializer:json"`
	StartTime       int64             `json:"start_time" gorm:"column:start_time"`
	EndTime         int64             `json:"end_time,omitempty" gorm:"column:end_time"`
	CreatedAt       int64             `json:"created_at" gorm:"column:created_at;autoCreateTime:milli"`
	UpdatedAt       int64             `json:"updated_at" gorm:"column:updated_at;autoUpdateTime:milli"`
}

// TableName returns the table name for Conversation
func (Conversation) TableName() string {
	return "conversations"
}

// transitions lists the allowed status changes. transferred -> transferred covers repeated hand-offs.
var transitions = map[string][]string{
	constant.ConvStatusWaiting:     {constant.ConvStatusActive, constant.ConvStatusClosed},
	constant.ConvStatusActive:      {constant.ConvStatusTransferred, constant.ConvStatusClosed},
	constant.ConvStatusTransferred: {constant.ConvStatusTransferred, constant.ConvStatusClosed},
}

// CanTransitionTo reports whether the conversation may move to next
func (c *Conversation) CanTransitionTo(next string) bool {
	for _, s := range transitions[c.Status] {
		if s == next {
			return true
		}
	}
	return false
}

// TransitionTo moves the conversation to next or fails with ErrInvalidState
func (c *Conversation) TransitionTo(next string) error {
	if c.Status == constant.ConvStatusClosed {
		return errcode.ErrConversationClosed
	}
	if !c.CanTransitionTo(next) {
		return errcode.ErrInvalidState
	}
	c.Status = next
	return nil
}

// IsClosed reports whether the conversation reached its terminal state
func (c *Conversation) IsClosed() bool {
	return c.Status == constant.ConvStatusClosed
}

// HasAgent reports whether an agent is assigned
func (c *Conversation) HasAgent() bool {
	return c.AgentId != ""
}

// RecordTransfer appends a hand-off entry and reassigns the agent
func (c *Conversation) RecordTransfer(toAgent, reason string, ts int64) error {
	if !c.HasAgent() {
		return errcode.ErrNoAgentAssigned
	}
	if err := c.TransitionTo(constant.ConvStatusTransferred); err != nil {
		return err
	}
	c.TransferHistory = append(c.TransferHistory, TransferRecord{
		FromAgent: c.AgentId,
		ToAgent:   toAgent,
		Reason:    reason,
		Timestamp: ts,
	})
	c.AgentId = toAgent
	return nil
}

// Clone returns a deep copy so callers can mutate without touching shared state
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	cp := *c
	if c.TransferHistory != nil {
		cp.TransferHistory = append([]TransferRecord(nil), c.TransferHistory...)
	}
	if c.Rating != nil {
		r := *c.Rating
		cp.Rating = &r
	}
	if c.Metadata != nil {
		cp.Metadata = make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// ConversationFilter narrows a conversation listing. Empty fields match everything.
type ConversationFilter struct {
	SiteId    string
	Status    string
	AgentId   string
	VisitorId string
	Limit     int
	Offset    int
}

// HistoryQuery pages conversation history backwards. Zero cursors mean newest.
// BeforeSeq is the exact cursor; Before (a timestamp) is kept for time-based
// reads and is ambiguous when several messages share a millisecond.
type HistoryQuery struct {
	Before    int64
	BeforeSeq int64
	Limit     int
}
