package entity

// Attachment describes the file carried by a file/image/voice/video message
type Attachment struct {
	Url      string `json:"url"`
	Name     string `json:"name,omitempty"`
	Size     int64  `json:"size,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// Message represents a message
type Message struct {
	Id              string      `json:"id" gorm:"column:id;primaryKey;size:64"`
	ConversationId  string      `json:"conversation_id" gorm:"column:conversation_id;size:64;uniqueIndex:uk_conv_seq,priority:1;index:idx_conv_client,priority:1"`
	Seq             int64       `json:"seq" gorm:"column:seq;uniqueIndex:uk_conv_seq,priority:2"`
	ClientMsgId     string      `json:"client_msg_id,omitempty" gorm:"column:client_msg_id;size:64;index:idx_conv_client,priority:3"`
	SenderId        string      `json:"sender_id" gorm:"column:sender_id;size:64;index:idx_conv_client,priority:2"`
	SenderType      string      `json:"sender_type" gorm:"column:sender_type;size:16"`
	Content         string      `json:"content" gorm:"column:content;type:text"`
	MsgType         string      `json:"msg_type" gorm:"column:msg_type;size:16"`
	ReplyTo         string      `json:"reply_to,omitempty" gorm:"column:reply_to;size:64"`
	Attachment      *Attachment `json:"attachment,omitempty" gorm:"column:attachment;serializer:json"`
	IsRead          bool        `json:"is_read" gorm:"column:is_read"`
	ReadAt          int64       `json:"read_at,omitempty" gorm:"column:read_at"`
	IsEdited        bool        `json:"is_edited" gorm:"column:is_edited"`
	EditedAt        int64       `json:"edited_at,omitempty" gorm:"column:edited_at"`
	OriginalContent string      `json:"-" gorm:"column:original_content;type:text"`
	IsDeleted       bool        `json:"is_deleted" gorm:"column:is_deleted;index"`
	DeletedAt       int64       `json:"deleted_at,omitempty" gorm:"column:deleted_at"`
	DeletedBy       string      `json:"deleted_by,omitempty" gorm:"column:deleted_by;size:64"`
	Timestamp       int64       `json:"timestamp" gorm:"column:timestamp"`
	CreatedAt       int64       `json:"created_at" gorm:"column:created_at;autoCreateTime:milli"`
	UpdatedAt       int64       `json:"updated_at" gorm:"column:updated_at;autoUpdateTime:milli"`
}

// TableName returns the table name for Message
func (Message) TableName() string {
	return "messages"
}

// MessageInfo represents message info for API response and push events
type MessageInfo struct {
	Id             string      `json:"id"`
	ConversationId string      `json:"conversation_id"`
	Seq            int64       `json:"seq"`
	ClientMsgId    string      `json:"client_msg_id,omitempty"`
	SenderId       string      `json:"sender_id"`
	SenderType     string      `json:"sender_type"`
	Content        string      `json:"content"`
	MsgType        string      `json:"msg_type"`
	ReplyTo        string      `json:"reply_to,omitempty"`
	Attachment     *Attachment `json:"attachment,omitempty"`
	IsRead         bool        `json:"is_read"`
	ReadAt         int64       `json:"read_at,omitempty"`
	IsEdited       bool        `json:"is_edited"`
	EditedAt       int64       `json:"edited_at,omitempty"`
	IsDeleted      bool        `json:"is_deleted"`
	DeletedAt      int64       `json:"deleted_at,omitempty"`
	DeletedBy      string      `json:"deleted_by,omitempty"`
	Timestamp      int64       `json:"timestamp"`
}

// ToMessageInfo converts Message to MessageInfo. Deleted messages never expose content.
func (m *Message) ToMessageInfo() *MessageInfo {
	info := &MessageInfo{
		Id:             m.Id,
		ConversationId: m.ConversationId,
		Seq:            m.Seq,
		ClientMsgId:    m.ClientMsgId,
		SenderId:       m.SenderId,
		SenderType:     m.SenderType,
		Content:        m.Content,
		MsgType:        m.MsgType,
		ReplyTo:        m.ReplyTo,
		Attachment:     m.Attachment,
		IsRead:         m.IsRead,
		ReadAt:         m.ReadAt,
		IsEdited:       m.IsEdited,
		EditedAt:       m.EditedAt,
		IsDeleted:      m.IsDeleted,
		DeletedAt:      m.DeletedAt,
		DeletedBy:      m.DeletedBy,
		Timestamp:      m.Timestamp,
	}
	if m.IsDeleted {
		info.Content = ""
		info.Attachment = nil
	}
	return info
}

// ToMessageInfos converts a slice of messages
func ToMessageInfos(msgs []*Message) []*MessageInfo {
	infos := make([]*MessageInfo, 0, len(msgs))
	for _, m := range msgs {
		infos = append(infos, m.ToMessageInfo())
	}
	return infos
}

// Clone returns a copy of the message
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	cp := *m
	if m.Attachment != nil {
		a := *m.Attachment
		cp.Attachment = &a
	}
	return &cp
}
