package models

import "time"

// Message is a single post inside a conversation.
type Message struct {
	ID              string     `json:"message_id"`
	SenderID        string     `json:"sender_id"`
	Sender          *User      `json:"sender,omitempty"`
	ConversationID  string     `json:"conversation"`
	ParentMessageID *string    `json:"parent_message,omitempty"`
	Body            string     `json:"message_body"`
	SentAt          time.Time  `json:"sent_at"`
	Edited          bool       `json:"edited"`
	EditedAt        *time.Time `json:"edited_at,omitempty"`
}

func (m *Message) ConversationRef() string { return m.ConversationID }

func (m *Message) OwnerID() string { return m.SenderID }

// MessageHistory keeps a previous body of an edited message.
type MessageHistory struct {
	ID         int64     `json:"history_id"`
	MessageID  string    `json:"message"`
	OldContent string    `json:"old_content"`
	EditedBy   string    `json:"edited_by,omitempty"`
	EditedAt   time.Time `json:"edited_at"`
}

// ThreadEntry is a message positioned in a reply tree.
type ThreadEntry struct {
	Message *Message `json:"message"`
	Depth   int      `json:"depth"`
}
