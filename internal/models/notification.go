package models

import "time"

// Notification tells a participant about a new message.
type Notification struct {
	ID        int64     `json:"notification_id"`
	UserID    string    `json:"user"`
	MessageID string    `json:"message"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`

	// Populated on delivery only.
	ConversationID string `json:"conversation,omitempty"`
	SenderID       string `json:"sender,omitempty"`
	Preview        string `json:"preview,omitempty"`
}

func (n *Notification) OwnerID() string { return n.UserID }

func (n *Notification) ConversationRef() string { return n.ConversationID }
