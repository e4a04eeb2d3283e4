package models

import "time"

// Conversation groups participants and their messages.
type Conversation struct {
	ID           string     `json:"conversation_id"`
	Participants []*User    `json:"participants"`
	Messages     []*Message `json:"messages"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (c *Conversation) ConversationRef() string { return c.ID }

func (c *Conversation) OwnerID() string { return "" }
