// Package model defines data structures for the assistant engine.
package model

import (
	"time"
)

// DefaultTitle is used when title generation fails or yields nothing.
const DefaultTitle = "New Chat"

// Conversation represents a conversation thread. It owns its messages.
type Conversation struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	Title     *string    `gorm:"size:200" json:"title"`
	Summary   *string    `gorm:"type:text" json:"summary,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`

	Messages     []Message `json:"messages,omitempty"`
	MessageCount int64     `gorm:"-" json:"message_count,omitempty"`
}

// HasTitle reports whether a non-empty title was already set.
func (c *Conversation) HasTitle() bool {
	return c.Title != nil && *c.Title != ""
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
	Total         int64          `json:"total"`
	HasMore       bool           `json:"has_more"`
}
