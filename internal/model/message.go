package model

import (
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	// RoleTool only exists in the in-memory exchange with the model.
	RoleTool Role = "tool"
)

// Message is an immutable conversation message. Ordering is by CreatedAt,
// with ID as the tie breaker.
type Message struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ConversationID uint      `gorm:"index;not null" json:"conversation_id"`
	Role           Role      `gorm:"size:20;not null" json:"role"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	CreatedAt      time.Time `gorm:"index" json:"created_at"`
}

// ContextMessage is one entry of the windowed context handed to the model.
type ContextMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// TurnRequest is the inbound request for one conversational turn.
type TurnRequest struct {
	Message        string `json:"message"`
	Timezone       string `json:"timezone"`
	ConversationID *uint  `json:"conversation_id,omitempty"`
}
