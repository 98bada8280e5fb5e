package model

import (
	"time"

	"gorm.io/datatypes"
)

// Memory is a durable fact about the user, unique on (Category, Key).
type Memory struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Category   string    `gorm:"size:50;not null;uniqueIndex:idx_memory_category_key" json:"category"`
	Key        string    `gorm:"size:200;not null;uniqueIndex:idx_memory_category_key" json:"key"`
	Value      string    `gorm:"type:text;not null" json:"value"`
	Importance int       `gorm:"not null;default:5;index" json:"importance"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// StoreMemoryRequest upserts a memory.
type StoreMemoryRequest struct {
	Category   string `json:"category"`
	Key        string `json:"key"`
	Value      string `json:"value"`
	Importance int    `json:"importance"`
}

// NoteKind separates free-form notes from titled knowledge entries.
type NoteKind string

const (
	NoteKindNote      NoteKind = "note"
	NoteKindKnowledge NoteKind = "knowledge"
)

// Note is an entry of the knowledge store.
type Note struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Kind      NoteKind       `gorm:"size:20;not null;index" json:"kind"`
	Title     *string        `gorm:"size:500" json:"title,omitempty"`
	Content   string         `gorm:"type:text;not null" json:"content"`
	Category  *string        `gorm:"size:100;index" json:"category,omitempty"`
	Tags      datatypes.JSON `json:"tags,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AddNoteRequest is the request to add a note or knowledge entry.
type AddNoteRequest struct {
	Title    *string  `json:"title,omitempty"`
	Content  string   `json:"content"`
	Category *string  `json:"category,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}
