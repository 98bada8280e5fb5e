package model

import (
	"encoding/json"
	"time"
)

// StreamEventType discriminates events of a streamed turn.
type StreamEventType string

const (
	EventStart          StreamEventType = "start"
	EventChunk          StreamEventType = "chunk"
	EventFunctionStart  StreamEventType = "function_start"
	EventFunctionResult StreamEventType = "function_result"
	EventTitleGenerated StreamEventType = "title_generated"
	EventDone           StreamEventType = "done"
	EventError          StreamEventType = "error"
)

// StreamEvent is one framed event of a turn. Only the fields relevant to
// Type are serialized.
type StreamEvent struct {
	Type           StreamEventType
	ConversationID uint
	Content        string
	Name           string
	Result         any
	Title          string
	Message        string
}

// Terminal reports whether the event ends a turn.
func (e StreamEvent) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

func (e StreamEvent) MarshalJSON() ([]byte, error) {
	out := map[string]any{"type": e.Type}
	switch e.Type {
	case EventStart:
		out["conversation_id"] = e.ConversationID
	case EventChunk, EventDone:
		out["content"] = e.Content
	case EventFunctionStart:
		out["name"] = e.Name
	case EventFunctionResult:
		out["name"] = e.Name
		out["result"] = e.Result
	case EventTitleGenerated:
		out["title"] = e.Title
	case EventError:
		out["message"] = e.Message
	}
	return json.Marshal(out)
}

// JournalKind separates resource actions from turn lifecycle entries.
type JournalKind string

const (
	JournalAction JournalKind = "action"
	JournalTurn   JournalKind = "turn"
)

// JournalEntry is an audit record published to the action journal.
type JournalEntry struct {
	ID             string      `json:"id"`
	Kind           JournalKind `json:"kind"`
	Resource       string      `json:"resource,omitempty"`
	Operation      string      `json:"operation,omitempty"`
	Outcome        string      `json:"outcome"`
	ResourceID     uint        `json:"resource_id,omitempty"`
	ConversationID uint        `json:"conversation_id,omitempty"`
	Message        string      `json:"message,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`

	// Sequence is populated on read.
	Sequence uint64 `json:"sequence,omitempty"`
}
