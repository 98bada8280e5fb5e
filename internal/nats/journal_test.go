package nats

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/capitalize-ai/assistant-engine/internal/model"
)

func TestSubject(t *testing.T) {
	tests := []struct {
		entry model.JournalEntry
		want  string
	}{
		{model.JournalEntry{Kind: model.JournalAction, Resource: "email", Outcome: "sent"}, "assistant.action.email.sent"},
		{model.JournalEntry{Kind: model.JournalAction, Resource: "task", Outcome: "confirmation_required"}, "assistant.action.task.confirmation_required"},
		{model.JournalEntry{Kind: model.JournalTurn, Outcome: "ok"}, "assistant.turn.ok"},
		{model.JournalEntry{Kind: model.JournalAction, Resource: "a.b c", Outcome: ""}, "assistant.action.a_b_c.unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Subject(tt.entry))
	}
}

func TestStatusOfNilClient(t *testing.T) {
	var c *Client
	assert.Equal(t, "disabled", c.Status())
}
