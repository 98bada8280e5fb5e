package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// MockClient is an offline provider with keyword-driven replies. It lets
// the server run end to end without an API key.
type MockClient struct{}

// NewMockClient returns a MockClient.
func NewMockClient() *MockClient {
	return &MockClient{}
}

func (c *MockClient) Name() string     { return string(ProviderMock) }
func (c *MockClient) Models() []string { return []string{"mock"} }

type mockIntent struct {
	keywords []string
	function string
	args     map[string]any
}

var mockIntents = []mockIntent{
	{keywords: []string{"weather", "hava"}, function: "get_current_weather", args: map[string]any{}},
	{keywords: []string{"news", "haber"}, function: "get_news_headlines", args: map[string]any{}},
	{keywords: []string{"task", "görev", "todo"}, function: "get_tasks", args: map[string]any{}},
	{keywords: []string{"calendar", "schedule", "takvim", "toplantı"}, function: "get_calendar_events", args: map[string]any{}},
	{keywords: []string{"briefing", "brifing"}, function: "get_daily_briefing", args: map[string]any{}},
	{keywords: []string{"time", "saat", "date", "tarih"}, function: "get_current_datetime", args: map[string]any{}},
}

// Complete returns a canned reply derived from the last user message.
func (c *MockClient) Complete(_ context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	return &CompletionResponse{Content: c.reply(req.Messages), Model: "mock"}, nil
}

// CompleteStream streams the canned reply word by word.
func (c *MockClient) CompleteStream(ctx context.Context, req *CompletionRequest, callback StreamCallback) (*CompletionResponse, error) {
	content := c.reply(req.Messages)
	for i, word := range splitWords(content) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := callback(word, i); err != nil {
			return nil, err
		}
	}
	return &CompletionResponse{Content: content, Model: "mock", StopReason: "stop"}, nil
}

// StreamWithFunctions emits a function call when a keyword matches,
// otherwise streams a text reply.
func (c *MockClient) StreamWithFunctions(ctx context.Context, req *CompletionRequest, functions []FunctionDef, handler EventHandler) (*CompletionResponse, error) {
	if intent, ok := matchIntent(lastUserMessage(req.Messages), functions); ok {
		args, err := json.Marshal(intent.args)
		if err != nil {
			return nil, err
		}
		events := []StreamEvent{
			{Type: EventToolCallDelta, Index: 0, CallID: "call_" + uuid.NewString(), Name: intent.function},
			{Type: EventToolCallDelta, Index: 0, Arguments: string(args)},
			{Type: EventFinish, FinishReason: "tool_calls"},
		}
		for _, ev := range events {
			if err := handler(ev); err != nil {
				return nil, err
			}
		}
		return &CompletionResponse{Model: "mock", StopReason: "tool_calls"}, nil
	}

	return c.CompleteStream(ctx, req, func(token string, _ int) error {
		return handler(StreamEvent{Type: EventText, Text: token})
	})
}

func (c *MockClient) reply(msgs []ChatMessage) string {
	if n := len(msgs); n > 0 && msgs[n-1].Role == "tool" {
		return fmt.Sprintf("Here is what %s returned: %s", msgs[n-1].Name, truncate(msgs[n-1].Content, 300))
	}
	user := lastUserMessage(msgs)
	if user == "" {
		return "How can I help?"
	}
	return fmt.Sprintf("You said: %s", user)
}

func matchIntent(message string, functions []FunctionDef) (mockIntent, bool) {
	lower := strings.ToLower(message)
	offered := make(map[string]bool, len(functions))
	for _, fn := range functions {
		offered[fn.Name] = true
	}
	for _, intent := range mockIntents {
		if !offered[intent.function] {
			continue
		}
		for _, kw := range intent.keywords {
			if strings.Contains(lower, kw) {
				return intent, true
			}
		}
	}
	return mockIntent{}, false
}

func lastUserMessage(msgs []ChatMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			return msgs[i].Content
		}
	}
	return ""
}

// splitWords keeps the separating spaces so the concatenation of the
// result equals s.
func splitWords(s string) []string {
	var out []string
	start := 0
	for i := 1; i < len(s); i++ {
		if s[i] == ' ' {
			out = append(out, s[start:i])
			start = i
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
