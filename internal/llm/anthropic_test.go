package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sseEvents(events ...string) string {
	var b strings.Builder
	for _, data := range events {
		var head struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal([]byte(data), &head)
		fmt.Fprintf(&b, "event: %s\ndata: %s\n\n", head.Type, data)
	}
	return b.String()
}

func TestAnthropicStreamsToolUse(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, sseEvents(
			`{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","content":[],"model":"claude-3-5-sonnet-20241022","stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":12,"output_tokens":1}}}`,
			`{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`,
			`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Checking."}}`,
			`{"type":"content_block_stop","index":0}`,
			`{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_1","name":"get_tasks","input":{}}}`,
			`{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"include_"}}`,
			`{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"completed\":true}"}}`,
			`{"type":"content_block_stop","index":1}`,
			`{"type":"message_delta","delta":{"stop_reason":"tool_use","stop_sequence":null},"usage":{"output_tokens":30}}`,
			`{"type":"message_stop"}`,
		))
	}))
	defer srv.Close()

	c, err := NewAnthropicClient("test-key", option.WithBaseURL(srv.URL))
	require.NoError(t, err)

	var text, name, args, callID string
	var finish string
	resp, err := c.StreamWithFunctions(context.Background(), &CompletionRequest{
		Messages: []ChatMessage{{Role: "user", Content: "what is on my list?"}},
	}, []FunctionDef{{
		Name:        "get_tasks",
		Description: "List tasks",
		Parameters:  map[string]any{"type": "object", "properties": map[string]any{"include_completed": map[string]any{"type": "boolean"}}},
	}}, func(ev StreamEvent) error {
		switch ev.Type {
		case EventText:
			text += ev.Text
		case EventToolCallDelta:
			assert.Equal(t, 1, ev.Index)
			if ev.CallID != "" {
				callID = ev.CallID
			}
			name += ev.Name
			args += ev.Arguments
		case EventFinish:
			finish = ev.FinishReason
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, "Checking.", text)
	assert.Equal(t, "toolu_1", callID)
	assert.Equal(t, "get_tasks", name)
	assert.JSONEq(t, `{"include_completed":true}`, args)
	assert.Equal(t, "tool_use", finish)
	assert.Equal(t, "tool_use", resp.StopReason)

	tools, ok := body["tools"].([]any)
	require.True(t, ok, "tools are sent with the request")
	require.Len(t, tools, 1)
	tool := tools[0].(map[string]any)
	assert.Equal(t, "get_tasks", tool["name"])
	assert.Contains(t, tool, "input_schema")
}

func TestAnthropicPlainStreamSendsNoTools(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, sseEvents(
			`{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`,
			`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hello"}}`,
			`{"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":2}}`,
			`{"type":"message_stop"}`,
		))
	}))
	defer srv.Close()

	c, err := NewAnthropicClient("test-key", option.WithBaseURL(srv.URL))
	require.NoError(t, err)

	var tokens []string
	resp, err := c.CompleteStream(context.Background(), &CompletionRequest{
		Messages: []ChatMessage{{Role: "user", Content: "hi"}},
	}, func(token string, _ int) error {
		tokens = append(tokens, token)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hello"}, tokens)
	assert.Equal(t, "Hello", resp.Content)
	assert.NotContains(t, body, "tools")
}
