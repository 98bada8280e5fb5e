package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-3-5-sonnet-20241022"

// AnthropicClient is the Anthropic LLM client. In function mode the catalog
// is offered as tools and tool_use blocks are streamed as call fragments.
// Earlier tool exchanges in the history are folded into text turns.
type AnthropicClient struct {
	client *anthropic.Client
}

// NewAnthropicClient creates a new Anthropic client. Extra options are
// applied after the API key.
func NewAnthropicClient(apiKey string, opts ...option.RequestOption) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}

	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &AnthropicClient{
		client: anthropic.NewClient(opts...),
	}, nil
}

// Name returns the provider name.
func (c *AnthropicClient) Name() string {
	return string(ProviderAnthropic)
}

// Models returns available models.
func (c *AnthropicClient) Models() []string {
	return []string{
		"claude-3-5-sonnet-20241022",
		"claude-3-5-haiku-20241022",
		"claude-3-opus-20240229",
		"claude-3-haiku-20240307",
	}
}

func (c *AnthropicClient) params(req *CompletionRequest) anthropic.MessageNewParams {
	model := req.Model
	if model == "" {
		model = defaultAnthropicModel
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	system, turns := foldForAnthropic(req.Messages)

	messages := make([]anthropic.MessageParam, len(turns))
	for i, msg := range turns {
		messages[i] = anthropic.MessageParam{
			Role: anthropic.F(anthropic.MessageParamRole(msg.Role)),
			Content: anthropic.F([]anthropic.ContentBlockParamUnion{
				anthropic.TextBlockParam{
					Type: anthropic.F(anthropic.TextBlockParamTypeText),
					Text: anthropic.F(msg.Content),
				},
			}),
		}
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.F(model),
		MaxTokens:   anthropic.F(int64(maxTokens)),
		Messages:    anthropic.F(messages),
		Temperature: anthropic.F(req.Temperature),
	}
	if system != "" {
		params.System = anthropic.F([]anthropic.TextBlockParam{{
			Type: anthropic.F(anthropic.TextBlockParamTypeText),
			Text: anthropic.F(system),
		}})
	}
	return params
}

// Complete sends a completion request.
func (c *AnthropicClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	resp, err := c.client.Messages.New(ctx, c.params(req))
	if err != nil {
		return nil, err
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == anthropic.ContentBlockTypeText {
			content.WriteString(block.Text)
		}
	}

	return &CompletionResponse{
		Content:    content.String(),
		Model:      resp.Model,
		TokensIn:   int(resp.Usage.InputTokens),
		TokensOut:  int(resp.Usage.OutputTokens),
		StopReason: string(resp.StopReason),
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}

// CompleteStream sends a streaming completion request.
func (c *AnthropicClient) CompleteStream(ctx context.Context, req *CompletionRequest, callback StreamCallback) (*CompletionResponse, error) {
	index := 0
	return c.stream(ctx, req, nil, func(ev StreamEvent) error {
		if ev.Type != EventText {
			return nil
		}
		err := callback(ev.Text, index)
		index++
		return err
	})
}

// StreamWithFunctions streams with functions offered as tools.
func (c *AnthropicClient) StreamWithFunctions(ctx context.Context, req *CompletionRequest, functions []FunctionDef, handler EventHandler) (*CompletionResponse, error) {
	return c.stream(ctx, req, functions, handler)
}

func toAnthropicTools(functions []FunctionDef) []anthropic.ToolParam {
	tools := make([]anthropic.ToolParam, len(functions))
	for i, fn := range functions {
		schema := fn.Parameters
		if schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		tools[i] = anthropic.ToolParam{
			Name:        anthropic.F(fn.Name),
			Description: anthropic.F(fn.Description),
			InputSchema: anthropic.F[interface{}](schema),
		}
	}
	return tools
}

func (c *AnthropicClient) stream(ctx context.Context, req *CompletionRequest, functions []FunctionDef, handler EventHandler) (*CompletionResponse, error) {
	start := time.Now()
	params := c.params(req)
	if len(functions) > 0 {
		params.Tools = anthropic.F(toAnthropicTools(functions))
	}

	stream := c.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	var content strings.Builder
	var stopReason string

	finish := func() *CompletionResponse {
		return &CompletionResponse{
			Content:    content.String(),
			Model:      params.Model.Value,
			StopReason: stopReason,
			LatencyMs:  time.Since(start).Milliseconds(),
		}
	}

	for stream.Next() {
		var ev *StreamEvent
		switch event := stream.Current().AsUnion().(type) {
		case anthropic.ContentBlockStartEvent:
			if event.ContentBlock.Type == "tool_use" {
				ev = &StreamEvent{
					Type:   EventToolCallDelta,
					Index:  int(event.Index),
					CallID: event.ContentBlock.ID,
					Name:   event.ContentBlock.Name,
				}
			}
		case anthropic.ContentBlockDeltaEvent:
			switch {
			case event.Delta.Text != "":
				content.WriteString(event.Delta.Text)
				ev = &StreamEvent{Type: EventText, Text: event.Delta.Text}
			case event.Delta.PartialJSON != "":
				ev = &StreamEvent{Type: EventToolCallDelta, Index: int(event.Index), Arguments: event.Delta.PartialJSON}
			}
		case anthropic.MessageDeltaEvent:
			if event.Delta.StopReason != "" {
				stopReason = string(event.Delta.StopReason)
				ev = &StreamEvent{Type: EventFinish, FinishReason: stopReason}
			}
		}
		if ev == nil {
			continue
		}

		if err := handler(*ev); err != nil {
			return nil, err
		}
	}

	if err := stream.Err(); err != nil {
		return nil, err
	}
	return finish(), nil
}

// foldForAnthropic moves system messages into the system prompt, renders
// tool exchanges as text and merges consecutive turns of the same role.
func foldForAnthropic(msgs []ChatMessage) (string, []ChatMessage) {
	var system []string
	var turns []ChatMessage

	push := func(role, content string) {
		if content == "" {
			return
		}
		if n := len(turns); n > 0 && turns[n-1].Role == role {
			turns[n-1].Content += "\n\n" + content
			return
		}
		turns = append(turns, ChatMessage{Role: role, Content: content})
	}

	for _, msg := range msgs {
		switch msg.Role {
		case "system":
			system = append(system, msg.Content)
		case "tool":
			push("user", fmt.Sprintf("[Result of %s]\n%s", msg.Name, msg.Content))
		case "assistant":
			text := msg.Content
			for _, tc := range msg.ToolCalls {
				text = strings.TrimSpace(text + fmt.Sprintf("\n[Called %s with %s]", tc.Name, tc.Arguments))
			}
			push("assistant", text)
		default:
			push("user", msg.Content)
		}
	}

	// The Messages API requires the conversation to open with a user turn.
	if len(turns) > 0 && turns[0].Role != "user" {
		turns = append([]ChatMessage{{Role: "user", Content: "(continuing conversation)"}}, turns...)
	}
	return strings.Join(system, "\n\n"), turns
}
