package llm

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures an OpenAI-compatible client.
type OpenAIConfig struct {
	Provider Provider
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
}

var defaultBaseURLs = map[Provider]string{
	ProviderDeepSeek:   "https://api.deepseek.com",
	ProviderOpenRouter: "https://openrouter.ai/api/v1",
	ProviderOllama:     "http://localhost:11434/v1",
}

var defaultModels = map[Provider]string{
	ProviderOpenAI:     "gpt-4o-mini",
	ProviderDeepSeek:   "deepseek-chat",
	ProviderOpenRouter: "openai/gpt-4o-mini",
	ProviderOllama:     "llama3.1",
}

// OpenAIClient talks to OpenAI or any OpenAI-compatible endpoint.
type OpenAIClient struct {
	client   *openai.Client
	provider Provider
}

// NewOpenAIClient creates a new OpenAI-compatible client.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.Provider == "" {
		cfg.Provider = ProviderOpenAI
	}
	if cfg.APIKey == "" && cfg.Provider != ProviderOllama {
		return nil, errors.New("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURLs[cfg.Provider]
	}
	if baseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if cfg.Timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &OpenAIClient{
		client:   openai.NewClientWithConfig(clientConfig),
		provider: cfg.Provider,
	}, nil
}

// Name returns the provider name.
func (c *OpenAIClient) Name() string {
	return string(c.provider)
}

// Models returns available models.
func (c *OpenAIClient) Models() []string {
	if c.provider != ProviderOpenAI {
		return []string{defaultModels[c.provider]}
	}
	return []string{
		"gpt-4o",
		"gpt-4o-mini",
		"gpt-4-turbo",
		"gpt-3.5-turbo",
	}
}

func (c *OpenAIClient) request(req *CompletionRequest) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = defaultModels[c.provider]
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	return openai.ChatCompletionRequest{
		Model:       model,
		Messages:    toOpenAIMessages(req.Messages),
		MaxTokens:   maxTokens,
		Temperature: float32(req.Temperature),
	}
}

// Complete sends a completion request.
func (c *OpenAIClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	resp, err := c.client.CreateChatCompletion(ctx, c.request(req))
	if err != nil {
		return nil, err
	}

	var content, stopReason string
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
		stopReason = string(resp.Choices[0].FinishReason)
	}

	return &CompletionResponse{
		Content:    content,
		Model:      resp.Model,
		TokensIn:   resp.Usage.PromptTokens,
		TokensOut:  resp.Usage.CompletionTokens,
		StopReason: stopReason,
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}

// CompleteStream sends a streaming completion request.
func (c *OpenAIClient) CompleteStream(ctx context.Context, req *CompletionRequest, callback StreamCallback) (*CompletionResponse, error) {
	index := 0
	return c.stream(ctx, c.request(req), func(ev StreamEvent) error {
		if ev.Type != EventText {
			return nil
		}
		err := callback(ev.Text, index)
		index++
		return err
	})
}

// StreamWithFunctions streams with tools attached and reports tool-call
// fragments as they arrive.
func (c *OpenAIClient) StreamWithFunctions(ctx context.Context, req *CompletionRequest, functions []FunctionDef, handler EventHandler) (*CompletionResponse, error) {
	r := c.request(req)
	r.Tools = toOpenAITools(functions)
	return c.stream(ctx, r, handler)
}

func (c *OpenAIClient) stream(ctx context.Context, r openai.ChatCompletionRequest, handler EventHandler) (*CompletionResponse, error) {
	start := time.Now()
	r.Stream = true

	stream, err := c.client.CreateChatCompletionStream(ctx, r)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var content strings.Builder
	var stopReason string

	finish := func() *CompletionResponse {
		return &CompletionResponse{
			Content:    content.String(),
			Model:      r.Model,
			StopReason: stopReason,
			LatencyMs:  time.Since(start).Milliseconds(),
		}
	}

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(response.Choices) == 0 {
			continue
		}

		choice := response.Choices[0]
		var events []StreamEvent
		if choice.Delta.Content != "" {
			content.WriteString(choice.Delta.Content)
			events = append(events, StreamEvent{Type: EventText, Text: choice.Delta.Content})
		}
		for _, tc := range choice.Delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			events = append(events, StreamEvent{
				Type:      EventToolCallDelta,
				Index:     idx,
				CallID:    tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		if choice.FinishReason != "" {
			stopReason = string(choice.FinishReason)
			events = append(events, StreamEvent{Type: EventFinish, FinishReason: stopReason})
		}

		for _, ev := range events {
			if err := handler(ev); err != nil {
				return nil, err
			}
		}
	}

	return finish(), nil
}

func toOpenAIMessages(msgs []ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(msgs))
	for i, msg := range msgs {
		m := openai.ChatCompletionMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		if msg.Role == "tool" {
			m.Name = msg.Name
		}
		for _, tc := range msg.ToolCalls {
			m.ToolCalls = append(m.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out[i] = m
	}
	return out
}

func toOpenAITools(functions []FunctionDef) []openai.Tool {
	tools := make([]openai.Tool, len(functions))
	for i, fn := range functions {
		tools[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        fn.Name,
				Description: fn.Description,
				Parameters:  fn.Parameters,
			},
		}
	}
	return tools
}
