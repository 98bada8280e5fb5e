// Package llm provides LLM client interfaces and implementations.
package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/capitalize-ai/assistant-engine/internal/config"
)

// StreamCallback is called for each token during streaming.
type StreamCallback func(token string, index int) error

// CompletionRequest represents a completion request.
type CompletionRequest struct {
	Model       string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64
}

// ChatMessage represents a chat message for LLM.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`

	// Name is the function name on tool messages.
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is a complete function call issued by the model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// FunctionDef describes one callable function to the model.
type FunctionDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// CompletionResponse represents a completion response.
type CompletionResponse struct {
	Content    string
	Model      string
	TokensIn   int
	TokensOut  int
	StopReason string
	LatencyMs  int64
}

// StreamEventType discriminates events produced in function mode.
type StreamEventType int

const (
	// EventText carries a text delta.
	EventText StreamEventType = iota
	// EventToolCallDelta carries a fragment of a function call. Name and
	// Arguments are partial; fragments with the same Index belong together.
	EventToolCallDelta
	// EventFinish reports the upstream finish reason.
	EventFinish
)

// StreamEvent is one upstream event in function mode.
type StreamEvent struct {
	Type         StreamEventType
	Text         string
	Index        int
	CallID       string
	Name         string
	Arguments    string
	FinishReason string
}

// EventHandler receives function-mode events in order.
type EventHandler func(StreamEvent) error

// Client is the interface for LLM providers.
type Client interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// CompleteStream sends a streaming completion request in plain text mode.
	CompleteStream(ctx context.Context, req *CompletionRequest, callback StreamCallback) (*CompletionResponse, error)

	// StreamWithFunctions streams with the function catalog attached.
	StreamWithFunctions(ctx context.Context, req *CompletionRequest, functions []FunctionDef, handler EventHandler) (*CompletionResponse, error)

	// Name returns the provider name.
	Name() string

	// Models returns available models.
	Models() []string
}

// Provider is the type of LLM provider.
type Provider string

const (
	ProviderAnthropic  Provider = "anthropic"
	ProviderOpenAI     Provider = "openai"
	ProviderDeepSeek   Provider = "deepseek"
	ProviderOpenRouter Provider = "openrouter"
	ProviderOllama     Provider = "ollama"
	ProviderMock       Provider = "mock"
)

// Factory builds a client for a provider and optional base URL override.
type Factory func(provider Provider, baseURL string) (Client, error)

// Credentials holds the keys used by NewFactory.
type Credentials struct {
	OpenAIAPIKey    string
	AnthropicAPIKey string
	Timeout         time.Duration
}

// NewFactory returns a Factory for every supported provider. OpenAI-compatible
// providers share the OpenAI key.
func NewFactory(creds Credentials) Factory {
	return func(provider Provider, baseURL string) (Client, error) {
		switch provider {
		case ProviderMock:
			return NewMockClient(), nil
		case ProviderAnthropic:
			var opts []option.RequestOption
			if baseURL != "" {
				opts = append(opts, option.WithBaseURL(baseURL))
			}
			return NewAnthropicClient(creds.AnthropicAPIKey, opts...)
		case ProviderOpenAI, ProviderDeepSeek, ProviderOpenRouter, ProviderOllama:
			return NewOpenAIClient(OpenAIConfig{
				Provider: provider,
				APIKey:   creds.OpenAIAPIKey,
				BaseURL:  baseURL,
				Timeout:  creds.Timeout,
			})
		default:
			return nil, fmt.Errorf("unknown LLM provider %q", provider)
		}
	}
}

// Registry resolves settings snapshots to clients, caching one client per
// provider and base URL.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client
	factory Factory
}

// NewRegistry returns an empty registry backed by factory.
func NewRegistry(factory Factory) *Registry {
	return &Registry{clients: make(map[string]Client), factory: factory}
}

// Register installs c for provider with no base URL override.
func (r *Registry) Register(provider Provider, c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[cacheKey(provider, "")] = c
}

// Resolve returns the client for s.
func (r *Registry) Resolve(s config.LLMSettings) (Client, error) {
	provider := Provider(s.Provider)
	key := cacheKey(provider, s.BaseURL)

	r.mu.RLock()
	c, ok := r.clients[key]
	r.mu.RUnlock()
	if ok {
		return c, nil
	}

	if r.factory == nil {
		return nil, fmt.Errorf("LLM provider %q is not configured", provider)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[key]; ok {
		return c, nil
	}
	c, err := r.factory(provider, s.BaseURL)
	if err != nil {
		return nil, err
	}
	r.clients[key] = c
	return c, nil
}

// Validate reports whether s can be resolved to a client.
func (r *Registry) Validate(s config.LLMSettings) error {
	_, err := r.Resolve(s)
	return err
}

// Providers lists providers with a cached client.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	for _, c := range r.clients {
		if !seen[c.Name()] {
			seen[c.Name()] = true
			out = append(out, c.Name())
		}
	}
	sort.Strings(out)
	return out
}

func cacheKey(provider Provider, baseURL string) string {
	return string(provider) + "|" + baseURL
}

// Active runs completions against whatever settings snapshot is current
// at call time.
type Active struct {
	registry *Registry
	settings *config.SettingsCell
}

// NewActive returns an Active bound to registry and settings.
func NewActive(registry *Registry, settings *config.SettingsCell) *Active {
	return &Active{registry: registry, settings: settings}
}

// Complete resolves the current client and applies the snapshot's model
// and limits where req leaves them unset.
func (a *Active) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	s := a.settings.Load()
	client, err := a.registry.Resolve(s)
	if err != nil {
		return nil, err
	}
	out := *req
	if out.Model == "" {
		out.Model = s.Model
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = s.MaxTokens
	}
	return client.Complete(ctx, &out)
}
