// Package orchestrator drives one conversational turn: context assembly,
// the model stream, at most one function call and its narration, and
// persistence.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/capitalize-ai/assistant-engine/internal/apperr"
	"github.com/capitalize-ai/assistant-engine/internal/config"
	"github.com/capitalize-ai/assistant-engine/internal/dispatch"
	"github.com/capitalize-ai/assistant-engine/internal/llm"
	"github.com/capitalize-ai/assistant-engine/internal/lock"
	"github.com/capitalize-ai/assistant-engine/internal/model"
	"github.com/capitalize-ai/assistant-engine/internal/service"
	"github.com/capitalize-ai/assistant-engine/pkg/logger"
	"github.com/capitalize-ai/assistant-engine/pkg/metrics"
	"github.com/capitalize-ai/assistant-engine/pkg/tracing"
)

// TurnRequest is one user message.
type TurnRequest struct {
	Message        string `json:"message"`
	Timezone       string `json:"timezone"`
	ConversationID *uint  `json:"conversation_id,omitempty"`
}

// Dispatcher executes a function call.
type Dispatcher interface {
	Execute(ctx context.Context, name string, args map[string]any) dispatch.Result
}

// Models resolves a settings snapshot to a client.
type Models interface {
	Resolve(s config.LLMSettings) (llm.Client, error)
}

// Options tunes a turn.
type Options struct {
	MaxFunctionArgsBytes int
	RecentConversations  int
	ExtractEvery         int
	ExtractionTimeout    time.Duration
}

// Deps are the collaborators of an Orchestrator. Journal and Locker may be
// nil.
type Deps struct {
	Conversations *service.ConversationService
	Memory        *service.MemoryService
	Dispatcher    Dispatcher
	Catalog       []llm.FunctionDef
	Models        Models
	Settings      *config.SettingsCell
	Locker        lock.Locker
	Journal       service.Journal
}

// Orchestrator runs turns. It is safe for concurrent use.
type Orchestrator struct {
	Deps
	opts   Options
	log    *logger.Logger
	tracer trace.Tracer

	background sync.WaitGroup
}

// New creates an Orchestrator.
func New(deps Deps, opts Options, log *logger.Logger) *Orchestrator {
	if deps.Locker == nil {
		deps.Locker = lock.NewLocal()
	}
	if deps.Journal == nil {
		deps.Journal = service.NopJournal{}
	}
	if opts.MaxFunctionArgsBytes <= 0 {
		opts.MaxFunctionArgsBytes = 64 * 1024
	}
	if opts.ExtractionTimeout <= 0 {
		opts.ExtractionTimeout = 90 * time.Second
	}
	return &Orchestrator{
		Deps:   deps,
		opts:   opts,
		log:    log.With("component", "orchestrator"),
		tracer: tracing.Tracer("orchestrator"),
	}
}

// Wait blocks until background extraction started by earlier turns ends.
func (o *Orchestrator) Wait() {
	o.background.Wait()
}

var errPanic = errors.New("internal error")

// RunTurn runs one turn, writing events to out. Every failure after the
// turn starts is reported as exactly one error event; the returned error
// mirrors it for logging.
func (o *Orchestrator) RunTurn(ctx context.Context, req TurnRequest, out Emitter) (err error) {
	started := time.Now()
	settings := o.Settings.Load()
	g := newGuard(out)
	if req.ConversationID != nil {
		g.conversationID = *req.ConversationID
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.turn", trace.WithAttributes(
		attribute.String("llm.provider", settings.Provider),
		attribute.String("llm.model", settings.Model),
	))
	defer span.End()

	t := &turn{o: o, g: g, req: req, settings: settings, span: span}
	defer func() {
		if rec := recover(); rec != nil {
			o.log.Error("turn panicked", "panic", rec, "stack", string(debug.Stack()))
			err = errPanic
		}
		status := "ok"
		if err != nil {
			status = "error"
			span.SetStatus(codes.Error, err.Error())
			g.fail(clientMessage(err))
			o.log.Warn("turn failed", "conversation_id", t.convID(), "error", err)
		}
		metrics.RecordTurn(status, time.Since(started).Seconds())
		o.Journal.Record(context.WithoutCancel(ctx), model.JournalEntry{
			ID:             uuid.NewString(),
			Kind:           model.JournalTurn,
			Outcome:        status,
			ConversationID: t.convID(),
			Message:        errString(err),
			CreatedAt:      time.Now().UTC(),
		})
	}()

	return t.run(ctx)
}

func clientMessage(err error) string {
	if errors.Is(err, errPanic) {
		return errPanic.Error()
	}
	return apperr.Message(err)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return clientMessage(err)
}

type turn struct {
	o        *Orchestrator
	g        *guard
	req      TurnRequest
	settings config.LLMSettings
	span     trace.Span

	conv     *model.Conversation
	client   llm.Client
	messages []llm.ChatMessage
	response strings.Builder
}

func (t *turn) convID() uint {
	if t.conv == nil {
		return 0
	}
	return t.conv.ID
}

func (t *turn) run(ctx context.Context) error {
	o := t.o
	if strings.TrimSpace(t.req.Message) == "" {
		return apperr.Validation("message is required")
	}

	conv, err := o.Conversations.GetOrCreate(ctx, t.req.ConversationID)
	if err != nil {
		return err
	}
	t.conv = conv
	t.g.conversationID = conv.ID
	t.span.SetAttributes(attribute.Int64("conversation.id", int64(conv.ID)))
	if err := t.g.emit(model.StreamEvent{Type: model.EventStart, ConversationID: conv.ID}); err != nil {
		return err
	}

	if _, err := o.Conversations.Append(ctx, conv, model.RoleUser, t.req.Message); err != nil {
		return err
	}

	client, err := o.Models.Resolve(t.settings)
	if err != nil {
		return apperr.Wrap(apperr.CodeUpstreamUnavailable, "language model unavailable", err)
	}
	t.client = client

	if err := t.assemble(ctx); err != nil {
		return err
	}

	call, err := t.streamFunctions(ctx)
	if err != nil {
		return err
	}
	if call != nil {
		if err := t.service(ctx, call); err != nil {
			return err
		}
	}

	return t.finish(ctx)
}

func (t *turn) assemble(ctx context.Context) error {
	o := t.o
	parts := []string{o.Conversations.BuildSystemPrompt(t.req.Timezone)}

	if o.Memory != nil {
		mem, err := o.Memory.BuildContext(ctx)
		if err != nil {
			o.log.Warn("memory context unavailable", "error", err)
		} else if mem != "" {
			parts = append(parts, mem)
		}
	}
	if recent, err := o.Conversations.RecentContext(ctx, t.conv.ID, o.opts.RecentConversations); err != nil {
		o.log.Warn("recent conversations unavailable", "error", err)
	} else if recent != "" {
		parts = append(parts, recent)
	}

	window, err := o.Conversations.WindowedContext(ctx, t.conv, 0)
	if err != nil {
		return err
	}

	t.messages = make([]llm.ChatMessage, 0, len(window)+3)
	t.messages = append(t.messages, llm.ChatMessage{Role: "system", Content: strings.Join(parts, "\n\n")})
	for _, m := range window {
		t.messages = append(t.messages, llm.ChatMessage{Role: string(m.Role), Content: m.Content})
	}
	return nil
}

func (t *turn) request() *llm.CompletionRequest {
	return &llm.CompletionRequest{
		Model:       t.settings.Model,
		Messages:    t.messages,
		MaxTokens:   t.settings.MaxTokens,
		Temperature: t.settings.Temperature,
	}
}

func (t *turn) chunk(text string) error {
	if text == "" {
		return nil
	}
	t.response.WriteString(text)
	return t.g.emit(model.StreamEvent{Type: model.EventChunk, Content: text})
}

func (t *turn) streamFunctions(ctx context.Context) (*firstCall, error) {
	o := t.o
	ctx, span := o.tracer.Start(ctx, "llm.stream", trace.WithAttributes(attribute.String("llm.mode", "functions")))
	defer span.End()
	started := time.Now()

	call := newFirstCall(o.opts.MaxFunctionArgsBytes)
	_, err := t.client.StreamWithFunctions(ctx, t.request(), o.Catalog, func(ev llm.StreamEvent) error {
		switch ev.Type {
		case llm.EventText:
			return t.chunk(ev.Text)
		case llm.EventToolCallDelta:
			return call.add(ev)
		}
		return nil
	})
	metrics.RecordLLMStream(t.client.Name(), t.settings.Model, time.Since(started).Seconds())
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, upstream(err)
	}

	if n := call.droppedCount(); n > 0 {
		metrics.FunctionCallsDropped.Add(float64(n))
		o.log.Warn("dropped extra function calls", "conversation_id", t.conv.ID, "serviced", string(call.name), "dropped", n)
	}
	if !call.present() {
		return nil, nil
	}
	return call, nil
}

// upstream classifies an unclassified model error. Errors the turn itself
// raised keep their code.
func upstream(err error) error {
	var classified *apperr.Error
	if errors.As(err, &classified) {
		return err
	}
	return apperr.Wrap(apperr.CodeUpstreamUnavailable, "language model request failed", err)
}

func (t *turn) service(ctx context.Context, call *firstCall) error {
	o := t.o
	name := string(call.name)
	if err := t.g.emit(model.StreamEvent{Type: model.EventFunctionStart, Name: name}); err != nil {
		return err
	}

	var result dispatch.Result
	args := map[string]any{}
	raw := strings.TrimSpace(string(call.args))
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			result = dispatch.Failure(apperr.Validation("invalid function arguments: %v", err))
		}
	}
	if result == nil {
		loc := o.Conversations.ResolveLocation(t.req.Timezone)
		result = o.Dispatcher.Execute(dispatch.WithLocation(ctx, loc), name, args)
	}

	if err := t.g.emit(model.StreamEvent{Type: model.EventFunctionResult, Name: name, Result: result}); err != nil {
		return err
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, "failed to encode function result", err)
	}
	id := call.id
	if id == "" {
		id = "call_" + uuid.NewString()
	}
	if raw == "" {
		raw = "{}"
	}
	t.messages = append(t.messages,
		llm.ChatMessage{Role: "assistant", Content: t.response.String(), ToolCalls: []llm.ToolCall{{ID: id, Name: name, Arguments: raw}}},
		llm.ChatMessage{Role: "tool", Name: name, ToolCallID: id, Content: string(encoded)},
	)

	return t.narrate(ctx)
}

func (t *turn) narrate(ctx context.Context) error {
	o := t.o
	ctx, span := o.tracer.Start(ctx, "llm.stream", trace.WithAttributes(attribute.String("llm.mode", "narration")))
	defer span.End()
	started := time.Now()

	if t.response.Len() > 0 {
		if err := t.chunk("\n\n"); err != nil {
			return err
		}
	}
	_, err := t.client.CompleteStream(ctx, t.request(), func(token string, _ int) error {
		return t.chunk(token)
	})
	metrics.RecordLLMStream(t.client.Name(), t.settings.Model, time.Since(started).Seconds())
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return upstream(err)
	}
	return nil
}

func (t *turn) finish(ctx context.Context) error {
	o := t.o
	content := t.response.String()
	if strings.TrimSpace(content) != "" {
		if _, err := o.Conversations.Append(ctx, t.conv, model.RoleAssistant, content); err != nil {
			return err
		}
	}

	if t.conv.Title == nil || *t.conv.Title == "" {
		title := o.Conversations.GenerateTitle(ctx, snapshotCompleter{t.client, t.settings}, t.req.Message, content)
		if err := o.Conversations.SetTitle(ctx, t.conv.ID, title); err != nil {
			return err
		}
		t.conv.Title = &title
		if err := t.g.emit(model.StreamEvent{Type: model.EventTitleGenerated, Title: title}); err != nil {
			return err
		}
	}

	if err := t.g.emit(model.StreamEvent{Type: model.EventDone, Content: content}); err != nil {
		return err
	}

	o.maybeExtract(ctx, t.conv.ID)
	return nil
}

// snapshotCompleter pins completions to the turn's settings.
type snapshotCompleter struct {
	client   llm.Client
	settings config.LLMSettings
}

func (c snapshotCompleter) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	out := *req
	if out.Model == "" {
		out.Model = c.settings.Model
	}
	return c.client.Complete(ctx, &out)
}

func (o *Orchestrator) maybeExtract(ctx context.Context, convID uint) {
	if o.Memory == nil || o.opts.ExtractEvery <= 0 {
		return
	}
	count, err := o.Conversations.MessageCount(ctx, convID)
	if err != nil {
		o.log.Warn("failed to count messages", "conversation_id", convID, "error", err)
		return
	}
	if count == 0 || count%int64(o.opts.ExtractEvery) != 0 {
		return
	}

	o.background.Add(1)
	go func() {
		defer o.background.Done()
		o.extract(context.WithoutCancel(ctx), convID)
	}()
}

func (o *Orchestrator) extract(ctx context.Context, convID uint) {
	ctx, cancel := context.WithTimeout(ctx, o.opts.ExtractionTimeout)
	defer cancel()
	ctx, span := o.tracer.Start(ctx, "fact.extract", trace.WithAttributes(attribute.Int64("conversation.id", int64(convID))))
	defer span.End()

	defer func() {
		if rec := recover(); rec != nil {
			o.log.Error("fact extraction panicked", "conversation_id", convID, "panic", rec)
			metrics.FactExtractions.WithLabelValues("error").Inc()
		}
	}()

	unlock, ok, err := o.Locker.TryLock(ctx, fmt.Sprintf("extract:%d", convID), o.opts.ExtractionTimeout)
	if err != nil {
		o.log.Warn("extraction lock unavailable", "conversation_id", convID, "error", err)
		metrics.FactExtractions.WithLabelValues("error").Inc()
		return
	}
	if !ok {
		o.log.Debug("extraction already running", "conversation_id", convID)
		metrics.FactExtractions.WithLabelValues("skipped").Inc()
		return
	}
	defer unlock()

	facts, err := o.Memory.ExtractFacts(ctx, convID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		o.log.Warn("fact extraction failed", "conversation_id", convID, "error", err)
		metrics.FactExtractions.WithLabelValues("error").Inc()
	} else {
		metrics.FactExtractions.WithLabelValues("ok").Inc()
		o.log.Debug("fact extraction finished", "conversation_id", convID, "facts", len(facts))
	}

	if _, err := o.Conversations.Summarize(ctx, convID); err != nil {
		o.log.Warn("summary failed", "conversation_id", convID, "error", err)
	}
}
