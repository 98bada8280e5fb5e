package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/capitalize-ai/assistant-engine/internal/apperr"
	"github.com/capitalize-ai/assistant-engine/internal/llm"
	"github.com/capitalize-ai/assistant-engine/internal/model"
	"github.com/capitalize-ai/assistant-engine/internal/store"
	"github.com/capitalize-ai/assistant-engine/pkg/logger"
	"github.com/capitalize-ai/assistant-engine/pkg/metrics"
)

const (
	defaultContextMessages = 20
	maxTitleRunes          = 50
)

const personaPrompt = `You are %[1]s, a personal executive assistant and chief of staff to %[2]s.

Tone: calm, precise and polite. Confident without arrogance. Narrate information naturally instead of dumping lists. Respond in the same language as the user.

Check first: never delete data, complete tasks, send communications or alter schedules without explicit confirmation. When an action needs confirmation, present the preview naturally and wait for a clear yes, then call the function again with confirmed set to true.

## Current Date Information
- Timezone: %[3]s
- Current time: %[4]s
- Today's date: %[5]s (%[6]s)
- Tomorrow's date: %[7]s (%[8]s)

Always resolve relative dates such as "today" or "tomorrow" to exact dates before calling a function. After executing any function, reply conversationally.`

// ConversationOptions configures ConversationService.
type ConversationOptions struct {
	AssistantName      string
	UserName           string
	DefaultTimezone    string
	MaxContextMessages int
	SummaryThreshold   int
}

// ConversationService is the context manager: it owns conversations and
// their messages and assembles what the model sees.
type ConversationService struct {
	repo        store.ConversationRepo
	llm         Completer
	opts        ConversationOptions
	defaultZone *time.Location
	log         *logger.Logger
	now         Clock
}

// NewConversationService creates a ConversationService. completer may be
// nil, which disables summaries.
func NewConversationService(repo store.ConversationRepo, completer Completer, opts ConversationOptions, log *logger.Logger) *ConversationService {
	if opts.MaxContextMessages <= 0 {
		opts.MaxContextMessages = defaultContextMessages
	}
	if opts.AssistantName == "" {
		opts.AssistantName = "SPEDA"
	}
	if opts.UserName == "" {
		opts.UserName = "the user"
	}
	zone, err := time.LoadLocation(opts.DefaultTimezone)
	if err != nil || opts.DefaultTimezone == "" {
		zone = time.UTC
	}
	return &ConversationService{
		repo:        repo,
		llm:         completer,
		opts:        opts,
		defaultZone: zone,
		log:         log.With("service", "ConversationService"),
		now:         time.Now,
	}
}

// SetClock replaces the time source.
func (s *ConversationService) SetClock(now Clock) {
	s.now = now
}

// GetOrCreate returns the conversation with id, or a new empty one when id
// is nil or unknown.
func (s *ConversationService) GetOrCreate(ctx context.Context, id *uint) (*model.Conversation, error) {
	if id != nil && *id != 0 {
		conv, err := s.repo.Get(ctx, *id)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, storageErr(err)
		}
		s.log.Debug("conversation not found, creating new", "conversation_id", *id)
	}

	conv := &model.Conversation{}
	if err := s.repo.Create(ctx, conv); err != nil {
		return nil, storageErr(err)
	}
	s.log.Info("conversation created", "conversation_id", conv.ID)
	return conv, nil
}

// Get returns a conversation with its messages.
func (s *ConversationService) Get(ctx context.Context, id uint) (*model.Conversation, error) {
	found, err := s.repo.Get(ctx, id)
	conv, err := lookup(found, err, fmt.Sprintf("Conversation %d not found", id))
	if err != nil {
		return nil, err
	}
	msgs, err := s.repo.Messages(ctx, id)
	if err != nil {
		return nil, storageErr(err)
	}
	conv.Messages = msgs
	conv.MessageCount = int64(len(msgs))
	return conv, nil
}

// List returns conversations newest first.
func (s *ConversationService) List(ctx context.Context, limit, offset int) (*model.ListConversationsResponse, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	convs, total, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, storageErr(err)
	}
	if convs == nil {
		convs = []model.Conversation{}
	}
	return &model.ListConversationsResponse{
		Conversations: convs,
		Total:         total,
		HasMore:       int64(offset+len(convs)) < total,
	}, nil
}

// Delete removes a conversation and all of its messages.
func (s *ConversationService) Delete(ctx context.Context, id uint) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("Conversation %d not found", id)
		}
		return storageErr(err)
	}
	s.log.Info("conversation deleted", "conversation_id", id)
	return nil
}

// Append persists one message. Only the role is validated.
func (s *ConversationService) Append(ctx context.Context, conv *model.Conversation, role model.Role, content string) (*model.Message, error) {
	if role == "" {
		return nil, apperr.Validation("message role is required")
	}
	msg := &model.Message{ConversationID: conv.ID, Role: role, Content: content, CreatedAt: s.now().UTC()}
	if err := s.repo.AppendMessage(ctx, msg); err != nil {
		return nil, storageErr(err)
	}
	metrics.MessagesTotal.WithLabelValues(string(role)).Inc()
	return msg, nil
}

// WindowedContext returns the last max messages in order. max <= 0 uses
// the configured default.
func (s *ConversationService) WindowedContext(ctx context.Context, conv *model.Conversation, max int) ([]model.ContextMessage, error) {
	if max <= 0 {
		max = s.opts.MaxContextMessages
	}
	msgs, err := s.repo.Messages(ctx, conv.ID)
	if err != nil {
		return nil, storageErr(err)
	}
	if len(msgs) > max {
		msgs = msgs[len(msgs)-max:]
	}
	out := make([]model.ContextMessage, len(msgs))
	for i, m := range msgs {
		out[i] = model.ContextMessage{Role: m.Role, Content: m.Content}
	}
	return out, nil
}

// ResolveLocation loads timezone, falling back to the default zone.
func (s *ConversationService) ResolveLocation(timezone string) *time.Location {
	if timezone == "" {
		return s.defaultZone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		s.log.Debug("unknown timezone, using default", "timezone", timezone)
		return s.defaultZone
	}
	return loc
}

// BuildSystemPrompt renders the persona for timezone at the current time.
func (s *ConversationService) BuildSystemPrompt(timezone string) string {
	loc := s.ResolveLocation(timezone)
	now := s.now().In(loc)
	tomorrow := now.AddDate(0, 0, 1)
	return fmt.Sprintf(personaPrompt,
		s.opts.AssistantName,
		s.opts.UserName,
		loc.String(),
		now.Format("2006-01-02 15:04"),
		now.Format("2006-01-02"), now.Weekday(),
		tomorrow.Format("2006-01-02"), tomorrow.Weekday(),
	)
}

// SetTitle stores a conversation title.
func (s *ConversationService) SetTitle(ctx context.Context, id uint, title string) error {
	if err := s.repo.SetTitle(ctx, id, title); err != nil {
		return storageErr(err)
	}
	return nil
}

// MessageCount returns the number of stored messages.
func (s *ConversationService) MessageCount(ctx context.Context, id uint) (int64, error) {
	n, err := s.repo.CountMessages(ctx, id)
	if err != nil {
		return 0, storageErr(err)
	}
	return n, nil
}

// RecentContext renders the most recent other conversations for
// continuity. It returns an empty string when there are none.
func (s *ConversationService) RecentContext(ctx context.Context, excludeID uint, limit int) (string, error) {
	if limit <= 0 {
		return "", nil
	}
	convs, err := s.repo.Recent(ctx, excludeID, limit)
	if err != nil {
		return "", storageErr(err)
	}

	var lines []string
	for _, c := range convs {
		gist := ptrValue(c.Summary)
		if gist == "" {
			gist = ptrValue(c.Title)
		}
		if gist == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", c.UpdatedAt.Format("2006-01-02"), gist))
	}
	if len(lines) == 0 {
		return "", nil
	}
	return "## Recent Conversations\n" + strings.Join(lines, "\n"), nil
}

// Summarize stores an LLM summary once the conversation reaches the
// configured threshold. It returns the empty string when below it.
func (s *ConversationService) Summarize(ctx context.Context, id uint) (string, error) {
	if s.llm == nil || s.opts.SummaryThreshold <= 0 {
		return "", nil
	}
	msgs, err := s.repo.Messages(ctx, id)
	if err != nil {
		return "", storageErr(err)
	}
	if len(msgs) < s.opts.SummaryThreshold {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("Summarize this conversation in 2-3 sentences, focusing on key decisions and outcomes:\n\n")
	for _, m := range msgs {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}

	resp, err := s.llm.Complete(ctx, &llm.CompletionRequest{
		Messages: []llm.ChatMessage{
			{Role: "system", Content: "You are a summarization assistant. Be concise."},
			{Role: "user", Content: b.String()},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return "", apperr.Wrap(apperr.CodeUpstreamUnavailable, "summary generation failed", err)
	}

	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		return "", nil
	}
	if err := s.repo.SetSummary(ctx, id, summary); err != nil {
		return "", storageErr(err)
	}
	s.log.Info("conversation summarized", "conversation_id", id, "messages", len(msgs))
	return summary, nil
}

// GenerateTitle asks the model for a short title from the first exchange.
// Any failure or empty output yields model.DefaultTitle.
func (s *ConversationService) GenerateTitle(ctx context.Context, c Completer, userMsg, assistantMsg string) string {
	if c == nil {
		return model.DefaultTitle
	}
	prompt := fmt.Sprintf(`Generate a short, descriptive title (2-5 words) for a conversation that started with this exchange:

User: %s
Assistant: %s

Rules:
- Use the same language as the user message
- No quotes or punctuation marks
- Capture the main topic or intent

Just output the title, nothing else.`, userMsg, truncateRunes(assistantMsg, 200))

	resp, err := c.Complete(ctx, &llm.CompletionRequest{
		Messages:    []llm.ChatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   30,
		Temperature: 0.7,
	})
	if err != nil {
		s.log.Warn("title generation failed", "error", err)
		return model.DefaultTitle
	}
	return CleanTitle(resp.Content)
}

// CleanTitle strips quotes and whitespace and bounds the length. An empty
// result becomes model.DefaultTitle.
func CleanTitle(raw string) string {
	title := strings.Trim(strings.TrimSpace(raw), `"'`+"`")
	title = strings.TrimSpace(strings.SplitN(title, "\n", 2)[0])
	if r := []rune(title); len(r) > maxTitleRunes {
		title = strings.TrimSpace(string(r[:maxTitleRunes]))
	}
	if title == "" {
		return model.DefaultTitle
	}
	return title
}
