package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/capitalize-ai/assistant-engine/internal/apperr"
	"github.com/capitalize-ai/assistant-engine/internal/llm"
	"github.com/capitalize-ai/assistant-engine/internal/model"
	"github.com/capitalize-ai/assistant-engine/internal/store"
	"github.com/capitalize-ai/assistant-engine/pkg/logger"
)

const (
	resourceMemory = "memory"

	defaultImportance = 5
	minExtractMsgs    = 5
	extractWindow     = 20
)

// Completer runs one non-streaming completion.
type Completer interface {
	Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error)
}

const extractionPrompt = `Analyze this conversation and extract any important facts about the user that should be remembered long-term.

Focus on:
- Preferences (communication style, scheduling preferences)
- Important information (job, relationships, locations)
- Routines (wake time, work schedule)
- Key decisions made

Format each fact on its own line as:
CATEGORY|KEY|VALUE|IMPORTANCE(1-10)

Only include genuinely important facts. If nothing is worth remembering, respond with "NONE".

Conversation:
`

// MemoryService stores durable facts about the user and renders them into
// the model context.
type MemoryService struct {
	memories      store.MemoryRepo
	conversations store.ConversationRepo
	llm           Completer
	journal       Journal
	log           *logger.Logger
	minImportance int
}

// NewMemoryService creates a MemoryService. completer may be nil, which
// disables fact extraction.
func NewMemoryService(memories store.MemoryRepo, conversations store.ConversationRepo, completer Completer, minImportance int, journal Journal, log *logger.Logger) *MemoryService {
	if journal == nil {
		journal = NopJournal{}
	}
	if minImportance <= 0 {
		minImportance = defaultImportance
	}
	return &MemoryService{
		memories:      memories,
		conversations: conversations,
		llm:           completer,
		journal:       journal,
		log:           log.With("service", "MemoryService"),
		minImportance: minImportance,
	}
}

// Store upserts a fact keyed on (category, key).
func (s *MemoryService) Store(ctx context.Context, req model.StoreMemoryRequest) *model.ActionResult {
	mem := &model.Memory{
		Category:   strings.ToLower(strings.TrimSpace(req.Category)),
		Key:        strings.TrimSpace(req.Key),
		Value:      strings.TrimSpace(req.Value),
		Importance: clampImportance(req.Importance),
	}
	switch {
	case mem.Category == "":
		return s.done(ctx, "store", 0, model.ActionFailed(resourceMemory, apperr.Validation("memory category is required")))
	case mem.Key == "":
		return s.done(ctx, "store", 0, model.ActionFailed(resourceMemory, apperr.Validation("memory key is required")))
	case mem.Value == "":
		return s.done(ctx, "store", 0, model.ActionFailed(resourceMemory, apperr.Validation("memory value is required")))
	}

	if err := s.memories.Upsert(ctx, mem); err != nil {
		return s.done(ctx, "store", 0, model.ActionFailed(resourceMemory, storageErr(err)))
	}
	return s.done(ctx, "store", mem.ID, model.NewAction(model.ActionCreated, resourceMemory,
		fmt.Sprintf("I'll remember that %s is %s", mem.Key, mem.Value), map[string]any{"memory": mem}))
}

// Get returns the fact stored under category and key.
func (s *MemoryService) Get(ctx context.Context, category, key string) (*model.Memory, error) {
	mem, err := s.memories.Get(ctx, strings.ToLower(category), key)
	return lookup(mem, err, fmt.Sprintf("No memory for %s/%s", category, key))
}

// List returns all facts, or those of one category.
func (s *MemoryService) List(ctx context.Context, category string) ([]model.Memory, error) {
	mems, err := s.memories.List(ctx, strings.ToLower(strings.TrimSpace(category)))
	if err != nil {
		return nil, storageErr(err)
	}
	return mems, nil
}

// Important returns facts at or above the configured importance.
func (s *MemoryService) Important(ctx context.Context) ([]model.Memory, error) {
	mems, err := s.memories.Important(ctx, s.minImportance)
	if err != nil {
		return nil, storageErr(err)
	}
	return mems, nil
}

// Search matches query against keys and values.
func (s *MemoryService) Search(ctx context.Context, query string) ([]model.Memory, error) {
	if strings.TrimSpace(query) == "" {
		return nil, apperr.Validation("search query is required")
	}
	mems, err := s.memories.Search(ctx, query)
	if err != nil {
		return nil, storageErr(err)
	}
	return mems, nil
}

// Delete removes one fact.
func (s *MemoryService) Delete(ctx context.Context, id uint) *model.ActionResult {
	if err := s.memories.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = apperr.NotFound("Memory %d not found", id)
		} else {
			err = storageErr(err)
		}
		return s.done(ctx, "delete", id, model.ActionFailed(resourceMemory, err))
	}
	return s.done(ctx, "delete", id, model.NewAction(model.ActionDeleted, resourceMemory,
		fmt.Sprintf("Forgot memory %d", id), map[string]any{"id": id}))
}

// BuildContext renders important facts grouped by category. It returns an
// empty string when there is nothing to include.
func (s *MemoryService) BuildContext(ctx context.Context) (string, error) {
	mems, err := s.Important(ctx)
	if err != nil {
		return "", err
	}
	return renderMemory(mems), nil
}

func renderMemory(mems []model.Memory) string {
	if len(mems) == 0 {
		return ""
	}

	var order []string
	groups := make(map[string][]model.Memory)
	for _, m := range mems {
		if _, ok := groups[m.Category]; !ok {
			order = append(order, m.Category)
		}
		groups[m.Category] = append(groups[m.Category], m)
	}

	var b strings.Builder
	b.WriteString("## User Memory\n")
	for _, cat := range order {
		b.WriteString("\n### " + titleCase(cat) + "\n")
		for _, m := range groups[cat] {
			fmt.Fprintf(&b, "- %s: %s\n", m.Key, m.Value)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// ExtractFacts asks the model for durable facts in the recent part of a
// conversation and stores them. Conversations shorter than five messages
// are skipped.
func (s *MemoryService) ExtractFacts(ctx context.Context, conversationID uint) ([]model.Memory, error) {
	if s.llm == nil {
		return nil, nil
	}
	msgs, err := s.conversations.Messages(ctx, conversationID)
	if err != nil {
		return nil, storageErr(err)
	}
	if len(msgs) < minExtractMsgs {
		return nil, nil
	}
	if len(msgs) > extractWindow {
		msgs = msgs[len(msgs)-extractWindow:]
	}

	var transcript strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&transcript, "%s: %s\n", m.Role, m.Content)
	}

	resp, err := s.llm.Complete(ctx, &llm.CompletionRequest{
		Messages: []llm.ChatMessage{
			{Role: "system", Content: "You extract key facts from conversations for long-term memory."},
			{Role: "user", Content: extractionPrompt + transcript.String()},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeUpstreamUnavailable, "fact extraction failed", err)
	}

	var stored []model.Memory
	for _, req := range ParseFacts(resp.Content) {
		mem := &model.Memory{Category: req.Category, Key: req.Key, Value: req.Value, Importance: req.Importance}
		if err := s.memories.Upsert(ctx, mem); err != nil {
			s.log.Warn("failed to store extracted fact", "conversation_id", conversationID, "key", req.Key, "error", err)
			continue
		}
		stored = append(stored, *mem)
	}
	s.log.Info("facts extracted", "conversation_id", conversationID, "count", len(stored))
	return stored, nil
}

// ParseFacts reads CATEGORY|KEY|VALUE|IMPORTANCE lines. Malformed lines are
// skipped; a bare NONE yields nothing.
func ParseFacts(text string) []model.StoreMemoryRequest {
	text = strings.TrimSpace(text)
	if strings.EqualFold(text, "NONE") {
		return nil
	}

	var out []model.StoreMemoryRequest
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimLeft(strings.TrimSpace(line), "-* ")
		parts := strings.Split(line, "|")
		if len(parts) != 4 {
			continue
		}
		importance, err := strconv.Atoi(strings.TrimSpace(parts[3]))
		if err != nil {
			continue
		}
		req := model.StoreMemoryRequest{
			Category:   strings.ToLower(strings.TrimSpace(parts[0])),
			Key:        strings.TrimSpace(parts[1]),
			Value:      strings.TrimSpace(parts[2]),
			Importance: clampImportance(importance),
		}
		if req.Category == "" || req.Key == "" || req.Value == "" {
			continue
		}
		out = append(out, req)
	}
	return out
}

func (s *MemoryService) done(ctx context.Context, op string, id uint, r *model.ActionResult) *model.ActionResult {
	recordAction(ctx, s.journal, s.log, op, id, r)
	return r
}

func clampImportance(v int) int {
	switch {
	case v == 0:
		return defaultImportance
	case v < 1:
		return 1
	case v > 10:
		return 10
	}
	return v
}

func titleCase(s string) string {
	words := strings.Fields(strings.ReplaceAll(s, "_", " "))
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}
