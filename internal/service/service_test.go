package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/assistant-engine/internal/apperr"
	"github.com/capitalize-ai/assistant-engine/internal/integrations"
	"github.com/capitalize-ai/assistant-engine/internal/llm"
	"github.com/capitalize-ai/assistant-engine/internal/model"
	"github.com/capitalize-ai/assistant-engine/internal/store"
	"github.com/capitalize-ai/assistant-engine/internal/store/storetest"
	"github.com/capitalize-ai/assistant-engine/pkg/logger"
)

type recordingJournal struct {
	mu      sync.Mutex
	entries []model.JournalEntry
}

func (j *recordingJournal) Record(_ context.Context, e model.JournalEntry) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
}

func (j *recordingJournal) outcomes() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, len(j.entries))
	for i, e := range j.entries {
		out[i] = e.Operation + ":" + e.Outcome
	}
	return out
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []integrations.Outgoing
	err  error
}

func (m *fakeMailer) Send(_ context.Context, msg integrations.Outgoing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

type fakeCompleter struct {
	reply string
	err   error
	last  *llm.CompletionRequest
}

func (c *fakeCompleter) Complete(_ context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	c.last = req
	if c.err != nil {
		return nil, c.err
	}
	return &llm.CompletionResponse{Content: c.reply}, nil
}

type fixture struct {
	repos    store.Repos
	journal  *recordingJournal
	mailer   *fakeMailer
	tasks    *TaskService
	calendar *CalendarService
	emails   *EmailService
	memory   *MemoryService
	notes    *KnowledgeService
	convs    *ConversationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := storetest.Open(t)
	log := logger.NewNop()
	f := &fixture{
		repos:   store.NewRepos(db),
		journal: &recordingJournal{},
		mailer:  &fakeMailer{},
	}
	gate := NewGate(f.journal, log)
	f.tasks = NewTaskService(f.repos.Tasks, gate, f.journal, log)
	f.calendar = NewCalendarService(f.repos.Events, gate, f.journal, log)
	f.emails = NewEmailService(f.repos.Emails, f.mailer, gate, f.journal, log)
	f.memory = NewMemoryService(f.repos.Memories, f.repos.Conversations, nil, 5, f.journal, log)
	f.notes = NewKnowledgeService(f.repos.Notes, f.journal, log)
	f.convs = NewConversationService(f.repos.Conversations, nil, ConversationOptions{
		DefaultTimezone:    "Europe/Istanbul",
		MaxContextMessages: 20,
		SummaryThreshold:   4,
	}, log)
	return f
}

func taskID(t *testing.T, r *model.ActionResult) uint {
	t.Helper()
	require.Equal(t, model.ActionCreated, r.Kind, r.Message)
	return r.Payload["task"].(*model.Task).ID
}

func TestPayRentScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	due := time.Now().Add(24 * time.Hour)
	id := taskID(t, f.tasks.Create(ctx, model.CreateTaskRequest{Title: "Pay rent", DueDate: &due}))

	r := f.tasks.Complete(ctx, id, false)
	assert.Equal(t, model.ActionConfirmationRequired, r.Kind)
	assert.False(t, r.Success())
	task, err := f.tasks.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.TaskPending, task.Status, "unconfirmed complete must not mutate")

	r = f.tasks.Complete(ctx, id, true)
	require.Equal(t, model.ActionCompleted, r.Kind, r.Message)
	task, err = f.tasks.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.TaskCompleted, task.Status)
	assert.NotNil(t, task.CompletedAt)

	r = f.tasks.Complete(ctx, id, true)
	assert.Equal(t, model.ActionError, r.Kind)
	assert.Equal(t, apperr.CodeAlreadyTerminal, r.Code)

	r = f.tasks.Reopen(ctx, id)
	assert.Equal(t, model.ActionUpdated, r.Kind)

	assert.Equal(t, []string{
		"create:created",
		"complete:confirmation_required",
		"complete:completed",
		"complete:already_terminal",
		"reopen:updated",
	}, f.journal.outcomes())
}

func TestDeleteTaskGate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := taskID(t, f.tasks.Create(ctx, model.CreateTaskRequest{Title: "Renew passport"}))

	r := f.tasks.Delete(ctx, id, false)
	require.Equal(t, model.ActionConfirmationRequired, r.Kind)
	assert.Equal(t, "delete", r.Payload["action"])
	assert.Contains(t, r.Message, "This cannot be undone.")
	_, err := f.tasks.Get(ctx, id)
	require.NoError(t, err)

	r = f.tasks.Delete(ctx, id, true)
	require.Equal(t, model.ActionDeleted, r.Kind)
	_, err = f.tasks.Get(ctx, id)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))

	for _, confirmed := range []bool{false, true} {
		r = f.tasks.Delete(ctx, id, confirmed)
		assert.Equal(t, apperr.CodeNotFound, r.Code)
	}
}

func TestTaskValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bad := 9
	cases := []model.CreateTaskRequest{
		{Title: "   "},
		{Title: strings.Repeat("x", 501)},
		{Title: "ok", Priority: &bad},
	}
	for _, req := range cases {
		r := f.tasks.Create(ctx, req)
		assert.Equal(t, apperr.CodeValidation, r.Code)
	}
}

func TestOverdueAndDueSoon(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	past := time.Now().Add(-48 * time.Hour)
	soon := time.Now().Add(3 * time.Hour)
	later := time.Now().Add(10 * 24 * time.Hour)
	taskID(t, f.tasks.Create(ctx, model.CreateTaskRequest{Title: "late", DueDate: &past}))
	taskID(t, f.tasks.Create(ctx, model.CreateTaskRequest{Title: "soon", DueDate: &soon}))
	taskID(t, f.tasks.Create(ctx, model.CreateTaskRequest{Title: "later", DueDate: &later}))

	overdue, err := f.tasks.Overdue(ctx)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, "late", overdue[0].Title)

	dueSoon, err := f.tasks.DueSoon(ctx, 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, dueSoon, 1)
	assert.Equal(t, "soon", dueSoon[0].Title)
}

func TestCalendarConflictScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	first := f.calendar.Create(ctx, model.CreateEventRequest{Title: "Standup", StartTime: day.Add(10 * time.Hour)})
	require.Equal(t, model.ActionCreated, first.Kind, first.Message)
	assert.Empty(t, first.Payload["conflicts"])

	endAt := day.Add(11*time.Hour + 30*time.Minute)
	second := f.calendar.Create(ctx, model.CreateEventRequest{
		Title:     "Design review",
		StartTime: day.Add(10*time.Hour + 30*time.Minute),
		EndTime:   &endAt,
	})
	require.Equal(t, model.ActionCreated, second.Kind, "overlaps are advisory")
	conflicts := second.Payload["conflicts"].([]model.EventConflict)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "Overlaps with 'Standup' (10:00 - 11:00)", conflicts[0].Message)
	assert.Contains(t, second.Message, "(Warning: overlaps with 'Standup')")

	touching := f.calendar.Create(ctx, model.CreateEventRequest{Title: "Lunch", StartTime: day.Add(12 * time.Hour)})
	assert.Empty(t, touching.Payload["conflicts"])

	// Moving the standup onto itself does not self-conflict.
	ev := first.Payload["event"].(*model.CalendarEvent)
	newStart := day.Add(9 * time.Hour)
	moved := f.calendar.Update(ctx, ev.ID, model.UpdateEventRequest{StartTime: &newStart})
	require.Equal(t, model.ActionUpdated, moved.Kind)
	assert.Empty(t, moved.Payload["conflicts"])
}

func TestCalendarDeleteGateAndNextSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	r := f.calendar.Create(ctx, model.CreateEventRequest{Title: "Focus", StartTime: day.Add(9 * time.Hour)})
	ev := r.Payload["event"].(*model.CalendarEvent)

	slot, err := f.calendar.NextSlot(ctx, time.Hour, day.Add(9*time.Hour+10*time.Minute))
	require.NoError(t, err)
	assert.True(t, slot.Equal(day.Add(10*time.Hour)), slot.String())

	preview := f.calendar.Delete(ctx, ev.ID, false)
	require.Equal(t, model.ActionConfirmationRequired, preview.Kind)
	assert.Contains(t, preview.Payload, "start_time")

	done := f.calendar.Delete(ctx, ev.ID, true)
	assert.Equal(t, model.ActionDeleted, done.Kind)
	again := f.calendar.Delete(ctx, ev.ID, true)
	assert.Equal(t, apperr.CodeNotFound, again.Code)

	_, err = f.calendar.NextSlot(ctx, 0, day)
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
}

func draft(t *testing.T, f *fixture) uint {
	t.Helper()
	r := f.emails.Draft(context.Background(), model.DraftEmailRequest{
		To:      "ayse@example.com",
		Subject: "Thesis draft",
		Body:    strings.Repeat("a", 250),
	})
	require.Equal(t, model.ActionDrafted, r.Kind, r.Message)
	return r.Payload["email_id"].(uint)
}

func TestEmailDraftPendingSent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := draft(t, f)

	r := f.emails.Send(ctx, id, false)
	require.Equal(t, model.ActionConfirmationRequired, r.Kind)
	assert.Equal(t, "send_email", r.Payload["action"])
	assert.Equal(t, strings.Repeat("a", 200)+"...", r.Payload["preview"])
	assert.Equal(t, model.EmailPendingConfirmation, r.Payload["status"])
	assert.Empty(t, f.mailer.sent)

	pending, err := f.emails.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, model.EmailPendingConfirmation, pending[0].Status)

	r = f.emails.Send(ctx, id, true)
	require.Equal(t, model.ActionSent, r.Kind, r.Message)
	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, "ayse@example.com", f.mailer.sent[0].To)

	email, err := f.emails.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.EmailSent, email.Status)
	assert.NotNil(t, email.SentAt)

	for _, confirmed := range []bool{false, true} {
		r = f.emails.Send(ctx, id, confirmed)
		assert.Equal(t, apperr.CodeAlreadyTerminal, r.Code)
	}
	assert.Len(t, f.mailer.sent, 1, "a sent email is never transmitted twice")
}

func TestEmailSendFailureMarksFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := draft(t, f)
	f.mailer.err = errors.New("connection refused")

	r := f.emails.Send(ctx, id, true)
	assert.Equal(t, apperr.CodeUpstreamUnavailable, r.Code)
	email, err := f.emails.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.EmailFailed, email.Status)
}

// blockingMailer holds each transmission until released.
type blockingMailer struct {
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (m *blockingMailer) Send(context.Context, integrations.Outgoing) error {
	m.calls.Add(1)
	m.entered <- struct{}{}
	<-m.release
	return nil
}

type countingMailer struct {
	calls atomic.Int32
}

func (m *countingMailer) Send(context.Context, integrations.Outgoing) error {
	m.calls.Add(1)
	return nil
}

// staleEmails serves a snapshot for the first reads, as a caller that
// loaded the row before a concurrent write would see it.
type staleEmails struct {
	store.EmailRepo
	snapshot model.Email
	stale    int
}

func (r *staleEmails) Get(ctx context.Context, id uint) (*model.Email, error) {
	if r.stale > 0 {
		r.stale--
		e := r.snapshot
		return &e, nil
	}
	return r.EmailRepo.Get(ctx, id)
}

func TestEmailSendInFlightBlocksOtherCalls(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := draft(t, f)

	mailer := &blockingMailer{entered: make(chan struct{}, 1), release: make(chan struct{})}
	log := logger.NewNop()
	svc := NewEmailService(f.repos.Emails, mailer, NewGate(f.journal, log), f.journal, log)

	first := make(chan *model.ActionResult, 1)
	go func() { first <- svc.Send(ctx, id, true) }()
	<-mailer.entered

	for _, confirmed := range []bool{true, false} {
		r := svc.Send(ctx, id, confirmed)
		assert.Equal(t, apperr.CodeAlreadyTerminal, r.Code, "confirmed=%v", confirmed)
	}
	subject := "changed mid-send"
	r := svc.Update(ctx, id, model.UpdateEmailRequest{Subject: &subject})
	assert.Equal(t, apperr.CodeAlreadyTerminal, r.Code)
	r = svc.Delete(ctx, id, true)
	assert.Equal(t, apperr.CodeAlreadyTerminal, r.Code)

	close(mailer.release)
	r = <-first
	require.Equal(t, model.ActionSent, r.Kind, r.Message)
	assert.EqualValues(t, 1, mailer.calls.Load())

	email, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.EmailSent, email.Status)
	assert.Equal(t, "Thesis draft", email.Subject)
}

func TestEmailConcurrentConfirmedSendTransmitsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := draft(t, f)

	mailer := &countingMailer{}
	log := logger.NewNop()
	svc := NewEmailService(f.repos.Emails, mailer, NewGate(f.journal, log), f.journal, log)

	const callers = 8
	results := make([]*model.ActionResult, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = svc.Send(ctx, id, true)
		}()
	}
	wg.Wait()

	sent := 0
	for _, r := range results {
		if r.Kind == model.ActionSent {
			sent++
			continue
		}
		assert.Equal(t, apperr.CodeAlreadyTerminal, r.Code, r.Message)
	}
	assert.Equal(t, 1, sent)
	assert.EqualValues(t, 1, mailer.calls.Load())
}

func TestEmailStaleReadCannotRevertSent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := draft(t, f)

	snapshot, err := f.emails.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, model.ActionSent, f.emails.Send(ctx, id, true).Kind)

	log := logger.NewNop()
	for _, confirmed := range []bool{false, true} {
		repo := &staleEmails{EmailRepo: f.repos.Emails, snapshot: *snapshot, stale: 1}
		svc := NewEmailService(repo, f.mailer, NewGate(f.journal, log), f.journal, log)
		r := svc.Send(ctx, id, confirmed)
		assert.Equal(t, apperr.CodeAlreadyTerminal, r.Code, "confirmed=%v", confirmed)
	}

	email, err := f.emails.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.EmailSent, email.Status)
	assert.Len(t, f.mailer.sent, 1)
}

func TestEmailFailedCanBeEditedAndRetried(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := draft(t, f)
	f.mailer.err = errors.New("connection refused")
	f.emails.Send(ctx, id, true)

	to := "ayse.yilmaz@example.com"
	r := f.emails.Update(ctx, id, model.UpdateEmailRequest{To: &to})
	require.Equal(t, model.ActionUpdated, r.Kind, r.Message)
	assert.Equal(t, model.EmailDraft, r.Payload["status"])

	f.mailer.err = nil
	r = f.emails.Send(ctx, id, true)
	require.Equal(t, model.ActionSent, r.Kind, r.Message)
	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, to, f.mailer.sent[0].To)
}

func TestEmailUpdateResetsPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := draft(t, f)
	f.emails.Send(ctx, id, false)

	subject := "Thesis draft v2"
	r := f.emails.Update(ctx, id, model.UpdateEmailRequest{Subject: &subject})
	require.Equal(t, model.ActionUpdated, r.Kind)
	assert.Equal(t, model.EmailDraft, r.Payload["status"])

	f.emails.Send(ctx, id, true)
	r = f.emails.Update(ctx, id, model.UpdateEmailRequest{Subject: &subject})
	assert.Equal(t, apperr.CodeAlreadyTerminal, r.Code)
}

func TestEmailDeleteGatedOnlyWhenSent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	draftID := draft(t, f)
	r := f.emails.Delete(ctx, draftID, false)
	assert.Equal(t, model.ActionDeleted, r.Kind, "drafts delete directly")

	sentID := draft(t, f)
	f.emails.Send(ctx, sentID, true)
	r = f.emails.Delete(ctx, sentID, false)
	require.Equal(t, model.ActionConfirmationRequired, r.Kind)
	_, err := f.emails.Get(ctx, sentID)
	require.NoError(t, err)

	r = f.emails.Delete(ctx, sentID, true)
	assert.Equal(t, model.ActionDeleted, r.Kind)
}

func TestEmailValidation(t *testing.T) {
	f := newFixture(t)
	r := f.emails.Draft(context.Background(), model.DraftEmailRequest{To: "not an address", Subject: "x"})
	assert.Equal(t, apperr.CodeValidation, r.Code)
	r = f.emails.Draft(context.Background(), model.DraftEmailRequest{Mailbox: "moon", To: "a@b.co", Subject: "x"})
	assert.Equal(t, apperr.CodeValidation, r.Code)
}

func TestWindowedContextIsSuffix(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv, err := f.convs.GetOrCreate(ctx, nil)
	require.NoError(t, err)

	for i := 0; i < 30; i++ {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		_, err := f.convs.Append(ctx, conv, role, fmt.Sprintf("m%d", i))
		require.NoError(t, err)
	}

	for _, max := range []int{1, 7, 20, 30, 45} {
		window, err := f.convs.WindowedContext(ctx, conv, max)
		require.NoError(t, err)
		want := max
		if want > 30 {
			want = 30
		}
		require.Len(t, window, want)
		for i, m := range window {
			assert.Equal(t, fmt.Sprintf("m%d", 30-want+i), m.Content)
		}
	}

	window, err := f.convs.WindowedContext(ctx, conv, 0)
	require.NoError(t, err)
	assert.Len(t, window, 20)
	assert.Equal(t, "m29", window[19].Content)
}

func TestGetOrCreateUnknownIDCreates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	missing := uint(999)
	conv, err := f.convs.GetOrCreate(ctx, &missing)
	require.NoError(t, err)
	assert.NotEqual(t, missing, conv.ID)

	same, err := f.convs.GetOrCreate(ctx, &conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, same.ID)
}

func TestAppendRequiresRole(t *testing.T) {
	f := newFixture(t)
	conv, err := f.convs.GetOrCreate(context.Background(), nil)
	require.NoError(t, err)
	_, err = f.convs.Append(context.Background(), conv, "", "hi")
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
}

func TestBuildSystemPromptTimezone(t *testing.T) {
	f := newFixture(t)
	f.convs.SetClock(func() time.Time { return time.Date(2026, 1, 5, 7, 30, 0, 0, time.UTC) })

	prompt := f.convs.BuildSystemPrompt("America/New_York")
	assert.Contains(t, prompt, "America/New_York")
	assert.Contains(t, prompt, "2026-01-05 02:30")

	fallback := f.convs.BuildSystemPrompt("Mars/Olympus")
	assert.Contains(t, fallback, "Europe/Istanbul")
	assert.Contains(t, fallback, "2026-01-05 10:30")
	assert.Contains(t, fallback, "2026-01-06 (Tuesday)")
}

func TestDeleteConversationCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv, _ := f.convs.GetOrCreate(ctx, nil)
	_, err := f.convs.Append(ctx, conv, model.RoleUser, "hello")
	require.NoError(t, err)

	require.NoError(t, f.convs.Delete(ctx, conv.ID))
	_, err = f.convs.Get(ctx, conv.ID)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
	assert.True(t, apperr.Is(f.convs.Delete(ctx, conv.ID), apperr.CodeNotFound))
}

func TestRecentContextAndSummarize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	completer := &fakeCompleter{reply: "Planned the thesis defense."}
	f.convs.llm = completer

	old, _ := f.convs.GetOrCreate(ctx, nil)
	require.NoError(t, f.convs.SetTitle(ctx, old.ID, "Thesis Planning"))
	current, _ := f.convs.GetOrCreate(ctx, nil)

	text, err := f.convs.RecentContext(ctx, current.ID, 3)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "## Recent Conversations\n"))
	assert.Contains(t, text, "Thesis Planning")

	summary, err := f.convs.Summarize(ctx, old.ID)
	require.NoError(t, err)
	assert.Empty(t, summary, "below threshold")

	for i := 0; i < 4; i++ {
		_, err := f.convs.Append(ctx, old, model.RoleUser, "msg")
		require.NoError(t, err)
	}
	summary, err = f.convs.Summarize(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, "Planned the thesis defense.", summary)

	text, err = f.convs.RecentContext(ctx, current.ID, 3)
	require.NoError(t, err)
	assert.Contains(t, text, "Planned the thesis defense.")
}

func TestCleanTitle(t *testing.T) {
	assert.Equal(t, model.DefaultTitle, CleanTitle("  "))
	assert.Equal(t, "Weather Check", CleanTitle(`"Weather Check"`))
	assert.Equal(t, "First line", CleanTitle("First line\nsecond"))
	assert.Len(t, []rune(CleanTitle(strings.Repeat("ş", 80))), 50)
}

func TestGenerateTitleFallsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	assert.Equal(t, model.DefaultTitle, f.convs.GenerateTitle(ctx, nil, "hi", "hello"))
	assert.Equal(t, model.DefaultTitle, f.convs.GenerateTitle(ctx, &fakeCompleter{err: errors.New("down")}, "hi", "hello"))
	assert.Equal(t, "Greeting", f.convs.GenerateTitle(ctx, &fakeCompleter{reply: "Greeting"}, "hi", "hello"))
}

func TestMemoryStoreAndContext(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r := f.memory.Store(ctx, model.StoreMemoryRequest{Category: "Preferences", Key: "coffee", Value: "black", Importance: 42})
	require.Equal(t, model.ActionCreated, r.Kind)
	assert.Equal(t, 10, r.Payload["memory"].(*model.Memory).Importance)

	f.memory.Store(ctx, model.StoreMemoryRequest{Category: "preferences", Key: "coffee", Value: "flat white", Importance: 7})
	f.memory.Store(ctx, model.StoreMemoryRequest{Category: "work", Key: "office", Value: "Building B", Importance: 6})
	f.memory.Store(ctx, model.StoreMemoryRequest{Category: "trivia", Key: "shoe size", Value: "43", Importance: 2})

	mems, err := f.memory.List(ctx, "preferences")
	require.NoError(t, err)
	require.Len(t, mems, 1)
	assert.Equal(t, "flat white", mems[0].Value)

	text, err := f.memory.BuildContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "## User Memory\n\n### Preferences\n- coffee: flat white\n\n### Work\n- office: Building B", text)

	r = f.memory.Store(ctx, model.StoreMemoryRequest{Category: "x", Key: "", Value: "v"})
	assert.Equal(t, apperr.CodeValidation, r.Code)
	assert.Equal(t, apperr.CodeNotFound, f.memory.Delete(ctx, 12345).Code)
}

func TestParseFacts(t *testing.T) {
	assert.Nil(t, ParseFacts("NONE"))
	facts := ParseFacts("PREFERENCES|wake_time|07:00|8\nbad line\nwork|team|Platform|15\nx|y|z|notanumber\n- routine|gym|Mondays|0")
	require.Len(t, facts, 3)
	assert.Equal(t, model.StoreMemoryRequest{Category: "preferences", Key: "wake_time", Value: "07:00", Importance: 8}, facts[0])
	assert.Equal(t, 10, facts[1].Importance)
	assert.Equal(t, 5, facts[2].Importance)
}

func TestExtractFacts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	completer := &fakeCompleter{reply: "preferences|language|Turkish|8"}
	f.memory.llm = completer

	conv, _ := f.convs.GetOrCreate(ctx, nil)
	for i := 0; i < 4; i++ {
		_, _ = f.convs.Append(ctx, conv, model.RoleUser, fmt.Sprintf("line %d", i))
	}
	stored, err := f.memory.ExtractFacts(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, stored, "skipped under five messages")
	assert.Nil(t, completer.last)

	for i := 4; i < 25; i++ {
		_, _ = f.convs.Append(ctx, conv, model.RoleUser, fmt.Sprintf("line %d", i))
	}
	stored, err = f.memory.ExtractFacts(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	prompt := completer.last.Messages[1].Content
	assert.NotContains(t, prompt, "line 4\n", "only the last twenty messages are sent")
	assert.Contains(t, prompt, "line 24")

	mem, err := f.memory.Get(ctx, "preferences", "language")
	require.NoError(t, err)
	assert.Equal(t, "Turkish", mem.Value)
}

func TestKnowledge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r := f.notes.AddNote(ctx, model.AddNoteRequest{Content: "Gate code is 4411", Tags: []string{"home"}})
	require.Equal(t, model.ActionCreated, r.Kind)

	r = f.notes.AddKnowledge(ctx, model.AddNoteRequest{Content: "Use the staging cluster"})
	assert.Equal(t, apperr.CodeValidation, r.Code)

	title := "Deploy runbook"
	r = f.notes.AddKnowledge(ctx, model.AddNoteRequest{Title: &title, Content: "Use the staging cluster"})
	require.Equal(t, model.ActionCreated, r.Kind)

	hits, err := f.notes.Search(ctx, "GATE", 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	knowledge, err := f.notes.List(ctx, model.NoteKindKnowledge)
	require.NoError(t, err)
	require.Len(t, knowledge, 1)
	assert.Equal(t, model.ActionDeleted, f.notes.Delete(ctx, knowledge[0].ID).Kind)
}

type failingWeather struct{}

func (failingWeather) Current(context.Context, string) (*integrations.CurrentWeather, error) {
	return nil, errors.New("timeout")
}

func (failingWeather) Forecast(context.Context, string, int) ([]integrations.ForecastEntry, error) {
	return nil, errors.New("timeout")
}

func TestBriefingOmitsFailingSource(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	past := time.Now().Add(-2 * time.Hour)
	taskID(t, f.tasks.Create(ctx, model.CreateTaskRequest{Title: "late", DueDate: &past}))
	taskID(t, f.tasks.Create(ctx, model.CreateTaskRequest{Title: "open"}))
	draft(t, f)

	b, err := NewBriefingService(f.tasks, f.calendar, f.emails, failingWeather{}, nil, logger.NewNop()).Generate(ctx, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, []string{"weather"}, b.Unavailable)
	require.Len(t, b.TasksOverdue, 1)
	require.Len(t, b.TasksPending, 1, "overdue tasks are not repeated as pending")
	assert.Equal(t, "open", b.TasksPending[0].Title)
	assert.Len(t, b.PendingEmails, 1)
	assert.Contains(t, b.Summary(), "overdue: late")
}

type staticNews struct{ articles []integrations.Article }

func (n staticNews) TopHeadlines(_ context.Context, q integrations.HeadlinesQuery) ([]integrations.Article, error) {
	if q.Max < len(n.articles) {
		return n.articles[:q.Max], nil
	}
	return n.articles, nil
}

func (staticNews) Search(context.Context, integrations.NewsSearch) ([]integrations.Article, error) {
	return nil, errors.New("not used")
}

func TestBriefingIncludesHeadlines(t *testing.T) {
	f := newFixture(t)
	news := staticNews{articles: []integrations.Article{
		{Title: "Ferry schedule changes", Source: "Hürriyet"},
		{Title: "Rain expected"},
	}}
	b, err := NewBriefingService(f.tasks, f.calendar, f.emails, nil, news, logger.NewNop()).Generate(context.Background(), time.UTC)
	require.NoError(t, err)
	assert.Empty(t, b.Unavailable)
	require.Len(t, b.Headlines, 2)
	summary := b.Summary()
	assert.Contains(t, summary, "Top headlines:\n1. Ferry schedule changes (Hürriyet)\n2. Rain expected")
}

func TestGreeting(t *testing.T) {
	at := func(h int) time.Time { return time.Date(2026, 1, 1, h, 0, 0, 0, time.UTC) }
	assert.Equal(t, "Good morning! Here's your briefing for today.", Greeting(at(8), "UTC"))
	assert.Equal(t, "Good evening! Here's your briefing for today.", Greeting(at(22), "UTC"))
	assert.True(t, strings.HasPrefix(Greeting(at(8), "Europe/Istanbul"), "Günaydın"))
}
