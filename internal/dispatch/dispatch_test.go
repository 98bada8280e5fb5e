package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/assistant-engine/internal/apperr"
	"github.com/capitalize-ai/assistant-engine/internal/integrations"
	"github.com/capitalize-ai/assistant-engine/internal/llm"
	"github.com/capitalize-ai/assistant-engine/internal/model"
	"github.com/capitalize-ai/assistant-engine/internal/service"
	"github.com/capitalize-ai/assistant-engine/internal/store"
	"github.com/capitalize-ai/assistant-engine/internal/store/storetest"
	"github.com/capitalize-ai/assistant-engine/pkg/logger"
)

func istanbul(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Istanbul")
	require.NoError(t, err)
	return loc
}

func newTestRegistry(t *testing.T) (*Registry, store.Repos) {
	t.Helper()
	log := logger.NewNop()
	repos := store.NewRepos(storetest.Open(t))
	gate := service.NewGate(nil, log)
	tasks := service.NewTaskService(repos.Tasks, gate, nil, log)
	calendar := service.NewCalendarService(repos.Events, gate, nil, log)
	emails := service.NewEmailService(repos.Emails, nil, gate, nil, log)
	fixed := time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC)

	reg, err := NewRegistry(Catalog(), log, Handlers(Deps{
		Tasks:     tasks,
		Calendar:  calendar,
		Emails:    emails,
		Memory:    service.NewMemoryService(repos.Memories, repos.Conversations, nil, 5, nil, log),
		Knowledge: service.NewKnowledgeService(repos.Notes, nil, log),
		Now:       func() time.Time { return fixed },
	})...)
	require.NoError(t, err)
	return reg, repos
}

func TestCatalogMatchesHandlers(t *testing.T) {
	_, err := NewRegistry(Catalog(), logger.NewNop(), Handlers(Deps{})...)
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, def := range Catalog() {
		assert.False(t, names[def.Name], "duplicate %s", def.Name)
		names[def.Name] = true
	}
	assert.Len(t, names, len(Handlers(Deps{})))
}

type pairArgs struct {
	A string `json:"a"`
	B int    `json:"b"`
}

func pairFn(context.Context, pairArgs) (Result, error) { return Result{}, nil }

func TestNewRegistryRejectsDrift(t *testing.T) {
	def := func(name string, required []string, props ...string) llm.FunctionDef {
		p := map[string]param{}
		for _, k := range props {
			p[k] = str(k)
		}
		return function(name, "", p, required...)
	}

	tests := []struct {
		name     string
		catalog  []llm.FunctionDef
		handlers []Handler
		want     string
	}{
		{"missing handler", []llm.FunctionDef{def("pair", nil, "a", "b"), def("other", nil)}, []Handler{Typed("pair", pairFn)}, "other: no handler"},
		{"extra handler", nil, []Handler{Typed("pair", pairFn)}, "pair: not in catalog"},
		{"property drift", []llm.FunctionDef{def("pair", nil, "a", "c")}, []Handler{Typed("pair", pairFn)}, "differ from argument fields"},
		{"required not a field", []llm.FunctionDef{def("pair", []string{"z"}, "a", "b")}, []Handler{Typed("pair", pairFn)}, `required "z"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.catalog, logger.NewNop(), tt.handlers...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := NewRegistry([]llm.FunctionDef{def("pair", []string{"a"}, "a", "b")}, logger.NewNop(), Typed("pair", pairFn))
	assert.NoError(t, err)
}

func TestExecuteUnknownFunction(t *testing.T) {
	reg, _ := newTestRegistry(t)
	res := reg.Execute(context.Background(), "launch_rocket", nil)
	assert.Equal(t, Result{"success": false, "error": "unknown function", "code": apperr.CodeNotFound}, res)
}

func TestExecuteContainsPanicsAndErrors(t *testing.T) {
	catalog := []llm.FunctionDef{
		function("boom", "", map[string]param{}),
		function("fail", "", map[string]param{}),
		function("pair", "", map[string]param{"a": str("a"), "b": integer("b")}),
	}
	reg, err := NewRegistry(catalog, logger.NewNop(),
		Typed("boom", func(context.Context, struct{}) (Result, error) { panic("kaboom") }),
		Typed("fail", func(context.Context, struct{}) (Result, error) { return nil, apperr.AlreadyTerminal("done already") }),
		Typed("pair", pairFn),
	)
	require.NoError(t, err)
	ctx := context.Background()

	res := reg.Execute(ctx, "boom", nil)
	assert.False(t, res.Success())
	assert.Equal(t, apperr.CodeInternal, res["code"])
	assert.Equal(t, "internal error", res["error"])

	res = reg.Execute(ctx, "fail", map[string]any{})
	assert.Equal(t, apperr.CodeAlreadyTerminal, res["code"])
	assert.Equal(t, "done already", res["error"])

	res = reg.Execute(ctx, "pair", map[string]any{"b": "not a number"})
	assert.Equal(t, apperr.CodeValidation, res["code"])

	res = reg.Execute(ctx, "pair", map[string]any{"a": "x", "b": 2})
	assert.Equal(t, Result{"success": true}, res)
}

func TestDateRangeDefaultsToEndOfDay(t *testing.T) {
	loc := istanbul(t)
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, loc)

	from, to, err := DateRange("2026-03-12", "", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 12, 0, 0, 0, 0, loc), from)
	assert.Equal(t, time.Date(2026, 3, 12, 23, 59, 59, 999999999, loc), to)

	from, to, err = DateRange("", "", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, loc), from)
	assert.Equal(t, 10, to.Day())

	_, to, err = DateRange("2026-03-12", "2026-03-14", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 14, 23, 59, 59, 999999999, loc), to)

	_, _, err = DateRange("2026-03-12", "2026-03-11", now)
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
}

func TestParseTimeFormats(t *testing.T) {
	loc := istanbul(t)
	tests := []struct {
		in       string
		want     time.Time
		dateOnly bool
	}{
		{"2026-03-12", time.Date(2026, 3, 12, 0, 0, 0, 0, loc), true},
		{"2026-03-12T10:30", time.Date(2026, 3, 12, 10, 30, 0, 0, loc), false},
		{"2026-03-12T10:30:15", time.Date(2026, 3, 12, 10, 30, 15, 0, loc), false},
		{"2026-03-12T07:30:00Z", time.Date(2026, 3, 12, 7, 30, 0, 0, time.UTC), false},
	}
	for _, tt := range tests {
		got, dateOnly, err := ParseTime(tt.in, loc)
		require.NoError(t, err, tt.in)
		assert.True(t, tt.want.Equal(got), tt.in)
		assert.Equal(t, tt.dateOnly, dateOnly, tt.in)
	}

	_, _, err := ParseTime("next tuesday", loc)
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
}

func TestIDDecodesNumbersAndStrings(t *testing.T) {
	var got taskIDArgs
	h := Typed("t", func(_ context.Context, a taskIDArgs) (Result, error) {
		got = a
		return nil, nil
	})
	_, err := h.call(context.Background(), []byte(`{"task_id":"42","confirmed":true}`))
	require.NoError(t, err)
	assert.Equal(t, ID(42), got.TaskID)
	assert.True(t, got.Confirmed)

	var id ID
	require.NoError(t, id.UnmarshalJSON([]byte(`7`)))
	assert.Equal(t, ID(7), id)
	assert.Error(t, id.UnmarshalJSON([]byte(`"seven"`)))
}

func TestTaskFunctionsThroughGate(t *testing.T) {
	reg, repos := newTestRegistry(t)
	ctx := WithLocation(context.Background(), istanbul(t))

	res := reg.Execute(ctx, "create_task", map[string]any{"title": "Pay rent", "due_date": "2026-03-12"})
	require.True(t, res.Success(), res)
	assert.Equal(t, model.ActionCreated, res["kind"])
	task := res["task"].(*model.Task)
	assert.Equal(t, time.Date(2026, 3, 12, 20, 59, 59, 999999999, time.UTC), task.DueDate.UTC())

	res = reg.Execute(ctx, "delete_task", map[string]any{"task_id": float64(task.ID)})
	assert.False(t, res.Success())
	assert.Equal(t, true, res["requires_confirmation"])
	assert.Equal(t, apperr.CodeConfirmationRequired, res["code"])
	_, err := repos.Tasks.Get(ctx, task.ID)
	require.NoError(t, err)

	res = reg.Execute(ctx, "complete_task", map[string]any{"task_id": float64(task.ID), "confirmed": true})
	assert.True(t, res.Success(), res)
	res = reg.Execute(ctx, "complete_task", map[string]any{"task_id": float64(task.ID), "confirmed": true})
	assert.Equal(t, apperr.CodeAlreadyTerminal, res["code"])

	res = reg.Execute(ctx, "delete_task", map[string]any{"task_id": float64(9999), "confirmed": true})
	assert.Equal(t, apperr.CodeNotFound, res["code"])
}

func TestCalendarEventsDefaultEndDate(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := WithLocation(context.Background(), istanbul(t))

	res := reg.Execute(ctx, "create_calendar_event", map[string]any{"title": "Dentist", "start_time": "2026-03-12T18:00"})
	require.True(t, res.Success(), res)
	res = reg.Execute(ctx, "create_calendar_event", map[string]any{"title": "Next day", "start_time": "2026-03-13T09:00"})
	require.True(t, res.Success(), res)

	res = reg.Execute(ctx, "get_calendar_events", map[string]any{"start_date": "2026-03-12"})
	require.True(t, res.Success(), res)
	events := res["events"].([]map[string]any)
	require.Len(t, events, 1)
	assert.Equal(t, "Dentist", events[0]["title"])
	assert.Equal(t, "2026-03-12T18:00:00+03:00", events[0]["start"])
	assert.Equal(t, "2026-03-12T19:00:00+03:00", events[0]["end"])
}

func TestMissingCollaboratorIsUpstreamUnavailable(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	for _, name := range []string{"get_current_weather", "get_weather_forecast"} {
		res := reg.Execute(ctx, name, map[string]any{})
		assert.Equal(t, apperr.CodeUpstreamUnavailable, res["code"], name)
	}
	res := reg.Execute(ctx, "web_search", map[string]any{"query": "go 1.24"})
	assert.Equal(t, apperr.CodeUpstreamUnavailable, res["code"])

	for _, name := range []string{"get_news_headlines", "search_news"} {
		res = reg.Execute(ctx, name, map[string]any{"query": "elections"})
		assert.Equal(t, apperr.CodeUpstreamUnavailable, res["code"], name)
	}
}

type fakeNews struct {
	headlines integrations.HeadlinesQuery
	search    integrations.NewsSearch
}

func (n *fakeNews) TopHeadlines(_ context.Context, q integrations.HeadlinesQuery) ([]integrations.Article, error) {
	n.headlines = q
	return []integrations.Article{{Title: "Markets rally", Source: "Reuters", URL: "https://example.com/m"}}, nil
}

func (n *fakeNews) Search(_ context.Context, q integrations.NewsSearch) ([]integrations.Article, error) {
	n.search = q
	return []integrations.Article{}, nil
}

func TestNewsFunctions(t *testing.T) {
	news := &fakeNews{}
	reg, err := NewRegistry(Catalog(), logger.NewNop(), Handlers(Deps{News: news})...)
	require.NoError(t, err)
	ctx := context.Background()

	res := reg.Execute(ctx, "get_news_headlines", map[string]any{"category": "Business", "page_size": 3})
	require.True(t, res.Success(), res)
	assert.Equal(t, 1, res["count"])
	assert.Equal(t, "business", news.headlines.Category)
	assert.Equal(t, 3, news.headlines.Max)

	res = reg.Execute(ctx, "get_news_headlines", map[string]any{"category": "gossip"})
	assert.Equal(t, apperr.CodeValidation, res["code"])

	res = reg.Execute(ctx, "search_news", map[string]any{"query": "istanbul metro", "sort_by": "relevancy"})
	require.True(t, res.Success(), res)
	assert.Equal(t, "istanbul metro", news.search.Query)
	assert.Equal(t, "relevancy", news.search.SortBy)

	res = reg.Execute(ctx, "search_news", map[string]any{"query": "x", "sort_by": "random"})
	assert.Equal(t, apperr.CodeValidation, res["code"])
}

func TestSearchMemoryCombinesSources(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	res := reg.Execute(ctx, "remember_info", map[string]any{"content": "The wifi password is hunter2", "tags": []string{"home"}})
	require.True(t, res.Success(), res)

	res = reg.Execute(ctx, "search_memory", map[string]any{"query": "wifi"})
	require.True(t, res.Success(), res)
	assert.Equal(t, 1, res["found"])

	res = reg.Execute(ctx, "search_memory", map[string]any{"query": "nothing like this"})
	assert.Equal(t, 0, res["found"])

	res = reg.Execute(ctx, "search_memory", map[string]any{"query": "wifi", "limit": 1 << 40})
	require.True(t, res.Success(), res)
	assert.Equal(t, 1, res["found"])
}

func TestCurrentDatetimeUsesTurnLocation(t *testing.T) {
	reg, _ := newTestRegistry(t)
	res := reg.Execute(WithLocation(context.Background(), istanbul(t)), "get_current_datetime", nil)
	assert.Equal(t, "2026-03-10", res["date"])
	assert.Equal(t, "14:00:00", res["time"])
	assert.Equal(t, "Tuesday", res["day_of_week"])
	assert.Equal(t, "Europe/Istanbul", res["timezone"])
}
