package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/capitalize-ai/assistant-engine/internal/apperr"
	"github.com/capitalize-ai/assistant-engine/internal/integrations"
	"github.com/capitalize-ai/assistant-engine/internal/model"
	"github.com/capitalize-ai/assistant-engine/internal/service"
)

// Deps are the collaborators behind the catalog. Weather, News and Search
// may be nil; their functions then report upstream_unavailable.
type Deps struct {
	Tasks       *service.TaskService
	Calendar    *service.CalendarService
	Emails      *service.EmailService
	Memory      *service.MemoryService
	Knowledge   *service.KnowledgeService
	Briefing    *service.BriefingService
	Diagnostics *service.DiagnosticsService
	Weather     integrations.Weather
	News        integrations.News
	Search      integrations.Search
	Now         func() time.Time
}

type fns struct {
	Deps
}

func (f fns) now(ctx context.Context) time.Time {
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	return now().In(LocationFrom(ctx))
}

// Handlers returns one handler per catalog function.
func Handlers(d Deps) []Handler {
	f := fns{d}
	return []Handler{
		Typed("get_calendar_events", f.getCalendarEvents),
		Typed("create_calendar_event", f.createCalendarEvent),
		Typed("update_calendar_event", f.updateCalendarEvent),
		Typed("delete_calendar_event", f.deleteCalendarEvent),
		Typed("find_free_slot", f.findFreeSlot),
		Typed("get_tasks", f.getTasks),
		Typed("create_task", f.createTask),
		Typed("complete_task", f.completeTask),
		Typed("delete_task", f.deleteTask),
		Typed("draft_email", f.draftEmail),
		Typed("send_email", f.sendEmail),
		Typed("search_emails", f.searchEmails),
		Typed("get_current_weather", f.currentWeather),
		Typed("get_weather_forecast", f.weatherForecast),
		Typed("get_news_headlines", f.newsHeadlines),
		Typed("search_news", f.searchNews),
		Typed("web_search", f.webSearch),
		Typed("get_daily_briefing", f.dailyBriefing),
		Typed("remember_info", f.rememberInfo),
		Typed("search_memory", f.searchMemory),
		Typed("add_knowledge", f.addKnowledge),
		Typed("check_server_status", f.serverStatus),
		Typed("who_am_i", f.whoAmI),
		Typed("get_current_datetime", f.currentDatetime),
	}
}

// Calendar

type eventRangeArgs struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

func (f fns) getCalendarEvents(ctx context.Context, a eventRangeArgs) (Result, error) {
	now := f.now(ctx)
	from, to, err := DateRange(a.StartDate, a.EndDate, now)
	if err != nil {
		return nil, err
	}
	events, err := f.Calendar.Range(ctx, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, len(events))
	for i, ev := range events {
		out[i] = eventView(ev, now.Location())
	}
	return Result{
		"events":     out,
		"count":      len(out),
		"date_range": fmt.Sprintf("%s to %s", from.Format("2006-01-02"), to.Format("2006-01-02")),
	}, nil
}

func eventView(ev model.CalendarEvent, loc *time.Location) map[string]any {
	return map[string]any{
		"id":          ev.ID,
		"title":       ev.Title,
		"start":       ev.StartTime.In(loc).Format(time.RFC3339),
		"end":         ev.EndTime.In(loc).Format(time.RFC3339),
		"all_day":     ev.AllDay,
		"location":    ev.Location,
		"description": ev.Description,
	}
}

type createEventArgs struct {
	Title       string `json:"title"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Description string `json:"description"`
	Location    string `json:"location"`
}

func (f fns) createCalendarEvent(ctx context.Context, a createEventArgs) (Result, error) {
	loc := LocationFrom(ctx)
	start, _, err := ParseTime(a.StartTime, loc)
	if err != nil {
		return nil, err
	}
	req := model.CreateEventRequest{
		Title:       a.Title,
		Description: optional(a.Description),
		Location:    optional(a.Location),
		StartTime:   start,
	}
	if a.EndTime != "" {
		end, _, err := ParseTime(a.EndTime, loc)
		if err != nil {
			return nil, err
		}
		req.EndTime = &end
	}
	return fromAction(f.Calendar.Create(ctx, req)), nil
}

type updateEventArgs struct {
	EventID     ID      `json:"event_id"`
	Title       *string `json:"title"`
	StartTime   string  `json:"start_time"`
	EndTime     string  `json:"end_time"`
	Description *string `json:"description"`
	Location    *string `json:"location"`
}

func (f fns) updateCalendarEvent(ctx context.Context, a updateEventArgs) (Result, error) {
	loc := LocationFrom(ctx)
	req := model.UpdateEventRequest{Title: a.Title, Description: a.Description, Location: a.Location}
	if a.StartTime != "" {
		t, _, err := ParseTime(a.StartTime, loc)
		if err != nil {
			return nil, err
		}
		req.StartTime = &t
	}
	if a.EndTime != "" {
		t, _, err := ParseTime(a.EndTime, loc)
		if err != nil {
			return nil, err
		}
		req.EndTime = &t
	}
	return fromAction(f.Calendar.Update(ctx, uint(a.EventID), req)), nil
}

type eventIDArgs struct {
	EventID   ID   `json:"event_id"`
	Confirmed bool `json:"confirmed"`
}

func (f fns) deleteCalendarEvent(ctx context.Context, a eventIDArgs) (Result, error) {
	return fromAction(f.Calendar.Delete(ctx, uint(a.EventID), a.Confirmed)), nil
}

type freeSlotArgs struct {
	DurationMinutes int    `json:"duration_minutes"`
	StartFrom       string `json:"start_from"`
}

func (f fns) findFreeSlot(ctx context.Context, a freeSlotArgs) (Result, error) {
	from := f.now(ctx)
	if a.StartFrom != "" {
		t, _, err := ParseTime(a.StartFrom, from.Location())
		if err != nil {
			return nil, err
		}
		from = t
	}
	duration := time.Duration(a.DurationMinutes) * time.Minute
	slot, err := f.Calendar.NextSlot(ctx, duration, from)
	if err != nil {
		return nil, err
	}
	return Result{
		"start":            slot.Format(time.RFC3339),
		"end":              slot.Add(duration).Format(time.RFC3339),
		"duration_minutes": a.DurationMinutes,
	}, nil
}

// Tasks

type listTasksArgs struct {
	IncludeCompleted bool `json:"include_completed"`
}

func (f fns) getTasks(ctx context.Context, a listTasksArgs) (Result, error) {
	tasks, err := f.Tasks.List(ctx, a.IncludeCompleted)
	if err != nil {
		return nil, err
	}
	return Result{"tasks": tasks, "count": len(tasks)}, nil
}

type createTaskArgs struct {
	Title    string `json:"title"`
	Notes    string `json:"notes"`
	DueDate  string `json:"due_date"`
	Priority *int   `json:"priority"`
}

func (f fns) createTask(ctx context.Context, a createTaskArgs) (Result, error) {
	req := model.CreateTaskRequest{Title: a.Title, Notes: optional(a.Notes), Priority: a.Priority}
	if a.DueDate != "" {
		due, dateOnly, err := ParseTime(a.DueDate, LocationFrom(ctx))
		if err != nil {
			return nil, err
		}
		if dateOnly {
			due = service.EndOfDay(due)
		}
		req.DueDate = &due
	}
	return fromAction(f.Tasks.Create(ctx, req)), nil
}

type taskIDArgs struct {
	TaskID    ID   `json:"task_id"`
	Confirmed bool `json:"confirmed"`
}

func (f fns) completeTask(ctx context.Context, a taskIDArgs) (Result, error) {
	return fromAction(f.Tasks.Complete(ctx, uint(a.TaskID), a.Confirmed)), nil
}

func (f fns) deleteTask(ctx context.Context, a taskIDArgs) (Result, error) {
	return fromAction(f.Tasks.Delete(ctx, uint(a.TaskID), a.Confirmed)), nil
}

// Email

type draftEmailArgs struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Cc      string `json:"cc"`
	Mailbox string `json:"mailbox"`
}

func (f fns) draftEmail(ctx context.Context, a draftEmailArgs) (Result, error) {
	return fromAction(f.Emails.Draft(ctx, model.DraftEmailRequest{
		Mailbox: model.Mailbox(strings.ToLower(strings.TrimSpace(a.Mailbox))),
		To:      a.To,
		Cc:      optional(a.Cc),
		Subject: a.Subject,
		Body:    a.Body,
	})), nil
}

type sendEmailArgs struct {
	EmailID   ID   `json:"email_id"`
	Confirmed bool `json:"confirmed"`
}

func (f fns) sendEmail(ctx context.Context, a sendEmailArgs) (Result, error) {
	return fromAction(f.Emails.Send(ctx, uint(a.EmailID), a.Confirmed)), nil
}

type searchEmailsArgs struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

func (f fns) searchEmails(ctx context.Context, a searchEmailsArgs) (Result, error) {
	emails, err := f.Emails.Search(ctx, a.Query, a.MaxResults)
	if err != nil {
		return nil, err
	}
	return Result{"emails": emails, "count": len(emails)}, nil
}

// Weather, news and search

type weatherArgs struct {
	City string `json:"city"`
}

func (f fns) currentWeather(ctx context.Context, a weatherArgs) (Result, error) {
	if f.Weather == nil {
		return nil, apperr.Upstream("weather service is not configured")
	}
	w, err := f.Weather.Current(ctx, a.City)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeUpstreamUnavailable, "weather data not available", err)
	}
	return Result{"weather": w, "summary": w.Summary()}, nil
}

type forecastArgs struct {
	City string `json:"city"`
	Days int    `json:"days"`
}

func (f fns) weatherForecast(ctx context.Context, a forecastArgs) (Result, error) {
	if f.Weather == nil {
		return nil, apperr.Upstream("weather service is not configured")
	}
	if a.Days <= 0 {
		a.Days = 3
	}
	forecast, err := f.Weather.Forecast(ctx, a.City, a.Days)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeUpstreamUnavailable, "forecast data not available", err)
	}
	return Result{"forecast": forecast, "days": a.Days}, nil
}

var newsCategories = map[string]bool{
	"business": true, "entertainment": true, "general": true, "health": true,
	"science": true, "sports": true, "technology": true,
}

type newsHeadlinesArgs struct {
	Country  string `json:"country"`
	Category string `json:"category"`
	Query    string `json:"query"`
	PageSize int    `json:"page_size"`
}

func (f fns) newsHeadlines(ctx context.Context, a newsHeadlinesArgs) (Result, error) {
	if f.News == nil {
		return nil, apperr.Upstream("news service is not configured")
	}
	category := strings.ToLower(strings.TrimSpace(a.Category))
	if category != "" && !newsCategories[category] {
		return nil, apperr.Validation("unknown news category %q", a.Category)
	}
	articles, err := f.News.TopHeadlines(ctx, integrations.HeadlinesQuery{
		Country:  strings.TrimSpace(a.Country),
		Category: category,
		Query:    strings.TrimSpace(a.Query),
		Max:      a.PageSize,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeUpstreamUnavailable, "news headlines not available", err)
	}
	return Result{"articles": articles, "count": len(articles)}, nil
}

type searchNewsArgs struct {
	Query    string `json:"query"`
	Language string `json:"language"`
	SortBy   string `json:"sort_by"`
	PageSize int    `json:"page_size"`
}

func (f fns) searchNews(ctx context.Context, a searchNewsArgs) (Result, error) {
	if f.News == nil {
		return nil, apperr.Upstream("news service is not configured")
	}
	if strings.TrimSpace(a.Query) == "" {
		return nil, apperr.Validation("search query is required")
	}
	switch a.SortBy {
	case "", "relevancy", "popularity", "publishedAt":
	default:
		return nil, apperr.Validation("unknown sort order %q", a.SortBy)
	}
	articles, err := f.News.Search(ctx, integrations.NewsSearch{
		Query:    a.Query,
		Language: a.Language,
		SortBy:   a.SortBy,
		Max:      a.PageSize,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeUpstreamUnavailable, "news search failed", err)
	}
	return Result{"query": a.Query, "articles": articles, "count": len(articles)}, nil
}

type webSearchArgs struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

func (f fns) webSearch(ctx context.Context, a webSearchArgs) (Result, error) {
	if f.Search == nil {
		return nil, apperr.Upstream("web search is not configured")
	}
	if strings.TrimSpace(a.Query) == "" {
		return nil, apperr.Validation("search query is required")
	}
	results, err := f.Search.Search(ctx, a.Query, a.MaxResults)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeUpstreamUnavailable, "web search failed", err)
	}
	return Result{"query": a.Query, "results": results, "count": len(results)}, nil
}

// Briefing

func (f fns) dailyBriefing(ctx context.Context, _ struct{}) (Result, error) {
	b, err := f.Briefing.Generate(ctx, LocationFrom(ctx))
	if err != nil {
		return nil, err
	}
	return Result{"briefing": b, "summary": b.Summary()}, nil
}

// Knowledge

type rememberArgs struct {
	Content  string   `json:"content"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
}

func (f fns) rememberInfo(ctx context.Context, a rememberArgs) (Result, error) {
	category := a.Category
	if strings.TrimSpace(category) == "" {
		category = "general"
	}
	return fromAction(f.Knowledge.AddNote(ctx, model.AddNoteRequest{
		Content:  a.Content,
		Category: optional(category),
		Tags:     a.Tags,
	})), nil
}

type searchMemoryArgs struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

const (
	maxSnippet        = 500
	maxMemoryHits     = 20
	defaultMemoryHits = 5
)

func (f fns) searchMemory(ctx context.Context, a searchMemoryArgs) (Result, error) {
	switch {
	case a.Limit <= 0:
		a.Limit = defaultMemoryHits
	case a.Limit > maxMemoryHits:
		a.Limit = maxMemoryHits
	}
	memories, err := f.Memory.Search(ctx, a.Query)
	if err != nil {
		return nil, err
	}
	notes, err := f.Knowledge.Search(ctx, a.Query, a.Limit)
	if err != nil {
		return nil, err
	}

	results := make([]map[string]any, 0, a.Limit)
	for _, m := range memories {
		if len(results) == a.Limit {
			break
		}
		results = append(results, map[string]any{
			"source":  "memory",
			"title":   m.Category + "/" + m.Key,
			"content": m.Value,
		})
	}
	for _, n := range notes {
		if len(results) == a.Limit {
			break
		}
		title := ""
		if n.Title != nil {
			title = *n.Title
		}
		results = append(results, map[string]any{
			"source":  string(n.Kind),
			"title":   title,
			"content": snippet(n.Content),
		})
	}

	if len(results) == 0 {
		return Result{"found": 0, "message": "No matching information found in my memory."}, nil
	}
	return Result{"found": len(results), "results": results}, nil
}

func snippet(s string) string {
	r := []rune(s)
	if len(r) <= maxSnippet {
		return s
	}
	return string(r[:maxSnippet])
}

type addKnowledgeArgs struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Category string `json:"category"`
}

func (f fns) addKnowledge(ctx context.Context, a addKnowledgeArgs) (Result, error) {
	return fromAction(f.Knowledge.AddKnowledge(ctx, model.AddNoteRequest{
		Title:    optional(a.Title),
		Content:  a.Content,
		Category: optional(a.Category),
	})), nil
}

// Diagnostics

func (f fns) serverStatus(ctx context.Context, _ struct{}) (Result, error) {
	return Result{"status": f.Diagnostics.Status(ctx)}, nil
}

func (f fns) whoAmI(_ context.Context, _ struct{}) (Result, error) {
	return Result{"identity": f.Diagnostics.WhoAmI()}, nil
}

func (f fns) currentDatetime(ctx context.Context, _ struct{}) (Result, error) {
	now := f.now(ctx)
	return Result{
		"datetime":    now.Format(time.RFC3339),
		"date":        now.Format("2006-01-02"),
		"time":        now.Format("15:04:05"),
		"day_of_week": now.Weekday().String(),
		"timezone":    now.Location().String(),
		"formatted":   now.Format("Monday, January 02, 2006 at 03:04 PM"),
	}, nil
}
