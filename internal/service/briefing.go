package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/capitalize-ai/assistant-engine/internal/integrations"
	"github.com/capitalize-ai/assistant-engine/internal/model"
	"github.com/capitalize-ai/assistant-engine/pkg/logger"
)

const briefingHeadlines = 5

// Briefing is the daily summary.
type Briefing struct {
	Date          time.Time                    `json:"date"`
	Timezone      string                       `json:"timezone"`
	Greeting      string                       `json:"greeting"`
	EventsToday   []model.CalendarEvent        `json:"events_today"`
	TasksPending  []model.Task                 `json:"tasks_pending"`
	TasksOverdue  []model.Task                 `json:"tasks_overdue"`
	PendingEmails []model.Email                `json:"pending_emails"`
	Weather       *integrations.CurrentWeather `json:"weather,omitempty"`
	Headlines     []integrations.Article       `json:"news,omitempty"`
	// Unavailable lists sources that failed and were left out.
	Unavailable []string `json:"unavailable,omitempty"`
}

// BriefingService assembles the daily briefing from the other services.
type BriefingService struct {
	tasks    *TaskService
	calendar *CalendarService
	emails   *EmailService
	weather  integrations.Weather
	news     integrations.News
	log      *logger.Logger
	now      Clock
}

// NewBriefingService creates a BriefingService. weather and news may be
// nil.
func NewBriefingService(tasks *TaskService, calendar *CalendarService, emails *EmailService, weather integrations.Weather, news integrations.News, log *logger.Logger) *BriefingService {
	return &BriefingService{
		tasks:    tasks,
		calendar: calendar,
		emails:   emails,
		weather:  weather,
		news:     news,
		log:      log.With("service", "BriefingService"),
		now:      time.Now,
	}
}

// Generate fetches every source concurrently. A failing source is logged
// and omitted.
func (s *BriefingService) Generate(ctx context.Context, loc *time.Location) (*Briefing, error) {
	now := s.now().In(loc)
	b := &Briefing{
		Date:          now,
		Timezone:      loc.String(),
		Greeting:      Greeting(now, loc.String()),
		EventsToday:   []model.CalendarEvent{},
		TasksPending:  []model.Task{},
		TasksOverdue:  []model.Task{},
		PendingEmails: []model.Email{},
	}

	var mu sync.Mutex
	skip := func(source string, err error) {
		s.log.Warn("briefing source unavailable", "source", source, "error", err)
		mu.Lock()
		b.Unavailable = append(b.Unavailable, source)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		events, err := s.calendar.Today(gctx, loc)
		if err != nil {
			skip("calendar", err)
			return nil
		}
		b.EventsToday = events
		return nil
	})
	g.Go(func() error {
		pending, err := s.tasks.Pending(gctx)
		if err != nil {
			skip("tasks", err)
			return nil
		}
		b.TasksPending = pending
		return nil
	})
	g.Go(func() error {
		overdue, err := s.tasks.Overdue(gctx)
		if err != nil {
			skip("overdue_tasks", err)
			return nil
		}
		b.TasksOverdue = overdue
		return nil
	})
	g.Go(func() error {
		emails, err := s.emails.Pending(gctx)
		if err != nil {
			skip("emails", err)
			return nil
		}
		b.PendingEmails = emails
		return nil
	})
	if s.weather != nil {
		g.Go(func() error {
			w, err := s.weather.Current(gctx, "")
			if err != nil {
				skip("weather", err)
				return nil
			}
			b.Weather = w
			return nil
		})
	}
	if s.news != nil {
		g.Go(func() error {
			articles, err := s.news.TopHeadlines(gctx, integrations.HeadlinesQuery{Max: briefingHeadlines})
			if err != nil {
				skip("news", err)
				return nil
			}
			b.Headlines = articles
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Overdue tasks are reported once.
	overdue := make(map[uint]bool, len(b.TasksOverdue))
	for _, t := range b.TasksOverdue {
		overdue[t.ID] = true
	}
	pending := b.TasksPending[:0]
	for _, t := range b.TasksPending {
		if !overdue[t.ID] {
			pending = append(pending, t)
		}
	}
	b.TasksPending = pending
	sort.Strings(b.Unavailable)
	return b, nil
}

// Summary renders b as plain text for the model.
func (b *Briefing) Summary() string {
	var sb strings.Builder
	sb.WriteString(b.Greeting + "\n")
	fmt.Fprintf(&sb, "Events today: %d\n", len(b.EventsToday))
	for _, ev := range b.EventsToday {
		fmt.Fprintf(&sb, "- %s at %s\n", ev.Title, ev.StartTime.In(b.Date.Location()).Format("15:04"))
	}
	fmt.Fprintf(&sb, "Pending tasks: %d, overdue: %d\n", len(b.TasksPending), len(b.TasksOverdue))
	for _, t := range b.TasksOverdue {
		fmt.Fprintf(&sb, "- overdue: %s\n", t.Title)
	}
	fmt.Fprintf(&sb, "Emails awaiting action: %d\n", len(b.PendingEmails))
	if b.Weather != nil {
		sb.WriteString(b.Weather.Summary() + "\n")
	}
	if len(b.Headlines) > 0 {
		sb.WriteString("Top headlines:\n")
		for i, a := range b.Headlines {
			fmt.Fprintf(&sb, "%d. %s", i+1, a.Title)
			if a.Source != "" {
				fmt.Fprintf(&sb, " (%s)", a.Source)
			}
			sb.WriteString("\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Greeting picks a greeting for the local hour of now. Turkish zones get a
// Turkish greeting.
func Greeting(now time.Time, timezone string) string {
	hour := now.Hour()
	var en, tr string
	switch {
	case hour < 6:
		en, tr = "Good night", "İyi geceler"
	case hour < 12:
		en, tr = "Good morning", "Günaydın"
	case hour < 17:
		en, tr = "Good afternoon", "İyi öğlenler"
	default:
		en, tr = "Good evening", "İyi akşamlar"
	}
	if strings.Contains(timezone, "Istanbul") || strings.Contains(timezone, "Turkey") {
		return tr + "! İşte bugünkü özetin."
	}
	return en + "! Here's your briefing for today."
}
