package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/capitalize-ai/assistant-engine/internal/apperr"
	"github.com/capitalize-ai/assistant-engine/internal/conflict"
	"github.com/capitalize-ai/assistant-engine/internal/model"
	"github.com/capitalize-ai/assistant-engine/internal/store"
	"github.com/capitalize-ai/assistant-engine/pkg/logger"
)

const resourceEvent = "event"

// CalendarService manages calendar events. Overlaps are reported, never
// rejected.
type CalendarService struct {
	events  store.EventRepo
	gate    *Gate
	journal Journal
	log     *logger.Logger
	now     Clock
}

// NewCalendarService creates a CalendarService.
func NewCalendarService(events store.EventRepo, gate *Gate, journal Journal, log *logger.Logger) *CalendarService {
	if journal == nil {
		journal = NopJournal{}
	}
	return &CalendarService{
		events:  events,
		gate:    gate,
		journal: journal,
		log:     log.With("service", "CalendarService"),
		now:     time.Now,
	}
}

// Get returns one event.
func (s *CalendarService) Get(ctx context.Context, id uint) (*model.CalendarEvent, error) {
	ev, err := s.events.Get(ctx, id)
	return lookup(ev, err, fmt.Sprintf("Event %d not found", id))
}

// Range returns events overlapping [start, end).
func (s *CalendarService) Range(ctx context.Context, start, end time.Time) ([]model.CalendarEvent, error) {
	if !end.After(start) {
		return nil, apperr.Validation("end must be after start")
	}
	events, err := s.events.Range(ctx, start, end)
	if err != nil {
		return nil, storageErr(err)
	}
	return events, nil
}

// Today returns today's events in loc.
func (s *CalendarService) Today(ctx context.Context, loc *time.Location) ([]model.CalendarEvent, error) {
	start := StartOfDay(s.now().In(loc))
	return s.Range(ctx, start, start.AddDate(0, 0, 1))
}

// Week returns the events of the next seven days starting today in loc.
func (s *CalendarService) Week(ctx context.Context, loc *time.Location) ([]model.CalendarEvent, error) {
	start := StartOfDay(s.now().In(loc))
	return s.Range(ctx, start, start.AddDate(0, 0, 7))
}

// Create stores a new event and annotates the result with any overlaps.
// EndTime defaults to one hour after StartTime.
func (s *CalendarService) Create(ctx context.Context, req model.CreateEventRequest) *model.ActionResult {
	ev := &model.CalendarEvent{
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Location:    req.Location,
		StartTime:   req.StartTime,
		AllDay:      req.AllDay,
	}
	if req.EndTime != nil {
		ev.EndTime = *req.EndTime
	} else {
		ev.EndTime = req.StartTime.Add(time.Hour)
	}

	if err := validateEvent(ev); err != nil {
		return s.done(ctx, "create", 0, model.ActionFailed(resourceEvent, err))
	}
	loc := req.StartTime.Location()
	ev.StartTime = ev.StartTime.UTC()
	ev.EndTime = ev.EndTime.UTC()

	conflicts, err := s.conflicts(ctx, ev, loc)
	if err != nil {
		return s.done(ctx, "create", 0, model.ActionFailed(resourceEvent, err))
	}

	if err := s.events.Create(ctx, ev); err != nil {
		return s.done(ctx, "create", 0, model.ActionFailed(resourceEvent, storageErr(err)))
	}

	msg := fmt.Sprintf("Created event '%s' on %s", ev.Title, ev.StartTime.In(loc).Format("Mon Jan 2 15:04"))
	msg += warning(conflicts)
	return s.done(ctx, "create", ev.ID, model.NewAction(model.ActionCreated, resourceEvent, msg,
		map[string]any{"event": ev, "conflicts": conflicts}))
}

// Update applies a partial update and re-checks overlaps, excluding the
// event itself.
func (s *CalendarService) Update(ctx context.Context, id uint, req model.UpdateEventRequest) *model.ActionResult {
	ev, err := s.Get(ctx, id)
	if err != nil {
		return s.done(ctx, "update", id, model.ActionFailed(resourceEvent, err))
	}

	loc := time.UTC
	if req.Title != nil {
		ev.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		ev.Description = req.Description
	}
	if req.Location != nil {
		ev.Location = req.Location
	}
	if req.StartTime != nil {
		loc = req.StartTime.Location()
		duration := ev.EndTime.Sub(ev.StartTime)
		ev.StartTime = req.StartTime.UTC()
		if req.EndTime == nil {
			ev.EndTime = ev.StartTime.Add(duration)
		}
	}
	if req.EndTime != nil {
		ev.EndTime = req.EndTime.UTC()
	}
	if req.AllDay != nil {
		ev.AllDay = *req.AllDay
	}

	if err := validateEvent(ev); err != nil {
		return s.done(ctx, "update", id, model.ActionFailed(resourceEvent, err))
	}

	conflicts, err := s.conflicts(ctx, ev, loc)
	if err != nil {
		return s.done(ctx, "update", id, model.ActionFailed(resourceEvent, err))
	}

	if err := s.events.Save(ctx, ev); err != nil {
		return s.done(ctx, "update", id, model.ActionFailed(resourceEvent, storageErr(err)))
	}

	msg := fmt.Sprintf("Updated event '%s'", ev.Title) + warning(conflicts)
	return s.done(ctx, "update", id, model.NewAction(model.ActionUpdated, resourceEvent, msg,
		map[string]any{"event": ev, "conflicts": conflicts}))
}

// Delete removes an event once confirmed.
func (s *CalendarService) Delete(ctx context.Context, id uint, confirmed bool) *model.ActionResult {
	return Guard(ctx, s.gate, GuardedOp[model.CalendarEvent]{
		Resource:  resourceEvent,
		Operation: "delete",
		ID:        id,
		Load:      func(ctx context.Context) (*model.CalendarEvent, error) { return s.Get(ctx, id) },
		Preview: func(ev *model.CalendarEvent) (string, map[string]any) {
			return fmt.Sprintf("Are you sure you want to delete event '%s'? This cannot be undone.", ev.Title),
				map[string]any{"id": ev.ID, "action": "delete", "title": ev.Title, "start_time": ev.StartTime}
		},
		Execute: func(ctx context.Context, ev *model.CalendarEvent) *model.ActionResult {
			if err := s.events.Delete(ctx, ev.ID); err != nil {
				return model.ActionFailed(resourceEvent, storageErr(err))
			}
			return model.NewAction(model.ActionDeleted, resourceEvent,
				fmt.Sprintf("Deleted event '%s'", ev.Title), map[string]any{"id": ev.ID, "title": ev.Title})
		},
	}, confirmed)
}

// NextSlot returns the earliest free start of the given duration at or
// after from.
func (s *CalendarService) NextSlot(ctx context.Context, duration time.Duration, from time.Time) (time.Time, error) {
	if duration <= 0 {
		return time.Time{}, apperr.Validation("duration must be positive")
	}
	events, err := s.events.All(ctx)
	if err != nil {
		return time.Time{}, storageErr(err)
	}

	rounded := conflict.RoundUp(from)
	intervals := make([]conflict.Interval, 0, len(events))
	for _, ev := range events {
		if ev.EndTime.After(rounded) {
			intervals = append(intervals, conflict.Of(ev))
		}
	}
	return conflict.NextAvailableSlot(intervals, duration, from).In(from.Location()), nil
}

func (s *CalendarService) conflicts(ctx context.Context, ev *model.CalendarEvent, loc *time.Location) ([]model.EventConflict, error) {
	all, err := s.events.All(ctx)
	if err != nil {
		return nil, storageErr(err)
	}
	candidate := conflict.Interval{Start: ev.StartTime.In(loc), End: ev.EndTime.In(loc)}
	return conflict.Detect(candidate, ev.ID, all), nil
}

func (s *CalendarService) done(ctx context.Context, op string, id uint, r *model.ActionResult) *model.ActionResult {
	recordAction(ctx, s.journal, s.log, op, id, r)
	return r
}

func warning(conflicts []model.EventConflict) string {
	if len(conflicts) == 0 {
		return ""
	}
	titles := make([]string, len(conflicts))
	for i, c := range conflicts {
		titles[i] = "'" + c.Title + "'"
	}
	return fmt.Sprintf(" (Warning: overlaps with %s)", strings.Join(titles, ", "))
}

func validateEvent(ev *model.CalendarEvent) error {
	if ev.Title == "" {
		return apperr.Validation("event title is required")
	}
	if len([]rune(ev.Title)) > 500 {
		return apperr.Validation("event title exceeds 500 characters")
	}
	if ev.StartTime.IsZero() {
		return apperr.Validation("event start time is required")
	}
	if !ev.EndTime.After(ev.StartTime) {
		return apperr.Validation("event end time must be after start time")
	}
	return nil
}

// StartOfDay returns midnight of t's day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay returns the last representable instant of t's day.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}
