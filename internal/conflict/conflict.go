// Package conflict computes calendar overlaps and free slots. It performs
// no I/O.
package conflict

import (
	"fmt"
	"time"

	"github.com/capitalize-ai/assistant-engine/internal/model"
)

// SlotGranularity is the boundary NextAvailableSlot rounds up to.
const SlotGranularity = 30 * time.Minute

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Of returns the interval covered by ev.
func Of(ev model.CalendarEvent) Interval {
	return Interval{Start: ev.StartTime, End: ev.EndTime}
}

// Overlaps reports whether a and b share any instant.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && a.End.After(b.Start)
}

// Detect returns the events overlapping candidate, skipping excludeID so an
// event being updated does not conflict with itself. Results are advisory.
func Detect(candidate Interval, excludeID uint, events []model.CalendarEvent) []model.EventConflict {
	var out []model.EventConflict
	for _, ev := range events {
		if excludeID != 0 && ev.ID == excludeID {
			continue
		}
		if !Overlaps(candidate, Of(ev)) {
			continue
		}
		out = append(out, model.EventConflict{
			EventID:   ev.ID,
			Title:     ev.Title,
			StartTime: ev.StartTime,
			EndTime:   ev.EndTime,
			Message:   Describe(ev, candidate.Start.Location()),
		})
	}
	return out
}

// Describe renders "Overlaps with 'X' (HH:MM - HH:MM)" in loc.
func Describe(ev model.CalendarEvent, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return fmt.Sprintf("Overlaps with '%s' (%s - %s)",
		ev.Title,
		ev.StartTime.In(loc).Format("15:04"),
		ev.EndTime.In(loc).Format("15:04"),
	)
}

// RoundUp moves t forward to the next SlotGranularity boundary in t's
// location. Times already on a boundary are returned unchanged.
func RoundUp(t time.Time) time.Time {
	hour := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
	offset := t.Sub(hour)
	slots := offset / SlotGranularity
	if offset%SlotGranularity != 0 {
		slots++
	}
	return hour.Add(slots * SlotGranularity)
}

// NextAvailableSlot returns the earliest start, at or after from rounded up,
// where duration fits before the next event. events must be sorted by start.
func NextAvailableSlot(events []Interval, duration time.Duration, from time.Time) time.Time {
	cursor := RoundUp(from)
	for _, ev := range events {
		if ev.Start.Sub(cursor) >= duration {
			return cursor
		}
		if ev.End.After(cursor) {
			cursor = ev.End
		}
	}
	return cursor
}
