package conflict

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/assistant-engine/internal/model"
)

var day = time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time { return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }

func TestOverlapsIsSymmetric(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		a := randomInterval(r)
		b := randomInterval(r)
		assert.Equal(t, Overlaps(a, b), Overlaps(b, a), "a=%v b=%v", a, b)
	}
}

func TestOverlapsSelf(t *testing.T) {
	a := Interval{Start: at(10, 0), End: at(11, 0)}
	assert.True(t, Overlaps(a, a))

	degenerate := Interval{Start: at(10, 0), End: at(10, 0)}
	assert.False(t, Overlaps(degenerate, degenerate))
}

func TestOverlapsTouchingEdges(t *testing.T) {
	a := Interval{Start: at(10, 0), End: at(11, 0)}
	b := Interval{Start: at(11, 0), End: at(12, 0)}
	assert.False(t, Overlaps(a, b))
}

func TestDetectExcludesSelf(t *testing.T) {
	events := []model.CalendarEvent{
		{ID: 1, Title: "Standup", StartTime: at(10, 0), EndTime: at(11, 0)},
		{ID: 2, Title: "Lunch", StartTime: at(12, 0), EndTime: at(13, 0)},
	}

	conflicts := Detect(Interval{Start: at(10, 30), End: at(11, 30)}, 0, events)
	require.Len(t, conflicts, 1)
	assert.Equal(t, uint(1), conflicts[0].EventID)
	assert.Equal(t, "Overlaps with 'Standup' (10:00 - 11:00)", conflicts[0].Message)

	assert.Empty(t, Detect(Of(events[0]), 1, events))
}

func TestRoundUp(t *testing.T) {
	tests := []struct {
		in, want time.Time
	}{
		{at(9, 0), at(9, 0)},
		{at(9, 1), at(9, 30)},
		{at(9, 30), at(9, 30)},
		{at(9, 45), at(10, 0)},
		{at(9, 30).Add(time.Second), at(10, 0)},
		{at(23, 50), day.Add(24 * time.Hour)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RoundUp(tt.in), "RoundUp(%s)", tt.in.Format(time.Kitchen))
	}
}

func TestNextAvailableSlot(t *testing.T) {
	events := []Interval{
		{Start: at(9, 0), End: at(10, 0)},
		{Start: at(10, 15), End: at(11, 0)},
		{Start: at(13, 0), End: at(14, 0)},
	}

	tests := []struct {
		name     string
		duration time.Duration
		from     time.Time
		want     time.Time
	}{
		{"empty gap before first", 30 * time.Minute, at(8, 10), at(8, 30)},
		{"skips short gap", 30 * time.Minute, at(9, 0), at(11, 0)},
		{"long meeting after last", 3 * time.Hour, at(9, 0), at(14, 0)},
		{"fits between", time.Hour, at(10, 40), at(11, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextAvailableSlot(events, tt.duration, tt.from))
		})
	}
}

func TestNextAvailableSlotEmpty(t *testing.T) {
	assert.Equal(t, at(9, 30), NextAvailableSlot(nil, time.Hour, at(9, 5)))
}

func TestNextAvailableSlotNeverOverlaps(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		var events []Interval
		for j := 0; j < r.Intn(8); j++ {
			events = append(events, randomInterval(r))
		}
		sort.Slice(events, func(a, b int) bool { return events[a].Start.Before(events[b].Start) })

		duration := time.Duration(15+r.Intn(120)) * time.Minute
		from := at(r.Intn(20), r.Intn(60))

		start := NextAvailableSlot(events, duration, from)
		slot := Interval{Start: start, End: start.Add(duration)}
		assert.False(t, start.Before(from), "slot before start_from")
		for _, ev := range events {
			assert.False(t, Overlaps(slot, ev), fmt.Sprintf("slot %v overlaps %v", slot, ev))
		}
	}
}

func randomInterval(r *rand.Rand) Interval {
	start := at(r.Intn(22), r.Intn(60))
	return Interval{Start: start, End: start.Add(time.Duration(r.Intn(180)) * time.Minute)}
}
