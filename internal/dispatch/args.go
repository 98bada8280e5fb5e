package dispatch

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/capitalize-ai/assistant-engine/internal/apperr"
	"github.com/capitalize-ai/assistant-engine/internal/service"
)

// ID is a resource identifier. Models send it as a number or a numeric
// string; both decode.
type ID uint

func (id *ID) UnmarshalJSON(b []byte) error {
	var n uint64
	if err := json.Unmarshal(b, &n); err == nil {
		*id = ID(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return apperr.Validation("id must be a positive integer")
	}
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return apperr.Validation("id must be a positive integer, got %q", s)
	}
	*id = ID(n)
	return nil
}

type locationKey struct{}

// WithLocation attaches the turn's timezone to ctx.
func WithLocation(ctx context.Context, loc *time.Location) context.Context {
	return context.WithValue(ctx, locationKey{}, loc)
}

// LocationFrom returns the timezone attached by WithLocation, or UTC.
func LocationFrom(ctx context.Context) *time.Location {
	if loc, ok := ctx.Value(locationKey{}).(*time.Location); ok && loc != nil {
		return loc
	}
	return time.UTC
}

var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseTime accepts YYYY-MM-DD, YYYY-MM-DDTHH:MM[:SS] and RFC 3339. Values
// without an offset are read in loc. dateOnly reports the first form.
func ParseTime(s string, loc *time.Location) (t time.Time, dateOnly bool, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false, apperr.Validation("empty date")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, false, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return t, true, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, false, nil
		}
	}
	return time.Time{}, false, apperr.Validation("invalid date %q: use YYYY-MM-DD or YYYY-MM-DDTHH:MM:SS", s)
}

// DateRange resolves optional start and end arguments. A missing start is
// today; a missing end, or a date-only end, runs to the end of that day.
func DateRange(start, end string, now time.Time) (time.Time, time.Time, error) {
	loc := now.Location()
	from := service.StartOfDay(now)
	if start != "" {
		t, _, err := ParseTime(start, loc)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = t
	}

	to := service.EndOfDay(from)
	if end != "" {
		t, dateOnly, err := ParseTime(end, loc)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to = t
		if dateOnly {
			to = service.EndOfDay(t)
		}
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, apperr.Validation("end_date must be after start_date")
	}
	return from, to, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
