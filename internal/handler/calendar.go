package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/capitalize-ai/assistant-engine/internal/apperr"
	"github.com/capitalize-ai/assistant-engine/internal/dispatch"
	"github.com/capitalize-ai/assistant-engine/internal/model"
	"github.com/capitalize-ai/assistant-engine/internal/service"
)

// Locator resolves a timezone name, falling back to the default zone.
type Locator func(timezone string) *time.Location

// CalendarHandler handles calendar endpoints. Range queries read the
// timezone query parameter.
type CalendarHandler struct {
	calendar *service.CalendarService
	locate   Locator
	now      func() time.Time
}

// NewCalendarHandler creates a new calendar handler.
func NewCalendarHandler(calendar *service.CalendarService, locate Locator) *CalendarHandler {
	return &CalendarHandler{calendar: calendar, locate: locate, now: time.Now}
}

func (h *CalendarHandler) location(r *http.Request) *time.Location {
	return h.locate(r.URL.Query().Get("timezone"))
}

// Range handles GET /calendar?start&end. Without start the range is today;
// a date-only end runs to the end of that day.
func (h *CalendarHandler) Range(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to, err := dispatch.DateRange(q.Get("start"), q.Get("end"), h.now().In(h.location(r)))
	if err != nil {
		writeError(w, err)
		return
	}
	events, err := h.calendar.Range(r.Context(), from, to)
	respond(w, events, err)
}

// Today handles GET /calendar/today
func (h *CalendarHandler) Today(w http.ResponseWriter, r *http.Request) {
	events, err := h.calendar.Today(r.Context(), h.location(r))
	respond(w, events, err)
}

// Week handles GET /calendar/week
func (h *CalendarHandler) Week(w http.ResponseWriter, r *http.Request) {
	events, err := h.calendar.Week(r.Context(), h.location(r))
	respond(w, events, err)
}

// NextSlot handles GET /calendar/next-slot?duration&start_from. duration is
// in minutes and defaults to 60.
func (h *CalendarHandler) NextSlot(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	loc := h.location(r)

	minutes := 60
	if raw := q.Get("duration"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, apperr.Validation("invalid duration %q", raw))
			return
		}
		minutes = n
	}

	from := h.now().In(loc)
	if raw := q.Get("start_from"); raw != "" {
		t, _, err := dispatch.ParseTime(raw, loc)
		if err != nil {
			writeError(w, err)
			return
		}
		from = t
	}

	slot, err := h.calendar.NextSlot(r.Context(), time.Duration(minutes)*time.Minute, from)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"start_time":       slot,
		"end_time":         slot.Add(time.Duration(minutes) * time.Minute),
		"duration_minutes": minutes,
	})
}

// Get handles GET /calendar/{id}
func (h *CalendarHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ev, err := h.calendar.Get(r.Context(), id)
	respond(w, ev, err)
}

// Create handles POST /calendar
func (h *CalendarHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	writeAction(w, h.calendar.Create(r.Context(), req))
}

// Update handles PATCH /calendar/{id}
func (h *CalendarHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req model.UpdateEventRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	writeAction(w, h.calendar.Update(r.Context(), id, req))
}

// Delete handles DELETE /calendar/{id}
func (h *CalendarHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeAction(w, h.calendar.Delete(r.Context(), id, confirmedFlag(r)))
}
