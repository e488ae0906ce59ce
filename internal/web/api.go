package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"clickcal/internal/ics"
	appLog "clickcal/internal/log"
	"clickcal/internal/model"
	"clickcal/internal/schedule"
)

const maxBodySize = 64 << 10

// submitRequest is the body of POST /api/events and PUT /api/events/{id}.
type submitRequest struct {
	Event          model.EventInput `json:"event"`
	ConfirmOverlap bool             `json:"confirm_overlap"`
}

type eventResponse struct {
	Event    model.Event   `json:"event"`
	Notice   string        `json:"notice,omitempty"`
	Overlaps []model.Event `json:"overlaps,omitempty"`
}

type overlapResponse struct {
	Error    string        `json:"error"`
	Overlaps []model.Event `json:"overlaps"`
}

type eventsResponse struct {
	Events []model.Event `json:"events"`
}

type reminderDTO struct {
	Key     string      `json:"key"`
	Message string      `json:"message"`
	Event   model.Event `json:"event"`
}

type notificationsResponse struct {
	Reminders []reminderDTO `json:"reminders"`
}

// GET /api/events?from=&to= lists a date range; ?q= searches instead.
// Without parameters the month of today is listed.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if q := r.URL.Query().Get("q"); q != "" {
		events, err := s.svc.Search(ctx, q)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, eventsResponse{Events: nonNil(events)})
		return
	}

	from, hasFrom, err := dateParam(r, "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, hasTo, err := dateParam(r, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	switch {
	case !hasFrom && !hasTo:
		from = model.DateOf(s.now().In(s.loc)).FirstOfMonth()
		to = from.AddMonths(1).AddDays(-1)
	case !hasFrom:
		from = to
	case !hasTo:
		to = from
	}

	events, err := s.svc.List(ctx, from, to)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eventsResponse{Events: nonNil(events)})
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := s.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eventResponse{Event: ev})
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSubmit(w, r)
	if !ok {
		return
	}
	res, err := s.svc.Create(r.Context(), req.Event, req.ConfirmOverlap)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, eventResponse{Event: res.Event, Notice: res.Notice, Overlaps: res.Overlaps})
}

func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSubmit(w, r)
	if !ok {
		return
	}
	res, err := s.svc.Update(r.Context(), r.PathValue("id"), req.Event, req.ConfirmOverlap)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eventResponse{Event: res.Event, Notice: res.Notice, Overlaps: res.Overlaps})
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Delete(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eventResponse{Event: res.Event, Notice: res.Notice})
}

// handleReset wipes the store. It is only enabled with allow_reset, which
// the browser scenarios turn on to start each run from an empty calendar.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.AllowReset {
		writeError(w, http.StatusForbidden, "reset is disabled")
		return
	}
	if err := s.svc.Reset(r.Context()); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	due, err := s.svc.Reminders(r.Context(), s.now())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	out := notificationsResponse{Reminders: make([]reminderDTO, 0, len(due))}
	for _, rem := range due {
		out.Reminders = append(out.Reminders, reminderDTO{Key: rem.Key(), Message: rem.Message, Event: rem.Event})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleExport serves stored events as iCalendar. ?from=&to= narrow the
// range; without them every event is exported.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	from, hasFrom, err := dateParam(r, "from")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	to, hasTo, err := dateParam(r, "to")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var events []model.Event
	switch {
	case hasFrom && hasTo:
		events, err = s.svc.List(ctx, from, to)
	case hasFrom:
		events, err = s.svc.List(ctx, from, from.AddMonths(12))
	case hasTo:
		events, err = s.svc.List(ctx, to.AddMonths(-12), to)
	default:
		events, err = s.svc.Search(ctx, "")
	}
	if err != nil {
		if isBadRequest(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		appLog.Error("export events failed", err)
		http.Error(w, "failed to export events", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := ics.Export(&buf, events, s.loc, s.now()); err != nil {
		appLog.Error("export events failed", err, "events", len(events))
		http.Error(w, "failed to export events", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="clickcal.ics"`)
	_, _ = w.Write(buf.Bytes())
}

func decodeSubmit(w http.ResponseWriter, r *http.Request) (submitRequest, bool) {
	var req submitRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	return req, true
}

// writeServiceError maps schedule errors onto HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	var ve *schedule.ValidationError
	var oe *schedule.OverlapError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: ve.Msg, Field: ve.Field})
	case errors.As(err, &oe):
		writeJSON(w, http.StatusConflict, overlapResponse{
			Error:    "선택한 시간에 다른 일정이 있습니다",
			Overlaps: oe.Conflicts,
		})
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, "일정을 찾을 수 없습니다")
	case isBadRequest(err):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		appLog.Error("request failed", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func nonNil(events []model.Event) []model.Event {
	if events == nil {
		return []model.Event{}
	}
	return events
}
