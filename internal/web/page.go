package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"clickcal/internal/calendar"
	appLog "clickcal/internal/log"
	"clickcal/internal/model"
)

// eventView is an event as drawn in a cell and in the event list.
type eventView struct {
	ID          string `json:"id"`
	Date        string `json:"date"`
	Title       string `json:"title"`
	Time        string `json:"time"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`
	Category    string `json:"category,omitempty"`
	Highlight   bool   `json:"highlight"`
}

type overlayView struct {
	Source  string `json:"source"`
	Summary string `json:"summary"`
	Time    string `json:"time,omitempty"`
	AllDay  bool   `json:"all_day"`
}

type cellView struct {
	Key      string        `json:"key,omitempty"`
	Date     string        `json:"date,omitempty"`
	Day      int           `json:"day,omitempty"`
	InRange  bool          `json:"in_range"`
	Today    bool          `json:"today"`
	Weekday  int           `json:"weekday"`
	Events   []eventView   `json:"events"`
	Overlays []overlayView `json:"overlays"`
}

type viewToggle struct {
	Mode   string `json:"mode"`
	Label  string `json:"label"`
	Active bool   `json:"active"`
}

type gridView struct {
	Title    string       `json:"title"`
	View     string       `json:"view"`
	Ref      string       `json:"ref"`
	Prev     string       `json:"prev"`
	Next     string       `json:"next"`
	Today    string       `json:"today"`
	From     string       `json:"from"`
	To       string       `json:"to"`
	Views    []viewToggle `json:"views"`
	Weekdays []string     `json:"weekdays"`
	Weeks    [][]cellView `json:"weeks"`
	Events   []eventView  `json:"events"`
}

type pageView struct {
	Grid       gridView
	AllowReset bool
}

// gridRequest resolves ?view= and ?date=, falling back to the configured
// default view and initial date.
func (s *Server) gridRequest(r *http.Request) (calendar.ViewMode, model.Date, error) {
	q := r.URL.Query()

	view, err := calendar.ParseView(q.Get("view"), s.view)
	if err != nil {
		return "", model.Date{}, err
	}

	raw := q.Get("date")
	if raw == "" {
		raw = s.cfg.InitialDate
	}
	ref, err := calendar.ParseReference(raw, s.now().In(s.loc))
	if err != nil {
		return "", model.Date{}, err
	}
	return view, ref, nil
}

func (s *Server) buildGrid(ctx context.Context, view calendar.ViewMode, ref model.Date) (gridView, error) {
	g := calendar.Build(view, ref, s.week)
	from, to := g.Range()

	events, err := s.svc.List(ctx, from, to)
	if err != nil {
		return gridView{}, err
	}
	byDate := calendar.GroupByDate(events)

	var overlays map[model.Date][]model.Occurrence
	if s.feeds != nil {
		overlays = s.feeds.ByDate(from, to)
	}

	today := model.DateOf(s.now().In(s.loc))

	out := gridView{
		Title:    g.Title(),
		View:     string(g.View),
		Ref:      ref.String(),
		Prev:     g.Prev().String(),
		Next:     g.Next().String(),
		Today:    today.String(),
		From:     from.String(),
		To:       to.String(),
		Weekdays: calendar.WeekdayLabels(s.week),
		Weeks:    make([][]cellView, 0, len(g.Weeks)),
		Events:   make([]eventView, 0, len(events)),
	}
	for _, m := range []calendar.ViewMode{calendar.ViewMonth, calendar.ViewWeek} {
		out.Views = append(out.Views, viewToggle{Mode: string(m), Label: m.Label(), Active: m == g.View})
	}

	for _, week := range g.Weeks {
		row := make([]cellView, 0, len(week))
		for i, c := range week {
			cv := cellView{
				InRange:  c.InRange,
				Weekday:  (int(s.week) + i) % 7,
				Events:   []eventView{},
				Overlays: []overlayView{},
			}
			if c.InRange {
				cv.Key = c.Key()
				cv.Date = c.Date.String()
				cv.Day = c.Date.Day
				cv.Today = c.Date == today
				for _, e := range byDate[c.Date] {
					cv.Events = append(cv.Events, s.eventView(e))
				}
				for _, o := range overlays[c.Date] {
					cv.Overlays = append(cv.Overlays, overlayOf(o))
				}
			}
			row = append(row, cv)
		}
		out.Weeks = append(out.Weeks, row)
	}

	for d := range g.Dates() {
		for _, e := range byDate[d] {
			out.Events = append(out.Events, s.eventView(e))
		}
	}
	return out, nil
}

func (s *Server) eventView(e model.Event) eventView {
	return eventView{
		ID:          e.ID,
		Date:        e.Date.String(),
		Title:       e.Title,
		Time:        e.StartTime.String() + " - " + e.EndTime.String(),
		Description: e.Description,
		Location:    e.Location,
		Category:    e.Category,
		Highlight:   s.highlighted(e),
	}
}

// highlighted reports whether the title or category contains a configured
// highlight keyword.
func (s *Server) highlighted(e model.Event) bool {
	for _, kw := range s.cfg.Highlight {
		if kw == "" {
			continue
		}
		if strings.Contains(e.Title, kw) || strings.Contains(e.Category, kw) {
			return true
		}
	}
	return false
}

func overlayOf(o model.Occurrence) overlayView {
	ov := overlayView{Source: o.SourceID, Summary: o.Summary, AllDay: o.AllDay}
	if !o.AllDay {
		ov.Time = o.Start.Format("15:04")
	}
	return ov
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	s.renderGrid(w, r, "page")
}

// handleGridPartial renders only the calendar section; the page script swaps
// it in after navigation and after every change.
func (s *Server) handleGridPartial(w http.ResponseWriter, r *http.Request) {
	s.renderGrid(w, r, "grid")
}

func (s *Server) renderGrid(w http.ResponseWriter, r *http.Request, name string) {
	view, ref, err := s.gridRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	grid, err := s.buildGrid(r.Context(), view, ref)
	if err != nil {
		appLog.Error("build grid failed", err, "view", string(view), "date", ref.String())
		http.Error(w, "failed to load events", http.StatusInternalServerError)
		return
	}

	var data any = grid
	if name == "page" {
		data = pageView{Grid: grid, AllowReset: s.cfg.AllowReset}
	}

	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		appLog.Error("render template failed", err, "template", name)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

// handleCalendar is the JSON form of the grid.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	view, ref, err := s.gridRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	grid, err := s.buildGrid(r.Context(), view, ref)
	if err != nil {
		appLog.Error("build grid failed", err)
		writeError(w, http.StatusInternalServerError, "failed to load events")
		return
	}
	writeJSON(w, http.StatusOK, grid)
}

func isBadRequest(err error) bool {
	return errors.Is(err, calendar.ErrInvalidView) || errors.Is(err, model.ErrInvalidDate)
}

func dateParam(r *http.Request, name string) (model.Date, bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return model.Date{}, false, nil
	}
	d, err := model.ParseDate(raw)
	if err != nil {
		return model.Date{}, false, fmt.Errorf("%s: %w", name, err)
	}
	return d, true, nil
}
