package ics

import (
	"bytes"
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "clickcal/internal/log"
	"clickcal/internal/model"
)

// Parse turns one feed body into overlay occurrences shown in the display
// zone loc. Recurring series (RRULE/RDATE), their overrides and cancelled
// events are skipped; only single events are drawn.
func Parse(src Source, body []byte, loc *time.Location) ([]model.Occurrence, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	if loc == nil {
		loc = time.Local
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	out := make([]model.Occurrence, 0)
	skipped := 0
	for _, ve := range cal.Events() {
		if isRecurring(ve) || isCancelled(ve) {
			skipped++
			continue
		}
		occ, err := parseVEvent(src, ve, loc)
		if err != nil {
			appLog.Debug("feed vevent skipped", "id", src.ID, "reason", err.Error())
			skipped++
			continue
		}
		out = append(out, occ)
	}

	appLog.Debug("feed parsed", "id", src.ID, "events", len(out), "skipped", skipped)
	return out, nil
}

func isRecurring(ve *ical.VEvent) bool {
	return ve.GetProperty(ical.ComponentPropertyRrule) != nil ||
		ve.GetProperty(ical.ComponentPropertyRdate) != nil ||
		ve.GetProperty(ical.ComponentProperty("RECURRENCE-ID")) != nil
}

func isCancelled(ve *ical.VEvent) bool {
	p := ve.GetProperty(ical.ComponentPropertyStatus)
	return p != nil && strings.EqualFold(strings.TrimSpace(p.Value), "CANCELLED")
}

func parseVEvent(src Source, ve *ical.VEvent, loc *time.Location) (model.Occurrence, error) {
	occ := model.Occurrence{SourceID: src.ID}

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return occ, errors.New("missing UID")
	}
	occ.UID = uid.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		occ.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		occ.Location = p.Value
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return occ, errors.New("missing DTSTART")
	}

	if isDateValue(dtStart) {
		// all-day: DTEND is exclusive and defaults to the next day
		start, err := parseDateValue(dtStart.Value)
		if err != nil {
			return occ, err
		}
		end := start.AddDays(1)
		if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil {
			if d, err := parseDateValue(dtEnd.Value); err == nil && d.After(start) {
				end = d
			}
		}
		occ.AllDay = true
		occ.Start = start.In(loc)
		occ.End = end.In(loc)
		return occ, nil
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return occ, err
	}
	end, err := ve.GetEndAt()
	if err != nil || end.Before(start) {
		end = start
	}
	occ.Start = start.In(loc)
	occ.End = end.In(loc)
	return occ, nil
}

// isDateValue detects VALUE=DATE or a bare YYYYMMDD value.
func isDateValue(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

func parseDateValue(v string) (model.Date, error) {
	v = strings.TrimSpace(v)
	if len(v) < 8 {
		return model.Date{}, model.ErrInvalidDate
	}
	t, err := time.Parse("20060102", v[:8])
	if err != nil {
		return model.Date{}, model.ErrInvalidDate
	}
	return model.DateOf(t), nil
}
