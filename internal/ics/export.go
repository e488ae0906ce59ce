package ics

import (
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-ical"

	"clickcal/internal/model"
)

// ProductID is written to PRODID of exported calendars.
const ProductID = "-//clickcal//Calendar Export//KO"

// Export encodes events as an iCalendar document. Times are written in UTC;
// loc is the zone the stored wall-clock times belong to.
func Export(w io.Writer, events []model.Event, loc *time.Location, now time.Time) error {
	if loc == nil {
		loc = time.Local
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, ProductID)
	cal.Props.SetText("X-WR-TIMEZONE", loc.String())

	stamp := now.UTC()
	for _, e := range events {
		vevent := ical.NewEvent()
		vevent.Props.SetText(ical.PropUID, e.ID+"@clickcal")
		vevent.Props.SetDateTime(ical.PropDateTimeStamp, stamp)
		vevent.Props.SetDateTime(ical.PropDateTimeStart, e.StartTime.On(e.Date, loc).UTC())
		vevent.Props.SetDateTime(ical.PropDateTimeEnd, e.EndTime.On(e.Date, loc).UTC())
		vevent.Props.SetText(ical.PropSummary, e.Title)
		if !e.CreatedAt.IsZero() {
			vevent.Props.SetDateTime(ical.PropCreated, e.CreatedAt.UTC())
		}
		if !e.UpdatedAt.IsZero() {
			vevent.Props.SetDateTime(ical.PropLastModified, e.UpdatedAt.UTC())
		}
		if e.Description != "" {
			vevent.Props.SetText(ical.PropDescription, e.Description)
		}
		if e.Location != "" {
			vevent.Props.SetText(ical.PropLocation, e.Location)
		}
		if e.Category != "" {
			vevent.Props.SetText(ical.PropCategories, e.Category)
		}
		if e.NotifyBefore > 0 {
			vevent.Children = append(vevent.Children, alarm(e))
		}
		cal.Children = append(cal.Children, vevent.Component)
	}

	// The encoder refuses a VCALENDAR without components.
	if len(cal.Children) == 0 {
		return writeEmpty(w, loc)
	}
	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("encode calendar: %w", err)
	}
	return nil
}

func writeEmpty(w io.Writer, loc *time.Location) error {
	_, err := fmt.Fprintf(w, "BEGIN:%s\r\nVERSION:2.0\r\nPRODID:%s\r\nX-WR-TIMEZONE:%s\r\nEND:%s\r\n",
		ical.CompCalendar, ProductID, loc.String(), ical.CompCalendar)
	if err != nil {
		return fmt.Errorf("encode calendar: %w", err)
	}
	return nil
}

func alarm(e model.Event) *ical.Component {
	valarm := ical.NewComponent(ical.CompAlarm)
	valarm.Props.SetText(ical.PropAction, "DISPLAY")
	valarm.Props.SetText(ical.PropDescription, e.Title)

	trigger := ical.NewProp(ical.PropTrigger)
	trigger.SetDuration(-time.Duration(e.NotifyBefore) * time.Minute)
	valarm.Props.Set(trigger)
	return valarm
}
