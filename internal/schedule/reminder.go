package schedule

import (
	"context"
	"fmt"
	"time"

	"clickcal/internal/model"
)

// Reminder is an event whose notification window is open.
type Reminder struct {
	Event   model.Event `json:"event"`
	At      time.Time   `json:"at"`
	Message string      `json:"message"`
}

// Key identifies one reminder instance; it changes when the event is moved
// or its lead time is edited.
func (r Reminder) Key() string {
	return fmt.Sprintf("%s@%s %s -%dm", r.Event.ID, r.Event.Date, r.Event.StartTime, r.Event.NotifyBefore)
}

// Reminders returns events with NotifyBefore > 0 whose window
// [start-NotifyBefore, start) contains now. Lead times longer than a day
// are not looked up.
func (s *Service) Reminders(ctx context.Context, now time.Time) ([]Reminder, error) {
	now = now.In(s.loc)
	today := model.DateOf(now)

	events, err := s.store.List(ctx, today, today.AddDays(1))
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}

	var out []Reminder
	for _, e := range events {
		if e.NotifyBefore <= 0 {
			continue
		}
		start := e.StartTime.On(e.Date, s.loc)
		at := start.Add(-time.Duration(e.NotifyBefore) * time.Minute)
		if now.Before(at) || !now.Before(start) {
			continue
		}
		out = append(out, Reminder{
			Event:   e,
			At:      at,
			Message: fmt.Sprintf("%s 후 %s 일정이 시작됩니다.", leadText(start.Sub(now)), e.Title),
		})
	}
	return out, nil
}

// leadText renders the time left before start, rounded up to whole minutes:
// "8분", "2시간", "1시간 30분".
func leadText(d time.Duration) string {
	mins := int((d + time.Minute - 1) / time.Minute)
	h, m := mins/60, mins%60
	switch {
	case h == 0:
		return fmt.Sprintf("%d분", m)
	case m == 0:
		return fmt.Sprintf("%d시간", h)
	default:
		return fmt.Sprintf("%d시간 %d분", h, m)
	}
}
