// Package schedule validates event forms, detects time collisions and runs
// the create/update/delete flow behind the event form.
package schedule

import (
	"errors"
	"fmt"
	"strings"

	"clickcal/internal/model"
)

// MaxNotifyBefore is the longest reminder lead in minutes (one day).
const MaxNotifyBefore = 24 * 60

var (
	// ErrOverlap marks a submission that collides with existing events and
	// was not confirmed. Match with errors.Is; use errors.As with
	// *OverlapError to get the conflicting events.
	ErrOverlap = errors.New("event overlaps existing events")

	// ErrInvalidTimeRange is wrapped by a ValidationError when the start time
	// is not before the end time.
	ErrInvalidTimeRange = errors.New("start time must be before end time")
)

// OverlapError lists the events a candidate collides with.
type OverlapError struct {
	Conflicts []model.Event
}

func (e *OverlapError) Error() string {
	titles := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		titles = append(titles, fmt.Sprintf("%s (%s %s-%s)", c.Title, c.Date, c.StartTime, c.EndTime))
	}
	return fmt.Sprintf("%s: %s", ErrOverlap, strings.Join(titles, ", "))
}

func (e *OverlapError) Unwrap() error { return ErrOverlap }

// ValidationError reports the first form field that failed validation.
type ValidationError struct {
	Field string
	Msg   string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Overlaps reports whether two events intersect. Intervals are half-open:
// an event ending at 10:00 does not overlap one starting at 10:00.
func Overlaps(a, b model.Event) bool {
	if a.Date != b.Date {
		return false
	}
	return a.StartTime < b.EndTime && b.StartTime < a.EndTime
}

// FindOverlaps returns the events in existing that overlap candidate,
// skipping the candidate itself (same non-empty ID) so an edit never
// collides with its own previous version.
func FindOverlaps(candidate model.Event, existing []model.Event) []model.Event {
	var out []model.Event
	for _, e := range existing {
		if candidate.ID != "" && e.ID == candidate.ID {
			continue
		}
		if Overlaps(candidate, e) {
			out = append(out, e)
		}
	}
	return out
}

// Validate turns a raw form into an Event. Field names match the form
// input ids so the page can point at the offending input.
func Validate(in model.EventInput) (model.Event, error) {
	var ev model.Event

	if strings.TrimSpace(in.Date) == "" {
		return ev, &ValidationError{Field: "date", Msg: "날짜를 입력해 주세요"}
	}
	d, err := model.ParseDate(strings.TrimSpace(in.Date))
	if err != nil {
		return ev, &ValidationError{Field: "date", Msg: "날짜 형식이 올바르지 않습니다", Err: err}
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return ev, &ValidationError{Field: "title", Msg: "제목을 입력해 주세요"}
	}

	if strings.TrimSpace(in.StartTime) == "" {
		return ev, &ValidationError{Field: "start-time", Msg: "시작 시간을 입력해 주세요"}
	}
	start, err := model.ParseClock(in.StartTime)
	if err != nil {
		return ev, &ValidationError{Field: "start-time", Msg: "시작 시간 형식이 올바르지 않습니다", Err: err}
	}

	if strings.TrimSpace(in.EndTime) == "" {
		return ev, &ValidationError{Field: "end-time", Msg: "종료 시간을 입력해 주세요"}
	}
	end, err := model.ParseClock(in.EndTime)
	if err != nil {
		return ev, &ValidationError{Field: "end-time", Msg: "종료 시간 형식이 올바르지 않습니다", Err: err}
	}

	if start >= end {
		return ev, &ValidationError{Field: "end-time", Msg: "종료 시간은 시작 시간보다 늦어야 합니다", Err: ErrInvalidTimeRange}
	}

	if in.NotifyBefore < 0 {
		return ev, &ValidationError{Field: "notify-before", Msg: "알림 시간은 0 이상이어야 합니다"}
	}
	if in.NotifyBefore > MaxNotifyBefore {
		return ev, &ValidationError{Field: "notify-before", Msg: "알림은 최대 1일 전까지 설정할 수 있습니다"}
	}

	ev = model.Event{
		Date:         d,
		Title:        title,
		StartTime:    start,
		EndTime:      end,
		Description:  strings.TrimSpace(in.Description),
		Location:     strings.TrimSpace(in.Location),
		Category:     strings.TrimSpace(in.Category),
		NotifyBefore: in.NotifyBefore,
	}
	return ev, nil
}
