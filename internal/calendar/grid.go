// Package calendar lays out the month and week grids the page renders and
// the page script clicks on.
package calendar

import (
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"clickcal/internal/model"
)

// ErrInvalidView is returned by ParseView for anything but month/week.
var ErrInvalidView = errors.New("invalid view mode")

// CellKeyPrefix prefixes the ISO date in every cell's lookup key.
const CellKeyPrefix = "calendar-cell-"

type ViewMode string

const (
	ViewMonth ViewMode = "month"
	ViewWeek  ViewMode = "week"
)

// ParseView parses a view query value. An empty string yields def.
func ParseView(s string, def ViewMode) (ViewMode, error) {
	switch ViewMode(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return def, nil
	case ViewMonth:
		return ViewMonth, nil
	case ViewWeek:
		return ViewWeek, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidView, s)
	}
}

// Label is the Korean toggle text for the view.
func (v ViewMode) Label() string {
	if v == ViewWeek {
		return "주"
	}
	return "월"
}

// ParseWeekStart maps the config value to a weekday; anything but
// "monday" starts the week on Sunday.
func ParseWeekStart(s string) time.Weekday {
	if strings.EqualFold(strings.TrimSpace(s), "monday") {
		return time.Monday
	}
	return time.Sunday
}

// Cell is one slot of the grid. Padding slots in month view have
// InRange == false and a zero Date.
type Cell struct {
	Date    model.Date
	InRange bool
}

// Key is the stable lookup key of the cell ("calendar-cell-2025-11-15").
// Padding slots have no key.
func (c Cell) Key() string {
	if !c.InRange {
		return ""
	}
	return CellKeyPrefix + c.Date.String()
}

// DateFromKey is the inverse of Cell.Key.
func DateFromKey(key string) (model.Date, error) {
	rest, ok := strings.CutPrefix(key, CellKeyPrefix)
	if !ok {
		return model.Date{}, fmt.Errorf("%w: key %q", model.ErrInvalidDate, key)
	}
	return model.ParseDate(rest)
}

// Grid is the laid-out calendar for one view and reference date.
type Grid struct {
	View      ViewMode
	Ref       model.Date
	WeekStart time.Weekday
	// Weeks holds rows of exactly seven cells.
	Weeks [][7]Cell
}

// Build lays out the grid containing ref.
//
//   - month: every week overlapping ref's month; days of neighbouring months
//     are padding.
//   - week: the seven days of the week containing ref, all in range even
//     when the week crosses a month boundary.
func Build(view ViewMode, ref model.Date, weekStart time.Weekday) Grid {
	g := Grid{View: view, Ref: ref, WeekStart: weekStart}

	if view == ViewWeek {
		start := startOfWeek(ref, weekStart)
		var row [7]Cell
		for i := range row {
			row[i] = Cell{Date: start.AddDays(i), InRange: true}
		}
		g.Weeks = [][7]Cell{row}
		return g
	}

	first := ref.FirstOfMonth()
	cursor := startOfWeek(first, weekStart)
	for {
		var row [7]Cell
		inMonth := false
		for i := range row {
			d := cursor.AddDays(i)
			if d.Month == ref.Month && d.Year == ref.Year {
				row[i] = Cell{Date: d, InRange: true}
				inMonth = true
			}
		}
		if !inMonth {
			break
		}
		g.Weeks = append(g.Weeks, row)
		cursor = cursor.AddDays(7)
	}
	return g
}

// Dates yields the in-range dates in order. Each call restarts from the
// first cell.
func (g Grid) Dates() iter.Seq[model.Date] {
	return func(yield func(model.Date) bool) {
		for _, w := range g.Weeks {
			for _, c := range w {
				if !c.InRange {
					continue
				}
				if !yield(c.Date) {
					return
				}
			}
		}
	}
}

// Range returns the first and last in-range dates.
func (g Grid) Range() (from, to model.Date) {
	for d := range g.Dates() {
		if from.IsZero() {
			from = d
		}
		to = d
	}
	return from, to
}

// Title is the Korean heading: "2025년 11월" for month view and
// "2025년 11월 3주" for week view.
func (g Grid) Title() string {
	if g.View == ViewWeek {
		return fmt.Sprintf("%d년 %d월 %d주", g.Ref.Year, int(g.Ref.Month), weekOfMonth(g.Ref, g.WeekStart))
	}
	return fmt.Sprintf("%d년 %d월", g.Ref.Year, int(g.Ref.Month))
}

// Prev is the reference date one page back.
func (g Grid) Prev() model.Date {
	if g.View == ViewWeek {
		return g.Ref.AddDays(-7)
	}
	return g.Ref.AddMonths(-1)
}

// Next is the reference date one page forward.
func (g Grid) Next() model.Date {
	if g.View == ViewWeek {
		return g.Ref.AddDays(7)
	}
	return g.Ref.AddMonths(1)
}

var weekdayShort = [7]string{"일", "월", "화", "수", "목", "금", "토"}

// WeekdayLabels returns the column headers starting at weekStart.
func WeekdayLabels(weekStart time.Weekday) []string {
	out := make([]string, 7)
	for i := range out {
		out[i] = weekdayShort[(int(weekStart)+i)%7]
	}
	return out
}

func startOfWeek(d model.Date, weekStart time.Weekday) model.Date {
	offset := (int(d.Weekday()) - int(weekStart) + 7) % 7
	return d.AddDays(-offset)
}

func weekOfMonth(d model.Date, weekStart time.Weekday) int {
	first := d.FirstOfMonth()
	lead := (int(first.Weekday()) - int(weekStart) + 7) % 7
	return (d.Day+lead-1)/7 + 1
}
