package model

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by repositories for unknown event IDs.
var ErrNotFound = errors.New("event not found")

// Event is a single scheduled entry on one calendar day.
// StartTime must be strictly before EndTime; the schedule service enforces it.
type Event struct {
	ID string `json:"id"`

	Date      Date   `json:"date"`
	Title     string `json:"title"`
	StartTime Clock  `json:"start_time"`
	EndTime   Clock  `json:"end_time"`

	Description string `json:"description"`
	Location    string `json:"location"`
	Category    string `json:"category"`

	// NotifyBefore is the reminder lead time in minutes (0 = none).
	NotifyBefore int `json:"notify_before"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EventInput is the raw event form as submitted by the page or API client.
// Everything is a string so validation can report the offending field.
type EventInput struct {
	Date         string `json:"date"`
	Title        string `json:"title"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	Description  string `json:"description"`
	Location     string `json:"location"`
	Category     string `json:"category"`
	NotifyBefore int    `json:"notify_before"`
}

// Occurrence is a read-only item from an external ICS feed, already
// normalized into the display timezone. Occurrences are drawn on the grid
// but never take part in overlap checks.
type Occurrence struct {
	SourceID string // feed ID from config
	UID      string // iCalendar UID

	Summary  string
	Location string

	AllDay bool

	Start time.Time
	End   time.Time
}

// Date is the display-zone day on which the occurrence starts.
func (o Occurrence) Date() Date {
	return DateOf(o.Start)
}

// EventRepository is the persistence surface the schedule service needs
// inside one atomic submission.
type EventRepository interface {
	ListByDate(ctx context.Context, d Date) ([]Event, error)
	Get(ctx context.Context, id string) (Event, error)
	Create(ctx context.Context, e *Event) error
	Update(ctx context.Context, e *Event) error
	Delete(ctx context.Context, id string) error
}
