package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	appLog "clickcal/internal/log"
	"clickcal/internal/model"
)

// Notices shown in the toast after a successful change.
const (
	NoticeCreated = "일정이 추가되었습니다"
	NoticeUpdated = "일정이 수정되었습니다"
	NoticeDeleted = "일정이 삭제되었습니다"
)

// Store is the persistence the service runs on. Atomic must run fn inside a
// single transaction and hand it a repository bound to that transaction.
type Store interface {
	model.EventRepository
	List(ctx context.Context, from, to model.Date) ([]model.Event, error)
	Search(ctx context.Context, q string) ([]model.Event, error)
	Clear(ctx context.Context) error
	Atomic(ctx context.Context, fn func(ctx context.Context, repo model.EventRepository) error) error
}

// Recorder receives counters for metrics. A nil Recorder is allowed.
type Recorder interface {
	EventCreated()
	EventUpdated()
	EventDeleted()
	OverlapWarned()
}

// Result is what a successful create/update/delete hands back to the page.
type Result struct {
	Event model.Event
	// Notice is the toast text.
	Notice string
	// Overlaps lists the events the user knowingly overlapped.
	Overlaps []model.Event
}

// Service owns the submit flow: validate, check overlaps, persist, notify.
type Service struct {
	store Store
	rec   Recorder
	loc   *time.Location
	now   func() time.Time

	// mu serializes the read-overlaps-then-write sequence across requests.
	mu sync.Mutex
}

// NewService wires a service. loc is used for reminder timing; nil means
// time.Local.
func NewService(st Store, rec Recorder, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		store: st,
		rec:   rec,
		loc:   loc,
		now:   time.Now,
	}
}

// Create validates in and stores it as a new event. When the event collides
// with existing ones and confirm is false, nothing is written and the error
// is an *OverlapError.
func (s *Service) Create(ctx context.Context, in model.EventInput, confirm bool) (Result, error) {
	ev, err := Validate(in)
	if err != nil {
		return Result{}, err
	}

	var conflicts []model.Event
	err = s.atomic(ctx, func(ctx context.Context, repo model.EventRepository) error {
		existing, err := repo.ListByDate(ctx, ev.Date)
		if err != nil {
			return err
		}
		conflicts = FindOverlaps(ev, existing)
		if len(conflicts) > 0 && !confirm {
			return &OverlapError{Conflicts: conflicts}
		}

		now := s.now().UTC()
		ev.ID = uuid.NewString()
		ev.CreatedAt = now
		ev.UpdatedAt = now
		return repo.Create(ctx, &ev)
	})
	if err != nil {
		return Result{}, s.fail("create", ev, err)
	}

	appLog.Info("event created",
		"id", ev.ID,
		"date", ev.Date.String(),
		"start", ev.StartTime.String(),
		"end", ev.EndTime.String(),
		"overlaps", len(conflicts),
	)
	if s.rec != nil {
		s.rec.EventCreated()
	}
	return Result{Event: ev, Notice: NoticeCreated, Overlaps: conflicts}, nil
}

// Update replaces the event id with in, running the same overlap flow as
// Create. The event never conflicts with its own previous version.
func (s *Service) Update(ctx context.Context, id string, in model.EventInput, confirm bool) (Result, error) {
	ev, err := Validate(in)
	if err != nil {
		return Result{}, err
	}
	ev.ID = id

	var conflicts []model.Event
	err = s.atomic(ctx, func(ctx context.Context, repo model.EventRepository) error {
		prev, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}

		existing, err := repo.ListByDate(ctx, ev.Date)
		if err != nil {
			return err
		}
		conflicts = FindOverlaps(ev, existing)
		if len(conflicts) > 0 && !confirm {
			return &OverlapError{Conflicts: conflicts}
		}

		ev.CreatedAt = prev.CreatedAt
		ev.UpdatedAt = s.now().UTC()
		return repo.Update(ctx, &ev)
	})
	if err != nil {
		return Result{}, s.fail("update", ev, err)
	}

	appLog.Info("event updated", "id", ev.ID, "date", ev.Date.String(), "overlaps", len(conflicts))
	if s.rec != nil {
		s.rec.EventUpdated()
	}
	return Result{Event: ev, Notice: NoticeUpdated, Overlaps: conflicts}, nil
}

// Delete removes the event id.
func (s *Service) Delete(ctx context.Context, id string) (Result, error) {
	var prev model.Event
	err := s.atomic(ctx, func(ctx context.Context, repo model.EventRepository) error {
		var err error
		prev, err = repo.Get(ctx, id)
		if err != nil {
			return err
		}
		return repo.Delete(ctx, id)
	})
	if err != nil {
		return Result{}, fmt.Errorf("delete event %s: %w", id, err)
	}

	appLog.Info("event deleted", "id", id, "date", prev.Date.String())
	if s.rec != nil {
		s.rec.EventDeleted()
	}
	return Result{Event: prev, Notice: NoticeDeleted}, nil
}

// Get returns a single event.
func (s *Service) Get(ctx context.Context, id string) (model.Event, error) {
	return s.store.Get(ctx, id)
}

// List returns the events between from and to inclusive.
func (s *Service) List(ctx context.Context, from, to model.Date) ([]model.Event, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: range end %s is before start %s", model.ErrInvalidDate, to, from)
	}
	return s.store.List(ctx, from, to)
}

// Search matches q against title, description and location.
func (s *Service) Search(ctx context.Context, q string) ([]model.Event, error) {
	return s.store.Search(ctx, q)
}

// Reset wipes every stored event.
func (s *Service) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("reset events: %w", err)
	}
	appLog.Info("event store cleared")
	return nil
}

func (s *Service) atomic(ctx context.Context, fn func(ctx context.Context, repo model.EventRepository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Atomic(ctx, fn)
}

func (s *Service) fail(op string, ev model.Event, err error) error {
	var oe *OverlapError
	if errors.As(err, &oe) {
		appLog.Info("event overlaps existing events",
			"op", op,
			"date", ev.Date.String(),
			"start", ev.StartTime.String(),
			"end", ev.EndTime.String(),
			"conflicts", len(oe.Conflicts),
		)
		if s.rec != nil {
			s.rec.OverlapWarned()
		}
		return err
	}
	return fmt.Errorf("%s event: %w", op, err)
}
