// Package jobs runs the periodic work of the server on a cron schedule:
// refreshing external feeds and sweeping due event reminders.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "clickcal/internal/log"
	"clickcal/internal/schedule"
)

// ReminderSpec sweeps reminders once a minute.
const ReminderSpec = "* * * * *"

// Refresher reloads external feeds.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// ReminderSource lists reminders due at now.
type ReminderSource interface {
	Reminders(ctx context.Context, now time.Time) ([]schedule.Reminder, error)
}

// Notify delivers one reminder. The default logs it.
type Notify func(r schedule.Reminder)

type Options struct {
	Location *time.Location
	// RefreshSpec is a five-field cron expression; empty disables refresh.
	RefreshSpec string
	Feeds       Refresher
	Reminders   ReminderSource
	Notify      Notify
}

type Scheduler struct {
	cron      *cron.Cron
	opts      Options
	ctx       context.Context
	cancel    context.CancelFunc
	now       func() time.Time
	mu        sync.Mutex
	delivered map[string]time.Time
}

func New(opts Options) *Scheduler {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Notify == nil {
		opts.Notify = logReminder
	}
	return &Scheduler{
		cron:      cron.New(cron.WithLocation(opts.Location)),
		opts:      opts,
		now:       time.Now,
		delivered: make(map[string]time.Time),
	}
}

// Start registers the jobs and starts the cron goroutine. Jobs run with a
// context derived from ctx, cancelled by Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	if s.opts.Feeds != nil && s.opts.RefreshSpec != "" {
		if _, err := s.cron.AddFunc(s.opts.RefreshSpec, s.refreshFeeds); err != nil {
			return fmt.Errorf("add feed refresh %q: %w", s.opts.RefreshSpec, err)
		}
	}
	if s.opts.Reminders != nil {
		if _, err := s.cron.AddFunc(ReminderSpec, func() { s.SweepReminders(s.ctx, s.now()) }); err != nil {
			return fmt.Errorf("add reminder sweep: %w", err)
		}
	}

	s.cron.Start()
	appLog.Info("scheduler started",
		"tz", s.opts.Location.String(),
		"refresh", s.opts.RefreshSpec,
		"jobs", len(s.cron.Entries()),
	)
	return nil
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.cron.Stop().Done()
	appLog.Info("scheduler stopped")
}

func (s *Scheduler) refreshFeeds() {
	if err := s.opts.Feeds.Refresh(s.ctx); err != nil {
		appLog.Error("scheduled feed refresh failed", err)
	}
}

// SweepReminders delivers reminders due at now that were not delivered
// before and returns how many it delivered.
func (s *Scheduler) SweepReminders(ctx context.Context, now time.Time) int {
	due, err := s.opts.Reminders.Reminders(ctx, now)
	if err != nil {
		appLog.Error("reminder sweep failed", err)
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, at := range s.delivered {
		if now.Sub(at) > 48*time.Hour {
			delete(s.delivered, key)
		}
	}

	n := 0
	for _, r := range due {
		if _, done := s.delivered[r.Key()]; done {
			continue
		}
		s.delivered[r.Key()] = now
		s.opts.Notify(r)
		n++
	}
	return n
}

func logReminder(r schedule.Reminder) {
	appLog.Info("reminder",
		"id", r.Event.ID,
		"date", r.Event.Date.String(),
		"start", r.Event.StartTime.String(),
		"message", r.Message,
	)
}
