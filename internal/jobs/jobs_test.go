package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clickcal/internal/model"
	"clickcal/internal/schedule"
)

type stubReminders struct {
	due []schedule.Reminder
	err error
}

func (s stubReminders) Reminders(context.Context, time.Time) ([]schedule.Reminder, error) {
	return s.due, s.err
}

type stubFeeds struct{ calls atomic.Int32 }

func (f *stubFeeds) Refresh(context.Context) error {
	f.calls.Add(1)
	return nil
}

func reminder(id string, start model.Clock) schedule.Reminder {
	return schedule.Reminder{
		Event:   model.Event{ID: id, Date: model.MustDate("2025-11-18"), Title: id, StartTime: start},
		Message: "10분 후 " + id + " 일정이 시작됩니다.",
	}
}

func TestSweepReminders_DeliversOnce(t *testing.T) {
	var got []string
	s := New(Options{
		Location:  time.UTC,
		Reminders: stubReminders{due: []schedule.Reminder{reminder("a", 540), reminder("b", 600)}},
		Notify:    func(r schedule.Reminder) { got = append(got, r.Event.ID) },
	})

	now := time.Date(2025, 11, 18, 8, 55, 0, 0, time.UTC)
	assert.Equal(t, 2, s.SweepReminders(context.Background(), now))
	assert.Equal(t, 0, s.SweepReminders(context.Background(), now.Add(time.Minute)))
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestSweepReminders_MovedEventFiresAgain(t *testing.T) {
	src := &stubReminders{due: []schedule.Reminder{reminder("a", 540)}}
	var n int
	s := New(Options{Reminders: src, Notify: func(schedule.Reminder) { n++ }})

	now := time.Date(2025, 11, 18, 8, 55, 0, 0, time.UTC)
	s.SweepReminders(context.Background(), now)

	s.opts.Reminders = stubReminders{due: []schedule.Reminder{reminder("a", 600)}}
	s.SweepReminders(context.Background(), now.Add(time.Hour))
	assert.Equal(t, 2, n)
}

func TestSweepReminders_Error(t *testing.T) {
	s := New(Options{Reminders: stubReminders{err: errors.New("db closed")}})
	assert.Equal(t, 0, s.SweepReminders(context.Background(), time.Now()))
}

func TestStart_InvalidRefreshSpec(t *testing.T) {
	s := New(Options{RefreshSpec: "every now and then", Feeds: &stubFeeds{}})
	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "add feed refresh")
}

func TestStartStop(t *testing.T) {
	feeds := &stubFeeds{}
	s := New(Options{
		Location:    time.UTC,
		RefreshSpec: "*/30 * * * *",
		Feeds:       feeds,
		Reminders:   stubReminders{},
	})
	require.NoError(t, s.Start(context.Background()))
	assert.Len(t, s.cron.Entries(), 2)
	s.Stop()
}
