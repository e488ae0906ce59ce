package ics

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clickcal/internal/config"
	"clickcal/internal/model"
)

const holidayFeed = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//holidays//KO\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:suneung@test\r\n" +
	"DTSTAMP:20251101T000000Z\r\n" +
	"DTSTART;VALUE=DATE:20251113\r\n" +
	"DTEND;VALUE=DATE:20251114\r\n" +
	"SUMMARY:수능\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:trip@test\r\n" +
	"DTSTAMP:20251101T000000Z\r\n" +
	"DTSTART;VALUE=DATE:20251127\r\n" +
	"DTEND;VALUE=DATE:20251130\r\n" +
	"SUMMARY:휴가\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:standup@test\r\n" +
	"DTSTAMP:20251101T000000Z\r\n" +
	"DTSTART:20251103T000000Z\r\n" +
	"DTEND:20251103T001500Z\r\n" +
	"RRULE:FREQ=DAILY\r\n" +
	"SUMMARY:Standup\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:review@test\r\n" +
	"DTSTAMP:20251101T000000Z\r\n" +
	"DTSTART:20251118T050000Z\r\n" +
	"DTEND:20251118T060000Z\r\n" +
	"SUMMARY:Design review\r\n" +
	"LOCATION:Room 3\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:cancelled@test\r\n" +
	"DTSTAMP:20251101T000000Z\r\n" +
	"DTSTART:20251119T050000Z\r\n" +
	"DTEND:20251119T060000Z\r\n" +
	"STATUS:CANCELLED\r\n" +
	"SUMMARY:Cancelled\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func seoul(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	return loc
}

func TestParse_SkipsRecurringAndCancelled(t *testing.T) {
	loc := seoul(t)

	occs, err := Parse(Source{ID: "kr"}, []byte(holidayFeed), loc)
	require.NoError(t, err)
	require.Len(t, occs, 3)

	byUID := make(map[string]model.Occurrence)
	for _, o := range occs {
		byUID[o.UID] = o
		assert.Equal(t, "kr", o.SourceID)
	}
	assert.NotContains(t, byUID, "standup@test")
	assert.NotContains(t, byUID, "cancelled@test")

	suneung := byUID["suneung@test"]
	assert.True(t, suneung.AllDay)
	assert.Equal(t, model.MustDate("2025-11-13"), suneung.Date())

	review := byUID["review@test"]
	assert.False(t, review.AllDay)
	assert.Equal(t, 14, review.Start.Hour(), "05:00Z is 14:00 in Seoul")
	assert.Equal(t, "Room 3", review.Location)
}

func TestParse_Empty(t *testing.T) {
	_, err := Parse(Source{ID: "x"}, nil, time.UTC)
	assert.Error(t, err)
}

func TestFetcher_ConditionalAndFallback(t *testing.T) {
	var hits, notModified atomic.Int32
	var down atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if down.Load() {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		if r.Header.Get("If-None-Match") == `"v1"` {
			notModified.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte(holidayFeed))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), srv.Client())
	src := Source{ID: "kr", URL: srv.URL + "/private.ics?token=secret"}
	ctx := context.Background()

	first, err := f.FetchOne(ctx, src)
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Equal(t, holidayFeed, string(first.Body))

	second, err := f.FetchOne(ctx, src)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, int32(1), notModified.Load())
	assert.Equal(t, holidayFeed, string(second.Body))

	down.Store(true)
	third, err := f.FetchOne(ctx, src)
	require.NoError(t, err)
	assert.True(t, third.FromCache)
	assert.Equal(t, int32(3), hits.Load())

	_, err = f.FetchOne(ctx, Source{ID: "other", URL: srv.URL + "/other.ics"})
	assert.Error(t, err, "no cache to fall back on")
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://calendar.example.com/...(redacted)", redactURL("https://calendar.example.com/private/abc.ics?token=x"))
	assert.Equal(t, "ics://...(redacted)", redactURL("not a url"))
}

func TestFeeds_RefreshAndByDate(t *testing.T) {
	loc := seoul(t)

	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "nope", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(holidayFeed))
	}))
	defer srv.Close()

	sources := SourcesFromConfig([]config.FeedConfig{
		{ID: "kr", Name: "공휴일", URL: srv.URL + "/kr.ics"},
		{ID: "blank"},
	})
	require.Len(t, sources, 1)

	feeds := NewFeeds(NewFetcher(t.TempDir(), srv.Client()), sources, loc)
	require.NoError(t, feeds.Refresh(context.Background()))
	assert.False(t, feeds.RefreshedAt().IsZero())

	from, to := model.MustDate("2025-11-01"), model.MustDate("2025-11-30")
	assert.Len(t, feeds.Between(from, to), 3)

	days := feeds.ByDate(from, to)
	assert.Len(t, days[model.MustDate("2025-11-13")], 1)
	for _, d := range []string{"2025-11-27", "2025-11-28", "2025-11-29"} {
		require.Len(t, days[model.MustDate(d)], 1, d)
		assert.Equal(t, "휴가", days[model.MustDate(d)][0].Summary)
	}
	assert.Empty(t, days[model.MustDate("2025-11-30")], "DTEND is exclusive")

	fail.Store(true)
	// the cached body keeps the overlay alive
	require.NoError(t, feeds.Refresh(context.Background()))
	assert.Len(t, feeds.Between(from, to), 3)
}

func TestExport(t *testing.T) {
	loc := seoul(t)
	start, _ := model.ParseClock("09:00")
	end, _ := model.ParseClock("10:00")

	events := []model.Event{{
		ID:           "evt-1",
		Date:         model.MustDate("2025-11-18"),
		Title:        "클릭으로 생성한 일정",
		StartTime:    start,
		EndTime:      end,
		Description:  "날짜 클릭으로 생성",
		Location:     "회의실 A",
		NotifyBefore: 10,
	}}

	var buf bytes.Buffer
	require.NoError(t, Export(&buf, events, loc, time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "BEGIN:VCALENDAR"))
	assert.Contains(t, out, "PRODID:"+ProductID)
	assert.Contains(t, out, "UID:evt-1@clickcal")
	assert.Contains(t, out, "DTSTART:20251118T000000Z")
	assert.Contains(t, out, "DTEND:20251118T010000Z")
	assert.Contains(t, out, "SUMMARY:클릭으로 생성한 일정")
	assert.Contains(t, out, "BEGIN:VALARM")
	assert.Contains(t, out, "-PT10M")

	parsed, err := Parse(Source{ID: "self"}, buf.Bytes(), loc)
	require.NoError(t, err)
	require.Len(t, parsed, 1)
	assert.Equal(t, model.MustDate("2025-11-18"), parsed[0].Date())
}

func TestExport_EmptyCalendar(t *testing.T) {
	loc := seoul(t)

	var buf bytes.Buffer
	require.NoError(t, Export(&buf, nil, loc, time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "BEGIN:VCALENDAR\r\n"))
	assert.True(t, strings.HasSuffix(out, "END:VCALENDAR\r\n"))
	assert.Contains(t, out, "VERSION:2.0")
	assert.Contains(t, out, "PRODID:"+ProductID)
	assert.Contains(t, out, "X-WR-TIMEZONE:Asia/Seoul")

	parsed, err := Parse(Source{ID: "self"}, buf.Bytes(), loc)
	require.NoError(t, err)
	assert.Empty(t, parsed)
}
