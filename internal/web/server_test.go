package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clickcal/internal/config"
	"clickcal/internal/metric"
	"clickcal/internal/model"
	"clickcal/internal/schedule"
	"clickcal/internal/store"
)

var fixedNow = time.Date(2025, time.November, 15, 8, 55, 0, 0, time.UTC)

type testEnv struct {
	srv *httptest.Server
	svc *schedule.Service
	cfg *config.Config
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.InitialDate = "2025-11-15"
	cfg.AllowReset = true
	if mutate != nil {
		mutate(cfg)
	}

	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	m := metric.New(nil)
	svc := schedule.NewService(st, m, time.UTC)

	s, err := NewServer(Options{
		Config:   cfg,
		Service:  svc,
		Metrics:  m.Handler(),
		Location: time.UTC,
		Now:      func() time.Time { return fixedNow },
	})
	require.NoError(t, err)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, svc: svc, cfg: cfg}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, r)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func submit(date, title, start, end string, confirm bool) submitRequest {
	return submitRequest{
		Event: model.EventInput{
			Date:        date,
			Title:       title,
			StartTime:   start,
			EndTime:     end,
			Description: "날짜 클릭으로 생성",
		},
		ConfirmOverlap: confirm,
	}
}

func TestPage_MonthViewHasCellKeys(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	html := string(body)

	assert.Contains(t, html, "2025년 11월")
	assert.Contains(t, html, `data-testid="calendar-cell-2025-11-01"`)
	assert.Contains(t, html, `data-testid="calendar-cell-2025-11-30"`)
	assert.NotContains(t, html, `calendar-cell-2025-10-31`, "padding slots carry no key")
	assert.Contains(t, html, `id="start-time"`)
	assert.Contains(t, html, `id="end-time"`)
	assert.Contains(t, html, ">일정 추가</button>")
	assert.Contains(t, html, "일정 겹침 경고")
	assert.Contains(t, html, "계속 진행")
	assert.Contains(t, html, `data-ready="false"`)
}

func TestPage_WeekView(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, http.MethodGet, "/partials/grid?view=week&date=2025-11-30", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	html := string(body)

	assert.Equal(t, 7, strings.Count(html, `data-testid="calendar-cell-`))
	assert.Contains(t, html, `calendar-cell-2025-11-30`)
	assert.Contains(t, html, `calendar-cell-2025-12-06`, "week view crosses the month boundary")
	assert.NotContains(t, html, "<html")
}

func TestPage_BadQuery(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, _ := env.do(t, http.MethodGet, "/?view=year", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/?date=xyz", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_CreateShowsOnGrid(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, http.MethodPost, "/api/events", submit("2025-11-18", "클릭으로 생성한 일정", "09:00", "10:00", false))
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var created eventResponse
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, "일정이 추가되었습니다", created.Notice)
	assert.Equal(t, "2025-11-18", created.Event.Date.String())

	_, page := env.do(t, http.MethodGet, "/", nil)
	assert.Contains(t, string(page), "클릭으로 생성한 일정")
}

func TestAPI_OverlapFlow(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, _ := env.do(t, http.MethodPost, "/api/events", submit("2025-11-18", "기존 일정", "09:00", "10:00", false))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := env.do(t, http.MethodPost, "/api/events", submit("2025-11-18", "겹치는 일정", "09:30", "10:30", false))
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	var conflict overlapResponse
	require.NoError(t, json.Unmarshal(body, &conflict))
	require.Len(t, conflict.Overlaps, 1)
	assert.Equal(t, "기존 일정", conflict.Overlaps[0].Title)

	resp, body = env.do(t, http.MethodPost, "/api/events", submit("2025-11-18", "겹치는 일정", "09:30", "10:30", true))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created eventResponse
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Len(t, created.Overlaps, 1)

	_, metrics := env.do(t, http.MethodGet, "/metrics", nil)
	assert.Contains(t, string(metrics), "clickcal_overlap_warnings_total 1")
	assert.Contains(t, string(metrics), "clickcal_events_created_total 2")
}

func TestAPI_Validation(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, http.MethodPost, "/api/events", submit("2025-11-18", "거꾸로", "10:00", "09:00", false))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var e errorResponse
	require.NoError(t, json.Unmarshal(body, &e))
	assert.Equal(t, "end-time", e.Field)
	assert.NotEmpty(t, e.Error)

	signed := submit("2025-11-18", "부호", "+9:00", "+9:30", false)
	resp, body = env.do(t, http.MethodPost, "/api/events", signed)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &e))
	assert.Equal(t, "start-time", e.Field)

	farAhead := submit("2025-11-18", "x", "09:00", "10:00", false)
	farAhead.Event.NotifyBefore = 1 << 30
	resp, body = env.do(t, http.MethodPost, "/api/events", farAhead)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &e))
	assert.Equal(t, "notify-before", e.Field)

	_, body = env.do(t, http.MethodGet, "/api/notifications", nil)
	assert.JSONEq(t, `{"reminders":[]}`, string(body))

	req, err := http.NewRequest(http.MethodPost, env.srv.URL+"/api/events", strings.NewReader("{not json"))
	require.NoError(t, err)
	raw, err := env.srv.Client().Do(req)
	require.NoError(t, err)
	raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)
}

func TestAPI_UpdateDeleteList(t *testing.T) {
	env := newTestEnv(t, nil)

	_, body := env.do(t, http.MethodPost, "/api/events", submit("2025-11-18", "회의", "09:00", "10:00", false))
	var created eventResponse
	require.NoError(t, json.Unmarshal(body, &created))
	id := created.Event.ID

	resp, body := env.do(t, http.MethodPut, "/api/events/"+id, submit("2025-11-20", "회의 (이동)", "09:00", "10:00", false))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var updated eventResponse
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, "일정이 수정되었습니다", updated.Notice)

	resp, body = env.do(t, http.MethodGet, "/api/events?from=2025-11-20&to=2025-11-20", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list eventsResponse
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list.Events, 1)
	assert.Equal(t, "회의 (이동)", list.Events[0].Title)

	resp, body = env.do(t, http.MethodGet, "/api/events?q="+url.QueryEscape("이동"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Len(t, list.Events, 1)

	resp, body = env.do(t, http.MethodDelete, "/api/events/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var deleted eventResponse
	require.NoError(t, json.Unmarshal(body, &deleted))
	assert.Equal(t, "일정이 삭제되었습니다", deleted.Notice)

	resp, _ = env.do(t, http.MethodDelete, "/api/events/"+id, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/api/events/"+id, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, "/api/events", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"events":[]}`, string(body))
}

func TestAPI_Reset(t *testing.T) {
	env := newTestEnv(t, nil)
	_, _ = env.do(t, http.MethodPost, "/api/events", submit("2025-11-18", "a", "09:00", "10:00", false))

	resp, _ := env.do(t, http.MethodDelete, "/api/events", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	all, err := env.svc.Search(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, all)

	locked := newTestEnv(t, func(c *config.Config) { c.AllowReset = false })
	resp, _ = locked.do(t, http.MethodDelete, "/api/events", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAPI_Calendar(t *testing.T) {
	env := newTestEnv(t, nil)
	_, _ = env.do(t, http.MethodPost, "/api/events", submit("2025-11-18", "중요 회의", "09:00", "10:00", false))

	resp, body := env.do(t, http.MethodGet, "/api/calendar?view=month", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var grid gridView
	require.NoError(t, json.Unmarshal(body, &grid))
	assert.Equal(t, "2025년 11월", grid.Title)
	assert.Equal(t, "2025-10-15", grid.Prev)
	assert.Equal(t, "2025-12-15", grid.Next)
	assert.Equal(t, "2025-11-15", grid.Today)
	require.Len(t, grid.Weeks, 6)

	var found bool
	for _, week := range grid.Weeks {
		for _, c := range week {
			if c.Date == "2025-11-18" {
				require.Len(t, c.Events, 1)
				assert.True(t, c.Events[0].Highlight, "중요 is a highlight keyword")
				found = true
			}
		}
	}
	assert.True(t, found)
}

func TestAPI_Notifications(t *testing.T) {
	env := newTestEnv(t, nil)

	req := submit("2025-11-15", "회의", "09:00", "10:00", false)
	req.Event.NotifyBefore = 10
	resp, _ := env.do(t, http.MethodPost, "/api/events", req)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := env.do(t, http.MethodGet, "/api/notifications", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out notificationsResponse
	require.NoError(t, json.Unmarshal(body, &out))
	require.Len(t, out.Reminders, 1)
	assert.Equal(t, "5분 후 회의 일정이 시작됩니다.", out.Reminders[0].Message)
}

func TestExport(t *testing.T) {
	env := newTestEnv(t, nil)
	_, _ = env.do(t, http.MethodPost, "/api/events", submit("2025-11-18", "회의", "09:00", "10:00", false))

	resp, body := env.do(t, http.MethodGet, "/calendar.ics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/calendar")
	assert.Contains(t, string(body), "SUMMARY:회의")
	assert.Contains(t, string(body), "DTSTART:20251118T090000Z")

	resp, _ = env.do(t, http.MethodGet, "/calendar.ics?from=nope", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestExport_Empty(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, path := range []string{"/calendar.ics", "/calendar.ics?from=2030-01-01&to=2030-01-31"} {
		resp, body := env.do(t, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Contains(t, resp.Header.Get("Content-Type"), "text/calendar", path)
		assert.True(t, strings.HasPrefix(string(body), "BEGIN:VCALENDAR"), path)
		assert.Contains(t, string(body), "END:VCALENDAR", path)
		assert.NotContains(t, string(body), "BEGIN:VEVENT", path)
	}
}

func TestBasicAuth(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "secret"}
	})

	resp, body := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	resp, _ = env.do(t, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, env.srv.URL+"/", nil)
	require.NoError(t, err)
	req.SetBasicAuth("admin", "secret")
	ok, err := env.srv.Client().Do(req)
	require.NoError(t, err)
	ok.Body.Close()
	assert.Equal(t, http.StatusOK, ok.StatusCode)
}

func TestStaticAssets(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, http.MethodGet, "/static/app.js", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "calendar-cell-")

	resp, body = env.do(t, http.MethodGet, "/static/app.css", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	css := string(body)
	hover := strings.Index(css, ".calendar-cell:not(.empty):hover")
	require.NotEqual(t, -1, hover)
	// the hover rule must come after today's highlight to win over it
	assert.Greater(t, hover, strings.Index(css, ".calendar-cell.today"))

	resp, _ = env.do(t, http.MethodGet, "/static/missing.js", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
