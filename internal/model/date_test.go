package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		in      string
		want    Date
		wantErr bool
	}{
		{in: "2025-11-15", want: Date{2025, time.November, 15}},
		{in: "2024-02-29", want: Date{2024, time.February, 29}},
		{in: "2025-02-29", wantErr: true},
		{in: "2025-1-5", wantErr: true},
		{in: "2025/11/15", wantErr: true},
		{in: "", wantErr: true},
		{in: "2025-11-15T00:00:00Z", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDate(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidDate)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.String())
		})
	}
}

func TestDateArithmetic(t *testing.T) {
	d := MustDate("2025-11-30")
	assert.Equal(t, "2025-12-01", d.AddDays(1).String())
	assert.Equal(t, "2025-11-24", d.AddDays(-6).String())
	assert.Equal(t, "2025-12-30", d.AddMonths(1).String())
	assert.Equal(t, "2025-02-28", MustDate("2025-01-31").AddMonths(1).String())
	assert.Equal(t, "2024-12-31", MustDate("2025-01-31").AddMonths(-1).String())
	assert.Equal(t, time.Sunday, MustDate("2025-11-30").Weekday())

	assert.True(t, MustDate("2025-11-10").Before(MustDate("2025-11-25")))
	assert.True(t, MustDate("2026-01-01").After(MustDate("2025-12-31")))
	assert.Equal(t, 0, d.Compare(MustDate("2025-11-30")))
}

func TestDateJSON(t *testing.T) {
	var v struct {
		D Date `json:"d"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"d":"2025-11-18"}`), &v))
	assert.Equal(t, MustDate("2025-11-18"), v.D)

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"d":"2025-11-18"}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"d":"18.11.2025"}`), &v))
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    Clock
		wantErr bool
	}{
		{in: "09:00", want: 540},
		{in: "00:00", want: 0},
		{in: "23:59", want: 23*60 + 59},
		{in: "10:00:00", want: 600},
		{in: "24:00", wantErr: true},
		{in: "9:00", wantErr: true},
		{in: "09:60", wantErr: true},
		{in: "", wantErr: true},
		{in: "ab:cd", wantErr: true},
		{in: "+9:00", wantErr: true},
		{in: "-0:30", wantErr: true},
		{in: "09:+5", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClock(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidClock)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClockOn(t *testing.T) {
	loc := time.FixedZone("KST", 9*60*60)
	got := Clock(9*60 + 30).On(MustDate("2025-11-18"), loc)
	assert.Equal(t, time.Date(2025, time.November, 18, 9, 30, 0, 0, loc), got)
	assert.Equal(t, "09:30", Clock(570).String())
}
