package window_test

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizbot/internal/domain"
	"github.com/victornm/quizbot/internal/window"
)

func TestIsOpen(t *testing.T) {
	start := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	cq := window.Open("q1", start, time.Minute)

	tests := map[string]struct {
		cq   *domain.CurrentQuestion
		now  time.Time
		want bool
	}{
		"open at window start":           {cq: cq, now: start, want: true},
		"open one nanosecond before end": {cq: cq, now: start.Add(time.Minute - time.Nanosecond), want: true},
		"closed exactly at window end":   {cq: cq, now: start.Add(time.Minute), want: false},
		"closed after window end":        {cq: cq, now: start.Add(2 * time.Minute), want: false},
		"nil question is never open":     {cq: nil, now: start, want: false},
		"partial question is never open": {cq: &domain.CurrentQuestion{QuestionID: "q1"}, now: start, want: false},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, window.IsOpen(tt.cq, tt.now))
		})
	}
}

func TestOpen(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	cq := window.Open("q1", now, 0)
	require.True(t, cq.Complete())
	require.Equal(t, now.Add(window.DefaultDuration), cq.WindowEnd)
	require.Equal(t, 15*time.Second, window.Remaining(cq, now.Add(45*time.Second)))
	require.Zero(t, window.Remaining(cq, now.Add(time.Hour)))
}

func TestBuckets(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	newYork := time.FixedZone("EDT", -4*3600)

	tests := map[string]struct {
		at         time.Time
		wantDaily  string
		wantWeekly string
	}{
		"plain utc instant": {
			at:         time.Date(2026, 10, 18, 15, 30, 0, 0, time.UTC),
			wantDaily:  "2026-10-18",
			wantWeekly: "2026-W42",
		},
		"evening keeps its local date": {
			at:         time.Date(2026, 10, 18, 21, 0, 0, 0, ist),
			wantDaily:  "2026-10-18",
			wantWeekly: "2026-W42",
		},
		"early morning belongs to its local date": {
			at:         time.Date(2026, 10, 19, 2, 0, 0, 0, ist),
			wantDaily:  "2026-10-19",
			wantWeekly: "2026-W43",
		},
		"evening west of utc is not the next utc day": {
			at:         time.Date(2026, 10, 18, 21, 0, 0, 0, newYork),
			wantDaily:  "2026-10-18",
			wantWeekly: "2026-W42",
		},
		"iso week year differs from calendar year": {
			at:         time.Date(2027, 1, 1, 12, 0, 0, 0, time.UTC),
			wantDaily:  "2027-01-01",
			wantWeekly: "2026-W53",
		},
		"single digit week is zero padded": {
			at:         time.Date(2026, 1, 7, 0, 0, 0, 0, time.UTC),
			wantDaily:  "2026-01-07",
			wantWeekly: "2026-W02",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.wantDaily, window.Daily(tt.at))
			assert.Equal(t, tt.wantWeekly, window.Weekly(tt.at))
			assert.Equal(t, tt.wantDaily, window.Bucket(domain.LeaderboardDaily, tt.at))
			assert.Equal(t, tt.wantWeekly, window.Bucket(domain.LeaderboardWeekly, tt.at))
		})
	}
}

func TestWeeklyBucketsSortChronologically(t *testing.T) {
	start := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)

	var buckets []string
	for i := 0; i < 20; i++ {
		buckets = append(buckets, window.Weekly(start.AddDate(0, 0, 7*i)))
	}

	require.True(t, sort.StringsAreSorted(buckets), "buckets: %v", buckets)
}
