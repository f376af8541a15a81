// Package window holds the time rules of the game: answer windows and the
// day/week buckets scores are accumulated in. All functions are pure.
package window

import (
	"fmt"
	"time"

	"github.com/victornm/quizbot/internal/domain"
)

// DefaultDuration is how long a question accepts answers unless configured otherwise.
const DefaultDuration = 60 * time.Second

const dailyLayout = "2006-01-02"

// Open starts an answer window for the question at now.
func Open(questionID string, now time.Time, d time.Duration) *domain.CurrentQuestion {
	if d <= 0 {
		d = DefaultDuration
	}
	return &domain.CurrentQuestion{
		QuestionID:  questionID,
		WindowStart: now,
		WindowEnd:   now.Add(d),
	}
}

// IsOpen reports whether answers to cq are still accepted at now.
// The window is closed at WindowEnd itself.
func IsOpen(cq *domain.CurrentQuestion, now time.Time) bool {
	if !cq.Complete() {
		return false
	}
	return now.Before(cq.WindowEnd)
}

// Remaining returns the time left in the window, or zero when it is closed.
func Remaining(cq *domain.CurrentQuestion, now time.Time) time.Duration {
	if !IsOpen(cq, now) {
		return 0
	}
	return cq.WindowEnd.Sub(now)
}

// Daily returns the calendar date bucket of t in t's location, e.g. "2026-10-18".
// Callers pass instants in the quiz timezone so a day ends at local midnight.
func Daily(t time.Time) string {
	return t.Format(dailyLayout)
}

// Weekly returns the ISO week bucket of t in t's location, e.g. "2026-W42".
func Weekly(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// Bucket returns the bucket of t for the given leaderboard kind.
func Bucket(kind domain.LeaderboardKind, t time.Time) string {
	if kind == domain.LeaderboardWeekly {
		return Weekly(t)
	}
	return Daily(t)
}
