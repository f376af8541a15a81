package score

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/victornm/quizbot/internal/domain"
	"github.com/victornm/quizbot/internal/telemetry"
	"github.com/victornm/quizbot/internal/user"
	"github.com/victornm/quizbot/internal/window"
)

// Point is the value of a first correct answer.
const Point = 1

// Award applies the scoring rule for a correct answer to questionID at now.
// It reports false, leaving u untouched, when the question was already scored.
func Award(u *domain.UserState, questionID string, now time.Time) bool {
	if u.HasAnswered(questionID) {
		return false
	}

	if u.DailyScores == nil {
		u.DailyScores = map[string]int{}
	}

	u.AnsweredQuestions = append(u.AnsweredQuestions, questionID)
	u.Score += Point
	u.DailyScores[window.Daily(now)] += Point
	u.LastPlayed = now
	return true
}

// DailyResetPolicy selects what ResetDaily clears.
type DailyResetPolicy string

const (
	// ResetToday zeroes only the current day's bucket and keeps the history.
	ResetToday DailyResetPolicy = "today"
	// ResetAll clears every daily bucket.
	ResetAll DailyResetPolicy = "all"
)

type Config struct {
	Users       *user.Repository
	DailyPolicy DailyResetPolicy
	Now         func() time.Time
}

type Service struct {
	users  *user.Repository
	policy DailyResetPolicy
	now    func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		users:  c.Users,
		policy: c.DailyPolicy,
		now:    c.Now,
	}
	if s.policy == "" {
		s.policy = ResetToday
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// ResetReport summarizes a full-collection reset.
type ResetReport struct {
	Processed int
	Failed    int
}

func (r ResetReport) String() string {
	return fmt.Sprintf("processed=%d failed=%d", r.Processed, r.Failed)
}

// ResetDaily clears daily scores according to the configured policy.
func (s *Service) ResetDaily(ctx context.Context) (ResetReport, error) {
	bucket := window.Daily(s.now())

	return s.reset(ctx, "daily", func(u domain.UserState) (domain.UserState, bool) {
		switch s.policy {
		case ResetAll:
			if len(u.DailyScores) == 0 {
				return u, false
			}
			u.DailyScores = map[string]int{}
		default:
			if u.DailyScores[bucket] == 0 {
				return u, false
			}
			u.DailyScores[bucket] = 0
		}
		return u, true
	})
}

// ResetWeekly zeroes the cumulative score of every user. Daily history is kept.
func (s *Service) ResetWeekly(ctx context.Context) (ResetReport, error) {
	return s.reset(ctx, "weekly", func(u domain.UserState) (domain.UserState, bool) {
		if u.Score == 0 {
			return u, false
		}
		u.Score = 0
		return u, true
	})
}

// reset applies fn to every user in its own update. A failing user is logged
// and counted and does not stop the scan.
func (s *Service) reset(ctx context.Context, kind string, fn func(u domain.UserState) (domain.UserState, bool)) (ResetReport, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return ResetReport{}, fmt.Errorf("score: reset %s: %w", kind, err)
	}

	var r ResetReport
	for _, u := range users {
		_, err := s.users.Update(ctx, u.UserID, func(cur domain.UserState, exists bool) (domain.UserState, bool, error) {
			if !exists {
				return cur, false, nil
			}
			next, changed := fn(cur)
			return next, changed, nil
		})
		if err != nil {
			r.Failed++
			telemetry.Metrics().RecordResetFailure(kind)
			slog.ErrorContext(ctx, "score: reset user failed", "kind", kind, "user", u.UserID, "error", err)
			continue
		}
		r.Processed++
	}

	slog.InfoContext(ctx, "score: reset completed", "kind", kind, "processed", r.Processed, "failed", r.Failed)
	return r, nil
}
