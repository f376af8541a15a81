package leaderboard

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/victornm/quizbot/internal/domain"
	"github.com/victornm/quizbot/internal/errors"
	"github.com/victornm/quizbot/internal/event"
	"github.com/victornm/quizbot/internal/storage"
	"github.com/victornm/quizbot/internal/user"
	"github.com/victornm/quizbot/internal/window"
)

const defaultTopN = 10

type Config struct {
	EventBus *event.Bus
	Users    *user.Repository
	Store    storage.Store
	// TopN is the number of ranked users kept. Defaults to 10.
	TopN int
	Now  func() time.Time
}

type Service struct {
	eb    *event.Bus
	users *user.Repository
	topN  int
	now   func() time.Time

	snapshots map[domain.LeaderboardKind]*storage.Collection[domain.Leaderboard]
}

func NewService(c Config) *Service {
	s := &Service{
		eb:    c.EventBus,
		users: c.Users,
		topN:  c.TopN,
		now:   c.Now,
		snapshots: map[domain.LeaderboardKind]*storage.Collection[domain.Leaderboard]{
			domain.LeaderboardDaily:  storage.NewCollection[domain.Leaderboard](c.Store, storage.CollectionDailyWinners),
			domain.LeaderboardWeekly: storage.NewCollection[domain.Leaderboard](c.Store, storage.CollectionWeeklyWinners),
		},
	}
	if s.topN <= 0 {
		s.topN = defaultTopN
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Compute ranks users by their score for the bucket of kind containing at.
// The daily score is the day's bucket, the weekly score is the cumulative
// score. Users without a positive score are left out; ties keep the user id
// order.
func (s *Service) Compute(ctx context.Context, kind domain.LeaderboardKind, at time.Time) (domain.Leaderboard, error) {
	if !kind.Valid() {
		return domain.Leaderboard{}, errors.InvalidArgument("unknown leaderboard kind: %s", kind)
	}

	users, err := s.users.List(ctx)
	if err != nil {
		return domain.Leaderboard{}, fmt.Errorf("leaderboard: compute %s: %w", kind, err)
	}

	day := window.Daily(at)
	entries := make([]domain.LeaderboardEntry, 0, len(users))
	for _, u := range users {
		sc := u.Score
		if kind == domain.LeaderboardDaily {
			sc = u.DailyScores[day]
		}
		if sc <= 0 {
			continue
		}
		entries = append(entries, domain.LeaderboardEntry{
			UserID:  u.UserID,
			Name:    u.DisplayName(),
			Score:   sc,
			Address: u.Address,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Score > entries[j].Score })
	if len(entries) > s.topN {
		entries = entries[:s.topN]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}

	return domain.Leaderboard{
		Kind:    kind,
		Bucket:  window.Bucket(kind, at),
		Entries: entries,
	}, nil
}

// Publish computes the current leaderboard of kind, persists it as the
// snapshot of its bucket and announces it. It returns a status text for the
// caller. An empty leaderboard is neither persisted nor announced.
func (s *Service) Publish(ctx context.Context, kind domain.LeaderboardKind) (string, error) {
	lb, err := s.Compute(ctx, kind, s.now())
	if err != nil {
		return "", err
	}

	if len(lb.Entries) == 0 {
		slog.InfoContext(ctx, "leaderboard: nothing to publish", "kind", kind, "bucket", lb.Bucket)
		if kind == domain.LeaderboardDaily {
			return "No daily scores yet.", nil
		}
		return "No scores yet.", nil
	}

	if err := s.snapshots[kind].Put(ctx, lb.Bucket, lb); err != nil {
		return "", fmt.Errorf("leaderboard: save %s snapshot %s: %w", kind, lb.Bucket, err)
	}

	s.eb.Publish(ctx, domain.EventLeaderboardPublished{Leaderboard: lb})

	slog.InfoContext(ctx, "leaderboard: published", "kind", kind, "bucket", lb.Bucket, "entries", len(lb.Entries))
	if kind == domain.LeaderboardDaily {
		return "Daily leaderboard sent & logged.", nil
	}
	return "Weekly leaderboard sent & logged.", nil
}

// Snapshot returns the persisted leaderboard of a bucket.
func (s *Service) Snapshot(ctx context.Context, kind domain.LeaderboardKind, bucket string) (domain.Leaderboard, error) {
	c, ok := s.snapshots[kind]
	if !ok {
		return domain.Leaderboard{}, errors.InvalidArgument("unknown leaderboard kind: %s", kind)
	}

	lb, err := c.Get(ctx, bucket)
	if err != nil {
		if errors.Is(err, errors.CodeNotFound) {
			return domain.Leaderboard{}, errors.NotFound("leaderboard not found: kind=%s bucket=%s", kind, bucket)
		}
		return domain.Leaderboard{}, fmt.Errorf("leaderboard: get %s snapshot %s: %w", kind, bucket, err)
	}
	return lb, nil
}

// Format renders the leaderboard summary sent to the admin channel.
func Format(lb domain.Leaderboard) string {
	title := fmt.Sprintf("📊 Daily Top %d (%s)", len(lb.Entries), lb.Bucket)
	if lb.Kind == domain.LeaderboardWeekly {
		title = fmt.Sprintf("🏆 Weekly Top %d (Final Scores, %s)", len(lb.Entries), lb.Bucket)
	}

	lines := []string{"*" + title + "*", ""}
	for _, e := range lb.Entries {
		lines = append(lines, fmt.Sprintf("%d. %s - %d pts", e.Rank, e.Name, e.Score))
	}
	return strings.Join(lines, "\n")
}

// WinnerMessage renders the personal message sent to a ranked user.
func WinnerMessage(kind domain.LeaderboardKind, e domain.LeaderboardEntry) string {
	if kind == domain.LeaderboardWeekly {
		return fmt.Sprintf("🏆 Weekly Congrats %s!\nYou ranked #%d this week with %d points!\nLet's aim higher next week! 🚀", e.Name, e.Rank, e.Score)
	}
	return fmt.Sprintf("🎉 Congrats %s! You ranked #%d in today's quiz with %d points!\nKeep going, tomorrow's leaderboard awaits!", e.Name, e.Rank, e.Score)
}
