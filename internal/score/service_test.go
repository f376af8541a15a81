package score_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizbot/internal/domain"
	"github.com/victornm/quizbot/internal/score"
	"github.com/victornm/quizbot/internal/storage"
	"github.com/victornm/quizbot/internal/storage/memory"
	"github.com/victornm/quizbot/internal/user"
)

var now = time.Date(2026, 10, 18, 15, 31, 0, 0, time.UTC)

func TestAward(t *testing.T) {
	type (
		inputs struct {
			state      domain.UserState
			questionID string
		}

		outputs struct {
			awarded bool
			state   domain.UserState
		}
	)

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, out outputs)
	}{
		"first correct answer adds a point to score and today's bucket": {
			arrange: func() inputs {
				u := domain.NewUserState("+1")
				u.Score = 4
				u.DailyScores["2026-10-17"] = 4
				return inputs{state: u, questionID: "q1"}
			},

			assert: func(t *testing.T, out outputs) {
				require.True(t, out.awarded)
				assert.Equal(t, 5, out.state.Score)
				assert.Equal(t, map[string]int{"2026-10-17": 4, "2026-10-18": 1}, out.state.DailyScores)
				assert.Equal(t, []string{"q1"}, out.state.AnsweredQuestions)
				assert.Equal(t, now, out.state.LastPlayed)
			},
		},

		"already answered question is not scored again": {
			arrange: func() inputs {
				u := domain.NewUserState("+1")
				u.Score = 1
				u.DailyScores["2026-10-18"] = 1
				u.AnsweredQuestions = []string{"q1"}
				return inputs{state: u, questionID: "q1"}
			},

			assert: func(t *testing.T, out outputs) {
				require.False(t, out.awarded)
				assert.Equal(t, 1, out.state.Score)
				assert.Equal(t, map[string]int{"2026-10-18": 1}, out.state.DailyScores)
				assert.Equal(t, []string{"q1"}, out.state.AnsweredQuestions)
				assert.True(t, out.state.LastPlayed.IsZero())
			},
		},

		"nil daily scores are initialized": {
			arrange: func() inputs {
				return inputs{state: domain.UserState{UserID: "+1"}, questionID: "q1"}
			},

			assert: func(t *testing.T, out outputs) {
				require.True(t, out.awarded)
				assert.Equal(t, map[string]int{"2026-10-18": 1}, out.state.DailyScores)
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in := tt.arrange()
			out := outputs{state: in.state}
			out.awarded = score.Award(&out.state, in.questionID, now)

			tt.assert(t, out)
		})
	}
}

func TestAward_Idempotent(t *testing.T) {
	u := domain.NewUserState("+1")
	for i := 0; i < 3; i++ {
		score.Award(&u, "q1", now)
	}

	assert.Equal(t, 1, u.Score)
	assert.Equal(t, 1, u.DailyScores["2026-10-18"])
	assert.Equal(t, []string{"q1"}, u.AnsweredQuestions)
}

func TestService_ResetDaily(t *testing.T) {
	tests := map[string]struct {
		policy score.DailyResetPolicy
		want   map[string]int
	}{
		"today policy zeroes only today's bucket": {
			policy: score.ResetToday,
			want:   map[string]int{"2026-10-17": 2, "2026-10-18": 0},
		},
		"all policy clears every bucket": {
			policy: score.ResetAll,
			want:   map[string]int{},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			users := user.NewRepository(user.Config{Store: memory.NewStore()})

			u := domain.NewUserState("+1")
			u.Score = 5
			u.DailyScores = map[string]int{"2026-10-17": 2, "2026-10-18": 3}
			require.NoError(t, users.Save(ctx, u))

			s := score.NewService(score.Config{
				Users:       users,
				DailyPolicy: tt.policy,
				Now:         func() time.Time { return now },
			})

			r, err := s.ResetDaily(ctx)
			require.NoError(t, err)
			assert.Equal(t, score.ResetReport{Processed: 1}, r)

			got, err := users.Get(ctx, "+1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.DailyScores)
			assert.Equal(t, 5, got.Score, "daily reset should not touch the cumulative score")
		})
	}
}

func TestService_ResetDaily_LocalDay(t *testing.T) {
	ctx := context.Background()
	users := user.NewRepository(user.Config{Store: memory.NewStore()})

	u := domain.NewUserState("+1")
	u.DailyScores = map[string]int{"2026-10-18": 3}
	require.NoError(t, users.Save(ctx, u))

	newYork := time.FixedZone("EDT", -4*3600)
	s := score.NewService(score.Config{
		Users: users,
		Now:   func() time.Time { return time.Date(2026, 10, 18, 21, 0, 0, 0, newYork) },
	})

	r, err := s.ResetDaily(ctx)
	require.NoError(t, err)
	assert.Equal(t, score.ResetReport{Processed: 1}, r)

	got, err := users.Get(ctx, "+1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"2026-10-18": 0}, got.DailyScores)
}

func TestService_ResetWeekly(t *testing.T) {
	ctx := context.Background()
	users := user.NewRepository(user.Config{Store: memory.NewStore()})

	u := domain.NewUserState("+1")
	u.Score = 5
	u.DailyScores = map[string]int{"2026-10-18": 3}
	require.NoError(t, users.Save(ctx, u))
	require.NoError(t, users.Save(ctx, domain.NewUserState("+2")))

	s := score.NewService(score.Config{Users: users, Now: func() time.Time { return now }})

	r, err := s.ResetWeekly(ctx)
	require.NoError(t, err)
	assert.Equal(t, score.ResetReport{Processed: 2}, r)

	got, err := users.Get(ctx, "+1")
	require.NoError(t, err)
	assert.Zero(t, got.Score)
	assert.Equal(t, map[string]int{"2026-10-18": 3}, got.DailyScores, "weekly reset should keep daily history")
}

func TestService_Reset_ContinuesAfterFailure(t *testing.T) {
	ctx := context.Background()
	st := &failingStore{Store: memory.NewStore(), failKey: "+2"}
	users := user.NewRepository(user.Config{Store: st})

	for _, id := range []string{"+1", "+2", "+3"} {
		u := domain.NewUserState(id)
		u.Score = 1
		require.NoError(t, users.Save(ctx, u))
	}

	s := score.NewService(score.Config{Users: users, Now: func() time.Time { return now }})

	r, err := s.ResetWeekly(ctx)
	require.NoError(t, err)
	assert.Equal(t, score.ResetReport{Processed: 2, Failed: 1}, r)

	for id, want := range map[string]int{"+1": 0, "+2": 1, "+3": 0} {
		got, err := users.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got.Score, "user %s", id)
	}
}

type failingStore struct {
	storage.Store
	failKey string
}

func (s *failingStore) Update(ctx context.Context, collection, key string, fn storage.UpdateFunc) error {
	if key == s.failKey {
		return fmt.Errorf("connection reset")
	}
	return s.Store.Update(ctx, collection, key, fn)
}
