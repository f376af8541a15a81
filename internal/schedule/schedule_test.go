package schedule_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizbot/internal/domain"
	"github.com/victornm/quizbot/internal/errors"
	"github.com/victornm/quizbot/internal/schedule"
	"github.com/victornm/quizbot/internal/score"
)

type fakeTrigger struct {
	mu      sync.Mutex
	fns     map[string][]func()
	started bool
}

func (t *fakeTrigger) Add(spec string, fn func()) error {
	if spec == "bad" {
		return fmt.Errorf("invalid spec")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fns == nil {
		t.fns = map[string][]func(){}
	}
	t.fns[spec] = append(t.fns[spec], fn)
	return nil
}

func (t *fakeTrigger) Start() { t.started = true }

func (t *fakeTrigger) Stop() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

func (t *fakeTrigger) fire(spec string) {
	for _, fn := range t.fns[spec] {
		fn()
	}
}

type fakeJobs struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeJobs) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeJobs) Publish(_ context.Context, kind domain.LeaderboardKind) (string, error) {
	f.record("publish " + string(kind))
	return "published", f.err
}

func (f *fakeJobs) ResetDaily(context.Context) (score.ResetReport, error) {
	f.record("reset daily")
	return score.ResetReport{Processed: 2}, f.err
}

func (f *fakeJobs) ResetWeekly(context.Context) (score.ResetReport, error) {
	f.record("reset weekly")
	return score.ResetReport{Processed: 3, Failed: 1}, f.err
}

func TestScheduler_FiresStandardJobs(t *testing.T) {
	jobs := &fakeJobs{}
	trig := &fakeTrigger{}

	s, err := schedule.New(schedule.Config{
		Trigger: trig,
		Jobs:    schedule.StandardJobs(schedule.DefaultSpecs(), jobs, jobs),
	})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	require.True(t, trig.started)

	trig.fire("0 21 * * *")
	trig.fire("1 21 * * *")
	trig.fire("0 21 * * 0")
	trig.fire("5 21 * * 0")

	assert.Equal(t, []string{"publish daily", "reset daily", "publish weekly", "reset weekly"}, jobs.calls)

	s.Stop(context.Background())
}

func TestScheduler_Run(t *testing.T) {
	tests := map[string]struct {
		job    string
		err    error
		assert func(t *testing.T, status string, err error)
	}{
		"leaderboard job returns the publish status": {
			job: schedule.JobWeeklyLeaderboard,
			assert: func(t *testing.T, status string, err error) {
				require.NoError(t, err)
				assert.Equal(t, "published", status)
			},
		},
		"reset job returns its report": {
			job: schedule.JobResetWeekly,
			assert: func(t *testing.T, status string, err error) {
				require.NoError(t, err)
				assert.Equal(t, "processed=3 failed=1", status)
			},
		},
		"failing job returns the error": {
			job: schedule.JobResetDaily,
			err: fmt.Errorf("storage down"),
			assert: func(t *testing.T, _ string, err error) {
				assert.ErrorContains(t, err, "storage down")
			},
		},
		"unknown job is not found": {
			job: "reset-monthly",
			assert: func(t *testing.T, _ string, err error) {
				assert.True(t, errors.Is(err, errors.CodeNotFound))
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			jobs := &fakeJobs{err: tt.err}
			s, err := schedule.New(schedule.Config{
				Trigger: &fakeTrigger{},
				Jobs:    schedule.StandardJobs(schedule.DefaultSpecs(), jobs, jobs),
			})
			require.NoError(t, err)

			status, err := s.Run(context.Background(), tt.job)
			tt.assert(t, status, err)
		})
	}
}

func TestScheduler_Errors(t *testing.T) {
	noop := func(context.Context) (string, error) { return "", nil }

	_, err := schedule.New(schedule.Config{
		Trigger: &fakeTrigger{},
		Jobs:    []schedule.Job{{Name: "a", Run: noop}, {Name: "a", Run: noop}},
	})
	assert.Error(t, err, "duplicate job names should be rejected")

	s, err := schedule.New(schedule.Config{
		Trigger: &fakeTrigger{},
		Jobs:    []schedule.Job{{Name: "a", Spec: "bad", Run: noop}},
	})
	require.NoError(t, err)
	assert.Error(t, s.Start(context.Background()))
}

func TestDefaultSpecs_FireAtISTEvening(t *testing.T) {
	ist := time.FixedZone("IST", 5*60*60+30*60)
	// Saturday 2026-10-17 12:00 IST.
	from := time.Date(2026, 10, 17, 12, 0, 0, 0, ist)

	tests := map[string]struct {
		spec string
		want time.Time
	}{
		"daily leaderboard": {schedule.DefaultSpecs().DailyLeaderboard, time.Date(2026, 10, 17, 21, 0, 0, 0, ist)},
		"daily reset":       {schedule.DefaultSpecs().ResetDaily, time.Date(2026, 10, 17, 21, 1, 0, 0, ist)},
		"weekly leaderboard on sunday": {
			schedule.DefaultSpecs().WeeklyLeaderboard, time.Date(2026, 10, 18, 21, 0, 0, 0, ist),
		},
		"weekly reset on sunday": {schedule.DefaultSpecs().ResetWeekly, time.Date(2026, 10, 18, 21, 5, 0, 0, ist)},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			sched, err := cron.ParseStandard(tt.spec)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(sched.Next(from)), "got %s", sched.Next(from))
		})
	}
}

func TestCronTrigger_RejectsInvalidSpec(t *testing.T) {
	trig := schedule.NewCronTrigger(time.UTC)
	assert.Error(t, trig.Add("every day", func() {}))
	assert.NoError(t, trig.Add("0 21 * * *", func() {}))
}
