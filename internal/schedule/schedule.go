// Package schedule runs the named periodic jobs of the bot: leaderboard
// publication and score resets.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/victornm/quizbot/internal/domain"
	"github.com/victornm/quizbot/internal/errors"
	"github.com/victornm/quizbot/internal/score"
	"github.com/victornm/quizbot/internal/telemetry"
)

const (
	JobDailyLeaderboard  = "daily-leaderboard"
	JobResetDaily        = "reset-daily"
	JobWeeklyLeaderboard = "weekly-leaderboard"
	JobResetWeekly       = "reset-weekly"
)

const jobTimeout = 10 * time.Minute

// Job is a named unit of periodic work. Run returns a status text.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) (string, error)
}

// Trigger invokes callbacks at wall-clock boundaries described by cron specs.
type Trigger interface {
	Add(spec string, fn func()) error
	Start()
	// Stop stops firing and returns a context done when running callbacks end.
	Stop() context.Context
}

type Config struct {
	Trigger Trigger
	Jobs    []Job
}

type Scheduler struct {
	trigger Trigger
	jobs    map[string]Job
}

func New(c Config) (*Scheduler, error) {
	s := &Scheduler{
		trigger: c.Trigger,
		jobs:    make(map[string]Job, len(c.Jobs)),
	}
	for _, j := range c.Jobs {
		if _, ok := s.jobs[j.Name]; ok {
			return nil, fmt.Errorf("schedule: duplicate job %s", j.Name)
		}
		s.jobs[j.Name] = j
	}
	return s, nil
}

// Names returns the registered job names in lexical order.
func (s *Scheduler) Names() []string {
	names := make([]string, 0, len(s.jobs))
	for n := range s.jobs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Run runs the named job synchronously.
func (s *Scheduler) Run(ctx context.Context, name string) (string, error) {
	j, ok := s.jobs[name]
	if !ok {
		return "", errors.NotFound("job not found: %s", name)
	}

	start := time.Now()
	status, err := j.Run(ctx)
	telemetry.Metrics().RecordJob(name, err)
	if err != nil {
		slog.ErrorContext(ctx, "schedule: job failed", "job", name, "error", err)
		return "", fmt.Errorf("schedule: %s: %w", name, err)
	}

	slog.InfoContext(ctx, "schedule: job completed", "job", name, "status", status, "duration", time.Since(start))
	return status, nil
}

// Start registers every job with a spec on the trigger and starts it. Jobs
// without a spec are only run on demand.
func (s *Scheduler) Start(ctx context.Context) error {
	for _, name := range s.Names() {
		name := name
		j := s.jobs[name]
		if j.Spec == "" {
			continue
		}

		err := s.trigger.Add(j.Spec, func() {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), jobTimeout)
			defer cancel()
			_, _ = s.Run(ctx, name)
		})
		if err != nil {
			return fmt.Errorf("schedule: add %s (%s): %w", name, j.Spec, err)
		}
		slog.InfoContext(ctx, "schedule: job registered", "job", name, "spec", j.Spec)
	}

	s.trigger.Start()
	return nil
}

// Stop stops the trigger and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.trigger.Stop().Done():
	case <-ctx.Done():
		slog.WarnContext(ctx, "schedule: stop timed out with jobs running")
	}
}

// Specs holds the cron specs of the standard jobs.
type Specs struct {
	DailyLeaderboard  string
	ResetDaily        string
	WeeklyLeaderboard string
	ResetWeekly       string
}

// DefaultSpecs fire the daily jobs at 21:00 and 21:01, and the weekly ones on
// Sunday at 21:00 and 21:05.
func DefaultSpecs() Specs {
	return Specs{
		DailyLeaderboard:  "0 21 * * *",
		ResetDaily:        "1 21 * * *",
		WeeklyLeaderboard: "0 21 * * 0",
		ResetWeekly:       "5 21 * * 0",
	}
}

type Leaderboards interface {
	Publish(ctx context.Context, kind domain.LeaderboardKind) (string, error)
}

type Resetter interface {
	ResetDaily(ctx context.Context) (score.ResetReport, error)
	ResetWeekly(ctx context.Context) (score.ResetReport, error)
}

// StandardJobs builds the four leaderboard and reset jobs.
func StandardJobs(specs Specs, lb Leaderboards, sc Resetter) []Job {
	reset := func(fn func(context.Context) (score.ResetReport, error)) func(context.Context) (string, error) {
		return func(ctx context.Context) (string, error) {
			r, err := fn(ctx)
			if err != nil {
				return "", err
			}
			return r.String(), nil
		}
	}

	return []Job{
		{
			Name: JobDailyLeaderboard,
			Spec: specs.DailyLeaderboard,
			Run: func(ctx context.Context) (string, error) {
				return lb.Publish(ctx, domain.LeaderboardDaily)
			},
		},
		{Name: JobResetDaily, Spec: specs.ResetDaily, Run: reset(sc.ResetDaily)},
		{
			Name: JobWeeklyLeaderboard,
			Spec: specs.WeeklyLeaderboard,
			Run: func(ctx context.Context) (string, error) {
				return lb.Publish(ctx, domain.LeaderboardWeekly)
			},
		},
		{Name: JobResetWeekly, Spec: specs.ResetWeekly, Run: reset(sc.ResetWeekly)},
	}
}

// CronTrigger is a Trigger backed by robfig/cron with standard five-field specs.
type CronTrigger struct {
	c *cron.Cron
}

func NewCronTrigger(loc *time.Location) *CronTrigger {
	return &CronTrigger{c: cron.New(cron.WithLocation(loc))}
}

func (t *CronTrigger) Add(spec string, fn func()) error {
	_, err := t.c.AddFunc(spec, fn)
	return err
}

func (t *CronTrigger) Start() { t.c.Start() }

func (t *CronTrigger) Stop() context.Context { return t.c.Stop() }
