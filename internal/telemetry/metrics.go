package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "quizbot"

type QuizMetrics struct {
	turns         *prometheus.CounterVec
	points        prometheus.Counter
	notifications *prometheus.CounterVec
	jobs          *prometheus.CounterVec
	resetFailures *prometheus.CounterVec
	adminCommands *prometheus.CounterVec
}

var (
	quizMetricsOnce sync.Once
	quizRegistry    *QuizMetrics
)

// Metrics returns the lazily registered process-wide quiz metrics.
func Metrics() *QuizMetrics {
	quizMetricsOnce.Do(func() {
		quizRegistry = &QuizMetrics{
			turns: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "game",
				Name:      "turns_total",
				Help:      "Inbound messages processed, segmented by turn outcome.",
			}, []string{"outcome"}),
			points: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "game",
				Name:      "points_awarded_total",
				Help:      "Points awarded for first correct answers.",
			}),
			notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "notify",
				Name:      "messages_total",
				Help:      "Outbound messages, segmented by transport and result.",
			}, []string{"transport", "result"}),
			jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "schedule",
				Name:      "job_runs_total",
				Help:      "Scheduled or manually triggered job runs, segmented by job and result.",
			}, []string{"job", "result"}),
			resetFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "score",
				Name:      "reset_failures_total",
				Help:      "Users whose score reset failed, segmented by reset kind.",
			}, []string{"kind"}),
			adminCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "admin",
				Name:      "commands_total",
				Help:      "Admin commands, segmented by command and result.",
			}, []string{"command", "result"}),
		}
		prometheus.MustRegister(
			quizRegistry.turns,
			quizRegistry.points,
			quizRegistry.notifications,
			quizRegistry.jobs,
			quizRegistry.resetFailures,
			quizRegistry.adminCommands,
		)
	})
	return quizRegistry
}

func (m *QuizMetrics) RecordTurn(outcome string) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(outcome).Inc()
}

func (m *QuizMetrics) RecordPoint() {
	if m == nil {
		return
	}
	m.points.Inc()
}

func (m *QuizMetrics) RecordNotification(transport string, err error) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(transport, result(err)).Inc()
}

func (m *QuizMetrics) RecordJob(job string, err error) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(job, result(err)).Inc()
}

func (m *QuizMetrics) RecordResetFailure(kind string) {
	if m == nil {
		return
	}
	m.resetFailures.WithLabelValues(kind).Inc()
}

func (m *QuizMetrics) RecordAdminCommand(command string, err error) {
	if m == nil {
		return
	}
	m.adminCommands.WithLabelValues(command, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
