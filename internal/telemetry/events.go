package telemetry

import (
	"context"
	"log/slog"

	"github.com/victornm/quizbot/internal/domain"
	"github.com/victornm/quizbot/internal/event"
)

// SubscribeScoreEvents counts awarded points from committed score events.
func SubscribeScoreEvents(eb *event.Bus) {
	eb.Subscribe(domain.EventNameScoreRecorded, func(ctx context.Context, e event.Event) error {
		ev := e.(domain.EventScoreRecorded)
		Metrics().RecordPoint()
		slog.DebugContext(ctx, "score recorded",
			"user_id", ev.UserID,
			"question_id", ev.QuestionID,
			"total", ev.TotalScore,
		)
		return nil
	})
}
