package game

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/victornm/quizbot/internal/domain"
	"github.com/victornm/quizbot/internal/errors"
	"github.com/victornm/quizbot/internal/event"
	"github.com/victornm/quizbot/internal/telemetry"
	"github.com/victornm/quizbot/internal/user"
)

type Config struct {
	EventBus *event.Bus
	Users    *user.Repository
	Engine   *Engine
	Now      func() time.Time
}

type Service struct {
	eb     *event.Bus
	users  *user.Repository
	engine *Engine
	now    func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		eb:     c.EventBus,
		users:  c.Users,
		engine: c.Engine,
		now:    c.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// InboundMessage is a message received from a player.
type InboundMessage struct {
	// From is the channel address, e.g. "whatsapp:+919741092786".
	From        string
	Body        string
	ProfileName string
}

// HandleMessage runs one turn for the sender and returns the reply to send
// back. The user document is read, transitioned and written in a single
// optimistic update; a conflicting concurrent delivery recomputes the turn on
// the fresh state. On error the returned reply is the generic error text.
func (s *Service) HandleMessage(ctx context.Context, msg InboundMessage) (string, error) {
	id := user.NormalizeID(msg.From)
	if id == "" {
		return ReplyError, errors.InvalidArgument("missing sender address")
	}

	now := s.now()

	var turn Turn
	_, err := s.users.Update(ctx, id, func(cur domain.UserState, exists bool) (domain.UserState, bool, error) {
		t, err := s.engine.Play(ctx, cur, msg.Body, now)
		if err != nil {
			return cur, false, err
		}
		turn = t

		next, changed := t.State, t.Changed || !exists
		if name := strings.TrimSpace(msg.ProfileName); name != "" && next.Name != name {
			next.Name, changed = name, true
		}
		if next.Address == "" {
			next.Address, changed = strings.TrimSpace(msg.From), true
		}
		return next, changed, nil
	})
	if err != nil {
		telemetry.Metrics().RecordTurn(string(OutcomeError))
		slog.ErrorContext(ctx, "game: turn failed", "user", id, "error", err)
		return ReplyError, err
	}

	telemetry.Metrics().RecordTurn(string(turn.Outcome))
	slog.DebugContext(ctx, "game: turn played", "user", id, "outcome", turn.Outcome, "question", turn.QuestionID)

	if turn.Outcome == OutcomeCorrect {
		s.eb.Publish(ctx, domain.EventScoreRecorded{
			UserID:     id,
			QuestionID: turn.QuestionID,
			TotalScore: turn.State.Score,
			Time:       now,
		})
	}

	return turn.Reply, nil
}
