package game

import (
	"context"
	"fmt"
	"time"

	"github.com/victornm/quizbot/internal/domain"
	"github.com/victornm/quizbot/internal/score"
	"github.com/victornm/quizbot/internal/window"
)

// QuestionSource is what the engine needs from the question set.
type QuestionSource interface {
	Get(ctx context.Context, id string) (domain.Question, error)
	PickUnseen(ctx context.Context, exclude []string) (domain.Question, bool, error)
}

// Outcome classifies a turn.
type Outcome string

const (
	OutcomeCorrect   Outcome = "correct"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeWrong     Outcome = "wrong"
	OutcomeAsked     Outcome = "asked"
	OutcomeExhausted Outcome = "exhausted"
	OutcomeLimit     Outcome = "limit"
	OutcomeError     Outcome = "error"
)

// Turn is the result of one inbound message.
type Turn struct {
	State   domain.UserState
	Reply   string
	Outcome Outcome
	// Changed is false when State equals the input state.
	Changed bool
	// QuestionID is the question answered or asked, if any.
	QuestionID string
}

type EngineConfig struct {
	Questions QuestionSource
	// Window is the answer window of a question. Defaults to window.DefaultDuration.
	Window time.Duration
	// MaxQuestions caps how many questions a user can score. Zero means no cap.
	MaxQuestions int
}

// Engine is the per-user game state machine. A user is either idle (no
// current question) or awaiting an answer to the current question.
type Engine struct {
	questions    QuestionSource
	window       time.Duration
	maxQuestions int
}

func NewEngine(c EngineConfig) *Engine {
	e := &Engine{
		questions:    c.Questions,
		window:       c.Window,
		maxQuestions: c.MaxQuestions,
	}
	if e.window <= 0 {
		e.window = window.DefaultDuration
	}
	return e
}

// Play computes the next state and the reply for text received at now. The
// input state is never modified.
//
// While the window is open a correct answer is scored, "next" draws another
// question and anything else is rejected. An idle user or an expired window
// draws another question whatever the text.
func (e *Engine) Play(ctx context.Context, state domain.UserState, text string, now time.Time) (Turn, error) {
	next := state.Clone()
	cq := next.CurrentQuestion

	if window.IsOpen(cq, now) {
		q, err := e.questions.Get(ctx, cq.QuestionID)
		if err != nil {
			return Turn{}, fmt.Errorf("game: current question %s: %w", cq.QuestionID, err)
		}

		switch {
		case IsCorrect(text, q.Answer):
			awarded := score.Award(&next, cq.QuestionID, now)
			next.CurrentQuestion = nil

			t := Turn{State: next, Changed: true, QuestionID: cq.QuestionID}
			if awarded {
				t.Outcome, t.Reply = OutcomeCorrect, replyCorrect(next.Score)
			} else {
				t.Outcome, t.Reply = OutcomeDuplicate, replyDuplicate(next.Score)
			}
			return t, nil

		case !IsNext(text):
			return Turn{State: next, Outcome: OutcomeWrong, Reply: ReplyWrong, QuestionID: cq.QuestionID}, nil
		}
	}

	return e.advance(ctx, next, now)
}

// advance replaces the current question with a fresh unseen one.
func (e *Engine) advance(ctx context.Context, next domain.UserState, now time.Time) (Turn, error) {
	wasIdle := next.CurrentQuestion == nil

	if e.maxQuestions > 0 && len(next.AnsweredQuestions) >= e.maxQuestions {
		next.CurrentQuestion = nil
		return Turn{State: next, Outcome: OutcomeLimit, Reply: replyLimit(e.maxQuestions), Changed: !wasIdle}, nil
	}

	exclude := next.AnsweredQuestions
	if !wasIdle {
		// Skipping must not ask the same question again.
		exclude = append(exclude[:len(exclude):len(exclude)], next.CurrentQuestion.QuestionID)
	}

	q, ok, err := e.questions.PickUnseen(ctx, exclude)
	if err != nil {
		return Turn{}, fmt.Errorf("game: pick question: %w", err)
	}
	if !ok {
		next.CurrentQuestion = nil
		return Turn{State: next, Outcome: OutcomeExhausted, Reply: ReplyExhausted, Changed: !wasIdle}, nil
	}

	next.CurrentQuestion = window.Open(q.ID, now, e.window)
	return Turn{
		State:      next,
		Outcome:    OutcomeAsked,
		Reply:      replyPrompt(q, window.Remaining(next.CurrentQuestion, now)),
		Changed:    true,
		QuestionID: q.ID,
	}, nil
}
