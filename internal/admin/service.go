// Package admin implements the administrative operations: question
// management, contact updates and broadcasts. They are reachable as text
// commands from a single authorized identity and through the REST API.
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/victornm/quizbot/internal/domain"
	"github.com/victornm/quizbot/internal/errors"
	"github.com/victornm/quizbot/internal/event"
	"github.com/victornm/quizbot/internal/question"
	"github.com/victornm/quizbot/internal/telemetry"
	"github.com/victornm/quizbot/internal/user"
)

const ReplyUnauthorized = "unauthorized"

const helpText = `Commands:
add {"question": "...", "options": ["..."], "answer": "...", "category": "..."}
remove <question id>
broadcast <message>
setnumber <user id> <whatsapp address>
count
help`

type Config struct {
	// Identity is the only sender allowed to run text commands.
	Identity  string
	EventBus  *event.Bus
	Questions *question.Service
	Users     *user.Repository
}

type Service struct {
	identity  string
	eb        *event.Bus
	questions *question.Service
	users     *user.Repository
}

func NewService(c Config) *Service {
	return &Service{
		identity:  strings.TrimSpace(c.Identity),
		eb:        c.EventBus,
		questions: c.Questions,
		users:     c.Users,
	}
}

// Authorized reports whether from is the configured admin identity. Nobody is
// authorized when no identity is configured.
func (s *Service) Authorized(from string) bool {
	return s.identity != "" && strings.TrimSpace(from) == s.identity
}

// Handle runs a text command sent by from and returns the reply. Error texts
// are echoed to the admin.
func (s *Service) Handle(ctx context.Context, from, text string) string {
	if !s.Authorized(from) {
		slog.WarnContext(ctx, "admin: unauthorized command", "from", from)
		telemetry.Metrics().RecordAdminCommand("unauthorized", errors.New(errors.CodeUnauthenticated))
		return ReplyUnauthorized
	}

	cmd, arg := splitCommand(text)
	reply, err := s.run(ctx, cmd, arg)
	telemetry.Metrics().RecordAdminCommand(cmd, err)
	if err != nil {
		slog.InfoContext(ctx, "admin: command failed", "command", cmd, "error", err)
		return "Error: " + errorText(err)
	}
	return reply
}

func (s *Service) run(ctx context.Context, cmd, arg string) (string, error) {
	switch cmd {
	case "add":
		var q domain.Question
		if err := json.Unmarshal([]byte(arg), &q); err != nil {
			return "", errors.InvalidArgument("invalid question payload: %v", err)
		}
		q, err := s.AddQuestion(ctx, q)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Question added: %s", q.ID), nil

	case "remove":
		if arg == "" {
			return "", errors.InvalidArgument("usage: remove <question id>")
		}
		if err := s.RemoveQuestion(ctx, arg); err != nil {
			return "", err
		}
		return "Question deleted", nil

	case "broadcast":
		n, err := s.Broadcast(ctx, arg)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Broadcast queued for %d users", n), nil

	case "setnumber":
		id, addr, _ := strings.Cut(arg, " ")
		if err := s.SetNumber(ctx, strings.TrimSpace(id), strings.TrimSpace(addr)); err != nil {
			return "", err
		}
		return "User WhatsApp number updated", nil

	case "count":
		n, err := s.questions.Count(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d questions", n), nil

	case "help", "start":
		return helpText, nil
	}

	return "", errors.InvalidArgument("unknown command %q, send help for the list", cmd)
}

func (s *Service) AddQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	return s.questions.Add(ctx, q)
}

func (s *Service) RemoveQuestion(ctx context.Context, id string) error {
	return s.questions.Remove(ctx, id)
}

// SetNumber sets the WhatsApp address of an existing user.
func (s *Service) SetNumber(ctx context.Context, userID, address string) error {
	if userID == "" {
		return errors.InvalidArgument("missing user id")
	}
	return s.users.SetAddress(ctx, userID, address)
}

// Broadcast queues msg for every user with a known address and returns the
// number of recipients. Delivery happens asynchronously.
func (s *Service) Broadcast(ctx context.Context, msg string) (int, error) {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return 0, errors.InvalidArgument("missing broadcast message")
	}

	users, err := s.users.List(ctx)
	if err != nil {
		return 0, err
	}

	addrs := make([]string, 0, len(users))
	for _, u := range users {
		if u.Address != "" {
			addrs = append(addrs, u.Address)
		}
	}

	s.eb.Publish(ctx, domain.EventBroadcastRequested{Message: msg, Addresses: addrs})

	slog.InfoContext(ctx, "admin: broadcast queued", "recipients", len(addrs))
	return len(addrs), nil
}

func errorText(err error) string {
	if e := errors.Convert(err); e.Code != errors.CodeInternal {
		return e.Message
	}
	return err.Error()
}

// splitCommand splits "/add {...}" into ("add", "{...}").
func splitCommand(text string) (cmd, arg string) {
	text = strings.TrimSpace(text)
	cmd, arg, _ = strings.Cut(text, " ")
	cmd = strings.ToLower(strings.TrimPrefix(cmd, "/"))
	// Telegram appends the bot name in groups: /count@quizbot
	cmd, _, _ = strings.Cut(cmd, "@")
	return cmd, strings.TrimSpace(arg)
}
