package question

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"slices"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/victornm/quizbot/internal/domain"
	"github.com/victornm/quizbot/internal/errors"
	"github.com/victornm/quizbot/internal/storage"
)

type Config struct {
	Store storage.Store

	// IntN returns a uniform random number in [0, n). Defaults to math/rand/v2.
	IntN func(n int) int
}

type Service struct {
	questions *storage.Collection[domain.Question]
	intN      func(n int) int
}

func NewService(c Config) *Service {
	s := &Service{
		questions: storage.NewCollection[domain.Question](c.Store, storage.CollectionQuestions),
		intN:      c.IntN,
	}
	if s.intN == nil {
		s.intN = rand.Intn
	}
	return s
}

// Get returns a NotFound error when the question does not exist.
func (s *Service) Get(ctx context.Context, id string) (domain.Question, error) {
	q, err := s.questions.Get(ctx, id)
	if err != nil {
		return domain.Question{}, fmt.Errorf("question: get %s: %w", id, err)
	}
	q.ID = id
	return q, nil
}

// PickUnseen draws a question uniformly at random among the ones not listed in
// exclude. ok is false when every stored question is excluded.
func (s *Service) PickUnseen(ctx context.Context, exclude []string) (q domain.Question, ok bool, err error) {
	all, err := s.list(ctx)
	if err != nil {
		return domain.Question{}, false, err
	}

	candidates := slices.DeleteFunc(all, func(q domain.Question) bool {
		return slices.Contains(exclude, q.ID)
	})
	if len(candidates) == 0 {
		return domain.Question{}, false, nil
	}

	return candidates[s.intN(len(candidates))], true, nil
}

// Add validates and stores a new question. A question without id gets a
// generated one.
func (s *Service) Add(ctx context.Context, q domain.Question) (domain.Question, error) {
	if err := Validate(q); err != nil {
		return domain.Question{}, err
	}

	if q.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.Question{}, fmt.Errorf("question: generate id: %w", err)
		}
		q.ID = id.String()
	} else if _, err := s.questions.Get(ctx, q.ID); err == nil {
		return domain.Question{}, errors.New(errors.CodeAlreadyExists, errors.WithMessagef("question already exists: id=%s", q.ID))
	} else if !errors.Is(err, errors.CodeNotFound) {
		return domain.Question{}, fmt.Errorf("question: get %s: %w", q.ID, err)
	}

	if err := s.questions.Put(ctx, q.ID, q); err != nil {
		return domain.Question{}, fmt.Errorf("question: put %s: %w", q.ID, err)
	}

	slog.InfoContext(ctx, "question: added", "id", q.ID, "category", q.Category)
	return q, nil
}

// Remove returns a NotFound error when the question does not exist.
func (s *Service) Remove(ctx context.Context, id string) error {
	if err := s.questions.Delete(ctx, id); err != nil {
		if errors.Is(err, errors.CodeNotFound) {
			return errors.NotFound("question not found: id=%s", id)
		}
		return fmt.Errorf("question: delete %s: %w", id, err)
	}

	slog.InfoContext(ctx, "question: removed", "id", id)
	return nil
}

func (s *Service) Count(ctx context.Context) (int, error) {
	all, err := s.list(ctx)
	if err != nil {
		return 0, err
	}
	return len(all), nil
}

// Seed stores the questions, overwriting those with the same id, and returns
// how many were stored. Questions without id get a generated one.
func (s *Service) Seed(ctx context.Context, qs []domain.Question) (int, error) {
	for i, q := range qs {
		if err := Validate(q); err != nil {
			return i, fmt.Errorf("question: seed #%d: %w", i+1, err)
		}
		if q.ID == "" {
			id, err := uuid.NewV7()
			if err != nil {
				return i, fmt.Errorf("question: generate id: %w", err)
			}
			q.ID = id.String()
		}
		if err := s.questions.Put(ctx, q.ID, q); err != nil {
			return i, fmt.Errorf("question: put %s: %w", q.ID, err)
		}
	}

	slog.InfoContext(ctx, "question: seeded", "count", len(qs))
	return len(qs), nil
}

func (s *Service) list(ctx context.Context) ([]domain.Question, error) {
	entries, err := s.questions.List(ctx, func(key string, err error) {
		slog.WarnContext(ctx, "question: skip undecodable document", "id", key, "error", err)
	})
	if err != nil {
		return nil, fmt.Errorf("question: list: %w", err)
	}

	qs := make([]domain.Question, 0, len(entries))
	for _, e := range entries {
		q := e.Value
		q.ID = e.Key
		qs = append(qs, q)
	}
	return qs, nil
}

// Validate reports an InvalidArgument error for a question that cannot be asked.
func Validate(q domain.Question) error {
	switch {
	case strings.TrimSpace(q.Text) == "":
		return errors.InvalidArgument("question text is required")
	case len(q.Options) == 0:
		return errors.InvalidArgument("question options are required")
	case strings.TrimSpace(q.Answer) == "":
		return errors.InvalidArgument("question answer is required")
	}
	return nil
}

type seedFile struct {
	Questions []domain.Question `yaml:"questions"`
}

// LoadFile reads questions from a YAML file of the form:
//
//	questions:
//	  - question: Capital of France?
//	    options: [Paris, Rome]
//	    answer: Paris
func LoadFile(path string) ([]domain.Question, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("question: read %s: %w", path, err)
	}

	var f seedFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("question: parse %s: %w", path, err)
	}
	return f.Questions, nil
}
