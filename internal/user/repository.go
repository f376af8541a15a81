package user

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/victornm/quizbot/internal/domain"
	"github.com/victornm/quizbot/internal/errors"
	"github.com/victornm/quizbot/internal/storage"
)

const addressPrefix = "whatsapp:"

// NormalizeID turns a channel address such as "whatsapp:+91 97410 92786" into
// the user id "+919741092786".
func NormalizeID(address string) string {
	id := strings.TrimSpace(address)
	if len(id) >= len(addressPrefix) && strings.EqualFold(id[:len(addressPrefix)], addressPrefix) {
		id = id[len(addressPrefix):]
	}
	return strings.Join(strings.Fields(id), "")
}

// UpdateFunc computes the next state of a user. exists is false for a user
// that has no document yet, in which case cur holds the default state.
// Returning changed=false skips the write. It may be called more than once.
type UpdateFunc func(cur domain.UserState, exists bool) (next domain.UserState, changed bool, err error)

type Config struct {
	Store storage.Store
}

type Repository struct {
	users *storage.Collection[domain.UserState]
}

func NewRepository(c Config) *Repository {
	return &Repository{
		users: storage.NewCollection[domain.UserState](c.Store, storage.CollectionUsers),
	}
}

// Get returns a NotFound error when the user does not exist.
func (r *Repository) Get(ctx context.Context, id string) (domain.UserState, error) {
	u, err := r.users.Get(ctx, id)
	if err != nil {
		if errors.Is(err, errors.CodeNotFound) {
			return domain.UserState{}, errors.NotFound("user not found: id=%s", id)
		}
		return domain.UserState{}, fmt.Errorf("user: get %s: %w", id, err)
	}
	return normalize(id, u), nil
}

// GetOrCreate returns the stored user, creating it with the default state
// when it does not exist.
func (r *Repository) GetOrCreate(ctx context.Context, id string) (domain.UserState, error) {
	return r.Update(ctx, id, func(cur domain.UserState, exists bool) (domain.UserState, bool, error) {
		return cur, !exists, nil
	})
}

// Update runs fn inside a single-document optimistic update and returns the
// resulting state.
func (r *Repository) Update(ctx context.Context, id string, fn UpdateFunc) (domain.UserState, error) {
	var result domain.UserState

	err := r.users.Update(ctx, id, func(cur domain.UserState, exists bool) (domain.UserState, bool, error) {
		if exists {
			cur = normalize(id, cur)
		} else {
			cur = domain.NewUserState(id)
		}

		next, changed, err := fn(cur.Clone(), exists)
		if err != nil {
			return domain.UserState{}, false, err
		}
		if !changed {
			result = cur
			return domain.UserState{}, false, nil
		}

		next = normalize(id, next)
		result = next
		return next, true, nil
	})
	if err != nil {
		return domain.UserState{}, fmt.Errorf("user: update %s: %w", id, err)
	}

	return result, nil
}

// Save overwrites the user document.
func (r *Repository) Save(ctx context.Context, u domain.UserState) error {
	u = normalize(u.UserID, u)
	if err := r.users.Put(ctx, u.UserID, u); err != nil {
		return fmt.Errorf("user: save %s: %w", u.UserID, err)
	}
	return nil
}

// List returns every user ordered by id. Undecodable documents are logged and
// left out.
func (r *Repository) List(ctx context.Context) ([]domain.UserState, error) {
	entries, err := r.users.List(ctx, func(key string, err error) {
		slog.WarnContext(ctx, "user: skip undecodable document", "id", key, "error", err)
	})
	if err != nil {
		return nil, fmt.Errorf("user: list: %w", err)
	}

	users := make([]domain.UserState, 0, len(entries))
	for _, e := range entries {
		users = append(users, normalize(e.Key, e.Value))
	}
	return users, nil
}

// SetAddress sets the contact address of an existing user.
func (r *Repository) SetAddress(ctx context.Context, id, address string) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return errors.InvalidArgument("missing wa_number")
	}

	_, err := r.Update(ctx, id, func(cur domain.UserState, exists bool) (domain.UserState, bool, error) {
		if !exists {
			return cur, false, errors.NotFound("user not found: id=%s", id)
		}
		cur.Address = address
		return cur, true, nil
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "user: address updated", "id", id)
	return nil
}

func normalize(id string, u domain.UserState) domain.UserState {
	u.Normalize()
	if u.UserID == "" {
		u.UserID = id
	}
	return u
}
