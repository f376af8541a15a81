// Package storage is the document store the bot keeps its state in.
//
// Documents are JSON blobs addressed by (collection, key). Put is last write
// wins; Update is an optimistic read-modify-write of a single document: read,
// compute, then write only if the document did not change in between, else
// retry.
package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/victornm/quizbot/internal/errors"
)

const (
	CollectionQuestions     = "questions"
	CollectionUsers         = "users"
	CollectionDailyWinners  = "daily_winners"
	CollectionWeeklyWinners = "weekly_winners"
)

// MaxUpdateAttempts bounds how many times Update recomputes a document that
// keeps changing underneath it before giving up with a conflict.
const MaxUpdateAttempts = 16

// UpdateFunc receives the current document (nil when absent) and returns the
// document to write. Returning nil data leaves the document untouched.
// It may be called more than once when a backend retries on conflict. Backends
// hold no lock or connection while it runs, so it may call the store.
type UpdateFunc func(current []byte) ([]byte, error)

// Document is a raw stored document.
type Document struct {
	Key  string
	Data []byte
}

type Store interface {
	// Get returns a NotFound error when the document does not exist.
	Get(ctx context.Context, collection, key string) ([]byte, error)
	Put(ctx context.Context, collection, key string, data []byte) error
	Update(ctx context.Context, collection, key string, fn UpdateFunc) error
	// Delete returns a NotFound error when the document does not exist.
	Delete(ctx context.Context, collection, key string) error
	// List returns every document of the collection ordered by key.
	List(ctx context.Context, collection string) ([]Document, error)
	Close() error
}

// ErrNotFound builds the error backends return for a missing document.
func ErrNotFound(collection, key string) error {
	return errors.NotFound("document not found: collection=%s key=%s", collection, key)
}

// ErrConflict is returned when an optimistic update keeps losing races.
func ErrConflict(collection, key string) error {
	return errors.New(errors.CodeAborted, errors.WithMessagef("update conflict: collection=%s key=%s", collection, key))
}

// Collection is a typed view of one collection.
type Collection[T any] struct {
	store Store
	name  string
}

func NewCollection[T any](store Store, name string) *Collection[T] {
	return &Collection[T]{store: store, name: name}
}

func (c *Collection[T]) Name() string { return c.name }

func (c *Collection[T]) Get(ctx context.Context, key string) (T, error) {
	var v T
	b, err := c.store.Get(ctx, c.name, key)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return v, fmt.Errorf("storage: decode %s/%s: %w", c.name, key, err)
	}
	return v, nil
}

func (c *Collection[T]) Put(ctx context.Context, key string, v T) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("storage: encode %s/%s: %w", c.name, key, err)
	}
	return c.store.Put(ctx, c.name, key, b)
}

// Update runs fn against the decoded document. exists is false when the
// document is absent, in which case cur is the zero value. fn returns
// changed=false to skip the write.
func (c *Collection[T]) Update(ctx context.Context, key string, fn func(cur T, exists bool) (next T, changed bool, err error)) error {
	return c.store.Update(ctx, c.name, key, func(current []byte) ([]byte, error) {
		var cur T
		exists := current != nil
		if exists {
			if err := json.Unmarshal(current, &cur); err != nil {
				return nil, fmt.Errorf("storage: decode %s/%s: %w", c.name, key, err)
			}
		}

		next, changed, err := fn(cur, exists)
		if err != nil || !changed {
			return nil, err
		}

		b, err := json.Marshal(next)
		if err != nil {
			return nil, fmt.Errorf("storage: encode %s/%s: %w", c.name, key, err)
		}
		return b, nil
	})
}

func (c *Collection[T]) Delete(ctx context.Context, key string) error {
	return c.store.Delete(ctx, c.name, key)
}

// Entry is a decoded document with its key.
type Entry[T any] struct {
	Key   string
	Value T
}

// List decodes every document of the collection in key order. Documents that
// fail to decode are reported through skip and left out.
func (c *Collection[T]) List(ctx context.Context, skip func(key string, err error)) ([]Entry[T], error) {
	docs, err := c.store.List(ctx, c.name)
	if err != nil {
		return nil, err
	}

	out := make([]Entry[T], 0, len(docs))
	for _, d := range docs {
		var v T
		if err := json.Unmarshal(d.Data, &v); err != nil {
			if skip != nil {
				skip(d.Key, fmt.Errorf("storage: decode %s/%s: %w", c.name, d.Key, err))
			}
			continue
		}
		out = append(out, Entry[T]{Key: d.Key, Value: v})
	}
	return out, nil
}
