// Package postgres stores documents as JSONB rows of a single table.
package postgres

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/quizbot/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT        NOT NULL,
	key        TEXT        NOT NULL,
	data       JSONB       NOT NULL,
	version    BIGINT      NOT NULL DEFAULT 1,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, key)
);
ALTER TABLE documents ADD COLUMN IF NOT EXISTS version BIGINT NOT NULL DEFAULT 1;`

const upsertStmt = `
INSERT INTO documents (collection, key, data, version, updated_at)
VALUES ($1, $2, $3, 1, now())
ON CONFLICT (collection, key) DO UPDATE SET data = EXCLUDED.data, version = documents.version + 1, updated_at = EXCLUDED.updated_at;`

type Config struct {
	DB *pgxpool.Pool
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(c Config) *Store {
	return &Store{db: c.DB}
}

// Migrate creates the documents table when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, collection, key string) ([]byte, error) {
	data, _, ok, err := s.get(ctx, collection, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, storage.ErrNotFound(collection, key)
	}
	return data, nil
}

func (s *Store) Put(ctx context.Context, collection, key string, data []byte) error {
	if _, err := s.db.Exec(ctx, upsertStmt, collection, key, data); err != nil {
		return fmt.Errorf("postgres: put %s/%s: %w", collection, key, err)
	}
	return nil
}

// Update reads the document and its version, runs fn without holding a
// connection, and writes only if the version is unchanged. A lost race
// recomputes from the fresh document.
func (s *Store) Update(ctx context.Context, collection, key string, fn storage.UpdateFunc) error {
	for i := 0; i < storage.MaxUpdateAttempts; i++ {
		cur, version, ok, err := s.get(ctx, collection, key)
		if err != nil {
			return err
		}

		next, err := fn(cur)
		if err != nil {
			return err
		}
		if next == nil {
			return nil
		}

		swapped, err := s.swap(ctx, collection, key, version, ok, next)
		if err != nil {
			return err
		}
		if swapped {
			return nil
		}
	}

	return storage.ErrConflict(collection, key)
}

func (s *Store) get(ctx context.Context, collection, key string) ([]byte, int64, bool, error) {
	const stmt = `SELECT data, version FROM documents WHERE collection = $1 AND key = $2;`

	var (
		data    []byte
		version int64
	)
	err := s.db.QueryRow(ctx, stmt, collection, key).Scan(&data, &version)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("postgres: get %s/%s: %w", collection, key, err)
	}
	return data, version, true, nil
}

// swap inserts the document when it did not exist, or updates it when its
// version is still the one read. It reports false when another writer won.
func (s *Store) swap(ctx context.Context, collection, key string, version int64, existed bool, data []byte) (bool, error) {
	const (
		insertStmt = `
INSERT INTO documents (collection, key, data, version, updated_at)
VALUES ($1, $2, $3, 1, now())
ON CONFLICT (collection, key) DO NOTHING;`

		updateStmt = `
UPDATE documents SET data = $3, version = version + 1, updated_at = now()
WHERE collection = $1 AND key = $2 AND version = $4;`
	)

	var (
		tag pgconn.CommandTag
		err error
	)
	if existed {
		tag, err = s.db.Exec(ctx, updateStmt, collection, key, data, version)
	} else {
		tag, err = s.db.Exec(ctx, insertStmt, collection, key, data)
	}
	if err != nil {
		return false, fmt.Errorf("postgres: swap %s/%s: %w", collection, key, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) Delete(ctx context.Context, collection, key string) error {
	const stmt = `DELETE FROM documents WHERE collection = $1 AND key = $2;`

	tag, err := s.db.Exec(ctx, stmt, collection, key)
	if err != nil {
		return fmt.Errorf("postgres: delete %s/%s: %w", collection, key, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound(collection, key)
	}
	return nil
}

func (s *Store) List(ctx context.Context, collection string) ([]storage.Document, error) {
	const stmt = `SELECT key, data FROM documents WHERE collection = $1 ORDER BY key;`

	rows, err := s.db.Query(ctx, stmt, collection)
	if err != nil {
		return nil, fmt.Errorf("postgres: list %s: %w", collection, err)
	}

	docs, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (storage.Document, error) {
		var d storage.Document
		err := r.Scan(&d.Key, &d.Data)
		return d, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: list %s: %w", collection, err)
	}

	return docs, nil
}

func (s *Store) Close() error {
	s.db.Close()
	return nil
}
