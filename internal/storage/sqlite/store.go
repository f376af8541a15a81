// Package sqlite stores documents in a single SQLite table, for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"github.com/victornm/quizbot/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT     NOT NULL,
	key        TEXT     NOT NULL,
	data       BLOB     NOT NULL,
	version    INTEGER  NOT NULL DEFAULT 1,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (collection, key)
);`

type Store struct {
	db *sql.DB
}

// Open opens (and creates when missing) the database at dsn, e.g. "file:quizbot.db".
// SQLite allows a single writer, so the pool is limited to one connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}

	return &Store{db: db}, nil
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
	query, args, err := sq.Insert("documents").
		Columns("collection", "key", "data", "version", "updated_at").
		Values(collection, key, data, 1, sq.Expr("CURRENT_TIMESTAMP")).
		Suffix("ON CONFLICT (collection, key) DO UPDATE SET data = excluded.data, version = documents.version + 1, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("sqlite: build put: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("sqlite: put %s/%s: %w", collection, key, err)
	}
	return nil
}

// Update reads the document and its version, runs fn without holding the
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

func (s *Store) Delete(ctx context.Context, collection, key string) error {
	query, args, err := sq.Delete("documents").
		Where(sq.Eq{"collection": collection, "key": key}).
		ToSql()
	if err != nil {
		return fmt.Errorf("sqlite: build delete: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlite: delete %s/%s: %w", collection, key, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound(collection, key)
	}
	return nil
}

func (s *Store) List(ctx context.Context, collection string) ([]storage.Document, error) {
	query, args, err := sq.Select("key", "data").
		From("documents").
		Where(sq.Eq{"collection": collection}).
		OrderBy("key").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("sqlite: build list: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []storage.Document
	for rows.Next() {
		var d storage.Document
		if err := rows.Scan(&d.Key, &d.Data); err != nil {
			return nil, fmt.Errorf("sqlite: scan %s: %w", collection, err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) get(ctx context.Context, collection, key string) ([]byte, int64, bool, error) {
	query, args, err := sq.Select("data", "version").
		From("documents").
		Where(sq.Eq{"collection": collection, "key": key}).
		ToSql()
	if err != nil {
		return nil, 0, false, fmt.Errorf("sqlite: build get: %w", err)
	}

	var (
		data    []byte
		version int64
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&data, &version)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("sqlite: get %s/%s: %w", collection, key, err)
	}
	return data, version, true, nil
}

// swap inserts the document when it did not exist, or updates it when its
// version is still the one read. It reports false when another writer won.
func (s *Store) swap(ctx context.Context, collection, key string, version int64, existed bool, data []byte) (bool, error) {
	var b interface {
		ToSql() (string, []any, error)
	}
	if existed {
		b = sq.Update("documents").
			Set("data", data).
			Set("version", sq.Expr("version + 1")).
			Set("updated_at", sq.Expr("CURRENT_TIMESTAMP")).
			Where(sq.Eq{"collection": collection, "key": key, "version": version})
	} else {
		b = sq.Insert("documents").
			Columns("collection", "key", "data", "version", "updated_at").
			Values(collection, key, data, 1, sq.Expr("CURRENT_TIMESTAMP")).
			Suffix("ON CONFLICT (collection, key) DO NOTHING")
	}

	query, args, err := b.ToSql()
	if err != nil {
		return false, fmt.Errorf("sqlite: build swap: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("sqlite: swap %s/%s: %w", collection, key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: swap %s/%s: %w", collection, key, err)
	}
	return n == 1, nil
}
