package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/victornm/quizbot/internal/storage"
	"github.com/victornm/quizbot/internal/storage/sqlite"
	"github.com/victornm/quizbot/internal/storage/storagetest"
)

func newStore(t *testing.T, dsn string) *sqlite.Store {
	s, err := sqlite.Open(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return newStore(t, ":memory:")
	})
}

func TestStore_Reopen(t *testing.T) {
	ctx := context.Background()
	dsn := "file:" + filepath.Join(t.TempDir(), "quizbot.db")

	s, err := sqlite.Open(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "questions", "q1", []byte(`{"id":"q1"}`)))
	require.NoError(t, s.Close())

	s = newStore(t, dsn)
	got, err := s.Get(ctx, "questions", "q1")
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"q1"}`, string(got))
}
