// Package storagetest is a behavior suite every storage.Store backend must pass.
package storagetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizbot/internal/errors"
	"github.com/victornm/quizbot/internal/storage"
)

// Run runs the suite. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	tests := map[string]func(t *testing.T, s storage.Store){
		"get missing document returns not found":      testGetMissing,
		"put then get returns the document":           testPutGet,
		"put overwrites the previous document":        testPutOverwrites,
		"delete removes the document":                 testDelete,
		"delete missing document returns not found":   testDeleteMissing,
		"list returns documents ordered by key":       testListOrdered,
		"collections are isolated":                    testCollectionsIsolated,
		"update creates a missing document":           testUpdateCreates,
		"update with nil result does not write":       testUpdateNoWrite,
		"update error is returned and nothing stored": testUpdateError,
		"concurrent updates do not lose increments":   testConcurrentUpdates,
		"update function can read the store":          testUpdateReadsStore,
		"update retries when the document changes":    testUpdateRetriesOnChange,
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			tt(t, newStore(t))
		})
	}
}

func testGetMissing(t *testing.T, s storage.Store) {
	_, err := s.Get(context.Background(), "c", "missing")
	require.True(t, errors.Is(err, errors.CodeNotFound), "got %v", err)
}

func testPutGet(t *testing.T, s storage.Store) {
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "c", "k1", []byte(`{"v":1}`)))

	got, err := s.Get(ctx, "c", "k1")
	require.NoError(t, err)
	require.JSONEq(t, `{"v":1}`, string(got))
}

func testPutOverwrites(t *testing.T, s storage.Store) {
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "c", "k1", []byte(`{"v":1}`)))
	require.NoError(t, s.Put(ctx, "c", "k1", []byte(`{"v":2}`)))

	got, err := s.Get(ctx, "c", "k1")
	require.NoError(t, err)
	require.JSONEq(t, `{"v":2}`, string(got))

	docs, err := s.List(ctx, "c")
	require.NoError(t, err)
	require.Len(t, docs, 1)
}

func testDelete(t *testing.T, s storage.Store) {
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "c", "k1", []byte(`{}`)))
	require.NoError(t, s.Delete(ctx, "c", "k1"))

	_, err := s.Get(ctx, "c", "k1")
	require.True(t, errors.Is(err, errors.CodeNotFound))

	docs, err := s.List(ctx, "c")
	require.NoError(t, err)
	require.Empty(t, docs)
}

func testDeleteMissing(t *testing.T, s storage.Store) {
	err := s.Delete(context.Background(), "c", "missing")
	require.True(t, errors.Is(err, errors.CodeNotFound), "got %v", err)
}

func testListOrdered(t *testing.T, s storage.Store) {
	ctx := context.Background()

	for _, k := range []string{"b", "c", "a"} {
		require.NoError(t, s.Put(ctx, "c", k, []byte(fmt.Sprintf(`{"k":%q}`, k))))
	}

	docs, err := s.List(ctx, "c")
	require.NoError(t, err)

	keys := make([]string, 0, len(docs))
	for _, d := range docs {
		keys = append(keys, d.Key)
		assert.JSONEq(t, fmt.Sprintf(`{"k":%q}`, d.Key), string(d.Data))
	}
	require.Equal(t, []string{"a", "b", "c"}, keys)
}

func testCollectionsIsolated(t *testing.T, s storage.Store) {
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "c1", "k", []byte(`{"c":1}`)))
	require.NoError(t, s.Put(ctx, "c2", "k", []byte(`{"c":2}`)))

	got, err := s.Get(ctx, "c1", "k")
	require.NoError(t, err)
	require.JSONEq(t, `{"c":1}`, string(got))

	docs, err := s.List(ctx, "c2")
	require.NoError(t, err)
	require.Len(t, docs, 1)
}

func testUpdateCreates(t *testing.T, s storage.Store) {
	ctx := context.Background()

	err := s.Update(ctx, "c", "k", func(cur []byte) ([]byte, error) {
		require.Nil(t, cur)
		return []byte(`{"n":1}`), nil
	})
	require.NoError(t, err)

	got, err := s.Get(ctx, "c", "k")
	require.NoError(t, err)
	require.JSONEq(t, `{"n":1}`, string(got))
}

func testUpdateNoWrite(t *testing.T, s storage.Store) {
	ctx := context.Background()

	err := s.Update(ctx, "c", "k", func([]byte) ([]byte, error) { return nil, nil })
	require.NoError(t, err)

	_, err = s.Get(ctx, "c", "k")
	require.True(t, errors.Is(err, errors.CodeNotFound))
}

func testUpdateError(t *testing.T, s storage.Store) {
	ctx := context.Background()
	boom := fmt.Errorf("boom")

	require.NoError(t, s.Put(ctx, "c", "k", []byte(`{"n":1}`)))

	err := s.Update(ctx, "c", "k", func([]byte) ([]byte, error) { return []byte(`{"n":2}`), boom })
	require.ErrorIs(t, err, boom)

	got, err := s.Get(ctx, "c", "k")
	require.NoError(t, err)
	require.JSONEq(t, `{"n":1}`, string(got))
}

func testConcurrentUpdates(t *testing.T, s storage.Store) {
	const workers = 8

	ctx := context.Background()
	type counter struct {
		N int `json:"n"`
	}

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Update(ctx, "c", "counter", func(cur []byte) ([]byte, error) {
				var c counter
				if cur != nil {
					if err := json.Unmarshal(cur, &c); err != nil {
						return nil, err
					}
				}
				c.N++
				return json.Marshal(c)
			})
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	got, err := s.Get(ctx, "c", "counter")
	require.NoError(t, err)

	var c counter
	require.NoError(t, json.Unmarshal(got, &c))
	require.Equal(t, workers, c.N)
}

// testUpdateReadsStore reads other collections from inside the update
// function, as a game turn does when it looks up questions.
func testUpdateReadsStore(t *testing.T, s storage.Store) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, s.Put(ctx, "questions", "q1", []byte(`{"q":1}`)))
	require.NoError(t, s.Put(ctx, "questions", "q2", []byte(`{"q":2}`)))

	done := make(chan error, 1)
	go func() {
		done <- s.Update(ctx, "users", "u1", func([]byte) ([]byte, error) {
			if _, err := s.Get(ctx, "questions", "q1"); err != nil {
				return nil, err
			}
			docs, err := s.List(ctx, "questions")
			if err != nil {
				return nil, err
			}
			return []byte(fmt.Sprintf(`{"seen":%d}`, len(docs))), nil
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("update blocked while its function read the store")
	}

	got, err := s.Get(ctx, "users", "u1")
	require.NoError(t, err)
	require.JSONEq(t, `{"seen":2}`, string(got))
}

// testUpdateRetriesOnChange writes the document from inside the update
// function, so the first computed value is stale and must be recomputed.
func testUpdateRetriesOnChange(t *testing.T, s storage.Store) {
	ctx := context.Background()
	type counter struct {
		N int `json:"n"`
	}

	require.NoError(t, s.Put(ctx, "c", "k", []byte(`{"n":0}`)))

	calls := 0
	err := s.Update(ctx, "c", "k", func(cur []byte) ([]byte, error) {
		calls++
		if calls == 1 {
			if err := s.Put(ctx, "c", "k", []byte(`{"n":10}`)); err != nil {
				return nil, err
			}
		}

		var c counter
		if err := json.Unmarshal(cur, &c); err != nil {
			return nil, err
		}
		c.N++
		return json.Marshal(c)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	got, err := s.Get(ctx, "c", "k")
	require.NoError(t, err)
	require.JSONEq(t, `{"n":11}`, string(got))
}
