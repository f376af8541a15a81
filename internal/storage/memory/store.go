// Package memory is an in-process storage.Store, used for tests and local runs.
package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/victornm/quizbot/internal/storage"
)

type document struct {
	data []byte
	// version is unique across the store, so a deleted and recreated
	// document never matches a version read before the delete.
	version uint64
}

// Store keeps documents in nested maps guarded by a single mutex. The mutex
// is never held while an update function runs.
type Store struct {
	mu   sync.Mutex
	seq  uint64
	docs map[string]map[string]document
}

func NewStore() *Store {
	return &Store{docs: make(map[string]map[string]document)}
}

func (s *Store) Get(_ context.Context, collection, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.docs[collection][key]
	if !ok {
		return nil, storage.ErrNotFound(collection, key)
	}
	return bytes.Clone(d.data), nil
}

func (s *Store) Put(_ context.Context, collection, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.putLocked(collection, key, data)
	return nil
}

func (s *Store) Update(_ context.Context, collection, key string, fn storage.UpdateFunc) error {
	for i := 0; i < storage.MaxUpdateAttempts; i++ {
		cur, version, ok := s.read(collection, key)

		next, err := fn(cur)
		if err != nil {
			return err
		}
		if next == nil {
			return nil
		}

		if s.swap(collection, key, version, ok, next) {
			return nil
		}
	}

	return storage.ErrConflict(collection, key)
}

func (s *Store) Delete(_ context.Context, collection, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[collection][key]; !ok {
		return storage.ErrNotFound(collection, key)
	}
	delete(s.docs[collection], key)
	return nil
}

func (s *Store) List(_ context.Context, collection string) ([]storage.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := make([]storage.Document, 0, len(s.docs[collection]))
	for k, d := range s.docs[collection] {
		docs = append(docs, storage.Document{Key: k, Data: bytes.Clone(d.data)})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Key < docs[j].Key })
	return docs, nil
}

func (s *Store) Close() error { return nil }

func (s *Store) read(collection, key string) ([]byte, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.docs[collection][key]
	if !ok {
		return nil, 0, false
	}
	return bytes.Clone(d.data), d.version, true
}

// swap writes data only if the document is still in the state read before.
func (s *Store) swap(collection, key string, version uint64, existed bool, data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.docs[collection][key]
	if ok != existed || (ok && d.version != version) {
		return false
	}
	s.putLocked(collection, key, data)
	return true
}

func (s *Store) putLocked(collection, key string, data []byte) {
	c, ok := s.docs[collection]
	if !ok {
		c = make(map[string]document)
		s.docs[collection] = c
	}
	s.seq++
	c[key] = document{data: bytes.Clone(data), version: s.seq}
}
