// Package redis stores documents as JSON strings in Redis.
//
// Layout:
//
//	{prefix}:{collection}:doc:{key}  document JSON
//	{prefix}:{collection}:keys       set of document keys
package redis

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/quizbot/internal/storage"
)

const listBatchSize = 500

type Config struct {
	Redis  redis.UniversalClient
	Prefix string
}

type Store struct {
	redis  redis.UniversalClient
	prefix string
}

func NewStore(c Config) *Store {
	prefix := c.Prefix
	if prefix == "" {
		prefix = "quizbot"
	}
	return &Store{redis: c.Redis, prefix: prefix}
}

func (s *Store) Get(ctx context.Context, collection, key string) ([]byte, error) {
	b, err := s.redis.Get(ctx, s.docKey(collection, key)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound(collection, key)
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get %s/%s: %w", collection, key, err)
	}
	return b, nil
}

func (s *Store) Put(ctx context.Context, collection, key string, data []byte) error {
	_, err := s.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		s.write(ctx, p, collection, key, data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: put %s/%s: %w", collection, key, err)
	}
	return nil
}

// Update watches the document key and retries the whole read-modify-write
// when another client modified it in between.
func (s *Store) Update(ctx context.Context, collection, key string, fn storage.UpdateFunc) error {
	k := s.docKey(collection, key)

	txf := func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, k).Bytes()
		switch {
		case stderrors.Is(err, redis.Nil):
			cur = nil
		case err != nil:
			return fmt.Errorf("redis: get %s/%s: %w", collection, key, err)
		}

		next, err := fn(cur)
		if err != nil || next == nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			s.write(ctx, p, collection, key, next)
			return nil
		})
		return err
	}

	for i := 0; i < storage.MaxUpdateAttempts; i++ {
		err := s.redis.Watch(ctx, txf, k)
		if stderrors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}

	return storage.ErrConflict(collection, key)
}

func (s *Store) Delete(ctx context.Context, collection, key string) error {
	var del *redis.IntCmd
	_, err := s.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		del = p.Del(ctx, s.docKey(collection, key))
		p.SRem(ctx, s.indexKey(collection), key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: delete %s/%s: %w", collection, key, err)
	}
	if del.Val() == 0 {
		return storage.ErrNotFound(collection, key)
	}
	return nil
}

func (s *Store) List(ctx context.Context, collection string) ([]storage.Document, error) {
	keys, err := s.redis.SMembers(ctx, s.indexKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list %s: %w", collection, err)
	}
	sort.Strings(keys)

	docs := make([]storage.Document, 0, len(keys))
	for start := 0; start < len(keys); start += listBatchSize {
		batch := keys[start:min(start+listBatchSize, len(keys))]

		docKeys := make([]string, len(batch))
		for i, k := range batch {
			docKeys[i] = s.docKey(collection, k)
		}

		vals, err := s.redis.MGet(ctx, docKeys...).Result()
		if err != nil {
			return nil, fmt.Errorf("redis: list %s: %w", collection, err)
		}

		for i, v := range vals {
			str, ok := v.(string)
			if !ok {
				// Indexed but deleted in between.
				continue
			}
			docs = append(docs, storage.Document{Key: batch[i], Data: []byte(str)})
		}
	}

	return docs, nil
}

func (s *Store) Close() error {
	return s.redis.Close()
}

func (s *Store) write(ctx context.Context, p redis.Pipeliner, collection, key string, data []byte) {
	p.Set(ctx, s.docKey(collection, key), data, 0)
	p.SAdd(ctx, s.indexKey(collection), key)
}

func (s *Store) docKey(collection, key string) string {
	return fmt.Sprintf("%s:%s:doc:%s", s.prefix, collection, key)
}

func (s *Store) indexKey(collection string) string {
	return fmt.Sprintf("%s:%s:keys", s.prefix, collection)
}
