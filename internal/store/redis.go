package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps metadata documents in Redis hashes, one hash per
// collection. Documents survive service restarts and are shared across
// replicas.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &RedisStore{client: client, keyPrefix: "tokengate:metadata"}, nil
}

// collectionKey namespaces one collection's hash to avoid collisions
func (s *RedisStore) collectionKey(collection string) string {
	return fmt.Sprintf("%s:%s", s.keyPrefix, collection)
}

// Get retrieves the document for a token in a collection
func (s *RedisStore) Get(ctx context.Context, collection, tokenID string) (json.RawMessage, error) {
	raw, err := s.client.HGet(ctx, s.collectionKey(collection), tokenID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, collection, tokenID)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return raw, nil
}

// Put stores or replaces a document
func (s *RedisStore) Put(ctx context.Context, collection, tokenID string, doc json.RawMessage) error {
	if err := s.client.HSet(ctx, s.collectionKey(collection), tokenID, []byte(doc)).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// List returns the token IDs present in a collection, sorted
func (s *RedisStore) List(ctx context.Context, collection string) ([]string, error) {
	ids, err := s.client.HKeys(ctx, s.collectionKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis keys failed: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close releases the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
