// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	hosterr "github.com/stacklok/toolhost/pkg/errors"
)

// DefaultRedisPrefix namespaces keys written by the redis store.
const DefaultRedisPrefix = "toolhost:"

const redisScanCount = 100

// RedisStore keeps values in a Redis server under a key prefix. Keys are
// used verbatim after the prefix.
type RedisStore struct {
	mu     sync.Mutex
	client *redis.Client
	prefix string
}

// NewRedisStore connects to the server at url (redis://...) and pings it.
func NewRedisStore(ctx context.Context, url, prefix string) (*RedisStore, error) {
	if url == "" {
		return nil, hosterr.New(hosterr.KindConfiguration, "redis store requires a url", nil)
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, hosterr.New(hosterr.KindConfiguration, "invalid redis url", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, hosterr.NewStoreUnavailableError("redis", err)
	}
	return NewRedisStoreWithClient(client, prefix), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, hosterr.NewKeyNotFoundError(key)
	}
	if err != nil {
		return nil, hosterr.NewStoreUnavailableError("redis", err)
	}
	return v, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return hosterr.NewStoreUnavailableError("redis", err)
	}
	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.client.Del(ctx, s.prefix+key).Result()
	if err != nil {
		return hosterr.NewStoreUnavailableError("redis", err)
	}
	if n == 0 {
		return hosterr.NewKeyNotFoundError(key)
	}
	return nil
}

// ListKeys implements Store.
func (s *RedisStore) ListKeys(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	for i, k := range keys {
		keys[i] = strings.TrimPrefix(k, s.prefix)
	}
	slices.Sort(keys)
	return keys, nil
}

// Clear implements Store.
func (s *RedisStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.scan(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return hosterr.NewStoreUnavailableError("redis", err)
	}
	return nil
}

// Type implements Store.
func (*RedisStore) Type() Type {
	return RedisType
}

// Close releases the client connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) scan(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.prefix+"*", redisScanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, hosterr.NewStoreUnavailableError("redis", fmt.Errorf("scan failed: %w", err))
	}
	return slices.Compact(slices.Sorted(slices.Values(keys))), nil
}
