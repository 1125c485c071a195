package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ContextStore keeps one Context per chat address. Get reports ok=false for
// an address without a live context.
type ContextStore interface {
	Get(ctx context.Context, address string) (*Context, bool, error)
	Put(ctx context.Context, c *Context) error
	Delete(ctx context.Context, address string) error
}

// MemoryContextStore is process-local; a restart drops every conversation.
type MemoryContextStore struct {
	mu       sync.RWMutex
	contexts map[string]Context
}

func NewMemoryContextStore() *MemoryContextStore {
	return &MemoryContextStore{contexts: make(map[string]Context)}
}

func (s *MemoryContextStore) Get(_ context.Context, address string) (*Context, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contexts[address]
	if !ok {
		return nil, false, nil
	}
	return &c, true, nil
}

func (s *MemoryContextStore) Put(_ context.Context, c *Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts[c.Address] = *c
	return nil
}

func (s *MemoryContextStore) Delete(_ context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.contexts, address)
	return nil
}

// RedisContextStore keeps contexts as JSON so several serve processes can
// share them. Entries expire after ttl of inactivity.
type RedisContextStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisContextStore(rdb *redis.Client, ttl time.Duration) *RedisContextStore {
	return &RedisContextStore{rdb: rdb, ttl: ttl}
}

func contextKey(address string) string {
	return "conversation:" + address
}

func (s *RedisContextStore) Get(ctx context.Context, address string) (*Context, bool, error) {
	data, err := s.rdb.Get(ctx, contextKey(address)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get context: %w", err)
	}
	var c Context
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, false, fmt.Errorf("decode context: %w", err)
	}
	return &c, true, nil
}

func (s *RedisContextStore) Put(ctx context.Context, c *Context) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode context: %w", err)
	}
	if err := s.rdb.Set(ctx, contextKey(c.Address), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set context: %w", err)
	}
	return nil
}

func (s *RedisContextStore) Delete(ctx context.Context, address string) error {
	return s.rdb.Del(ctx, contextKey(address)).Err()
}
