package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const retryKeyPrefix = "inboxwhats:retry:"

// RetryCounter counts redeliveries of one task across workers. The count
// expires ttl after the first failure so a task that stops failing is
// forgotten even if Reset is never called.
type RetryCounter struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRetryCounter(rdb *redis.Client, ttl time.Duration) *RetryCounter {
	return &RetryCounter{rdb: rdb, ttl: ttl}
}

// IncrementAndGet records one more failed attempt and returns the total.
func (r *RetryCounter) IncrementAndGet(ctx context.Context, key string) (int64, error) {
	pipe := r.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("increment retry count %s: %w", key, err)
	}
	return incr.Val(), nil
}

func (r *RetryCounter) Reset(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, key).Err()
}

// FormatRetryKey namespaces the counter by handler, e.g. inboxwhats:retry:dispatch:42.
func FormatRetryKey(handler string, id int64) string {
	return fmt.Sprintf("%s%s:%d", retryKeyPrefix, handler, id)
}
