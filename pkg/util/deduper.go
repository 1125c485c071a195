package util

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deduper hands out short-lived SETNX leases so overlapping runs of the same job skip work already in progress.
type Deduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewDeduper(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Deduper {
	return &Deduper{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

// AcquireOnce returns true when the caller is the first holder of scope:key
// within the TTL. Redis errors fail open: the caller proceeds, storage-level
// idempotency still applies.
func (d *Deduper) AcquireOnce(ctx context.Context, scope, key string) bool {
	lease := "dedup:" + scope + ":" + key

	ok, err := d.rdb.SetNX(ctx, lease, 1, d.ttl).Result()
	if err != nil {
		d.logger.Warn("Redis dedup check failed, allowing processing",
			zap.String("scope", scope),
			zap.String("key", key),
			zap.Error(err),
		)
		return true
	}

	if !ok {
		d.logger.Info("Skipped duplicated run",
			zap.String("scope", scope),
			zap.String("dedup_key", lease),
		)
	}
	return ok
}

// Release drops the lease early once the guarded work finishes.
func (d *Deduper) Release(ctx context.Context, scope, key string) {
	if err := d.rdb.Del(ctx, "dedup:"+scope+":"+key).Err(); err != nil {
		d.logger.Warn("Failed to release dedup lease",
			zap.String("scope", scope),
			zap.String("key", key),
			zap.Error(err),
		)
	}
}
