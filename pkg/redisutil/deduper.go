package redisutil

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Deduper struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewDeduper(rdb *redis.Client, ttl time.Duration) *Deduper {
	return &Deduper{rdb: rdb, ttl: ttl}
}

// AcquireOnce tries to acquire a dedup key for an incoming webhook event.
// Returns true if this is the FIRST time the event is seen, false for a
// duplicate. When Redis is unavailable it fails open and returns true so
// that processing is never blocked on the dedup layer.
func (d *Deduper) AcquireOnce(ctx context.Context, eventKey string) bool {
	if d == nil || d.rdb == nil {
		return true
	}
	key := fmt.Sprintf("dedup:webhook:%s", eventKey)

	ok, err := d.rdb.SetNX(ctx, key, 1, d.ttl).Result()
	if err != nil {
		return true
	}
	return ok
}
