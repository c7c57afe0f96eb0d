package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "todoapp:idempotency:"
	pending   = "pending"
)

// Deduplicator remembers client idempotency keys in Redis for a fixed window,
// together with the result of the request that first used them.
// A nil Deduplicator (or one without a client) reserves every key.
type Deduplicator struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewDeduplicator(rdb *redis.Client, ttl time.Duration) *Deduplicator {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Deduplicator{
		rdb: rdb,
		ttl: ttl,
	}
}

// Key joins the parts into a stable idempotency key.
func Key(parts ...string) string {
	return strings.Join(parts, "\x1f")
}

// Reserve claims key for a new request. When the key is already claimed,
// reserved is false and prior holds the stored result, empty while the first
// request has not completed yet.
func (d *Deduplicator) Reserve(ctx context.Context, key string) (prior string, reserved bool, err error) {
	if d == nil || d.rdb == nil || key == "" {
		return "", true, nil
	}
	k := keyPrefix + hashKey(key)
	ok, err := d.rdb.SetNX(ctx, k, pending, d.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("dedup setnx: %w", err)
	}
	if ok {
		return "", true, nil
	}

	val, err := d.rdb.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("dedup get: %w", err)
	}
	if val == pending {
		return "", false, nil
	}
	return val, false, nil
}

// Complete stores the result of the request holding key.
func (d *Deduplicator) Complete(ctx context.Context, key, result string) error {
	if d == nil || d.rdb == nil || key == "" {
		return nil
	}
	if err := d.rdb.Set(ctx, keyPrefix+hashKey(key), result, d.ttl).Err(); err != nil {
		return fmt.Errorf("dedup set: %w", err)
	}
	return nil
}

// Release drops the reservation so the key can be used again.
func (d *Deduplicator) Release(ctx context.Context, key string) error {
	if d == nil || d.rdb == nil || key == "" {
		return nil
	}
	if err := d.rdb.Del(ctx, keyPrefix+hashKey(key)).Err(); err != nil {
		return fmt.Errorf("dedup del: %w", err)
	}
	return nil
}

func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
