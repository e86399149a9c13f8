// Package cache memoizes classifier verdicts in Redis, keyed by a hash of
// the canonical request text.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/af-corp/aegis-ids/internal/types"
)

// TTL is the lifetime of a cached verdict.
const TTL = 60 * time.Second

const keyPrefix = "prediction:"

// ErrUnavailable is returned while the circuit breaker bypasses the store.
var ErrUnavailable = errors.New("prediction cache unavailable")

// Key derives the cache key for a canonical text. The method prefix widens
// the key space so identical bodies sent with different verbs never collide.
func Key(method, canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return keyPrefix + strings.ToUpper(strings.TrimSpace(method)) + ":" + hex.EncodeToString(sum[:])
}

// Cache is a content-addressed, TTL-bounded verdict store. With a nil Redis
// client every lookup misses and every store is a no-op.
type Cache struct {
	rdb     *redis.Client
	breaker *CircuitBreaker
}

// New creates a prediction cache. A nil breaker gets the default thresholds.
func New(rdb *redis.Client, breaker *CircuitBreaker) *Cache {
	if breaker == nil {
		breaker = NewCircuitBreaker(5, 10*time.Second)
	}
	return &Cache{rdb: rdb, breaker: breaker}
}

// Enabled reports whether a store is configured.
func (c *Cache) Enabled() bool { return c != nil && c.rdb != nil }

// State returns the breaker state.
func (c *Cache) State() CircuitState { return c.breaker.State() }

// Lookup returns the label stored under key. A corrupt entry counts as a miss.
func (c *Cache) Lookup(ctx context.Context, key string) (types.Label, bool, error) {
	if !c.Enabled() {
		return "", false, nil
	}
	if !c.breaker.Allow() {
		return "", false, ErrUnavailable
	}

	val, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		c.breaker.RecordSuccess()
		return "", false, nil
	}
	if err != nil {
		c.breaker.RecordFailure()
		return "", false, fmt.Errorf("cache get %s: %w", key, err)
	}
	c.breaker.RecordSuccess()

	label, ok := types.ParseLabel(val)
	if !ok {
		return "", false, nil
	}
	return label, true, nil
}

// Store saves label under key for TTL. Concurrent stores of the same key are
// last-write-wins.
func (c *Cache) Store(ctx context.Context, key string, label types.Label) error {
	if !c.Enabled() {
		return nil
	}
	if !c.breaker.Allow() {
		return ErrUnavailable
	}
	if err := c.rdb.Set(ctx, key, string(label), TTL).Err(); err != nil {
		c.breaker.RecordFailure()
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	c.breaker.RecordSuccess()
	return nil
}
