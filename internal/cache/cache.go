// Package cache wraps the shared key-value store used both as a lookup
// result cache and as the rate-limit ledger. All mutations go through atomic
// primitives; there is no coarse locking between callers.
package cache

import (
	"context"
	"errors"
	"time"
)

var ErrMiss = errors.New("cache miss")

// Store is the shared KV contract. Acquire must be a single atomic
// set-if-absent-with-expiry; ok=false carries the remaining window.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Acquire(ctx context.Context, key string, ttl time.Duration) (ok bool, retryAfter time.Duration, err error)
	Close() error
}
