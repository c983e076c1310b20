// Package cache stores step results under a fingerprint for a bounded time,
// so expensive idempotent steps are not repeated across runs.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Entry is one stored step result.
type Entry struct {
	Key       string          `json:"key"`
	Step      string          `json:"step"`
	Value     json.RawMessage `json:"value"`
	CreatedAt time.Time       `json:"created_at"`
	TTL       time.Duration   `json:"ttl"`
}

// Age returns how long ago the entry was stored.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt)
}

// Fresh reports whether the entry is still within its TTL.
func (e *Entry) Fresh(now time.Time) bool {
	return e.Age(now) < e.TTL
}

// Remaining returns the time left before the entry expires, never negative.
func (e *Entry) Remaining(now time.Time) time.Duration {
	return max(e.TTL-e.Age(now), 0)
}

// Store is the persistence boundary of the cache.
//
// Get returns nil and no error when the key is absent. Stores do not judge
// freshness; callers check Entry.Fresh. Put replaces any existing entry for
// the same key, so concurrent writers resolve as last write wins.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Put(ctx context.Context, entry *Entry) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]Entry, error)
	Clear(ctx context.Context) error
	Close() error
}

func checkEntry(e *Entry) error {
	if e == nil {
		return fmt.Errorf("cache entry is nil")
	}
	if !validKey(e.Key) {
		return fmt.Errorf("invalid cache key %q", e.Key)
	}
	return nil
}
