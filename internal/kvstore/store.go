// Package kvstore abstracts the key-value persistence used for draft
// payloads and wizard progress. Both the draft engine and the wizard receive
// a Store as a dependency so tests can substitute the in-memory
// implementation; each caller owns its own key namespace and the two must
// not share keys.
package kvstore

import (
	"context"
	"time"
)

// Store is a string-keyed store with per-key TTL. Get returns ok=false for
// missing or expired keys; an expired key behaves exactly like a missing one.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Clear(ctx context.Context, key string) error
}
