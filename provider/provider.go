// Package provider defines the storage abstraction behind entrycache.
//
// A Provider persists the framed bytes of the newest readable generation of
// each entry. Implementations MUST be byte-for-byte transparent: Get returns
// exactly the []byte previously passed to Set for a key. Internal transforms
// (compression, expiry headers) must be fully reversed on Get.
//
// The keyspace "entry:<ns>:" is owned by entrycache. Foreign writes under that
// prefix fail frame validation and are deleted on the next cold open.
package provider

import (
	"context"
	"time"
)

// Provider is a minimal byte store with TTLs, safe for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL (<=0 means no expiry). May ignore cost.
	// Returns ok=false when the store rejected the write under pressure.
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (ok bool, err error)

	// Del removes a key (best-effort). Deleting a missing key is not an error.
	Del(ctx context.Context, key string) error

	// Close releases resources.
	Close(ctx context.Context) error
}
