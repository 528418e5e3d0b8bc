package genstore

import (
	"context"
	"time"
)

// GenStore hands out per-key generations.
// Generations are zero-based and strictly increasing per key: the first Next
// for a key returns 0, the following one 1 and so on. A generation returned by
// Next is never returned again (subject to retention, see Cleanup).
//
// Use LocalGenStore (default) for in-process sequences, or RedisGenStore when
// generations must survive restarts or be shared with other replicas.
type GenStore interface {
	// Last returns the newest generation handed out for key.
	// ok=false means the store has no history for key.
	Last(ctx context.Context, storageKey string) (gen uint64, ok bool, err error)
	// Next atomically allocates and returns a new generation.
	Next(ctx context.Context, storageKey string) (uint64, error)
	// Observe records that gen is in use (e.g. found on disk) so that Next
	// never returns gen or anything below it.
	Observe(ctx context.Context, storageKey string, gen uint64) error
	// Cleanup prunes sequences untouched for longer than retention (no-op for Redis).
	Cleanup(retention time.Duration)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
