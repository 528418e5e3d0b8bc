package entrycache

import "time"

const (
	defaultTTL          = 7 * 24 * time.Hour
	defaultSweep        = time.Hour
	defaultGenRetention = 30 * 24 * time.Hour
	defaultLanes        = 4
	defaultAttempts     = 3
	defaultPersistDelay = 20 * time.Millisecond
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
