package entrycache

import "time"

// RevalidatePolicy decides whether a readable record should be confirmed with
// its origin before use. The network layer owns this decision; these are the
// common shapes.
type RevalidatePolicy func(meta Metadata, now time.Time) bool

// ExpiredPolicy flags records past ExpiresAt (default).
func ExpiredPolicy(meta Metadata, now time.Time) bool { return meta.Expired(now) }

// NeverRevalidate trusts every readable record.
func NeverRevalidate(Metadata, time.Time) bool { return false }

// AlwaysRevalidate flags every readable record (conditional-request style).
func AlwaysRevalidate(Metadata, time.Time) bool { return true }

// MaxAgePolicy flags records fetched longer than maxAge ago, or expired ones.
func MaxAgePolicy(maxAge time.Duration) RevalidatePolicy {
	return func(meta Metadata, now time.Time) bool {
		return meta.Expired(now) || (!meta.FetchedAt.IsZero() && meta.Age(now) > maxAge)
	}
}
