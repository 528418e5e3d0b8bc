package entrycache

import (
	"sync/atomic"
	"time"
)

// State of one generation.
type State int32

const (
	// StateWriting: only the writer's handle refers to the record; Value is not published.
	StateWriting State = iota
	// StateReadable: Value and Meta are immutable and shared by all bound readers.
	StateReadable
	// StateSuperseded: replaced by a newer generation; attached readers drain it.
	StateSuperseded
	// StateDiscarded: the writer failed; the record never became readable.
	StateDiscarded
)

func (s State) String() string {
	switch s {
	case StateWriting:
		return "writing"
	case StateReadable:
		return "readable"
	case StateSuperseded:
		return "superseded"
	case StateDiscarded:
		return "discarded"
	default:
		return "unknown"
	}
}

// Metadata describes a stored value.
type Metadata struct {
	Size      int64 // encoded payload bytes; filled in on Complete
	FetchedAt time.Time
	ExpiresAt time.Time // zero => no expiry
	Attrs     map[string]string
}

// Age since FetchedAt, 0 if unknown.
func (m Metadata) Age(now time.Time) time.Duration {
	if m.FetchedAt.IsZero() {
		return 0
	}
	return now.Sub(m.FetchedAt)
}

// ExpiresIn is the remaining validity; negative once expired, 0 without expiry.
func (m Metadata) ExpiresIn(now time.Time) time.Duration {
	if m.ExpiresAt.IsZero() {
		return 0
	}
	return m.ExpiresAt.Sub(now)
}

func (m Metadata) Expired(now time.Time) bool {
	return !m.ExpiresAt.IsZero() && !now.Before(m.ExpiresAt)
}

// Record is one generation of a cached key.
type Record[V any] struct {
	Key        string
	Generation uint64
	Value      V
	Meta       Metadata

	state atomic.Int32
}

func newRecord[V any](key string, gen uint64, st State) *Record[V] {
	r := &Record[V]{Key: key, Generation: gen}
	r.state.Store(int32(st))
	return r
}

func (r *Record[V]) State() State { return State(r.state.Load()) }

func (r *Record[V]) setState(s State) { r.state.Store(int32(s)) }
