package entrycache

import (
	"context"
	"time"

	c "github.com/unkn0wn-root/entrycache/codec"
	gen "github.com/unkn0wn-root/entrycache/genstore"
	pr "github.com/unkn0wn-root/entrycache/provider"
)

// SetCostFunc returns the provider cost of a persisted frame.
type SetCostFunc func(storageKey string, raw []byte) int64

// Intent tells the ledger what an opener is prepared to do.
type Intent int

const (
	// IntentReadOrWait reads a readable generation, waits for one being written,
	// or becomes the writer of a cold key.
	IntentReadOrWait Intent = iota
	// IntentWrite is like IntentReadOrWait but refuses to wait behind another
	// writer: that case fails with ErrConcurrentWriteConflict.
	IntentWrite
	// IntentReadOnly never writes and never waits; misses fail with ErrNotCached.
	IntentReadOnly
)

func (i Intent) String() string {
	switch i {
	case IntentReadOrWait:
		return "read_or_wait"
	case IntentWrite:
		return "write"
	case IntentReadOnly:
		return "read_only"
	default:
		return "unknown"
	}
}

// Role is the terminal result of an attachment.
type Role int

const (
	RoleNone Role = iota
	RoleWriter
	RoleReader
	RoleFailed
)

func (r Role) String() string {
	switch r {
	case RoleWriter:
		return "writer"
	case RoleReader:
		return "reader"
	case RoleFailed:
		return "failed"
	default:
		return "none"
	}
}

// Outcome is delivered exactly once per attachment.
type Outcome[V any] struct {
	Role   Role
	Handle *Handle[V] // nil when Role == RoleFailed
	// NeedsRevalidation marks a reader that should ask the origin before
	// trusting the value. Until it calls Recreate, Validated or Close, other
	// ReadOrWait openers of the key queue behind it.
	NeedsRevalidation bool
	Err               error
}

// Generation of the bound record, 0 if none.
func (o Outcome[V]) Generation() uint64 {
	if o.Handle == nil {
		return 0
	}
	return o.Handle.Generation()
}

// Verdict is the answer of a CheckFunc.
type Verdict int

const (
	VerdictAccept Verdict = iota
	VerdictRevalidate
)

// CheckFunc inspects a readable record before a reader is bound to it.
// It runs under the key's lock and must not call back into the Access.
type CheckFunc[V any] func(rec *Record[V], now time.Time) Verdict

type openConfig[V any] struct {
	cb    func(Outcome[V])
	check CheckFunc[V]
}

// OpenOption customizes a single Open.
type OpenOption[V any] func(*openConfig[V])

// WithCallback delivers the outcome to fn on the key's dispatch lane.
// Callbacks for one key run one at a time, in resolution order. fn must not
// call Access.Close: Close waits for fn's own lane and returns only when its
// context ends.
func WithCallback[V any](fn func(Outcome[V])) OpenOption[V] {
	return func(o *openConfig[V]) { o.cb = fn }
}

// WithCheck overrides Options.Revalidate for this opener.
func WithCheck[V any](fn CheckFunc[V]) OpenOption[V] {
	return func(o *openConfig[V]) { o.check = fn }
}

// Access is the entry-access surface.
type Access[V any] interface {
	// Open attaches to key. Contract violations (ErrConcurrentWriteConflict,
	// ErrClosed, generation allocation errors) are returned synchronously;
	// everything else is delivered through the Pending.
	Open(ctx context.Context, key string, intent Intent, opts ...OpenOption[V]) (*Pending[V], error)
	// OpenNormally is Open with IntentReadOrWait.
	OpenNormally(ctx context.Context, key string, opts ...OpenOption[V]) (*Pending[V], error)
	// RecreateEntry supersedes the live readable generation and returns the
	// writer of its successor. ErrNoActiveEntry if nothing readable is live.
	RecreateEntry(ctx context.Context, key string) (*Handle[V], error)

	// Inspect reports the ledger state of key without attaching.
	Inspect(key string) (EntryInfo, bool)
	Stats() Stats
	// Close fails queued openers, waits for pending callbacks until ctx ends
	// and closes the provider. Called from a WithCallback function it blocks
	// until ctx is done and returns ctx.Err(); with a context that never ends
	// it deadlocks.
	Close(ctx context.Context) error
}

// EntryInfo is a point-in-time view of one key's ledger.
type EntryInfo struct {
	Key          string
	Live         bool
	Generation   uint64
	State        State
	Readers      int
	Waiters      int
	Revalidating bool
	Draining     []uint64 // superseded generations that still have readers
}

// Options tune the Access. Namespace, Provider and Codec are required.
type Options[V any] struct {
	// Required
	Namespace string // logical namespace; isolates storage keys. e.g. "http", "disk"
	Provider  pr.Provider
	Codec     c.Codec[V]

	Logger          Logger           // nil => NopLogger
	Hooks           Hooks            // nil => NopHooks
	GenStore        gen.GenStore     // nil => LocalGenStore (in-process)
	DefaultTTL      time.Duration    // TTL of persisted frames; 0 => 7d
	CleanupInterval time.Duration    // LocalGenStore sweep; 0 => 1h
	GenRetention    time.Duration    // LocalGenStore retention; 0 => 30d
	Revalidate      RevalidatePolicy // nil => ExpiredPolicy
	DispatchLanes   int              // callback lanes; 0 => 4
	PersistAttempts uint             // provider Set attempts; 0 => 3
	PersistDelay    time.Duration    // base backoff between attempts; 0 => 20ms
	ComputeSetCost  SetCostFunc      // default 1
	Now             func() time.Time // nil => time.Now
}

func New[V any](opts Options[V]) (Access[V], error) {
	return newAccess[V](opts)
}
