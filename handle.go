package entrycache

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type handleState int

const (
	handleAttached handleState = iota
	handleCompleting
	handleDetached
)

// Handle is an attachment bound to one generation of a key.
// A writer handle becomes a reader of its generation after Complete.
// Every handle must be closed.
type Handle[V any] struct {
	id  uuid.UUID
	a   *access[V]
	ks  *keyState[V]
	gen *generation[V]

	// guarded by ks.mu
	role     Role
	state    handleState
	closeReq bool // Close arrived while completing
}

func newHandle[V any](a *access[V], ks *keyState[V], g *generation[V], role Role) *Handle[V] {
	return &Handle[V]{id: uuid.New(), a: a, ks: ks, gen: g, role: role}
}

func (h *Handle[V]) ID() uuid.UUID      { return h.id }
func (h *Handle[V]) Key() string        { return h.ks.key }
func (h *Handle[V]) Generation() uint64 { return h.gen.rec.Generation }

// Record is the generation this handle is bound to. While the handle is a
// writer the record is Writing and its Value is not set.
func (h *Handle[V]) Record() *Record[V] { return h.gen.rec }

// Value of the bound record (zero while Writing).
func (h *Handle[V]) Value() V { return h.gen.rec.Value }

// Meta of the bound record.
func (h *Handle[V]) Meta() Metadata { return h.gen.rec.Meta }

func (h *Handle[V]) Role() Role {
	h.ks.mu.Lock()
	defer h.ks.mu.Unlock()
	return h.role
}

// Complete publishes value as the content of the writer's generation: it is
// persisted through the provider, becomes Readable, and every queued opener is
// released as a reader in request order.
func (h *Handle[V]) Complete(ctx context.Context, value V, meta Metadata) error {
	return h.a.complete(ctx, h, value, meta)
}

// Abandon discards the writer's generation; queued openers fail with a
// *WriterFailedError carrying cause, and the key has no live generation again.
func (h *Handle[V]) Abandon(ctx context.Context, cause error) error {
	return h.a.abandon(ctx, h, cause, false)
}

// Recreate supersedes the handle's generation and returns the writer of its
// successor. The receiver stays attached to the old generation and keeps
// reading it. Fails with ErrNoActiveEntry unless the handle's generation is the
// key's live, readable one.
func (h *Handle[V]) Recreate(ctx context.Context) (*Handle[V], error) {
	return h.a.recreateFrom(ctx, h)
}

// Validated tells the ledger that a reader flagged NeedsRevalidation found the
// entry still fresh. Openers queued behind the revalidation are released and
// checked as usual.
func (h *Handle[V]) Validated() {
	h.a.validated(h, time.Time{})
}

// ValidatedUntil is Validated for an origin that also renewed the entry's
// lifetime (a 304 with fresh caching headers): openers of this generation are
// not flagged again before expiresAt. The record's Metadata is left as stored;
// the window is held by the ledger and does not survive a restart.
func (h *Handle[V]) ValidatedUntil(expiresAt time.Time) {
	h.a.validated(h, expiresAt)
}

// Close detaches the handle. Closing an unfinished writer abandons its
// generation with ErrWriterClosed; closing a revalidating reader counts as
// Validated. Safe to call more than once.
func (h *Handle[V]) Close() error {
	return h.a.detach(h)
}

// Pending is the single-assignment result slot of one Open.
type Pending[V any] struct {
	id     uuid.UUID
	a      *access[V]
	ks     *keyState[V]
	intent Intent
	check  CheckFunc[V]
	cb     func(Outcome[V])

	done     chan struct{}
	out      Outcome[V]
	resolved bool // guarded by ks.mu
}

func newPending[V any](a *access[V], ks *keyState[V], intent Intent, oc openConfig[V]) *Pending[V] {
	return &Pending[V]{
		id:     uuid.New(),
		a:      a,
		ks:     ks,
		intent: intent,
		check:  oc.check,
		cb:     oc.cb,
		done:   make(chan struct{}),
	}
}

// resolve fills the slot; only the first call wins. Caller holds ks.mu.
func (p *Pending[V]) resolve(out Outcome[V]) bool {
	if p.resolved {
		return false
	}
	p.resolved = true
	p.out = out
	close(p.done)
	return true
}

func (p *Pending[V]) ID() uuid.UUID         { return p.id }
func (p *Pending[V]) Key() string           { return p.ks.key }
func (p *Pending[V]) Intent() Intent        { return p.intent }
func (p *Pending[V]) Done() <-chan struct{} { return p.done }

// Outcome returns the result if the slot is resolved.
func (p *Pending[V]) Outcome() (Outcome[V], bool) {
	select {
	case <-p.done:
		return p.out, true
	default:
		return Outcome[V]{}, false
	}
}

// Wait blocks until the slot resolves. If ctx ends first the attachment is
// withdrawn and ctx.Err() is returned; if it resolved concurrently the real
// outcome wins, so a granted handle is never lost.
func (p *Pending[V]) Wait(ctx context.Context) (Outcome[V], error) {
	select {
	case <-p.done:
		return p.out, p.out.Err
	case <-ctx.Done():
		if p.Withdraw() {
			return p.out, ctx.Err()
		}
		<-p.done
		return p.out, p.out.Err
	}
}

// Withdraw removes a still-queued attachment. It resolves with ErrWithdrawn and
// returns true; false means the slot had already resolved.
func (p *Pending[V]) Withdraw() bool {
	return p.a.withdraw(p)
}
