package entrycache

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"

	c "github.com/unkn0wn-root/entrycache/codec"
	gen "github.com/unkn0wn-root/entrycache/genstore"
	"github.com/unkn0wn-root/entrycache/internal/util"
	"github.com/unkn0wn-root/entrycache/internal/wire"
	pr "github.com/unkn0wn-root/entrycache/provider"
)

type access[V any] struct {
	ns              string
	provider        pr.Provider
	codec           c.Codec[V]
	log             Logger
	hooks           Hooks
	gen             gen.GenStore
	defaultTTL      time.Duration
	revalidate      RevalidatePolicy
	persistAttempts uint
	persistDelay    time.Duration
	computeSetCost  SetCostFunc
	now             func() time.Time

	meta c.Codec[metaWire] // deterministic CBOR

	ledger *ledger[V]
	disp   *dispatcher
	stats  counters

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// metaWire is the persisted form of Metadata; times as unix nanos, 0 = unset.
type metaWire struct {
	Size      int64             `cbor:"1,keyasint,omitempty"`
	FetchedAt int64             `cbor:"2,keyasint,omitempty"`
	ExpiresAt int64             `cbor:"3,keyasint,omitempty"`
	Attrs     map[string]string `cbor:"4,keyasint,omitempty"`
}

func newAccess[V any](opts Options[V]) (*access[V], error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("entrycache: provider is required")
	}
	if opts.Codec == nil {
		return nil, fmt.Errorf("entrycache: codec is required")
	}
	if opts.Namespace == "" {
		return nil, fmt.Errorf("entrycache: namespace is required")
	}

	mc, err := c.NewCBOR[metaWire](true)
	if err != nil {
		return nil, fmt.Errorf("entrycache: metadata codec: %w", err)
	}

	a := &access[V]{
		ns:       opts.Namespace,
		provider: opts.Provider,
		codec:    opts.Codec,
		meta:     mc,
	}

	// defaults
	a.log = coalesce[Logger](opts.Logger, NopLogger{})
	a.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	a.defaultTTL = coalesce(opts.DefaultTTL, defaultTTL)
	a.persistAttempts = coalesce(opts.PersistAttempts, uint(defaultAttempts))
	a.persistDelay = coalesce(opts.PersistDelay, defaultPersistDelay)

	a.revalidate = opts.Revalidate
	if a.revalidate == nil {
		a.revalidate = ExpiredPolicy
	}
	a.now = opts.Now
	if a.now == nil {
		a.now = time.Now
	}
	if opts.ComputeSetCost != nil {
		a.computeSetCost = opts.ComputeSetCost
	} else {
		a.computeSetCost = func(string, []byte) int64 { return 1 }
	}

	if opts.GenStore != nil {
		a.gen = opts.GenStore
	} else {
		// default to in-process generations with periodic cleanup
		a.gen = gen.NewLocalGenStore(
			coalesce(opts.CleanupInterval, defaultSweep),
			coalesce(opts.GenRetention, defaultGenRetention),
		)
	}

	a.ledger = newLedger[V](a.storageKey)
	a.disp = newDispatcher(coalesce(opts.DispatchLanes, defaultLanes))
	return a, nil
}

func (a *access[V]) storageKey(key string) string { return util.StorageKey(a.ns, key) }

// notes collects callbacks produced inside a critical section. They are
// posted before the key lock is released, so a key's lane sees them in
// resolution order; anything the closed dispatcher hands back runs after unlock.
type notes[V any] struct {
	fns  []func()
	late []func()
}

func (n *notes[V]) post(d *dispatcher, key string) {
	n.late = d.post(key, n.fns)
	n.fns = nil
}

func (n *notes[V]) runLate() {
	for _, f := range n.late {
		f()
	}
	n.late = nil
}

func (n *notes[V]) resolve(p *Pending[V], out Outcome[V]) {
	if !p.resolve(out) || p.cb == nil {
		return
	}
	cb := p.cb
	n.fns = append(n.fns, func() { cb(out) })
}

func failed[V any](err error) Outcome[V] {
	return Outcome[V]{Role: RoleFailed, Err: err}
}

// ==============================
// Open
// ==============================

func (a *access[V]) OpenNormally(ctx context.Context, key string, opts ...OpenOption[V]) (*Pending[V], error) {
	return a.Open(ctx, key, IntentReadOrWait, opts...)
}

func (a *access[V]) Open(ctx context.Context, key string, intent Intent, opts ...OpenOption[V]) (*Pending[V], error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	if a.closed.Load() {
		return nil, ErrClosed
	}
	var oc openConfig[V]
	for _, o := range opts {
		o(&oc)
	}
	a.stats.opens.Add(1)

	ks := a.ledger.acquire(key)
	p := newPending(a, ks, intent, oc)

	var n notes[V]
	ks.mu.Lock()
	err := a.attach(ctx, ks, p, &n)
	ks.markIdle()
	n.post(a.disp, key)
	ks.mu.Unlock()
	a.ledger.release(ks)
	n.runLate()

	if err != nil {
		return nil, err
	}
	return p, nil
}

// attach decides what p gets. Caller holds ks.mu.
func (a *access[V]) attach(ctx context.Context, ks *keyState[V], p *Pending[V], n *notes[V]) error {
	if a.closed.Load() {
		return ErrClosed
	}
	if ks.live == nil {
		a.restore(ctx, ks)
	}

	g := ks.live
	switch {
	case g == nil:
		if p.intent == IntentReadOnly {
			n.resolve(p, failed[V](ErrNotCached))
			return nil
		}
		next, err := a.nextGen(ctx, ks)
		if err != nil {
			return err
		}
		h := a.install(ks, next)
		a.stats.writers.Add(1)
		a.log.Debug("attached writer", Fields{"key": ks.key, "gen": next, "id": h.id})
		n.resolve(p, Outcome[V]{Role: RoleWriter, Handle: h})

	case g.rec.State() == StateWriting:
		switch p.intent {
		case IntentWrite:
			return fmt.Errorf("%w: %q gen %d", ErrConcurrentWriteConflict, ks.key, g.rec.Generation)
		case IntentReadOnly:
			n.resolve(p, failed[V](ErrNotCached))
		default:
			ks.enqueue(p)
			a.stats.queued.Add(1)
		}

	default: // readable
		if p.intent == IntentReadOnly {
			a.bindReader(ks, p, n)
			return nil
		}
		if ks.reval != nil || len(ks.waiters) > 0 {
			// someone is asking the origin; wait for its verdict
			ks.enqueue(p)
			a.stats.queued.Add(1)
			return nil
		}
		a.bindReader(ks, p, n)
	}
	return nil
}

// install creates a Writing generation owned by a fresh writer handle.
func (a *access[V]) install(ks *keyState[V], next uint64) *Handle[V] {
	g := &generation[V]{rec: newRecord[V](ks.key, next, StateWriting)}
	h := newHandle(a, ks, g, RoleWriter)
	g.writer = h
	ks.live = g
	ks.note(next)
	return h
}

func (a *access[V]) bindReader(ks *keyState[V], p *Pending[V], n *notes[V]) {
	g := ks.live
	h := newHandle(a, ks, g, RoleReader)
	g.readers++

	needs := false
	if p.intent != IntentReadOnly {
		needs = a.verdict(p, g) == VerdictRevalidate
	}
	if needs && ks.reval == nil {
		ks.reval = h
	}
	a.stats.readers.Add(1)
	n.resolve(p, Outcome[V]{Role: RoleReader, Handle: h, NeedsRevalidation: needs})
}

// verdict asks the opener's check first. Without one, a window confirmed
// through ValidatedUntil outranks the policy.
func (a *access[V]) verdict(p *Pending[V], g *generation[V]) Verdict {
	now := a.now()
	if p.check != nil {
		return p.check(g.rec, now)
	}
	if now.Before(g.freshUntil) {
		return VerdictAccept
	}
	if a.revalidate(g.rec.Meta, now) {
		return VerdictRevalidate
	}
	return VerdictAccept
}

// releaseAll binds every queued opener to the live readable generation, in
// request order. Openers flagged after the first keep NeedsRevalidation but
// only the first one holds the key. Caller holds ks.mu.
func (a *access[V]) releaseAll(ks *keyState[V], n *notes[V]) {
	for len(ks.waiters) > 0 {
		a.bindReader(ks, ks.popWaiter(), n)
	}
}

// drain releases openers that queued behind a revalidation, FIFO, until one of
// them is flagged again. Caller holds ks.mu.
func (a *access[V]) drain(ks *keyState[V], n *notes[V]) {
	for len(ks.waiters) > 0 && ks.reval == nil && ks.live != nil && ks.live.rec.State() == StateReadable {
		a.bindReader(ks, ks.popWaiter(), n)
	}
}

// ==============================
// Writer side
// ==============================

func (a *access[V]) complete(ctx context.Context, h *Handle[V], value V, meta Metadata) error {
	ks := h.ks
	ks.mu.Lock()
	if h.role != RoleWriter || h.state != handleAttached || ks.live != h.gen {
		ks.mu.Unlock()
		return ErrNotWriter
	}
	h.state = handleCompleting
	ks.mu.Unlock()

	gen := h.gen.rec.Generation
	payload, err := a.codec.Encode(value)
	if err != nil {
		perr := &PersistError{Key: ks.key, Generation: gen, Op: "encode", Err: err}
		a.hooks.PersistError(ks.sk, perr)
		_ = a.abandon(ctx, h, perr, true)
		return perr
	}
	meta.Size = int64(len(payload))
	if meta.FetchedAt.IsZero() {
		meta.FetchedAt = a.now()
	}
	meta.Attrs = maps.Clone(meta.Attrs)

	// the writer still owns the generation; nobody else can touch storage for ks
	a.persist(ctx, ks, gen, meta, payload)

	var n notes[V]
	ks.mu.Lock()
	g := h.gen
	g.rec.Value = value
	g.rec.Meta = meta
	g.rec.setState(StateReadable)
	g.writer = nil
	h.role = RoleReader
	if h.closeReq {
		h.state = handleDetached
	} else {
		g.readers++
		h.state = handleAttached
	}
	waiting := len(ks.waiters)
	a.releaseAll(ks, &n)
	ks.markIdle()
	n.post(a.disp, ks.key)
	ks.mu.Unlock()
	n.runLate()

	a.log.Debug("entry readable", Fields{"key": ks.key, "gen": gen, "size": meta.Size, "released": waiting})
	return nil
}

// abandon discards the writer's generation. fromComplete allows abandoning a
// writer that is mid-Complete (encode failure); everyone else must wait for
// Complete to finish.
func (a *access[V]) abandon(ctx context.Context, h *Handle[V], cause error, fromComplete bool) error {
	ks := h.ks
	ks.mu.Lock()
	allowed := h.state == handleAttached || (fromComplete && h.state == handleCompleting)
	if h.role != RoleWriter || !allowed {
		ks.mu.Unlock()
		return ErrNotWriter
	}
	g := h.gen
	h.state = handleDetached
	g.writer = nil
	g.rec.setState(StateDiscarded)
	if ks.live == g {
		ks.live = nil
		ks.reval = nil
	}
	wfe := &WriterFailedError{Key: ks.key, Generation: g.rec.Generation, Cause: cause}

	var n notes[V]
	waiters := ks.takeWaiters()
	for _, p := range waiters {
		n.resolve(p, failed[V](wfe))
	}

	// a superseded predecessor may still sit in storage; it must not come back
	if err := a.provider.Del(ctx, ks.sk); err != nil {
		a.log.Warn("delete after abandon failed", Fields{"key": ks.key, "err": err})
	}
	ks.markIdle()
	n.post(a.disp, ks.key)
	ks.mu.Unlock()
	a.ledger.tidy(ks)
	n.runLate()

	a.stats.writerFailures.Add(1)
	a.hooks.WriterFailed(ks.key, g.rec.Generation, len(waiters), cause)
	a.log.Warn("writer abandoned entry", Fields{"key": ks.key, "gen": g.rec.Generation, "waiters": len(waiters), "cause": cause})
	return nil
}

// ==============================
// Recreate
// ==============================

func (a *access[V]) RecreateEntry(ctx context.Context, key string) (*Handle[V], error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	if a.closed.Load() {
		return nil, ErrClosed
	}
	ks := a.ledger.acquire(key)
	ks.mu.Lock()
	h, err := a.recreate(ctx, ks, nil)
	ks.markIdle()
	ks.mu.Unlock()
	a.ledger.release(ks)
	return h, err
}

func (a *access[V]) recreateFrom(ctx context.Context, h *Handle[V]) (*Handle[V], error) {
	if a.closed.Load() {
		return nil, ErrClosed
	}
	ks := h.ks
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if h.state != handleAttached {
		return nil, fmt.Errorf("%w: %q handle detached", ErrNoActiveEntry, ks.key)
	}
	return a.recreate(ctx, ks, h.gen)
}

// recreate is all-or-nothing: every check and the generation allocation happen
// before the first mutation. Caller holds ks.mu.
func (a *access[V]) recreate(ctx context.Context, ks *keyState[V], expect *generation[V]) (*Handle[V], error) {
	old := ks.live
	if old == nil || old.rec.State() != StateReadable {
		return nil, fmt.Errorf("%w: %q has no readable generation", ErrNoActiveEntry, ks.key)
	}
	if expect != nil && old != expect {
		return nil, fmt.Errorf("%w: %q gen %d is no longer live", ErrNoActiveEntry, ks.key, expect.rec.Generation)
	}
	next, err := a.nextGen(ctx, ks)
	if err != nil {
		return nil, err
	}

	old.rec.setState(StateSuperseded)
	if old.readers > 0 {
		ks.draining[old.rec.Generation] = old
	}
	h := a.install(ks, next)
	ks.reval = nil

	a.stats.recreates.Add(1)
	a.stats.writers.Add(1)
	a.hooks.Superseded(ks.key, old.rec.Generation, old.readers)
	a.log.Debug("entry recreated", Fields{
		"key": ks.key, "old": old.rec.Generation, "gen": next,
		"readers": old.readers, "waiters": len(ks.waiters),
	})
	return h, nil
}

// nextGen allocates a generation strictly above anything this key used.
func (a *access[V]) nextGen(ctx context.Context, ks *keyState[V]) (uint64, error) {
	g, err := a.gen.Next(ctx, ks.sk)
	if err != nil {
		a.hooks.GenAllocError(ks.sk, err)
		return 0, fmt.Errorf("entrycache: allocate generation for %q: %w", ks.key, err)
	}
	if ks.seen && g <= ks.last {
		// sequence lost (retention sweep, expired redis key); lift it
		if err := a.gen.Observe(ctx, ks.sk, ks.last); err != nil {
			a.hooks.GenAllocError(ks.sk, err)
			return 0, fmt.Errorf("entrycache: observe generation for %q: %w", ks.key, err)
		}
		if g, err = a.gen.Next(ctx, ks.sk); err != nil {
			a.hooks.GenAllocError(ks.sk, err)
			return 0, fmt.Errorf("entrycache: allocate generation for %q: %w", ks.key, err)
		}
	}
	return g, nil
}

// ==============================
// Reader side
// ==============================

func (a *access[V]) validated(h *Handle[V], until time.Time) {
	ks := h.ks
	var n notes[V]
	ks.mu.Lock()
	g := h.gen
	if g == ks.live && g.rec.State() == StateReadable && until.After(g.freshUntil) {
		g.freshUntil = until
		a.log.Debug("entry validated", Fields{"key": ks.key, "gen": g.rec.Generation, "until": until})
	}
	if ks.reval == h {
		ks.reval = nil
		a.drain(ks, &n)
	}
	ks.markIdle()
	n.post(a.disp, ks.key)
	ks.mu.Unlock()
	n.runLate()
}

func (a *access[V]) detach(h *Handle[V]) error {
	ks := h.ks
	ks.mu.Lock()
	if h.state == handleDetached {
		ks.mu.Unlock()
		return nil
	}
	if h.role == RoleWriter {
		if h.state == handleCompleting {
			h.closeReq = true
			ks.mu.Unlock()
			return nil
		}
		ks.mu.Unlock()
		err := a.abandon(context.Background(), h, ErrWriterClosed, false)
		if errors.Is(err, ErrNotWriter) {
			// raced with Complete or another Close
			return nil
		}
		return err
	}

	var n notes[V]
	h.state = handleDetached
	g := h.gen
	g.readers--
	if ks.reval == h {
		ks.reval = nil
		a.drain(ks, &n)
	}
	if g.rec.State() == StateSuperseded && g.readers == 0 {
		delete(ks.draining, g.rec.Generation)
		a.log.Debug("superseded generation drained", Fields{"key": ks.key, "gen": g.rec.Generation})
	}
	ks.markIdle()
	n.post(a.disp, ks.key)
	ks.mu.Unlock()
	a.ledger.tidy(ks)
	n.runLate()
	return nil
}

func (a *access[V]) withdraw(p *Pending[V]) bool {
	ks := p.ks
	var n notes[V]
	ks.mu.Lock()
	if !ks.remove(p) {
		ks.mu.Unlock()
		return false
	}
	n.resolve(p, failed[V](ErrWithdrawn))
	ks.markIdle()
	n.post(a.disp, ks.key)
	ks.mu.Unlock()
	a.ledger.tidy(ks)
	n.runLate()
	a.stats.withdrawn.Add(1)
	return true
}

// ==============================
// Persistence
// ==============================

func (a *access[V]) persist(ctx context.Context, ks *keyState[V], gen uint64, meta Metadata, payload []byte) {
	mb, err := a.meta.Encode(toWire(meta))
	if err != nil {
		a.persistFailed(ks, gen, "frame", err)
		return
	}
	frame, err := wire.EncodeRecord(wire.Record{Gen: gen, Meta: mb, Payload: payload})
	if err != nil {
		a.persistFailed(ks, gen, "frame", err)
		return
	}
	cost := a.computeSetCost(ks.sk, frame)

	var ok bool
	err = retry.Do(
		func() error {
			var err error
			ok, err = a.provider.Set(ctx, ks.sk, frame, cost, a.defaultTTL)
			return err
		},
		retry.Attempts(a.persistAttempts),
		retry.Delay(a.persistDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
	if err != nil {
		a.persistFailed(ks, gen, "set", err)
		return
	}
	if !ok {
		a.hooks.PersistRejected(ks.sk)
		a.log.Debug("persist rejected by provider (pressure)", Fields{"key": ks.key, "gen": gen})
	}
}

// persistFailed keeps the in-memory generation authoritative; the entry is
// just not restorable after a restart.
func (a *access[V]) persistFailed(ks *keyState[V], gen uint64, op string, err error) {
	perr := &PersistError{Key: ks.key, Generation: gen, Op: op, Err: err}
	a.stats.persistErrors.Add(1)
	a.hooks.PersistError(ks.sk, perr)
	a.log.Error("persist failed", Fields{"key": ks.key, "gen": gen, "op": op, "err": err})
}

// restore loads the persisted generation of a cold key. Anything that does not
// match the generation sequence is deleted (self-heal). Caller holds ks.mu.
func (a *access[V]) restore(ctx context.Context, ks *keyState[V]) {
	raw, ok, err := a.provider.Get(ctx, ks.sk)
	if err != nil {
		a.log.Warn("provider get failed; treating as miss", Fields{"key": ks.key, "err": err})
		return
	}
	if !ok {
		return
	}
	r, err := wire.DecodeRecord(raw)
	if err != nil {
		a.selfHeal(ctx, ks, "corrupt")
		return
	}
	last, known, err := a.gen.Last(ctx, ks.sk)
	if err != nil {
		a.hooks.GenAllocError(ks.sk, err)
		a.log.Warn("gen lookup failed; treating as miss", Fields{"key": ks.key, "err": err})
		return
	}
	if (known && last != r.Gen) || (ks.seen && r.Gen <= ks.last) {
		a.selfHeal(ctx, ks, "gen_mismatch")
		return
	}
	mw, err := a.meta.Decode(r.Meta)
	if err != nil {
		a.selfHeal(ctx, ks, "meta_decode")
		return
	}
	v, err := a.codec.Decode(r.Payload)
	if err != nil {
		a.selfHeal(ctx, ks, "value_decode")
		return
	}
	if !known {
		// no history (fresh process, local genstore): adopt the persisted generation
		if err := a.gen.Observe(ctx, ks.sk, r.Gen); err != nil {
			a.hooks.GenAllocError(ks.sk, err)
			a.log.Warn("gen observe failed; treating as miss", Fields{"key": ks.key, "err": err})
			return
		}
	}

	rec := newRecord[V](ks.key, r.Gen, StateReadable)
	rec.Value = v
	rec.Meta = fromWire(mw)
	ks.live = &generation[V]{rec: rec}
	ks.note(r.Gen)
	a.stats.restores.Add(1)
	a.log.Debug("restored entry", Fields{"key": ks.key, "gen": r.Gen, "size": rec.Meta.Size})
}

func (a *access[V]) selfHeal(ctx context.Context, ks *keyState[V], reason string) {
	_ = a.provider.Del(ctx, ks.sk)
	a.stats.selfHeals.Add(1)
	a.hooks.SelfHeal(ks.sk, reason)
	a.log.Debug("dropped persisted entry", Fields{"key": ks.key, "reason": reason})
}

func toWire(m Metadata) metaWire {
	mw := metaWire{Size: m.Size, Attrs: m.Attrs}
	if !m.FetchedAt.IsZero() {
		mw.FetchedAt = m.FetchedAt.UnixNano()
	}
	if !m.ExpiresAt.IsZero() {
		mw.ExpiresAt = m.ExpiresAt.UnixNano()
	}
	return mw
}

func fromWire(mw metaWire) Metadata {
	m := Metadata{Size: mw.Size, Attrs: mw.Attrs}
	if mw.FetchedAt != 0 {
		m.FetchedAt = time.Unix(0, mw.FetchedAt)
	}
	if mw.ExpiresAt != 0 {
		m.ExpiresAt = time.Unix(0, mw.ExpiresAt)
	}
	return m
}

// ==============================
// Introspection / lifecycle
// ==============================

func (a *access[V]) Inspect(key string) (EntryInfo, bool) {
	ks := a.ledger.lookup(key)
	if ks == nil {
		return EntryInfo{}, false
	}
	ks.mu.Lock()
	in := ks.info()
	ks.mu.Unlock()
	a.ledger.release(ks)
	return in, true
}

func (a *access[V]) Stats() Stats {
	s := a.stats.snapshot()
	s.LiveKeys = a.ledger.len()
	return s
}

// Close fails every queued opener with ErrClosed, runs outstanding callbacks
// (waiting at most until ctx is done), then closes the GenStore and the
// Provider. Handles already granted stay
// usable for reading; new opens fail with ErrClosed.
func (a *access[V]) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		a.closed.Store(true)
		for _, ks := range a.ledger.snapshot() {
			var n notes[V]
			ks.mu.Lock()
			for _, p := range ks.takeWaiters() {
				n.resolve(p, failed[V](ErrClosed))
			}
			ks.markIdle()
			n.post(a.disp, ks.key)
			ks.mu.Unlock()
			n.runLate()
		}
		drainErr := a.disp.close(ctx)
		if drainErr != nil {
			a.log.Warn("close gave up waiting for callbacks", Fields{"err": drainErr})
		}

		// gen store first (best effort)
		if a.gen != nil {
			_ = a.gen.Close(ctx)
		}
		var provErr error
		if a.provider != nil {
			provErr = a.provider.Close(ctx)
		}
		a.closeErr = errors.Join(drainErr, provErr)
	})
	return a.closeErr
}
