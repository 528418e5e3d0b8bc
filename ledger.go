package entrycache

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// generation is the ledger's view of one Record: who is bound to it.
type generation[V any] struct {
	rec     *Record[V]
	readers int
	writer  *Handle[V] // set while the record is Writing

	// origin confirmed the record fresh until then (ValidatedUntil)
	freshUntil time.Time
}

// keyState is the per-key ledger. Every field below mu is guarded by mu;
// refs is guarded by ledger.mu.
type keyState[V any] struct {
	key string
	sk  string // storage key

	refs int
	idle atomic.Bool

	mu       sync.Mutex
	live     *generation[V]
	reval    *Handle[V] // reader currently revalidating live
	waiters  []*Pending[V]
	draining map[uint64]*generation[V]

	// newest generation this key has used in-process (incl. discarded)
	seen bool
	last uint64
}

// markIdle must be called with mu held, before unlocking.
func (ks *keyState[V]) markIdle() {
	ks.idle.Store(ks.live == nil && len(ks.waiters) == 0 && len(ks.draining) == 0)
}

func (ks *keyState[V]) note(gen uint64) {
	if !ks.seen || gen > ks.last {
		ks.seen = true
		ks.last = gen
	}
}

func (ks *keyState[V]) enqueue(p *Pending[V]) {
	ks.waiters = append(ks.waiters, p)
}

// remove drops p from the queue, preserving the order of the others.
func (ks *keyState[V]) remove(p *Pending[V]) bool {
	for i, w := range ks.waiters {
		if w == p {
			copy(ks.waiters[i:], ks.waiters[i+1:])
			ks.waiters[len(ks.waiters)-1] = nil
			ks.waiters = ks.waiters[:len(ks.waiters)-1]
			return true
		}
	}
	return false
}

func (ks *keyState[V]) popWaiter() *Pending[V] {
	p := ks.waiters[0]
	ks.waiters[0] = nil
	ks.waiters = ks.waiters[1:]
	if len(ks.waiters) == 0 {
		ks.waiters = nil
	}
	return p
}

func (ks *keyState[V]) takeWaiters() []*Pending[V] {
	w := ks.waiters
	ks.waiters = nil
	return w
}

func (ks *keyState[V]) info() EntryInfo {
	in := EntryInfo{
		Key:          ks.key,
		Waiters:      len(ks.waiters),
		Revalidating: ks.reval != nil,
	}
	if g := ks.live; g != nil {
		in.Live = true
		in.Generation = g.rec.Generation
		in.State = g.rec.State()
		in.Readers = g.readers
	}
	for gen := range ks.draining {
		in.Draining = append(in.Draining, gen)
	}
	slices.Sort(in.Draining)
	return in
}

// ledger owns the key map. Entries are refcounted while an operation holds
// them and forgotten once idle, in the manner of a per-path file lock table.
type ledger[V any] struct {
	mu   sync.Mutex
	keys map[string]*keyState[V]
	sk   func(string) string
}

func newLedger[V any](storageKey func(string) string) *ledger[V] {
	return &ledger[V]{keys: make(map[string]*keyState[V]), sk: storageKey}
}

func (l *ledger[V]) acquire(key string) *keyState[V] {
	l.mu.Lock()
	ks := l.keys[key]
	if ks == nil {
		ks = &keyState[V]{
			key:      key,
			sk:       l.sk(key),
			draining: make(map[uint64]*generation[V]),
		}
		ks.idle.Store(true)
		l.keys[key] = ks
	}
	ks.refs++
	l.mu.Unlock()
	return ks
}

// lookup is acquire without creating.
func (l *ledger[V]) lookup(key string) *keyState[V] {
	l.mu.Lock()
	defer l.mu.Unlock()
	ks := l.keys[key]
	if ks != nil {
		ks.refs++
	}
	return ks
}

func (l *ledger[V]) release(ks *keyState[V]) {
	l.mu.Lock()
	ks.refs--
	l.forgetLocked(ks)
	l.mu.Unlock()
}

// tidy forgets ks if nothing refers to it any more. Used after handle
// operations, which hold ks without a ref.
func (l *ledger[V]) tidy(ks *keyState[V]) {
	l.mu.Lock()
	l.forgetLocked(ks)
	l.mu.Unlock()
}

func (l *ledger[V]) forgetLocked(ks *keyState[V]) {
	if ks.refs == 0 && ks.idle.Load() && l.keys[ks.key] == ks {
		delete(l.keys, ks.key)
	}
}

func (l *ledger[V]) snapshot() []*keyState[V] {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*keyState[V], 0, len(l.keys))
	for _, ks := range l.keys {
		out = append(out, ks)
	}
	return out
}

func (l *ledger[V]) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}
