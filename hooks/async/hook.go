// Package asynchook moves hook delivery off the ledger's critical sections.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{SelfHealEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	acc, _ := entrycache.New[Page](entrycache.Options[Page]{
//	    Namespace: "http",
//	    Provider:  p,
//	    Codec:     codec.JSON[Page]{},
//	    Hooks:     hooks,
//	})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/entrycache"
)

// Hooks queues events for a fixed worker pool. When the queue is full the
// event is dropped and counted.
type Hooks struct {
	inner   entrycache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ entrycache.Hooks = (*Hooks)(nil)

func New(inner entrycache.Hooks, workers, qlen int) *Hooks {
	if inner == nil {
		inner = entrycache.NopHooks{}
	}
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close stops accepting events and waits for queued ones to run.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped is the number of events lost to a full queue or a closed pool.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) SelfHeal(k, r string)             { h.try(func() { h.inner.SelfHeal(k, r) }) }
func (h *Hooks) PersistRejected(k string)         { h.try(func() { h.inner.PersistRejected(k) }) }
func (h *Hooks) PersistError(k string, err error) { h.try(func() { h.inner.PersistError(k, err) }) }
func (h *Hooks) GenAllocError(k string, err error) {
	h.try(func() { h.inner.GenAllocError(k, err) })
}
func (h *Hooks) WriterFailed(key string, gen uint64, waiters int, cause error) {
	h.try(func() { h.inner.WriterFailed(key, gen, waiters, cause) })
}
func (h *Hooks) Superseded(key string, gen uint64, readers int) {
	h.try(func() { h.inner.Superseded(key, gen, readers) })
}
