package entrycache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/entrycache"
	"github.com/unkn0wn-root/entrycache/cachetest"
	"github.com/unkn0wn-root/entrycache/codec"
	gen "github.com/unkn0wn-root/entrycache/genstore"
)

type hookEvents struct {
	selfHeals []string
	rejected  int
	persist   []error
	genErrs   []error
	failed    []uint64
	supers    map[uint64]int // gen -> readers at supersede
}

type recHooks struct {
	mu sync.Mutex
	ev hookEvents
}

func newRecHooks() *recHooks { return &recHooks{ev: hookEvents{supers: map[uint64]int{}}} }

func (h *recHooks) SelfHeal(_, reason string) {
	h.mu.Lock()
	h.ev.selfHeals = append(h.ev.selfHeals, reason)
	h.mu.Unlock()
}
func (h *recHooks) PersistRejected(string) { h.mu.Lock(); h.ev.rejected++; h.mu.Unlock() }
func (h *recHooks) PersistError(_ string, err error) {
	h.mu.Lock()
	h.ev.persist = append(h.ev.persist, err)
	h.mu.Unlock()
}
func (h *recHooks) GenAllocError(_ string, err error) {
	h.mu.Lock()
	h.ev.genErrs = append(h.ev.genErrs, err)
	h.mu.Unlock()
}
func (h *recHooks) WriterFailed(_ string, g uint64, _ int, _ error) {
	h.mu.Lock()
	h.ev.failed = append(h.ev.failed, g)
	h.mu.Unlock()
}
func (h *recHooks) Superseded(_ string, g uint64, readers int) {
	h.mu.Lock()
	h.ev.supers[g] = readers
	h.mu.Unlock()
}

func (h *recHooks) events() hookEvents {
	h.mu.Lock()
	defer h.mu.Unlock()
	cp := hookEvents{
		selfHeals: append([]string(nil), h.ev.selfHeals...),
		rejected:  h.ev.rejected,
		persist:   append([]error(nil), h.ev.persist...),
		genErrs:   append([]error(nil), h.ev.genErrs...),
		failed:    append([]uint64(nil), h.ev.failed...),
		supers:    map[uint64]int{},
	}
	for k, v := range h.ev.supers {
		cp.supers[k] = v
	}
	return cp
}

type fixture struct {
	acc   entrycache.Access[string]
	mem   *cachetest.MemProvider
	hooks *recHooks
}

func newFixture(t *testing.T, mutate func(*entrycache.Options[string])) *fixture {
	t.Helper()
	f := &fixture{mem: cachetest.NewMemProvider(), hooks: newRecHooks()}
	opts := entrycache.Options[string]{
		Namespace:    "t",
		Provider:     f.mem,
		Codec:        codec.String{},
		Hooks:        f.hooks,
		PersistDelay: time.Millisecond,
	}
	if mutate != nil {
		mutate(&opts)
	}
	acc, err := entrycache.New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = acc.Close(context.Background()) })
	f.acc = acc
	return f
}

func (f *fixture) open(t *testing.T, key string, intent entrycache.Intent, opts ...entrycache.OpenOption[string]) *entrycache.Pending[string] {
	t.Helper()
	p, err := f.acc.Open(context.Background(), key, intent, opts...)
	require.NoError(t, err)
	return p
}

func (f *fixture) normal(t *testing.T, key string, opts ...entrycache.OpenOption[string]) *entrycache.Pending[string] {
	t.Helper()
	p, err := f.acc.OpenNormally(context.Background(), key, opts...)
	require.NoError(t, err)
	return p
}

// write makes key readable with v and detaches the writer.
func (f *fixture) write(t *testing.T, key, v string) uint64 {
	t.Helper()
	out := cachetest.Expect(t, f.normal(t, key), cachetest.New)
	require.NoError(t, out.Handle.Complete(context.Background(), v, entrycache.Metadata{}))
	require.NoError(t, out.Handle.Close())
	return out.Generation()
}

func staleCheck[V any]() entrycache.OpenOption[V] {
	return entrycache.WithCheck(func(*entrycache.Record[V], time.Time) entrycache.Verdict {
		return entrycache.VerdictRevalidate
	})
}

func acceptCheck[V any]() entrycache.OpenOption[V] {
	return entrycache.WithCheck(func(*entrycache.Record[V], time.Time) entrycache.Verdict {
		return entrycache.VerdictAccept
	})
}

// order records callback names in delivery order.
type order struct {
	mu    sync.Mutex
	names []string
	cd    *cachetest.Countdown
}

func newOrder(n int) *order { return &order{cd: cachetest.NewCountdown(n)} }

func (o *order) named(name string) entrycache.OpenOption[string] {
	return entrycache.WithCallback(func(entrycache.Outcome[string]) {
		o.mu.Lock()
		o.names = append(o.names, name)
		o.mu.Unlock()
		o.cd.Done()
	})
}

func (o *order) wait(t *testing.T) []string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, o.cd.Wait(ctx), "callbacks not delivered")
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.names...)
}

var errGen = errors.New("genstore down")

// flakyGen wraps a LocalGenStore and fails Next while failNext is set.
type flakyGen struct {
	*gen.LocalGenStore
	failNext atomic.Bool
}

func newFlakyGen() *flakyGen { return &flakyGen{LocalGenStore: gen.NewLocalGenStore(0, 0)} }

func (g *flakyGen) Next(ctx context.Context, k string) (uint64, error) {
	if g.failNext.Load() {
		return 0, errGen
	}
	return g.LocalGenStore.Next(ctx, k)
}

type failCodec struct{ codec.String }

var errEncode = errors.New("cannot encode")

func (failCodec) Encode(string) ([]byte, error) { return nil, errEncode }
