package entrycache

import (
	"context"
	"sync"

	"github.com/unkn0wn-root/entrycache/internal/util"
)

// dispatcher runs outcome callbacks off the ledger's critical sections.
// A key always maps to the same lane, so its callbacks run one at a time in
// the order they were posted. Lanes never drop and never block the poster.
type dispatcher struct {
	lanes []*lane
	wg    sync.WaitGroup
	once  sync.Once
	done  chan struct{} // closed once every lane has exited
}

type lane struct {
	mu     sync.Mutex
	q      []func()
	closed bool
	wake   chan struct{}
}

func newDispatcher(n int) *dispatcher {
	if n <= 0 {
		n = 1
	}
	d := &dispatcher{lanes: make([]*lane, n), done: make(chan struct{})}
	d.wg.Add(n)
	for i := range d.lanes {
		l := &lane{wake: make(chan struct{}, 1)}
		d.lanes[i] = l
		go l.run(&d.wg)
	}
	return d
}

// post queues fns on key's lane. Once the dispatcher is closed nothing is
// queued and fns are handed back; the caller runs them itself so that late
// resolutions (e.g. a writer finishing after Close) still fire once.
func (d *dispatcher) post(key string, fns []func()) (late []func()) {
	if len(fns) == 0 {
		return nil
	}
	l := d.lanes[util.Lane(key, len(d.lanes))]
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return fns
	}
	l.q = append(l.q, fns...)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return nil
}

// close drains every lane and waits, at most until ctx is done, for the lane
// goroutines to exit. Called from a callback it can only end through ctx,
// since the calling lane cannot exit while it waits.
func (d *dispatcher) close(ctx context.Context) error {
	d.once.Do(func() {
		for _, l := range d.lanes {
			l.mu.Lock()
			l.closed = true
			l.mu.Unlock()
			select {
			case l.wake <- struct{}{}:
			default:
			}
		}
		go func() {
			d.wg.Wait()
			close(d.done)
		}()
	})
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *lane) run(wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		l.mu.Lock()
		batch := l.q
		l.q = nil
		closed := l.closed
		l.mu.Unlock()

		for _, f := range batch {
			f()
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-l.wake
	}
}
