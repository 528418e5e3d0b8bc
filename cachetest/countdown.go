package cachetest

import (
	"context"
	"sync"
)

// Countdown is a barrier that opens after n calls to Done. Extra calls are
// counted but ignored.
type Countdown struct {
	mu    sync.Mutex
	left  int
	extra int
	done  chan struct{}
}

func NewCountdown(n int) *Countdown {
	c := &Countdown{left: n, done: make(chan struct{})}
	if n <= 0 {
		close(c.done)
	}
	return c
}

func (c *Countdown) Done() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.left == 0 {
		c.extra++
		return
	}
	c.left--
	if c.left == 0 {
		close(c.done)
	}
}

// C is closed once the count reaches zero.
func (c *Countdown) C() <-chan struct{} { return c.done }

func (c *Countdown) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Extra reports Done calls beyond n.
func (c *Countdown) Extra() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.extra
}
