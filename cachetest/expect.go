package cachetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/unkn0wn-root/entrycache"
)

// Mode is what an opener expects to be granted.
type Mode int

const (
	// New: writer of a fresh generation.
	New Mode = iota
	// Normal: reader that can use the value as is.
	Normal
	// Reval: reader flagged NeedsRevalidation.
	Reval
	// NotFound: failed (not cached, writer failed, withdrawn, closed).
	NotFound
)

func (m Mode) String() string {
	switch m {
	case New:
		return "NEW"
	case Normal:
		return "NORMAL"
	case Reval:
		return "REVAL"
	case NotFound:
		return "NOTFOUND"
	default:
		return "?"
	}
}

// ModeOf classifies an outcome.
func ModeOf[V any](out entrycache.Outcome[V]) Mode {
	switch {
	case out.Role == entrycache.RoleWriter:
		return New
	case out.Role == entrycache.RoleReader && out.NeedsRevalidation:
		return Reval
	case out.Role == entrycache.RoleReader:
		return Normal
	default:
		return NotFound
	}
}

// Check returns an error unless out matches want.
func Check[V any](out entrycache.Outcome[V], want Mode) error {
	if got := ModeOf(out); got != want {
		return fmt.Errorf("expected %s, got %s (role=%s err=%v)", want, got, out.Role, out.Err)
	}
	return nil
}

// Expect waits for p (bounded by a second) and fails t unless the outcome matches.
func Expect[V any](t testing.TB, p *entrycache.Pending[V], want Mode) entrycache.Outcome[V] {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	out, err := p.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("%s: opener of %q still pending", want, p.Key())
	}
	if cerr := Check(out, want); cerr != nil {
		t.Fatalf("%q: %v", p.Key(), cerr)
	}
	return out
}

// ExpectPending fails t if p resolved.
func ExpectPending[V any](t testing.TB, p *entrycache.Pending[V]) {
	t.Helper()
	if out, ok := p.Outcome(); ok {
		t.Fatalf("%q: expected pending, resolved %s", p.Key(), ModeOf(out))
	}
}

// Callback records outcomes delivered through entrycache.WithCallback.
type Callback[V any] struct {
	mu   sync.Mutex
	outs []entrycache.Outcome[V]
	cd   *Countdown
}

// NewCallback counts every delivery down on cd (may be nil).
func NewCallback[V any](cd *Countdown) *Callback[V] { return &Callback[V]{cd: cd} }

func (c *Callback[V]) Option() entrycache.OpenOption[V] {
	return entrycache.WithCallback(func(out entrycache.Outcome[V]) {
		c.mu.Lock()
		c.outs = append(c.outs, out)
		c.mu.Unlock()
		if c.cd != nil {
			c.cd.Done()
		}
	})
}

func (c *Callback[V]) Outcomes() []entrycache.Outcome[V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]entrycache.Outcome[V](nil), c.outs...)
}
