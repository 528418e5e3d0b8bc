// Package cachetest holds helpers for exercising an entrycache.Access in tests:
// an in-memory provider with failure injection, a countdown barrier and
// outcome expectations.
package cachetest

import (
	"context"
	"errors"
	"sync"
	"time"

	pr "github.com/unkn0wn-root/entrycache/provider"
)

var ErrInjected = errors.New("cachetest: injected provider failure")

type memEntry struct {
	v   []byte
	exp time.Time
}

// MemProvider is a map-backed provider. Failure counters make the next N
// calls of an operation return ErrInjected.
type MemProvider struct {
	mu      sync.Mutex
	m       map[string]memEntry
	now     func() time.Time
	reject  bool
	failSet int
	failGet int
	failDel int
	sets    int
	dels    int
	closed  bool
}

var _ pr.Provider = (*MemProvider)(nil)

func NewMemProvider() *MemProvider {
	return &MemProvider{m: make(map[string]memEntry), now: time.Now}
}

func (p *MemProvider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failGet > 0 {
		p.failGet--
		return nil, false, ErrInjected
	}
	e, ok := p.m[key]
	if !ok {
		return nil, false, nil
	}
	if !e.exp.IsZero() && !p.now().Before(e.exp) {
		delete(p.m, key)
		return nil, false, nil
	}
	return append([]byte(nil), e.v...), true, nil
}

func (p *MemProvider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sets++
	if p.failSet > 0 {
		p.failSet--
		return false, ErrInjected
	}
	if p.reject {
		return false, nil
	}
	e := memEntry{v: append([]byte(nil), value...)}
	if ttl > 0 {
		e.exp = p.now().Add(ttl)
	}
	p.m[key] = e
	return true, nil
}

func (p *MemProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dels++
	if p.failDel > 0 {
		p.failDel--
		return ErrInjected
	}
	delete(p.m, key)
	return nil
}

func (p *MemProvider) Close(context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

// FailSets makes the next n Set calls fail.
func (p *MemProvider) FailSets(n int) { p.mu.Lock(); p.failSet = n; p.mu.Unlock() }

// FailGets makes the next n Get calls fail.
func (p *MemProvider) FailGets(n int) { p.mu.Lock(); p.failGet = n; p.mu.Unlock() }

// FailDels makes the next n Del calls fail.
func (p *MemProvider) FailDels(n int) { p.mu.Lock(); p.failDel = n; p.mu.Unlock() }

// Reject makes Set report ok=false without error.
func (p *MemProvider) Reject(on bool) { p.mu.Lock(); p.reject = on; p.mu.Unlock() }

// Raw returns the stored bytes for key, ignoring expiry.
func (p *MemProvider) Raw(key string) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.m[key]
	return e.v, ok
}

// Put stores raw bytes directly (e.g. a corrupt frame).
func (p *MemProvider) Put(key string, b []byte) {
	p.mu.Lock()
	p.m[key] = memEntry{v: append([]byte(nil), b...)}
	p.mu.Unlock()
}

func (p *MemProvider) Len() int  { p.mu.Lock(); defer p.mu.Unlock(); return len(p.m) }
func (p *MemProvider) Sets() int { p.mu.Lock(); defer p.mu.Unlock(); return p.sets }
func (p *MemProvider) Dels() int { p.mu.Lock(); defer p.mu.Unlock(); return p.dels }
func (p *MemProvider) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
