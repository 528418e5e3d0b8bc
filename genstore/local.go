package genstore

import (
	"context"
	"sync"
	"time"
)

type localSeq struct {
	next      uint64 // generations handed out so far; last = next-1
	UpdatedAt time.Time
}

// LocalGenStore keeps sequences in-process (default).
// Optional cleanup loop prunes long-inactive keys.
type LocalGenStore struct {
	mu     sync.RWMutex
	seqs   map[string]localSeq
	ticker *time.Ticker
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once

	retention time.Duration
}

var _ GenStore = (*LocalGenStore)(nil)

func NewLocalGenStore(cleanupInterval, retention time.Duration) *LocalGenStore {
	s := &LocalGenStore{
		seqs:      make(map[string]localSeq),
		retention: retention,
	}
	if cleanupInterval > 0 && retention > 0 {
		s.ticker = time.NewTicker(cleanupInterval)
		s.stopCh = make(chan struct{})
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-s.ticker.C:
					s.Cleanup(retention)
				case <-s.stopCh:
					return
				}
			}
		}()
	}
	return s
}

func (s *LocalGenStore) Last(_ context.Context, k string) (uint64, bool, error) {
	s.mu.RLock()
	e, ok := s.seqs[k]
	s.mu.RUnlock()
	if !ok || e.next == 0 {
		return 0, false, nil
	}
	return e.next - 1, true, nil
}

func (s *LocalGenStore) Next(_ context.Context, k string) (uint64, error) {
	now := time.Now()
	s.mu.Lock()
	e := s.seqs[k]
	gen := e.next
	e.next++
	e.UpdatedAt = now
	s.seqs[k] = e
	s.mu.Unlock()
	return gen, nil
}

func (s *LocalGenStore) Observe(_ context.Context, k string, gen uint64) error {
	now := time.Now()
	s.mu.Lock()
	e := s.seqs[k]
	if e.next <= gen {
		e.next = gen + 1
	}
	e.UpdatedAt = now
	s.seqs[k] = e
	s.mu.Unlock()
	return nil
}

func (s *LocalGenStore) Cleanup(retention time.Duration) {
	if retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-retention)

	s.mu.Lock()
	for k, e := range s.seqs {
		if !e.UpdatedAt.IsZero() && e.UpdatedAt.Before(cutoff) {
			delete(s.seqs, k)
		}
	}
	s.mu.Unlock()
}

func (s *LocalGenStore) Close(_ context.Context) error {
	s.once.Do(func() {
		if s.stopCh != nil {
			close(s.stopCh)
			s.ticker.Stop() // stop ticker before waiting
			s.wg.Wait()
		}
	})
	return nil
}
