// Package disk is a file-backed provider: one file per storage key under a root
// directory, written through a temp file + rename so readers never observe a
// partially written record.
package disk

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	pr "github.com/unkn0wn-root/entrycache/provider"
)

const (
	fileExt = ".entry"
	hdrLen  = 8 // expiry, unix nanos (0 = none)
)

// Provider stores values on the local filesystem.
// Layout: <Dir>/<first two hex chars>/<sha256(key)>.entry
type Provider struct {
	dir string
	now func() time.Time

	mu    sync.Mutex
	locks map[string]*entryLock
}

var _ pr.Provider = (*Provider)(nil)

type entryLock struct {
	mu   sync.Mutex
	refs int
}

type Config struct {
	Dir string           // required; created if missing
	Now func() time.Time // optional clock for expiry checks
}

func New(cfg Config) (*Provider, error) {
	if cfg.Dir == "" {
		return nil, errors.New("disk provider: dir required")
	}
	abs, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("disk provider: resolve dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("disk provider: create dir: %w", err)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Provider{
		dir:   abs,
		now:   now,
		locks: make(map[string]*entryLock),
	}, nil
}

// Dir returns the absolute root directory.
func (p *Provider) Dir() string { return p.dir }

func (p *Provider) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	unlock := p.lockEntry(key)
	defer unlock()

	path := p.path(key)
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if len(b) < hdrLen {
		// not ours; drop it
		_ = os.Remove(path)
		return nil, false, nil
	}
	if exp := int64(binary.BigEndian.Uint64(b[:hdrLen])); exp != 0 && p.now().UnixNano() >= exp {
		_ = os.Remove(path)
		return nil, false, nil
	}
	return b[hdrLen:], true, nil
}

func (p *Provider) Set(ctx context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	unlock := p.lockEntry(key)
	defer unlock()

	path := p.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, err
	}

	var hdr [hdrLen]byte
	if ttl > 0 {
		binary.BigEndian.PutUint64(hdr[:], uint64(p.now().Add(ttl).UnixNano()))
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".entry-*")
	if err != nil {
		return false, err
	}
	tmpName := tmp.Name()

	_, err = tmp.Write(hdr[:])
	if err == nil {
		_, err = tmp.Write(value)
	}
	if err == nil {
		err = tmp.Sync()
	}
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpName)
		return false, err
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return false, err
	}
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	unlock := p.lockEntry(key)
	defer unlock()

	if err := os.Remove(p.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (p *Provider) Close(context.Context) error { return nil }

func (p *Provider) lockEntry(key string) func() {
	p.mu.Lock()
	l := p.locks[key]
	if l == nil {
		l = &entryLock{}
		p.locks[key] = l
	}
	l.refs++
	p.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		p.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.locks, key)
		}
		p.mu.Unlock()
	}
}

func (p *Provider) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	name := hex.EncodeToString(sum[:])
	return filepath.Join(p.dir, name[:2], name+fileExt)
}
