package disk

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T, now func() time.Time) *Provider {
	t.Helper()
	p, err := New(Config{Dir: t.TempDir(), Now: now})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return p
}

func TestDiskRoundTripIsByteTransparent(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t, nil)

	_, ok, err := p.Get(ctx, "entry:http:http://200/")
	require.NoError(t, err)
	assert.False(t, ok)

	val := []byte{0, 1, 2, 'E', 'N', 'T', 'C'}
	ok, err = p.Set(ctx, "entry:http:http://200/", val, 1, 0)
	require.NoError(t, err)
	require.True(t, ok)

	got, ok, err := p.Get(ctx, "entry:http:http://200/")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, val, got)
}

func TestDiskOverwriteReplaces(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t, nil)

	_, err := p.Set(ctx, "k", []byte("old"), 1, 0)
	require.NoError(t, err)
	_, err = p.Set(ctx, "k", []byte("new"), 1, 0)
	require.NoError(t, err)

	got, ok, err := p.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "new", string(got))

	// no temp files left behind
	matches, err := filepath.Glob(filepath.Join(p.Dir(), "*", ".entry-*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestDiskTTLExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	var mu sync.Mutex
	clock := func() time.Time { mu.Lock(); defer mu.Unlock(); return now }
	p := newTestProvider(t, clock)

	_, err := p.Set(ctx, "k", []byte("v"), 1, time.Minute)
	require.NoError(t, err)

	_, ok, err := p.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()

	_, ok, err = p.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "expired entry must miss")

	_, statErr := os.Stat(p.path("k"))
	assert.True(t, os.IsNotExist(statErr), "expired file must be removed")
}

func TestDiskDelMissingIsNoError(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t, nil)
	require.NoError(t, p.Del(ctx, "nope"))

	_, err := p.Set(ctx, "k", []byte("v"), 1, 0)
	require.NoError(t, err)
	require.NoError(t, p.Del(ctx, "k"))
	_, ok, err := p.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDiskShortFileIsDropped(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t, nil)

	path := p.path("k")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))

	_, ok, err := p.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDiskConcurrentWritersSameKey(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := p.Set(ctx, "k", []byte{byte(i)}, 1, 0)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, ok, err := p.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, got, 1)

	p.mu.Lock()
	assert.Empty(t, p.locks, "entry locks must be released")
	p.mu.Unlock()
}

func TestDiskRequiresDir(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestDiskHonoursCancelledContext(t *testing.T) {
	p := newTestProvider(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Set(ctx, "k", []byte("v"), 1, 0)
	assert.ErrorIs(t, err, context.Canceled)
}
