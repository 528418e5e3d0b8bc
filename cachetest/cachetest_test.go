package cachetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/entrycache"
)

func TestCountdown(t *testing.T) {
	cd := NewCountdown(2)
	select {
	case <-cd.C():
		t.Fatal("opened early")
	default:
	}
	cd.Done()
	cd.Done()
	cd.Done()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, cd.Wait(ctx))
	require.Equal(t, 1, cd.Extra())

	require.NoError(t, NewCountdown(0).Wait(ctx))
}

func TestCountdown_WaitCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, NewCountdown(1).Wait(ctx), context.Canceled)
}

func TestModeOf(t *testing.T) {
	require.Equal(t, New, ModeOf(entrycache.Outcome[int]{Role: entrycache.RoleWriter}))
	require.Equal(t, Normal, ModeOf(entrycache.Outcome[int]{Role: entrycache.RoleReader}))
	require.Equal(t, Reval, ModeOf(entrycache.Outcome[int]{Role: entrycache.RoleReader, NeedsRevalidation: true}))
	require.Equal(t, NotFound, ModeOf(entrycache.Outcome[int]{Role: entrycache.RoleFailed, Err: entrycache.ErrNotCached}))
	require.Error(t, Check(entrycache.Outcome[int]{Role: entrycache.RoleReader}, New))
	require.Equal(t, "REVAL", Reval.String())
}

func TestMemProvider(t *testing.T) {
	ctx := context.Background()
	p := NewMemProvider()

	ok, err := p.Set(ctx, "k", []byte("v"), 1, 0)
	require.NoError(t, err)
	require.True(t, ok)
	b, hit, err := p.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, "v", string(b))

	p.FailSets(1)
	_, err = p.Set(ctx, "k", []byte("w"), 1, 0)
	require.True(t, errors.Is(err, ErrInjected))

	p.Reject(true)
	ok, err = p.Set(ctx, "k2", []byte("w"), 1, 0)
	require.NoError(t, err)
	require.False(t, ok)
	p.Reject(false)

	p.FailGets(1)
	_, _, err = p.Get(ctx, "k")
	require.ErrorIs(t, err, ErrInjected)

	require.NoError(t, p.Del(ctx, "k"))
	_, hit, _ = p.Get(ctx, "k")
	require.False(t, hit)
	require.Equal(t, 3, p.Sets())
	require.Equal(t, 1, p.Dels())

	require.NoError(t, p.Close(ctx))
	require.True(t, p.Closed())
}

func TestMemProvider_TTL(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(100, 0)
	p := NewMemProvider()
	p.now = func() time.Time { return now }

	_, _ = p.Set(ctx, "k", []byte("v"), 1, time.Minute)
	_, hit, _ := p.Get(ctx, "k")
	require.True(t, hit)

	now = now.Add(time.Minute)
	_, hit, _ = p.Get(ctx, "k")
	require.False(t, hit)
}
