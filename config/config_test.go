package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/entrycache"
	"github.com/unkn0wn-root/entrycache/codec"
	gen "github.com/unkn0wn-root/entrycache/genstore"
	"github.com/unkn0wn-root/entrycache/provider/disk"
	rp "github.com/unkn0wn-root/entrycache/provider/redis"
	"github.com/unkn0wn-root/entrycache/provider/ristretto"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, "cache.yaml", `
namespace: http
default_ttl: 2h
persist_attempts: 5
provider:
  kind: disk
  disk:
    dir: `+dir+`
genstore:
  kind: local
  retention: 48h
log:
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http", cfg.Namespace)
	assert.Equal(t, 2*time.Hour, cfg.DefaultTTL)
	assert.Equal(t, uint(5), cfg.PersistAttempts)
	assert.Equal(t, 20*time.Millisecond, cfg.PersistDelay) // default
	assert.Equal(t, "disk", cfg.Provider.Kind)
	assert.Equal(t, dir, cfg.Provider.Disk.Dir)
	assert.Equal(t, 48*time.Hour, cfg.GenStore.Retention)
	assert.Equal(t, time.Hour, cfg.GenStore.CleanupInterval)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ENTRYCACHE_NAMESPACE", "envns")
	t.Setenv("ENTRYCACHE_PROVIDER_KIND", "ristretto")
	t.Setenv("ENTRYCACHE_PROVIDER_RISTRETTO_SYNCHRONOUS", "true")
	t.Setenv("ENTRYCACHE_GENSTORE_REDIS_TTL", "90s")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "envns", cfg.Namespace)
	assert.Equal(t, "ristretto", cfg.Provider.Kind)
	assert.True(t, cfg.Provider.Ristretto.Synchronous)
	assert.Equal(t, 90*time.Second, cfg.GenStore.Redis.TTL)
}

func TestLoad_Invalid(t *testing.T) {
	path := writeFile(t, "bad.yaml", `
provider:
  kind: tape
genstore:
  kind: etcd
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "namespace is required")
	assert.Contains(t, err.Error(), `unknown provider.kind "tape"`)
	assert.Contains(t, err.Error(), `unknown genstore.kind "etcd"`)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestBuildProvider_Kinds(t *testing.T) {
	ctx := context.Background()

	p, err := BuildProvider(ctx, ProviderConfig{Kind: "disk", Disk: DiskConfig{Dir: t.TempDir()}})
	require.NoError(t, err)
	assert.IsType(t, &disk.Provider{}, p)
	require.NoError(t, p.Close(ctx))

	p, err = BuildProvider(ctx, ProviderConfig{Kind: "ristretto", Ristretto: RistrettoConfig{
		NumCounters: 1000, MaxCost: 1 << 20, BufferItems: 64, Synchronous: true,
	}})
	require.NoError(t, err)
	assert.IsType(t, &ristretto.Provider{}, p)
	require.NoError(t, p.Close(ctx))

	// go-redis dials lazily, so building needs no server
	p, err = BuildProvider(ctx, ProviderConfig{Kind: "redis", Redis: RedisConfig{Addr: "127.0.0.1:1", Prefix: "t:"}})
	require.NoError(t, err)
	assert.IsType(t, &rp.Redis{}, p)
	require.NoError(t, p.Close(ctx))

	_, err = BuildProvider(ctx, ProviderConfig{Kind: "nope"})
	require.Error(t, err)
}

func TestBuildGenStore_Kinds(t *testing.T) {
	gs, err := BuildGenStore("ns", GenStoreConfig{Kind: "local"})
	require.NoError(t, err)
	assert.IsType(t, &gen.LocalGenStore{}, gs)
	require.NoError(t, gs.Close(context.Background()))

	gs, err = BuildGenStore("ns", GenStoreConfig{Kind: "redis", Redis: RedisConfig{Addr: "127.0.0.1:1"}})
	require.NoError(t, err)
	assert.IsType(t, &gen.RedisGenStore{}, gs)
	_ = gs.Close(context.Background())
}

func TestBuildLogger_Writer(t *testing.T) {
	var buf bytes.Buffer
	l, closer, err := BuildLogger(LogConfig{Level: "info"}, &buf)
	require.NoError(t, err)
	defer closer.Close()

	l.Info("restored entry", entrycache.Fields{"key": "a"})
	assert.Contains(t, buf.String(), "restored entry")
}

func TestOptions_EndToEnd(t *testing.T) {
	ctx := context.Background()
	path := writeFile(t, "cache.yaml", `
namespace: e2e
provider:
  kind: disk
  disk:
    dir: `+t.TempDir()+`
log:
  level: error
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	opts, closer, err := Options[string](ctx, cfg, codec.String{})
	require.NoError(t, err)
	defer closer.Close()

	acc, err := entrycache.New(opts)
	require.NoError(t, err)
	defer acc.Close(ctx)

	p, err := acc.OpenNormally(ctx, "k")
	require.NoError(t, err)
	out, err := p.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, entrycache.RoleWriter, out.Role)
	require.NoError(t, out.Handle.Complete(ctx, "v", entrycache.Metadata{}))
	require.NoError(t, out.Handle.Close())

	p, err = acc.Open(ctx, "k", entrycache.IntentReadOnly)
	require.NoError(t, err)
	out, err = p.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, "v", out.Handle.Value())
	require.NoError(t, out.Handle.Close())
}
