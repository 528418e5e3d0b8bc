// Package config assembles entrycache collaborators (provider, generation
// store, logger) from a YAML/TOML/JSON file and ENTRYCACHE_* environment
// variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"github.com/unkn0wn-root/entrycache"
	c "github.com/unkn0wn-root/entrycache/codec"
	gen "github.com/unkn0wn-root/entrycache/genstore"
	lr "github.com/unkn0wn-root/entrycache/log/logrus"
	pr "github.com/unkn0wn-root/entrycache/provider"
	"github.com/unkn0wn-root/entrycache/provider/bigcache"
	"github.com/unkn0wn-root/entrycache/provider/disk"
	rp "github.com/unkn0wn-root/entrycache/provider/redis"
	"github.com/unkn0wn-root/entrycache/provider/ristretto"
)

const envPrefix = "ENTRYCACHE"

type Config struct {
	Namespace       string        `mapstructure:"namespace"`
	DefaultTTL      time.Duration `mapstructure:"default_ttl"`
	PersistAttempts uint          `mapstructure:"persist_attempts"`
	PersistDelay    time.Duration `mapstructure:"persist_delay"`
	DispatchLanes   int           `mapstructure:"dispatch_lanes"`

	Provider ProviderConfig `mapstructure:"provider"`
	GenStore GenStoreConfig `mapstructure:"genstore"`
	Log      LogConfig      `mapstructure:"log"`
}

type ProviderConfig struct {
	Kind      string          `mapstructure:"kind"` // disk | bigcache | ristretto | redis
	Disk      DiskConfig      `mapstructure:"disk"`
	BigCache  BigCacheConfig  `mapstructure:"bigcache"`
	Ristretto RistrettoConfig `mapstructure:"ristretto"`
	Redis     RedisConfig     `mapstructure:"redis"`
}

type DiskConfig struct {
	Dir string `mapstructure:"dir"`
}

type BigCacheConfig struct {
	LifeWindow         time.Duration `mapstructure:"life_window"`
	CleanWindow        time.Duration `mapstructure:"clean_window"`
	Shards             int           `mapstructure:"shards"`
	MaxEntriesInWindow int           `mapstructure:"max_entries_in_window"`
	MaxEntrySize       int           `mapstructure:"max_entry_size"`
	HardMaxCacheSizeMB int           `mapstructure:"hard_max_cache_size_mb"`
}

type RistrettoConfig struct {
	NumCounters int64 `mapstructure:"num_counters"`
	MaxCost     int64 `mapstructure:"max_cost"`
	BufferItems int64 `mapstructure:"buffer_items"`
	Metrics     bool  `mapstructure:"metrics"`
	Synchronous bool  `mapstructure:"synchronous"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"` // genstore only
}

type GenStoreConfig struct {
	Kind            string        `mapstructure:"kind"` // local | redis
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	Retention       time.Duration `mapstructure:"retention"`
	Redis           RedisConfig   `mapstructure:"redis"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Load reads path (format from its extension) and applies env overrides, e.g.
// ENTRYCACHE_PROVIDER_KIND=redis. An empty path loads defaults plus env only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Provider.Kind == "disk" {
		abs, err := filepath.Abs(cfg.Provider.Disk.Dir)
		if err != nil {
			return nil, fmt.Errorf("config: resolve disk dir: %w", err)
		}
		cfg.Provider.Disk.Dir = abs
	}
	return &cfg, nil
}

// every key needs a default so AutomaticEnv can see it during Unmarshal
func setDefaults(v *viper.Viper) {
	v.SetDefault("namespace", "")
	v.SetDefault("default_ttl", "168h")
	v.SetDefault("persist_attempts", 3)
	v.SetDefault("persist_delay", "20ms")
	v.SetDefault("dispatch_lanes", 4)

	v.SetDefault("provider.kind", "disk")
	v.SetDefault("provider.disk.dir", "./cache")
	v.SetDefault("provider.bigcache.life_window", "168h")
	v.SetDefault("provider.bigcache.clean_window", "5m")
	v.SetDefault("provider.bigcache.shards", 1024)
	v.SetDefault("provider.bigcache.max_entries_in_window", 1000*10*60)
	v.SetDefault("provider.bigcache.max_entry_size", 500)
	v.SetDefault("provider.bigcache.hard_max_cache_size_mb", 0)
	v.SetDefault("provider.ristretto.num_counters", 1_000_000)
	v.SetDefault("provider.ristretto.max_cost", 64<<20)
	v.SetDefault("provider.ristretto.buffer_items", 64)
	v.SetDefault("provider.ristretto.metrics", false)
	v.SetDefault("provider.ristretto.synchronous", false)
	v.SetDefault("provider.redis.addr", "localhost:6379")
	v.SetDefault("provider.redis.password", "")
	v.SetDefault("provider.redis.db", 0)
	v.SetDefault("provider.redis.prefix", "")

	v.SetDefault("genstore.kind", "local")
	v.SetDefault("genstore.cleanup_interval", "1h")
	v.SetDefault("genstore.retention", "720h")
	v.SetDefault("genstore.redis.addr", "localhost:6379")
	v.SetDefault("genstore.redis.password", "")
	v.SetDefault("genstore.redis.db", 0)
	v.SetDefault("genstore.redis.ttl", "0s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 10)
	v.SetDefault("log.max_age_days", 0)
	v.SetDefault("log.compress", true)
}

func (cfg *Config) Validate() error {
	var errs []error
	if cfg.Namespace == "" {
		errs = append(errs, errors.New("namespace is required"))
	}
	switch cfg.Provider.Kind {
	case "disk":
		if cfg.Provider.Disk.Dir == "" {
			errs = append(errs, errors.New("provider.disk.dir is required"))
		}
	case "bigcache", "ristretto":
	case "redis":
		if cfg.Provider.Redis.Addr == "" {
			errs = append(errs, errors.New("provider.redis.addr is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown provider.kind %q", cfg.Provider.Kind))
	}
	switch cfg.GenStore.Kind {
	case "local":
	case "redis":
		if cfg.GenStore.Redis.Addr == "" {
			errs = append(errs, errors.New("genstore.redis.addr is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown genstore.kind %q", cfg.GenStore.Kind))
	}
	if cfg.DefaultTTL < 0 || cfg.PersistDelay < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func redisClient(rc RedisConfig) *goredis.Client {
	return goredis.NewClient(&goredis.Options{Addr: rc.Addr, Password: rc.Password, DB: rc.DB})
}

func BuildProvider(ctx context.Context, pc ProviderConfig) (pr.Provider, error) {
	switch pc.Kind {
	case "disk":
		return disk.New(disk.Config{Dir: pc.Disk.Dir})
	case "bigcache":
		b := pc.BigCache
		return bigcache.New(ctx, bigcache.Config{
			LifeWindow:         b.LifeWindow,
			CleanWindow:        b.CleanWindow,
			Shards:             b.Shards,
			MaxEntriesInWindow: b.MaxEntriesInWindow,
			MaxEntrySize:       b.MaxEntrySize,
			HardMaxCacheSizeMB: b.HardMaxCacheSizeMB,
		})
	case "ristretto":
		r := pc.Ristretto
		return ristretto.New(ristretto.Config{
			NumCounters: r.NumCounters,
			MaxCost:     r.MaxCost,
			BufferItems: r.BufferItems,
			Metrics:     r.Metrics,
			Synchronous: r.Synchronous,
		})
	case "redis":
		return rp.New(rp.Config{
			Client:      redisClient(pc.Redis),
			Prefix:      pc.Redis.Prefix,
			CloseClient: true,
		})
	default:
		return nil, fmt.Errorf("config: unknown provider.kind %q", pc.Kind)
	}
}

func BuildGenStore(namespace string, gc GenStoreConfig) (gen.GenStore, error) {
	switch gc.Kind {
	case "local":
		return gen.NewLocalGenStore(gc.CleanupInterval, gc.Retention), nil
	case "redis":
		return gen.NewRedisGenStoreWithTTL(redisClient(gc.Redis), namespace, gc.Redis.TTL), nil
	default:
		return nil, fmt.Errorf("config: unknown genstore.kind %q", gc.Kind)
	}
}

func BuildLogger(lc LogConfig, out io.Writer) (entrycache.Logger, io.Closer, error) {
	l, closer, err := lr.NewRotating(lc.Level, lr.FileOptions{
		Path:       lc.File,
		MaxSizeMB:  lc.MaxSizeMB,
		MaxBackups: lc.MaxBackups,
		MaxAgeDays: lc.MaxAgeDays,
		Compress:   lc.Compress,
	}, out)
	if err != nil {
		return nil, nil, fmt.Errorf("config: logger: %w", err)
	}
	return l, closer, nil
}

// Options builds entrycache options for codec cd. The returned closer releases
// the log file; provider and genstore are closed by Access.Close.
func Options[V any](ctx context.Context, cfg *Config, cd c.Codec[V]) (entrycache.Options[V], io.Closer, error) {
	logger, logCloser, err := BuildLogger(cfg.Log, nil)
	if err != nil {
		return entrycache.Options[V]{}, nil, err
	}
	p, err := BuildProvider(ctx, cfg.Provider)
	if err != nil {
		_ = logCloser.Close()
		return entrycache.Options[V]{}, nil, err
	}
	gs, err := BuildGenStore(cfg.Namespace, cfg.GenStore)
	if err != nil {
		_ = p.Close(ctx)
		_ = logCloser.Close()
		return entrycache.Options[V]{}, nil, err
	}
	return entrycache.Options[V]{
		Namespace:       cfg.Namespace,
		Provider:        p,
		Codec:           cd,
		Logger:          logger,
		GenStore:        gs,
		DefaultTTL:      cfg.DefaultTTL,
		DispatchLanes:   cfg.DispatchLanes,
		PersistAttempts: cfg.PersistAttempts,
		PersistDelay:    cfg.PersistDelay,
	}, logCloser, nil
}
