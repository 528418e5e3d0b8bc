// Package zap adapts a *zap.Logger to entrycache.Logger.
package zap

import (
	"maps"
	"slices"

	"github.com/unkn0wn-root/entrycache"
	"go.uber.org/zap"
)

var _ entrycache.Logger = ZapLogger{}

// ZapLogger writes ledger fields in key order. Error values become zap error
// fields so encoders render them as errors.
type ZapLogger struct{ L *zap.Logger }

func (z ZapLogger) Debug(msg string, f entrycache.Fields) { z.L.Debug(msg, zf(f)...) }
func (z ZapLogger) Info(msg string, f entrycache.Fields)  { z.L.Info(msg, zf(f)...) }
func (z ZapLogger) Warn(msg string, f entrycache.Fields)  { z.L.Warn(msg, zf(f)...) }
func (z ZapLogger) Error(msg string, f entrycache.Fields) { z.L.Error(msg, zf(f)...) }

func zf(f entrycache.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(f))
	for _, k := range slices.Sorted(maps.Keys(f)) {
		if err, ok := f[k].(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, f[k]))
	}
	return out
}
