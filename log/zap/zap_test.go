package zap

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/unkn0wn-root/entrycache"
)

func TestZapLogger_Fields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := ZapLogger{L: zap.New(core)}

	l.Debug("d", nil)
	l.Info("i", entrycache.Fields{"key": "a"})
	l.Warn("w", entrycache.Fields{"gen": uint64(2)})
	l.Error("e", entrycache.Fields{"err": "boom"})

	if logs.Len() != 4 {
		t.Fatalf("entries=%d", logs.Len())
	}
	got := logs.FilterMessage("i").All()[0].ContextMap()
	if got["key"] != "a" {
		t.Fatalf("fields=%v", got)
	}
	if e := logs.FilterMessage("e").All()[0]; e.Level != zapcore.ErrorLevel {
		t.Fatalf("level=%v", e.Level)
	}
}

func TestZapLogger_SortedFieldsAndErrors(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := ZapLogger{L: zap.New(core)}

	l.Warn("writer abandoned entry", entrycache.Fields{"waiters": 2, "key": "a", "cause": errors.New("502"), "gen": uint64(4)})

	fs := logs.All()[0].Context
	var keys []string
	for _, f := range fs {
		keys = append(keys, f.Key)
	}
	want := []string{"cause", "gen", "key", "waiters"}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("keys=%v", keys)
		}
	}
	if fs[0].Type != zapcore.ErrorType {
		t.Fatalf("cause type=%v", fs[0].Type)
	}
}
