package slog

import (
	"bytes"
	stdslog "log/slog"
	"strings"
	"testing"

	"github.com/unkn0wn-root/entrycache"
)

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	l := Logger{L: stdslog.New(stdslog.NewTextHandler(&buf, &stdslog.HandlerOptions{Level: stdslog.LevelInfo}))}

	l.Debug("hidden", nil)
	l.Warn("persist failed", entrycache.Fields{"key": "a"})

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug should be filtered: %s", out)
	}
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "key=a") {
		t.Fatalf("unexpected: %s", out)
	}
}

func TestLogger_SortedAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := Logger{L: stdslog.New(stdslog.NewTextHandler(&buf, nil))}

	l.Info("entry readable", entrycache.Fields{"size": 3, "gen": uint64(1), "key": "a"})

	out := buf.String()
	if !strings.Contains(out, "gen=1 key=a size=3") {
		t.Fatalf("unexpected: %s", out)
	}
}
