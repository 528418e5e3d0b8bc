package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/entrycache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery   uint64
	SupersedeEvery  uint64
	PersistRejEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr  atomic.Uint64
	supersedeCtr atomic.Uint64
	rejectCtr    atomic.Uint64
}

var _ entrycache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("entrycache.self_heal",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) PersistRejected(storageKey string) {
	if h.l == nil || !sample(h.opts.PersistRejEvery, &h.rejectCtr) {
		return
	}
	h.l.Warn("entrycache.persist_rejected",
		"key", h.redact(storageKey))
}

func (h *Hooks) PersistError(storageKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("entrycache.persist_error",
		"key", h.redact(storageKey),
		"err", err)
}

func (h *Hooks) GenAllocError(storageKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("entrycache.gen_alloc_error",
		"key", h.redact(storageKey),
		"err", err)
}

func (h *Hooks) WriterFailed(key string, gen uint64, waiters int, cause error) {
	if h.l == nil {
		return
	}
	h.l.Warn("entrycache.writer_failed",
		"key", h.redact(key),
		"gen", gen,
		"waiters", waiters,
		"cause", cause)
}

func (h *Hooks) Superseded(key string, gen uint64, readers int) {
	if h.l == nil || !sample(h.opts.SupersedeEvery, &h.supersedeCtr) {
		return
	}
	h.l.Debug("entrycache.superseded",
		"key", h.redact(key),
		"gen", gen,
		"readers", readers)
}
