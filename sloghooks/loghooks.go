// Package sloghooks reports shelfcache hook events through log/slog.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/shelfcache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery   uint64
	StaleSkipEvery  uint64
	QuotaEvictEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix; keys carry user ids.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr   atomic.Uint64
	staleSkipCtr  atomic.Uint64
	quotaEvictCtr atomic.Uint64
}

var _ shelfcache.Hooks = (*Hooks)(nil)

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

func (h *Hooks) SelfHeal(key, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("shelfcache.self_heal",
		"key", h.redact(key),
		"reason", reason)
}

func (h *Hooks) ProviderSetRejected(key string) {
	if h.l == nil {
		return
	}
	h.l.Warn("shelfcache.provider_set_rejected",
		"key", h.redact(key))
}

func (h *Hooks) BackendError(op, key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("shelfcache.backend_error",
		"op", op,
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) QuotaEvicted(ns string, live, evicted int) {
	if h.l == nil || !sample(h.opts.QuotaEvictEvery, &h.quotaEvictCtr) {
		return
	}
	h.l.Info("shelfcache.quota_evicted",
		"ns", ns,
		"live", live,
		"evicted", evicted)
}

func (h *Hooks) QuotaEnforceError(ns string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("shelfcache.quota_enforce_error",
		"ns", ns,
		"err", err)
}

func (h *Hooks) StaleWriteSkipped(key string) {
	if h.l == nil || !sample(h.opts.StaleSkipEvery, &h.staleSkipCtr) {
		return
	}
	h.l.Debug("shelfcache.stale_write_skipped",
		"key", h.redact(key))
}

func (h *Hooks) GenSnapshotError(count int, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("shelfcache.gen_snapshot_error",
		"count", count,
		"err", err)
}

func (h *Hooks) GenBumpError(scope string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("shelfcache.gen_bump_error",
		"scope", scope,
		"err", err)
}
