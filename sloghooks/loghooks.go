package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/flowstore/hooks"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	DecodeFailedEvery    uint64
	ErrorSuppressedEvery uint64
	// Optional store id redactor. Defaults to identity.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	decodeCtr   atomic.Uint64
	suppressCtr atomic.Uint64
}

var _ hooks.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

// HashRedact returns a SHA-256 prefix of s. Handy when store ids carry user identifiers.
func HashRedact(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}

func (h *Hooks) redact(id string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(id)
	}
	return id
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) FetchFailed(storeID string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("flowstore.fetch_failed",
		"store", h.redact(storeID),
		"err", err)
}

func (h *Hooks) ErrorSuppressed(storeID string, err error) {
	if h.l == nil || !sample(h.opts.ErrorSuppressedEvery, &h.suppressCtr) {
		return
	}
	h.l.Debug("flowstore.error_suppressed",
		"store", h.redact(storeID),
		"err", err)
}

func (h *Hooks) FetchDiscarded(storeID string) {
	if h.l == nil {
		return
	}
	h.l.Info("flowstore.fetch_discarded",
		"store", h.redact(storeID))
}

func (h *Hooks) DecodeFailed(storeID, reason string) {
	if h.l == nil || !sample(h.opts.DecodeFailedEvery, &h.decodeCtr) {
		return
	}
	h.l.Warn("flowstore.decode_failed",
		"store", h.redact(storeID),
		"reason", reason)
}

func (h *Hooks) WriteFailed(storeID string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("flowstore.write_failed",
		"store", h.redact(storeID),
		"err", err)
}

func (h *Hooks) StoreMarkedStale(storeID string) {
	if h.l == nil {
		return
	}
	h.l.Debug("flowstore.store_marked_stale",
		"store", h.redact(storeID))
}

func (h *Hooks) Wiped() {
	if h.l == nil {
		return
	}
	h.l.Info("flowstore.wiped")
}
