// Package cooldown implements atomic claim/release against the persistent
// KV store, plus an in-process time-bounded dedup set for (tx_hash,
// log_index) pairs.
package cooldown

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"swapwatch/internal/util"
	"swapwatch/pkg/cache"
)

// dedupTTL bounds how long a (tx_hash, log_index) pair is remembered.
const dedupTTL = 10 * time.Minute

// Manager owns the cooldown claim/release against the persistent store and
// the local dedup set.
type Manager struct {
	persistent   *cache.PersistentStore
	cooldownSecs atomic.Int64 // nanoseconds, read/written via atomic ops
	jitterSecs   atomic.Int64
	seen         *dedupSet
}

// NewManager builds a cooldown manager. cooldown/jitter come from
// MonitorConfig.CooldownSeconds / JitterSeconds.
func NewManager(persistent *cache.PersistentStore, cooldown, jitter time.Duration) *Manager {
	m := &Manager{
		persistent: persistent,
		seen:       newDedupSet(),
	}
	m.cooldownSecs.Store(int64(cooldown))
	m.jitterSecs.Store(int64(jitter))
	return m
}

// Refresh updates the cooldown/jitter durations in place, so a live config
// reload affects claims made after this call without rebuilding the
// manager (and losing the in-process dedup set).
func (m *Manager) Refresh(cooldown, jitter time.Duration) {
	m.cooldownSecs.Store(int64(cooldown))
	m.jitterSecs.Store(int64(jitter))
}

// Claim attempts the atomic cooldown claim for a token, returning true iff
// this call created the key.
func (m *Manager) Claim(ctx context.Context, token string) (bool, error) {
	ttl := util.JitteredTTL(time.Duration(m.cooldownSecs.Load()), time.Duration(m.jitterSecs.Load()))
	ok, err := m.persistent.ClaimCooldown(ctx, token, ttl)
	if err != nil {
		return false, fmt.Errorf("cooldown: claim %s: %w", token, err)
	}
	return ok, nil
}

// Release unconditionally clears a token's cooldown key. Must be called on
// every post-claim failure path; idempotent.
func (m *Manager) Release(ctx context.Context, token string) error {
	if err := m.persistent.ReleaseCooldown(ctx, token); err != nil {
		return fmt.Errorf("cooldown: release %s: %w", token, err)
	}
	return nil
}

// SeenKey builds the dedup key for a (tx_hash, log_index) pair.
func SeenKey(txHash string, logIndex uint) string {
	return txHash + ":" + strconv.FormatUint(uint64(logIndex), 10)
}

// MarkIfUnseen records the key if it hasn't been seen within the dedup
// window, returning true iff this call was the first to see it. Callers
// gate admission on this before evaluating thresholds.
func (m *Manager) MarkIfUnseen(key string) bool {
	return m.seen.markIfUnseen(key, dedupTTL)
}

// SweepDedup drops expired dedup entries; call on a ticker.
func (m *Manager) SweepDedup() { m.seen.sweep() }
