package cache

import (
	"context"
	"fmt"
	"time"
)

// Reason is the tri-state negative-cache marker: a lookup either produced a
// value, produced a confirmed negative (no point retrying soon), or is
// simply unknown and should be attempted fresh.
type Reason int

const (
	// ReasonNone means no negative marker applies; the caller got nothing
	// because it hasn't tried yet, not because a prior attempt failed.
	ReasonNone Reason = iota
	// ReasonNoData means a prior attempt, including full fallback-window
	// widening, found nothing, and the negative result is cached.
	ReasonNoData
)

// GaugeVec is the minimal interface Manager needs from the observability
// layer to report warm-tier entry counts by kind.
type GaugeVec interface {
	SetCacheSize(kind string, n float64)
}

type noopGaugeVec struct{}

func (noopGaugeVec) SetCacheSize(string, float64) {}

// Manager composes the per-kind in-process namespaces with the Redis
// persistent tier, giving callers one entry point instead of wiring each
// namespace by hand.
type Manager struct {
	Receipt    *Namespace
	PairMeta   *Namespace
	WBNBPrice  *Namespace
	NoDataPair *Namespace

	persistent *PersistentStore
	cacheSize  GaugeVec
}

// NewManager builds every namespace with the given hot-tier sizes and
// attaches the persistent store. hotSizes of zero fall back to 1024.
func NewManager(persistent *PersistentStore, hotSizes map[Kind]int) (*Manager, error) {
	size := func(k Kind) int {
		if n, ok := hotSizes[k]; ok && n > 0 {
			return n
		}
		return 1024
	}

	receipt, err := NewNamespace(KindReceipt, size(KindReceipt))
	if err != nil {
		return nil, err
	}
	pairMeta, err := NewNamespace(KindPairMeta, size(KindPairMeta))
	if err != nil {
		return nil, err
	}
	wbnbPrice, err := NewNamespace(KindWBNBPrice, size(KindWBNBPrice))
	if err != nil {
		return nil, err
	}
	noDataPair, err := NewNamespace(KindNoDataPair, size(KindNoDataPair))
	if err != nil {
		return nil, err
	}

	return &Manager{
		Receipt:    receipt,
		PairMeta:   pairMeta,
		WBNBPrice:  wbnbPrice,
		NoDataPair: noDataPair,
		persistent: persistent,
		cacheSize:  noopGaugeVec{},
	}, nil
}

// Persistent exposes the Redis tier directly for callers (fourmeme
// classification, cooldown, retry queue) that need it beyond the generic
// namespace API.
func (m *Manager) Persistent() *PersistentStore { return m.persistent }

// SetMetrics attaches the observability registry; called once at startup.
func (m *Manager) SetMetrics(g GaugeVec) { m.cacheSize = g }

// SweepAll runs Sweep on every in-process namespace and reports the
// resulting warm-tier size per kind; call from a ticker owned by the root
// engine.
func (m *Manager) SweepAll() {
	m.Receipt.Sweep()
	m.PairMeta.Sweep()
	m.WBNBPrice.Sweep()
	m.NoDataPair.Sweep()

	m.cacheSize.SetCacheSize(string(KindReceipt), float64(m.Receipt.Size()))
	m.cacheSize.SetCacheSize(string(KindPairMeta), float64(m.PairMeta.Size()))
	m.cacheSize.SetCacheSize(string(KindWBNBPrice), float64(m.WBNBPrice.Size()))
	m.cacheSize.SetCacheSize(string(KindNoDataPair), float64(m.NoDataPair.Size()))
}

// NoDataPairStatus checks the in-process negative-cache namespace first,
// falling back to the persistent mirror so a restart doesn't immediately
// re-attempt pairs already known to be dataless (fallback
// exhaustion).
func (m *Manager) NoDataPairStatus(ctx context.Context, pair string) (Reason, error) {
	if _, ok := m.NoDataPair.Get(pair); ok {
		return ReasonNoData, nil
	}
	isNoData, err := m.persistent.IsNoDataPair(ctx, pair)
	if err != nil {
		return ReasonNone, fmt.Errorf("cache: no_data_pair status: %w", err)
	}
	if isNoData {
		m.NoDataPair.Set(pair, struct{}{}, 0)
		return ReasonNoData, nil
	}
	return ReasonNone, nil
}

// MarkNoDataPair records the negative marker in both tiers.
func (m *Manager) MarkNoDataPair(ctx context.Context, pair string, ttl time.Duration) error {
	m.NoDataPair.Set(pair, struct{}{}, ttl)
	return m.persistent.SetNoDataPair(ctx, pair, ttl)
}
