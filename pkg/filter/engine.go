// Package filter implements the two-layer Filter Engine: a
// synchronous, RPC-free Layer-1 USD-threshold/cumulative-window admission
// check, and an asynchronous, HTTP-bound Layer-2 rule evaluation with
// fallback-window widening.
package filter

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"swapwatch/pkg/cache"
	"swapwatch/pkg/cooldown"
	swtypes "swapwatch/pkg/types"
)

// Metrics is the minimal interface Engine needs from the observability
// layer, avoiding a direct dependency on the concrete Registry type.
type Metrics interface {
	ObserveSecondLayerCheck(origin string)
	ObserveSecondLayerPass(origin string)
	ObserveFallback(transition string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveSecondLayerCheck(string) {}
func (noopMetrics) ObserveSecondLayerPass(string)  {}
func (noopMetrics) ObserveFallback(string)         {}

// Engine evaluates both filter layers for a decoded, metadata-resolved
// swap event. The threshold/rule config is held behind an atomic pointer
// so a SIGHUP-triggered refresh swaps it without a lock, while
// each call to Layer1/Layer2 reads it once and uses that single snapshot
// for the whole event — never a torn read across the two layers.
type Engine struct {
	cfg        atomic.Pointer[swtypes.MonitorConfig]
	cumulative *cumulativeWindow
	stats      *StatFetcher
	cacheMgr   *cache.Manager
	dedup      *cooldown.Manager
	metrics    Metrics
}

// New builds the filter engine from the initial MonitorConfig snapshot.
func New(cfg swtypes.MonitorConfig, stats *StatFetcher, cacheMgr *cache.Manager, dedup *cooldown.Manager) *Engine {
	e := &Engine{
		cumulative: newCumulativeWindow(cfg.CumulativeWindow),
		stats:      stats,
		cacheMgr:   cacheMgr,
		dedup:      dedup,
		metrics:    noopMetrics{},
	}
	e.cfg.Store(&cfg)
	return e
}

// SetMetrics attaches the observability registry; called once at startup.
func (e *Engine) SetMetrics(m Metrics) { e.metrics = m }

// Refresh swaps in a new MonitorConfig snapshot. In-flight events keep
// using the snapshot they already loaded; only events starting after this
// call see the new thresholds.
func (e *Engine) Refresh(cfg swtypes.MonitorConfig) {
	e.cfg.Store(&cfg)
}

// Layer1Result records why an event was admitted, so the metrics layer can
// count first_layer_pass{internal|external} distinctly.
type Layer1Result struct {
	Admitted      bool
	ViaCumulative bool
}

// Layer1 applies the synchronous threshold/cumulative check plus the
// dedup-before-admission rule. The cumulative window is keyed by the pair
// address, so one token's small swaps through different pairs accumulate
// separately.
func (e *Engine) Layer1(evt swtypes.SwapEvent, usdValue float64) Layer1Result {
	cfg := e.cfg.Load()

	if !e.dedup.MarkIfUnseen(cooldown.SeenKey(evt.TxHash.Hex(), evt.LogIndex)) {
		return Layer1Result{Admitted: false}
	}

	threshold := cfg.MinUSDExternal
	if evt.Origin == swtypes.OriginInternal {
		threshold = cfg.MinUSDInternal
	}
	if usdValue >= threshold {
		return Layer1Result{Admitted: true}
	}

	sum := e.cumulative.Add(evt.Pair.Hex(), usdValue)
	if sum >= cfg.CumulativeMinUSD {
		e.cumulative.Reset(evt.Pair.Hex())
		return Layer1Result{Admitted: true, ViaCumulative: true}
	}
	return Layer1Result{Admitted: false}
}

// Layer2Result carries the outcome of rule evaluation plus which rules
// fired, for alert payload construction.
type Layer2Result struct {
	Triggered bool
	Rules     []swtypes.Rule
}

// Layer2 fetches PriceStat with fallback-window widening and evaluates the
// configured rules, gating external-origin events on a positive launchpad
// classification first.
func (e *Engine) Layer2(ctx context.Context, evt swtypes.SwapEvent, meta *swtypes.PairMeta) (Layer2Result, error) {
	cfg := e.cfg.Load()
	target := meta.TargetToken()
	origin := evt.Origin.String()
	e.metrics.ObserveSecondLayerCheck(origin)

	if evt.Origin == swtypes.OriginExternal && meta.IsFourmeme != swtypes.LaunchpadYes {
		return Layer2Result{Triggered: false}, nil
	}

	statByWindow := make(map[swtypes.Window]*swtypes.PriceStat)
	triggered := make([]swtypes.Rule, 0, len(cfg.Layer2Rules))

	for _, rule := range cfg.Layer2Rules {
		stat, reason, err := e.fetchStatWithFallback(ctx, target, rule.Window)
		if err != nil {
			return Layer2Result{}, fmt.Errorf("filter: layer2 stat fetch: %w", err)
		}
		if reason == cache.ReasonNoData {
			continue
		}
		statByWindow[rule.Window] = stat

		if ruleFires(rule, stat) {
			triggered = append(triggered, rule)
		}
	}

	ok := false
	switch cfg.Layer2Trigger {
	case swtypes.TriggerAll:
		ok = len(triggered) == len(cfg.Layer2Rules) && len(cfg.Layer2Rules) > 0
	default:
		ok = len(triggered) > 0
	}
	if ok {
		e.metrics.ObserveSecondLayerPass(origin)
	}

	return Layer2Result{Triggered: ok, Rules: triggered}, nil
}

// ruleFires evaluates one rule against its window's stat. Zero-valued
// percentages only admit if explicitly >= threshold; rise and fall rules
// for the same window combine disjunctively by each being evaluated
// independently.
func ruleFires(rule swtypes.Rule, stat *swtypes.PriceStat) bool {
	switch rule.Kind {
	case swtypes.RulePriceRise:
		return stat.PriceChangePct >= rule.Threshold
	case swtypes.RulePriceFall:
		return -stat.PriceChangePct >= rule.Threshold
	case swtypes.RuleVolume:
		return stat.VolumeUSD >= rule.Threshold
	case swtypes.RuleTop10:
		return stat.Top10Pct <= rule.Threshold
	default:
		return false
	}
}

// fetchStatWithFallback walks the {1m->5m, 5m->1h} fallback table until a
// complete or partial stat is found, recording a no_data_pair negative
// cache entry and returning ReasonNoData if every window is exhausted.
func (e *Engine) fetchStatWithFallback(ctx context.Context, token common.Address, window swtypes.Window) (*swtypes.PriceStat, cache.Reason, error) {
	pairKey := token.Hex() + ":" + string(window)

	if reason, err := e.cacheMgr.NoDataPairStatus(ctx, pairKey); err == nil && reason == cache.ReasonNoData {
		return nil, cache.ReasonNoData, nil
	}

	current := window
	for {
		stat, err := e.stats.Fetch(ctx, token, current)
		if err == nil && stat.Completeness != swtypes.CompletenessEmpty {
			return stat, cache.ReasonNone, nil
		}

		next, hasFallback := swtypes.FallbackWindow(current)
		if !hasFallback {
			if markErr := e.cacheMgr.MarkNoDataPair(ctx, pairKey, 10*time.Minute); markErr != nil {
				return nil, cache.ReasonNone, fmt.Errorf("mark no_data_pair: %w", markErr)
			}
			return nil, cache.ReasonNoData, nil
		}
		e.metrics.ObserveFallback(string(current) + "_" + string(next))
		current = next
	}
}
