// Package swapwatch wires every subsystem into the single
// data-flow this engine implements: a WS frame arrives, is routed by event
// type, its pair metadata is resolved, the swap log is decoded, Layer-1
// dedups it and applies the USD thresholds, Layer-2 evaluates the rules,
// and — if it survives and wins the cooldown claim — the alert is
// dispatched to the notifier. Dedup therefore runs after metadata
// resolution, not before it. Engine holds every subsystem client behind one type with
// a small set of public entry points.
package swapwatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"swapwatch/internal/db"
	"swapwatch/internal/util"
	"swapwatch/pkg/cache"
	"swapwatch/pkg/cooldown"
	"swapwatch/pkg/decoder"
	"swapwatch/pkg/dispatch"
	"swapwatch/pkg/filter"
	"swapwatch/pkg/metadata"
	"swapwatch/pkg/observability"
	"swapwatch/pkg/rpcclient"
	"swapwatch/pkg/subscriber"
	swtypes "swapwatch/pkg/types"
)

// Engine is the assembled swap-alert pipeline: one of each component,
// sharing the cache manager, cooldown manager, and metrics registry.
type Engine struct {
	decoder  *decoder.Decoder
	rpc      *rpcclient.Client
	cacheMgr *cache.Manager
	resolver *metadata.Resolver
	filterEn *filter.Engine
	cdMgr    *cooldown.Manager
	pool     *dispatch.Pool
	sub      *subscriber.Client
	metrics  *observability.Registry
	ledger   *db.AlertRepository

	spotPriceURL    string
	linkTemplateBsc string
	linkTemplateDex string
	stableQuotes    map[common.Address]bool
}

// Deps bundles every already-constructed component New requires; built by
// cmd/swapwatch/main.go's wiring step.
type Deps struct {
	Decoder           *decoder.Decoder
	RPC               *rpcclient.Client
	CacheMgr          *cache.Manager
	Resolver          *metadata.Resolver
	FilterEngine      *filter.Engine
	CooldownMgr       *cooldown.Manager
	Pool              *dispatch.Pool
	Subscriber        *subscriber.Client
	Metrics           *observability.Registry
	Ledger            *db.AlertRepository
	SpotPriceURL      string
	BscScanLinkTmpl   string
	DexScreenLinkTmpl string
	// StableQuotes names which configured quote addresses are stablecoins
	// (USDT/USDC), so usdValueOf knows 1:1 applies instead of the WBNB spot
	// price. WBNB itself is absent from this set.
	StableQuotes map[common.Address]bool
}

// New assembles the engine from its dependencies.
func New(d Deps) *Engine {
	return &Engine{
		decoder:         d.Decoder,
		rpc:             d.RPC,
		cacheMgr:        d.CacheMgr,
		resolver:        d.Resolver,
		filterEn:        d.FilterEngine,
		cdMgr:           d.CooldownMgr,
		pool:            d.Pool,
		sub:             d.Subscriber,
		metrics:         d.Metrics,
		ledger:          d.Ledger,
		spotPriceURL:    d.SpotPriceURL,
		linkTemplateBsc: d.BscScanLinkTmpl,
		linkTemplateDex: d.DexScreenLinkTmpl,
		stableQuotes:    d.StableQuotes,
	}
}

// AttachSubscriber wires the WS client after construction, since the
// subscriber needs Engine.HandleFrame as its callback and Engine needs the
// subscriber for Run — main.go breaks that cycle by building Engine first
// and attaching the subscriber once it exists.
func (e *Engine) AttachSubscriber(sub *subscriber.Client) {
	e.sub = sub
}

// Run starts the subscription manager and blocks until ctx is cancelled.
// Each pushed log is handled synchronously on the WS reader goroutine:
// metadata resolution (cache, RPC, launchpad HTTP), the WBNB spot price
// lookup, Layer-2 stat fetches and the Redis cooldown claim all run there.
// Only notifier delivery and its retry bookkeeping run inside the worker
// pool.
func (e *Engine) Run(ctx context.Context) {
	e.sub.Run(ctx)
}

// HandleFrame is the subscriber.Handler registered for every topic group.
// It decodes the log, classifies origin, and runs the pipeline through to
// dispatch submission.
func (e *Engine) HandleFrame(group string, raw json.RawMessage) {
	e.metrics.MessagesTotal.Inc()
	start := time.Now()
	defer func() {
		e.metrics.ProcessingSeconds.Observe(time.Since(start).Seconds())
	}()

	var lr decoder.LogResult
	if err := json.Unmarshal(raw, &lr); err != nil {
		log.Warn("engine: malformed log result", "group", group, "err", err)
		return
	}

	kind := decoder.EventKindOf(lr)
	switch kind {
	case decoder.KindPancakeSwap:
		e.handleSwapLog(lr, swtypes.OriginExternal)
	case decoder.KindFourmemeRouter, decoder.KindFourmemeProxy:
		e.handleSwapLog(lr, swtypes.OriginInternal)
	default:
		// Unrecognized event kinds (ERC20 Transfer logs included) are
		// dropped; no counter records them apart from MessagesTotal above.
	}
}

func (e *Engine) handleSwapLog(lr decoder.LogResult, origin swtypes.EventOrigin) {
	ctx := context.Background()
	pair := common.HexToAddress(lr.Address)

	meta, err := e.resolver.Resolve(ctx, pair)
	if err != nil {
		log.Warn("engine: resolve pair metadata failed", "pair", pair.Hex(), "err", err)
		return
	}

	evt, err := e.decoder.DecodeSwap(lr, meta.Token0, meta.Token1)
	if err != nil {
		log.Warn("engine: decode swap failed", "pair", pair.Hex(), "err", err)
		return
	}
	evt.Origin = origin

	usdValue := e.usdValueOf(ctx, evt, meta)

	l1 := e.filterEn.Layer1(evt, usdValue)
	if !l1.Admitted {
		return
	}
	e.metrics.FirstLayerPass.WithLabelValues(origin.String()).Inc()

	l2, err := e.filterEn.Layer2(ctx, evt, meta)
	if err != nil {
		log.Warn("engine: layer2 evaluation failed", "pair", pair.Hex(), "err", err)
		return
	}
	if !l2.Triggered {
		return
	}

	target := meta.TargetToken()
	tokenKey := target.Hex()

	claimed, err := e.cdMgr.Claim(ctx, tokenKey)
	if err != nil {
		log.Warn("engine: cooldown claim failed", "token", tokenKey, "err", err)
		return
	}
	if !claimed {
		return
	}

	payload := swtypes.AlertPayload{
		Token:          target,
		Pair:           pair,
		TxHash:         evt.TxHash,
		USDValue:       usdValue,
		Origin:         origin,
		TriggeredRules: l2.Rules,
		BscScanLink:    fmt.Sprintf(e.linkTemplateBsc, evt.TxHash.Hex()),
		DexScreenLink:  fmt.Sprintf(e.linkTemplateDex, pair.Hex()),
	}

	e.pool.Submit(ctx, dispatch.Job{Token: tokenKey, Payload: payload})
}

// usdValueOf normalizes the quote-side amount to USD using the cached WBNB
// spot price (5-min TTL) or 1:1 for a stablecoin quote.
func (e *Engine) usdValueOf(ctx context.Context, evt swtypes.SwapEvent, meta *swtypes.PairMeta) float64 {
	quoteDecimals := meta.Decimals1
	quoteAmount := evt.Amount1In
	if meta.QuoteIsToken0 {
		quoteDecimals = meta.Decimals0
		quoteAmount = evt.Amount0In
	}
	if quoteAmount == nil || quoteAmount.Sign() == 0 {
		if meta.QuoteIsToken0 {
			quoteAmount = evt.Amount0Out
		} else {
			quoteAmount = evt.Amount1Out
		}
	}

	normalized := util.NormalizeAmount(quoteAmount, quoteDecimals)

	if e.stableQuotes[meta.QuoteToken()] {
		return util.USDValue(normalized, true, 0)
	}

	price := e.wbnbSpotPrice(ctx)
	return util.USDValue(normalized, false, price)
}

func (e *Engine) wbnbSpotPrice(ctx context.Context) float64 {
	v, err := e.cacheMgr.WBNBPrice.GetOrLoad(ctx, "wbnb_usd", 5*time.Minute, func(ctx context.Context) (any, error) {
		return fetchSpotPrice(ctx, e.spotPriceURL)
	})
	if err != nil {
		log.Warn("engine: wbnb spot price unavailable, using fallback", "err", err)
		// Fixed fallback on any load error; MonitorConfig's
		// WBNBFallbackAllow and WBNBFallbackPrice are not consulted.
		return 600
	}
	return v.(float64)
}
