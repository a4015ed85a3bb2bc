// Package types holds the data model shared across the swap-alert engine:
// the wire-level event produced by the decoder, the metadata/price/receipt
// records the caches hold, and the monitor configuration snapshot every
// stage reads from.
package types

import (
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventOrigin distinguishes a swap routed through the Fourmeme launchpad
// router/proxy ("internal") from one hitting the Pancake V2 pair directly
// ("external").
type EventOrigin int

const (
	OriginUnknown EventOrigin = iota
	OriginInternal
	OriginExternal
)

func (o EventOrigin) String() string {
	switch o {
	case OriginInternal:
		return "internal"
	case OriginExternal:
		return "external"
	default:
		return "unknown"
	}
}

// SwapEvent is the decoded, immutable representation of a single DEX swap
// log. Exactly one side of (In, Out) is nonzero for each token; the side
// matching the configured quote set (WBNB/USDT/USDC) is the base, the other
// is the target token being evaluated for an alert.
type SwapEvent struct {
	TxHash      common.Hash
	LogIndex    uint
	Pair        common.Address
	Token0      common.Address
	Token1      common.Address
	Amount0In   *big.Int
	Amount0Out  *big.Int
	Amount1In   *big.Int
	Amount1Out  *big.Int
	BlockNumber uint64
	Timestamp   time.Time
	Origin      EventOrigin
}

// Key identifies the event for dedup purposes: a (tx_hash, log_index) pair
// is processed at most once within the dedup horizon.
func (e SwapEvent) Key() string {
	return e.TxHash.Hex() + ":" + strconv.FormatUint(uint64(e.LogIndex), 10)
}

// LaunchpadStatus is the tri-state classification of a pair as fourmeme
// (launchpad) or not; Unknown means neither the persistent whitelist nor
// blacklist has an entry yet.
type LaunchpadStatus int

const (
	LaunchpadUnknown LaunchpadStatus = iota
	LaunchpadYes
	LaunchpadNo
)

// PairMeta describes an AMM pair: its two tokens, their decimals, and
// whether the pair's target token was issued through the Fourmeme
// launchpad. Mutated only by the metadata resolver under a per-pair
// single-flight guard.
type PairMeta struct {
	Pair           common.Address
	Token0         common.Address
	Token1         common.Address
	Decimals0      uint8
	Decimals1      uint8
	QuoteIsToken0  bool
	IsFourmeme     LaunchpadStatus
	LastResolvedAt time.Time
}

// TargetToken returns the non-quote side of the pair — the token an alert
// would be about.
func (m PairMeta) TargetToken() common.Address {
	if m.QuoteIsToken0 {
		return m.Token1
	}
	return m.Token0
}

// QuoteToken returns the quote-asset side of the pair (WBNB/USDT/USDC).
func (m PairMeta) QuoteToken() common.Address {
	if m.QuoteIsToken0 {
		return m.Token0
	}
	return m.Token1
}

// ReceiptRecord is the subset of a transaction receipt the engine needs:
// enough to confirm success and to parse emitted logs for ancillary data
// (e.g. an ERC20 Transfer accompanying a swap).
type ReceiptRecord struct {
	TxHash  common.Hash
	Status  uint64
	GasUsed uint64
	Logs    []*RawLog
}

// RawLog is a minimal copy of go-ethereum's types.Log, decoupled from the
// full receipt so the cache can store it without pulling in RLP-encoding
// concerns.
type RawLog struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte
}

// Window is one of the configurable statistics windows Layer-2 evaluates
// a token's price/volume/holder-concentration over.
type Window string

const (
	Window1m Window = "1m"
	Window5m Window = "5m"
	Window1h Window = "1h"
)

// FallbackWindow returns the next wider window in the fallback
// table {1m->5m, 5m->1h}, and false once 1h itself is exhausted.
func FallbackWindow(w Window) (Window, bool) {
	switch w {
	case Window1m:
		return Window5m, true
	case Window5m:
		return Window1h, true
	default:
		return "", false
	}
}

// Completeness describes how much of a requested statistics window the
// external API could fill in.
type Completeness int

const (
	CompletenessEmpty Completeness = iota
	CompletenessPartial
	CompletenessComplete
)

// PriceStat is the statistics snapshot for a token over one window,
// fetched on demand by Layer-2 for every evaluation. Fetched stats are not
// cached; only a window with no data leaves a no_data_pair marker.
type PriceStat struct {
	Token          common.Address
	Window         Window
	PriceChangePct float64
	VolumeUSD      float64
	TxCount        int
	Top10Pct       float64
	UpdatedAt      time.Time
	Completeness   Completeness
}

// MonitorConfig is a frozen snapshot of thresholds and rule templates, read
// from the KV store at startup and on refresh. A single event sees one
// consistent snapshot end to end — no torn reads across Layer-1/Layer-2.
type MonitorConfig struct {
	MinUSDInternal     float64
	MinUSDExternal     float64
	CumulativeMinUSD   float64
	CumulativeWindow   time.Duration
	CooldownSeconds    int
	JitterSeconds      int
	DedupTTL           time.Duration
	Layer2Rules        []Rule
	Layer2Trigger      TriggerMode
	FallbackEnabled    bool
	WBNBFallbackPrice  float64
	WBNBFallbackAllow  bool
}

// TriggerMode is how enabled Layer-2 rules combine.
type TriggerMode string

const (
	TriggerAny TriggerMode = "any"
	TriggerAll TriggerMode = "all"
)

// RuleKind names one of the four Layer-2 rule shapes.
type RuleKind string

const (
	RulePriceRise  RuleKind = "rise"
	RulePriceFall  RuleKind = "fall"
	RuleVolume     RuleKind = "volume"
	RuleTop10      RuleKind = "top10"
)

// Rule is one Layer-2 admission rule, keyed to a time window.
type Rule struct {
	Kind      RuleKind
	Window    Window
	Threshold float64
}

// AlertPayload is what the engine builds and Dispatch hands to the notifier.
type AlertPayload struct {
	Token          common.Address
	Symbol         string
	Pair           common.Address
	TxHash         common.Hash
	USDValue       float64
	Origin         EventOrigin
	TriggeredRules []Rule
	BscScanLink    string
	DexScreenLink  string
}
