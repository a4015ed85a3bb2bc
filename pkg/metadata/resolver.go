// Package metadata implements the Metadata Resolver: given a pair
// address, determines token0/token1, their decimals, which side is the
// quote asset, and the fourmeme launchpad classification, trying cache then
// RPC then an external HTTP classifier, with at most one concurrent
// resolution per pair.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/go-retryablehttp"

	"swapwatch/pkg/cache"
	"swapwatch/pkg/rpcclient"
	swtypes "swapwatch/pkg/types"
)

// ResolveError reports a failed launchpad classification over the
// external HTTP path for a given pair; Resolve returns it with RPC nil.
// RPC failures (token0/token1/decimals) are returned as plain wrapped
// errors, not as a ResolveError.
type ResolveError struct {
	Pair common.Address
	RPC  error
	HTTP error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("metadata: resolve %s: rpc=%v http=%v", e.Pair.Hex(), e.RPC, e.HTTP)
}

const pairABIJSON = `[
  {"constant":true,"inputs":[],"name":"token0","outputs":[{"name":"","type":"address"}],"type":"function"},
  {"constant":true,"inputs":[],"name":"token1","outputs":[{"name":"","type":"address"}],"type":"function"}
]`

const erc20DecimalsABIJSON = `[
  {"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"}
]`

// QuoteSet is the configured set of addresses treated as quote assets
// (WBNB/USDT/USDC), keyed by address.
type QuoteSet map[common.Address]bool

// Resolver performs pair metadata resolution against the cache, the chain,
// and an external launchpad classifier.
type Resolver struct {
	cache         *cache.Manager
	rpc           *rpcclient.Client
	quotes        QuoteSet
	http          *retryablehttp.Client
	classifierURL string // e.g. https://api.example/launchpad/%s
}

// New builds a Resolver. classifierURLTemplate must contain exactly one
// "%s" for the token address.
func New(mgr *cache.Manager, rpc *rpcclient.Client, quotes QuoteSet, classifierURLTemplate string) *Resolver {
	hc := retryablehttp.NewClient()
	hc.RetryMax = 3
	hc.RetryWaitMin = 100 * time.Millisecond
	hc.RetryWaitMax = 2 * time.Second
	hc.Logger = nil
	return &Resolver{
		cache:         mgr,
		rpc:           rpc,
		quotes:        quotes,
		http:          hc,
		classifierURL: classifierURLTemplate,
	}
}

var pairABI, erc20DecimalsABI abi.ABI

func init() {
	var err error
	pairABI, err = abi.JSON(strings.NewReader(pairABIJSON))
	if err != nil {
		panic(fmt.Sprintf("metadata: parse pair abi: %v", err))
	}
	erc20DecimalsABI, err = abi.JSON(strings.NewReader(erc20DecimalsABIJSON))
	if err != nil {
		panic(fmt.Sprintf("metadata: parse erc20 decimals abi: %v", err))
	}
}

// Resolve returns the PairMeta for pair, from cache if fresh, otherwise
// under the cache's per-pair single-flight guard.
func (r *Resolver) Resolve(ctx context.Context, pair common.Address) (*swtypes.PairMeta, error) {
	key := strings.ToLower(pair.Hex())
	v, err := r.cache.PairMeta.GetOrLoad(ctx, key, 0, func(ctx context.Context) (any, error) {
		return r.resolveFresh(ctx, pair)
	})
	if err != nil {
		return nil, err
	}
	meta := v.(*swtypes.PairMeta)
	return meta, nil
}

func (r *Resolver) resolveFresh(ctx context.Context, pair common.Address) (*swtypes.PairMeta, error) {
	token0, token1, rpcErr := r.fetchTokens(ctx, pair)
	if rpcErr != nil {
		return nil, fmt.Errorf("metadata: fetch tokens for %s: %w", pair.Hex(), rpcErr)
	}

	dec0, err := r.fetchDecimals(ctx, token0)
	if err != nil {
		return nil, fmt.Errorf("metadata: decimals(%s): %w", token0.Hex(), err)
	}
	dec1, err := r.fetchDecimals(ctx, token1)
	if err != nil {
		return nil, fmt.Errorf("metadata: decimals(%s): %w", token1.Hex(), err)
	}

	meta := &swtypes.PairMeta{
		Pair:           pair,
		Token0:         token0,
		Token1:         token1,
		Decimals0:      dec0,
		Decimals1:      dec1,
		QuoteIsToken0:  r.quotes[token0],
		LastResolvedAt: time.Now(),
	}

	target := meta.TargetToken()
	classification, httpErr := r.classifyLaunchpad(ctx, target)
	if httpErr != nil {
		return nil, &ResolveError{Pair: pair, RPC: nil, HTTP: httpErr}
	}
	meta.IsFourmeme = classification
	return meta, nil
}

func (r *Resolver) fetchTokens(ctx context.Context, pair common.Address) (common.Address, common.Address, error) {
	data0, err := pairABI.Pack("token0")
	if err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("pack token0: %w", err)
	}
	out0, err := r.rpc.Call(ctx, pair, data0, nil)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	vals0, err := pairABI.Unpack("token0", out0)
	if err != nil || len(vals0) != 1 {
		return common.Address{}, common.Address{}, fmt.Errorf("unpack token0: %w", err)
	}
	token0 := vals0[0].(common.Address)

	data1, err := pairABI.Pack("token1")
	if err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("pack token1: %w", err)
	}
	out1, err := r.rpc.Call(ctx, pair, data1, nil)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	vals1, err := pairABI.Unpack("token1", out1)
	if err != nil || len(vals1) != 1 {
		return common.Address{}, common.Address{}, fmt.Errorf("unpack token1: %w", err)
	}
	token1 := vals1[0].(common.Address)

	return token0, token1, nil
}

func (r *Resolver) fetchDecimals(ctx context.Context, token common.Address) (uint8, error) {
	data, err := erc20DecimalsABI.Pack("decimals")
	if err != nil {
		return 0, fmt.Errorf("pack decimals: %w", err)
	}
	out, err := r.rpc.Call(ctx, token, data, nil)
	if err != nil {
		return 0, err
	}
	vals, err := erc20DecimalsABI.Unpack("decimals", out)
	if err != nil || len(vals) != 1 {
		return 0, fmt.Errorf("unpack decimals: %w", err)
	}
	d := vals[0].(uint8)
	if d > 36 {
		return 0, fmt.Errorf("decimals %d out of range [0,36]", d)
	}
	return d, nil
}

type launchpadResponse struct {
	IsFourmeme bool `json:"is_fourmeme"`
}

// classifyLaunchpad checks the persistent whitelist then blacklist, falling
// back to the external HTTP classifier only on a miss.
func (r *Resolver) classifyLaunchpad(ctx context.Context, token common.Address) (swtypes.LaunchpadStatus, error) {
	addr := strings.ToLower(token.Hex())

	isYes, known, err := r.cache.Persistent().ClassifyFourmeme(ctx, addr)
	if err == nil && known {
		if isYes {
			return swtypes.LaunchpadYes, nil
		}
		return swtypes.LaunchpadNo, nil
	}

	url := fmt.Sprintf(r.classifierURL, addr)
	req, err := retryablehttp.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return swtypes.LaunchpadUnknown, fmt.Errorf("build launchpad request: %w", err)
	}
	req = req.WithContext(ctx)

	resp, err := r.http.Do(req)
	if err != nil {
		return swtypes.LaunchpadUnknown, fmt.Errorf("launchpad classifier request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return swtypes.LaunchpadUnknown, fmt.Errorf("launchpad classifier status %d", resp.StatusCode)
	}

	var body launchpadResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return swtypes.LaunchpadUnknown, fmt.Errorf("decode launchpad response: %w", err)
	}

	if err := r.cache.Persistent().SetFourmemeClassification(ctx, addr, body.IsFourmeme); err != nil {
		return swtypes.LaunchpadUnknown, fmt.Errorf("persist launchpad classification: %w", err)
	}

	if body.IsFourmeme {
		return swtypes.LaunchpadYes, nil
	}
	return swtypes.LaunchpadNo, nil
}
