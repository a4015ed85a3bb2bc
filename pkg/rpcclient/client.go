// Package rpcclient wraps JSON-RPC calls against the chain node with
// retries, a per-call timeout, 429 handling, and outbound rate limiting.
// A single *ethclient.Client is shared across every call a worker
// goroutine needs to make.
package rpcclient

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	swtypes "swapwatch/pkg/types"
)

// ErrNotFound means the transaction receipt does not exist yet (still
// pending); callers must never retry this.
var ErrNotFound = errors.New("rpcclient: receipt not found")

// ErrTooManyRequests surfaces a 429 separately from other transient errors
// so the metrics layer can count it distinctly.
var ErrTooManyRequests = errors.New("rpcclient: rate limited (429)")

// RateLimitObserver receives a notification each time a 429 is seen, so the
// observability layer can increment a counter without this package
// importing it directly.
type RateLimitObserver interface {
	ObserveRateLimit(retryAfter time.Duration)
}

type noopObserver struct{}

func (noopObserver) ObserveRateLimit(time.Duration) {}

// Client is one worker's RPC handle: an ethclient for typed calls, dialed
// over an *http.Client whose RoundTrips are themselves retried with
// exponential backoff (retryablehttp's StandardClient), sharing one limiter
// and one underlying *http.Transport connection pool (≥100 idle conns). Every
// ethclient call — GetReceipt, Call, BlockNumber — inherits the retry policy
// because it all goes out over that one transport.
type Client struct {
	eth      *ethclient.Client
	endpoint string
	limiter  *rate.Limiter
	timeout  time.Duration
	observer RateLimitObserver
}

// Config controls per-client tuning; zero values fall back to
// defaults.
type Config struct {
	Endpoint       string
	CallTimeout    time.Duration // default 3s
	MaxRetries     int           // default 3
	RetryWaitMin   time.Duration // default 100ms
	RetryWaitMax   time.Duration // default 2s
	RateLimitRPS   float64       // default 20
	RateLimitBurst int           // default 20
	Observer       RateLimitObserver
}

// New dials the endpoint once and builds the shared transport.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 3 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryWaitMin <= 0 {
		cfg.RetryWaitMin = 100 * time.Millisecond
	}
	if cfg.RetryWaitMax <= 0 {
		cfg.RetryWaitMax = 2 * time.Second
	}
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 20
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 20
	}
	observer := cfg.Observer
	if observer == nil {
		observer = noopObserver{}
	}

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.MaxRetries
	rc.RetryWaitMin = cfg.RetryWaitMin
	rc.RetryWaitMax = cfg.RetryWaitMax
	rc.HTTPClient = &http.Client{Transport: transport, Timeout: cfg.CallTimeout}
	rc.Logger = nil
	rc.CheckRetry = checkRetry(observer)

	// StandardClient wraps rc in an *http.Client whose RoundTrip retries
	// transparently, so dialing ethclient on top of it gives every typed
	// call (GetReceipt/Call/BlockNumber) the same backoff and Retry-After
	// handling without ethclient needing to know about retryablehttp.
	rpcClient, err := rpc.DialHTTPWithClient(cfg.Endpoint, rc.StandardClient())
	if err != nil {
		return nil, fmt.Errorf("rpcclient: dial %s: %w", cfg.Endpoint, err)
	}
	eth := ethclient.NewClient(rpcClient)

	return &Client{
		eth:      eth,
		endpoint: cfg.Endpoint,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst),
		timeout:  cfg.CallTimeout,
		observer: observer,
	}, nil
}

// checkRetry never retries NotFound-shaped responses and forwards 429s to
// the observer before letting retryablehttp's default policy decide the
// actual retry.
func checkRetry(observer RateLimitObserver) retryablehttp.CheckRetry {
	return func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			observer.ObserveRateLimit(retryAfter(resp))
		}
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
}

func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if d, err := time.ParseDuration(v + "s"); err == nil {
		return d
	}
	return 0
}

// GetReceipt fetches a transaction receipt, translating "not found" into
// ErrNotFound so callers don't retry a pending transaction.
func (c *Client) GetReceipt(ctx context.Context, txHash common.Hash) (*swtypes.ReceiptRecord, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rpcclient: rate limiter wait: %w", err)
	}
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	receipt, err := c.eth.TransactionReceipt(cctx, txHash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, ErrNotFound
		}
		if isTooManyRequests(err) {
			return nil, ErrTooManyRequests
		}
		return nil, fmt.Errorf("rpcclient: get receipt %s: %w", txHash.Hex(), err)
	}
	return toReceiptRecord(receipt), nil
}

func toReceiptRecord(r *types.Receipt) *swtypes.ReceiptRecord {
	logs := make([]*swtypes.RawLog, 0, len(r.Logs))
	for _, l := range r.Logs {
		logs = append(logs, &swtypes.RawLog{
			Address: l.Address,
			Topics:  l.Topics,
			Data:    l.Data,
		})
	}
	return &swtypes.ReceiptRecord{
		TxHash:  r.TxHash,
		Status:  r.Status,
		GasUsed: r.GasUsed,
		Logs:    logs,
	}
}

// Call performs eth_call against the given contract at the given block (nil
// means "latest"), returning raw ABI-encoded output bytes for the caller to
// unpack.
func (c *Client) Call(ctx context.Context, to common.Address, data []byte, blockNumber *big.Int) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rpcclient: rate limiter wait: %w", err)
	}
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msg := ethereum.CallMsg{To: &to, Data: data}
	out, err := c.eth.CallContract(cctx, msg, blockNumber)
	if err != nil {
		if isTooManyRequests(err) {
			return nil, ErrTooManyRequests
		}
		return nil, fmt.Errorf("rpcclient: eth_call to %s: %w", to.Hex(), err)
	}
	return out, nil
}

// BlockNumber returns the current chain head height.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rpcclient: rate limiter wait: %w", err)
	}
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	n, err := c.eth.BlockNumber(cctx)
	if err != nil {
		return 0, fmt.Errorf("rpcclient: block number: %w", err)
	}
	return n, nil
}

// Close releases the underlying ethclient connection.
func (c *Client) Close() { c.eth.Close() }

func isTooManyRequests(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "429")
}
