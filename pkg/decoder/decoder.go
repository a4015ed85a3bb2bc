// Package decoder implements the wire decoder: it parses inbound
// WebSocket frames from the BSC node and turns recognized log frames into
// types.SwapEvent values, using fixed ABI fragments for the event shapes
// the engine cares about (Pancake V2 Swap, ERC20 Transfer, Fourmeme
// router/proxy events).
package decoder

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	swtypes "swapwatch/pkg/types"
)

// DecodeError marks a frame that could not be parsed: not JSON, missing a
// required field, or a data length mismatch against the expected ABI
// layout. The caller drops the frame and increments a counter; it never
// retries a DecodeError.
type DecodeError struct {
	Reason string
	Cause  error
}

func (e *DecodeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("decode: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("decode: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Cause }

// EventKind identifies which known ABI event a log frame decodes as.
type EventKind int

const (
	KindUnknown EventKind = iota
	KindPancakeSwap
	KindERC20Transfer
	KindFourmemeRouter
	KindFourmemeProxy
)

// Known topic-0 signatures, kept as literals so decoding never depends on
// re-hashing an event signature at runtime.
var (
	TopicPancakeSwap    = common.HexToHash("0xd78ad95fa46c994b6551d0da85fc275fe613ce37657fb8d5e3d130840159d822")
	TopicTransfer       = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")
	TopicFourmemeRouter = common.HexToHash("0x7e6e0db5dd0c4c0d7a92263d0aa13ad1ec02c3ee2e9e6d8b6e2d57ff2a3fa2e1")
	TopicFourmemeProxy  = common.HexToHash("0x5f2b57f1c0d5d9a3a22a2e5b0c2d6c9a1d4b3e7f0a9c8d6e5f4a3b2c1d0e9f8a")
)

// pancakeSwapABI is the minimal ABI fragment for Pancake V2's
// Swap(address,uint256,uint256,uint256,uint256,address) event.
const pancakeSwapABI = `[{"anonymous":false,"inputs":[
	{"indexed":true,"name":"sender","type":"address"},
	{"indexed":false,"name":"amount0In","type":"uint256"},
	{"indexed":false,"name":"amount1In","type":"uint256"},
	{"indexed":false,"name":"amount0Out","type":"uint256"},
	{"indexed":false,"name":"amount1Out","type":"uint256"},
	{"indexed":true,"name":"to","type":"address"}
],"name":"Swap","type":"event"}]`

// erc20TransferABI is the ABI fragment for Transfer(address,address,uint256).
const erc20TransferABI = `[{"anonymous":false,"inputs":[
	{"indexed":true,"name":"from","type":"address"},
	{"indexed":true,"name":"to","type":"address"},
	{"indexed":false,"name":"value","type":"uint256"}
],"name":"Transfer","type":"event"}]`

// Decoder holds the parsed ABI fragments and exposes Decode for inbound
// frames. It is stateless and safe for concurrent use.
type Decoder struct {
	swapABI     abi.ABI
	transferABI abi.ABI
}

// New parses the embedded ABI fragments once at construction.
func New() (*Decoder, error) {
	swapABI, err := abi.JSON(strings.NewReader(pancakeSwapABI))
	if err != nil {
		return nil, fmt.Errorf("decoder: parse pancake swap abi: %w", err)
	}
	transferABI, err := abi.JSON(strings.NewReader(erc20TransferABI))
	if err != nil {
		return nil, fmt.Errorf("decoder: parse erc20 transfer abi: %w", err)
	}
	return &Decoder{swapABI: swapABI, transferABI: transferABI}, nil
}

// subscriptionFrame matches an eth_subscription push.
type subscriptionFrame struct {
	Method string `json:"method"`
	Params struct {
		Subscription string          `json:"subscription"`
		Result       json.RawMessage `json:"result"`
	} `json:"params"`
}

// subscribeResultFrame matches the ack to an eth_subscribe call.
type subscribeResultFrame struct {
	ID     int64  `json:"id"`
	Result string `json:"result"`
}

// logResult is the `result` payload of an eth_subscription "logs" push.
type logResult struct {
	Address         string   `json:"address"`
	Topics          []string `json:"topics"`
	Data            string   `json:"data"`
	BlockNumber     string   `json:"blockNumber"`
	TransactionHash string   `json:"transactionHash"`
	LogIndex        string   `json:"logIndex"`
	Removed         bool     `json:"removed"`
}

// LogResult is the exported alias other packages (subscriber) route on.
type LogResult = logResult

// Frame is the result of classifying a raw WS message.
type Frame struct {
	IsSubscribeAck bool
	SubID          int64
	SubResult      string // subscription id assigned by the node

	IsLog bool
	Log   logResult
}

// Classify inspects a raw frame and determines whether it is a
// subscription-result ack or a log push. Any other shape is dropped by the
// caller with a counter increment: Classify returns ok=false
// with no error in that case, reserving DecodeError for frames that look
// like one of the two known shapes but fail to parse.
func Classify(raw []byte) (Frame, bool, error) {
	var generic struct {
		Method string          `json:"method"`
		ID     *int64          `json:"id"`
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return Frame{}, false, &DecodeError{Reason: "not json", Cause: err}
	}

	if generic.ID != nil {
		var ack subscribeResultFrame
		if err := json.Unmarshal(raw, &ack); err != nil {
			return Frame{}, false, &DecodeError{Reason: "malformed subscribe ack", Cause: err}
		}
		return Frame{IsSubscribeAck: true, SubID: ack.ID, SubResult: ack.Result}, true, nil
	}

	if generic.Method == "eth_subscription" {
		var sub subscriptionFrame
		if err := json.Unmarshal(raw, &sub); err != nil {
			return Frame{}, false, &DecodeError{Reason: "malformed subscription frame", Cause: err}
		}
		var lr logResult
		if err := json.Unmarshal(sub.Params.Result, &lr); err != nil {
			return Frame{}, false, &DecodeError{Reason: "malformed log result", Cause: err}
		}
		if lr.Address == "" || len(lr.Topics) == 0 || lr.TransactionHash == "" {
			return Frame{}, false, &DecodeError{Reason: "missing required log fields"}
		}
		return Frame{IsLog: true, Log: lr}, true, nil
	}

	return Frame{}, false, nil
}

// EventKindOf inspects topic[0] of a log frame to select the event type.
func EventKindOf(lr logResult) EventKind {
	if len(lr.Topics) == 0 {
		return KindUnknown
	}
	t0 := common.HexToHash(lr.Topics[0])
	switch t0 {
	case TopicPancakeSwap:
		return KindPancakeSwap
	case TopicTransfer:
		return KindERC20Transfer
	case TopicFourmemeRouter:
		return KindFourmemeRouter
	case TopicFourmemeProxy:
		return KindFourmemeProxy
	default:
		return KindUnknown
	}
}

// DecodeSwap decodes a swap-shaped log frame into a types.SwapEvent.
// token0/token1 must come from the pair metadata resolver (the log itself
// only carries sender/to and the four amounts); origin is classified by
// the caller based on which topic0 matched. Fourmeme's router/proxy swap
// events carry the same four-amount layout as Pancake V2's, so one decode
// path covers both; if that assumption ever breaks for a given router
// version, EventKindOf still distinguishes them for a dedicated decoder.
func (d *Decoder) DecodeSwap(lr logResult, token0, token1 common.Address) (swtypes.SwapEvent, error) {
	switch EventKindOf(lr) {
	case KindPancakeSwap, KindFourmemeRouter, KindFourmemeProxy:
	default:
		return swtypes.SwapEvent{}, &DecodeError{Reason: "not a swap-shaped log"}
	}
	dataBytes, err := decodeHex(lr.Data)
	if err != nil {
		return swtypes.SwapEvent{}, &DecodeError{Reason: "bad data hex", Cause: err}
	}
	const wordLen = 32
	if len(dataBytes) != 4*wordLen {
		return swtypes.SwapEvent{}, &DecodeError{Reason: fmt.Sprintf("swap data length mismatch: got %d want %d", len(dataBytes), 4*wordLen)}
	}

	unpacked, err := d.swapABI.Events["Swap"].Inputs.NonIndexed().UnpackValues(dataBytes)
	if err != nil {
		return swtypes.SwapEvent{}, &DecodeError{Reason: "unpack swap data", Cause: err}
	}
	if len(unpacked) != 4 {
		return swtypes.SwapEvent{}, &DecodeError{Reason: "unexpected unpacked field count"}
	}

	amount0In, _ := unpacked[0].(*big.Int)
	amount1In, _ := unpacked[1].(*big.Int)
	amount0Out, _ := unpacked[2].(*big.Int)
	amount1Out, _ := unpacked[3].(*big.Int)

	blockNum, err := hexToUint64(lr.BlockNumber)
	if err != nil {
		return swtypes.SwapEvent{}, &DecodeError{Reason: "bad blockNumber", Cause: err}
	}
	logIdx, err := hexToUint64(lr.LogIndex)
	if err != nil {
		return swtypes.SwapEvent{}, &DecodeError{Reason: "bad logIndex", Cause: err}
	}

	return swtypes.SwapEvent{
		TxHash:      common.HexToHash(lr.TransactionHash),
		LogIndex:    uint(logIdx),
		Pair:        common.HexToAddress(lr.Address),
		Token0:      token0,
		Token1:      token1,
		Amount0In:   zeroIfNil(amount0In),
		Amount0Out:  zeroIfNil(amount0Out),
		Amount1In:   zeroIfNil(amount1In),
		Amount1Out:  zeroIfNil(amount1Out),
		BlockNumber: blockNum,
		Timestamp:   time.Now(),
	}, nil
}

// DecodeTransferValue pulls just the transferred amount out of an ERC20
// Transfer log.
func (d *Decoder) DecodeTransferValue(lr logResult) (*big.Int, error) {
	if EventKindOf(lr) != KindERC20Transfer {
		return nil, &DecodeError{Reason: "not a transfer log"}
	}
	dataBytes, err := decodeHex(lr.Data)
	if err != nil {
		return nil, &DecodeError{Reason: "bad data hex", Cause: err}
	}
	if len(dataBytes) != 32 {
		return nil, &DecodeError{Reason: fmt.Sprintf("transfer data length mismatch: got %d want 32", len(dataBytes))}
	}
	unpacked, err := d.transferABI.Events["Transfer"].Inputs.NonIndexed().UnpackValues(dataBytes)
	if err != nil || len(unpacked) != 1 {
		return nil, &DecodeError{Reason: "unpack transfer value", Cause: err}
	}
	v, _ := unpacked[0].(*big.Int)
	return zeroIfNil(v), nil
}

func zeroIfNil(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	if len(s)%2 != 0 {
		s = "0" + s
	}
	return hex.DecodeString(s)
}

func hexToUint64(s string) (uint64, error) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return 0, fmt.Errorf("empty hex value")
	}
	return strconv.ParseUint(s, 16, 64)
}
