package decoder

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func word(n uint64) string {
	return fmt.Sprintf("%064x", n)
}

func TestClassify_SubscribeAck(t *testing.T) {
	raw := []byte(`{"jsonrpc":"2.0","id":1,"result":"0xabc123"}`)
	frame, ok, err := Classify(raw)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, frame.IsSubscribeAck)
	assert.Equal(t, int64(1), frame.SubID)
	assert.Equal(t, "0xabc123", frame.SubResult)
}

func TestClassify_LogPush(t *testing.T) {
	inner := logResult{
		Address:         "0xpair",
		Topics:          []string{TopicPancakeSwap.Hex()},
		Data:            "0x" + word(1) + word(2) + word(3) + word(4),
		BlockNumber:     "0x1",
		TransactionHash: "0xdeadbeef",
		LogIndex:        "0x0",
	}
	innerJSON, err := json.Marshal(inner)
	require.NoError(t, err)

	raw := []byte(fmt.Sprintf(`{"jsonrpc":"2.0","method":"eth_subscription","params":{"subscription":"0xsub","result":%s}}`, innerJSON))
	frame, ok, err := Classify(raw)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, frame.IsLog)
	assert.Equal(t, "0xpair", frame.Log.Address)
}

func TestClassify_NotJSON(t *testing.T) {
	_, ok, err := Classify([]byte("not json at all"))
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestClassify_UnknownShape(t *testing.T) {
	frame, ok, err := Classify([]byte(`{"foo":"bar"}`))
	assert.False(t, ok)
	assert.NoError(t, err)
	assert.Equal(t, Frame{}, frame)
}

func TestClassify_MissingLogFields(t *testing.T) {
	raw := []byte(`{"jsonrpc":"2.0","method":"eth_subscription","params":{"subscription":"0xsub","result":{}}}`)
	_, ok, err := Classify(raw)
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestEventKindOf(t *testing.T) {
	assert.Equal(t, KindPancakeSwap, EventKindOf(logResult{Topics: []string{TopicPancakeSwap.Hex()}}))
	assert.Equal(t, KindERC20Transfer, EventKindOf(logResult{Topics: []string{TopicTransfer.Hex()}}))
	assert.Equal(t, KindUnknown, EventKindOf(logResult{Topics: []string{common.HexToHash("0xdead").Hex()}}))
	assert.Equal(t, KindUnknown, EventKindOf(logResult{}))
}

func TestDecoder_DecodeSwap(t *testing.T) {
	d, err := New()
	require.NoError(t, err)

	lr := logResult{
		Address:         "0xpair000000000000000000000000000000000000",
		Topics:          []string{TopicPancakeSwap.Hex()},
		Data:            "0x" + word(100) + word(0) + word(0) + word(200),
		BlockNumber:     "0x64",
		TransactionHash: "0xdeadbeef",
		LogIndex:        "0x2",
	}
	token0 := common.HexToAddress("0x1111111111111111111111111111111111111111")
	token1 := common.HexToAddress("0x2222222222222222222222222222222222222222")

	evt, err := d.DecodeSwap(lr, token0, token1)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), evt.BlockNumber)
	assert.Equal(t, uint(2), evt.LogIndex)
	assert.Equal(t, token0, evt.Token0)
	assert.Equal(t, token1, evt.Token1)
	assert.Equal(t, int64(100), evt.Amount0In.Int64())
	assert.Equal(t, int64(200), evt.Amount1Out.Int64())
}

func TestDecoder_DecodeSwap_WrongKind(t *testing.T) {
	d, err := New()
	require.NoError(t, err)

	lr := logResult{Topics: []string{TopicTransfer.Hex()}}
	_, err = d.DecodeSwap(lr, common.Address{}, common.Address{})
	assert.Error(t, err)
}

func TestDecoder_DecodeSwap_BadDataLength(t *testing.T) {
	d, err := New()
	require.NoError(t, err)

	lr := logResult{
		Topics: []string{TopicPancakeSwap.Hex()},
		Data:   "0x" + word(1),
	}
	_, err = d.DecodeSwap(lr, common.Address{}, common.Address{})
	assert.Error(t, err)
}

func TestDecoder_DecodeTransferValue(t *testing.T) {
	d, err := New()
	require.NoError(t, err)

	lr := logResult{
		Topics: []string{TopicTransfer.Hex()},
		Data:   "0x" + word(12345),
	}
	v, err := d.DecodeTransferValue(lr)
	require.NoError(t, err)
	assert.Equal(t, int64(12345), v.Int64())
}

func TestDecoder_DecodeTransferValue_WrongKind(t *testing.T) {
	d, err := New()
	require.NoError(t, err)

	lr := logResult{Topics: []string{TopicPancakeSwap.Hex()}}
	_, err = d.DecodeTransferValue(lr)
	assert.Error(t, err)
}
