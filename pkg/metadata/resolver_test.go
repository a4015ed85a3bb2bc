package metadata

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestResolveError_Error(t *testing.T) {
	pair := common.HexToAddress("0xaaaa111111111111111111111111111111111111")
	err := &ResolveError{Pair: pair, RPC: errors.New("rpc down"), HTTP: errors.New("http down")}

	msg := err.Error()
	assert.Contains(t, msg, pair.Hex())
	assert.Contains(t, msg, "rpc down")
	assert.Contains(t, msg, "http down")
}

func TestQuoteSet_Membership(t *testing.T) {
	wbnb := common.HexToAddress("0xbbbb222222222222222222222222222222222222")
	usdt := common.HexToAddress("0xcccc333333333333333333333333333333333333")
	other := common.HexToAddress("0xdddd444444444444444444444444444444444444")

	quotes := QuoteSet{wbnb: true, usdt: true}
	assert.True(t, quotes[wbnb])
	assert.True(t, quotes[usdt])
	assert.False(t, quotes[other])
}
