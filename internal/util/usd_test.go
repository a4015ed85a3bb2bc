package util

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAmount(t *testing.T) {
	tests := []struct {
		name     string
		raw      *big.Int
		decimals uint8
		want     float64
	}{
		{"nil amount", nil, 18, 0},
		{"one token, 18 decimals", big.NewInt(1_000_000_000_000_000_000), 18, 1},
		{"half token, 6 decimals", big.NewInt(500_000), 6, 0.5},
		{"zero decimals", big.NewInt(42), 0, 42},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeAmount(tt.raw, tt.decimals)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestUSDValue(t *testing.T) {
	assert.Equal(t, 100.0, USDValue(100, true, 612.3))
	assert.Equal(t, 612.3, USDValue(1, false, 612.3))
	assert.Equal(t, 0.0, USDValue(0, false, 612.3))
}

func TestValidDecimals(t *testing.T) {
	assert.True(t, ValidDecimals(0))
	assert.True(t, ValidDecimals(18))
	assert.True(t, ValidDecimals(36))
	assert.False(t, ValidDecimals(37))
	assert.False(t, ValidDecimals(255))
}

func TestRoundUSD(t *testing.T) {
	assert.InDelta(t, 12.35, RoundUSD(12.346), 0.001)
	assert.InDelta(t, 12.34, RoundUSD(12.344), 0.001)
	assert.Equal(t, 0.0, RoundUSD(0))
}
