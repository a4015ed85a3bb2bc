package util

import (
	"math"
	"math/big"
)

// NormalizeAmount converts a raw token amount (smallest unit) to a float
// using the token's decimals, returning a float64 since USD-threshold
// comparisons don't need big.Int precision.
func NormalizeAmount(raw *big.Int, decimals uint8) float64 {
	if raw == nil {
		return 0
	}
	f := new(big.Float).SetInt(raw)
	divisor := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	f.Quo(f, divisor)
	out, _ := f.Float64()
	return out
}

// USDValue returns the USD notional of a quote-asset amount: if the quote
// token is a stablecoin it is 1:1; if it is WBNB, it is scaled by the
// cached spot price.
func USDValue(quoteAmount float64, isStable bool, wbnbPriceUSD float64) float64 {
	if isStable {
		return quoteAmount
	}
	return quoteAmount * wbnbPriceUSD
}

// ValidDecimals rejects the malformed-decimals edge case:
// negative decimals can't occur in a uint8, but anything above 36 is
// treated as implausible for an ERC20 and rejected.
func ValidDecimals(d uint8) bool {
	return d <= 36
}

// RoundUSD is used only for log/metric readability, never for threshold
// comparisons (which operate on the unrounded float64).
func RoundUSD(v float64) float64 {
	return math.Round(v*100) / 100
}
