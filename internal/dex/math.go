// Package dex holds the swap-venue abstraction: exact constant-product
// quoting math, fee-tier probing for concentrated-liquidity venues, and the
// admin-gated venue name registry.
package dex

import (
	"math/big"

	clierr "github.com/flashexec/flashexec/internal/errors"
)

const bpsDenominator = 10_000

// Fee tiers probed when a concentrated-liquidity swap does not pin one.
var FeeTiers = []uint32{500, 3000, 10000}

// GetAmountOut computes the constant-product output amount:
//
//	amountIn*(10000-feeBPS)*reserveOut / (reserveIn*10000 + amountIn*(10000-feeBPS))
//
// The multiplication/division order is load-bearing; callers assert exact
// integer outputs.
func GetAmountOut(amountIn, reserveIn, reserveOut *big.Int, feeBPS uint32) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, clierr.New(clierr.CodeValidation, "swap amount must be positive")
	}
	if reserveIn == nil || reserveOut == nil || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, clierr.New(clierr.CodeValidation, "pool has no liquidity")
	}
	if uint64(feeBPS) >= bpsDenominator {
		return nil, clierr.New(clierr.CodeValidation, "fee must be below 10000 bps")
	}
	amountInWithFee := new(big.Int).Mul(amountIn, big.NewInt(int64(bpsDenominator-int(feeBPS))))
	numerator := new(big.Int).Mul(amountInWithFee, reserveOut)
	denominator := new(big.Int).Mul(reserveIn, big.NewInt(bpsDenominator))
	denominator.Add(denominator, amountInWithFee)
	return numerator.Div(numerator, denominator), nil
}
