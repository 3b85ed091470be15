package dex

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// SwapRouter is the constant-product venue surface.
type SwapRouter interface {
	Quote(amountIn *big.Int, path []common.Address) ([]*big.Int, error)
	Swap(sender common.Address, amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline int64) ([]*big.Int, error)
}

// TieredRouter is the concentrated-liquidity venue surface with explicit fee
// tiers.
type TieredRouter interface {
	QuoteSingle(tokenIn, tokenOut common.Address, fee uint32, amountIn *big.Int) (*big.Int, error)
	SwapExactInputSingle(sender common.Address, params ExactInputSingleParams) (*big.Int, error)
}

// ExactInputSingleParams mirrors the tiered router's swap call.
type ExactInputSingleParams struct {
	TokenIn          common.Address
	TokenOut         common.Address
	Fee              uint32
	Recipient        common.Address
	AmountIn         *big.Int
	AmountOutMinimum *big.Int
	Deadline         int64
}
