package engine

import (
	"math/big"
)

// Base gas costs per action class, used when an action carries no expected
// usage of its own.
const (
	gasBaseOverhead  uint64 = 21_000
	gasFlashLoan     uint64 = 90_000
	gasActionSwap    uint64 = 150_000
	gasActionLend    uint64 = 200_000
	gasActionBorrow  uint64 = 250_000
	gasActionStake   uint64 = 180_000
	gasActionHarvest uint64 = 120_000
	gasActionWrap    uint64 = 50_000
	gasActionCustom  uint64 = 100_000
)

func actionGas(action Action) uint64 {
	if action.ExpectedGas > 0 {
		return action.ExpectedGas
	}
	switch action.Type {
	case ActionSwap:
		return gasActionSwap
	case ActionLend:
		return gasActionLend
	case ActionBorrow:
		return gasActionBorrow
	case ActionStake:
		return gasActionStake
	case ActionHarvest:
		return gasActionHarvest
	case ActionWrap, ActionUnwrap:
		return gasActionWrap
	default:
		return gasActionCustom
	}
}

// EstimateGas sums the expected execution cost of a strategy: base overhead,
// the flash-loan round trip, and every action's class estimate.
func EstimateGas(strategy Strategy) uint64 {
	total := gasBaseOverhead + gasFlashLoan
	for _, action := range strategy.Actions {
		total += actionGas(action)
	}
	return total
}

// ProfitabilityCheck compares an expected profit against the gas cost of a
// strategy at a given gas price and the strategy's minimum-profit floor.
type ProfitabilityCheck struct {
	GasEstimate uint64
	GasCost     *big.Int
	NetProfit   *big.Int
	MinProfit   *big.Int
	Profitable  bool
}

// CheckProfitability evaluates whether executing the strategy with the given
// expected profit clears both the gas cost and the min-profit floor on the
// principal.
func CheckProfitability(strategy Strategy, params SafetyParams, gasPrice, principal, expectedProfit *big.Int) ProfitabilityCheck {
	estimate := EstimateGas(strategy)
	gasCost := new(big.Int).Mul(new(big.Int).SetUint64(estimate), gasPrice)
	net := new(big.Int).Sub(expectedProfit, gasCost)

	minProfit := big.NewInt(0)
	if bps := effectiveMinProfitBPS(strategy, params); bps > 0 {
		minProfit.Mul(principal, big.NewInt(int64(bps)))
		minProfit.Div(minProfit, big.NewInt(10_000))
	}

	return ProfitabilityCheck{
		GasEstimate: estimate,
		GasCost:     gasCost,
		NetProfit:   net,
		MinProfit:   minProfit,
		Profitable:  net.Sign() > 0 && net.Cmp(minProfit) >= 0,
	}
}
