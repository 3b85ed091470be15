package dex

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/flashexec/flashexec/internal/chain"
	clierr "github.com/flashexec/flashexec/internal/errors"
)

// Adapter resolves swap venues by registry name and normalizes the two router
// surfaces behind one call site. Venue lookups happen per call, never cached.
type Adapter struct {
	st  *chain.State
	reg *VenueRegistry
}

func NewAdapter(st *chain.State, reg *VenueRegistry) *Adapter {
	return &Adapter{st: st, reg: reg}
}

func (a *Adapter) constantProduct(venue string) (SwapRouter, error) {
	if venue == "" {
		venue = VenueConstantProduct
	}
	addr, err := a.reg.Resolve(venue)
	if err != nil {
		return nil, err
	}
	contract, ok := a.st.ContractAt(addr)
	if !ok {
		return nil, clierr.Newf(clierr.CodeExecution, "venue %q has no contract at %s", venue, addr.Hex())
	}
	router, ok := contract.(SwapRouter)
	if !ok {
		return nil, clierr.Newf(clierr.CodeExecution, "venue %q is not a constant-product router", venue)
	}
	return router, nil
}

func (a *Adapter) tiered(venue string) (TieredRouter, error) {
	if venue == "" {
		venue = VenueConcentrated
	}
	addr, err := a.reg.Resolve(venue)
	if err != nil {
		return nil, err
	}
	contract, ok := a.st.ContractAt(addr)
	if !ok {
		return nil, clierr.Newf(clierr.CodeExecution, "venue %q has no contract at %s", venue, addr.Hex())
	}
	router, ok := contract.(TieredRouter)
	if !ok {
		return nil, clierr.Newf(clierr.CodeExecution, "venue %q is not a fee-tiered router", venue)
	}
	return router, nil
}

// QuoteConstantProduct quotes a path swap and returns the final-leg output.
func (a *Adapter) QuoteConstantProduct(venue string, amountIn *big.Int, path []common.Address) (*big.Int, error) {
	router, err := a.constantProduct(venue)
	if err != nil {
		return nil, err
	}
	amounts, err := router.Quote(amountIn, path)
	if err != nil {
		return nil, err
	}
	return amounts[len(amounts)-1], nil
}

// SwapConstantProduct executes a path swap and returns the final-leg output.
func (a *Adapter) SwapConstantProduct(venue string, sender common.Address, amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline int64) (*big.Int, error) {
	router, err := a.constantProduct(venue)
	if err != nil {
		return nil, err
	}
	amounts, err := router.Swap(sender, amountIn, amountOutMin, path, to, deadline)
	if err != nil {
		return nil, err
	}
	return amounts[len(amounts)-1], nil
}

// QuoteConcentrated quotes a single-hop swap at an explicit fee tier.
func (a *Adapter) QuoteConcentrated(venue string, tokenIn, tokenOut common.Address, fee uint32, amountIn *big.Int) (*big.Int, error) {
	router, err := a.tiered(venue)
	if err != nil {
		return nil, err
	}
	return router.QuoteSingle(tokenIn, tokenOut, fee, amountIn)
}

// SwapConcentrated executes a single-hop swap at an explicit fee tier.
func (a *Adapter) SwapConcentrated(venue string, sender common.Address, params ExactInputSingleParams) (*big.Int, error) {
	router, err := a.tiered(venue)
	if err != nil {
		return nil, err
	}
	return router.SwapExactInputSingle(sender, params)
}

// SelectTier probes every standard fee tier and returns the one with the best
// quote. Tiers are probed in ascending fee order and only a strictly better
// quote displaces the incumbent, so ties resolve to the lowest fee. Tiers
// without a pool are skipped.
func (a *Adapter) SelectTier(venue string, tokenIn, tokenOut common.Address, amountIn *big.Int) (uint32, *big.Int, error) {
	router, err := a.tiered(venue)
	if err != nil {
		return 0, nil, err
	}
	var (
		bestFee uint32
		bestOut *big.Int
	)
	for _, fee := range FeeTiers {
		out, err := router.QuoteSingle(tokenIn, tokenOut, fee, amountIn)
		if err != nil {
			if clierr.HasCode(err, clierr.CodeNotFound) {
				continue
			}
			return 0, nil, err
		}
		if bestOut == nil || out.Cmp(bestOut) > 0 {
			bestFee, bestOut = fee, out
		}
	}
	if bestOut == nil {
		return 0, nil, clierr.Newf(clierr.CodeNotFound, "no pool for %s/%s at any fee tier", tokenIn.Hex(), tokenOut.Hex())
	}
	return bestFee, bestOut, nil
}
