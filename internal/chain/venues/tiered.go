package venues

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/flashexec/flashexec/internal/chain"
	"github.com/flashexec/flashexec/internal/dex"
	clierr "github.com/flashexec/flashexec/internal/errors"
)

// TierRouter is a concentrated-liquidity style venue: one pool per
// (pair, fee tier), quoted and swapped with an explicit tier. Fee tiers use
// the hundredths-of-a-bip convention (3000 = 0.30%).
type TierRouter struct {
	addr  common.Address
	name  string
	st    *chain.State
	pools map[tierKey]common.Address
}

type tierKey struct {
	pair pairKey
	fee  uint32
}

func NewTierRouter(st *chain.State, name string) *TierRouter {
	t := &TierRouter{
		addr:  chain.DeriveAddress("tier-router/" + name),
		name:  name,
		st:    st,
		pools: make(map[tierKey]common.Address),
	}
	st.Register(t)
	return t
}

func (t *TierRouter) Address() common.Address { return t.addr }

// AddPool seeds (or tops up) the pool for a pair at a fee tier.
func (t *TierRouter) AddPool(tokenA, tokenB common.Address, fee uint32, reserveA, reserveB *big.Int) {
	key := tierKey{pair: sortedPair(tokenA, tokenB), fee: fee}
	account, ok := t.pools[key]
	if !ok {
		account = chain.DeriveAddress(fmt.Sprintf("tier-router/%s/pool/%s/%s/%d",
			t.name, key.pair.token0.Hex(), key.pair.token1.Hex(), fee))
		t.pools[key] = account
	}
	t.st.Mint(tokenA, account, reserveA)
	t.st.Mint(tokenB, account, reserveB)
}

func (t *TierRouter) poolAccount(tokenA, tokenB common.Address, fee uint32) (common.Address, bool) {
	account, ok := t.pools[tierKey{pair: sortedPair(tokenA, tokenB), fee: fee}]
	return account, ok
}

// QuoteSingle quotes a single-hop swap at the given fee tier.
func (t *TierRouter) QuoteSingle(tokenIn, tokenOut common.Address, fee uint32, amountIn *big.Int) (*big.Int, error) {
	account, ok := t.poolAccount(tokenIn, tokenOut, fee)
	if !ok {
		return nil, clierr.Newf(clierr.CodeNotFound, "no pool for %s/%s at fee tier %d", tokenIn.Hex(), tokenOut.Hex(), fee)
	}
	reserveIn := t.st.BalanceOf(tokenIn, account)
	reserveOut := t.st.BalanceOf(tokenOut, account)
	return dex.GetAmountOut(amountIn, reserveIn, reserveOut, fee/100)
}

// SwapExactInputSingle swaps against the pinned fee-tier pool.
func (t *TierRouter) SwapExactInputSingle(sender common.Address, params dex.ExactInputSingleParams) (*big.Int, error) {
	if params.Deadline > 0 && time.Now().Unix() > params.Deadline {
		return nil, clierr.New(clierr.CodeExecution, "swap deadline expired")
	}
	amountOut, err := t.QuoteSingle(params.TokenIn, params.TokenOut, params.Fee, params.AmountIn)
	if err != nil {
		return nil, err
	}
	if params.AmountOutMinimum != nil && amountOut.Cmp(params.AmountOutMinimum) < 0 {
		return nil, clierr.Newf(clierr.CodeExecution, "insufficient output: got %s, want at least %s", amountOut, params.AmountOutMinimum)
	}
	account, _ := t.poolAccount(params.TokenIn, params.TokenOut, params.Fee)
	if err := t.st.Transfer(params.TokenIn, sender, account, params.AmountIn); err != nil {
		return nil, clierr.Wrap(clierr.CodeExecution, "swap transfer in", err)
	}
	if err := t.st.Transfer(params.TokenOut, account, params.Recipient, amountOut); err != nil {
		return nil, clierr.Wrap(clierr.CodeExecution, "swap transfer out", err)
	}
	return amountOut, nil
}
