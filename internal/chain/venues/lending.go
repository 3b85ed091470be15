package venues

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/flashexec/flashexec/internal/chain"
	clierr "github.com/flashexec/flashexec/internal/errors"
)

// LendingPool is a minimal supply/borrow venue. A frozen asset models the
// protocol-level rejections real pools raise (caps, paused reserves); the
// dispatcher converts those into action failures.
type LendingPool struct {
	addr   common.Address
	st     *chain.State
	frozen map[common.Address]bool
}

func NewLendingPool(st *chain.State, name string) *LendingPool {
	p := &LendingPool{
		addr:   chain.DeriveAddress("lending/" + name),
		st:     st,
		frozen: make(map[common.Address]bool),
	}
	st.Register(p)
	return p
}

func (p *LendingPool) Address() common.Address { return p.addr }

// SetFrozen toggles protocol-level rejection for an asset.
func (p *LendingPool) SetFrozen(asset common.Address, frozen bool) {
	p.frozen[asset] = frozen
}

// SeedLiquidity funds the pool so borrows can be served.
func (p *LendingPool) SeedLiquidity(asset common.Address, amount *big.Int) {
	p.st.Mint(asset, p.addr, amount)
}

func (p *LendingPool) Supply(sender, asset common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return clierr.New(clierr.CodeValidation, "supply amount must be positive")
	}
	if p.frozen[asset] {
		return clierr.New(clierr.CodeExecution, "reserve is frozen")
	}
	if err := p.st.Transfer(asset, sender, p.addr, amount); err != nil {
		return clierr.Wrap(clierr.CodeExecution, "supply transfer", err)
	}
	return nil
}

func (p *LendingPool) Borrow(sender, asset common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return clierr.New(clierr.CodeValidation, "borrow amount must be positive")
	}
	if p.frozen[asset] {
		return clierr.New(clierr.CodeExecution, "reserve is frozen")
	}
	if p.st.BalanceOf(asset, p.addr).Cmp(amount) < 0 {
		return clierr.New(clierr.CodeExecution, "insufficient pool liquidity")
	}
	if err := p.st.Transfer(asset, p.addr, sender, amount); err != nil {
		return clierr.Wrap(clierr.CodeExecution, "borrow transfer", err)
	}
	return nil
}
