package venues

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/flashexec/flashexec/internal/chain"
	clierr "github.com/flashexec/flashexec/internal/errors"
)

// StakingVault follows the MasterChef deposit convention: depositing a
// positive amount stakes it, depositing zero only collects pending rewards.
// Pending rewards sit in a per-user escrow account so a reverted operation
// restores them.
type StakingVault struct {
	addr        common.Address
	name        string
	st          *chain.State
	stakeToken  common.Address
	rewardToken common.Address
}

func NewStakingVault(st *chain.State, name string, stakeToken, rewardToken common.Address) *StakingVault {
	v := &StakingVault{
		addr:        chain.DeriveAddress("staking/" + name),
		name:        name,
		st:          st,
		stakeToken:  stakeToken,
		rewardToken: rewardToken,
	}
	st.Register(v)
	return v
}

func (v *StakingVault) Address() common.Address    { return v.addr }
func (v *StakingVault) StakeToken() common.Address { return v.stakeToken }

func (v *StakingVault) pendingAccount(user common.Address) common.Address {
	return chain.DeriveAddress("staking/" + v.name + "/pending/" + user.Hex())
}

// Accrue credits user with a pending reward, claimable on the next deposit.
func (v *StakingVault) Accrue(user common.Address, amount *big.Int) {
	v.st.Mint(v.rewardToken, v.pendingAccount(user), amount)
}

// Pending returns the user's unclaimed reward balance.
func (v *StakingVault) Pending(user common.Address) *big.Int {
	return v.st.BalanceOf(v.rewardToken, v.pendingAccount(user))
}

func (v *StakingVault) Deposit(sender common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return clierr.New(clierr.CodeValidation, "deposit amount must be non-negative")
	}
	if amount.Sign() > 0 {
		if err := v.st.Transfer(v.stakeToken, sender, v.addr, amount); err != nil {
			return clierr.Wrap(clierr.CodeExecution, "stake transfer", err)
		}
	}
	pending := v.Pending(sender)
	if pending.Sign() > 0 {
		if err := v.st.Transfer(v.rewardToken, v.pendingAccount(sender), sender, pending); err != nil {
			return clierr.Wrap(clierr.CodeExecution, "reward payout", err)
		}
	}
	return nil
}
