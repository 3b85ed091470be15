// Package venues implements the external contracts the engine executes
// against: constant-product and fee-tiered swap routers, a lending pool, a
// staking vault, a wrapped-native token, and the flash-loan capital source.
//
// Every venue keeps its mutable state as balances of derived sub-accounts in
// chain.State, so an operation-level snapshot revert rolls venues back too.
package venues

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// LendingVenue exposes supply/borrow entry points.
type LendingVenue interface {
	Supply(sender, asset common.Address, amount *big.Int) error
	Borrow(sender, asset common.Address, amount *big.Int) error
}

// StakingVenue follows the deposit convention where a zero-amount deposit is
// a harvest.
type StakingVenue interface {
	Deposit(sender common.Address, amount *big.Int) error
	StakeToken() common.Address
}

// WrapVenue converts between the native asset and its wrapped representation.
type WrapVenue interface {
	Wrap(sender common.Address, amount *big.Int) error
	Unwrap(sender common.Address, amount *big.Int) error
	Token() common.Address
}

// BorrowReceiver is the callback side of the flash-loan protocol.
type BorrowReceiver interface {
	Address() common.Address
	OnBorrowCallback(sender common.Address, assets []common.Address, amounts, premiums []*big.Int, initiator common.Address, params []byte) error
}
