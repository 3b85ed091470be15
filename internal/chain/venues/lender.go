package venues

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/flashexec/flashexec/internal/chain"
	clierr "github.com/flashexec/flashexec/internal/errors"
)

const bpsDenominator = 10_000

// FlashLender is the external capital source. Borrow transfers the principal
// to the receiver, invokes its callback, then pulls principal plus premium
// for every asset. The caller is responsible for reverting state when Borrow
// returns an error.
type FlashLender struct {
	addr       common.Address
	st         *chain.State
	premiumBPS uint32
}

func NewFlashLender(st *chain.State, name string, premiumBPS uint32) *FlashLender {
	l := &FlashLender{
		addr:       chain.DeriveAddress("lender/" + name),
		st:         st,
		premiumBPS: premiumBPS,
	}
	st.Register(l)
	return l
}

func (l *FlashLender) Address() common.Address { return l.addr }

func (l *FlashLender) PremiumBPS() uint32 { return l.premiumBPS }

// SeedLiquidity funds the lender so borrows can be served.
func (l *FlashLender) SeedLiquidity(asset common.Address, amount *big.Int) {
	l.st.Mint(asset, l.addr, amount)
}

// Premium computes the fee owed on a principal amount:
// amount * premiumRateBPS / 10000.
func (l *FlashLender) Premium(amount *big.Int) *big.Int {
	fee := new(big.Int).Mul(amount, big.NewInt(int64(l.premiumBPS)))
	return fee.Div(fee, big.NewInt(bpsDenominator))
}

// Available reports whether the lender can serve a borrow of amount.
func (l *FlashLender) Available(asset common.Address, amount *big.Int) bool {
	return l.st.BalanceOf(asset, l.addr).Cmp(amount) >= 0
}

// Borrow implements the lender side of the flash-loan protocol. The initiator
// passed to the callback is the account that invoked Borrow; modes,
// onBehalfOf and referralCode are accepted for wire compatibility and unused
// by this lender.
func (l *FlashLender) Borrow(sender common.Address, receiver BorrowReceiver, assets []common.Address, amounts []*big.Int, modes []uint8, onBehalfOf common.Address, params []byte, referralCode uint16) error {
	_ = modes
	_ = onBehalfOf
	_ = referralCode
	if len(assets) == 0 || len(assets) != len(amounts) {
		return clierr.New(clierr.CodeValidation, "assets and amounts must be equal, nonzero length")
	}

	premiums := make([]*big.Int, len(assets))
	for i, amount := range amounts {
		if amount == nil || amount.Sign() <= 0 {
			return clierr.New(clierr.CodeValidation, "borrow amount must be positive")
		}
		premiums[i] = l.Premium(amount)
	}

	for i, asset := range assets {
		if err := l.st.Transfer(asset, l.addr, receiver.Address(), amounts[i]); err != nil {
			return clierr.Wrap(clierr.CodeExecution, "lender liquidity transfer", err)
		}
	}

	if err := receiver.OnBorrowCallback(l.addr, assets, amounts, premiums, sender, params); err != nil {
		return err
	}

	for i, asset := range assets {
		owed := new(big.Int).Add(amounts[i], premiums[i])
		if err := l.st.Transfer(asset, receiver.Address(), l.addr, owed); err != nil {
			return clierr.Wrap(clierr.CodeRepayment, "pull repayment", err)
		}
	}
	return nil
}
