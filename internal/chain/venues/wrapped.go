package venues

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/flashexec/flashexec/internal/chain"
	clierr "github.com/flashexec/flashexec/internal/errors"
)

// WrappedNative converts between the native asset and its wrapped token.
type WrappedNative struct {
	addr  common.Address
	st    *chain.State
	token common.Address
}

func NewWrappedNative(st *chain.State, name string) *WrappedNative {
	w := &WrappedNative{
		addr:  chain.DeriveAddress("wrapped/" + name),
		st:    st,
		token: chain.DeriveAddress("token/" + name),
	}
	st.Register(w)
	return w
}

func (w *WrappedNative) Address() common.Address { return w.addr }
func (w *WrappedNative) Token() common.Address   { return w.token }

func (w *WrappedNative) Wrap(sender common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return clierr.New(clierr.CodeValidation, "wrap amount must be positive")
	}
	if err := w.st.Transfer(chain.NativeAsset, sender, w.addr, amount); err != nil {
		return clierr.Wrap(clierr.CodeExecution, "wrap deposit", err)
	}
	w.st.Mint(w.token, sender, amount)
	return nil
}

func (w *WrappedNative) Unwrap(sender common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return clierr.New(clierr.CodeValidation, "unwrap amount must be positive")
	}
	if err := w.st.Burn(w.token, sender, amount); err != nil {
		return clierr.Wrap(clierr.CodeExecution, "unwrap burn", err)
	}
	if err := w.st.Transfer(chain.NativeAsset, w.addr, sender, amount); err != nil {
		return clierr.Wrap(clierr.CodeExecution, "unwrap withdraw", err)
	}
	return nil
}
