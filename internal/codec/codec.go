// Package codec packs and unpacks the opaque payloads carried by actions and
// the flash-loan callback, using standard ABI encoding so the wire shape
// matches what venue contracts expect.
package codec

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/flashexec/flashexec/internal/errors"
)

// DexKind selects the venue family for a swap action.
type DexKind uint8

const (
	DexConstantProduct DexKind = iota
	DexConcentrated
)

// SwapParams is the payload of a Swap action.
type SwapParams struct {
	Dex          DexKind
	TokenIn      common.Address
	TokenOut     common.Address
	AmountIn     *big.Int
	MinAmountOut *big.Int
	Path         []common.Address
	Fee          uint32
	Recipient    common.Address
	Deadline     uint64
	ExtraData    []byte
}

// LendParams is the payload of a Lend or Borrow action. Venue is a registry
// name resolved at call time.
type LendParams struct {
	Asset  common.Address
	Amount *big.Int
	Venue  string
}

// StakeParams is the payload of a Stake or Harvest action.
type StakeParams struct {
	Venue  string
	Amount *big.Int
}

// BorrowPayload travels opaquely through the lender and back into the
// callback.
type BorrowPayload struct {
	StrategyID uint64
	Caller     common.Address
}

func mustType(name string) abi.Type {
	t, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(err)
	}
	return t
}

var (
	typeUint8      = mustType("uint8")
	typeUint32     = mustType("uint32")
	typeUint64     = mustType("uint64")
	typeUint256    = mustType("uint256")
	typeAddress    = mustType("address")
	typeAddressArr = mustType("address[]")
	typeString     = mustType("string")
	typeBytes      = mustType("bytes")
)

var swapArgs = abi.Arguments{
	{Type: typeUint8},
	{Type: typeAddress},
	{Type: typeAddress},
	{Type: typeUint256},
	{Type: typeUint256},
	{Type: typeAddressArr},
	{Type: typeUint32},
	{Type: typeAddress},
	{Type: typeUint64},
	{Type: typeBytes},
}

var lendArgs = abi.Arguments{
	{Type: typeAddress},
	{Type: typeUint256},
	{Type: typeString},
}

var stakeArgs = abi.Arguments{
	{Type: typeString},
	{Type: typeUint256},
}

var amountArgs = abi.Arguments{
	{Type: typeUint256},
}

var borrowPayloadArgs = abi.Arguments{
	{Type: typeUint64},
	{Type: typeAddress},
}

func EncodeSwapParams(p SwapParams) ([]byte, error) {
	amountIn := p.AmountIn
	if amountIn == nil {
		amountIn = big.NewInt(0)
	}
	minOut := p.MinAmountOut
	if minOut == nil {
		minOut = big.NewInt(0)
	}
	path := p.Path
	if path == nil {
		path = []common.Address{}
	}
	extra := p.ExtraData
	if extra == nil {
		extra = []byte{}
	}
	data, err := swapArgs.Pack(uint8(p.Dex), p.TokenIn, p.TokenOut, amountIn, minOut, path, p.Fee, p.Recipient, p.Deadline, extra)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack swap params", err)
	}
	return data, nil
}

func DecodeSwapParams(data []byte) (SwapParams, error) {
	values, err := swapArgs.Unpack(data)
	if err != nil {
		return SwapParams{}, clierr.Wrap(clierr.CodeValidation, "malformed swap payload", err)
	}
	return SwapParams{
		Dex:          DexKind(values[0].(uint8)),
		TokenIn:      values[1].(common.Address),
		TokenOut:     values[2].(common.Address),
		AmountIn:     values[3].(*big.Int),
		MinAmountOut: values[4].(*big.Int),
		Path:         values[5].([]common.Address),
		Fee:          values[6].(uint32),
		Recipient:    values[7].(common.Address),
		Deadline:     values[8].(uint64),
		ExtraData:    values[9].([]byte),
	}, nil
}

func EncodeLendParams(p LendParams) ([]byte, error) {
	amount := p.Amount
	if amount == nil {
		amount = big.NewInt(0)
	}
	data, err := lendArgs.Pack(p.Asset, amount, p.Venue)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack lend params", err)
	}
	return data, nil
}

func DecodeLendParams(data []byte) (LendParams, error) {
	values, err := lendArgs.Unpack(data)
	if err != nil {
		return LendParams{}, clierr.Wrap(clierr.CodeValidation, "malformed lend payload", err)
	}
	return LendParams{
		Asset:  values[0].(common.Address),
		Amount: values[1].(*big.Int),
		Venue:  values[2].(string),
	}, nil
}

func EncodeStakeParams(p StakeParams) ([]byte, error) {
	amount := p.Amount
	if amount == nil {
		amount = big.NewInt(0)
	}
	data, err := stakeArgs.Pack(p.Venue, amount)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack stake params", err)
	}
	return data, nil
}

func DecodeStakeParams(data []byte) (StakeParams, error) {
	values, err := stakeArgs.Unpack(data)
	if err != nil {
		return StakeParams{}, clierr.Wrap(clierr.CodeValidation, "malformed stake payload", err)
	}
	return StakeParams{
		Venue:  values[0].(string),
		Amount: values[1].(*big.Int),
	}, nil
}

func EncodeAmount(amount *big.Int) ([]byte, error) {
	if amount == nil {
		amount = big.NewInt(0)
	}
	data, err := amountArgs.Pack(amount)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack amount", err)
	}
	return data, nil
}

func DecodeAmount(data []byte) (*big.Int, error) {
	values, err := amountArgs.Unpack(data)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeValidation, "malformed amount payload", err)
	}
	return values[0].(*big.Int), nil
}

func EncodeBorrowPayload(p BorrowPayload) ([]byte, error) {
	data, err := borrowPayloadArgs.Pack(p.StrategyID, p.Caller)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack borrow payload", err)
	}
	return data, nil
}

func DecodeBorrowPayload(data []byte) (BorrowPayload, error) {
	values, err := borrowPayloadArgs.Unpack(data)
	if err != nil {
		return BorrowPayload{}, clierr.Wrap(clierr.CodeValidation, "malformed borrow payload", err)
	}
	return BorrowPayload{
		StrategyID: values[0].(uint64),
		Caller:     values[1].(common.Address),
	}, nil
}
