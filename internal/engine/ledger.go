package engine

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type profitKey struct {
	caller common.Address
	asset  common.Address
}

// ProfitLedger accumulates realized profit per (caller, asset). Record is
// called only after a confirmed full repay.
type ProfitLedger struct {
	entries map[profitKey]*big.Int
}

func NewProfitLedger() *ProfitLedger {
	return &ProfitLedger{entries: make(map[profitKey]*big.Int)}
}

// Record adds amount to the caller's cumulative profit for asset.
func (l *ProfitLedger) Record(caller, asset common.Address, amount *big.Int) {
	key := profitKey{caller: caller, asset: asset}
	total, ok := l.entries[key]
	if !ok {
		total = big.NewInt(0)
		l.entries[key] = total
	}
	total.Add(total, amount)
}

// Read returns the cumulative profit, zero for unknown keys.
func (l *ProfitLedger) Read(caller, asset common.Address) *big.Int {
	if total, ok := l.entries[profitKey{caller: caller, asset: asset}]; ok {
		return new(big.Int).Set(total)
	}
	return big.NewInt(0)
}
