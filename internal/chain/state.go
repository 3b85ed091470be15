// Package chain provides the deterministic execution environment the engine
// runs against: per-asset balances, registered contracts, and an atomic
// snapshot/revert primitive that discards every effect of an aborted
// operation.
package chain

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// NativeAsset is the sentinel address for the environment's native asset.
var NativeAsset = common.Address{}

// Contract is anything registered at an address in the environment.
type Contract interface {
	Address() common.Address
}

// Callable is a contract that accepts raw calls (the Custom action path).
type Callable interface {
	Contract
	Call(sender common.Address, data []byte, value *big.Int) ([]byte, error)
}

// State holds asset balances and registered contracts. It is not safe for
// concurrent use; the embedding environment serializes top-level operations.
type State struct {
	balances  map[common.Address]map[common.Address]*big.Int
	contracts map[common.Address]Contract
	gasPrice  *big.Int
	snapshots []map[common.Address]map[common.Address]*big.Int
}

func NewState() *State {
	return &State{
		balances:  make(map[common.Address]map[common.Address]*big.Int),
		contracts: make(map[common.Address]Contract),
		gasPrice:  big.NewInt(0),
	}
}

// DeriveAddress returns a reproducible pseudo-address for a fixture label.
func DeriveAddress(label string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte(label))[12:])
}

func (s *State) Register(c Contract) {
	s.contracts[c.Address()] = c
}

func (s *State) ContractAt(addr common.Address) (Contract, bool) {
	c, ok := s.contracts[addr]
	return c, ok
}

// ContractAddresses returns all registered addresses in a stable order.
func (s *State) ContractAddresses() []common.Address {
	addrs := make([]common.Address, 0, len(s.contracts))
	for addr := range s.contracts {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool {
		return addrs[i].Cmp(addrs[j]) < 0
	})
	return addrs
}

func (s *State) SetGasPrice(price *big.Int) {
	s.gasPrice = new(big.Int).Set(price)
}

func (s *State) GasPrice() *big.Int {
	return new(big.Int).Set(s.gasPrice)
}

// BalanceOf returns a copy of holder's balance of asset. Unknown keys are zero.
func (s *State) BalanceOf(asset, holder common.Address) *big.Int {
	holders, ok := s.balances[asset]
	if !ok {
		return big.NewInt(0)
	}
	bal, ok := holders[holder]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(bal)
}

// Mint credits holder with amount of asset.
func (s *State) Mint(asset, holder common.Address, amount *big.Int) {
	if amount.Sign() <= 0 {
		return
	}
	holders, ok := s.balances[asset]
	if !ok {
		holders = make(map[common.Address]*big.Int)
		s.balances[asset] = holders
	}
	bal, ok := holders[holder]
	if !ok {
		bal = big.NewInt(0)
		holders[holder] = bal
	}
	bal.Add(bal, amount)
}

// Transfer moves amount of asset between holders. It either applies fully or
// not at all.
func (s *State) Transfer(asset, from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("transfer amount must be non-negative")
	}
	if amount.Sign() == 0 {
		return nil
	}
	holders, ok := s.balances[asset]
	if !ok {
		return fmt.Errorf("insufficient balance: %s holds 0 of %s", from.Hex(), asset.Hex())
	}
	bal, ok := holders[from]
	if !ok || bal.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient balance: %s holds %s of %s, need %s",
			from.Hex(), s.BalanceOf(asset, from).String(), asset.Hex(), amount.String())
	}
	bal.Sub(bal, amount)
	toBal, ok := holders[to]
	if !ok {
		toBal = big.NewInt(0)
		holders[to] = toBal
	}
	toBal.Add(toBal, amount)
	return nil
}

// Burn removes amount of asset from holder.
func (s *State) Burn(asset, holder common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("burn amount must be non-negative")
	}
	if amount.Sign() == 0 {
		return nil
	}
	holders, ok := s.balances[asset]
	if !ok {
		return fmt.Errorf("insufficient balance to burn")
	}
	bal, ok := holders[holder]
	if !ok || bal.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient balance to burn")
	}
	bal.Sub(bal, amount)
	return nil
}

// Snapshot records the current balance set and returns an identifier for
// RevertToSnapshot. All venue-internal bookkeeping is expressed as balances
// of derived sub-accounts, so reverting balances reverts everything.
func (s *State) Snapshot() int {
	copied := make(map[common.Address]map[common.Address]*big.Int, len(s.balances))
	for asset, holders := range s.balances {
		ch := make(map[common.Address]*big.Int, len(holders))
		for holder, bal := range holders {
			ch[holder] = new(big.Int).Set(bal)
		}
		copied[asset] = ch
	}
	s.snapshots = append(s.snapshots, copied)
	return len(s.snapshots) - 1
}

// RevertToSnapshot undoes every balance change made since the snapshot was
// taken and drops it together with any later snapshots.
func (s *State) RevertToSnapshot(id int) {
	if id < 0 || id >= len(s.snapshots) {
		return
	}
	s.balances = s.snapshots[id]
	s.snapshots = s.snapshots[:id]
}

// DiscardSnapshot commits the work since the snapshot by dropping it.
func (s *State) DiscardSnapshot(id int) {
	if id < 0 || id >= len(s.snapshots) {
		return
	}
	s.snapshots = s.snapshots[:id]
}
