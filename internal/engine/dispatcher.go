package engine

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/flashexec/flashexec/internal/chain"
	"github.com/flashexec/flashexec/internal/chain/venues"
	"github.com/flashexec/flashexec/internal/codec"
	"github.com/flashexec/flashexec/internal/dex"
	clierr "github.com/flashexec/flashexec/internal/errors"
)

// Registry names resolved when an action payload leaves the venue blank.
const (
	defaultLendingVenue = "lending"
	defaultStakingVenue = "staking"
	defaultWrapVenue    = "wrapped"
)

// Dispatcher executes a strategy's actions in list order on behalf of the
// engine address. Venue errors become action failures; only a failed action
// marked critical aborts the run.
type Dispatcher struct {
	st      *chain.State
	adapter *dex.Adapter
	venues  *dex.VenueRegistry
	safety  *Safety
	self    common.Address
}

func NewDispatcher(st *chain.State, adapter *dex.Adapter, reg *dex.VenueRegistry, safety *Safety, self common.Address) *Dispatcher {
	return &Dispatcher{st: st, adapter: adapter, venues: reg, safety: safety, self: self}
}

// Run dispatches every action in order. It returns the per-action results and
// a non-nil error when a critical action failed, which aborts the operation.
func (d *Dispatcher) Run(strategyID uint64, actions []Action, emit func(Event)) ([]ActionResult, error) {
	results := make([]ActionResult, 0, len(actions))
	for i, action := range actions {
		err := d.dispatch(action)
		result := ActionResult{Index: i, Type: action.Type, Success: err == nil, Err: err}
		results = append(results, result)
		if emit != nil {
			emit(ActionExecutedEvent{
				StrategyID:  strategyID,
				ActionIndex: i,
				ActionType:  action.Type,
				Success:     result.Success,
			})
		}
		if err != nil && action.Critical {
			return results, clierr.Wrap(clierr.CodeExecution,
				"critical action "+action.Type.String()+" failed", err)
		}
	}
	return results, nil
}

func (d *Dispatcher) dispatch(action Action) error {
	switch action.Type {
	case ActionSwap:
		return d.executeSwap(action)
	case ActionLend:
		return d.executeLend(action, false)
	case ActionBorrow:
		return d.executeLend(action, true)
	case ActionStake:
		return d.executeStake(action, false)
	case ActionHarvest:
		return d.executeStake(action, true)
	case ActionWrap:
		return d.executeWrap(action, false)
	case ActionUnwrap:
		return d.executeWrap(action, true)
	case ActionCustom:
		return d.executeCustom(action)
	default:
		return clierr.Newf(clierr.CodeValidation, "unsupported action type %d", action.Type)
	}
}

// minOut applies the global max-slippage threshold to an expected quote when
// the caller left minAmountOut unset.
func (d *Dispatcher) minOut(requested, expected *big.Int) *big.Int {
	if requested != nil && requested.Sign() > 0 {
		return requested
	}
	slippage := d.safety.Params().MaxSlippageBPS
	if slippage == 0 || slippage >= 10_000 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(expected, big.NewInt(int64(10_000-slippage)))
	return out.Div(out, big.NewInt(10_000))
}

func (d *Dispatcher) executeSwap(action Action) error {
	p, err := codec.DecodeSwapParams(action.Data)
	if err != nil {
		return err
	}
	recipient := p.Recipient
	if recipient == (common.Address{}) {
		recipient = d.self
	}
	deadline := int64(p.Deadline)

	switch p.Dex {
	case codec.DexConstantProduct:
		path := p.Path
		if len(path) == 0 {
			path = []common.Address{p.TokenIn, p.TokenOut}
		}
		expected, err := d.adapter.QuoteConstantProduct("", p.AmountIn, path)
		if err != nil {
			return err
		}
		_, err = d.adapter.SwapConstantProduct("", d.self, p.AmountIn, d.minOut(p.MinAmountOut, expected), path, recipient, deadline)
		return err
	case codec.DexConcentrated:
		fee := p.Fee
		var expected *big.Int
		if fee == 0 {
			fee, expected, err = d.adapter.SelectTier("", p.TokenIn, p.TokenOut, p.AmountIn)
		} else {
			expected, err = d.adapter.QuoteConcentrated("", p.TokenIn, p.TokenOut, fee, p.AmountIn)
		}
		if err != nil {
			return err
		}
		_, err = d.adapter.SwapConcentrated("", d.self, dex.ExactInputSingleParams{
			TokenIn:          p.TokenIn,
			TokenOut:         p.TokenOut,
			Fee:              fee,
			Recipient:        recipient,
			AmountIn:         p.AmountIn,
			AmountOutMinimum: d.minOut(p.MinAmountOut, expected),
			Deadline:         deadline,
		})
		return err
	default:
		return clierr.Newf(clierr.CodeValidation, "unsupported dex kind %d", p.Dex)
	}
}

func (d *Dispatcher) venueContract(name, fallback string) (chain.Contract, error) {
	if name == "" {
		name = fallback
	}
	addr, err := d.venues.Resolve(name)
	if err != nil {
		return nil, err
	}
	contract, ok := d.st.ContractAt(addr)
	if !ok {
		return nil, clierr.Newf(clierr.CodeExecution, "venue %q has no contract at %s", name, addr.Hex())
	}
	return contract, nil
}

func (d *Dispatcher) executeLend(action Action, borrow bool) error {
	p, err := codec.DecodeLendParams(action.Data)
	if err != nil {
		return err
	}
	contract, err := d.venueContract(p.Venue, defaultLendingVenue)
	if err != nil {
		return err
	}
	venue, ok := contract.(venues.LendingVenue)
	if !ok {
		return clierr.Newf(clierr.CodeExecution, "venue %q is not a lending venue", p.Venue)
	}
	if borrow {
		if err := venue.Borrow(d.self, p.Asset, p.Amount); err != nil {
			return clierr.Wrap(clierr.CodeExecution, "borrow rejected by venue", err)
		}
		return nil
	}
	if err := venue.Supply(d.self, p.Asset, p.Amount); err != nil {
		return clierr.Wrap(clierr.CodeExecution, "supply rejected by venue", err)
	}
	return nil
}

func (d *Dispatcher) executeStake(action Action, harvest bool) error {
	p, err := codec.DecodeStakeParams(action.Data)
	if err != nil {
		return err
	}
	contract, err := d.venueContract(p.Venue, defaultStakingVenue)
	if err != nil {
		return err
	}
	venue, ok := contract.(venues.StakingVenue)
	if !ok {
		return clierr.Newf(clierr.CodeExecution, "venue %q is not a staking venue", p.Venue)
	}
	amount := big.NewInt(0)
	if !harvest && p.Amount != nil {
		amount = p.Amount
	}
	if err := venue.Deposit(d.self, amount); err != nil {
		return clierr.Wrap(clierr.CodeExecution, "deposit rejected by venue", err)
	}
	return nil
}

func (d *Dispatcher) executeWrap(action Action, unwrap bool) error {
	amount, err := codec.DecodeAmount(action.Data)
	if err != nil {
		return err
	}
	var contract chain.Contract
	if action.Target != (common.Address{}) {
		var ok bool
		contract, ok = d.st.ContractAt(action.Target)
		if !ok {
			return clierr.Newf(clierr.CodeExecution, "no contract at %s", action.Target.Hex())
		}
	} else {
		contract, err = d.venueContract("", defaultWrapVenue)
		if err != nil {
			return err
		}
	}
	venue, ok := contract.(venues.WrapVenue)
	if !ok {
		return clierr.New(clierr.CodeExecution, "target is not a wrapped-native venue")
	}
	if unwrap {
		if err := venue.Unwrap(d.self, amount); err != nil {
			return clierr.Wrap(clierr.CodeExecution, "unwrap failed", err)
		}
		return nil
	}
	if err := venue.Wrap(d.self, amount); err != nil {
		return clierr.Wrap(clierr.CodeExecution, "wrap failed", err)
	}
	return nil
}

func (d *Dispatcher) executeCustom(action Action) error {
	contract, ok := d.st.ContractAt(action.Target)
	if !ok {
		return clierr.Newf(clierr.CodeExecution, "no contract at %s", action.Target.Hex())
	}
	callable, ok := contract.(chain.Callable)
	if !ok {
		return clierr.Newf(clierr.CodeExecution, "contract at %s does not accept raw calls", action.Target.Hex())
	}
	value := action.Value
	if value == nil {
		value = big.NewInt(0)
	}
	if value.Sign() > 0 {
		if err := d.st.Transfer(chain.NativeAsset, d.self, action.Target, value); err != nil {
			return clierr.Wrap(clierr.CodeExecution, "attach value", err)
		}
	}
	if _, err := callable.Call(d.self, action.Data, value); err != nil {
		return clierr.Wrap(clierr.CodeExecution, "custom call failed", err)
	}
	return nil
}
