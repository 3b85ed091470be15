package engine

import (
	"bytes"
	"context"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/flashexec/flashexec/internal/chain"
	"github.com/flashexec/flashexec/internal/chain/venues"
	"github.com/flashexec/flashexec/internal/codec"
	"github.com/flashexec/flashexec/internal/dex"
	clierr "github.com/flashexec/flashexec/internal/errors"
)

// flight is the state of the single in-flight operation, set at Execute entry
// and consumed by the lender callback.
type flight struct {
	strategyID uint64
	caller     common.Address
	payload    []byte
	preBalance *big.Int
	profit     *big.Int
	results    []ActionResult
}

// Engine ties the registry, governor, dispatcher, gateway and ledger together
// behind a single-flight Execute entry point. It is registered in the chain
// state as the flash-loan receiver contract.
type Engine struct {
	addr       common.Address
	st         *chain.State
	lender     *venues.FlashLender
	safety     *Safety
	registry   *Registry
	ledger     *ProfitLedger
	dispatcher *Dispatcher
	events     *eventBuffer
	log        zerolog.Logger

	executing atomic.Bool
	inFlight  *flight
}

func NewEngine(st *chain.State, lender *venues.FlashLender, safety *Safety, registry *Registry, ledger *ProfitLedger, adapter *dex.Adapter, venueReg *dex.VenueRegistry, sink EventSink, log zerolog.Logger) *Engine {
	e := &Engine{
		addr:     chain.DeriveAddress("engine"),
		st:       st,
		lender:   lender,
		safety:   safety,
		registry: registry,
		ledger:   ledger,
		events:   newEventBuffer(sink),
		log:      log,
	}
	e.dispatcher = NewDispatcher(st, adapter, venueReg, safety, e.addr)
	st.Register(e)
	return e
}

func (e *Engine) Address() common.Address { return e.addr }

func (e *Engine) Lender() *venues.FlashLender { return e.lender }

// gate is the pre-execution check. Nothing here makes an external call or
// mutates state.
func (e *Engine) gate(caller common.Address, strategyID uint64, assets []common.Address, amounts []*big.Int) (Strategy, error) {
	if !e.safety.IsAuthorized(caller) {
		return Strategy{}, clierr.New(clierr.CodeAuth, "caller is not an authorized executor")
	}
	if e.safety.EmergencyStop() {
		return Strategy{}, clierr.New(clierr.CodeSafety, "emergency stop is active")
	}
	strategy, err := e.registry.Get(strategyID)
	if err != nil {
		return Strategy{}, err
	}
	if !strategy.Active {
		return Strategy{}, clierr.Newf(clierr.CodeSafety, "strategy %d is paused", strategyID)
	}
	if strategy.Deadline > 0 && time.Now().Unix() > strategy.Deadline {
		return Strategy{}, clierr.Newf(clierr.CodeSafety, "strategy %d deadline has passed", strategyID)
	}
	if len(assets) == 0 || len(assets) != len(amounts) {
		return Strategy{}, clierr.New(clierr.CodeValidation, "assets and amounts must be equal, nonzero length")
	}
	for _, amount := range amounts {
		if amount == nil || amount.Sign() <= 0 {
			return Strategy{}, clierr.New(clierr.CodeValidation, "borrow amount must be positive")
		}
	}
	gasPrice := e.st.GasPrice()
	ceiling := e.safety.Params().MaxGasPrice
	if ceiling.Sign() > 0 && gasPrice.Cmp(ceiling) > 0 {
		return Strategy{}, clierr.Newf(clierr.CodeSafety, "gas price %s above ceiling %s", gasPrice, ceiling)
	}
	if strategy.MaxGasPrice.Sign() > 0 && gasPrice.Cmp(strategy.MaxGasPrice) > 0 {
		return Strategy{}, clierr.Newf(clierr.CodeSafety, "gas price %s above strategy ceiling %s", gasPrice, strategy.MaxGasPrice)
	}
	return strategy, nil
}

// effectiveMinProfitBPS is the stricter of the strategy and global floors.
func effectiveMinProfitBPS(strategy Strategy, params SafetyParams) uint32 {
	if strategy.MinProfitBPS > params.MinProfitBPS {
		return strategy.MinProfitBPS
	}
	return params.MinProfitBPS
}

// Execute runs a strategy inside one atomic borrow-act-repay operation. On
// any fatal error the snapshot revert discards every effect and no events are
// emitted.
func (e *Engine) Execute(ctx context.Context, caller common.Address, strategyID uint64, assets []common.Address, amounts []*big.Int) (*ExecutionReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, clierr.Wrap(clierr.CodeExecution, "execution canceled", err)
	}
	strategy, err := e.gate(caller, strategyID, assets, amounts)
	if err != nil {
		return nil, err
	}

	if !e.executing.CompareAndSwap(false, true) {
		return nil, clierr.New(clierr.CodeReentrancy, "an execution is already in flight")
	}
	defer e.executing.Store(false)

	payload, err := codec.EncodeBorrowPayload(codec.BorrowPayload{StrategyID: strategyID, Caller: caller})
	if err != nil {
		return nil, err
	}

	snap := e.st.Snapshot()
	e.inFlight = &flight{
		strategyID: strategyID,
		caller:     caller,
		payload:    payload,
		preBalance: e.st.BalanceOf(assets[0], e.addr),
	}
	defer func() { e.inFlight = nil }()

	abort := func(cause error) (*ExecutionReport, error) {
		e.st.RevertToSnapshot(snap)
		e.events.drop()
		e.log.Warn().Uint64("strategy_id", strategyID).Str("caller", caller.Hex()).Err(cause).Msg("execution aborted")
		return nil, cause
	}

	e.events.emit(FlashLoanInitiatedEvent{Initiator: caller, StrategyID: strategyID})

	modes := make([]uint8, len(assets))
	if err := e.lender.Borrow(e.addr, e, assets, amounts, modes, e.addr, payload, 0); err != nil {
		return abort(err)
	}

	profit := e.inFlight.profit
	if profit == nil {
		return abort(clierr.New(clierr.CodeInternal, "lender returned without invoking the callback"))
	}
	if profit.Sign() < 0 {
		return abort(clierr.Newf(clierr.CodeSafety, "execution lost %s of the primary asset", new(big.Int).Neg(profit)))
	}
	if minBPS := effectiveMinProfitBPS(strategy, e.safety.Params()); minBPS > 0 {
		floor := new(big.Int).Mul(amounts[0], big.NewInt(int64(minBPS)))
		floor.Div(floor, big.NewInt(10_000))
		if profit.Cmp(floor) < 0 {
			return abort(clierr.Newf(clierr.CodeSafety, "profit %s below minimum %s", profit, floor))
		}
	}

	e.ledger.Record(caller, assets[0], profit)
	e.registry.recordExecution(strategyID, profit)
	e.events.emit(StrategyExecutedEvent{StrategyID: strategyID, Executor: caller, Profit: new(big.Int).Set(profit)})

	e.st.DiscardSnapshot(snap)
	e.events.flush()
	e.log.Info().Uint64("strategy_id", strategyID).Str("caller", caller.Hex()).Str("profit", profit.String()).Msg("execution committed")

	return &ExecutionReport{
		StrategyID: strategyID,
		Executor:   caller,
		Asset:      assets[0],
		Principal:  new(big.Int).Set(amounts[0]),
		Premium:    e.lender.Premium(amounts[0]),
		Profit:     profit,
		Results:    e.inFlight.results,
	}, nil
}

// OnBorrowCallback is the lender-invoked half of the flash-loan protocol.
// Sender and initiator are verified before any mutation; profit is the
// primary-asset balance delta net of the amount owed back.
func (e *Engine) OnBorrowCallback(sender common.Address, assets []common.Address, amounts, premiums []*big.Int, initiator common.Address, params []byte) error {
	if sender != e.lender.Address() {
		return clierr.New(clierr.CodeAuth, "callback sender is not the registered lender")
	}
	if initiator != e.addr {
		return clierr.New(clierr.CodeAuth, "callback initiator is not this engine")
	}
	fl := e.inFlight
	if fl == nil {
		return clierr.New(clierr.CodeAuth, "no borrow request in flight")
	}
	payload, err := codec.DecodeBorrowPayload(params)
	if err != nil {
		return err
	}
	if payload.StrategyID != fl.strategyID || payload.Caller != fl.caller || !bytes.Equal(params, fl.payload) {
		return clierr.New(clierr.CodeValidation, "callback payload does not match the in-flight request")
	}

	strategy, err := e.registry.Get(fl.strategyID)
	if err != nil {
		return err
	}
	results, err := e.dispatcher.Run(fl.strategyID, strategy.Actions, e.events.emit)
	fl.results = results
	if err != nil {
		return err
	}

	// The lender pulls amount+premium per asset after this returns; check
	// sufficiency here so shortfalls surface as repayment errors.
	for i, asset := range assets {
		owed := new(big.Int).Add(amounts[i], premiums[i])
		if e.st.BalanceOf(asset, e.addr).Cmp(owed) < 0 {
			return clierr.Newf(clierr.CodeRepayment,
				"post-action balance of %s cannot cover %s owed", asset.Hex(), owed)
		}
	}

	owed0 := new(big.Int).Add(amounts[0], premiums[0])
	profit := e.st.BalanceOf(assets[0], e.addr)
	profit.Sub(profit, fl.preBalance)
	profit.Sub(profit, owed0)
	fl.profit = profit
	return nil
}

// EmergencyWithdraw sweeps the engine's full balance of asset to the
// destination. Admin only, and only while the emergency stop is set.
func (e *Engine) EmergencyWithdraw(caller, asset, to common.Address) (*big.Int, error) {
	if caller != e.safety.Admin() {
		return nil, clierr.New(clierr.CodeAuth, "only the admin can withdraw")
	}
	if !e.safety.EmergencyStop() {
		return nil, clierr.New(clierr.CodeSafety, "emergency withdraw requires the emergency stop to be active")
	}
	balance := e.st.BalanceOf(asset, e.addr)
	if balance.Sign() == 0 {
		return big.NewInt(0), nil
	}
	if err := e.st.Transfer(asset, e.addr, to, balance); err != nil {
		return nil, clierr.Wrap(clierr.CodeExecution, "withdraw transfer", err)
	}
	e.log.Warn().Str("asset", asset.Hex()).Str("to", to.Hex()).Str("amount", balance.String()).Msg("emergency withdraw")
	return balance, nil
}

// ContractInfo is the engine's identity summary for the query surface.
type ContractInfo struct {
	Engine         common.Address
	Admin          common.Address
	Lender         common.Address
	EmergencyStop  bool
	NextStrategyID uint64
	PremiumBPS     uint32
}

func (e *Engine) Info() ContractInfo {
	return ContractInfo{
		Engine:         e.addr,
		Admin:          e.safety.Admin(),
		Lender:         e.lender.Address(),
		EmergencyStop:  e.safety.EmergencyStop(),
		NextStrategyID: e.registry.NextID(),
		PremiumBPS:     e.lender.PremiumBPS(),
	}
}
