package engine

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/flashexec/flashexec/internal/chain"
	"github.com/flashexec/flashexec/internal/chain/venues"
	"github.com/flashexec/flashexec/internal/codec"
	"github.com/flashexec/flashexec/internal/dex"
	clierr "github.com/flashexec/flashexec/internal/errors"
)

type rig struct {
	st       *chain.State
	admin    common.Address
	tokenA   common.Address
	tokenB   common.Address
	tokenC   common.Address
	router   *venues.Router
	lender   *venues.FlashLender
	safety   *Safety
	registry *Registry
	ledger   *ProfitLedger
	recorder *Recorder
	engine   *Engine
}

func mustBig(t *testing.T, s string) *big.Int {
	t.Helper()
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		t.Fatalf("bad big int literal %q", s)
	}
	return n
}

// newRig wires a full in-memory environment: three tokens, a 30 bps
// constant-product router with an A/B/C triangle, and a 9 bps flash lender
// seeded with token A.
func newRig(t *testing.T) *rig {
	t.Helper()
	st := chain.NewState()
	admin := chain.DeriveAddress("account/admin")
	tokenA := chain.DeriveAddress("token/a")
	tokenB := chain.DeriveAddress("token/b")
	tokenC := chain.DeriveAddress("token/c")

	reserve := mustBig(t, "1000000000000000000000000") // 1e24
	doubled := new(big.Int).Mul(reserve, big.NewInt(2))

	router := venues.NewRouter(st, "swap-v2", 30)
	router.AddLiquidity(tokenA, tokenB, reserve, doubled)
	router.AddLiquidity(tokenB, tokenC, reserve, reserve)
	router.AddLiquidity(tokenC, tokenA, reserve, reserve)

	lender := venues.NewFlashLender(st, "main", 9)
	lender.SeedLiquidity(tokenA, mustBig(t, "1000000000000000000000")) // 1e21

	safety := NewSafety(admin, SafetyParams{MaxSlippageBPS: 100, MaxGasPrice: big.NewInt(0)})
	venueReg := dex.NewVenueRegistry(admin)
	if err := venueReg.Set(admin, dex.VenueConstantProduct, router.Address()); err != nil {
		t.Fatalf("register router: %v", err)
	}
	recorder := &Recorder{}
	registry := NewRegistry(safety, recorder)
	ledger := NewProfitLedger()
	adapter := dex.NewAdapter(st, venueReg)
	eng := NewEngine(st, lender, safety, registry, ledger, adapter, venueReg, recorder, zerolog.Nop())

	return &rig{
		st:       st,
		admin:    admin,
		tokenA:   tokenA,
		tokenB:   tokenB,
		tokenC:   tokenC,
		router:   router,
		lender:   lender,
		safety:   safety,
		registry: registry,
		ledger:   ledger,
		recorder: recorder,
		engine:   eng,
	}
}

func (r *rig) swapAction(t *testing.T, path []common.Address, amountIn *big.Int) ([]ActionType, []common.Address, [][]byte) {
	t.Helper()
	data, err := codec.EncodeSwapParams(codec.SwapParams{
		Dex:      codec.DexConstantProduct,
		TokenIn:  path[0],
		TokenOut: path[len(path)-1],
		AmountIn: amountIn,
		Path:     path,
	})
	if err != nil {
		t.Fatalf("encode swap params: %v", err)
	}
	return []ActionType{ActionSwap}, []common.Address{r.router.Address()}, [][]byte{data}
}

func (r *rig) createTriangleStrategy(t *testing.T, minProfitBPS uint32, maxGasPrice *big.Int) uint64 {
	t.Helper()
	principal := mustBig(t, "1000000000000000000")
	types, targets, datas := r.swapAction(t, []common.Address{r.tokenA, r.tokenB, r.tokenC, r.tokenA}, principal)
	id, err := r.registry.Create(r.admin, StrategyDraft{
		Name:         "triangle",
		ActionTypes:  types,
		Targets:      targets,
		Datas:        datas,
		MinProfitBPS: minProfitBPS,
		MaxGasPrice:  maxGasPrice,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return id
}

func (r *rig) createRoundTripStrategy(t *testing.T) uint64 {
	t.Helper()
	principal := mustBig(t, "1000000000000000000")
	types, targets, datas := r.swapAction(t, []common.Address{r.tokenA, r.tokenB, r.tokenA}, principal)
	id, err := r.registry.Create(r.admin, StrategyDraft{
		Name:        "roundtrip",
		ActionTypes: types,
		Targets:     targets,
		Datas:       datas,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return id
}

func (r *rig) execute(t *testing.T, caller common.Address, id uint64) (*ExecutionReport, error) {
	t.Helper()
	principal := mustBig(t, "1000000000000000000")
	return r.engine.Execute(context.Background(), caller, id, []common.Address{r.tokenA}, []*big.Int{principal})
}

func TestExecuteProfitableTriangle(t *testing.T) {
	r := newRig(t)
	id := r.createTriangleStrategy(t, 0, nil)
	r.recorder.Events = nil

	lenderBefore := r.st.BalanceOf(r.tokenA, r.lender.Address())

	report, err := r.execute(t, r.admin, id)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	// A->B->C->A across the seeded triangle nets this exact surplus after
	// repaying principal plus the 9 bps premium.
	wantProfit := mustBig(t, "981144101044349966")
	if report.Profit.Cmp(wantProfit) != 0 {
		t.Fatalf("unexpected profit: got %s want %s", report.Profit, wantProfit)
	}
	if report.Premium.Cmp(mustBig(t, "900000000000000")) != 0 {
		t.Fatalf("unexpected premium: %s", report.Premium)
	}
	if len(report.Results) != 1 || !report.Results[0].Success {
		t.Fatalf("unexpected action results: %+v", report.Results)
	}

	// The lender earned its premium.
	lenderAfter := r.st.BalanceOf(r.tokenA, r.lender.Address())
	wantLender := new(big.Int).Add(lenderBefore, report.Premium)
	if lenderAfter.Cmp(wantLender) != 0 {
		t.Fatalf("unexpected lender balance: got %s want %s", lenderAfter, wantLender)
	}

	// The surplus stays on the engine and is credited to the caller.
	if got := r.st.BalanceOf(r.tokenA, r.engine.Address()); got.Cmp(wantProfit) != 0 {
		t.Fatalf("unexpected engine balance: %s", got)
	}
	if got := r.ledger.Read(r.admin, r.tokenA); got.Cmp(wantProfit) != 0 {
		t.Fatalf("unexpected ledger entry: %s", got)
	}

	s, err := r.registry.Get(id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if s.ExecutionCount != 1 || s.TotalProfit.Cmp(wantProfit) != 0 {
		t.Fatalf("counters not updated: count=%d profit=%s", s.ExecutionCount, s.TotalProfit)
	}

	wantEvents := []string{"FlashLoanInitiated", "ActionExecuted", "StrategyExecuted"}
	if len(r.recorder.Events) != len(wantEvents) {
		t.Fatalf("unexpected event count: %d", len(r.recorder.Events))
	}
	for i, name := range wantEvents {
		if r.recorder.Events[i].EventName() != name {
			t.Fatalf("event %d: got %s want %s", i, r.recorder.Events[i].EventName(), name)
		}
	}
}

func TestExecuteRepaymentShortfallRollsBack(t *testing.T) {
	r := newRig(t)
	id := r.createRoundTripStrategy(t)
	r.recorder.Events = nil

	lenderBefore := r.st.BalanceOf(r.tokenA, r.lender.Address())
	reserveABefore, reserveBBefore, err := r.router.Reserves(r.tokenA, r.tokenB)
	if err != nil {
		t.Fatalf("Reserves failed: %v", err)
	}

	_, err = r.execute(t, r.admin, id)
	if !clierr.HasCode(err, clierr.CodeRepayment) {
		t.Fatalf("expected repayment error, got %v", err)
	}

	// Every effect of the aborted operation is discarded.
	if got := r.st.BalanceOf(r.tokenA, r.lender.Address()); got.Cmp(lenderBefore) != 0 {
		t.Fatalf("lender balance changed across abort: %s", got)
	}
	if got := r.st.BalanceOf(r.tokenA, r.engine.Address()); got.Sign() != 0 {
		t.Fatalf("engine retained funds across abort: %s", got)
	}
	reserveA, reserveB, err := r.router.Reserves(r.tokenA, r.tokenB)
	if err != nil {
		t.Fatalf("Reserves failed: %v", err)
	}
	if reserveA.Cmp(reserveABefore) != 0 || reserveB.Cmp(reserveBBefore) != 0 {
		t.Fatalf("pool reserves changed across abort: %s/%s", reserveA, reserveB)
	}
	if got := r.ledger.Read(r.admin, r.tokenA); got.Sign() != 0 {
		t.Fatalf("ledger credited on abort: %s", got)
	}
	if len(r.recorder.Events) != 0 {
		t.Fatalf("aborted execution emitted %d events", len(r.recorder.Events))
	}
	s, err := r.registry.Get(id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if s.ExecutionCount != 0 {
		t.Fatalf("counters bumped on abort: %d", s.ExecutionCount)
	}
}

func TestExecuteNegativeProfitAborts(t *testing.T) {
	r := newRig(t)
	id := r.createRoundTripStrategy(t)

	// Pre-fund the engine so the shortfall is repayable but the primary
	// asset still ends below where it started.
	preFund := mustBig(t, "1000000000000000000")
	r.st.Mint(r.tokenA, r.engine.Address(), preFund)

	_, err := r.execute(t, r.admin, id)
	if !clierr.HasCode(err, clierr.CodeSafety) {
		t.Fatalf("expected safety error for negative profit, got %v", err)
	}
	// The pre-existing balance survives the revert untouched.
	if got := r.st.BalanceOf(r.tokenA, r.engine.Address()); got.Cmp(preFund) != 0 {
		t.Fatalf("unexpected engine balance after abort: %s", got)
	}
}

func TestExecuteMinProfitFloor(t *testing.T) {
	r := newRig(t)
	// The triangle yields roughly 9811 bps on the principal; a 9900 bps
	// floor must reject it.
	id := r.createTriangleStrategy(t, 9900, nil)

	_, err := r.execute(t, r.admin, id)
	if !clierr.HasCode(err, clierr.CodeSafety) {
		t.Fatalf("expected safety error below profit floor, got %v", err)
	}
	if got := r.st.BalanceOf(r.tokenA, r.engine.Address()); got.Sign() != 0 {
		t.Fatalf("engine retained funds across abort: %s", got)
	}
}

func TestExecuteGlobalMinProfitFloor(t *testing.T) {
	r := newRig(t)
	id := r.createTriangleStrategy(t, 0, nil)
	if err := r.safety.UpdateParams(r.admin, 100, 9900, nil); err != nil {
		t.Fatalf("UpdateParams failed: %v", err)
	}
	if _, err := r.execute(t, r.admin, id); !clierr.HasCode(err, clierr.CodeSafety) {
		t.Fatalf("expected safety error below global floor, got %v", err)
	}
}

func TestExecuteEmergencyStop(t *testing.T) {
	r := newRig(t)
	id := r.createTriangleStrategy(t, 0, nil)
	if _, err := r.safety.ToggleEmergencyStop(r.admin); err != nil {
		t.Fatalf("ToggleEmergencyStop failed: %v", err)
	}
	r.recorder.Events = nil

	if _, err := r.execute(t, r.admin, id); !clierr.HasCode(err, clierr.CodeSafety) {
		t.Fatalf("expected safety error under emergency stop, got %v", err)
	}
	if len(r.recorder.Events) != 0 {
		t.Fatalf("stopped execution emitted events")
	}
}

func TestExecuteAuthorization(t *testing.T) {
	r := newRig(t)
	id := r.createTriangleStrategy(t, 0, nil)
	rando := chain.DeriveAddress("account/rando")

	if _, err := r.execute(t, rando, id); !clierr.HasCode(err, clierr.CodeAuth) {
		t.Fatalf("expected auth error for unknown executor, got %v", err)
	}

	if err := r.safety.SetAuthorizedExecutor(r.admin, rando, true); err != nil {
		t.Fatalf("SetAuthorizedExecutor failed: %v", err)
	}
	report, err := r.execute(t, rando, id)
	if err != nil {
		t.Fatalf("Execute failed for allowed executor: %v", err)
	}
	if got := r.ledger.Read(rando, r.tokenA); got.Cmp(report.Profit) != 0 {
		t.Fatalf("profit credited to wrong caller: %s", got)
	}
}

func TestExecuteGasCeilings(t *testing.T) {
	r := newRig(t)
	globalID := r.createTriangleStrategy(t, 0, nil)
	strategyID := r.createTriangleStrategy(t, 0, big.NewInt(10))

	r.st.SetGasPrice(big.NewInt(30))
	if _, err := r.execute(t, r.admin, strategyID); !clierr.HasCode(err, clierr.CodeSafety) {
		t.Fatalf("expected safety error above strategy ceiling, got %v", err)
	}

	if err := r.safety.UpdateParams(r.admin, 100, 0, big.NewInt(20)); err != nil {
		t.Fatalf("UpdateParams failed: %v", err)
	}
	if _, err := r.execute(t, r.admin, globalID); !clierr.HasCode(err, clierr.CodeSafety) {
		t.Fatalf("expected safety error above global ceiling, got %v", err)
	}

	// At or below the ceiling the execution goes through.
	r.st.SetGasPrice(big.NewInt(20))
	if _, err := r.execute(t, r.admin, globalID); err != nil {
		t.Fatalf("Execute failed at the ceiling: %v", err)
	}
}

func TestExecuteInvalidAndPausedStrategy(t *testing.T) {
	r := newRig(t)
	id := r.createTriangleStrategy(t, 0, nil)

	if _, err := r.execute(t, r.admin, 99); !clierr.HasCode(err, clierr.CodeValidation) {
		t.Fatalf("expected validation error for unknown id, got %v", err)
	}

	if err := r.registry.Pause(r.admin, id); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if _, err := r.execute(t, r.admin, id); !clierr.HasCode(err, clierr.CodeSafety) {
		t.Fatalf("expected safety error for paused strategy, got %v", err)
	}

	if err := r.registry.Resume(r.admin, id); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if _, err := r.execute(t, r.admin, id); err != nil {
		t.Fatalf("Execute failed after resume: %v", err)
	}
}

func TestExecuteBorrowValidation(t *testing.T) {
	r := newRig(t)
	id := r.createTriangleStrategy(t, 0, nil)
	ctx := context.Background()

	if _, err := r.engine.Execute(ctx, r.admin, id, nil, nil); !clierr.HasCode(err, clierr.CodeValidation) {
		t.Fatalf("expected validation error for empty assets, got %v", err)
	}
	_, err := r.engine.Execute(ctx, r.admin, id, []common.Address{r.tokenA}, []*big.Int{big.NewInt(0)})
	if !clierr.HasCode(err, clierr.CodeValidation) {
		t.Fatalf("expected validation error for zero amount, got %v", err)
	}
	_, err = r.engine.Execute(ctx, r.admin, id, []common.Address{r.tokenA, r.tokenB}, []*big.Int{big.NewInt(1)})
	if !clierr.HasCode(err, clierr.CodeValidation) {
		t.Fatalf("expected validation error for length mismatch, got %v", err)
	}
}

func TestExecuteCanceledContext(t *testing.T) {
	r := newRig(t)
	id := r.createTriangleStrategy(t, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.execute(t, r.admin, 0); err == nil {
		t.Fatal("expected error for strategy id zero")
	}
	principal := mustBig(t, "1000000000000000000")
	_, err := r.engine.Execute(ctx, r.admin, id, []common.Address{r.tokenA}, []*big.Int{principal})
	if !clierr.HasCode(err, clierr.CodeExecution) {
		t.Fatalf("expected execution error for canceled context, got %v", err)
	}
}

func TestCallbackAuthentication(t *testing.T) {
	r := newRig(t)
	assets := []common.Address{r.tokenA}
	amounts := []*big.Int{big.NewInt(1)}
	premiums := []*big.Int{big.NewInt(0)}

	err := r.engine.OnBorrowCallback(chain.DeriveAddress("account/rando"), assets, amounts, premiums, r.engine.Address(), nil)
	if !clierr.HasCode(err, clierr.CodeAuth) {
		t.Fatalf("expected auth error for wrong sender, got %v", err)
	}
	err = r.engine.OnBorrowCallback(r.lender.Address(), assets, amounts, premiums, chain.DeriveAddress("account/rando"), nil)
	if !clierr.HasCode(err, clierr.CodeAuth) {
		t.Fatalf("expected auth error for wrong initiator, got %v", err)
	}
	// Correct sender and initiator but no borrow in flight.
	err = r.engine.OnBorrowCallback(r.lender.Address(), assets, amounts, premiums, r.engine.Address(), nil)
	if !clierr.HasCode(err, clierr.CodeAuth) {
		t.Fatalf("expected auth error with no in-flight request, got %v", err)
	}
}

func TestNonCriticalFailureContinues(t *testing.T) {
	r := newRig(t)
	principal := mustBig(t, "1000000000000000000")

	failData, err := codec.EncodeLendParams(codec.LendParams{Asset: r.tokenA, Amount: big.NewInt(1), Venue: "nowhere"})
	if err != nil {
		t.Fatalf("encode lend params: %v", err)
	}
	swapData, err := codec.EncodeSwapParams(codec.SwapParams{
		Dex:      codec.DexConstantProduct,
		TokenIn:  r.tokenA,
		TokenOut: r.tokenA,
		AmountIn: principal,
		Path:     []common.Address{r.tokenA, r.tokenB, r.tokenC, r.tokenA},
	})
	if err != nil {
		t.Fatalf("encode swap params: %v", err)
	}

	id, err := r.registry.Create(r.admin, StrategyDraft{
		Name:        "tolerant",
		ActionTypes: []ActionType{ActionLend, ActionSwap},
		Targets:     []common.Address{{}, r.router.Address()},
		Datas:       [][]byte{failData, swapData},
		Critical:    []bool{false, true},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	report, err := r.execute(t, r.admin, id)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(report.Results) != 2 {
		t.Fatalf("expected two action results, got %d", len(report.Results))
	}
	if report.Results[0].Success || report.Results[0].Err == nil {
		t.Fatal("expected the non-critical action to fail")
	}
	if !report.Results[1].Success {
		t.Fatal("expected the swap to succeed")
	}
	if report.Profit.Sign() <= 0 {
		t.Fatalf("expected a profitable run, got %s", report.Profit)
	}
}

func TestCriticalFailureAbortsMidway(t *testing.T) {
	r := newRig(t)
	principal := mustBig(t, "1000000000000000000")

	swapData, err := codec.EncodeSwapParams(codec.SwapParams{
		Dex:      codec.DexConstantProduct,
		TokenIn:  r.tokenA,
		TokenOut: r.tokenA,
		AmountIn: principal,
		Path:     []common.Address{r.tokenA, r.tokenB, r.tokenC, r.tokenA},
	})
	if err != nil {
		t.Fatalf("encode swap params: %v", err)
	}
	failData, err := codec.EncodeLendParams(codec.LendParams{Asset: r.tokenA, Amount: big.NewInt(1), Venue: "nowhere"})
	if err != nil {
		t.Fatalf("encode lend params: %v", err)
	}

	id, err := r.registry.Create(r.admin, StrategyDraft{
		Name:        "fragile",
		ActionTypes: []ActionType{ActionSwap, ActionLend},
		Targets:     []common.Address{r.router.Address(), {}},
		Datas:       [][]byte{swapData, failData},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	reserveABefore, reserveBBefore, err := r.router.Reserves(r.tokenA, r.tokenB)
	if err != nil {
		t.Fatalf("Reserves failed: %v", err)
	}

	_, err = r.execute(t, r.admin, id)
	if !clierr.HasCode(err, clierr.CodeExecution) {
		t.Fatalf("expected execution error for critical failure, got %v", err)
	}

	// The first action's swap must be invisible after the rollback.
	reserveA, reserveB, err := r.router.Reserves(r.tokenA, r.tokenB)
	if err != nil {
		t.Fatalf("Reserves failed: %v", err)
	}
	if reserveA.Cmp(reserveABefore) != 0 || reserveB.Cmp(reserveBBefore) != 0 {
		t.Fatalf("first action leaked through the abort: %s/%s", reserveA, reserveB)
	}
}

func TestEmergencyWithdraw(t *testing.T) {
	r := newRig(t)
	funds := mustBig(t, "5000000000000000000")
	r.st.Mint(r.tokenA, r.engine.Address(), funds)
	treasury := chain.DeriveAddress("account/treasury")

	if _, err := r.engine.EmergencyWithdraw(r.admin, r.tokenA, treasury); !clierr.HasCode(err, clierr.CodeSafety) {
		t.Fatalf("expected safety error without the stop, got %v", err)
	}
	if _, err := r.safety.ToggleEmergencyStop(r.admin); err != nil {
		t.Fatalf("ToggleEmergencyStop failed: %v", err)
	}
	if _, err := r.engine.EmergencyWithdraw(treasury, r.tokenA, treasury); !clierr.HasCode(err, clierr.CodeAuth) {
		t.Fatalf("expected auth error for non-admin, got %v", err)
	}

	got, err := r.engine.EmergencyWithdraw(r.admin, r.tokenA, treasury)
	if err != nil {
		t.Fatalf("EmergencyWithdraw failed: %v", err)
	}
	if got.Cmp(funds) != 0 {
		t.Fatalf("unexpected withdrawn amount: %s", got)
	}
	if bal := r.st.BalanceOf(r.tokenA, treasury); bal.Cmp(funds) != 0 {
		t.Fatalf("treasury did not receive the sweep: %s", bal)
	}
	if bal := r.st.BalanceOf(r.tokenA, r.engine.Address()); bal.Sign() != 0 {
		t.Fatalf("engine still holds funds: %s", bal)
	}

	// A second sweep of an empty balance is a zero no-op.
	got, err = r.engine.EmergencyWithdraw(r.admin, r.tokenA, treasury)
	if err != nil {
		t.Fatalf("EmergencyWithdraw failed on empty balance: %v", err)
	}
	if got.Sign() != 0 {
		t.Fatalf("expected zero sweep, got %s", got)
	}
}

func TestEffectiveMinProfitBPS(t *testing.T) {
	s := Strategy{MinProfitBPS: 50}
	if got := effectiveMinProfitBPS(s, SafetyParams{MinProfitBPS: 30}); got != 50 {
		t.Fatalf("expected strategy floor to win: %d", got)
	}
	if got := effectiveMinProfitBPS(s, SafetyParams{MinProfitBPS: 80}); got != 80 {
		t.Fatalf("expected global floor to win: %d", got)
	}
}

func TestInfo(t *testing.T) {
	r := newRig(t)
	info := r.engine.Info()
	if info.Engine != r.engine.Address() || info.Admin != r.admin || info.Lender != r.lender.Address() {
		t.Fatal("unexpected identity fields")
	}
	if info.PremiumBPS != 9 {
		t.Fatalf("unexpected premium bps: %d", info.PremiumBPS)
	}
	if info.NextStrategyID != 1 {
		t.Fatalf("unexpected next strategy id: %d", info.NextStrategyID)
	}
}

func TestExecuteReentrancyLock(t *testing.T) {
	r := newRig(t)
	id := r.createTriangleStrategy(t, 0, nil)

	if !r.engine.executing.CompareAndSwap(false, true) {
		t.Fatal("execution lock unexpectedly held")
	}
	if _, err := r.execute(t, r.admin, id); !clierr.HasCode(err, clierr.CodeReentrancy) {
		t.Fatalf("expected reentrancy error while the lock is held, got %v", err)
	}
	r.engine.executing.Store(false)

	if _, err := r.execute(t, r.admin, id); err != nil {
		t.Fatalf("execute after release failed: %v", err)
	}
}

func TestExecuteLockReleasedAfterAbort(t *testing.T) {
	r := newRig(t)
	losing := r.createRoundTripStrategy(t)
	if _, err := r.execute(t, r.admin, losing); !clierr.HasCode(err, clierr.CodeRepayment) {
		t.Fatalf("expected repayment error, got %v", err)
	}
	if r.engine.executing.Load() {
		t.Fatal("execution lock still held after an aborted run")
	}

	winning := r.createTriangleStrategy(t, 0, nil)
	if _, err := r.execute(t, r.admin, winning); err != nil {
		t.Fatalf("execute after abort failed: %v", err)
	}
}

func TestExecuteMultiAssetProfitOnPrimaryOnly(t *testing.T) {
	r := newRig(t)
	floatB := mustBig(t, "1000000000000000000000")
	r.lender.SeedLiquidity(r.tokenB, floatB)
	id := r.createTriangleStrategy(t, 0, nil)

	principalA := mustBig(t, "1000000000000000000")
	principalB := mustBig(t, "500000000000000000")
	premiumB := r.lender.Premium(principalB)
	// The second leg is never traded, so its premium must come from a
	// balance the engine already holds.
	r.st.Mint(r.tokenB, r.engine.Address(), premiumB)

	report, err := r.engine.Execute(context.Background(), r.admin, id,
		[]common.Address{r.tokenA, r.tokenB}, []*big.Int{principalA, principalB})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	wantProfit := mustBig(t, "981144101044349966")
	if report.Profit.Cmp(wantProfit) != 0 {
		t.Fatalf("profit = %s, want %s", report.Profit, wantProfit)
	}
	if report.Asset != r.tokenA {
		t.Fatalf("report asset = %s, want the primary asset", report.Asset.Hex())
	}
	if got := r.ledger.Read(r.admin, r.tokenA); got.Cmp(wantProfit) != 0 {
		t.Fatalf("primary asset ledger = %s, want %s", got, wantProfit)
	}
	if got := r.ledger.Read(r.admin, r.tokenB); got.Sign() != 0 {
		t.Fatalf("secondary asset accrued profit %s, want none", got)
	}

	wantLenderB := new(big.Int).Add(floatB, premiumB)
	if got := r.st.BalanceOf(r.tokenB, r.lender.Address()); got.Cmp(wantLenderB) != 0 {
		t.Fatalf("lender token B balance = %s, want %s", got, wantLenderB)
	}
	if got := r.st.BalanceOf(r.tokenB, r.engine.Address()); got.Sign() != 0 {
		t.Fatalf("engine kept token B balance %s, want zero", got)
	}
}

func TestExecuteDeadline(t *testing.T) {
	r := newRig(t)
	principal := mustBig(t, "1000000000000000000")
	types, targets, datas := r.swapAction(t, []common.Address{r.tokenA, r.tokenB, r.tokenC, r.tokenA}, principal)

	expired, err := r.registry.Create(r.admin, StrategyDraft{
		Name:        "expired",
		ActionTypes: types,
		Targets:     targets,
		Datas:       datas,
		Deadline:    time.Now().Add(-time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := r.execute(t, r.admin, expired); !clierr.HasCode(err, clierr.CodeSafety) {
		t.Fatalf("expected safety error for an expired strategy, got %v", err)
	}

	open, err := r.registry.Create(r.admin, StrategyDraft{
		Name:        "open",
		ActionTypes: types,
		Targets:     targets,
		Datas:       datas,
		Deadline:    time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := r.execute(t, r.admin, open); err != nil {
		t.Fatalf("execute before the deadline failed: %v", err)
	}
}
