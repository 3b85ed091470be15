package venues

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/flashexec/flashexec/internal/chain"
	"github.com/flashexec/flashexec/internal/dex"
	clierr "github.com/flashexec/flashexec/internal/errors"
)

func addr(label string) common.Address {
	return chain.DeriveAddress(label)
}

func TestRouterQuoteAndSwap(t *testing.T) {
	st := chain.NewState()
	router := NewRouter(st, "v2", 30)
	tokenA := addr("token/a")
	tokenB := addr("token/b")
	trader := addr("account/trader")

	router.AddLiquidity(tokenA, tokenB, big.NewInt(100_000), big.NewInt(100_000))
	st.Mint(tokenA, trader, big.NewInt(1000))

	amounts, err := router.Quote(big.NewInt(1000), []common.Address{tokenA, tokenB})
	if err != nil {
		t.Fatalf("Quote failed: %v", err)
	}
	if len(amounts) != 2 || amounts[1].Cmp(big.NewInt(987)) != 0 {
		t.Fatalf("unexpected quote: %v", amounts)
	}

	got, err := router.Swap(trader, big.NewInt(1000), big.NewInt(987), []common.Address{tokenA, tokenB}, trader, 0)
	if err != nil {
		t.Fatalf("Swap failed: %v", err)
	}
	if got[1].Cmp(big.NewInt(987)) != 0 {
		t.Fatalf("unexpected swap output: %v", got)
	}
	if bal := st.BalanceOf(tokenB, trader); bal.Cmp(big.NewInt(987)) != 0 {
		t.Fatalf("output not delivered: %s", bal)
	}
	if bal := st.BalanceOf(tokenA, trader); bal.Sign() != 0 {
		t.Fatalf("input not taken: %s", bal)
	}

	reserveA, reserveB, err := router.Reserves(tokenA, tokenB)
	if err != nil {
		t.Fatalf("Reserves failed: %v", err)
	}
	if reserveA.Cmp(big.NewInt(101_000)) != 0 || reserveB.Cmp(big.NewInt(99_013)) != 0 {
		t.Fatalf("unexpected reserves: %s/%s", reserveA, reserveB)
	}
}

func TestRouterSwapSlippageGuard(t *testing.T) {
	st := chain.NewState()
	router := NewRouter(st, "v2", 30)
	tokenA := addr("token/a")
	tokenB := addr("token/b")
	trader := addr("account/trader")
	router.AddLiquidity(tokenA, tokenB, big.NewInt(100_000), big.NewInt(100_000))
	st.Mint(tokenA, trader, big.NewInt(1000))

	_, err := router.Swap(trader, big.NewInt(1000), big.NewInt(988), []common.Address{tokenA, tokenB}, trader, 0)
	if !clierr.HasCode(err, clierr.CodeExecution) {
		t.Fatalf("expected execution error for insufficient output, got %v", err)
	}
	// Guard fires before any funds move.
	if bal := st.BalanceOf(tokenA, trader); bal.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("rejected swap moved funds: %s", bal)
	}
}

func TestRouterMultiHopSwap(t *testing.T) {
	st := chain.NewState()
	router := NewRouter(st, "v2", 30)
	tokenA := addr("token/a")
	tokenB := addr("token/b")
	tokenC := addr("token/c")
	trader := addr("account/trader")
	reserve := big.NewInt(1_000_000)
	router.AddLiquidity(tokenA, tokenB, reserve, reserve)
	router.AddLiquidity(tokenB, tokenC, reserve, reserve)
	st.Mint(tokenA, trader, big.NewInt(1000))

	amounts, err := router.Swap(trader, big.NewInt(1000), nil, []common.Address{tokenA, tokenB, tokenC}, trader, 0)
	if err != nil {
		t.Fatalf("Swap failed: %v", err)
	}
	final := amounts[len(amounts)-1]
	if bal := st.BalanceOf(tokenC, trader); bal.Cmp(final) != 0 {
		t.Fatalf("final output not delivered: %s vs %s", bal, final)
	}
	// The intermediate asset never rests with the trader.
	if bal := st.BalanceOf(tokenB, trader); bal.Sign() != 0 {
		t.Fatalf("intermediate leaked to trader: %s", bal)
	}
}

func TestRouterUnknownPair(t *testing.T) {
	st := chain.NewState()
	router := NewRouter(st, "v2", 30)
	if _, err := router.Quote(big.NewInt(1), []common.Address{addr("token/a"), addr("token/b")}); !clierr.HasCode(err, clierr.CodeNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
	if _, err := router.Quote(big.NewInt(1), []common.Address{addr("token/a")}); !clierr.HasCode(err, clierr.CodeValidation) {
		t.Fatalf("expected validation error for short path, got %v", err)
	}
}

func TestTierRouterQuoteAndSwap(t *testing.T) {
	st := chain.NewState()
	tier := NewTierRouter(st, "v3")
	tokenA := addr("token/a")
	tokenB := addr("token/b")
	trader := addr("account/trader")
	tier.AddPool(tokenA, tokenB, 3000, big.NewInt(100_000), big.NewInt(100_000))
	st.Mint(tokenA, trader, big.NewInt(1000))

	// Fee tier 3000 is hundredths of a bip, so the cut matches a 30 bps
	// constant-product pool.
	quote, err := tier.QuoteSingle(tokenA, tokenB, 3000, big.NewInt(1000))
	if err != nil {
		t.Fatalf("QuoteSingle failed: %v", err)
	}
	if quote.Cmp(big.NewInt(987)) != 0 {
		t.Fatalf("unexpected quote: %s", quote)
	}

	out, err := tier.SwapExactInputSingle(trader, dex.ExactInputSingleParams{
		TokenIn:          tokenA,
		TokenOut:         tokenB,
		Fee:              3000,
		Recipient:        trader,
		AmountIn:         big.NewInt(1000),
		AmountOutMinimum: big.NewInt(987),
	})
	if err != nil {
		t.Fatalf("SwapExactInputSingle failed: %v", err)
	}
	if out.Cmp(big.NewInt(987)) != 0 {
		t.Fatalf("unexpected output: %s", out)
	}

	if _, err := tier.QuoteSingle(tokenA, tokenB, 500, big.NewInt(1000)); !clierr.HasCode(err, clierr.CodeNotFound) {
		t.Fatalf("expected not-found for missing tier, got %v", err)
	}
}

func TestFlashLenderBorrowRoundTrip(t *testing.T) {
	st := chain.NewState()
	lender := NewFlashLender(st, "test", 9)
	token := addr("token/a")
	lender.SeedLiquidity(token, big.NewInt(1_000_000))

	receiver := &recordingReceiver{st: st, addr: addr("contract/receiver")}
	st.Mint(token, receiver.addr, big.NewInt(1000)) // covers the premium

	amount := big.NewInt(100_000)
	err := lender.Borrow(receiver.addr, receiver, []common.Address{token}, []*big.Int{amount}, []uint8{0}, receiver.addr, []byte{0xaa}, 0)
	if err != nil {
		t.Fatalf("Borrow failed: %v", err)
	}
	if !receiver.called {
		t.Fatal("callback not invoked")
	}
	if receiver.premiums[0].Cmp(big.NewInt(90)) != 0 {
		t.Fatalf("unexpected premium: %s", receiver.premiums[0])
	}
	// Lender ends up with principal plus premium.
	if bal := st.BalanceOf(token, lender.Address()); bal.Cmp(big.NewInt(1_000_090)) != 0 {
		t.Fatalf("unexpected lender balance: %s", bal)
	}
	if bal := st.BalanceOf(token, receiver.addr); bal.Cmp(big.NewInt(910)) != 0 {
		t.Fatalf("unexpected receiver balance: %s", bal)
	}
}

func TestFlashLenderRepaymentShortfall(t *testing.T) {
	st := chain.NewState()
	lender := NewFlashLender(st, "test", 9)
	token := addr("token/a")
	lender.SeedLiquidity(token, big.NewInt(1_000_000))

	// No spare balance: the receiver cannot cover the premium.
	receiver := &recordingReceiver{st: st, addr: addr("contract/receiver")}
	err := lender.Borrow(receiver.addr, receiver, []common.Address{token}, []*big.Int{big.NewInt(100_000)}, []uint8{0}, receiver.addr, nil, 0)
	if !clierr.HasCode(err, clierr.CodeRepayment) {
		t.Fatalf("expected repayment error, got %v", err)
	}
}

func TestFlashLenderValidation(t *testing.T) {
	st := chain.NewState()
	lender := NewFlashLender(st, "test", 9)
	receiver := &recordingReceiver{st: st, addr: addr("contract/receiver")}
	token := addr("token/a")

	if err := lender.Borrow(receiver.addr, receiver, nil, nil, nil, receiver.addr, nil, 0); !clierr.HasCode(err, clierr.CodeValidation) {
		t.Fatalf("expected validation error for empty borrow, got %v", err)
	}
	err := lender.Borrow(receiver.addr, receiver, []common.Address{token}, []*big.Int{big.NewInt(0)}, []uint8{0}, receiver.addr, nil, 0)
	if !clierr.HasCode(err, clierr.CodeValidation) {
		t.Fatalf("expected validation error for zero amount, got %v", err)
	}
}

// recordingReceiver repays nothing itself; the lender's pull either succeeds
// off its standing balance or surfaces a repayment error.
type recordingReceiver struct {
	st       *chain.State
	addr     common.Address
	called   bool
	premiums []*big.Int
}

func (r *recordingReceiver) Address() common.Address { return r.addr }

func (r *recordingReceiver) OnBorrowCallback(sender common.Address, assets []common.Address, amounts, premiums []*big.Int, initiator common.Address, params []byte) error {
	r.called = true
	r.premiums = premiums
	return nil
}

func TestLendingPoolSupplyBorrow(t *testing.T) {
	st := chain.NewState()
	pool := NewLendingPool(st, "main")
	token := addr("token/a")
	user := addr("account/user")
	pool.SeedLiquidity(token, big.NewInt(1000))
	st.Mint(token, user, big.NewInt(500))

	if err := pool.Supply(user, token, big.NewInt(200)); err != nil {
		t.Fatalf("Supply failed: %v", err)
	}
	if err := pool.Borrow(user, token, big.NewInt(1100)); err != nil {
		t.Fatalf("Borrow failed: %v", err)
	}
	if err := pool.Borrow(user, token, big.NewInt(1000)); !clierr.HasCode(err, clierr.CodeExecution) {
		t.Fatalf("expected liquidity error, got %v", err)
	}

	pool.SetFrozen(token, true)
	if err := pool.Supply(user, token, big.NewInt(1)); !clierr.HasCode(err, clierr.CodeExecution) {
		t.Fatalf("expected frozen error, got %v", err)
	}
}

func TestStakingVaultDepositAndHarvest(t *testing.T) {
	st := chain.NewState()
	stakeToken := addr("token/lp")
	rewardToken := addr("token/reward")
	vault := NewStakingVault(st, "farm", stakeToken, rewardToken)
	user := addr("account/user")
	st.Mint(stakeToken, user, big.NewInt(100))

	if err := vault.Deposit(user, big.NewInt(100)); err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}
	vault.Accrue(user, big.NewInt(40))
	if got := vault.Pending(user); got.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("unexpected pending: %s", got)
	}

	// A zero deposit only collects pending rewards.
	if err := vault.Deposit(user, big.NewInt(0)); err != nil {
		t.Fatalf("harvest deposit failed: %v", err)
	}
	if got := st.BalanceOf(rewardToken, user); got.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("reward not paid: %s", got)
	}
	if got := vault.Pending(user); got.Sign() != 0 {
		t.Fatalf("pending not cleared: %s", got)
	}
}

func TestWrappedNativeRoundTrip(t *testing.T) {
	st := chain.NewState()
	wrapped := NewWrappedNative(st, "wnative")
	user := addr("account/user")
	st.Mint(chain.NativeAsset, user, big.NewInt(100))

	if err := wrapped.Wrap(user, big.NewInt(60)); err != nil {
		t.Fatalf("Wrap failed: %v", err)
	}
	if got := st.BalanceOf(wrapped.Token(), user); got.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("wrapped token not minted: %s", got)
	}
	if err := wrapped.Unwrap(user, big.NewInt(60)); err != nil {
		t.Fatalf("Unwrap failed: %v", err)
	}
	if got := st.BalanceOf(chain.NativeAsset, user); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("native not restored: %s", got)
	}
	if err := wrapped.Unwrap(user, big.NewInt(1)); !clierr.HasCode(err, clierr.CodeExecution) {
		t.Fatalf("expected execution error for over-unwrap, got %v", err)
	}
}
