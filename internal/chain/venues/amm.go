package venues

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/flashexec/flashexec/internal/chain"
	"github.com/flashexec/flashexec/internal/dex"
	clierr "github.com/flashexec/flashexec/internal/errors"
)

// Router is a constant-product swap venue. Each registered pair holds its
// reserves in a derived reserve account, so reserves and balances never
// disagree.
type Router struct {
	addr   common.Address
	name   string
	st     *chain.State
	feeBPS uint32
	pairs  map[pairKey]common.Address
}

type pairKey struct {
	token0 common.Address
	token1 common.Address
}

func sortedPair(a, b common.Address) pairKey {
	if a.Cmp(b) > 0 {
		a, b = b, a
	}
	return pairKey{token0: a, token1: b}
}

func NewRouter(st *chain.State, name string, feeBPS uint32) *Router {
	r := &Router{
		addr:   chain.DeriveAddress("router/" + name),
		name:   name,
		st:     st,
		feeBPS: feeBPS,
		pairs:  make(map[pairKey]common.Address),
	}
	st.Register(r)
	return r
}

func (r *Router) Address() common.Address { return r.addr }

func (r *Router) FeeBPS() uint32 { return r.feeBPS }

// AddLiquidity seeds (or tops up) a pair's reserves.
func (r *Router) AddLiquidity(tokenA, tokenB common.Address, reserveA, reserveB *big.Int) {
	key := sortedPair(tokenA, tokenB)
	account, ok := r.pairs[key]
	if !ok {
		account = chain.DeriveAddress("router/" + r.name + "/pair/" + key.token0.Hex() + "/" + key.token1.Hex())
		r.pairs[key] = account
	}
	r.st.Mint(tokenA, account, reserveA)
	r.st.Mint(tokenB, account, reserveB)
}

func (r *Router) pairAccount(a, b common.Address) (common.Address, bool) {
	account, ok := r.pairs[sortedPair(a, b)]
	return account, ok
}

// Reserves returns the current reserves for the pair, in (tokenA, tokenB)
// order.
func (r *Router) Reserves(tokenA, tokenB common.Address) (*big.Int, *big.Int, error) {
	account, ok := r.pairAccount(tokenA, tokenB)
	if !ok {
		return nil, nil, clierr.Newf(clierr.CodeNotFound, "no pair for %s/%s", tokenA.Hex(), tokenB.Hex())
	}
	return r.st.BalanceOf(tokenA, account), r.st.BalanceOf(tokenB, account), nil
}

// Quote walks the path and returns the cumulative amounts, input included.
func (r *Router) Quote(amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	if len(path) < 2 {
		return nil, clierr.New(clierr.CodeValidation, "swap path needs at least two assets")
	}
	amounts := make([]*big.Int, 0, len(path))
	amounts = append(amounts, new(big.Int).Set(amountIn))
	current := amountIn
	for i := 0; i+1 < len(path); i++ {
		reserveIn, reserveOut, err := r.Reserves(path[i], path[i+1])
		if err != nil {
			return nil, err
		}
		out, err := dex.GetAmountOut(current, reserveIn, reserveOut, r.feeBPS)
		if err != nil {
			return nil, err
		}
		amounts = append(amounts, out)
		current = out
	}
	return amounts, nil
}

// Swap executes the path, moving input from sender and delivering the final
// output to the recipient.
func (r *Router) Swap(sender common.Address, amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline int64) ([]*big.Int, error) {
	if deadline > 0 && time.Now().Unix() > deadline {
		return nil, clierr.New(clierr.CodeExecution, "swap deadline expired")
	}
	amounts, err := r.Quote(amountIn, path)
	if err != nil {
		return nil, err
	}
	final := amounts[len(amounts)-1]
	if amountOutMin != nil && final.Cmp(amountOutMin) < 0 {
		return nil, clierr.Newf(clierr.CodeExecution, "insufficient output: got %s, want at least %s", final, amountOutMin)
	}

	first, _ := r.pairAccount(path[0], path[1])
	if err := r.st.Transfer(path[0], sender, first, amounts[0]); err != nil {
		return nil, clierr.Wrap(clierr.CodeExecution, "swap transfer in", err)
	}
	for i := 0; i+1 < len(path); i++ {
		account, _ := r.pairAccount(path[i], path[i+1])
		recipient := to
		if i+2 < len(path) {
			recipient, _ = r.pairAccount(path[i+1], path[i+2])
		}
		if err := r.st.Transfer(path[i+1], account, recipient, amounts[i+1]); err != nil {
			return nil, clierr.Wrap(clierr.CodeExecution, "swap transfer out", err)
		}
	}
	return amounts, nil
}
