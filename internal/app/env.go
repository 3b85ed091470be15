package app

import (
	"encoding/json"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"

	"github.com/flashexec/flashexec/internal/chain"
	"github.com/flashexec/flashexec/internal/chain/venues"
	"github.com/flashexec/flashexec/internal/config"
	"github.com/flashexec/flashexec/internal/dex"
	"github.com/flashexec/flashexec/internal/engine"
	clierr "github.com/flashexec/flashexec/internal/errors"
	"github.com/flashexec/flashexec/internal/store"
)

// Store keys for state that must survive between one-shot CLI invocations.
const (
	kvSafetyState    = "safety_state"
	kvVenueOverrides = "venue_overrides"
)

type safetyState struct {
	MaxSlippageBPS uint32   `json:"max_slippage_bps"`
	MinProfitBPS   uint32   `json:"min_profit_bps"`
	MaxGasPrice    string   `json:"max_gas_price"`
	EmergencyStop  bool     `json:"emergency_stop"`
	Executors      []string `json:"executors"`
}

// environment is the deterministic execution fixture one CLI invocation runs
// against: chain state, venues, the engine and its collaborators.
type environment struct {
	st       *chain.State
	safety   *engine.Safety
	registry *engine.Registry
	ledger   *engine.ProfitLedger
	adapter  *dex.Adapter
	venueReg *dex.VenueRegistry
	lender   *venues.FlashLender
	engine   *engine.Engine
	admin    common.Address
	caller   common.Address
	tokens   map[string]common.Address
}

func resolveAccount(input string) common.Address {
	input = strings.TrimSpace(input)
	if strings.HasPrefix(input, "0x") && len(input) == 42 {
		return common.HexToAddress(input)
	}
	return chain.DeriveAddress("account/" + input)
}

func (e *environment) resolveToken(input string) common.Address {
	input = strings.TrimSpace(input)
	if input == "" || strings.EqualFold(input, "native") {
		return chain.NativeAsset
	}
	if strings.HasPrefix(input, "0x") && len(input) == 42 {
		return common.HexToAddress(input)
	}
	if addr, ok := e.tokens[strings.ToLower(input)]; ok {
		return addr
	}
	return chain.DeriveAddress("token/" + strings.ToLower(input))
}

func parseAmount(input, field string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(input), 10)
	if !ok || n.Sign() < 0 {
		return nil, clierr.Newf(clierr.CodeUsage, "%s must be a non-negative integer string", field)
	}
	return n, nil
}

// Fixture defaults used when the config genesis leaves a section empty.
var (
	defaultTokens = []string{"weth", "usdc", "dai"}

	defaultGrant, _     = new(big.Int).SetString("1000000000000000000000", 10)    // 1e21
	defaultLiquidity, _ = new(big.Int).SetString("1000000000000000000000000", 10) // 1e24
	defaultReserveA, _  = new(big.Int).SetString("1000000000000000000000", 10)    // 1e21
	defaultReserveB, _  = new(big.Int).SetString("2000000000000000000000", 10)    // 2e21
)

func buildEnvironment(settings config.Settings, st *store.Store, log zerolog.Logger) (*environment, error) {
	env := &environment{
		st:     chain.NewState(),
		admin:  resolveAccount(settings.Admin),
		tokens: make(map[string]common.Address),
	}
	env.caller = env.admin
	if settings.Caller != "" {
		env.caller = resolveAccount(settings.Caller)
	}

	genesis := settings.Genesis
	gasPrice := genesis.GasPrice
	if gasPrice == "" {
		gasPrice = "30"
	}
	price, err := parseAmount(gasPrice, "genesis gas_price")
	if err != nil {
		return nil, err
	}
	env.st.SetGasPrice(price)

	tokens := genesis.Tokens
	if len(tokens) == 0 {
		tokens = defaultTokens
	}
	for _, name := range tokens {
		env.tokens[strings.ToLower(name)] = chain.DeriveAddress("token/" + strings.ToLower(name))
	}

	router := venues.NewRouter(env.st, "swap-v2", 30)
	tierRouter := venues.NewTierRouter(env.st, "swap-v3")
	lendingPool := venues.NewLendingPool(env.st, "main")
	wrapped := venues.NewWrappedNative(env.st, "main")
	env.tokens["wnative"] = wrapped.Token()
	stakeToken := env.tokens[strings.ToLower(tokens[0])]
	rewardToken := env.tokens[strings.ToLower(tokens[len(tokens)-1])]
	staking := venues.NewStakingVault(env.st, "main", stakeToken, rewardToken)
	env.lender = venues.NewFlashLender(env.st, "main", settings.PremiumRateBPS)

	if err := env.seedGenesis(genesis, tokens, router, tierRouter, lendingPool); err != nil {
		return nil, err
	}

	env.venueReg = dex.NewVenueRegistry(env.admin)
	bindings := map[string]common.Address{
		dex.VenueConstantProduct: router.Address(),
		dex.VenueConcentrated:    tierRouter.Address(),
		"lending":                lendingPool.Address(),
		"staking":                staking.Address(),
		"wrapped":                wrapped.Address(),
	}
	if err := applyVenueOverrides(st, bindings); err != nil {
		return nil, err
	}
	for name, addr := range bindings {
		if err := env.venueReg.Set(env.admin, name, addr); err != nil {
			return nil, err
		}
	}

	params := engine.SafetyParams{
		MaxSlippageBPS: settings.MaxSlippageBPS,
		MinProfitBPS:   settings.MinProfitBPS,
	}
	params.MaxGasPrice, err = parseAmount(settings.MaxGasPrice, "safety max_gas_price")
	if err != nil {
		return nil, err
	}
	executors, err := loadSafetyState(st, &params)
	if err != nil {
		return nil, err
	}
	env.safety = engine.NewSafety(env.admin, params)
	for _, addr := range executors {
		if err := env.safety.SetAuthorizedExecutor(env.admin, common.HexToAddress(addr), true); err != nil {
			return nil, err
		}
	}

	sink := engine.NewLogSink(log)
	env.registry = engine.NewRegistry(env.safety, sink)
	env.ledger = engine.NewProfitLedger()
	env.adapter = dex.NewAdapter(env.st, env.venueReg)
	env.engine = engine.NewEngine(env.st, env.lender, env.safety, env.registry, env.ledger, env.adapter, env.venueReg, sink, log)

	if err := env.restoreStrategies(st); err != nil {
		return nil, err
	}
	return env, nil
}

func (e *environment) seedGenesis(genesis config.Genesis, tokens []string, router *venues.Router, tierRouter *venues.TierRouter, lendingPool *venues.LendingPool) error {
	if len(genesis.Balances) == 0 {
		for _, name := range tokens {
			addr := e.tokens[strings.ToLower(name)]
			e.st.Mint(addr, e.admin, defaultGrant)
			e.st.Mint(addr, e.caller, defaultGrant)
		}
		e.st.Mint(chain.NativeAsset, e.admin, defaultGrant)
		e.st.Mint(chain.NativeAsset, e.caller, defaultGrant)
	} else {
		for _, grant := range genesis.Balances {
			amount, err := parseAmount(grant.Amount, "genesis balance amount")
			if err != nil {
				return err
			}
			e.st.Mint(e.resolveToken(grant.Token), resolveAccount(grant.Account), amount)
		}
	}

	if len(genesis.LenderLiquidity) == 0 {
		for _, name := range tokens {
			e.lender.SeedLiquidity(e.tokens[strings.ToLower(name)], defaultLiquidity)
		}
	} else {
		for _, grant := range genesis.LenderLiquidity {
			amount, err := parseAmount(grant.Amount, "genesis lender amount")
			if err != nil {
				return err
			}
			e.lender.SeedLiquidity(e.resolveToken(grant.Token), amount)
		}
	}

	if len(genesis.Pairs) == 0 {
		for i := 0; i+1 < len(tokens); i++ {
			a := e.tokens[strings.ToLower(tokens[i])]
			b := e.tokens[strings.ToLower(tokens[i+1])]
			router.AddLiquidity(a, b, defaultReserveA, defaultReserveB)
		}
	} else {
		for _, pair := range genesis.Pairs {
			reserveA, err := parseAmount(pair.ReserveA, "genesis pair reserve_a")
			if err != nil {
				return err
			}
			reserveB, err := parseAmount(pair.ReserveB, "genesis pair reserve_b")
			if err != nil {
				return err
			}
			router.AddLiquidity(e.resolveToken(pair.TokenA), e.resolveToken(pair.TokenB), reserveA, reserveB)
		}
	}

	if len(genesis.TierPools) == 0 {
		if len(tokens) >= 2 {
			a := e.tokens[strings.ToLower(tokens[0])]
			b := e.tokens[strings.ToLower(tokens[1])]
			for _, fee := range dex.FeeTiers {
				tierRouter.AddPool(a, b, fee, defaultReserveA, defaultReserveB)
			}
		}
	} else {
		for _, pool := range genesis.TierPools {
			reserveA, err := parseAmount(pool.ReserveA, "genesis tier pool reserve_a")
			if err != nil {
				return err
			}
			reserveB, err := parseAmount(pool.ReserveB, "genesis tier pool reserve_b")
			if err != nil {
				return err
			}
			tierRouter.AddPool(e.resolveToken(pool.TokenA), e.resolveToken(pool.TokenB), pool.Fee, reserveA, reserveB)
		}
	}

	if len(genesis.LendingLiquidity) == 0 {
		for _, name := range tokens {
			lendingPool.SeedLiquidity(e.tokens[strings.ToLower(name)], defaultLiquidity)
		}
	} else {
		for _, grant := range genesis.LendingLiquidity {
			amount, err := parseAmount(grant.Amount, "genesis lending amount")
			if err != nil {
				return err
			}
			lendingPool.SeedLiquidity(e.resolveToken(grant.Token), amount)
		}
	}
	return nil
}

func loadSafetyState(st *store.Store, params *engine.SafetyParams) ([]string, error) {
	raw, err := st.GetValue(kvSafetyState)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeStore, "load safety state", err)
	}
	if raw == nil {
		return nil, nil
	}
	var state safetyState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, clierr.Wrap(clierr.CodeStore, "decode safety state", err)
	}
	params.MaxSlippageBPS = state.MaxSlippageBPS
	params.MinProfitBPS = state.MinProfitBPS
	params.EmergencyStop = state.EmergencyStop
	if state.MaxGasPrice != "" {
		ceiling, ok := new(big.Int).SetString(state.MaxGasPrice, 10)
		if !ok {
			return nil, clierr.Newf(clierr.CodeStore, "corrupt persisted max gas price %q", state.MaxGasPrice)
		}
		params.MaxGasPrice = ceiling
	}
	return state.Executors, nil
}

func (s *runtimeState) saveSafetyState() error {
	params := s.env.safety.Params()
	state := safetyState{
		MaxSlippageBPS: params.MaxSlippageBPS,
		MinProfitBPS:   params.MinProfitBPS,
		MaxGasPrice:    params.MaxGasPrice.String(),
		EmergencyStop:  params.EmergencyStop,
	}
	for _, addr := range s.env.safety.AuthorizedExecutors() {
		state.Executors = append(state.Executors, addr.Hex())
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "encode safety state", err)
	}
	if err := s.store.SetValue(kvSafetyState, raw); err != nil {
		return clierr.Wrap(clierr.CodeStore, "save safety state", err)
	}
	return nil
}

func applyVenueOverrides(st *store.Store, bindings map[string]common.Address) error {
	raw, err := st.GetValue(kvVenueOverrides)
	if err != nil {
		return clierr.Wrap(clierr.CodeStore, "load venue overrides", err)
	}
	if raw == nil {
		return nil
	}
	var overrides map[string]string
	if err := json.Unmarshal(raw, &overrides); err != nil {
		return clierr.Wrap(clierr.CodeStore, "decode venue overrides", err)
	}
	for name, addr := range overrides {
		bindings[name] = common.HexToAddress(addr)
	}
	return nil
}

func (s *runtimeState) saveVenueOverride(name string, addr common.Address) error {
	raw, err := s.store.GetValue(kvVenueOverrides)
	if err != nil {
		return clierr.Wrap(clierr.CodeStore, "load venue overrides", err)
	}
	overrides := make(map[string]string)
	if raw != nil {
		if err := json.Unmarshal(raw, &overrides); err != nil {
			return clierr.Wrap(clierr.CodeStore, "decode venue overrides", err)
		}
	}
	overrides[name] = addr.Hex()
	out, err := json.Marshal(overrides)
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "encode venue overrides", err)
	}
	if err := s.store.SetValue(kvVenueOverrides, out); err != nil {
		return clierr.Wrap(clierr.CodeStore, "save venue overrides", err)
	}
	return nil
}

func (e *environment) restoreStrategies(st *store.Store) error {
	records, err := st.ListStrategies("", 10_000)
	if err != nil {
		return clierr.Wrap(clierr.CodeStore, "load strategies", err)
	}
	for _, rec := range records {
		strategy, err := recordToStrategy(rec)
		if err != nil {
			return err
		}
		if err := e.registry.Restore(strategy); err != nil {
			return err
		}
	}
	return nil
}

func strategyToRecord(s engine.Strategy) store.StrategyRecord {
	rec := store.StrategyRecord{
		ID:             s.ID,
		Creator:        s.Creator.Hex(),
		Name:           s.Name,
		Description:    s.Description,
		MinProfitBPS:   s.MinProfitBPS,
		MaxGasPrice:    s.MaxGasPrice.String(),
		Deadline:       s.Deadline,
		Active:         s.Active,
		ExecutionCount: s.ExecutionCount,
		TotalProfit:    s.TotalProfit.String(),
		CreatedAt:      s.CreatedAt.UTC().Format(time.RFC3339),
	}
	for _, a := range s.Actions {
		value := ""
		if a.Value != nil && a.Value.Sign() > 0 {
			value = a.Value.String()
		}
		rec.Actions = append(rec.Actions, store.ActionRecord{
			Type:        a.Type.String(),
			Target:      a.Target.Hex(),
			Data:        hexutil.Encode(a.Data),
			Value:       value,
			ExpectedGas: a.ExpectedGas,
			Critical:    a.Critical,
			Description: a.Description,
		})
	}
	return rec
}

func recordToStrategy(rec store.StrategyRecord) (engine.Strategy, error) {
	s := engine.Strategy{
		ID:             rec.ID,
		Creator:        common.HexToAddress(rec.Creator),
		Name:           rec.Name,
		Description:    rec.Description,
		MinProfitBPS:   rec.MinProfitBPS,
		Deadline:       rec.Deadline,
		Active:         rec.Active,
		ExecutionCount: rec.ExecutionCount,
		MaxGasPrice:    big.NewInt(0),
		TotalProfit:    big.NewInt(0),
	}
	if rec.CreatedAt != "" {
		if ts, err := time.Parse(time.RFC3339, rec.CreatedAt); err == nil {
			s.CreatedAt = ts
		}
	}
	if rec.MaxGasPrice != "" {
		if _, ok := s.MaxGasPrice.SetString(rec.MaxGasPrice, 10); !ok {
			return engine.Strategy{}, clierr.Newf(clierr.CodeStore, "corrupt max gas price for strategy %d", rec.ID)
		}
	}
	if rec.TotalProfit != "" {
		if _, ok := s.TotalProfit.SetString(rec.TotalProfit, 10); !ok {
			return engine.Strategy{}, clierr.Newf(clierr.CodeStore, "corrupt total profit for strategy %d", rec.ID)
		}
	}
	for _, a := range rec.Actions {
		actionType, err := engine.ParseActionType(a.Type)
		if err != nil {
			return engine.Strategy{}, err
		}
		data, err := hexutil.Decode(a.Data)
		if err != nil {
			return engine.Strategy{}, clierr.Wrap(clierr.CodeStore, "decode action data", err)
		}
		value := big.NewInt(0)
		if a.Value != "" {
			if _, ok := value.SetString(a.Value, 10); !ok {
				return engine.Strategy{}, clierr.Newf(clierr.CodeStore, "corrupt action value for strategy %d", rec.ID)
			}
		}
		s.Actions = append(s.Actions, engine.Action{
			Type:        actionType,
			Target:      common.HexToAddress(a.Target),
			Data:        data,
			Value:       value,
			ExpectedGas: a.ExpectedGas,
			Critical:    a.Critical,
			Description: a.Description,
		})
	}
	return s, nil
}
