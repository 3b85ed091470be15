// Package engine implements the execution core: the strategy registry, the
// safety governor, the per-action dispatcher, the flash-loan gateway and the
// profit ledger, tied together by a single-flight Execute entry point.
package engine

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/flashexec/flashexec/internal/errors"
)

// ActionType identifies the handler an action dispatches to.
type ActionType uint8

const (
	ActionSwap ActionType = iota
	ActionLend
	ActionBorrow
	ActionStake
	ActionHarvest
	ActionWrap
	ActionUnwrap
	ActionCustom
)

var actionTypeNames = map[ActionType]string{
	ActionSwap:    "swap",
	ActionLend:    "lend",
	ActionBorrow:  "borrow",
	ActionStake:   "stake",
	ActionHarvest: "harvest",
	ActionWrap:    "wrap",
	ActionUnwrap:  "unwrap",
	ActionCustom:  "custom",
}

func (t ActionType) String() string {
	if name, ok := actionTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// ParseActionType maps a CLI/config name to an ActionType.
func ParseActionType(s string) (ActionType, error) {
	for t, name := range actionTypeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, clierr.Newf(clierr.CodeValidation, "unknown action type %q", s)
}

// Action is one ordered step of a strategy. The list is immutable once the
// strategy is created.
type Action struct {
	Type        ActionType
	Target      common.Address
	Data        []byte
	Value       *big.Int
	ExpectedGas uint64
	Critical    bool
	Description string
}

// Strategy is a stored, ordered action list plus execution metadata.
type Strategy struct {
	ID             uint64
	Creator        common.Address
	Name           string
	Description    string
	Actions        []Action
	MinProfitBPS   uint32
	MaxGasPrice    *big.Int
	Deadline       int64
	Active         bool
	ExecutionCount uint64
	TotalProfit    *big.Int
	CreatedAt      time.Time
}

// SafetyParams are the process-wide execution thresholds. Mutated only by the
// admin, read by every execution attempt.
type SafetyParams struct {
	MaxSlippageBPS uint32
	MinProfitBPS   uint32
	MaxGasPrice    *big.Int
	EmergencyStop  bool
}

// ActionResult records the outcome of one dispatched action.
type ActionResult struct {
	Index   int
	Type    ActionType
	Success bool
	Err     error
}

// ExecutionReport is returned by Execute after a committed operation.
type ExecutionReport struct {
	StrategyID uint64
	Executor   common.Address
	Asset      common.Address
	Principal  *big.Int
	Premium    *big.Int
	Profit     *big.Int
	Results    []ActionResult
}
