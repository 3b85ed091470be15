package engine

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/flashexec/flashexec/internal/errors"
)

// Safety holds the global execution thresholds and the executor allow-list.
// The admin is always implicitly authorized.
type Safety struct {
	admin     common.Address
	params    SafetyParams
	executors map[common.Address]bool
}

func NewSafety(admin common.Address, params SafetyParams) *Safety {
	if params.MaxGasPrice == nil {
		params.MaxGasPrice = big.NewInt(0)
	}
	return &Safety{
		admin:     admin,
		params:    params,
		executors: make(map[common.Address]bool),
	}
}

func (s *Safety) Admin() common.Address { return s.admin }

// Params returns a copy of the current thresholds.
func (s *Safety) Params() SafetyParams {
	p := s.params
	p.MaxGasPrice = new(big.Int).Set(s.params.MaxGasPrice)
	return p
}

func (s *Safety) EmergencyStop() bool { return s.params.EmergencyStop }

// IsAuthorized reports whether addr may run executions.
func (s *Safety) IsAuthorized(addr common.Address) bool {
	return addr == s.admin || s.executors[addr]
}

// SetAuthorizedExecutor adds or removes an executor. Admin only.
func (s *Safety) SetAuthorizedExecutor(caller, executor common.Address, allowed bool) error {
	if caller != s.admin {
		return clierr.New(clierr.CodeAuth, "only the admin can manage executors")
	}
	if allowed {
		s.executors[executor] = true
	} else {
		delete(s.executors, executor)
	}
	return nil
}

// AuthorizedExecutors returns the current allow-list, admin excluded.
func (s *Safety) AuthorizedExecutors() []common.Address {
	out := make([]common.Address, 0, len(s.executors))
	for addr := range s.executors {
		out = append(out, addr)
	}
	return out
}

// UpdateParams overwrites the thresholds unconditionally. No bounds checking
// beyond type range: operational tuning must be fast, callers own sane values.
func (s *Safety) UpdateParams(caller common.Address, maxSlippageBPS, minProfitBPS uint32, maxGasPrice *big.Int) error {
	if caller != s.admin {
		return clierr.New(clierr.CodeAuth, "only the admin can update safety params")
	}
	if maxGasPrice == nil {
		maxGasPrice = big.NewInt(0)
	}
	s.params.MaxSlippageBPS = maxSlippageBPS
	s.params.MinProfitBPS = minProfitBPS
	s.params.MaxGasPrice = new(big.Int).Set(maxGasPrice)
	return nil
}

// ToggleEmergencyStop flips the stop flag. Admin only.
func (s *Safety) ToggleEmergencyStop(caller common.Address) (bool, error) {
	if caller != s.admin {
		return s.params.EmergencyStop, clierr.New(clierr.CodeAuth, "only the admin can toggle the emergency stop")
	}
	s.params.EmergencyStop = !s.params.EmergencyStop
	return s.params.EmergencyStop, nil
}
