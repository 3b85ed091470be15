package engine

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/flashexec/flashexec/internal/errors"
)

// StrategyDraft is the creation input. ActionTypes, Targets and Datas are
// parallel arrays and must have equal, nonzero length. Values, Critical,
// ExpectedGas and Descriptions are optional; when present they must align
// with the mandatory arrays. Omitted Critical marks every action critical.
type StrategyDraft struct {
	Name         string
	Description  string
	ActionTypes  []ActionType
	Targets      []common.Address
	Datas        [][]byte
	Values       []*big.Int
	Critical     []bool
	ExpectedGas  []uint64
	Descriptions []string
	MinProfitBPS uint32
	MaxGasPrice  *big.Int
	Deadline     int64
}

// ListFilter narrows List results. Zero value lists everything.
type ListFilter struct {
	Creator    *common.Address
	ActiveOnly bool
	Offset     int
	Limit      int
}

// Registry stores strategies with dense, monotonically increasing ids
// starting at 1.
type Registry struct {
	strategies []*Strategy
	safety     *Safety
	events     EventSink
	now        func() time.Time
}

func NewRegistry(safety *Safety, events EventSink) *Registry {
	return &Registry{
		safety: safety,
		events: events,
		now:    time.Now,
	}
}

// NextID returns the id the next created strategy will receive.
func (r *Registry) NextID() uint64 {
	return uint64(len(r.strategies)) + 1
}

// Create validates the parallel arrays, assigns the next id and stores the
// strategy with active=true and zeroed counters.
func (r *Registry) Create(caller common.Address, draft StrategyDraft) (uint64, error) {
	if !r.safety.IsAuthorized(caller) {
		return 0, clierr.New(clierr.CodeAuth, "caller is not an authorized executor")
	}
	n := len(draft.ActionTypes)
	if n == 0 {
		return 0, clierr.New(clierr.CodeValidation, "strategy must have at least one action")
	}
	if len(draft.Targets) != n || len(draft.Datas) != n {
		return 0, clierr.Newf(clierr.CodeValidation,
			"action array length mismatch: %d types, %d targets, %d datas",
			n, len(draft.Targets), len(draft.Datas))
	}
	if draft.Values != nil && len(draft.Values) != n {
		return 0, clierr.New(clierr.CodeValidation, "values array length mismatch")
	}
	if draft.Critical != nil && len(draft.Critical) != n {
		return 0, clierr.New(clierr.CodeValidation, "critical array length mismatch")
	}
	if draft.ExpectedGas != nil && len(draft.ExpectedGas) != n {
		return 0, clierr.New(clierr.CodeValidation, "expected-gas array length mismatch")
	}
	if draft.Descriptions != nil && len(draft.Descriptions) != n {
		return 0, clierr.New(clierr.CodeValidation, "descriptions array length mismatch")
	}

	actions := make([]Action, n)
	for i := 0; i < n; i++ {
		a := Action{
			Type:     draft.ActionTypes[i],
			Target:   draft.Targets[i],
			Data:     draft.Datas[i],
			Value:    big.NewInt(0),
			Critical: true,
		}
		if draft.Values != nil && draft.Values[i] != nil {
			a.Value = new(big.Int).Set(draft.Values[i])
		}
		if draft.Critical != nil {
			a.Critical = draft.Critical[i]
		}
		if draft.ExpectedGas != nil {
			a.ExpectedGas = draft.ExpectedGas[i]
		}
		if draft.Descriptions != nil {
			a.Description = draft.Descriptions[i]
		}
		actions[i] = a
	}

	maxGasPrice := draft.MaxGasPrice
	if maxGasPrice == nil {
		maxGasPrice = big.NewInt(0)
	}
	id := r.NextID()
	r.strategies = append(r.strategies, &Strategy{
		ID:           id,
		Creator:      caller,
		Name:         draft.Name,
		Description:  draft.Description,
		Actions:      actions,
		MinProfitBPS: draft.MinProfitBPS,
		MaxGasPrice:  new(big.Int).Set(maxGasPrice),
		Deadline:     draft.Deadline,
		Active:       true,
		TotalProfit:  big.NewInt(0),
		CreatedAt:    r.now(),
	})
	if r.events != nil {
		r.events.Emit(StrategyCreatedEvent{ID: id, Creator: caller})
	}
	return id, nil
}

// Restore reloads a persisted strategy, preserving its id and counters.
// Records must arrive in id order before any Create; no event is emitted.
func (r *Registry) Restore(s Strategy) error {
	if s.ID != r.NextID() {
		return clierr.Newf(clierr.CodeStore, "restore out of order: got strategy %d, want %d", s.ID, r.NextID())
	}
	if len(s.Actions) == 0 {
		return clierr.Newf(clierr.CodeStore, "restore strategy %d: empty action list", s.ID)
	}
	copied := s
	if copied.MaxGasPrice == nil {
		copied.MaxGasPrice = big.NewInt(0)
	}
	if copied.TotalProfit == nil {
		copied.TotalProfit = big.NewInt(0)
	}
	r.strategies = append(r.strategies, &copied)
	return nil
}

func (r *Registry) byID(id uint64) (*Strategy, error) {
	if id < 1 || id >= r.NextID() {
		return nil, clierr.Newf(clierr.CodeValidation, "strategy id %d out of range [1, %d)", id, r.NextID())
	}
	return r.strategies[id-1], nil
}

// Get returns a copy of the strategy. The action list is shared and must be
// treated read-only.
func (r *Registry) Get(id uint64) (Strategy, error) {
	s, err := r.byID(id)
	if err != nil {
		return Strategy{}, err
	}
	out := *s
	out.MaxGasPrice = new(big.Int).Set(s.MaxGasPrice)
	out.TotalProfit = new(big.Int).Set(s.TotalProfit)
	return out, nil
}

// ActionCount returns the length of the strategy's action list.
func (r *Registry) ActionCount(id uint64) (int, error) {
	s, err := r.byID(id)
	if err != nil {
		return 0, err
	}
	return len(s.Actions), nil
}

// List returns strategies matching the filter in id order.
func (r *Registry) List(filter ListFilter) []Strategy {
	out := make([]Strategy, 0, len(r.strategies))
	for _, s := range r.strategies {
		if filter.Creator != nil && s.Creator != *filter.Creator {
			continue
		}
		if filter.ActiveOnly && !s.Active {
			continue
		}
		copied := *s
		copied.MaxGasPrice = new(big.Int).Set(s.MaxGasPrice)
		copied.TotalProfit = new(big.Int).Set(s.TotalProfit)
		out = append(out, copied)
	}
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []Strategy{}
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out
}

func (r *Registry) setActive(caller common.Address, id uint64, active bool) error {
	s, err := r.byID(id)
	if err != nil {
		return err
	}
	if caller != s.Creator && caller != r.safety.Admin() {
		return clierr.New(clierr.CodeAuth, "only the strategy creator or the admin can pause or resume")
	}
	s.Active = active
	return nil
}

// Pause deactivates a strategy. Creator or admin only.
func (r *Registry) Pause(caller common.Address, id uint64) error {
	return r.setActive(caller, id, false)
}

// Resume reactivates a strategy. Creator or admin only.
func (r *Registry) Resume(caller common.Address, id uint64) error {
	return r.setActive(caller, id, true)
}

// UpdateMetadata replaces the name and description. Creator only; the action
// list and counters are untouched.
func (r *Registry) UpdateMetadata(caller common.Address, id uint64, name, description string) error {
	s, err := r.byID(id)
	if err != nil {
		return err
	}
	if caller != s.Creator {
		return clierr.New(clierr.CodeAuth, "only the strategy creator can update metadata")
	}
	s.Name = name
	s.Description = description
	return nil
}

// recordExecution bumps the counters after a committed execution.
func (r *Registry) recordExecution(id uint64, profit *big.Int) {
	s, err := r.byID(id)
	if err != nil {
		return
	}
	s.ExecutionCount++
	s.TotalProfit.Add(s.TotalProfit, profit)
}
