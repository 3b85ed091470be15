// Package model holds the JSON view types the CLI renders.
package model

import "time"

const EnvelopeVersion = "v1"

type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type EnvelopeMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Command   string    `json:"command"`
}

type StrategyView struct {
	ID             uint64   `json:"id"`
	Creator        string   `json:"creator"`
	Name           string   `json:"name"`
	Description    string   `json:"description,omitempty"`
	ActionTypes    []string `json:"action_types"`
	ActionCount    int      `json:"action_count"`
	MinProfitBPS   uint32   `json:"min_profit_bps"`
	Active         bool     `json:"active"`
	ExecutionCount uint64   `json:"execution_count"`
	TotalProfit    string   `json:"total_profit"`
	CreatedAt      string   `json:"created_at"`
}

type ActionResultView struct {
	Index   int    `json:"index"`
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type ExecutionView struct {
	ExecutionID string             `json:"execution_id,omitempty"`
	StrategyID  uint64             `json:"strategy_id"`
	Executor    string             `json:"executor"`
	Asset       string             `json:"asset"`
	Principal   string             `json:"principal"`
	Premium     string             `json:"premium"`
	Profit      string             `json:"profit"`
	Actions     []ActionResultView `json:"actions,omitempty"`
}

type SafetyParamsView struct {
	MaxSlippageBPS uint32 `json:"max_slippage_bps"`
	MinProfitBPS   uint32 `json:"min_profit_bps"`
	MaxGasPrice    string `json:"max_gas_price"`
	EmergencyStop  bool   `json:"emergency_stop"`
}

type ContractInfoView struct {
	Engine         string `json:"engine"`
	Admin          string `json:"admin"`
	Lender         string `json:"lender"`
	EmergencyStop  bool   `json:"emergency_stop"`
	NextStrategyID uint64 `json:"next_strategy_id"`
	PremiumBPS     uint32 `json:"premium_bps"`
}

type VenueView struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

type QuoteView struct {
	Dex       string `json:"dex"`
	TokenIn   string `json:"token_in"`
	TokenOut  string `json:"token_out"`
	AmountIn  string `json:"amount_in"`
	AmountOut string `json:"amount_out"`
	Fee       uint32 `json:"fee,omitempty"`
}

type ProfitView struct {
	User   string `json:"user"`
	Asset  string `json:"asset"`
	Profit string `json:"profit"`
}

type GasEstimateView struct {
	StrategyID  uint64 `json:"strategy_id"`
	GasEstimate uint64 `json:"gas_estimate"`
}

type ProfitabilityView struct {
	StrategyID  uint64 `json:"strategy_id"`
	GasEstimate uint64 `json:"gas_estimate"`
	GasCost     string `json:"gas_cost"`
	NetProfit   string `json:"net_profit"`
	MinProfit   string `json:"min_profit"`
	Profitable  bool   `json:"profitable"`
}
