package engine

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// Event is an observable engine notification consumed by the analytics layer.
type Event interface {
	EventName() string
}

type StrategyCreatedEvent struct {
	ID      uint64
	Creator common.Address
}

func (StrategyCreatedEvent) EventName() string { return "StrategyCreated" }

type FlashLoanInitiatedEvent struct {
	Initiator  common.Address
	StrategyID uint64
}

func (FlashLoanInitiatedEvent) EventName() string { return "FlashLoanInitiated" }

type StrategyExecutedEvent struct {
	StrategyID uint64
	Executor   common.Address
	Profit     *big.Int
}

func (StrategyExecutedEvent) EventName() string { return "StrategyExecuted" }

type ActionExecutedEvent struct {
	StrategyID  uint64
	ActionIndex int
	ActionType  ActionType
	Success     bool
}

func (ActionExecutedEvent) EventName() string { return "ActionExecuted" }

// EventSink receives committed events. Aborted operations emit nothing.
type EventSink interface {
	Emit(Event)
}

// Recorder is an EventSink that keeps every event it sees, for tests and the
// query surface.
type Recorder struct {
	Events []Event
}

func (r *Recorder) Emit(e Event) {
	r.Events = append(r.Events, e)
}

// LogSink emits events as structured log records.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Emit(e Event) {
	switch ev := e.(type) {
	case StrategyCreatedEvent:
		s.log.Info().Str("event", ev.EventName()).Uint64("strategy_id", ev.ID).Str("creator", ev.Creator.Hex()).Msg("strategy created")
	case FlashLoanInitiatedEvent:
		s.log.Info().Str("event", ev.EventName()).Uint64("strategy_id", ev.StrategyID).Str("initiator", ev.Initiator.Hex()).Msg("flash loan initiated")
	case StrategyExecutedEvent:
		s.log.Info().Str("event", ev.EventName()).Uint64("strategy_id", ev.StrategyID).Str("executor", ev.Executor.Hex()).Str("profit", ev.Profit.String()).Msg("strategy executed")
	case ActionExecutedEvent:
		s.log.Debug().Str("event", ev.EventName()).Uint64("strategy_id", ev.StrategyID).Int("action_index", ev.ActionIndex).Str("action_type", ev.ActionType.String()).Bool("success", ev.Success).Msg("action executed")
	default:
		s.log.Info().Str("event", e.EventName()).Msg("engine event")
	}
}

// MultiSink fans out to several sinks.
type MultiSink []EventSink

func (m MultiSink) Emit(e Event) {
	for _, s := range m {
		s.Emit(e)
	}
}

// eventBuffer holds events produced inside an in-flight operation so aborts
// leave no observable trace. Flush forwards to the underlying sink on commit.
type eventBuffer struct {
	sink    EventSink
	pending []Event
}

func newEventBuffer(sink EventSink) *eventBuffer {
	return &eventBuffer{sink: sink}
}

func (b *eventBuffer) emit(e Event) {
	b.pending = append(b.pending, e)
}

func (b *eventBuffer) flush() {
	if b.sink != nil {
		for _, e := range b.pending {
			b.sink.Emit(e)
		}
	}
	b.pending = nil
}

func (b *eventBuffer) drop() {
	b.pending = nil
}
