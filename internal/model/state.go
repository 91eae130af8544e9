package model

import "fmt"

// TradingState is a fight's position in its trading lifecycle. Transitions
// run strictly OPEN → SETTLEMENT → CLOSED; there is no way back to OPEN.
// Settlement is the sole writer of SETTLEMENT and CLOSED.
type TradingState string

const (
	// StateOpen permits trading. Fights are created in this state.
	StateOpen TradingState = "OPEN"

	// StateSettlement freezes trading while resolution is in progress.
	StateSettlement TradingState = "SETTLEMENT"

	// StateClosed is terminal.
	StateClosed TradingState = "CLOSED"
)

// CanTransition reports whether moving from s to next is a legal step.
func (s TradingState) CanTransition(next TradingState) bool {
	switch s {
	case StateOpen:
		return next == StateSettlement
	case StateSettlement:
		return next == StateClosed
	default:
		return false
	}
}

// Transition returns next if the step is legal, or an error naming the
// illegal edge. Store implementations call this before writing so an
// illegal transition can never reach the database.
func (s TradingState) Transition(next TradingState) (TradingState, error) {
	if !s.CanTransition(next) {
		return s, fmt.Errorf("model: illegal trading state transition %s -> %s", s, next)
	}
	return next, nil
}
