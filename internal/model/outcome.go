package model

import "errors"

// ErrInvalidOutcome is returned when an outcome value is not one of the
// closed set {Winner, Draw, Cancelled}. This is checked before any
// mutation: an unknown outcome is a programmer/config error upstream.
var ErrInvalidOutcome = errors.New("model: invalid fight outcome")

// Outcome is the final result of a fight, produced exactly once by the
// upstream resolver. It is a closed sum type; settlement switches over it
// exhaustively so a missing branch is a compile-time failure.
type Outcome interface {
	isOutcome()
}

// Winner declares one side the winner.
type Winner struct {
	Side Side
}

// Draw ends the fight with neither side winning; all stakes refund at
// entry price.
type Draw struct{}

// Cancelled voids the fight; settles identically to Draw.
type Cancelled struct{}

func (Winner) isOutcome()    {}
func (Draw) isOutcome()      {}
func (Cancelled) isOutcome() {}

// ValidateOutcome rejects outcomes outside the closed set, including a
// Winner carrying a side other than YES/NO and a nil outcome.
func ValidateOutcome(o Outcome) error {
	switch v := o.(type) {
	case Winner:
		if v.Side != SideYes && v.Side != SideNo {
			return ErrInvalidOutcome
		}
		return nil
	case Draw, Cancelled:
		return nil
	default:
		return ErrInvalidOutcome
	}
}
