package order

import (
	"errors"

	"arbiter/internal/models"
)

var ErrInvalidTransition = errors.New("invalid order state transition")

// transitions is the closed order state machine:
// signal_received -> validating -> {rejected | pending} -> sent ->
// {partially_filled -> fully_filled | failed}.
var transitions = map[string][]string{
	models.OrderStateSignalReceived: {models.OrderStateValidating},
	models.OrderStateValidating:     {models.OrderStateRejected, models.OrderStatePending},
	models.OrderStatePending:        {models.OrderStateSent},
	models.OrderStateSent: {
		models.OrderStatePartiallyFilled,
		models.OrderStateFullyFilled,
		models.OrderStateFailed,
	},
	models.OrderStatePartiallyFilled: {
		models.OrderStatePartiallyFilled,
		models.OrderStateFullyFilled,
		models.OrderStateFailed,
	},
}

// CanTransition reports whether from -> to is a legal step.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions exist from the state.
func IsTerminal(state string) bool {
	return len(transitions[state]) == 0 && state != ""
}

// Transition mutates the order's state after validating the step.
func Transition(o *models.Order, to string) error {
	if o == nil {
		return errors.New("order required")
	}
	if !CanTransition(o.State, to) {
		return ErrInvalidTransition
	}
	o.State = to
	return nil
}
