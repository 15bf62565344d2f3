package domain

import "errors"

var (
	ErrNotFound          = errors.New("order_not_found")
	ErrInvalidTransition = errors.New("invalid_status_transition")
	ErrNoItems           = errors.New("order_has_no_items")
)

// Transition moves the order to the target status, enforcing the graph.
func (o *Order) Transition(to string) error {
	if !CanTransition(o.Status, to) {
		return ErrInvalidTransition
	}
	o.Status = to
	return nil
}
