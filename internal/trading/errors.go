package trading

import "errors"

var (
	// ErrOrderNotFound is returned when the order does not exist or is
	// not owned by the caller.
	ErrOrderNotFound = errors.New("order not found")

	// ErrOrderNotCancellable is returned when the order has already been
	// filled or cancelled.
	ErrOrderNotCancellable = errors.New("order cannot be cancelled (not open)")
)
