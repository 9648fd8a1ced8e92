package ledger

import "errors"

var (
	// ErrInvalidAmount is returned when a negative quantity is passed to
	// any ledger operation.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInsufficientBalance is returned when a debit would take the
	// user's balance below zero.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrAssetNotFound is returned when the (user, symbol) asset row does
	// not exist.
	ErrAssetNotFound = errors.New("asset not found")

	// ErrInsufficientAsset is returned when a lock exceeds the available
	// (unlocked) holding.
	ErrInsufficientAsset = errors.New("insufficient asset")

	// ErrInvalidLockedAmount is returned when an unlock exceeds the
	// locked holding.
	ErrInvalidLockedAmount = errors.New("cannot unlock more than locked amount")

	// ErrInsufficientLockedAsset is returned when a transfer exceeds the
	// seller's locked holding.
	ErrInsufficientLockedAsset = errors.New("insufficient locked asset")
)
