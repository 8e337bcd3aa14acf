package common

import "errors"

// Sentinel errors, following the teacher's package-level var Err* style
// (internal/engine/orderbook.go's ErrNotEnoughLiquidity, ErrRejection).
var (
	// ErrValidation wraps synchronous rejection causes (§7 kind 1). Never
	// logged as an event.
	ErrValidation = errors.New("validation failed")

	// ErrUnknownOrder is returned by Cancel for an order id Titan does not
	// hold.
	ErrUnknownOrder = errors.New("unknown order id")

	// ErrUnknownSymbol is returned when an operation names a symbol with no
	// book or account mapping.
	ErrUnknownSymbol = errors.New("unknown symbol")

	// ErrBackpressure signals a full bounded channel (§7 kind 2); callers
	// may retry.
	ErrBackpressure = errors.New("channel full, try again")

	// ErrOverflow is fatal: arithmetic overflow in margin/PnL computation
	// (§7 kind 4, exit code 4).
	ErrOverflow = errors.New("arithmetic overflow in margin computation")
)
