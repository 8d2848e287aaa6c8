package book

import "errors"

var (
	// ErrInvalidSize is returned for zero-size orders or ticket legs.
	ErrInvalidSize = errors.New("invalid order size")

	// ErrInvalidPrice is returned when a limit or stop price is outside
	// the book's range or not aligned to the tick ladder.
	ErrInvalidPrice = errors.New("invalid price")

	// ErrInvalidTicket is returned when an advanced ticket is malformed
	// or not valid for the order type it is attached to.
	ErrInvalidTicket = errors.New("invalid advanced ticket")

	// ErrInsufficientLiquidity is returned when a market order cannot be
	// fully filled. Fills that occurred before the book ran dry stand;
	// the remainder is killed.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")

	// ErrOrderNotFound is returned by replace operations when the order
	// to be replaced is not resting in the book.
	ErrOrderNotFound = errors.New("order not found")
)
