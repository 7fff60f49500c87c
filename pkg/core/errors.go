package core

import "errors"

// Errors
var (
	ErrInvalidQuantity     = errors.New("invalid quantity")
	ErrInvalidSide         = errors.New("invalid side")
	ErrInvalidPrice        = errors.New("invalid price")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrPriceRequired       = errors.New("market buy requires a reference price")
	ErrUnsupportedPair     = errors.New("unsupported trading pair")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrOrderNotFound       = errors.New("order not found")
	ErrOrderExists         = errors.New("order exists")
	ErrOrderTerminal       = errors.New("order already filled or cancelled")
	ErrTxNotFound          = errors.New("transaction not found")
	ErrTxExists            = errors.New("transaction exists")
	ErrTxTerminal          = errors.New("transaction already settled")
	ErrWithdrawalLimit     = errors.New("daily withdrawal limit exceeded")
	ErrRateLimited         = errors.New("too many orders")

	// ErrInvariantViolation signals an internal accounting bug. It is never
	// caused by user input and must be escalated, not retried.
	ErrInvariantViolation = errors.New("balance invariant violation")
)
