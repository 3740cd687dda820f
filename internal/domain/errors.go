package domain

import "errors"

var (
	ErrUnknownProduct     = errors.New("unknown product")
	ErrUnknownUser        = errors.New("unknown user")
	ErrInvalidQuantity    = errors.New("quantity must be positive")
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrAlreadyDelivered   = errors.New("credential already delivered")
	ErrAllocationConflict = errors.New("allocation conflict")
	ErrPersistence        = errors.New("persistence failure")
)
