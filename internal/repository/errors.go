package repository

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrNoSpotAvailable   = errors.New("no spot available")
	ErrInsufficientFunds = errors.New("insufficient funds")
)
