package booking

import "errors"

var (
	ErrInvalidWindow       = errors.New("reservation window is invalid")
	ErrVehicleNotFound     = errors.New("vehicle not found")
	ErrFacilityNotFound    = errors.New("facility not found")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrInvalidTransition   = errors.New("reservation is not in a cancellable state")
	ErrNoSpotAvailable     = errors.New("no spot available for the class")
	ErrInsufficientFunds   = errors.New("wallet balance does not cover the reservation fee")
	ErrRateLimited         = errors.New("too many reservation attempts")
)
