package allocation

import "errors"

var (
	ErrInvalidPlate        = errors.New("plate is empty or malformed")
	ErrFacilityNotFound    = errors.New("facility not found")
	ErrAlreadyParked       = errors.New("vehicle already has an open session")
	ErrNoActiveSession     = errors.New("no open session for plate")
	ErrNoSpotAvailable     = errors.New("no spot available")
	ErrInvalidCheckInToken = errors.New("check-in token is invalid for this entry")
)
