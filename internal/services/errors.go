package services

import (
	"errors"
	"fmt"
)

// Sentinels returned by the ride services. Callers match them with
// errors.Is; the wrapped message carries the specific reason.
var (
	ErrValidation      = errors.New("validation failed")
	ErrForbidden       = errors.New("forbidden")
	ErrVehicleMismatch = errors.New("vehicle type does not match ride")
	ErrRideNotFound    = errors.New("ride not found")
	ErrRideTaken       = errors.New("ride not found or already taken")
	ErrInvalidState    = errors.New("invalid ride state")
	ErrInvalidOTP      = errors.New("invalid OTP")
	ErrOTPNotSet       = errors.New("OTP not set")
	ErrOTPExpired      = errors.New("OTP expired")
	ErrOTPLocked       = errors.New("too many OTP attempts")
)

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func forbidden(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

func invalidState(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}
