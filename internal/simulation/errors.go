package simulation

import "errors"

var (
	// ErrInvalidConfig is returned when a Config fails validation.
	ErrInvalidConfig = errors.New("invalid simulation config")
	// ErrUnexpectedStatus is returned when the service answers with a status
	// code the step does not accept.
	ErrUnexpectedStatus = errors.New("unexpected status code")
	// ErrEmptyRoster is returned when there is nobody to offer a slot to.
	ErrEmptyRoster = errors.New("roster is empty")
)
