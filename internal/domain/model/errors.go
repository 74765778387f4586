package model

import "errors"

// Sentinel kinds for model parsing errors.
var (
	ErrInvalidDate   = errors.New("invalid date")
	ErrInvalidShift  = errors.New("invalid shift")
	ErrInvalidStatus = errors.New("invalid status")
)
