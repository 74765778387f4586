package service

import "errors"

// Sentinel errors returned by Service operations.
var (
	ErrInvalidName        = errors.New("agent name must not be empty")
	ErrAgentNotFound      = errors.New("agent not found")
	ErrAssignmentNotFound = errors.New("assignment not found")
	ErrInvalidAssignment  = errors.New("invalid assignment")
	ErrNoAgents           = errors.New("roster is empty")
	ErrRequestInFlight    = errors.New("request with this idempotency key is still in flight")
)
