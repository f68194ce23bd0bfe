package domain

import "errors"

// Job lifecycle errors.
var (
	// ErrInvalidJobStatus is returned when a job status is not one of the known values.
	ErrInvalidJobStatus = errors.New("invalid job status")

	// ErrJobTerminal is returned when a transition is attempted on a job
	// that already reached SUCCEEDED, FAILED or CANCELLED.
	ErrJobTerminal = errors.New("job is already in a terminal status")

	// ErrInvalidTransition is returned when a status change is not allowed
	// through the requested operation.
	ErrInvalidTransition = errors.New("invalid job status transition")
)
