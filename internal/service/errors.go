package service

import (
	"errors"
	"fmt"

	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/store"
)

// Sentinel errors returned by the services. The API layer maps them to
// HTTP status codes; anything else is an internal error.
var (
	// ErrUnknownKind is returned for a task kind missing from the catalog.
	ErrUnknownKind = errors.New("unknown task kind")

	// ErrInsufficientCredits is returned when the user cannot pay for a job.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrUserNotFound is returned when the requesting user has no account.
	ErrUserNotFound = errors.New("user not found")

	// ErrJobNotFound is returned for a missing job or one owned by someone else.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobFinished is returned when cancelling a job that already ended.
	ErrJobFinished = errors.New("job already finished")

	// ErrRemoteRejected is returned when the remote API refuses a request
	// as invalid, as opposed to being unavailable.
	ErrRemoteRejected = errors.New("request rejected by remote api")
)

// ServiceError wraps an unexpected failure with the operation that hit it.
type ServiceError struct {
	Service   string
	Operation string
	Err       error
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s service %s operation failed: %v", e.Service, e.Operation, e.Err)
	}
	return fmt.Sprintf("%s service %s operation failed", e.Service, e.Operation)
}

// Unwrap returns the underlying error.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError maps store-level sentinels to service sentinels and wraps
// everything else in a ServiceError. A nil err yields nil.
func NewServiceError(service, operation string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrUnknownKind),
		errors.Is(err, ErrInsufficientCredits),
		errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrJobNotFound),
		errors.Is(err, ErrJobFinished),
		errors.Is(err, ErrRemoteRejected):
		return err
	case errors.Is(err, store.ErrUserNotFound):
		return ErrUserNotFound
	case errors.Is(err, store.ErrJobNotFound):
		return ErrJobNotFound
	case errors.Is(err, domain.ErrJobTerminal):
		return ErrJobFinished
	}
	return &ServiceError{Service: service, Operation: operation, Err: err}
}
