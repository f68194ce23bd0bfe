// Package remote defines the contract with the remote generation task API:
// tasks are created, polled for status, and optionally cancelled.
package remote

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Errors returned by Client implementations.
var (
	// ErrTransport wraps failures to reach the remote API or non-2xx replies.
	ErrTransport = errors.New("remote api transport error")

	// ErrInvalidResponse is returned when a reply cannot be decoded.
	ErrInvalidResponse = errors.New("remote api returned an invalid response")
)

// Task status values reported by the remote API.
const (
	StatusPending   = "PENDING"
	StatusRunning   = "RUNNING"
	StatusThrottled = "THROTTLED"
	StatusSucceeded = "SUCCEEDED"
	StatusFailed    = "FAILED"
	StatusCancelled = "CANCELLED"
)

// Task is the remote view of a generation task.
type Task struct {
	ID          string
	Status      string
	Output      []string
	Failure     string
	FailureCode string
	CreatedAt   time.Time
	UpdatedAt   *time.Time
}

// ReferenceImage is an image the remote model should condition on.
type ReferenceImage struct {
	URI string
	Tag string
}

// CreateRequest describes a task to create. Endpoint selects the remote
// operation (e.g. "text_to_image"); fields irrelevant to it are ignored.
type CreateRequest struct {
	Endpoint        string
	Model           string
	PromptText      string
	Ratio           string
	PromptImage     string
	VideoURI        string
	Duration        int
	Seed            *int
	ReferenceImages []ReferenceImage
}

// Client talks to the remote task API.
type Client interface {
	// CreateTask submits a new task and returns its initial state.
	CreateTask(ctx context.Context, req CreateRequest) (*Task, error)

	// TaskStatus returns the current state of a task.
	TaskStatus(ctx context.Context, taskID string) (*Task, error)

	// CancelTask cancels a running task or deletes a finished one.
	// A task the remote side no longer knows about counts as cancelled.
	CancelTask(ctx context.Context, taskID string) error
}

// APIError carries the status and body of a non-2xx reply. It wraps ErrTransport.
type APIError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("remote api error: status %d: %s", e.StatusCode, e.Body)
}

// Unwrap lets errors.Is(err, ErrTransport) match API errors.
func (e *APIError) Unwrap() error {
	return ErrTransport
}

// Retryable reports whether repeating the request may succeed.
func (e *APIError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
