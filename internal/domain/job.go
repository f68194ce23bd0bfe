package domain

import (
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a generation job.
// The values mirror the status vocabulary of the remote task API.
type JobStatus string

// Possible job status values
const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusThrottled JobStatus = "THROTTLED"
	JobStatusSucceeded JobStatus = "SUCCEEDED"
	JobStatusFailed    JobStatus = "FAILED"
	JobStatusCancelled JobStatus = "CANCELLED"
)

// NonTerminalJobStatuses lists the statuses a job can still leave.
var NonTerminalJobStatuses = []JobStatus{
	JobStatusPending,
	JobStatusRunning,
	JobStatusThrottled,
}

// IsTerminal reports whether no further transition is permitted from s.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// IsValid reports whether s is one of the known job statuses.
func (s JobStatus) IsValid() bool {
	return s.IsTerminal() || slices.Contains(NonTerminalJobStatuses, s)
}

// TaskKind classifies the kind of generation a job performs, e.g. "text_to_image".
type TaskKind string

// Task kinds supported by the remote API
const (
	TaskKindTextToImage  TaskKind = "text_to_image"
	TaskKindImageToVideo TaskKind = "image_to_video"
	TaskKindVideoUpscale TaskKind = "video_upscale"
)

// Validation errors for Job
var (
	ErrEmptyJobID      = errors.New("job ID cannot be empty")
	ErrEmptyJobUserID  = errors.New("job user ID cannot be empty")
	ErrEmptyJobTaskID  = errors.New("job task ID cannot be empty")
	ErrEmptyJobKind    = errors.New("job kind cannot be empty")
	ErrNegativeJobCost = errors.New("job cost cannot be negative")
)

// Job is the durable record of one remote generation task.
//
// Cost is fixed when the job is created and is the exact amount debited
// from the owner when the job succeeds. FinalizedAt is set exactly once,
// together with the terminal status.
type Job struct {
	ID            uuid.UUID  `json:"id"`
	UserID        uuid.UUID  `json:"user_id"`
	TaskID        string     `json:"task_id"`
	Kind          TaskKind   `json:"kind"`
	Prompt        string     `json:"prompt,omitempty"`
	Status        JobStatus  `json:"status"`
	OutputURLs    []string   `json:"output_urls"`
	Cost          int        `json:"cost"`
	FailureReason string     `json:"failure_reason,omitempty"`
	FailureCode   string     `json:"failure_code,omitempty"`
	FinalizedAt   *time.Time `json:"finalized_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// NewJob creates a Job for a freshly created remote task.
// The initial status is whatever the remote API reported on creation;
// unknown or terminal values fall back to PENDING.
func NewJob(userID uuid.UUID, taskID string, kind TaskKind, prompt string, cost int, status JobStatus) (*Job, error) {
	if !status.IsValid() || status.IsTerminal() {
		status = JobStatusPending
	}

	now := time.Now().UTC()
	job := &Job{
		ID:         uuid.New(),
		UserID:     userID,
		TaskID:     taskID,
		Kind:       kind,
		Prompt:     prompt,
		Status:     status,
		OutputURLs: []string{},
		Cost:       cost,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := job.Validate(); err != nil {
		return nil, err
	}

	return job, nil
}

// Validate checks if the Job has valid data.
func (j *Job) Validate() error {
	if j.ID == uuid.Nil {
		return ErrEmptyJobID
	}
	if j.UserID == uuid.Nil {
		return ErrEmptyJobUserID
	}
	if j.TaskID == "" {
		return ErrEmptyJobTaskID
	}
	if j.Kind == "" {
		return ErrEmptyJobKind
	}
	if j.Cost < 0 {
		return ErrNegativeJobCost
	}
	if !j.Status.IsValid() {
		return ErrInvalidJobStatus
	}
	return nil
}

// IsTerminal reports whether the job has reached a final status.
func (j *Job) IsTerminal() bool {
	return j.Status.IsTerminal()
}

// Refresh records a non-terminal status observation. An invalid status keeps
// the stored status and only advances UpdatedAt.
func (j *Job) Refresh(status JobStatus, at time.Time) error {
	if j.IsTerminal() {
		return ErrJobTerminal
	}
	if status.IsTerminal() {
		return ErrInvalidTransition
	}
	if status.IsValid() {
		j.Status = status
	}
	j.UpdatedAt = at.UTC()
	return nil
}

// Succeed moves the job to SUCCEEDED with the given output artifacts.
func (j *Job) Succeed(outputs []string, at time.Time) error {
	if j.IsTerminal() {
		return ErrJobTerminal
	}
	j.Status = JobStatusSucceeded
	j.OutputURLs = slices.Clone(outputs)
	j.UpdatedAt = at.UTC()
	return nil
}

// Fail moves the job to FAILED, recording the reason and code verbatim.
func (j *Job) Fail(reason, code string, at time.Time) error {
	if j.IsTerminal() {
		return ErrJobTerminal
	}
	j.Status = JobStatusFailed
	j.FailureReason = reason
	j.FailureCode = code
	j.UpdatedAt = at.UTC()
	return nil
}

// Cancel moves the job to CANCELLED.
func (j *Job) Cancel(at time.Time) error {
	if j.IsTerminal() {
		return ErrJobTerminal
	}
	j.Status = JobStatusCancelled
	j.UpdatedAt = at.UTC()
	return nil
}

// IsFinalized reports whether the finalization side effects have been recorded.
func (j *Job) IsFinalized() bool {
	return j.FinalizedAt != nil
}
