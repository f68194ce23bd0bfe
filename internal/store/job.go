package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/genflow/internal/domain"
)

// JobStore defines the interface for generation job persistence.
type JobStore interface {
	// Create saves a new job.
	// Returns ErrTaskIDExists if a job already tracks the same remote task.
	// Returns ErrInvalidEntity if the job fails validation.
	Create(ctx context.Context, job *domain.Job) error

	// GetByID retrieves a job by its ID.
	// Returns ErrJobNotFound if the job does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error)

	// FindByTaskID retrieves the job tracking the given remote task.
	// Returns ErrJobNotFound if no job tracks it.
	FindByTaskID(ctx context.Context, taskID string) (*domain.Job, error)

	// ListByUser returns a user's jobs, newest first.
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Job, error)

	// LoadNonTerminal returns every job whose status is non-terminal and
	// whose finalization has not been recorded. Used for startup recovery.
	LoadNonTerminal(ctx context.Context) ([]*domain.Job, error)

	// Save persists the mutable fields of a job (status, outputs, failure
	// details, updated_at). It never touches finalized_at, and it leaves a
	// finalized job unchanged without error.
	// Returns ErrJobNotFound if the job does not exist.
	Save(ctx context.Context, job *domain.Job) error

	// MarkFinalized writes the job's terminal fields together with
	// finalized_at, but only if finalized_at is still unset. It reports
	// whether this call performed the write; false means another caller
	// already finalized the job and no side effects may follow.
	MarkFinalized(ctx context.Context, job *domain.Job, at time.Time) (bool, error)

	// WithTx returns a new JobStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) JobStore
}
