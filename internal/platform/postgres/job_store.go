package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/platform/logger"
	"github.com/phrazzld/genflow/internal/store"
)

const jobColumns = `id, user_id, task_id, kind, prompt, status, output_urls, cost,
	failure_reason, failure_code, finalized_at, created_at, updated_at`

// PostgresJobStore implements the store.JobStore interface
// using a PostgreSQL database as the storage backend.
type PostgresJobStore struct {
	db store.DBTX
}

// NewPostgresJobStore creates a new PostgreSQL implementation of the JobStore interface.
func NewPostgresJobStore(db store.DBTX) *PostgresJobStore {
	return &PostgresJobStore{db: db}
}

// Ensure PostgresJobStore implements store.JobStore interface
var _ store.JobStore = (*PostgresJobStore)(nil)

// WithTx returns a new JobStore instance that uses the provided transaction.
func (s *PostgresJobStore) WithTx(tx *sql.Tx) store.JobStore {
	return &PostgresJobStore{db: tx}
}

// Create implements store.JobStore.Create
func (s *PostgresJobStore) Create(ctx context.Context, job *domain.Job) error {
	log := logger.FromContextOrDefault(ctx, slog.Default())

	if err := job.Validate(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	outputs, err := encodeOutputs(job.OutputURLs)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO generation_jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		job.ID, job.UserID, job.TaskID, string(job.Kind), job.Prompt, string(job.Status),
		outputs, job.Cost, job.FailureReason, job.FailureCode, job.FinalizedAt,
		job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			log.Warn("job for remote task already exists",
				slog.String("task_id", job.TaskID))
			return fmt.Errorf("%w: %v", store.ErrTaskIDExists, err)
		}
		log.Error("failed to insert job",
			slog.String("job_id", job.ID.String()),
			slog.String("task_id", job.TaskID),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to insert job: %w", MapError(err))
	}

	log.Debug("job created",
		slog.String("job_id", job.ID.String()),
		slog.String("task_id", job.TaskID),
		slog.String("kind", string(job.Kind)))
	return nil
}

// GetByID implements store.JobStore.GetByID
func (s *PostgresJobStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM generation_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if err != nil {
		return nil, s.lookupError(ctx, err, slog.String("job_id", id.String()))
	}
	return job, nil
}

// FindByTaskID implements store.JobStore.FindByTaskID
func (s *PostgresJobStore) FindByTaskID(ctx context.Context, taskID string) (*domain.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM generation_jobs WHERE task_id = $1`, taskID)
	job, err := scanJob(row)
	if err != nil {
		return nil, s.lookupError(ctx, err, slog.String("task_id", taskID))
	}
	return job, nil
}

func (s *PostgresJobStore) lookupError(ctx context.Context, err error, attr slog.Attr) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrJobNotFound
	}
	logger.FromContextOrDefault(ctx, slog.Default()).Error("failed to get job",
		attr, slog.String("error", err.Error()))
	return fmt.Errorf("failed to get job: %w", MapError(err))
}

// ListByUser implements store.JobStore.ListByUser
func (s *PostgresJobStore) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM generation_jobs
		WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", MapError(err))
	}
	return collectJobs(rows)
}

// LoadNonTerminal implements store.JobStore.LoadNonTerminal
func (s *PostgresJobStore) LoadNonTerminal(ctx context.Context) ([]*domain.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM generation_jobs
		WHERE status IN ($1, $2, $3) AND finalized_at IS NULL
		ORDER BY created_at
	`,
		string(domain.JobStatusPending),
		string(domain.JobStatusRunning),
		string(domain.JobStatusThrottled),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load non-terminal jobs: %w", MapError(err))
	}
	return collectJobs(rows)
}

// Save implements store.JobStore.Save
func (s *PostgresJobStore) Save(ctx context.Context, job *domain.Job) error {
	outputs, err := encodeOutputs(job.OutputURLs)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE generation_jobs
		SET status = $1, output_urls = $2, failure_reason = $3, failure_code = $4, updated_at = $5
		WHERE id = $6 AND finalized_at IS NULL
	`, string(job.Status), outputs, job.FailureReason, job.FailureCode, job.UpdatedAt, job.ID)
	if err != nil {
		logger.FromContextOrDefault(ctx, slog.Default()).Error("failed to save job",
			slog.String("job_id", job.ID.String()),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to save job: %w", MapError(err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 1 {
		return nil
	}

	// A finalized row keeps its terminal fields.
	exists, err := s.exists(ctx, job.ID)
	if err != nil {
		return err
	}
	if !exists {
		return store.ErrJobNotFound
	}
	logger.FromContextOrDefault(ctx, slog.Default()).Debug("job already finalized, save skipped",
		slog.String("job_id", job.ID.String()))
	return nil
}

// MarkFinalized implements store.JobStore.MarkFinalized
func (s *PostgresJobStore) MarkFinalized(ctx context.Context, job *domain.Job, at time.Time) (bool, error) {
	if !job.IsTerminal() {
		return false, fmt.Errorf("%w: job %s is not terminal", store.ErrInvalidEntity, job.ID)
	}

	outputs, err := encodeOutputs(job.OutputURLs)
	if err != nil {
		return false, err
	}

	at = at.UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE generation_jobs
		SET status = $1, output_urls = $2, failure_reason = $3, failure_code = $4,
			finalized_at = $5, updated_at = $6
		WHERE id = $7 AND finalized_at IS NULL
	`, string(job.Status), outputs, job.FailureReason, job.FailureCode, at, job.UpdatedAt, job.ID)
	if err != nil {
		return false, fmt.Errorf("failed to finalize job: %w", MapError(err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 1 {
		job.FinalizedAt = &at
		return true, nil
	}

	exists, err := s.exists(ctx, job.ID)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, store.ErrJobNotFound
	}
	return false, nil
}

func (s *PostgresJobStore) exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM generation_jobs WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check job existence: %w", MapError(err))
	}
	return exists, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		job         domain.Job
		kind        string
		status      string
		outputs     []byte
		finalizedAt sql.NullTime
	)
	err := row.Scan(
		&job.ID, &job.UserID, &job.TaskID, &kind, &job.Prompt, &status, &outputs, &job.Cost,
		&job.FailureReason, &job.FailureCode, &finalizedAt, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Kind = domain.TaskKind(kind)
	job.Status = domain.JobStatus(status)
	job.OutputURLs = []string{}
	if len(outputs) > 0 {
		if err := json.Unmarshal(outputs, &job.OutputURLs); err != nil {
			return nil, fmt.Errorf("failed to decode output urls for job %s: %w", job.ID, err)
		}
	}
	if finalizedAt.Valid {
		t := finalizedAt.Time.UTC()
		job.FinalizedAt = &t
	}

	return &job, nil
}

func collectJobs(rows *sql.Rows) ([]*domain.Job, error) {
	defer func() { _ = rows.Close() }()

	jobs := make([]*domain.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate jobs: %w", MapError(err))
	}
	return jobs, nil
}

func encodeOutputs(urls []string) (string, error) {
	if urls == nil {
		urls = []string{}
	}
	b, err := json.Marshal(urls)
	if err != nil {
		return "", fmt.Errorf("failed to encode output urls: %w", err)
	}
	return string(b), nil
}
