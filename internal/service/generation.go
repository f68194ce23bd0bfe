package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/phrazzld/genflow/internal/catalog"
	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/platform/logger"
	"github.com/phrazzld/genflow/internal/remote"
	"github.com/phrazzld/genflow/internal/store"
)

// Page size limits for ListJobs.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Registrar hands a remote task to the poller. *polling.Poller satisfies it.
type Registrar interface {
	Register(taskID string) bool
}

// SubmitRequest describes a generation requested by a user. Empty optional
// fields fall back to the catalog entry of Kind.
type SubmitRequest struct {
	UserID          uuid.UUID
	Kind            domain.TaskKind
	Prompt          string
	PromptImage     string
	VideoURI        string
	Model           string
	Ratio           string
	Duration        int
	Seed            *int
	ReferenceImages []remote.ReferenceImage
}

// GenerationService submits, lists and cancels generation jobs.
type GenerationService struct {
	jobs      store.JobStore
	users     store.UserStore
	client    remote.Client
	catalog   *catalog.Catalog
	registrar Registrar
	logger    *slog.Logger
}

// NewGenerationService creates a GenerationService.
func NewGenerationService(
	jobs store.JobStore,
	users store.UserStore,
	client remote.Client,
	cat *catalog.Catalog,
	registrar Registrar,
	logger *slog.Logger,
) *GenerationService {
	return &GenerationService{
		jobs:      jobs,
		users:     users,
		client:    client,
		catalog:   cat,
		registrar: registrar,
		logger:    logger.With("component", "generation_service"),
	}
}

// Submit creates the remote task for req, records it as a job priced from
// the catalog, and registers the task for polling. The user is charged only
// when the job succeeds; Submit merely checks that they can afford it.
func (s *GenerationService) Submit(ctx context.Context, req SubmitRequest) (*domain.Job, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With(
		"user_id", req.UserID,
		"kind", req.Kind,
	)

	entry, ok := s.catalog.Lookup(req.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, req.Kind)
	}

	user, err := s.users.GetByID(ctx, req.UserID)
	if err != nil {
		return nil, NewServiceError("generation", "submit", err)
	}
	if !user.CanAfford(entry.Cost) {
		log.Info("rejected submission, insufficient credits",
			"credits", user.Credits,
			"cost", entry.Cost)
		return nil, ErrInsufficientCredits
	}

	task, err := s.client.CreateTask(ctx, createRequest(entry, req))
	if err != nil {
		log.Error("failed to create remote task", "error", err)
		if rejected(err) {
			return nil, fmt.Errorf("%w: %w", ErrRemoteRejected, err)
		}
		return nil, NewServiceError("generation", "submit", err)
	}

	job, err := domain.NewJob(req.UserID, task.ID, req.Kind, req.Prompt, entry.Cost, domain.JobStatus(task.Status))
	if err != nil {
		return nil, NewServiceError("generation", "submit", err)
	}

	if err := s.jobs.Create(ctx, job); err != nil {
		log.Error("failed to persist job, cancelling remote task",
			"error", err,
			"task_id", task.ID)
		if cancelErr := s.client.CancelTask(ctx, task.ID); cancelErr != nil {
			log.Warn("failed to cancel untracked remote task",
				"error", cancelErr,
				"task_id", task.ID)
		}
		return nil, NewServiceError("generation", "submit", err)
	}

	s.registrar.Register(task.ID)

	log.Info("submitted generation job",
		"job_id", job.ID,
		"task_id", job.TaskID,
		"status", job.Status,
		"cost", job.Cost)
	return job, nil
}

// GetJob returns the job with the given id if userID owns it.
func (s *GenerationService) GetJob(ctx context.Context, userID, jobID uuid.UUID) (*domain.Job, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, NewServiceError("generation", "get_job", err)
	}
	if job.UserID != userID {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// ListJobs returns a page of the user's jobs, newest first. A non-positive
// limit selects DefaultPageSize; larger limits are capped at MaxPageSize.
func (s *GenerationService) ListJobs(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Job, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	limit = min(limit, MaxPageSize)
	offset = max(offset, 0)

	jobs, err := s.jobs.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, NewServiceError("generation", "list_jobs", err)
	}
	return jobs, nil
}

// Cancel asks the remote API to cancel the job's task. The job itself is
// moved to CANCELLED by the poller when it observes the remote status, so
// the returned job still shows its last known status.
func (s *GenerationService) Cancel(ctx context.Context, userID, jobID uuid.UUID) (*domain.Job, error) {
	job, err := s.GetJob(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	if job.IsTerminal() {
		return nil, ErrJobFinished
	}

	if err := s.client.CancelTask(ctx, job.TaskID); err != nil {
		s.logger.ErrorContext(ctx, "failed to cancel remote task",
			"error", err,
			"job_id", job.ID,
			"task_id", job.TaskID)
		return nil, NewServiceError("generation", "cancel", err)
	}

	// The task may have dropped out of the registry, e.g. after a restart
	// raced with recovery; registering again is a no-op otherwise.
	s.registrar.Register(job.TaskID)

	s.logger.InfoContext(ctx, "cancellation requested",
		"job_id", job.ID,
		"task_id", job.TaskID)
	return job, nil
}

func createRequest(entry catalog.Entry, req SubmitRequest) remote.CreateRequest {
	out := remote.CreateRequest{
		Endpoint:        entry.Endpoint,
		Model:           entry.Model,
		PromptText:      req.Prompt,
		Ratio:           entry.Ratio,
		PromptImage:     req.PromptImage,
		VideoURI:        req.VideoURI,
		Duration:        entry.Duration,
		Seed:            req.Seed,
		ReferenceImages: req.ReferenceImages,
	}
	if req.Model != "" {
		out.Model = req.Model
	}
	if req.Ratio != "" {
		out.Ratio = req.Ratio
	}
	if req.Duration > 0 {
		out.Duration = req.Duration
	}
	return out
}

// rejected reports whether err is a client error from the remote API that
// retrying will not fix.
func rejected(err error) bool {
	var apiErr *remote.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode >= http.StatusBadRequest &&
		apiErr.StatusCode < http.StatusInternalServerError &&
		!apiErr.Retryable()
}
