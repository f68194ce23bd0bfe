package polling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/remote"
	"github.com/phrazzld/genflow/internal/store"
)

// Failure details recorded when the poller gives up on a task.
const (
	ReasonPollError = "polling error, retries exhausted"
	CodePollError   = "POLL_ERROR"
	ReasonTimeout   = "timed out"
	CodeTimeout     = "POLL_TIMEOUT"
)

// Finalizer records a job's terminal outcome and its side effects.
// Implementations must apply the side effects at most once per job, no
// matter how often Finalize is called for it.
type Finalizer interface {
	Finalize(ctx context.Context, job *domain.Job) error
}

// Handler performs one poll of one tracked task.
type Handler struct {
	client    remote.Client
	jobs      store.JobStore
	finalizer Finalizer
	registry  *Registry
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
}

// NewHandler creates a Handler that reschedules and removes entries in registry.
func NewHandler(
	client remote.Client,
	jobs store.JobStore,
	finalizer Finalizer,
	registry *Registry,
	cfg Config,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		client:    client,
		jobs:      jobs,
		finalizer: finalizer,
		registry:  registry,
		cfg:       cfg.withDefaults(),
		logger:    logger,
		now:       time.Now,
	}
}

// Poll fetches the remote status of t and applies the resulting transition.
// No error escapes: failures are logged and retried on the task's schedule.
func (h *Handler) Poll(ctx context.Context, t TrackedTask) {
	log := h.logger.With(slog.String("task_id", t.TaskID))

	defer func() {
		if p := recover(); p != nil {
			log.Error("panic while polling task",
				slog.Any("panic", p),
				slog.String("stack", string(debug.Stack())))
			h.transient(ctx, log, t, fmt.Errorf("panic: %v", p))
		}
	}()

	task, err := h.client.TaskStatus(ctx, t.TaskID)
	if err != nil {
		h.transient(ctx, log, t, err)
		return
	}

	job, err := h.jobs.FindByTaskID(ctx, t.TaskID)
	if errors.Is(err, store.ErrJobNotFound) {
		log.Warn("no job record for tracked task, dropping")
		h.registry.Remove(t.TaskID)
		return
	}
	if err != nil {
		h.transient(ctx, log, t, err)
		return
	}
	log = log.With(slog.String("job_id", job.ID.String()))

	if job.IsTerminal() {
		log.Debug("job already terminal, dropping", slog.String("status", string(job.Status)))
		h.registry.Remove(t.TaskID)
		return
	}

	now := h.now()
	switch o := classify(task).(type) {
	case succeeded:
		_ = job.Succeed(o.outputs, now)
		h.finish(ctx, log, t, job)
	case failed:
		_ = job.Fail(o.reason, o.code, now)
		h.finish(ctx, log, t, job)
	case cancelled:
		_ = job.Cancel(now)
		h.finish(ctx, log, t, job)
	case inProgress:
		h.progress(ctx, log, t, job, o, now)
	}
}

// progress handles a non-terminal observation.
func (h *Handler) progress(ctx context.Context, log *slog.Logger, t TrackedTask, job *domain.Job, o inProgress, now time.Time) {
	if o.status == "" {
		log.Warn("unrecognized remote status", slog.String("status", o.reported))
	}

	_ = job.Refresh(o.status, now)
	if err := h.jobs.Save(ctx, job); err != nil {
		log.Error("failed to save refreshed job", slog.String("error", err.Error()))
	}

	t.RetryCount++
	if t.RetryCount >= h.cfg.MaxRetries {
		log.Error("task did not finish in time", slog.Int("retry_count", t.RetryCount))
		_ = job.Fail(ReasonTimeout, CodeTimeout, now)
		h.finish(ctx, log, t, job)
		return
	}

	t.CurrentDelay = h.cfg.NextDelay(t.CurrentDelay)
	t.NextPollAt = now.Add(t.CurrentDelay)
	h.registry.Reschedule(t)

	log.Debug("task still in progress",
		slog.String("status", string(job.Status)),
		slog.Int("retry_count", t.RetryCount),
		slog.Duration("next_poll_in", t.CurrentDelay))
}

// transient handles a failure to learn the task's status. The delay is kept
// and the attempt counts against the budget.
func (h *Handler) transient(ctx context.Context, log *slog.Logger, t TrackedTask, cause error) {
	t.RetryCount++
	log.Warn("poll attempt failed",
		slog.String("error", cause.Error()),
		slog.Int("retry_count", t.RetryCount))

	if t.RetryCount < h.cfg.MaxRetries {
		h.retryLater(t)
		return
	}

	job, err := h.jobs.FindByTaskID(ctx, t.TaskID)
	if err != nil {
		// Recovery on the next start picks the job up again.
		log.Error("retries exhausted and job unavailable, dropping",
			slog.String("error", err.Error()))
		h.registry.Remove(t.TaskID)
		return
	}
	if job.IsTerminal() {
		h.registry.Remove(t.TaskID)
		return
	}

	log.Error("retries exhausted, failing job", slog.String("job_id", job.ID.String()))
	_ = job.Fail(ReasonPollError, CodePollError, h.now())
	h.finish(ctx, log, t, job)
}

// finish finalizes a job that just became terminal. A failure counts
// against the retry budget like any other store error. Once the budget is
// spent the entry is dropped; the job is still unfinalized, so startup
// recovery registers it again.
func (h *Handler) finish(ctx context.Context, log *slog.Logger, t TrackedTask, job *domain.Job) {
	if err := h.finalizer.Finalize(ctx, job); err != nil {
		t.RetryCount++
		if t.RetryCount >= h.cfg.MaxRetries {
			log.Error("failed to finalize job, retries exhausted, dropping",
				slog.String("status", string(job.Status)),
				slog.Int("retry_count", t.RetryCount),
				slog.String("error", err.Error()))
			h.registry.Remove(t.TaskID)
			return
		}
		log.Error("failed to finalize job, will retry",
			slog.String("status", string(job.Status)),
			slog.Int("retry_count", t.RetryCount),
			slog.String("error", err.Error()))
		h.retryLater(t)
		return
	}

	h.registry.Remove(t.TaskID)
	log.Info("task finished",
		slog.String("status", string(job.Status)),
		slog.Int("retry_count", t.RetryCount))
}

func (h *Handler) retryLater(t TrackedTask) {
	t.NextPollAt = h.now().Add(t.CurrentDelay)
	h.registry.Reschedule(t)
}
