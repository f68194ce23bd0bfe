package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/genflow/internal/catalog"
	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/notify"
	"github.com/phrazzld/genflow/internal/platform/logger"
	"github.com/phrazzld/genflow/internal/polling"
	"github.com/phrazzld/genflow/internal/store"
)

// NotificationBody is the text of every completion notification.
const NotificationBody = "Your generation is ready. Tap to view your results."

// NotificationType tags the data payload so clients can route the message.
const NotificationType = "runway"

// JobFinalizer records terminal job outcomes. The terminal status, the
// finalized_at marker and the credit debit are written in one transaction,
// and only by the call that sets the marker, so a job is charged at most
// once however many times it is finalized.
type JobFinalizer struct {
	db      *sql.DB
	jobs    store.JobStore
	users   store.UserStore
	sink    notify.Sink
	catalog *catalog.Catalog
	logger  *slog.Logger
	now     func() time.Time
}

var _ polling.Finalizer = (*JobFinalizer)(nil)

// NewJobFinalizer creates a JobFinalizer.
func NewJobFinalizer(
	db *sql.DB,
	jobs store.JobStore,
	users store.UserStore,
	sink notify.Sink,
	cat *catalog.Catalog,
	logger *slog.Logger,
) *JobFinalizer {
	return &JobFinalizer{
		db:      db,
		jobs:    jobs,
		users:   users,
		sink:    sink,
		catalog: cat,
		logger:  logger.With("component", "job_finalizer"),
		now:     time.Now,
	}
}

// Finalize implements polling.Finalizer. A successful job is debited its
// stored cost and its owner notified; failed and cancelled jobs are only
// recorded. Calling Finalize for a job that is already finalized is a no-op.
func (f *JobFinalizer) Finalize(ctx context.Context, job *domain.Job) error {
	log := logger.FromContextOrDefault(ctx, f.logger).With(
		"job_id", job.ID,
		"task_id", job.TaskID,
		"status", job.Status,
	)

	var (
		applied bool
		balance int
	)
	err := store.RunInTransaction(ctx, f.db, func(ctx context.Context, tx *sql.Tx) error {
		ok, err := f.jobs.WithTx(tx).MarkFinalized(ctx, job, f.now())
		if err != nil {
			return err
		}
		applied = ok
		if !ok || job.Status != domain.JobStatusSucceeded {
			return nil
		}

		balance, err = f.users.WithTx(tx).DebitCredits(ctx, job.UserID, job.Cost)
		return err
	})
	if err != nil {
		log.Error("failed to finalize job", "error", err)
		return fmt.Errorf("failed to finalize job %s: %w", job.ID, err)
	}

	if !applied {
		log.Debug("job already finalized, skipping side effects")
		return nil
	}

	if job.Status != domain.JobStatusSucceeded {
		log.Info("job finalized",
			"failure_reason", job.FailureReason,
			"failure_code", job.FailureCode)
		return nil
	}

	log.Info("job finalized, credits debited",
		"user_id", job.UserID,
		"cost", job.Cost,
		"balance", balance)
	f.notify(ctx, log, job)
	return nil
}

// notify announces a successful job to its owner. Delivery failures are
// logged and never affect the job.
func (f *JobFinalizer) notify(ctx context.Context, log *slog.Logger, job *domain.Job) {
	user, err := f.users.GetByID(ctx, job.UserID)
	if err != nil {
		log.Warn("failed to load user for notification", "error", err)
		return
	}
	if !user.HasDeviceToken() {
		log.Debug("user has no device token, skipping notification")
		return
	}

	msg := notify.Message{
		Title: f.catalog.Title(job.Kind),
		Body:  NotificationBody,
		Data: map[string]string{
			"type":     NotificationType,
			"jobId":    job.ID.String(),
			"taskType": string(job.Kind),
		},
	}
	if err := f.sink.Send(ctx, user.DeviceToken, msg); err != nil {
		log.Warn("failed to send notification", "error", err)
		return
	}
	log.Debug("notification sent")
}
