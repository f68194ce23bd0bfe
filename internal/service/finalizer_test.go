package service_test

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/phrazzld/genflow/internal/catalog"
	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/mocks"
	"github.com/phrazzld/genflow/internal/notify"
	"github.com/phrazzld/genflow/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type finalizerFixture struct {
	finalizer *service.JobFinalizer
	db        sqlmock.Sqlmock
	jobs      *mocks.MockJobStore
	users     *mocks.MockUserStore
	sink      *mocks.TestifyMockSink
	user      *domain.User
}

func newFinalizerFixture(t *testing.T, deviceToken string) *finalizerFixture {
	t.Helper()

	db, dbMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	user, err := domain.NewUser(100, deviceToken)
	require.NoError(t, err)

	f := &finalizerFixture{
		db:    dbMock,
		jobs:  mocks.NewMockJobStore(),
		users: mocks.NewMockUserStore(user),
		sink:  &mocks.TestifyMockSink{},
		user:  user,
	}
	f.finalizer = service.NewJobFinalizer(
		db,
		f.jobs,
		f.users,
		f.sink,
		catalog.Default(),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return f
}

// seed stores a running job and returns a copy the caller can move to a
// terminal state.
func (f *finalizerFixture) seed(t *testing.T, kind domain.TaskKind, cost int) *domain.Job {
	t.Helper()
	job, err := domain.NewJob(f.user.ID, "task-"+uuid.NewString()[:8], kind, "prompt", cost, domain.JobStatusRunning)
	require.NoError(t, err)
	f.jobs.Put(job)
	return job
}

func (f *finalizerFixture) balance(t *testing.T) int {
	t.Helper()
	u, err := f.users.GetByID(context.Background(), f.user.ID)
	require.NoError(t, err)
	return u.Credits
}

func TestJobFinalizer_Succeeded(t *testing.T) {
	t.Parallel()
	f := newFinalizerFixture(t, "device-abc")
	job := f.seed(t, domain.TaskKindImageToVideo, 25)
	require.NoError(t, job.Succeed([]string{"https://cdn.example.com/out.mp4"}, time.Now()))

	f.db.ExpectBegin()
	f.db.ExpectCommit()

	want := notify.Message{
		Title: "Video Created!",
		Body:  service.NotificationBody,
		Data: map[string]string{
			"type":     "runway",
			"jobId":    job.ID.String(),
			"taskType": "image_to_video",
		},
	}
	f.sink.On("Send", mock.Anything, "device-abc", want).Return(nil).Once()

	require.NoError(t, f.finalizer.Finalize(t.Context(), job))

	assert.Equal(t, 75, f.balance(t))
	assert.Equal(t, []mocks.Debit{{UserID: f.user.ID, Amount: 25}}, f.users.Debits())
	assert.True(t, job.IsFinalized())

	stored, ok := f.jobs.Snapshot(job.TaskID)
	require.True(t, ok)
	assert.Equal(t, domain.JobStatusSucceeded, stored.Status)
	assert.NotNil(t, stored.FinalizedAt)

	f.sink.AssertExpectations(t)
	assert.NoError(t, f.db.ExpectationsWereMet())
}

func TestJobFinalizer_RepeatedCallsDebitOnce(t *testing.T) {
	t.Parallel()
	f := newFinalizerFixture(t, "device-abc")
	job := f.seed(t, domain.TaskKindTextToImage, 15)
	require.NoError(t, job.Succeed([]string{"https://cdn.example.com/out.png"}, time.Now()))

	for range 3 {
		f.db.ExpectBegin()
		f.db.ExpectCommit()
	}
	f.sink.On("Send", mock.Anything, "device-abc", mock.Anything).Return(nil).Once()

	for range 3 {
		// Each call sees the job as the poller would: terminal but not yet
		// known to be finalized.
		attempt := *job
		attempt.FinalizedAt = nil
		require.NoError(t, f.finalizer.Finalize(t.Context(), &attempt))
	}

	assert.Len(t, f.users.Debits(), 1)
	assert.Equal(t, 85, f.balance(t))
	f.sink.AssertNumberOfCalls(t, "Send", 1)
	assert.NoError(t, f.db.ExpectationsWereMet())
}

func TestJobFinalizer_NoDebitWithoutSuccess(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		terminate func(*domain.Job) error
		status    domain.JobStatus
	}{
		{
			name:      "failed",
			terminate: func(j *domain.Job) error { return j.Fail("content moderation", "SAFETY", time.Now()) },
			status:    domain.JobStatusFailed,
		},
		{
			name:      "cancelled",
			terminate: func(j *domain.Job) error { return j.Cancel(time.Now()) },
			status:    domain.JobStatusCancelled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFinalizerFixture(t, "device-abc")
			job := f.seed(t, domain.TaskKindTextToImage, 15)
			require.NoError(t, tt.terminate(job))

			f.db.ExpectBegin()
			f.db.ExpectCommit()

			require.NoError(t, f.finalizer.Finalize(t.Context(), job))

			assert.Empty(t, f.users.Debits())
			assert.Equal(t, 100, f.balance(t))
			stored, _ := f.jobs.Snapshot(job.TaskID)
			assert.Equal(t, tt.status, stored.Status)
			assert.NotNil(t, stored.FinalizedAt)
			f.sink.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
			assert.NoError(t, f.db.ExpectationsWereMet())
		})
	}
}

func TestJobFinalizer_StoreErrorsRollBack(t *testing.T) {
	t.Parallel()

	t.Run("mark finalized fails", func(t *testing.T) {
		t.Parallel()
		f := newFinalizerFixture(t, "device-abc")
		job := f.seed(t, domain.TaskKindTextToImage, 15)
		require.NoError(t, job.Succeed([]string{"https://cdn.example.com/out.png"}, time.Now()))

		dbErr := errors.New("connection reset")
		f.jobs.MarkFinalizedFn = func(context.Context, *domain.Job, time.Time) (bool, error) {
			return false, dbErr
		}
		f.db.ExpectBegin()
		f.db.ExpectRollback()

		err := f.finalizer.Finalize(t.Context(), job)
		assert.ErrorIs(t, err, dbErr)
		assert.Empty(t, f.users.Debits())
		f.sink.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
		assert.NoError(t, f.db.ExpectationsWereMet())
	})

	t.Run("debit fails", func(t *testing.T) {
		t.Parallel()
		f := newFinalizerFixture(t, "device-abc")
		job := f.seed(t, domain.TaskKindTextToImage, 15)
		require.NoError(t, job.Succeed([]string{"https://cdn.example.com/out.png"}, time.Now()))

		dbErr := errors.New("deadlock detected")
		f.users.DebitCreditsFn = func(context.Context, uuid.UUID, int) (int, error) {
			return 0, dbErr
		}
		f.db.ExpectBegin()
		f.db.ExpectRollback()

		err := f.finalizer.Finalize(t.Context(), job)
		assert.ErrorIs(t, err, dbErr)
		f.sink.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
		assert.NoError(t, f.db.ExpectationsWereMet())
	})

	t.Run("commit fails", func(t *testing.T) {
		t.Parallel()
		f := newFinalizerFixture(t, "device-abc")
		job := f.seed(t, domain.TaskKindTextToImage, 15)
		require.NoError(t, job.Succeed([]string{"https://cdn.example.com/out.png"}, time.Now()))

		f.db.ExpectBegin()
		f.db.ExpectCommit().WillReturnError(sql.ErrConnDone)

		err := f.finalizer.Finalize(t.Context(), job)
		assert.ErrorIs(t, err, sql.ErrConnDone)
		f.sink.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestJobFinalizer_Notification(t *testing.T) {
	t.Parallel()

	t.Run("no device token", func(t *testing.T) {
		t.Parallel()
		f := newFinalizerFixture(t, "")
		job := f.seed(t, domain.TaskKindVideoUpscale, 10)
		require.NoError(t, job.Succeed([]string{"https://cdn.example.com/up.mp4"}, time.Now()))
		f.db.ExpectBegin()
		f.db.ExpectCommit()

		require.NoError(t, f.finalizer.Finalize(t.Context(), job))
		assert.Len(t, f.users.Debits(), 1)
		f.sink.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("delivery failure does not fail finalization", func(t *testing.T) {
		t.Parallel()
		f := newFinalizerFixture(t, "device-abc")
		job := f.seed(t, domain.TaskKindVideoUpscale, 10)
		require.NoError(t, job.Succeed([]string{"https://cdn.example.com/up.mp4"}, time.Now()))
		f.db.ExpectBegin()
		f.db.ExpectCommit()
		f.sink.On("Send", mock.Anything, "device-abc", mock.MatchedBy(func(m notify.Message) bool {
			return m.Title == "Video Upscaled!"
		})).Return(errors.New("registration token not registered")).Once()

		require.NoError(t, f.finalizer.Finalize(t.Context(), job))
		assert.Equal(t, 90, f.balance(t))
		f.sink.AssertExpectations(t)
	})

	t.Run("uncatalogued kind uses fallback title", func(t *testing.T) {
		t.Parallel()
		f := newFinalizerFixture(t, "device-abc")
		job := f.seed(t, "legacy_kind", 0)
		require.NoError(t, job.Succeed([]string{"https://cdn.example.com/x"}, time.Now()))
		f.db.ExpectBegin()
		f.db.ExpectCommit()
		f.sink.On("Send", mock.Anything, "device-abc", mock.MatchedBy(func(m notify.Message) bool {
			return m.Title == "Generation Complete!" && m.Data["taskType"] == "legacy_kind"
		})).Return(nil).Once()

		require.NoError(t, f.finalizer.Finalize(t.Context(), job))
		f.sink.AssertExpectations(t)
	})
}
