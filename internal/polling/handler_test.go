package polling

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/mocks"
	"github.com/phrazzld/genflow/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sequence returns a TaskStatusFn that reports each status in turn and
// repeats the last one.
func sequence(reports ...remote.Task) func(context.Context, string) (*remote.Task, error) {
	var (
		mu sync.Mutex
		i  int
	)
	return func(_ context.Context, taskID string) (*remote.Task, error) {
		mu.Lock()
		defer mu.Unlock()
		r := reports[min(i, len(reports)-1)]
		i++
		r.ID = taskID
		return &r, nil
	}
}

func TestPoll_SuccessAfterThreeRunningPolls(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig())
	f.addJob(t, "task-a", 15)
	f.client.TaskStatusFn = sequence(
		remote.Task{Status: remote.StatusRunning},
		remote.Task{Status: remote.StatusRunning},
		remote.Task{Status: remote.StatusRunning},
		remote.Task{Status: remote.StatusSucceeded, Output: []string{"https://cdn.example/a.png"}},
	)

	statuses := []domain.JobStatus{f.stored(t, "task-a").Status}
	registeredAt := f.clock.Now()

	f.step(t, "task-a")
	statuses = append(statuses, f.stored(t, "task-a").Status)
	tracked, ok := f.poller.Tracked("task-a")
	require.True(t, ok)
	assert.Equal(t, 1, tracked.RetryCount)
	assert.Equal(t, 7500*time.Millisecond, tracked.CurrentDelay)
	assert.Equal(t, registeredAt.Add(5*time.Second+7500*time.Millisecond), tracked.NextPollAt)

	for range 2 {
		f.step(t, "task-a")
		statuses = append(statuses, f.stored(t, "task-a").Status)
	}
	tracked, ok = f.poller.Tracked("task-a")
	require.True(t, ok)
	assert.Equal(t, 3, tracked.RetryCount)
	assert.Equal(t, 16875*time.Millisecond, tracked.CurrentDelay)

	f.step(t, "task-a")
	statuses = append(statuses, f.stored(t, "task-a").Status)

	assert.Equal(t, []domain.JobStatus{
		domain.JobStatusPending,
		domain.JobStatusRunning,
		domain.JobStatusRunning,
		domain.JobStatusRunning,
		domain.JobStatusSucceeded,
	}, statuses)

	_, ok = f.poller.Tracked("task-a")
	assert.False(t, ok)

	job := f.stored(t, "task-a")
	assert.Equal(t, []string{"https://cdn.example/a.png"}, job.OutputURLs)
	assert.True(t, job.IsFinalized())

	assert.Equal(t, []mocks.Debit{{UserID: f.user.ID, Amount: 15}}, f.users.Debits())
	assert.Equal(t, []string{"task-a"}, f.finalizer.Notified())
	assert.Equal(t, 4, f.client.StatusCalls("task-a"))
}

func TestPoll_RemoteFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig())
	f.addJob(t, "task-b", 15)
	f.client.TaskStatusFn = sequence(remote.Task{
		Status:      remote.StatusFailed,
		Failure:     "Prompt rejected by content moderation",
		FailureCode: "SAFETY.INPUT.TEXT",
	})

	f.step(t, "task-b")

	_, ok := f.poller.Tracked("task-b")
	assert.False(t, ok)

	job := f.stored(t, "task-b")
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Equal(t, "Prompt rejected by content moderation", job.FailureReason)
	assert.Equal(t, "SAFETY.INPUT.TEXT", job.FailureCode)
	assert.True(t, job.IsFinalized())
	assert.Empty(t, f.users.Debits())
}

func TestPoll_TimesOutAfterMaxRetries(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MaxRetries = 3
	f := newFixture(t, cfg)
	f.addJob(t, "task-c", 15)

	f.step(t, "task-c")
	f.step(t, "task-c")
	_, ok := f.poller.Tracked("task-c")
	require.True(t, ok)

	f.step(t, "task-c")
	_, ok = f.poller.Tracked("task-c")
	assert.False(t, ok)

	job := f.stored(t, "task-c")
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Equal(t, ReasonTimeout, job.FailureReason)
	assert.Equal(t, CodeTimeout, job.FailureCode)
	assert.True(t, job.IsFinalized())
	assert.Equal(t, 3, f.client.StatusCalls("task-c"))
	assert.Empty(t, f.users.Debits())
}

func TestPoll_BackoffIsMonotonicAndCapped(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig())
	f.addJob(t, "task-backoff", 15)

	prev := time.Duration(0)
	for range 10 {
		f.step(t, "task-backoff")
		tracked, ok := f.poller.Tracked("task-backoff")
		require.True(t, ok)
		assert.GreaterOrEqual(t, tracked.CurrentDelay, prev)
		assert.LessOrEqual(t, tracked.CurrentDelay, 30*time.Second)
		prev = tracked.CurrentDelay
	}
	assert.Equal(t, 30*time.Second, prev)
}

func TestPoll_TransientErrorsExhaustBudget(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MaxRetries = 3
	f := newFixture(t, cfg)
	f.addJob(t, "task-err", 15)
	f.client.TaskStatusFn = func(context.Context, string) (*remote.Task, error) {
		return nil, remote.ErrTransport
	}

	f.step(t, "task-err")
	tracked, ok := f.poller.Tracked("task-err")
	require.True(t, ok)
	assert.Equal(t, 1, tracked.RetryCount)
	assert.Equal(t, 5*time.Second, tracked.CurrentDelay)
	assert.Equal(t, f.clock.Now().Add(5*time.Second), tracked.NextPollAt)

	f.step(t, "task-err")
	f.step(t, "task-err")

	_, ok = f.poller.Tracked("task-err")
	assert.False(t, ok)
	job := f.stored(t, "task-err")
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Equal(t, ReasonPollError, job.FailureReason)
	assert.Equal(t, CodePollError, job.FailureCode)
	assert.True(t, job.IsFinalized())
}

func TestPoll_OrphanIsDropped(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig())
	require.True(t, f.poller.Register("task-orphan"))
	f.client.TaskStatusFn = sequence(remote.Task{Status: remote.StatusSucceeded, Output: []string{"u"}})

	f.step(t, "task-orphan")

	_, ok := f.poller.Tracked("task-orphan")
	assert.False(t, ok)
	assert.Empty(t, f.finalizer.Applied())
}

func TestPoll_AlreadyTerminalJobIsDropped(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig())
	job := f.addJob(t, "task-done", 15)
	require.NoError(t, job.Succeed([]string{"u"}, time.Now()))
	_, err := f.jobs.MarkFinalized(t.Context(), job, time.Now())
	require.NoError(t, err)
	f.client.TaskStatusFn = sequence(remote.Task{Status: remote.StatusSucceeded, Output: []string{"u"}})

	f.step(t, "task-done")

	_, ok := f.poller.Tracked("task-done")
	assert.False(t, ok)
	assert.Empty(t, f.finalizer.Applied())
	assert.Empty(t, f.users.Debits())
}

func TestPoll_CancelledIsNotCharged(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig())
	f.addJob(t, "task-cancel", 15)
	f.client.TaskStatusFn = sequence(remote.Task{Status: remote.StatusCancelled})

	f.step(t, "task-cancel")

	job := f.stored(t, "task-cancel")
	assert.Equal(t, domain.JobStatusCancelled, job.Status)
	assert.True(t, job.IsFinalized())
	assert.Empty(t, f.users.Debits())
}

func TestPoll_UnrecognizedStatusIsNonTerminal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		report remote.Task
	}{
		{"unknown_status", remote.Task{Status: "ARCHIVED"}},
		{"success_without_output", remote.Task{Status: remote.StatusSucceeded}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, testConfig())
			f.addJob(t, "task-odd", 15)
			f.client.TaskStatusFn = sequence(tt.report)

			f.step(t, "task-odd")

			job := f.stored(t, "task-odd")
			assert.Equal(t, domain.JobStatusPending, job.Status)
			assert.False(t, job.IsFinalized())
			assert.WithinDuration(t, f.clock.Now(), job.UpdatedAt, 0)

			tracked, ok := f.poller.Tracked("task-odd")
			require.True(t, ok)
			assert.Equal(t, 1, tracked.RetryCount)
			assert.Equal(t, 7500*time.Millisecond, tracked.CurrentDelay)
			assert.Empty(t, f.users.Debits())
		})
	}
}

func TestPoll_SaveErrorStillReschedules(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig())
	f.addJob(t, "task-save", 15)
	f.jobs.SaveFn = func(context.Context, *domain.Job) error {
		return errors.New("connection reset")
	}

	f.step(t, "task-save")

	tracked, ok := f.poller.Tracked("task-save")
	require.True(t, ok)
	assert.Equal(t, 1, tracked.RetryCount)
}

func TestPoll_StoreErrorIsTransient(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig())
	f.addJob(t, "task-db", 15)
	f.jobs.FindByTaskIDFn = func(context.Context, string) (*domain.Job, error) {
		return nil, errors.New("connection refused")
	}

	f.step(t, "task-db")

	tracked, ok := f.poller.Tracked("task-db")
	require.True(t, ok)
	assert.Equal(t, 1, tracked.RetryCount)
	assert.Equal(t, 5*time.Second, tracked.CurrentDelay)
}

func TestPoll_ExhaustedWithoutStoreIsRecoveredLater(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MaxRetries = 2
	f := newFixture(t, cfg)
	f.addJob(t, "task-lost", 15)

	find := f.jobs.FindByTaskIDFn
	f.jobs.FindByTaskIDFn = func(context.Context, string) (*domain.Job, error) {
		return nil, errors.New("connection refused")
	}

	f.step(t, "task-lost")
	f.step(t, "task-lost")

	_, ok := f.poller.Tracked("task-lost")
	assert.False(t, ok)
	assert.Equal(t, domain.JobStatusPending, f.stored(t, "task-lost").Status)

	f.jobs.FindByTaskIDFn = find
	n, err := f.poller.Recover(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPoll_FinalizeErrorConsumesBudget(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig())
	f.addJob(t, "task-fin", 15)
	f.client.TaskStatusFn = sequence(remote.Task{Status: remote.StatusSucceeded, Output: []string{"u"}})

	finalize := f.finalizer.FinalizeFn
	calls := 0
	f.finalizer.FinalizeFn = func(ctx context.Context, job *domain.Job) error {
		calls++
		if calls == 1 {
			return errors.New("commit failed")
		}
		return finalize(ctx, job)
	}

	f.step(t, "task-fin")
	tracked, ok := f.poller.Tracked("task-fin")
	require.True(t, ok)
	assert.Equal(t, 1, tracked.RetryCount)
	assert.Equal(t, 5*time.Second, tracked.CurrentDelay)
	assert.Empty(t, f.users.Debits())

	f.step(t, "task-fin")
	_, ok = f.poller.Tracked("task-fin")
	assert.False(t, ok)
	assert.Len(t, f.users.Debits(), 1)
}

func TestPoll_PersistentFinalizeErrorIsDropped(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MaxRetries = 3
	f := newFixture(t, cfg)
	f.addJob(t, "task-stuck", 15)
	f.client.TaskStatusFn = sequence(remote.Task{Status: remote.StatusSucceeded, Output: []string{"u"}})
	f.finalizer.FinalizeFn = func(context.Context, *domain.Job) error {
		return errors.New("debit failed")
	}

	for range 3 {
		f.step(t, "task-stuck")
	}

	_, ok := f.poller.Tracked("task-stuck")
	assert.False(t, ok)
	assert.Equal(t, 3, f.client.StatusCalls("task-stuck"))
	assert.Empty(t, f.users.Debits())

	job := f.stored(t, "task-stuck")
	assert.False(t, job.IsFinalized())

	n, err := f.poller.Recover(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPoll_StaleProgressDoesNotRegressFinalizedJob(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig())
	job := f.addJob(t, "task-race", 15)
	stale := *job
	f.client.TaskStatusFn = sequence(remote.Task{Status: remote.StatusRunning})

	// Another instance finalizes the job after this one has read it.
	f.jobs.FindByTaskIDFn = func(ctx context.Context, _ string) (*domain.Job, error) {
		done := stale
		assert.NoError(t, done.Succeed([]string{"u"}, time.Now()))
		_, err := f.jobs.MarkFinalized(ctx, &done, time.Now())
		assert.NoError(t, err)
		copied := stale
		return &copied, nil
	}

	f.step(t, "task-race")

	stored := f.stored(t, "task-race")
	assert.Equal(t, domain.JobStatusSucceeded, stored.Status)
	assert.True(t, stored.IsFinalized())
}

func TestPoll_PanicIsTransient(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig())
	f.addJob(t, "task-panic", 15)
	f.addJob(t, "task-calm", 15)

	f.client.TaskStatusFn = func(_ context.Context, taskID string) (*remote.Task, error) {
		if taskID == "task-panic" {
			panic("decoder exploded")
		}
		return &remote.Task{ID: taskID, Status: remote.StatusSucceeded, Output: []string{"u"}}, nil
	}

	f.clock.Advance(5 * time.Second)
	f.poller.tick(t.Context())

	tracked, ok := f.poller.Tracked("task-panic")
	require.True(t, ok)
	assert.Equal(t, 1, tracked.RetryCount)

	_, ok = f.poller.Tracked("task-calm")
	assert.False(t, ok)
	assert.Equal(t, []string{"task-calm"}, f.finalizer.Applied())
}

func TestPoll_ConcurrentDuplicatePollsFinalizeOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig())
	f.addJob(t, "task-dup", 15)
	f.client.TaskStatusFn = sequence(remote.Task{Status: remote.StatusSucceeded, Output: []string{"u"}})

	tracked, ok := f.poller.Tracked("task-dup")
	require.True(t, ok)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.poller.handler.Poll(t.Context(), tracked)
		}()
	}
	wg.Wait()

	assert.Equal(t, []string{"task-dup"}, f.finalizer.Applied())
	assert.Equal(t, []mocks.Debit{{UserID: f.user.ID, Amount: 15}}, f.users.Debits())
	_, ok = f.poller.Tracked("task-dup")
	assert.False(t, ok)
}
