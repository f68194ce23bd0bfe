package polling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() Config {
	return Config{
		TickInterval:       5 * time.Millisecond,
		InitialDelay:       0,
		MaxDelay:           10 * time.Millisecond,
		GrowthFactor:       1.5,
		MaxRetries:         50,
		MaxConcurrentPolls: 4,
		PollTimeout:        time.Second,
	}
}

func useRealClock(f *fixture) {
	f.poller.now = time.Now
	f.poller.handler.now = time.Now
}

func seedJob(t *testing.T, f *fixture, taskID string, status domain.JobStatus, finalized bool) *domain.Job {
	t.Helper()
	job, err := domain.NewJob(f.user.ID, taskID, domain.TaskKindImageToVideo, "", 25, domain.JobStatusRunning)
	require.NoError(t, err)
	switch status {
	case domain.JobStatusSucceeded:
		require.NoError(t, job.Succeed([]string{"u"}, time.Now()))
	case domain.JobStatusFailed:
		require.NoError(t, job.Fail("boom", "X", time.Now()))
	default:
		job.Status = status
	}
	if finalized {
		now := time.Now()
		job.FinalizedAt = &now
	}
	f.jobs.Put(job)
	return job
}

func TestRecover_RegistersOnlyUnfinishedJobs(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig())
	seedJob(t, f, "task-pending", domain.JobStatusPending, false)
	seedJob(t, f, "task-running", domain.JobStatusRunning, false)
	seedJob(t, f, "task-throttled", domain.JobStatusThrottled, false)
	seedJob(t, f, "task-succeeded", domain.JobStatusSucceeded, true)
	seedJob(t, f, "task-failed", domain.JobStatusFailed, true)

	n, err := f.poller.Recover(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"task-pending", "task-running", "task-throttled"}, f.poller.registry.TaskIDs())

	tracked, ok := f.poller.Tracked("task-running")
	require.True(t, ok)
	assert.Equal(t, f.clock.Now().Add(5*time.Second), tracked.NextPollAt)
	assert.Zero(t, tracked.RetryCount)

	n, err = f.poller.Recover(t.Context())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 3, f.poller.Len())
}

func TestStart_RecoversAndDrivesJobsToCompletion(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fastConfig())
	useRealClock(f)
	seedJob(t, f, "task-recovered", domain.JobStatusRunning, false)
	f.client.TaskStatusFn = sequence(
		remote.Task{Status: remote.StatusRunning},
		remote.Task{Status: remote.StatusSucceeded, Output: []string{"https://cdn.example/v.mp4"}},
	)

	require.NoError(t, f.poller.Start(context.Background()))
	t.Cleanup(f.poller.Stop)

	_, ok := f.poller.Tracked("task-recovered")
	assert.True(t, ok, "recovery runs before Start returns")

	require.Eventually(t, func() bool {
		return len(f.finalizer.Applied()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	job := f.stored(t, "task-recovered")
	assert.Equal(t, domain.JobStatusSucceeded, job.Status)
	assert.Equal(t, 25, f.users.Debits()[0].Amount)
}

func TestStart_Twice(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fastConfig())
	useRealClock(f)

	require.NoError(t, f.poller.Start(context.Background()))
	assert.ErrorIs(t, f.poller.Start(context.Background()), ErrAlreadyStarted)

	f.poller.Stop()
	f.poller.Stop()

	require.NoError(t, f.poller.Start(context.Background()))
	f.poller.Stop()
}

func TestStart_ParentCancellationResetsPoller(t *testing.T) {
	t.Parallel()

	cfg := fastConfig()
	cfg.MaxRetries = 100000
	f := newFixture(t, cfg)
	useRealClock(f)
	seedJob(t, f, "task-live", domain.JobStatusRunning, false)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, f.poller.Start(ctx))
	require.Equal(t, 1, f.poller.Len())

	cancel()
	assert.Eventually(t, func() bool {
		return f.poller.Len() == 0
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, f.poller.Start(context.Background()))
	t.Cleanup(f.poller.Stop)
	_, ok := f.poller.Tracked("task-live")
	assert.True(t, ok)
}

func TestStart_RecoveryFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fastConfig())
	f.jobs.LoadNonTerminalFn = func(context.Context) ([]*domain.Job, error) {
		return nil, errors.New("relation does not exist")
	}

	err := f.poller.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to recover jobs")

	// A failed start leaves the poller stopped.
	f.poller.Stop()
}

func TestStop_WaitsForInFlightPollAndClears(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fastConfig())
	useRealClock(f)
	f.addJob(t, "task-slow", 15)
	f.addJob(t, "task-other", 15)

	started := make(chan struct{})
	release := make(chan struct{})
	var (
		once    sync.Once
		pollErr atomic.Value
	)
	f.client.TaskStatusFn = func(ctx context.Context, taskID string) (*remote.Task, error) {
		if taskID == "task-slow" {
			once.Do(func() { close(started) })
			<-release
			pollErr.Store(fmt.Sprint(ctx.Err()))
		}
		return &remote.Task{ID: taskID, Status: remote.StatusRunning}, nil
	}

	require.NoError(t, f.poller.Start(context.Background()))
	<-started

	stopped := make(chan struct{})
	go func() {
		f.poller.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a poll was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the poll finished")
	}

	assert.Equal(t, "<nil>", pollErr.Load())
	assert.Zero(t, f.poller.Len())
}

func TestTick_BoundsConcurrency(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MaxConcurrentPolls = 2
	f := newFixture(t, cfg)

	const tasks = 6
	for i := range tasks {
		f.addJob(t, fmt.Sprintf("task-%d", i), 15)
	}

	var active, peak atomic.Int32
	f.client.TaskStatusFn = func(_ context.Context, taskID string) (*remote.Task, error) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		active.Add(-1)
		return &remote.Task{ID: taskID, Status: remote.StatusRunning}, nil
	}

	f.clock.Advance(5 * time.Second)
	polled := f.poller.tick(t.Context())

	assert.Equal(t, tasks, polled)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	for i := range tasks {
		assert.Equal(t, 1, f.client.StatusCalls(fmt.Sprintf("task-%d", i)))
	}
}

func TestTick_SkipsTasksNotYetDue(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig())
	f.addJob(t, "task-early", 15)

	assert.Zero(t, f.poller.tick(t.Context()))
	assert.Zero(t, f.client.StatusCalls("task-early"))

	f.clock.Advance(5 * time.Second)
	assert.Equal(t, 1, f.poller.tick(t.Context()))
}

func TestRegister_Idempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig())
	assert.True(t, f.poller.Register("task-x"))
	assert.False(t, f.poller.Register("task-x"))
	assert.Equal(t, 1, f.poller.Len())
}
