package polling

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/mocks"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 13, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixture bundles a Poller with in-memory collaborators and a fake clock.
type fixture struct {
	poller    *Poller
	client    *mocks.MockRemoteClient
	jobs      *mocks.MockJobStore
	users     *mocks.MockUserStore
	finalizer *mocks.MockFinalizer
	clock     *fakeClock
	user      *domain.User
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	user, err := domain.NewUser(100, "device-token")
	require.NoError(t, err)

	f := &fixture{
		client: mocks.NewMockRemoteClient(),
		jobs:   mocks.NewMockJobStore(),
		users:  mocks.NewMockUserStore(user),
		clock:  newFakeClock(),
		user:   user,
	}
	f.finalizer = mocks.NewMockFinalizer(f.jobs, f.users)
	f.poller = NewPoller(f.client, f.jobs, f.finalizer, cfg, quietLogger())
	f.poller.now = f.clock.Now
	f.poller.handler.now = f.clock.Now
	return f
}

// addJob stores a job for taskID and registers it.
func (f *fixture) addJob(t *testing.T, taskID string, cost int) *domain.Job {
	t.Helper()
	job, err := domain.NewJob(f.user.ID, taskID, domain.TaskKindTextToImage, "prompt", cost, domain.JobStatusPending)
	require.NoError(t, err)
	require.NoError(t, f.jobs.Create(t.Context(), job))
	require.True(t, f.poller.Register(taskID))
	return job
}

// step advances the clock to the task's next poll time and runs one tick.
func (f *fixture) step(t *testing.T, taskID string) {
	t.Helper()
	tracked, ok := f.poller.Tracked(taskID)
	require.True(t, ok, "task %s is not tracked", taskID)
	if wait := tracked.NextPollAt.Sub(f.clock.Now()); wait > 0 {
		f.clock.Advance(wait)
	}
	f.poller.tick(t.Context())
}

func (f *fixture) stored(t *testing.T, taskID string) *domain.Job {
	t.Helper()
	job, ok := f.jobs.Snapshot(taskID)
	require.True(t, ok)
	return job
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxConcurrentPolls = 4
	return cfg
}
