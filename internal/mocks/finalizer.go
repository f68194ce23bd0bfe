package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/phrazzld/genflow/internal/domain"
)

// MockFinalizer marks jobs finalized in a MockJobStore and debits a
// MockUserStore for successful jobs, without a transaction. Successful jobs
// whose finalization took effect are also recorded as notified.
type MockFinalizer struct {
	FinalizeFn func(ctx context.Context, job *domain.Job) error

	mu       sync.Mutex
	applied  []string
	notified []string
}

// NewMockFinalizer creates a MockFinalizer backed by the given stores.
func NewMockFinalizer(jobs *MockJobStore, users *MockUserStore) *MockFinalizer {
	f := &MockFinalizer{}
	f.FinalizeFn = func(ctx context.Context, job *domain.Job) error {
		applied, err := jobs.MarkFinalized(ctx, job, time.Now())
		if err != nil || !applied {
			return err
		}
		if job.Status == domain.JobStatusSucceeded {
			if _, err := users.DebitCredits(ctx, job.UserID, job.Cost); err != nil {
				return err
			}
		}
		f.mu.Lock()
		f.applied = append(f.applied, job.TaskID)
		if job.Status == domain.JobStatusSucceeded {
			f.notified = append(f.notified, job.TaskID)
		}
		f.mu.Unlock()
		return nil
	}
	return f
}

// Finalize records the terminal outcome of job.
func (f *MockFinalizer) Finalize(ctx context.Context, job *domain.Job) error {
	return f.FinalizeFn(ctx, job)
}

// Applied lists the task ids whose finalization took effect, in order.
func (f *MockFinalizer) Applied() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.applied...)
}

// Notified lists the task ids a completion notification was attempted for.
func (f *MockFinalizer) Notified() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.notified...)
}
