package mocks

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/store"
)

// MockJobStore is an in-memory store.JobStore.
type MockJobStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*domain.Job

	CreateFn          func(ctx context.Context, job *domain.Job) error
	GetByIDFn         func(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	FindByTaskIDFn    func(ctx context.Context, taskID string) (*domain.Job, error)
	ListByUserFn      func(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Job, error)
	LoadNonTerminalFn func(ctx context.Context) ([]*domain.Job, error)
	SaveFn            func(ctx context.Context, job *domain.Job) error
	MarkFinalizedFn   func(ctx context.Context, job *domain.Job, at time.Time) (bool, error)
}

var _ store.JobStore = (*MockJobStore)(nil)

// NewMockJobStore creates an empty MockJobStore with default implementations.
func NewMockJobStore() *MockJobStore {
	s := &MockJobStore{jobs: make(map[uuid.UUID]*domain.Job)}

	s.CreateFn = func(_ context.Context, job *domain.Job) error {
		if err := job.Validate(); err != nil {
			return store.ErrInvalidEntity
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, existing := range s.jobs {
			if existing.TaskID == job.TaskID {
				return store.ErrTaskIDExists
			}
		}
		s.jobs[job.ID] = copyJob(job)
		return nil
	}

	s.GetByIDFn = func(_ context.Context, id uuid.UUID) (*domain.Job, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		job, ok := s.jobs[id]
		if !ok {
			return nil, store.ErrJobNotFound
		}
		return copyJob(job), nil
	}

	s.FindByTaskIDFn = func(_ context.Context, taskID string) (*domain.Job, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, job := range s.jobs {
			if job.TaskID == taskID {
				return copyJob(job), nil
			}
		}
		return nil, store.ErrJobNotFound
	}

	s.ListByUserFn = func(_ context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Job, error) {
		all := s.filter(func(j *domain.Job) bool { return j.UserID == userID })
		sort.Slice(all, func(i, k int) bool { return all[i].CreatedAt.After(all[k].CreatedAt) })
		if offset >= len(all) {
			return []*domain.Job{}, nil
		}
		all = all[offset:]
		if limit > 0 && limit < len(all) {
			all = all[:limit]
		}
		return all, nil
	}

	s.LoadNonTerminalFn = func(_ context.Context) ([]*domain.Job, error) {
		jobs := s.filter(func(j *domain.Job) bool { return !j.IsTerminal() && !j.IsFinalized() })
		sort.Slice(jobs, func(i, k int) bool { return jobs[i].CreatedAt.Before(jobs[k].CreatedAt) })
		return jobs, nil
	}

	s.SaveFn = func(_ context.Context, job *domain.Job) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		stored, ok := s.jobs[job.ID]
		if !ok {
			return store.ErrJobNotFound
		}
		if stored.FinalizedAt != nil {
			return nil
		}
		updated := copyJob(job)
		updated.FinalizedAt = stored.FinalizedAt
		s.jobs[job.ID] = updated
		return nil
	}

	s.MarkFinalizedFn = func(_ context.Context, job *domain.Job, at time.Time) (bool, error) {
		if !job.IsTerminal() {
			return false, store.ErrInvalidEntity
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		stored, ok := s.jobs[job.ID]
		if !ok {
			return false, store.ErrJobNotFound
		}
		if stored.FinalizedAt != nil {
			return false, nil
		}
		at = at.UTC()
		updated := copyJob(job)
		updated.FinalizedAt = &at
		s.jobs[job.ID] = updated
		job.FinalizedAt = &at
		return true, nil
	}

	return s
}

// Put stores job as-is, bypassing validation. Useful for seeding.
func (s *MockJobStore) Put(job *domain.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = copyJob(job)
}

// Snapshot returns a copy of the stored job with the given task id.
func (s *MockJobStore) Snapshot(taskID string) (*domain.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		if job.TaskID == taskID {
			return copyJob(job), true
		}
	}
	return nil, false
}

func (s *MockJobStore) filter(keep func(*domain.Job) bool) []*domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if keep(job) {
			out = append(out, copyJob(job))
		}
	}
	return out
}

// Create implements store.JobStore.
func (s *MockJobStore) Create(ctx context.Context, job *domain.Job) error {
	return s.CreateFn(ctx, job)
}

// GetByID implements store.JobStore.
func (s *MockJobStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	return s.GetByIDFn(ctx, id)
}

// FindByTaskID implements store.JobStore.
func (s *MockJobStore) FindByTaskID(ctx context.Context, taskID string) (*domain.Job, error) {
	return s.FindByTaskIDFn(ctx, taskID)
}

// ListByUser implements store.JobStore.
func (s *MockJobStore) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Job, error) {
	return s.ListByUserFn(ctx, userID, limit, offset)
}

// LoadNonTerminal implements store.JobStore.
func (s *MockJobStore) LoadNonTerminal(ctx context.Context) ([]*domain.Job, error) {
	return s.LoadNonTerminalFn(ctx)
}

// Save implements store.JobStore.
func (s *MockJobStore) Save(ctx context.Context, job *domain.Job) error {
	return s.SaveFn(ctx, job)
}

// MarkFinalized implements store.JobStore.
func (s *MockJobStore) MarkFinalized(ctx context.Context, job *domain.Job, at time.Time) (bool, error) {
	return s.MarkFinalizedFn(ctx, job, at)
}

// WithTx returns the same store; the mock has no transactions.
func (s *MockJobStore) WithTx(*sql.Tx) store.JobStore {
	return s
}

func copyJob(j *domain.Job) *domain.Job {
	c := *j
	c.OutputURLs = append([]string{}, j.OutputURLs...)
	if j.FinalizedAt != nil {
		t := *j.FinalizedAt
		c.FinalizedAt = &t
	}
	return &c
}
