package mocks

import (
	"context"
	"sync"

	"github.com/phrazzld/genflow/internal/remote"
)

// MockRemoteClient is a function-field remote.Client that counts status calls.
type MockRemoteClient struct {
	CreateTaskFn func(ctx context.Context, req remote.CreateRequest) (*remote.Task, error)
	TaskStatusFn func(ctx context.Context, taskID string) (*remote.Task, error)
	CancelTaskFn func(ctx context.Context, taskID string) error

	mu          sync.Mutex
	statusCalls map[string]int
}

var _ remote.Client = (*MockRemoteClient)(nil)

// NewMockRemoteClient returns a client whose tasks are always RUNNING.
func NewMockRemoteClient() *MockRemoteClient {
	return &MockRemoteClient{
		CreateTaskFn: func(_ context.Context, _ remote.CreateRequest) (*remote.Task, error) {
			return &remote.Task{ID: "task-1", Status: remote.StatusPending}, nil
		},
		TaskStatusFn: func(_ context.Context, taskID string) (*remote.Task, error) {
			return &remote.Task{ID: taskID, Status: remote.StatusRunning}, nil
		},
		CancelTaskFn: func(context.Context, string) error { return nil },
		statusCalls:  make(map[string]int),
	}
}

// CreateTask implements remote.Client.
func (c *MockRemoteClient) CreateTask(ctx context.Context, req remote.CreateRequest) (*remote.Task, error) {
	return c.CreateTaskFn(ctx, req)
}

// TaskStatus implements remote.Client.
func (c *MockRemoteClient) TaskStatus(ctx context.Context, taskID string) (*remote.Task, error) {
	c.mu.Lock()
	c.statusCalls[taskID]++
	c.mu.Unlock()
	return c.TaskStatusFn(ctx, taskID)
}

// CancelTask implements remote.Client.
func (c *MockRemoteClient) CancelTask(ctx context.Context, taskID string) error {
	return c.CancelTaskFn(ctx, taskID)
}

// StatusCalls returns how many times TaskStatus was called for taskID.
func (c *MockRemoteClient) StatusCalls(taskID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusCalls[taskID]
}
