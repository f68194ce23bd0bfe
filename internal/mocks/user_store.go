package mocks

import (
	"context"
	"database/sql"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/store"
)

// MockUserStore is an in-memory store.UserStore that records debits.
type MockUserStore struct {
	mu     sync.Mutex
	users  map[uuid.UUID]*domain.User
	debits []Debit

	GetByIDFn      func(ctx context.Context, id uuid.UUID) (*domain.User, error)
	DebitCreditsFn func(ctx context.Context, id uuid.UUID, amount int) (int, error)
}

// Debit records one DebitCredits call that changed a balance.
type Debit struct {
	UserID uuid.UUID
	Amount int
}

var _ store.UserStore = (*MockUserStore)(nil)

// NewMockUserStore creates a MockUserStore holding the given users.
func NewMockUserStore(users ...*domain.User) *MockUserStore {
	s := &MockUserStore{users: make(map[uuid.UUID]*domain.User)}
	for _, u := range users {
		c := *u
		s.users[u.ID] = &c
	}

	s.GetByIDFn = func(_ context.Context, id uuid.UUID) (*domain.User, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		u, ok := s.users[id]
		if !ok {
			return nil, store.ErrUserNotFound
		}
		c := *u
		return &c, nil
	}

	s.DebitCreditsFn = func(_ context.Context, id uuid.UUID, amount int) (int, error) {
		if amount < 0 {
			return 0, domain.ErrNegativeDebit
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		u, ok := s.users[id]
		if !ok {
			return 0, store.ErrUserNotFound
		}
		u.Credits -= amount
		s.debits = append(s.debits, Debit{UserID: id, Amount: amount})
		return u.Credits, nil
	}

	return s
}

// Debits returns every recorded debit in call order.
func (s *MockUserStore) Debits() []Debit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Debit(nil), s.debits...)
}

// GetByID implements store.UserStore.
func (s *MockUserStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return s.GetByIDFn(ctx, id)
}

// DebitCredits implements store.UserStore.
func (s *MockUserStore) DebitCredits(ctx context.Context, id uuid.UUID, amount int) (int, error) {
	return s.DebitCreditsFn(ctx, id, amount)
}

// WithTx returns the same store; the mock has no transactions.
func (s *MockUserStore) WithTx(*sql.Tx) store.UserStore {
	return s
}
