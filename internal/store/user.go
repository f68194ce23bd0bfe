package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/genflow/internal/domain"
)

// UserStore defines the interface for the credit-holding side of users.
// Accounts themselves are provisioned elsewhere.
type UserStore interface {
	// GetByID retrieves a user by their unique ID.
	// Returns ErrUserNotFound if the user does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)

	// DebitCredits subtracts amount from the user's balance and returns the
	// new balance. The balance may become negative when concurrent jobs
	// complete after the same pre-check.
	// Returns ErrUserNotFound if the user does not exist.
	DebitCredits(ctx context.Context, id uuid.UUID, amount int) (int, error)

	// WithTx returns a new UserStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) UserStore
}
