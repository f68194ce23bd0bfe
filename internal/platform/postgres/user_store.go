package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/platform/logger"
	"github.com/phrazzld/genflow/internal/store"
)

// PostgresUserStore implements the store.UserStore interface
// using a PostgreSQL database as the storage backend.
type PostgresUserStore struct {
	db store.DBTX
}

// NewPostgresUserStore creates a new PostgreSQL implementation of the UserStore interface.
// It accepts a database connection or transaction that should be initialized and managed by the caller.
func NewPostgresUserStore(db store.DBTX) *PostgresUserStore {
	return &PostgresUserStore{db: db}
}

// Ensure PostgresUserStore implements store.UserStore interface
var _ store.UserStore = (*PostgresUserStore)(nil)

// WithTx returns a new UserStore instance that uses the provided transaction.
func (s *PostgresUserStore) WithTx(tx *sql.Tx) store.UserStore {
	return &PostgresUserStore{db: tx}
}

// GetByID implements store.UserStore.GetByID
func (s *PostgresUserStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	log := logger.FromContextOrDefault(ctx, slog.Default())

	var (
		user        domain.User
		deviceToken sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, credits, device_token, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id).Scan(&user.ID, &user.Credits, &deviceToken, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrUserNotFound
		}
		log.Error("failed to get user",
			slog.String("user_id", id.String()),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to get user: %w", MapError(err))
	}
	user.DeviceToken = deviceToken.String

	return &user, nil
}

// DebitCredits implements store.UserStore.DebitCredits
func (s *PostgresUserStore) DebitCredits(ctx context.Context, id uuid.UUID, amount int) (int, error) {
	if amount < 0 {
		return 0, fmt.Errorf("%w: %w", store.ErrInvalidEntity, domain.ErrNegativeDebit)
	}

	log := logger.FromContextOrDefault(ctx, slog.Default())

	var balance int
	err := s.db.QueryRowContext(ctx, `
		UPDATE users
		SET credits = credits - $1, updated_at = $2
		WHERE id = $3
		RETURNING credits
	`, amount, time.Now().UTC(), id).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, store.ErrUserNotFound
		}
		log.Error("failed to debit credits",
			slog.String("user_id", id.String()),
			slog.Int("amount", amount),
			slog.String("error", err.Error()))
		return 0, store.NewStoreError("user", "debit", "failed to debit credits", MapError(err))
	}

	log.Debug("credits debited",
		slog.String("user_id", id.String()),
		slog.Int("amount", amount),
		slog.Int("balance", balance))
	return balance, nil
}
