package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vpanel/economy-engine/internal/model"
)

// PostgresStore implements Store against the panel's users table. Only
// the four balance columns are ever written.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed account store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Load(ctx context.Context, userID int64) (*model.Account, error) {
	var a model.Account
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, u, d, transfer_enable, expired_at
		 FROM users WHERE id = $1`, userID).
		Scan(&a.ID, &a.Email, &a.UsedUpload, &a.UsedDownload, &a.QuotaBytes, &a.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load account %d: %w", userID, err)
	}
	return &a, nil
}

func (s *PostgresStore) Save(ctx context.Context, acct *model.Account) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users
		 SET u = $2, d = $3, transfer_enable = $4, expired_at = $5
		 WHERE id = $1`,
		acct.ID, acct.UsedUpload, acct.UsedDownload, acct.QuotaBytes, acct.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("save account %d: %w", acct.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrAccountNotFound
	}
	return nil
}
