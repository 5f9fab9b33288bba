package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sidebet/relayer/internal/domain"
)

// UserStore implements domain.UserStore using PostgreSQL.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a new UserStore.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

// EnsureUser inserts a user record on first reference; a no-op if the
// address is already known.
func (s *UserStore) EnsureUser(ctx context.Context, address string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (address) VALUES ($1) ON CONFLICT (address) DO NOTHING`,
		domain.NormalizeAddress(address))
	if err != nil {
		return fmt.Errorf("postgres: ensure user %s: %w", address, err)
	}
	return nil
}
