package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sidebet/relayer/internal/domain"
)

// SyncLogStore implements domain.SyncLogStore using PostgreSQL.
type SyncLogStore struct {
	pool *pgxpool.Pool
}

// NewSyncLogStore creates a new SyncLogStore.
func NewSyncLogStore(pool *pgxpool.Pool) *SyncLogStore {
	return &SyncLogStore{pool: pool}
}

// LogSyncOperation appends a reconciler observability record.
func (s *SyncLogStore) LogSyncOperation(ctx context.Context, op, market, status, message string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sync_log (operation, market, status, message) VALUES ($1, $2, $3, $4)`,
		op, market, status, message)
	if err != nil {
		return fmt.Errorf("postgres: log sync operation %s: %w", op, err)
	}
	return nil
}

// RecentEntries returns the most recent sync log rows, newest first.
func (s *SyncLogStore) RecentEntries(ctx context.Context, limit int) ([]domain.SyncLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, operation, market, status, message, created_at FROM sync_log ORDER BY created_at DESC LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: recent sync entries: %w", err)
	}
	defer rows.Close()

	var out []domain.SyncLogEntry
	for rows.Next() {
		var e domain.SyncLogEntry
		var id int64
		if err := rows.Scan(&id, &e.Operation, &e.Market, &e.Status, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan sync entry: %w", err)
		}
		e.ID = strconv.FormatInt(id, 10)
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteOlderThan removes sync log rows created before the cutoff, used by
// the daily log-cleanup job, and returns the number of rows removed.
func (s *SyncLogStore) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sync_log WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete old sync log entries: %w", err)
	}
	return tag.RowsAffected(), nil
}
