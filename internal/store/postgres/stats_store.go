package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sidebet/relayer/internal/domain"
)

// StatsStore implements domain.StatsStore using PostgreSQL aggregate
// queries.
type StatsStore struct {
	pool *pgxpool.Pool
}

// NewStatsStore creates a new StatsStore.
func NewStatsStore(pool *pgxpool.Pool) *StatsStore {
	return &StatsStore{pool: pool}
}

// HealthCounts aggregates counters for the health/metrics surface.
func (s *StatsStore) HealthCounts(ctx context.Context) (domain.HealthCounts, error) {
	var out domain.HealthCounts
	out.MarketsByStatus = make(map[string]int64)

	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM markets GROUP BY status`)
	if err != nil {
		return domain.HealthCounts{}, fmt.Errorf("postgres: markets by status: %w", err)
	}
	for rows.Next() {
		var status int
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return domain.HealthCounts{}, fmt.Errorf("postgres: scan markets by status: %w", err)
		}
		out.MarketsByStatus[domain.MarketStatus(status).String()] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return domain.HealthCounts{}, fmt.Errorf("postgres: markets by status rows: %w", err)
	}

	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM attestations WHERE is_valid = TRUE`).Scan(&out.AttestationCount); err != nil {
		return domain.HealthCounts{}, fmt.Errorf("postgres: attestation count: %w", err)
	}
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM participants`).Scan(&out.ParticipantCount); err != nil {
		return domain.HealthCounts{}, fmt.Errorf("postgres: participant count: %w", err)
	}
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM finalization_queue WHERE completed_at IS NULL`).Scan(&out.PendingFinalization); err != nil {
		return domain.HealthCounts{}, fmt.Errorf("postgres: pending finalization count: %w", err)
	}

	return out, nil
}
