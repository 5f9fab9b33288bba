package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sidebet/relayer/internal/domain"
)

// FinalizationQueueStore implements domain.FinalizationQueueStore using
// PostgreSQL.
type FinalizationQueueStore struct {
	pool *pgxpool.Pool
}

// NewFinalizationQueueStore creates a new FinalizationQueueStore.
func NewFinalizationQueueStore(pool *pgxpool.Pool) *FinalizationQueueStore {
	return &FinalizationQueueStore{pool: pool}
}

const queueCols = `market, signature_count, eligible_count, proposal_outcome, last_checked_at, attempted_at, completed_at, threshold_met, last_error`

func scanQueueEntry(row pgx.Row) (domain.FinalizationQueueEntry, error) {
	var e domain.FinalizationQueueEntry
	var outcome int
	err := row.Scan(&e.Market, &e.SignatureCount, &e.EligibleCount, &outcome,
		&e.LastCheckedAt, &e.AttemptedAt, &e.CompletedAt, &e.ThresholdMet, &e.LastError)
	if err != nil {
		return domain.FinalizationQueueEntry{}, err
	}
	e.ProposalOutcome = domain.Outcome(outcome)
	return e, nil
}

// EnqueueFinalization inserts or refreshes a market's finalization queue
// entry with the latest signature tally. thresholdMet reflects the market's
// own configured threshold percentage, computed by the caller via
// requiredSignatures — not a hardcoded fraction of eligibleCount.
func (s *FinalizationQueueStore) EnqueueFinalization(ctx context.Context, market string, sigCount, eligibleCount int, outcome domain.Outcome, thresholdMet bool) error {
	const query = `
		INSERT INTO finalization_queue (market, signature_count, eligible_count, proposal_outcome, last_checked_at, threshold_met)
		VALUES ($1, $2, $3, $4, NOW(), $5)
		ON CONFLICT (market) DO UPDATE SET
			signature_count  = EXCLUDED.signature_count,
			eligible_count   = EXCLUDED.eligible_count,
			proposal_outcome = EXCLUDED.proposal_outcome,
			last_checked_at  = NOW(),
			threshold_met    = EXCLUDED.threshold_met
		WHERE finalization_queue.completed_at IS NULL`

	addr := domain.NormalizeAddress(market)
	_, err := s.pool.Exec(ctx, query, addr, sigCount, eligibleCount, int(outcome), thresholdMet)
	if err != nil {
		return fmt.Errorf("postgres: enqueue finalization for %s: %w", addr, err)
	}
	return nil
}

// GetQueueEntry retrieves a market's finalization queue entry.
func (s *FinalizationQueueStore) GetQueueEntry(ctx context.Context, market string) (domain.FinalizationQueueEntry, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+queueCols+` FROM finalization_queue WHERE market = $1`,
		domain.NormalizeAddress(market))
	e, err := scanQueueEntry(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.FinalizationQueueEntry{}, domain.ErrNotFound
		}
		return domain.FinalizationQueueEntry{}, fmt.Errorf("postgres: get queue entry: %w", err)
	}
	return e, nil
}

// ListPending returns not-yet-completed queue entries, most recently checked
// last, up to limit.
func (s *FinalizationQueueStore) ListPending(ctx context.Context, limit int) ([]domain.FinalizationQueueEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+queueCols+` FROM finalization_queue WHERE completed_at IS NULL ORDER BY last_checked_at ASC LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pending finalizations: %w", err)
	}
	defer rows.Close()

	var out []domain.FinalizationQueueEntry
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan queue entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkFinalizationAttempted records a finalization attempt and its outcome
// message (empty on success).
func (s *FinalizationQueueStore) MarkFinalizationAttempted(ctx context.Context, market string, errMessage string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE finalization_queue SET attempted_at = NOW(), last_error = $2 WHERE market = $1`,
		domain.NormalizeAddress(market), errMessage)
	if err != nil {
		return fmt.Errorf("postgres: mark finalization attempted for %s: %w", market, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: mark finalization attempted for %s: %w", market, domain.ErrNotFound)
	}
	return nil
}

// MarkFinalizationCompleted marks a market's queue entry terminal.
func (s *FinalizationQueueStore) MarkFinalizationCompleted(ctx context.Context, market string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE finalization_queue SET completed_at = NOW() WHERE market = $1`,
		domain.NormalizeAddress(market))
	if err != nil {
		return fmt.Errorf("postgres: mark finalization completed for %s: %w", market, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: mark finalization completed for %s: %w", market, domain.ErrNotFound)
	}
	return nil
}

// RefreshLastChecked bumps a queue entry's last-checked timestamp without
// altering its counts, used when a sweep finds the entry still not ready.
func (s *FinalizationQueueStore) RefreshLastChecked(ctx context.Context, market string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE finalization_queue SET last_checked_at = NOW() WHERE market = $1`,
		domain.NormalizeAddress(market))
	if err != nil {
		return fmt.Errorf("postgres: refresh last checked for %s: %w", market, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: refresh last checked for %s: %w", market, domain.ErrNotFound)
	}
	return nil
}
