package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sidebet/relayer/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketCols = `address, topic, threshold_percent, staking_token, participant_count,
	total_staked, status, created_at, proposed_at, resolved_at, last_sync_at`

// UpsertMarket inserts or updates on address; sets last-sync to now.
// Idempotent.
func (s *MarketStore) UpsertMarket(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			address, topic, threshold_percent, staking_token, participant_count,
			total_staked, status, created_at, proposed_at, resolved_at, last_sync_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (address) DO UPDATE SET
			topic             = EXCLUDED.topic,
			threshold_percent = EXCLUDED.threshold_percent,
			staking_token     = EXCLUDED.staking_token,
			participant_count = EXCLUDED.participant_count,
			total_staked      = EXCLUDED.total_staked,
			status            = EXCLUDED.status,
			proposed_at       = EXCLUDED.proposed_at,
			resolved_at       = EXCLUDED.resolved_at,
			last_sync_at      = NOW()`

	addr := domain.NormalizeAddress(m.Address)
	_, err := s.pool.Exec(ctx, query,
		addr, m.Topic, m.ThresholdPercent, domain.NormalizeAddress(m.StakingToken), m.ParticipantCount,
		m.TotalStaked.String(), int(m.Status), m.CreatedAt, m.ProposedAt, m.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert market %s: %w", addr, err)
	}
	return nil
}

func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var status int
	var totalStaked string
	err := row.Scan(
		&m.Address, &m.Topic, &m.ThresholdPercent, &m.StakingToken, &m.ParticipantCount,
		&totalStaked, &status, &m.CreatedAt, &m.ProposedAt, &m.ResolvedAt, &m.LastSyncAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.Status = domain.MarketStatus(status)
	n, ok := domain.BigIntPtr(totalStaked)
	if !ok {
		return domain.Market{}, fmt.Errorf("postgres: bad total_staked value %q", totalStaked)
	}
	m.TotalStaked = n
	return m, nil
}

// GetMarket retrieves a market by its address.
func (s *MarketStore) GetMarket(ctx context.Context, address string) (domain.Market, error) {
	addr := domain.NormalizeAddress(address)
	row := s.pool.QueryRow(ctx, `SELECT `+marketCols+` FROM markets WHERE address = $1`, addr)
	m, err := scanMarket(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", addr, err)
	}
	return m, nil
}

// ListMarkets returns markets, optionally filtered by status, paginated.
func (s *MarketStore) ListMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets`
	args := []any{}
	argIdx := 1

	if opts.Status != nil {
		query += fmt.Sprintf(" WHERE status = $%d", argIdx)
		args = append(args, int(*opts.Status))
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)
	argIdx++

	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return markets, nil
}

// SetStatus updates a market's status and the corresponding lifecycle
// timestamp column.
func (s *MarketStore) SetStatus(ctx context.Context, address string, status domain.MarketStatus, at time.Time) error {
	addr := domain.NormalizeAddress(address)

	var query string
	switch status {
	case domain.MarketStatusProposed:
		query = `UPDATE markets SET status = $2, proposed_at = $3, last_sync_at = NOW() WHERE address = $1`
	case domain.MarketStatusResolved:
		query = `UPDATE markets SET status = $2, resolved_at = $3, last_sync_at = NOW() WHERE address = $1`
	default:
		query = `UPDATE markets SET status = $2, last_sync_at = NOW() WHERE address = $1`
	}

	tag, err := s.pool.Exec(ctx, query, addr, int(status), at)
	if err != nil {
		return fmt.Errorf("postgres: set market status %s: %w", addr, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: set market status %s: %w", addr, domain.ErrNotFound)
	}
	return nil
}

// StaleMarkets returns addresses whose last-sync is older than olderThan.
func (s *MarketStore) StaleMarkets(ctx context.Context, olderThan time.Duration) ([]string, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	rows, err := s.pool.Query(ctx,
		`SELECT address FROM markets WHERE last_sync_at < $1 AND status NOT IN ($2, $3)`,
		cutoff, int(domain.MarketStatusResolved), int(domain.MarketStatusCancelled))
	if err != nil {
		return nil, fmt.Errorf("postgres: stale markets: %w", err)
	}
	defer rows.Close()

	var addrs []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("postgres: scan stale market: %w", err)
		}
		addrs = append(addrs, addr)
	}
	return addrs, rows.Err()
}

// KnownAddresses returns the set of market addresses already in the store.
func (s *MarketStore) KnownAddresses(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, `SELECT address FROM markets`)
	if err != nil {
		return nil, fmt.Errorf("postgres: known addresses: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("postgres: scan known address: %w", err)
		}
		out[addr] = true
	}
	return out, rows.Err()
}
