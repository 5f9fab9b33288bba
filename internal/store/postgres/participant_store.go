package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sidebet/relayer/internal/domain"
)

// ParticipantStore implements domain.ParticipantStore using PostgreSQL.
type ParticipantStore struct {
	pool *pgxpool.Pool
}

// NewParticipantStore creates a new ParticipantStore.
func NewParticipantStore(pool *pgxpool.Pool) *ParticipantStore {
	return &ParticipantStore{pool: pool}
}

const participantCols = `market, "user", stake, outcome, has_attested`

func scanParticipant(row pgx.Row) (domain.Participant, error) {
	var p domain.Participant
	var stake string
	var outcome int
	err := row.Scan(&p.Market, &p.User, &stake, &outcome, &p.HasAttested)
	if err != nil {
		return domain.Participant{}, err
	}
	n, ok := domain.BigIntPtr(stake)
	if !ok {
		return domain.Participant{}, fmt.Errorf("postgres: bad stake value %q", stake)
	}
	p.Stake = n
	p.Outcome = domain.Outcome(outcome)
	return p, nil
}

// UpsertParticipant inserts or updates a market participant row.
func (s *ParticipantStore) UpsertParticipant(ctx context.Context, p domain.Participant) error {
	const query = `
		INSERT INTO participants (market, "user", stake, outcome, has_attested)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (market, "user") DO UPDATE SET
			stake        = EXCLUDED.stake,
			outcome      = EXCLUDED.outcome,
			has_attested = EXCLUDED.has_attested`

	market := domain.NormalizeAddress(p.Market)
	user := domain.NormalizeAddress(p.User)
	_, err := s.pool.Exec(ctx, query, market, user, p.Stake.String(), int(p.Outcome), p.HasAttested)
	if err != nil {
		return fmt.Errorf("postgres: upsert participant %s/%s: %w", market, user, err)
	}
	return nil
}

// GetParticipant retrieves a single participant record.
func (s *ParticipantStore) GetParticipant(ctx context.Context, market, user string) (domain.Participant, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+participantCols+` FROM participants WHERE market = $1 AND "user" = $2`,
		domain.NormalizeAddress(market), domain.NormalizeAddress(user))
	p, err := scanParticipant(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Participant{}, domain.ErrNotParticipant
		}
		return domain.Participant{}, fmt.Errorf("postgres: get participant: %w", err)
	}
	return p, nil
}

// ListParticipants returns every participant of a market.
func (s *ParticipantStore) ListParticipants(ctx context.Context, market string) ([]domain.Participant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+participantCols+` FROM participants WHERE market = $1 ORDER BY "user"`,
		domain.NormalizeAddress(market))
	if err != nil {
		return nil, fmt.Errorf("postgres: list participants: %w", err)
	}
	defer rows.Close()

	var out []domain.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan participant: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CountEligible returns the number of participants with a nonzero stake who
// registered for the given outcome.
func (s *ParticipantStore) CountEligible(ctx context.Context, market string, outcome domain.Outcome) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM participants WHERE market = $1 AND stake > 0 AND outcome = $2`,
		domain.NormalizeAddress(market), int(outcome)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count eligible participants: %w", err)
	}
	return count, nil
}
