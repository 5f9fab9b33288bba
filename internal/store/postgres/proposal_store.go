package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sidebet/relayer/internal/domain"
)

// ProposalStore implements domain.ProposalStore using PostgreSQL.
type ProposalStore struct {
	pool *pgxpool.Pool
}

// NewProposalStore creates a new ProposalStore.
func NewProposalStore(pool *pgxpool.Pool) *ProposalStore {
	return &ProposalStore{pool: pool}
}

const proposalCols = `id, market, proposer, outcome, dispute_until, evidence_hash, attestation_count, is_disputed, created_at`

func scanProposal(row pgx.Row) (domain.Proposal, error) {
	var p domain.Proposal
	var outcome int
	err := row.Scan(&p.ID, &p.Market, &p.Proposer, &outcome, &p.DisputeUntil,
		&p.EvidenceHash, &p.AttestationCount, &p.IsDisputed, &p.CreatedAt)
	if err != nil {
		return domain.Proposal{}, err
	}
	p.Outcome = domain.Outcome(outcome)
	return p, nil
}

// CreateProposal inserts a new proposal. The partial unique index on
// proposals(market) WHERE is_disputed = FALSE enforces that at most one
// active proposal exists per market; a violation is reported as
// ErrAlreadyExists.
func (s *ProposalStore) CreateProposal(ctx context.Context, p domain.Proposal) (domain.Proposal, error) {
	const query = `
		INSERT INTO proposals (market, proposer, outcome, dispute_until, evidence_hash, attestation_count, is_disputed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + proposalCols

	row := s.pool.QueryRow(ctx, query,
		domain.NormalizeAddress(p.Market), domain.NormalizeAddress(p.Proposer), int(p.Outcome),
		p.DisputeUntil, p.EvidenceHash, p.AttestationCount, p.IsDisputed, p.CreatedAt)

	created, err := scanProposal(row)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Proposal{}, fmt.Errorf("postgres: create proposal for %s: %w", p.Market, domain.ErrAlreadyExists)
		}
		return domain.Proposal{}, fmt.Errorf("postgres: create proposal: %w", err)
	}
	return created, nil
}

// GetActiveProposal returns the market's current non-disputed proposal.
func (s *ProposalStore) GetActiveProposal(ctx context.Context, market string) (domain.Proposal, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+proposalCols+` FROM proposals WHERE market = $1 AND is_disputed = FALSE`,
		domain.NormalizeAddress(market))
	p, err := scanProposal(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Proposal{}, domain.ErrNoActiveProposal
		}
		return domain.Proposal{}, fmt.Errorf("postgres: get active proposal: %w", err)
	}
	return p, nil
}

// MarkDisputed flags a proposal as disputed, freeing the market to accept a
// new active proposal.
func (s *ProposalStore) MarkDisputed(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE proposals SET is_disputed = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: mark proposal %d disputed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: mark proposal %d disputed: %w", id, domain.ErrNotFound)
	}
	return nil
}

// SetAttestationCount updates the cached attestation tally on a proposal.
func (s *ProposalStore) SetAttestationCount(ctx context.Context, id int64, count int) error {
	tag, err := s.pool.Exec(ctx, `UPDATE proposals SET attestation_count = $2 WHERE id = $1`, id, count)
	if err != nil {
		return fmt.Errorf("postgres: set attestation count for proposal %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: set attestation count for proposal %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ExpiredDisputeWindows returns non-disputed proposals whose dispute window
// has closed as of now. The market's status is not checked here.
func (s *ProposalStore) ExpiredDisputeWindows(ctx context.Context, now time.Time) ([]domain.Proposal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+proposalCols+` FROM proposals WHERE is_disputed = FALSE AND dispute_until <= $1`, now)
	if err != nil {
		return nil, fmt.Errorf("postgres: expired dispute windows: %w", err)
	}
	defer rows.Close()

	var out []domain.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan proposal: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// OlderThan returns every non-disputed proposal older than age, regardless
// of attestation count. The caller (FinalizationService.CheckOldProposals)
// branches on AttestationCount itself to decide whether a stale proposal is
// enqueued as a safety net or merely logged as under-attested.
func (s *ProposalStore) OlderThan(ctx context.Context, age time.Duration) ([]domain.Proposal, error) {
	cutoff := time.Now().UTC().Add(-age)
	rows, err := s.pool.Query(ctx,
		`SELECT `+proposalCols+` FROM proposals
		 WHERE is_disputed = FALSE AND created_at < $1`,
		cutoff)
	if err != nil {
		return nil, fmt.Errorf("postgres: stale proposals: %w", err)
	}
	defer rows.Close()

	var out []domain.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan proposal: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
