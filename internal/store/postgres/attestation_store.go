package postgres

import (
	"context"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sidebet/relayer/internal/domain"
)

// AttestationStore implements domain.AttestationStore using PostgreSQL.
type AttestationStore struct {
	pool *pgxpool.Pool
}

// NewAttestationStore creates a new AttestationStore.
func NewAttestationStore(pool *pgxpool.Pool) *AttestationStore {
	return &AttestationStore{pool: pool}
}

const attestationCols = `id, market, proposal_id, signer, outcome, nonce, signature, submitted_at, is_valid`

func scanAttestation(row pgx.Row) (domain.Attestation, error) {
	var a domain.Attestation
	var outcome int
	var nonce string
	err := row.Scan(&a.ID, &a.Market, &a.ProposalID, &a.Signer, &outcome, &nonce,
		&a.Signature, &a.SubmittedAt, &a.IsValid)
	if err != nil {
		return domain.Attestation{}, err
	}
	a.Outcome = domain.Outcome(outcome)
	n, ok := domain.BigIntPtr(nonce)
	if !ok {
		return domain.Attestation{}, fmt.Errorf("postgres: bad nonce value %q", nonce)
	}
	a.Nonce = n
	return a, nil
}

// CreateAttestation inserts a new attestation. The partial unique index on
// attestations(market, signer, nonce) WHERE is_valid = TRUE enforces
// uniqueness; a violation is reported as ErrAlreadyExists.
func (s *AttestationStore) CreateAttestation(ctx context.Context, a domain.Attestation) (domain.Attestation, error) {
	const query = `
		INSERT INTO attestations (market, proposal_id, signer, outcome, nonce, signature, submitted_at, is_valid)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + attestationCols

	row := s.pool.QueryRow(ctx, query,
		domain.NormalizeAddress(a.Market), a.ProposalID, domain.NormalizeAddress(a.Signer),
		int(a.Outcome), a.Nonce.String(), a.Signature, a.SubmittedAt, a.IsValid)

	created, err := scanAttestation(row)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Attestation{}, fmt.Errorf("postgres: create attestation for %s: %w", a.Market, domain.ErrAlreadyExists)
		}
		return domain.Attestation{}, fmt.Errorf("postgres: create attestation: %w", err)
	}
	return created, nil
}

// CountValidAttestations returns the number of valid attestations for a
// market's given outcome.
func (s *AttestationStore) CountValidAttestations(ctx context.Context, market string, outcome domain.Outcome) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM attestations WHERE market = $1 AND outcome = $2 AND is_valid = TRUE`,
		domain.NormalizeAddress(market), int(outcome)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count valid attestations: %w", err)
	}
	return count, nil
}

// ListAttestations returns a market's attestations, optionally filtered by
// outcome.
func (s *AttestationStore) ListAttestations(ctx context.Context, market string, outcome *domain.Outcome) ([]domain.Attestation, error) {
	query := `SELECT ` + attestationCols + ` FROM attestations WHERE market = $1`
	args := []any{domain.NormalizeAddress(market)}
	if outcome != nil {
		query += ` AND outcome = $2`
		args = append(args, int(*outcome))
	}
	query += ` ORDER BY submitted_at ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list attestations: %w", err)
	}
	defer rows.Close()

	var out []domain.Attestation
	for rows.Next() {
		a, err := scanAttestation(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan attestation: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetAttestationsForFinalization returns the valid attestations for a
// market's outcome as parallel (signature, nonce, signer) slices, ordered by
// submission time, ready for the Chain Gateway's FinalizeMarket call.
func (s *AttestationStore) GetAttestationsForFinalization(ctx context.Context, market string, outcome domain.Outcome) (domain.FinalizationBundle, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT signature, nonce, signer FROM attestations
		 WHERE market = $1 AND outcome = $2 AND is_valid = TRUE
		 ORDER BY submitted_at ASC`,
		domain.NormalizeAddress(market), int(outcome))
	if err != nil {
		return domain.FinalizationBundle{}, fmt.Errorf("postgres: attestations for finalization: %w", err)
	}
	defer rows.Close()

	var bundle domain.FinalizationBundle
	for rows.Next() {
		var sig, nonceStr, signer string
		if err := rows.Scan(&sig, &nonceStr, &signer); err != nil {
			return domain.FinalizationBundle{}, fmt.Errorf("postgres: scan finalization row: %w", err)
		}
		nonce, ok := new(big.Int).SetString(nonceStr, 10)
		if !ok {
			return domain.FinalizationBundle{}, fmt.Errorf("postgres: bad nonce value %q", nonceStr)
		}
		bundle.Signatures = append(bundle.Signatures, sig)
		bundle.Nonces = append(bundle.Nonces, nonce)
		bundle.Signers = append(bundle.Signers, signer)
	}
	return bundle, rows.Err()
}

// DeleteAttestations removes every attestation for a market, used by the
// dev-only DELETE /api/attestations/{market} endpoint.
func (s *AttestationStore) DeleteAttestations(ctx context.Context, market string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM attestations WHERE market = $1`, domain.NormalizeAddress(market))
	if err != nil {
		return fmt.Errorf("postgres: delete attestations for %s: %w", market, err)
	}
	return nil
}
