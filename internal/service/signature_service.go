// Package service implements the Signature, Sync, and Finalization
// services: the business logic layer between the HTTP API/Scheduler and the
// Store/Chain Gateway.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/sidebet/relayer/internal/domain"
	"github.com/sidebet/relayer/internal/metrics"
)

// DefaultMinGlobalThreshold is the floor on the number of signatures
// required to finalize a market when no operator override is configured,
// matching MIN_SIGNATURES_THRESHOLD's default.
const DefaultMinGlobalThreshold = 3

// AttestationResult is returned by Submit on success.
type AttestationResult struct {
	AttestationID    int64
	AttestationCount int
	Eligible         int
	Required         int
	ThresholdMet     bool
}

// SignatureService is the authoritative ingestion path for attestations.
type SignatureService struct {
	markets       domain.MarketStore
	participants  domain.ParticipantStore
	proposals     domain.ProposalStore
	attestations  domain.AttestationStore
	queue         domain.FinalizationQueueStore
	syncLog       domain.SyncLogStore
	users         domain.UserStore
	chain         domain.ChainGateway
	syncOneMarket func(ctx context.Context, addr string) error
	minThreshold  int
	bus           domain.EventBus
	logger        *slog.Logger
}

// SetEventBus wires an EventBus for publishing threshold-reached events to
// WebSocket subscribers. Publication is best-effort and optional.
func (s *SignatureService) SetEventBus(bus domain.EventBus) {
	s.bus = bus
}

func (s *SignatureService) publishProposalReady(ctx context.Context, market string, outcome domain.Outcome, count int) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{"market": market, "outcome": outcome, "attestation_count": count})
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, "market:proposal", payload); err != nil {
		s.logger.Warn("event bus publish failed", slog.String("channel", "market:proposal"), slog.String("error", err.Error()))
	}
}

// NewSignatureService constructs a SignatureService. syncOneMarket performs a
// synchronous one-shot sync of a single market, supplied by the Sync Service
// to avoid a direct package dependency. minThreshold is the operator-configured
// floor on required signatures (MIN_SIGNATURES_THRESHOLD); values below 1 fall
// back to DefaultMinGlobalThreshold.
func NewSignatureService(
	markets domain.MarketStore,
	participants domain.ParticipantStore,
	proposals domain.ProposalStore,
	attestations domain.AttestationStore,
	queue domain.FinalizationQueueStore,
	syncLog domain.SyncLogStore,
	users domain.UserStore,
	chain domain.ChainGateway,
	syncOneMarket func(ctx context.Context, addr string) error,
	minThreshold int,
	logger *slog.Logger,
) *SignatureService {
	if minThreshold < 1 {
		minThreshold = DefaultMinGlobalThreshold
	}
	return &SignatureService{
		markets:       markets,
		participants:  participants,
		proposals:     proposals,
		attestations:  attestations,
		queue:         queue,
		syncLog:       syncLog,
		users:         users,
		chain:         chain,
		syncOneMarket: syncOneMarket,
		minThreshold:  minThreshold,
		logger:        logger,
	}
}

// requiredSignatures computes ceil(eligible*threshold/100), floored at
// minThreshold when eligible is zero or the computed value falls short.
func requiredSignatures(eligible, thresholdPercent, minThreshold int) int {
	if eligible == 0 {
		if minThreshold > 1 {
			return minThreshold
		}
		return 1
	}
	required := (eligible*thresholdPercent + 99) / 100
	if required < minThreshold {
		return minThreshold
	}
	return required
}

// Submit ingests a single attestation per the algorithm in spec §4.3.
func (s *SignatureService) Submit(ctx context.Context, market, signer string, outcome domain.Outcome, nonce *big.Int, signature string) (AttestationResult, error) {
	market = domain.NormalizeAddress(market)
	signer = domain.NormalizeAddress(signer)

	// 1. Verify the signature under the typed-data domain.
	if !s.chain.VerifyAttestation(signature, signer, market, outcome, nonce) {
		metrics.AttestationsRejected.WithLabelValues("signature_invalid").Inc()
		return AttestationResult{}, fmt.Errorf("attestation from %s on %s: %w", signer, market, domain.ErrSignatureInvalid)
	}

	// 2. Sync the market if unknown to the Store.
	if _, err := s.markets.GetMarket(ctx, market); err != nil {
		if !isNotFound(err) {
			return AttestationResult{}, fmt.Errorf("look up market %s: %w", market, err)
		}
		if syncErr := s.syncOneMarket(ctx, market); syncErr != nil {
			return AttestationResult{}, fmt.Errorf("one-shot sync of %s: %w", market, syncErr)
		}
		if _, err := s.markets.GetMarket(ctx, market); err != nil {
			return AttestationResult{}, fmt.Errorf("market %s after sync: %w", market, domain.ErrNotFound)
		}
	}

	// 3. Look up the participant.
	participant, err := s.participants.GetParticipant(ctx, market, signer)
	if err != nil {
		return AttestationResult{}, fmt.Errorf("participant %s/%s: %w", market, signer, err)
	}

	// 4. Participant's chosen outcome must match.
	if participant.Outcome != outcome {
		metrics.AttestationsRejected.WithLabelValues("outcome_mismatch").Inc()
		return AttestationResult{}, fmt.Errorf("participant %s outcome %d != attested %d: %w", signer, participant.Outcome, outcome, domain.ErrOutcomeMismatch)
	}

	// 5. Fetch the active proposal and validate outcome.
	proposal, err := s.proposals.GetActiveProposal(ctx, market)
	if err != nil {
		return AttestationResult{}, fmt.Errorf("active proposal for %s: %w", market, err)
	}
	if proposal.Outcome != outcome {
		metrics.AttestationsRejected.WithLabelValues("outcome_mismatch").Inc()
		return AttestationResult{}, fmt.Errorf("proposal outcome %d != attested %d: %w", proposal.Outcome, outcome, domain.ErrOutcomeMismatch)
	}

	// 6. Persist. A uniqueness violation surfaces as ErrAlreadyExists.
	created, err := s.attestations.CreateAttestation(ctx, domain.Attestation{
		Market:      market,
		ProposalID:  proposal.ID,
		Signer:      signer,
		Outcome:     outcome,
		Nonce:       nonce,
		Signature:   signature,
		SubmittedAt: time.Now().UTC(),
		IsValid:     true,
	})
	if err != nil {
		if isDuplicate(err) {
			metrics.AttestationsRejected.WithLabelValues("duplicate").Inc()
		}
		return AttestationResult{}, fmt.Errorf("create attestation %s/%s/%s: %w", market, signer, nonce.String(), err)
	}
	metrics.AttestationsIngested.WithLabelValues(outcomeLabel(outcome)).Inc()

	// 7. Recompute the count and update the proposal's cached tally.
	count, err := s.attestations.CountValidAttestations(ctx, market, proposal.Outcome)
	if err != nil {
		return AttestationResult{}, fmt.Errorf("count valid attestations for %s: %w", market, err)
	}
	if err := s.proposals.SetAttestationCount(ctx, proposal.ID, count); err != nil {
		return AttestationResult{}, fmt.Errorf("update attestation count for proposal %d: %w", proposal.ID, err)
	}

	// 8. Compute readiness and enqueue if threshold is reached.
	m, err := s.markets.GetMarket(ctx, market)
	if err != nil {
		return AttestationResult{}, fmt.Errorf("reload market %s: %w", market, err)
	}
	eligible, err := s.participants.CountEligible(ctx, market, proposal.Outcome)
	if err != nil {
		return AttestationResult{}, fmt.Errorf("count eligible participants for %s: %w", market, err)
	}
	required := requiredSignatures(eligible, m.ThresholdPercent, s.minThreshold)
	thresholdMet := count >= required

	if thresholdMet {
		if err := s.queue.EnqueueFinalization(ctx, market, count, eligible, proposal.Outcome, thresholdMet); err != nil {
			return AttestationResult{}, fmt.Errorf("enqueue finalization for %s: %w", market, err)
		}
		s.logger.Info("finalization threshold reached",
			slog.String("market", market), slog.Int("count", count), slog.Int("required", required))
		s.publishProposalReady(ctx, market, proposal.Outcome, count)
	}

	if err := s.syncLog.LogSyncOperation(ctx, domain.OpSync, market, domain.StatusOK,
		fmt.Sprintf("attestation ingested from %s, count=%d", signer, count)); err != nil {
		s.logger.Warn("failed to write sync log entry", slog.String("error", err.Error()))
	}

	return AttestationResult{
		AttestationID:    created.ID,
		AttestationCount: count,
		Eligible:         eligible,
		Required:         required,
		ThresholdMet:     thresholdMet,
	}, nil
}

// GetAttestations returns a market's attestations, optionally filtered by
// outcome, ordered by submission time.
func (s *SignatureService) GetAttestations(ctx context.Context, market string, outcome *domain.Outcome) ([]domain.Attestation, error) {
	return s.attestations.ListAttestations(ctx, domain.NormalizeAddress(market), outcome)
}

// GetAttestationsForFinalization returns the (signatures, nonces, signers)
// bundle for a market's outcome, in submission order.
func (s *SignatureService) GetAttestationsForFinalization(ctx context.Context, market string, outcome domain.Outcome) (domain.FinalizationBundle, error) {
	return s.attestations.GetAttestationsForFinalization(ctx, domain.NormalizeAddress(market), outcome)
}

// CountAttestations returns valid attestation counts for both outcomes along
// with the number of signatures required to finalize, computed from the
// active proposal's outcome and the market's configured threshold. required
// is 0 when the market has no active proposal to attest towards.
func (s *SignatureService) CountAttestations(ctx context.Context, market string) (yes, no, required int, err error) {
	market = domain.NormalizeAddress(market)
	yes, err = s.attestations.CountValidAttestations(ctx, market, domain.OutcomeYes)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("count yes attestations for %s: %w", market, err)
	}
	no, err = s.attestations.CountValidAttestations(ctx, market, domain.OutcomeNo)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("count no attestations for %s: %w", market, err)
	}

	proposal, err := s.proposals.GetActiveProposal(ctx, market)
	if err != nil {
		if isNotFound(err) {
			return yes, no, 0, nil
		}
		return 0, 0, 0, fmt.Errorf("get active proposal for %s: %w", market, err)
	}
	m, err := s.markets.GetMarket(ctx, market)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("get market %s: %w", market, err)
	}
	eligible, err := s.participants.CountEligible(ctx, market, proposal.Outcome)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("count eligible participants for %s: %w", market, err)
	}
	required = requiredSignatures(eligible, m.ThresholdPercent, s.minThreshold)

	return yes, no, required, nil
}

func isNotFound(err error) bool {
	return domain.ClassifyErr(err) == domain.KindNotFound
}

func isDuplicate(err error) bool {
	return errors.Is(err, domain.ErrAlreadyExists)
}

func outcomeLabel(o domain.Outcome) string {
	if o == domain.OutcomeYes {
		return "yes"
	}
	return "no"
}
