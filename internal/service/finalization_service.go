package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sidebet/relayer/internal/domain"
	"github.com/sidebet/relayer/internal/metrics"
)

// FinalizationService drives markets from Proposed (with enough attestations
// and an expired dispute window) to Resolved on-chain.
type FinalizationService struct {
	markets      domain.MarketStore
	participants domain.ParticipantStore
	proposals    domain.ProposalStore
	attestations domain.AttestationStore
	queue        domain.FinalizationQueueStore
	syncLog      domain.SyncLogStore
	chain        domain.ChainGateway
	syncService  *SyncService
	maxProposalAge time.Duration
	minThreshold int
	bus          domain.EventBus
	logger       *slog.Logger
}

// SetEventBus wires an EventBus for publishing finalization completions to
// WebSocket subscribers. Publication is best-effort and optional.
func (s *FinalizationService) SetEventBus(bus domain.EventBus) {
	s.bus = bus
}

func (s *FinalizationService) publishFinalized(ctx context.Context, market, txHash string) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{"market": market, "tx_hash": txHash})
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, "market:finalized", payload); err != nil {
		s.logger.Warn("event bus publish failed", slog.String("channel", "market:finalized"), slog.String("error", err.Error()))
	}
}

// NewFinalizationService constructs a FinalizationService. minThreshold must
// match the value given to NewSignatureService so readiness and ingestion
// agree on the required-signatures floor.
func NewFinalizationService(
	markets domain.MarketStore,
	participants domain.ParticipantStore,
	proposals domain.ProposalStore,
	attestations domain.AttestationStore,
	queue domain.FinalizationQueueStore,
	syncLog domain.SyncLogStore,
	chain domain.ChainGateway,
	syncService *SyncService,
	maxProposalAge time.Duration,
	minThreshold int,
	logger *slog.Logger,
) *FinalizationService {
	if minThreshold < 1 {
		minThreshold = DefaultMinGlobalThreshold
	}
	return &FinalizationService{
		markets:        markets,
		participants:   participants,
		proposals:      proposals,
		attestations:   attestations,
		queue:          queue,
		syncLog:        syncLog,
		chain:          chain,
		syncService:    syncService,
		maxProposalAge: maxProposalAge,
		minThreshold:   minThreshold,
		logger:         logger,
	}
}

// IsReady evaluates the readiness predicate from spec §4.5 for a single
// market.
func (s *FinalizationService) IsReady(ctx context.Context, market string) (bool, error) {
	market = domain.NormalizeAddress(market)

	m, err := s.markets.GetMarket(ctx, market)
	if err != nil {
		return false, fmt.Errorf("get market %s: %w", market, err)
	}
	if m.Status == domain.MarketStatusResolved || m.Status == domain.MarketStatusCancelled {
		return false, nil
	}

	proposal, err := s.proposals.GetActiveProposal(ctx, market)
	if err != nil {
		if errors.Is(err, domain.ErrNoActiveProposal) {
			return false, nil
		}
		return false, fmt.Errorf("get active proposal for %s: %w", market, err)
	}

	nowChain, err := s.chain.ChainNowSeconds(ctx)
	if err != nil {
		return false, fmt.Errorf("chain now: %w", err)
	}
	// A check at exactly disputeUntil counts as expired; readiness requires
	// the chain clock to have reached or passed the boundary.
	if nowChain < proposal.DisputeUntil.Unix() {
		return false, nil
	}

	eligible, err := s.participants.CountEligible(ctx, market, proposal.Outcome)
	if err != nil {
		return false, fmt.Errorf("count eligible for %s: %w", market, err)
	}
	required := requiredSignatures(eligible, m.ThresholdPercent, s.minThreshold)

	count, err := s.attestations.CountValidAttestations(ctx, market, proposal.Outcome)
	if err != nil {
		return false, fmt.Errorf("count valid attestations for %s: %w", market, err)
	}

	return count >= required, nil
}

// ProcessReady processes a single ready queue entry per the three steps in
// spec §4.5. It never propagates errors to the caller: outcomes are recorded
// on the queue entry and the sync log.
func (s *FinalizationService) ProcessReady(ctx context.Context, entry domain.FinalizationQueueEntry) {
	market := entry.Market

	// 1. Re-read chain status; short-circuit if already resolved.
	m, err := s.chain.GetMarketInfo(ctx, market)
	if err != nil {
		s.recordFailure(ctx, market, fmt.Errorf("re-read market status: %w", err))
		return
	}
	if m.Status == domain.MarketStatusResolved {
		if err := s.queue.MarkFinalizationCompleted(ctx, market); err != nil {
			s.logger.Error("mark completed after chain-resolved short-circuit failed",
				slog.String("market", market), slog.String("error", err.Error()))
		}
		return
	}

	// 2. Collect attestations for finalization.
	bundle, err := s.attestations.GetAttestationsForFinalization(ctx, market, entry.ProposalOutcome)
	if err != nil {
		s.recordFailure(ctx, market, fmt.Errorf("collect attestations: %w", err))
		return
	}
	if len(bundle.Signatures) == 0 {
		s.logger.Warn("ready queue entry has zero attestations", slog.String("market", market))
		if err := s.queue.RefreshLastChecked(ctx, market); err != nil {
			s.logger.Error("refresh last checked failed", slog.String("market", market), slog.String("error", err.Error()))
		}
		return
	}

	// 3. Submit the finalize transaction.
	txHash, err := s.chain.FinalizeMarket(ctx, market, bundle)
	if err != nil {
		metrics.FinalizeAttempts.WithLabelValues("failure").Inc()
		s.recordFailure(ctx, market, fmt.Errorf("finalize: %w", err))
		return
	}
	metrics.FinalizeAttempts.WithLabelValues("success").Inc()

	if err := s.queue.MarkFinalizationCompleted(ctx, market); err != nil {
		s.logger.Error("mark completed after successful finalize failed",
			slog.String("market", market), slog.String("error", err.Error()))
	}
	if err := s.syncLog.LogSyncOperation(ctx, domain.OpFinalize, market, domain.StatusOK, "finalized tx="+txHash); err != nil {
		s.logger.Warn("failed to write sync log entry", slog.String("error", err.Error()))
	}
	s.publishFinalized(ctx, market, txHash)

	if err := s.syncService.SyncMarket(ctx, market); err != nil {
		s.logger.Error("post-finalize sync failed", slog.String("market", market), slog.String("error", err.Error()))
	}
}

func (s *FinalizationService) recordFailure(ctx context.Context, market string, err error) {
	msg := err.Error()
	if markErr := s.queue.MarkFinalizationAttempted(ctx, market, msg); markErr != nil {
		s.logger.Error("mark finalization attempted failed", slog.String("market", market), slog.String("error", markErr.Error()))
	}
	if logErr := s.syncLog.LogSyncOperation(ctx, domain.OpFinalize, market, domain.StatusError, msg); logErr != nil {
		s.logger.Warn("failed to write sync log entry", slog.String("error", logErr.Error()))
	}
	s.logger.Error("finalization attempt failed", slog.String("market", market), slog.String("error", msg))
}

// RunPendingSweep processes every pending, ready queue entry.
func (s *FinalizationService) RunPendingSweep(ctx context.Context, limit int) error {
	entries, err := s.queue.ListPending(ctx, limit)
	if err != nil {
		return fmt.Errorf("list pending finalizations: %w", err)
	}

	for _, entry := range entries {
		ready, err := s.IsReady(ctx, entry.Market)
		if err != nil {
			s.logger.Error("readiness check failed", slog.String("market", entry.Market), slog.String("error", err.Error()))
			continue
		}
		if !ready {
			if err := s.queue.RefreshLastChecked(ctx, entry.Market); err != nil {
				s.logger.Error("refresh last checked failed", slog.String("market", entry.Market), slog.String("error", err.Error()))
			}
			continue
		}
		s.ProcessReady(ctx, entry)
	}
	return nil
}

// CheckDisputeWindows finds proposals whose dispute window has expired and
// enqueues their markets for finalization.
func (s *FinalizationService) CheckDisputeWindows(ctx context.Context) error {
	nowChain, err := s.chain.ChainNowSeconds(ctx)
	if err != nil {
		return fmt.Errorf("chain now: %w", err)
	}

	expired, err := s.proposals.ExpiredDisputeWindows(ctx, time.Unix(nowChain, 0).UTC())
	if err != nil {
		return fmt.Errorf("expired dispute windows: %w", err)
	}

	for _, p := range expired {
		m, err := s.markets.GetMarket(ctx, p.Market)
		if err != nil {
			s.logger.Error("get market for expired dispute window failed", slog.String("market", p.Market), slog.String("error", err.Error()))
			continue
		}
		if m.Status == domain.MarketStatusResolved || m.Status == domain.MarketStatusCancelled {
			continue
		}

		eligible, err := s.participants.CountEligible(ctx, p.Market, p.Outcome)
		if err != nil {
			s.logger.Error("count eligible for dispute window sweep failed", slog.String("market", p.Market), slog.String("error", err.Error()))
			continue
		}
		count, err := s.attestations.CountValidAttestations(ctx, p.Market, p.Outcome)
		if err != nil {
			s.logger.Error("count attestations for dispute window sweep failed", slog.String("market", p.Market), slog.String("error", err.Error()))
			continue
		}

		required := requiredSignatures(eligible, m.ThresholdPercent, s.minThreshold)
		if err := s.queue.EnqueueFinalization(ctx, p.Market, count, eligible, p.Outcome, count >= required); err != nil {
			s.logger.Error("enqueue on dispute window expiry failed", slog.String("market", p.Market), slog.String("error", err.Error()))
			continue
		}
		if err := s.syncLog.LogSyncOperation(ctx, domain.OpDisputeSweep, p.Market, domain.StatusOK, "dispute window expired, enqueued"); err != nil {
			s.logger.Warn("failed to write sync log entry", slog.String("error", err.Error()))
		}
	}
	return nil
}

// CheckOldProposals enqueues stale-but-sufficiently-attested proposals as a
// safety net, and warns on stale proposals that never accumulated enough
// signatures.
func (s *FinalizationService) CheckOldProposals(ctx context.Context) error {
	stale, err := s.proposals.OlderThan(ctx, s.maxProposalAge)
	if err != nil {
		return fmt.Errorf("stale proposals: %w", err)
	}

	for _, p := range stale {
		m, err := s.markets.GetMarket(ctx, p.Market)
		if err != nil {
			s.logger.Error("get market for stale proposal sweep failed", slog.String("market", p.Market), slog.String("error", err.Error()))
			continue
		}
		if m.Status != domain.MarketStatusProposed {
			continue
		}

		if p.AttestationCount < s.minThreshold {
			s.logger.Warn("stale proposal with insufficient signatures, not enqueuing",
				slog.String("market", p.Market), slog.Int("attestation_count", p.AttestationCount))
			if err := s.syncLog.LogSyncOperation(ctx, domain.OpStaleProposal, p.Market, domain.StatusWarning,
				fmt.Sprintf("stale proposal with only %d attestations, not enqueued", p.AttestationCount)); err != nil {
				s.logger.Warn("failed to write sync log entry", slog.String("error", err.Error()))
			}
			continue
		}

		eligible, err := s.participants.CountEligible(ctx, p.Market, p.Outcome)
		if err != nil {
			s.logger.Error("count eligible for stale proposal sweep failed", slog.String("market", p.Market), slog.String("error", err.Error()))
			continue
		}
		required := requiredSignatures(eligible, m.ThresholdPercent, s.minThreshold)
		if err := s.queue.EnqueueFinalization(ctx, p.Market, p.AttestationCount, eligible, p.Outcome, p.AttestationCount >= required); err != nil {
			s.logger.Error("enqueue on stale proposal sweep failed", slog.String("market", p.Market), slog.String("error", err.Error()))
			continue
		}
		if err := s.syncLog.LogSyncOperation(ctx, domain.OpStaleProposal, p.Market, domain.StatusOK, "stale proposal enqueued as safety net"); err != nil {
			s.logger.Warn("failed to write sync log entry", slog.String("error", err.Error()))
		}
	}
	return nil
}
