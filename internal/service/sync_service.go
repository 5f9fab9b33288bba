package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sidebet/relayer/internal/domain"
	"github.com/sidebet/relayer/internal/metrics"
)

// staleAfter is the default staleness threshold used by StaleMarkets.
const staleAfter = 5 * time.Minute

// SyncService reconciles chain state into the Store.
type SyncService struct {
	markets      domain.MarketStore
	participants domain.ParticipantStore
	proposals    domain.ProposalStore
	users        domain.UserStore
	syncLog      domain.SyncLogStore
	chain        domain.ChainGateway
	bus          domain.EventBus
	logger       *slog.Logger
}

// SetEventBus wires an EventBus for publishing market status transitions to
// WebSocket subscribers. Publication is best-effort and optional: a nil bus
// (the default) makes SyncMarket a pure store operation.
func (s *SyncService) SetEventBus(bus domain.EventBus) {
	s.bus = bus
}

func (s *SyncService) publishStatus(ctx context.Context, market domain.Market) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"market": market.Address,
		"status": market.Status,
	})
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, "market:status", payload); err != nil {
		s.logger.Warn("event bus publish failed", slog.String("channel", "market:status"), slog.String("error", err.Error()))
	}
}

// NewSyncService constructs a SyncService.
func NewSyncService(
	markets domain.MarketStore,
	participants domain.ParticipantStore,
	proposals domain.ProposalStore,
	users domain.UserStore,
	syncLog domain.SyncLogStore,
	chain domain.ChainGateway,
	logger *slog.Logger,
) *SyncService {
	return &SyncService{
		markets:      markets,
		participants: participants,
		proposals:    proposals,
		users:        users,
		syncLog:      syncLog,
		chain:        chain,
		logger:       logger,
	}
}

// SyncMarket fetches market info, proposal, and participants in parallel and
// upserts whatever succeeds, even under partial failure.
func (s *SyncService) SyncMarket(ctx context.Context, addr string) error {
	start := time.Now()
	defer func() { metrics.SyncDuration.Observe(time.Since(start).Seconds()) }()

	addr = domain.NormalizeAddress(addr)

	var (
		market       domain.Market
		proposal     *domain.Proposal
		participants []domain.Participant
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := s.chain.GetMarketInfo(gctx, addr)
		if err != nil {
			return fmt.Errorf("get market info: %w", err)
		}
		market = m
		return nil
	})
	g.Go(func() error {
		p, err := s.chain.GetProposal(gctx, addr)
		if err != nil {
			return fmt.Errorf("get proposal: %w", err)
		}
		proposal = p
		return nil
	})
	g.Go(func() error {
		ps, err := s.chain.GetParticipants(gctx, addr)
		if err != nil {
			return fmt.Errorf("get participants: %w", err)
		}
		participants = ps
		return nil
	})

	fetchErr := g.Wait()
	if fetchErr != nil {
		s.logger.Error("partial sync failure", slog.String("market", addr), slog.String("error", fetchErr.Error()))
		_ = s.syncLog.LogSyncOperation(ctx, domain.OpSync, addr, domain.StatusError, fetchErr.Error())
	}

	if market.Address != "" {
		market.Address = addr
		if err := s.markets.UpsertMarket(ctx, market); err != nil {
			return fmt.Errorf("upsert market %s: %w", addr, err)
		}
		s.publishStatus(ctx, market)

		for _, p := range participants {
			if err := s.users.EnsureUser(ctx, p.User); err != nil {
				s.logger.Warn("ensure user failed", slog.String("user", p.User), slog.String("error", err.Error()))
				continue
			}
			p.Market = addr
			if err := s.participants.UpsertParticipant(ctx, p); err != nil {
				s.logger.Warn("upsert participant failed",
					slog.String("market", addr), slog.String("user", p.User), slog.String("error", err.Error()))
			}
		}

		if proposal != nil {
			if _, err := s.proposals.GetActiveProposal(ctx, addr); errors.Is(err, domain.ErrNoActiveProposal) {
				proposal.Market = addr
				if _, createErr := s.proposals.CreateProposal(ctx, *proposal); createErr != nil && !errors.Is(createErr, domain.ErrAlreadyExists) {
					s.logger.Warn("create proposal failed", slog.String("market", addr), slog.String("error", createErr.Error()))
				}
			}
		}
	}

	if fetchErr != nil {
		return fetchErr
	}

	if err := s.syncLog.LogSyncOperation(ctx, domain.OpSync, addr, domain.StatusOK, "sync complete"); err != nil {
		s.logger.Warn("failed to write sync log entry", slog.String("error", err.Error()))
	}
	return nil
}

// StaleMarkets returns addresses whose last-sync predates the staleness
// threshold.
func (s *SyncService) StaleMarkets(ctx context.Context) ([]string, error) {
	return s.markets.StaleMarkets(ctx, staleAfter)
}

// DiscoverNewMarkets fetches the factory's full market list and syncs any
// address not yet present in the Store.
func (s *SyncService) DiscoverNewMarkets(ctx context.Context) (int, error) {
	all, err := s.chain.GetAllMarkets(ctx)
	if err != nil {
		return 0, fmt.Errorf("discover new markets: %w", err)
	}

	known, err := s.markets.KnownAddresses(ctx)
	if err != nil {
		return 0, fmt.Errorf("known addresses: %w", err)
	}

	discovered := 0
	for _, addr := range all {
		if known[addr] {
			continue
		}
		if err := s.SyncMarket(ctx, addr); err != nil {
			s.logger.Error("sync of newly discovered market failed", slog.String("market", addr), slog.String("error", err.Error()))
			continue
		}
		discovered++
	}
	if err := s.syncLog.LogSyncOperation(ctx, domain.OpDiscovery, "", domain.StatusOK,
		fmt.Sprintf("discovered %d new markets out of %d total", discovered, len(all))); err != nil {
		s.logger.Warn("failed to write sync log entry", slog.String("error", err.Error()))
	}
	return discovered, nil
}

// GetMarket reads a market from the Store, exposed for the HTTP layer.
func (s *SyncService) GetMarket(ctx context.Context, address string) (domain.Market, error) {
	return s.markets.GetMarket(ctx, domain.NormalizeAddress(address))
}

// ListMarkets reads markets from the Store, exposed for the HTTP layer.
func (s *SyncService) ListMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	return s.markets.ListMarkets(ctx, opts)
}

// GetParticipants reads a market's participants from the Store.
func (s *SyncService) GetParticipants(ctx context.Context, market string) ([]domain.Participant, error) {
	return s.participants.ListParticipants(ctx, domain.NormalizeAddress(market))
}

// GetActiveProposal reads a market's undisputed proposal from the Store.
func (s *SyncService) GetActiveProposal(ctx context.Context, market string) (domain.Proposal, error) {
	return s.proposals.GetActiveProposal(ctx, domain.NormalizeAddress(market))
}

// PredictAddress delegates to the Chain Gateway to compute the deterministic
// factory-deployment address for a market that has not yet been created.
func (s *SyncService) PredictAddress(ctx context.Context, topic string, thresholdPercent int, token string, minStake, salt *big.Int) (string, error) {
	return s.chain.PredictMarketAddress(ctx, topic, thresholdPercent, token, minStake, salt)
}

// SweepStale syncs every stale market, isolating per-market failures.
func (s *SyncService) SweepStale(ctx context.Context) error {
	addrs, err := s.StaleMarkets(ctx)
	if err != nil {
		return fmt.Errorf("list stale markets: %w", err)
	}

	for _, addr := range addrs {
		if err := s.SyncMarket(ctx, addr); err != nil {
			s.logger.Error("stale market sync failed", slog.String("market", addr), slog.String("error", err.Error()))
		}
	}
	return nil
}
