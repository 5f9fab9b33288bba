package service

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sidebet/relayer/internal/domain"
)

const finalizeTestMarket = "0x6666666666666666666666666666666666666666"

func newTestFinalizationService(chainGw *fakeSyncChainGateway, minThreshold int) (
	*FinalizationService, *fakeMarketStore, *fakeParticipantStore, *fakeProposalStore, *fakeAttestationStore, *fakeQueueStore, *fakeSyncLogStore,
) {
	markets := newFakeMarketStore()
	participants := newFakeParticipantStore()
	proposals := newFakeProposalStore()
	attestations := newFakeAttestationStore()
	queue := newFakeQueueStore()
	syncLog := &fakeSyncLogStore{}
	users := &fakeUserStoreSync{}

	syncSvc := NewSyncService(markets, participants, proposals, users, syncLog, chainGw, slog.Default())
	svc := NewFinalizationService(markets, participants, proposals, attestations, queue, syncLog, chainGw, syncSvc, 24*time.Hour, minThreshold, slog.Default())
	return svc, markets, participants, proposals, attestations, queue, syncLog
}

func seedReadyMarket(markets *fakeMarketStore, proposals *fakeProposalStore, participants *fakeParticipantStore, attestations *fakeAttestationStore, disputeUntil time.Time, attestCount int) {
	markets.markets[finalizeTestMarket] = domain.Market{
		Address: finalizeTestMarket, ThresholdPercent: 60, Status: domain.MarketStatusProposed, TotalStaked: big.NewInt(0),
	}
	proposals.proposals[finalizeTestMarket] = domain.Proposal{
		ID: 1, Market: finalizeTestMarket, Outcome: domain.OutcomeYes, DisputeUntil: disputeUntil,
	}
	proposals.nextID = 1
	participants.participants[participantKey(finalizeTestMarket, "0xp1")] = domain.Participant{
		Market: finalizeTestMarket, User: "0xp1", Stake: big.NewInt(1), Outcome: domain.OutcomeYes,
	}
	for i := 0; i < attestCount; i++ {
		attestations.rows = append(attestations.rows, domain.Attestation{
			ID: int64(i + 1), Market: finalizeTestMarket, Signer: "0xp1", Outcome: domain.OutcomeYes,
			Nonce: big.NewInt(int64(i + 1)), Signature: "0xsig", IsValid: true,
		})
	}
}

func TestIsReadyBeforeDisputeWindowExpires(t *testing.T) {
	chainGw := &fakeSyncChainGateway{}
	svc, markets, participants, proposals, attestations, _, _ := newTestFinalizationService(chainGw, 1)
	seedReadyMarket(markets, proposals, participants, attestations, time.Now().Add(time.Hour), 1)

	ready, err := svc.IsReady(context.Background(), finalizeTestMarket)
	require.NoError(t, err)
	require.False(t, ready, "dispute window has not yet expired")
}

func TestIsReadyAfterDisputeWindowExpires(t *testing.T) {
	chainGw := &fakeSyncChainGateway{}
	svc, markets, participants, proposals, attestations, _, _ := newTestFinalizationService(chainGw, 1)
	// DisputeUntil in the past by a wide margin so ChainNowSeconds (wall
	// clock) is unambiguously past it, exercising the >=-is-expired branch.
	seedReadyMarket(markets, proposals, participants, attestations, time.Now().Add(-time.Hour), 1)

	ready, err := svc.IsReady(context.Background(), finalizeTestMarket)
	require.NoError(t, err)
	require.True(t, ready)
}

func TestIsReadyFalseWithoutActiveProposal(t *testing.T) {
	chainGw := &fakeSyncChainGateway{}
	svc, markets, _, _, _, _, _ := newTestFinalizationService(chainGw, 1)
	markets.markets[finalizeTestMarket] = domain.Market{Address: finalizeTestMarket, Status: domain.MarketStatusOpen}

	ready, err := svc.IsReady(context.Background(), finalizeTestMarket)
	require.NoError(t, err)
	require.False(t, ready)
}

func TestIsReadyFalseForResolvedMarket(t *testing.T) {
	chainGw := &fakeSyncChainGateway{}
	svc, markets, participants, proposals, attestations, _, _ := newTestFinalizationService(chainGw, 1)
	seedReadyMarket(markets, proposals, participants, attestations, time.Now().Add(-time.Hour), 1)
	m := markets.markets[finalizeTestMarket]
	m.Status = domain.MarketStatusResolved
	markets.markets[finalizeTestMarket] = m

	ready, err := svc.IsReady(context.Background(), finalizeTestMarket)
	require.NoError(t, err)
	require.False(t, ready)
}

func TestProcessReadySubmitsAndMarksCompleted(t *testing.T) {
	chainGw := &fakeSyncChainGateway{
		market: domain.Market{Address: finalizeTestMarket, Status: domain.MarketStatusProposed, TotalStaked: big.NewInt(0)},
	}
	svc, _, _, _, attestations, queue, syncLog := newTestFinalizationService(chainGw, 1)
	attestations.rows = append(attestations.rows, domain.Attestation{
		ID: 1, Market: finalizeTestMarket, Signer: "0xp1", Outcome: domain.OutcomeYes,
		Nonce: big.NewInt(1), Signature: "0xsig", IsValid: true,
	})
	queue.entries[finalizeTestMarket] = domain.FinalizationQueueEntry{Market: finalizeTestMarket, ProposalOutcome: domain.OutcomeYes}

	svc.ProcessReady(context.Background(), queue.entries[finalizeTestMarket])

	entry := queue.entries[finalizeTestMarket]
	require.NotNil(t, entry.CompletedAt)

	found := false
	for _, e := range syncLog.entries {
		if e.Operation == domain.OpFinalize && e.Status == domain.StatusOK {
			found = true
		}
	}
	require.True(t, found)
}

func TestProcessReadyShortCircuitsWhenAlreadyResolved(t *testing.T) {
	chainGw := &fakeSyncChainGateway{
		market: domain.Market{Address: finalizeTestMarket, Status: domain.MarketStatusResolved},
	}
	svc, _, _, _, _, queue, _ := newTestFinalizationService(chainGw, 1)
	entry := domain.FinalizationQueueEntry{Market: finalizeTestMarket, ProposalOutcome: domain.OutcomeYes}
	queue.entries[finalizeTestMarket] = entry

	svc.ProcessReady(context.Background(), entry)

	require.NotNil(t, queue.entries[finalizeTestMarket].CompletedAt)
}

func TestProcessReadyRecordsFailureOnChainError(t *testing.T) {
	chainGw := &fakeSyncChainGateway{marketErr: errors.New("rpc down")}
	svc, _, _, _, _, queue, syncLog := newTestFinalizationService(chainGw, 1)
	entry := domain.FinalizationQueueEntry{Market: finalizeTestMarket, ProposalOutcome: domain.OutcomeYes}
	queue.entries[finalizeTestMarket] = entry

	svc.ProcessReady(context.Background(), entry)

	require.Nil(t, queue.entries[finalizeTestMarket].CompletedAt)
	require.NotNil(t, queue.entries[finalizeTestMarket].AttemptedAt)

	found := false
	for _, e := range syncLog.entries {
		if e.Operation == domain.OpFinalize && e.Status == domain.StatusError {
			found = true
		}
	}
	require.True(t, found)
}

func TestProcessReadySkipsSubmitWithZeroAttestations(t *testing.T) {
	chainGw := &fakeSyncChainGateway{
		market: domain.Market{Address: finalizeTestMarket, Status: domain.MarketStatusProposed},
	}
	svc, _, _, _, _, queue, _ := newTestFinalizationService(chainGw, 1)
	entry := domain.FinalizationQueueEntry{Market: finalizeTestMarket, ProposalOutcome: domain.OutcomeYes}
	queue.entries[finalizeTestMarket] = entry

	svc.ProcessReady(context.Background(), entry)

	require.Nil(t, queue.entries[finalizeTestMarket].CompletedAt)
}

func TestCheckOldProposalsWarnsWithoutEnqueuingBelowThreshold(t *testing.T) {
	chainGw := &fakeSyncChainGateway{}
	svc, markets, _, proposals, _, queue, syncLog := newTestFinalizationService(chainGw, 3)
	markets.markets[finalizeTestMarket] = domain.Market{Address: finalizeTestMarket, Status: domain.MarketStatusProposed}
	stale := domain.Proposal{ID: 1, Market: finalizeTestMarket, Outcome: domain.OutcomeYes, AttestationCount: 1}
	proposals.olderThan = []domain.Proposal{stale}

	err := svc.CheckOldProposals(context.Background())
	require.NoError(t, err)
	require.Empty(t, queue.entries, "a stale proposal below minThreshold must not be enqueued")

	found := false
	for _, e := range syncLog.entries {
		if e.Operation == domain.OpStaleProposal && e.Status == domain.StatusWarning {
			found = true
		}
	}
	require.True(t, found)
}

func TestCheckOldProposalsEnqueuesSufficientlyAttested(t *testing.T) {
	chainGw := &fakeSyncChainGateway{}
	svc, markets, participants, proposals, _, queue, _ := newTestFinalizationService(chainGw, 3)
	markets.markets[finalizeTestMarket] = domain.Market{Address: finalizeTestMarket, Status: domain.MarketStatusProposed}
	participants.participants[participantKey(finalizeTestMarket, "0xp1")] = domain.Participant{
		Market: finalizeTestMarket, User: "0xp1", Stake: big.NewInt(1), Outcome: domain.OutcomeYes,
	}
	proposals.olderThan = []domain.Proposal{
		{ID: 1, Market: finalizeTestMarket, Outcome: domain.OutcomeYes, AttestationCount: 3},
	}

	err := svc.CheckOldProposals(context.Background())
	require.NoError(t, err)

	entry, ok := queue.entries[finalizeTestMarket]
	require.True(t, ok, "a stale proposal with enough attestations must be enqueued as a safety net")
	require.Equal(t, 3, entry.SignatureCount)
}

func TestCheckDisputeWindowsEnqueuesExpired(t *testing.T) {
	chainGw := &fakeSyncChainGateway{}
	svc, markets, participants, proposals, attestations, queue, _ := newTestFinalizationService(chainGw, 1)
	markets.markets[finalizeTestMarket] = domain.Market{Address: finalizeTestMarket, Status: domain.MarketStatusProposed}
	participants.participants[participantKey(finalizeTestMarket, "0xp1")] = domain.Participant{
		Market: finalizeTestMarket, User: "0xp1", Stake: big.NewInt(1), Outcome: domain.OutcomeYes,
	}
	attestations.rows = append(attestations.rows, domain.Attestation{
		ID: 1, Market: finalizeTestMarket, Signer: "0xp1", Outcome: domain.OutcomeYes,
		Nonce: big.NewInt(1), Signature: "0xsig", IsValid: true,
	})
	proposals.expiredWindows = []domain.Proposal{
		{ID: 1, Market: finalizeTestMarket, Outcome: domain.OutcomeYes},
	}

	err := svc.CheckDisputeWindows(context.Background())
	require.NoError(t, err)

	_, ok := queue.entries[finalizeTestMarket]
	require.True(t, ok)
}
