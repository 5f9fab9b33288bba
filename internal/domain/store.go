package domain

import (
	"context"
	"math/big"
	"time"
)

// ListOpts provides pagination and status filtering for list queries.
type ListOpts struct {
	Status *MarketStatus
	Limit  int
	Offset int
}

// MarketStore persists market metadata. Upsert is idempotent on address.
type MarketStore interface {
	UpsertMarket(ctx context.Context, m Market) error
	GetMarket(ctx context.Context, address string) (Market, error)
	ListMarkets(ctx context.Context, opts ListOpts) ([]Market, error)
	SetStatus(ctx context.Context, address string, status MarketStatus, at time.Time) error
	StaleMarkets(ctx context.Context, olderThan time.Duration) ([]string, error)
	KnownAddresses(ctx context.Context) (map[string]bool, error)
}

// ParticipantStore persists (market, user) participation records.
type ParticipantStore interface {
	UpsertParticipant(ctx context.Context, p Participant) error
	GetParticipant(ctx context.Context, market, user string) (Participant, error)
	ListParticipants(ctx context.Context, market string) ([]Participant, error)
	CountEligible(ctx context.Context, market string, outcome Outcome) (int, error)
}

// ProposalStore persists proposed outcomes and their dispute windows.
type ProposalStore interface {
	CreateProposal(ctx context.Context, p Proposal) (Proposal, error)
	GetActiveProposal(ctx context.Context, market string) (Proposal, error)
	MarkDisputed(ctx context.Context, id int64) error
	SetAttestationCount(ctx context.Context, id int64, count int) error
	ExpiredDisputeWindows(ctx context.Context, now time.Time) ([]Proposal, error)
	OlderThan(ctx context.Context, age time.Duration) ([]Proposal, error)
}

// AttestationStore persists signed attestations. CreateAttestation must
// reject a duplicate (market, signer, nonce) among valid rows by returning
// an error wrapping ErrAlreadyExists.
type AttestationStore interface {
	CreateAttestation(ctx context.Context, a Attestation) (Attestation, error)
	CountValidAttestations(ctx context.Context, market string, outcome Outcome) (int, error)
	ListAttestations(ctx context.Context, market string, outcome *Outcome) ([]Attestation, error)
	GetAttestationsForFinalization(ctx context.Context, market string, outcome Outcome) (FinalizationBundle, error)
	DeleteAttestations(ctx context.Context, market string) error
}

// FinalizationQueueStore persists the finalization candidate queue. At most
// one row exists per market; once CompletedAt is set the row is terminal.
type FinalizationQueueStore interface {
	EnqueueFinalization(ctx context.Context, market string, sigCount, eligibleCount int, outcome Outcome, thresholdMet bool) error
	GetQueueEntry(ctx context.Context, market string) (FinalizationQueueEntry, error)
	ListPending(ctx context.Context, limit int) ([]FinalizationQueueEntry, error)
	MarkFinalizationAttempted(ctx context.Context, market string, errMessage string) error
	MarkFinalizationCompleted(ctx context.Context, market string) error
	RefreshLastChecked(ctx context.Context, market string) error
}

// SyncLogStore persists an append-only operation log.
type SyncLogStore interface {
	LogSyncOperation(ctx context.Context, op, market, status, message string) error
	RecentEntries(ctx context.Context, limit int) ([]SyncLogEntry, error)
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// UserStore persists identity records, created lazily on first reference.
type UserStore interface {
	EnsureUser(ctx context.Context, address string) error
}

// HealthCounts backs the GET /health/detailed and /health/metrics surfaces.
type HealthCounts struct {
	MarketsByStatus     map[string]int64
	AttestationCount    int64
	ParticipantCount    int64
	PendingFinalization int64
}

// StatsStore aggregates counters across entities for the health surface.
type StatsStore interface {
	HealthCounts(ctx context.Context) (HealthCounts, error)
}

// BigIntPtr is a convenience constructor used by tests and handlers when
// building domain values from decimal strings.
func BigIntPtr(s string) (*big.Int, bool) {
	return new(big.Int).SetString(s, 10)
}
