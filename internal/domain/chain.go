package domain

import (
	"context"
	"math/big"
)

// ChainGateway is the single point of contact with the chain. Implementors
// carry no business logic: they translate between wire/ABI shapes and
// domain values only.
type ChainGateway interface {
	GetMarketInfo(ctx context.Context, addr string) (Market, error)
	GetProposal(ctx context.Context, addr string) (*Proposal, error)
	GetParticipants(ctx context.Context, addr string) ([]Participant, error)
	GetAllMarkets(ctx context.Context) ([]string, error)
	PredictMarketAddress(ctx context.Context, topic string, thresholdPercent int, token string, minStake *big.Int, salt *big.Int) (string, error)
	VerifyAttestation(sig, claimedSigner, market string, outcome Outcome, nonce *big.Int) bool
	FinalizeMarket(ctx context.Context, market string, bundle FinalizationBundle) (string, error)
	ChainNowSeconds(ctx context.Context) (int64, error)
}
