package domain

import (
	"math/big"
	"time"
)

// Attestation is a typed-data signature over (market, outcome, nonce)
// expressing a participant's agreement with a proposed outcome.
type Attestation struct {
	ID          int64
	Market      string
	ProposalID  int64
	Signer      string
	Outcome     Outcome
	Nonce       *big.Int
	Signature   string
	SubmittedAt time.Time
	IsValid     bool
}

// FinalizationBundle is the (signatures, nonces, signers) triple, in stable
// submission order, that the Chain Gateway requires for FinalizeMarket.
type FinalizationBundle struct {
	Signatures []string
	Nonces     []*big.Int
	Signers    []string
}
