package domain

import "time"

// Proposal is a result proposed for a market, opening the dispute window.
type Proposal struct {
	ID                int64
	Market            string
	Proposer          string
	Outcome           Outcome
	DisputeUntil      time.Time
	EvidenceHash      string
	AttestationCount  int
	IsDisputed        bool
	CreatedAt         time.Time
}
