package domain

import "math/big"

// Outcome is a market's binary result, 0 (NO) or 1 (YES).
type Outcome int

const (
	OutcomeNo  Outcome = 0
	OutcomeYes Outcome = 1
)

// Participant is a (market, user) pair mirrored from the chain.
type Participant struct {
	Market       string
	User         string
	Stake        *big.Int
	Outcome      Outcome
	HasAttested  bool
}
