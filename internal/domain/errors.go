package domain

import "errors"

// Sentinel errors returned by the Store, Signature Service, and Sync
// Service. The HTTP layer classifies these with errors.Is and maps them onto
// the error taxonomy in spec §7; it never inspects error strings.
var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrRateLimited      = errors.New("rate limited")
	ErrLockHeld         = errors.New("lock already held")
	ErrValidation       = errors.New("validation error")
	ErrConflict         = errors.New("conflict")
	ErrSignatureInvalid = errors.New("signature invalid")
	ErrNotParticipant   = errors.New("not a participant")
	ErrOutcomeMismatch  = errors.New("outcome mismatch")
	ErrNoActiveProposal = errors.New("no active proposal")
	ErrChainUnavailable = errors.New("chain unavailable")
	ErrContractCall     = errors.New("contract call failed")
)

// Kind classifies an error into the taxonomy from spec §7 for the HTTP
// layer's status-code mapping. Errors that match none of the sentinels are
// KindInternal.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindSignatureInvalid
	KindBusinessRule
	KindChainUnavailable
	KindContractCall
)

// ClassifyErr maps err onto a Kind by walking its wrap chain with errors.Is.
func ClassifyErr(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrSignatureInvalid):
		return KindSignatureInvalid
	case errors.Is(err, ErrNotParticipant), errors.Is(err, ErrOutcomeMismatch), errors.Is(err, ErrNoActiveProposal):
		return KindBusinessRule
	case errors.Is(err, ErrChainUnavailable):
		return KindChainUnavailable
	case errors.Is(err, ErrContractCall):
		return KindContractCall
	case errors.Is(err, ErrRateLimited):
		return KindBusinessRule
	default:
		return KindInternal
	}
}
