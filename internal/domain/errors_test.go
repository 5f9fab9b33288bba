package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyErr(t *testing.T) {
	wrapped := fmt.Errorf("context: %w", ErrNoActiveProposal)

	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindInternal},
		{"validation", ErrValidation, KindValidation},
		{"not found", ErrNotFound, KindNotFound},
		{"already exists", ErrAlreadyExists, KindConflict},
		{"conflict", ErrConflict, KindConflict},
		{"signature invalid", ErrSignatureInvalid, KindSignatureInvalid},
		{"not participant", ErrNotParticipant, KindBusinessRule},
		{"outcome mismatch", ErrOutcomeMismatch, KindBusinessRule},
		{"no active proposal wrapped", wrapped, KindBusinessRule},
		{"chain unavailable", ErrChainUnavailable, KindChainUnavailable},
		{"contract call", ErrContractCall, KindContractCall},
		{"rate limited", ErrRateLimited, KindBusinessRule},
		{"unmapped", errors.New("boom"), KindInternal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyErr(tc.err); got != tc.want {
				t.Errorf("ClassifyErr(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
