package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sidebet/relayer/internal/domain"
)

// envelope is the response shape for every JSON endpoint: either
// {success:true, ...fields} or {success:false, error:{message, code}}.
type envelope struct {
	Success bool           `json:"success"`
	Error   *envelopeError `json:"error,omitempty"`
}

type envelopeError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// writeJSON marshals v as JSON and writes it with the given status. v is
// expected to already carry success:true semantics via embedding envelope.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"success":false,"error":{"message":"internal server error","code":"INTERNAL"}}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeOK writes a success envelope, merging data's fields alongside
// success:true.
func writeOK(w http.ResponseWriter, status int, data any) {
	merged := map[string]any{"success": true}
	if data != nil {
		blob, err := json.Marshal(data)
		if err == nil {
			var fields map[string]any
			if err := json.Unmarshal(blob, &fields); err == nil {
				for k, v := range fields {
					merged[k] = v
				}
			}
		}
	}
	writeJSON(w, status, merged)
}

// statusForKind maps the domain error taxonomy onto HTTP status codes and
// stable error codes, per spec §7.
func statusForKind(kind domain.Kind) (int, string) {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest, "VALIDATION"
	case domain.KindNotFound:
		return http.StatusNotFound, "NOT_FOUND"
	case domain.KindConflict:
		return http.StatusConflict, "CONFLICT"
	case domain.KindSignatureInvalid:
		return http.StatusBadRequest, "SIGNATURE_INVALID"
	case domain.KindBusinessRule:
		return http.StatusBadRequest, "VALIDATION"
	case domain.KindChainUnavailable:
		return http.StatusServiceUnavailable, "CHAIN_UNAVAILABLE"
	case domain.KindContractCall:
		return http.StatusServiceUnavailable, "CHAIN_UNAVAILABLE"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

// writeErr classifies err through the domain taxonomy and writes the
// corresponding error envelope. Internal-kind messages are never exposed to
// the client; everything else's message is safe to surface because it
// originates from a known taxonomy sentinel.
func writeErr(w http.ResponseWriter, logger *slog.Logger, err error) {
	kind := domain.ClassifyErr(err)
	status, code := statusForKind(kind)

	msg := errMessage(err, kind)
	if kind == domain.KindInternal {
		logger.Error("internal error", slog.String("error", err.Error()))
		msg = "internal server error"
	}

	writeJSON(w, status, envelope{Success: false, Error: &envelopeError{Message: msg, Code: code}})
}

// writeValidationErr writes a 400 VALIDATION envelope for boundary
// validation failures that never reach the service layer.
func writeValidationErr(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, envelope{Success: false, Error: &envelopeError{Message: msg, Code: "VALIDATION"}})
}

func errMessage(err error, kind domain.Kind) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "not found"
	case errors.Is(err, domain.ErrAlreadyExists):
		return "already exists"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrSignatureInvalid):
		return "signature invalid"
	case errors.Is(err, domain.ErrNotParticipant):
		return "not a participant"
	case errors.Is(err, domain.ErrOutcomeMismatch):
		return "outcome mismatch"
	case errors.Is(err, domain.ErrNoActiveProposal):
		return "no active proposal"
	case errors.Is(err, domain.ErrChainUnavailable):
		return "chain unavailable"
	case errors.Is(err, domain.ErrContractCall):
		return "contract call failed"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate limit exceeded"
	default:
		return err.Error()
	}
}
