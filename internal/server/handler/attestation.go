package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"
	"regexp"

	"github.com/sidebet/relayer/internal/domain"
	"github.com/sidebet/relayer/internal/service"
)

var signaturePattern = regexp.MustCompile(`^0x[a-fA-F0-9]{130}$`)

// AttestationService is the subset of the Signature Service that the
// attestation handler requires.
type AttestationService interface {
	Submit(ctx context.Context, market, signer string, outcome domain.Outcome, nonce *big.Int, signature string) (service.AttestationResult, error)
	GetAttestations(ctx context.Context, market string, outcome *domain.Outcome) ([]domain.Attestation, error)
	CountAttestations(ctx context.Context, market string) (yes, no, required int, err error)
}

// AttestationHandler serves the /api/attestations surface.
type AttestationHandler struct {
	svc     AttestationService
	deleter domain.AttestationStore // dev-only DELETE support
	logger  *slog.Logger
}

// NewAttestationHandler constructs an AttestationHandler. deleter may be nil
// in deployments that do not expose the dev-only delete endpoint.
func NewAttestationHandler(svc AttestationService, deleter domain.AttestationStore, logger *slog.Logger) *AttestationHandler {
	return &AttestationHandler{svc: svc, deleter: deleter, logger: logger}
}

type submitAttestationRequest struct {
	Market    string `json:"market"`
	Signer    string `json:"signer"`
	Outcome   int    `json:"outcome"`
	Nonce     string `json:"nonce"`
	Signature string `json:"signature"`
}

// Submit handles POST /api/attestations.
func (h *AttestationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitAttestationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeValidationErr(w, "invalid request body")
		return
	}
	if !addressPattern.MatchString(req.Market) {
		writeValidationErr(w, "invalid market address")
		return
	}
	if !addressPattern.MatchString(req.Signer) {
		writeValidationErr(w, "invalid signer address")
		return
	}
	if !signaturePattern.MatchString(req.Signature) {
		writeValidationErr(w, "invalid signature")
		return
	}
	if req.Outcome != int(domain.OutcomeNo) && req.Outcome != int(domain.OutcomeYes) {
		writeValidationErr(w, "outcome must be 0 or 1")
		return
	}
	nonce, ok := domain.BigIntPtr(req.Nonce)
	if !ok || nonce.Sign() < 0 {
		writeValidationErr(w, "invalid nonce")
		return
	}

	result, err := h.svc.Submit(r.Context(), req.Market, req.Signer, domain.Outcome(req.Outcome), nonce, req.Signature)
	if err != nil {
		writeErr(w, logHandler(h.logger, "Submit"), err)
		return
	}

	writeOK(w, http.StatusCreated, map[string]any{
		"attestationId":    result.AttestationID,
		"attestationCount": result.AttestationCount,
		"eligible":         result.Eligible,
		"required":         result.Required,
		"thresholdMet":     result.ThresholdMet,
	})
}

// List handles GET /api/attestations?market=&outcome=.
func (h *AttestationHandler) List(w http.ResponseWriter, r *http.Request) {
	market := r.URL.Query().Get("market")
	if !addressPattern.MatchString(market) {
		writeValidationErr(w, "market is required")
		return
	}
	market = domain.NormalizeAddress(market)

	var outcomePtr *domain.Outcome
	if raw := r.URL.Query().Get("outcome"); raw != "" {
		switch raw {
		case "0":
			o := domain.OutcomeNo
			outcomePtr = &o
		case "1":
			o := domain.OutcomeYes
			outcomePtr = &o
		default:
			writeValidationErr(w, "outcome must be 0 or 1")
			return
		}
	}

	attestations, err := h.svc.GetAttestations(r.Context(), market, outcomePtr)
	if err != nil {
		writeErr(w, logHandler(h.logger, "List"), err)
		return
	}

	writeOK(w, http.StatusOK, map[string]any{"attestations": attestationsToJSON(attestations)})
}

// GetByMarket handles GET /api/attestations/{market}.
func (h *AttestationHandler) GetByMarket(w http.ResponseWriter, r *http.Request) {
	market := pathParam(r, "market")
	if !addressPattern.MatchString(market) {
		writeValidationErr(w, "invalid market address")
		return
	}
	market = domain.NormalizeAddress(market)

	attestations, err := h.svc.GetAttestations(r.Context(), market, nil)
	if err != nil {
		writeErr(w, logHandler(h.logger, "GetByMarket"), err)
		return
	}

	writeOK(w, http.StatusOK, map[string]any{"attestations": attestationsToJSON(attestations)})
}

// Count handles GET /api/attestations/{market}/count.
func (h *AttestationHandler) Count(w http.ResponseWriter, r *http.Request) {
	market := pathParam(r, "market")
	if !addressPattern.MatchString(market) {
		writeValidationErr(w, "invalid market address")
		return
	}
	market = domain.NormalizeAddress(market)

	yes, no, required, err := h.svc.CountAttestations(r.Context(), market)
	if err != nil {
		writeErr(w, logHandler(h.logger, "Count"), err)
		return
	}

	writeOK(w, http.StatusOK, map[string]any{"yes": yes, "no": no, "required": required})
}

// Delete handles DELETE /api/attestations/{market}, a dev-only escape hatch
// for resetting a market's attestations. The server registers it only when
// its EnableDelete config flag is set.
func (h *AttestationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	market := pathParam(r, "market")
	if !addressPattern.MatchString(market) {
		writeValidationErr(w, "invalid market address")
		return
	}
	market = domain.NormalizeAddress(market)

	if err := h.deleter.DeleteAttestations(r.Context(), market); err != nil {
		writeErr(w, logHandler(h.logger, "Delete"), err)
		return
	}

	writeOK(w, http.StatusOK, map[string]any{"market": market})
}

func attestationsToJSON(attestations []domain.Attestation) []map[string]any {
	out := make([]map[string]any, 0, len(attestations))
	for _, a := range attestations {
		entry := map[string]any{
			"id":          a.ID,
			"market":      a.Market,
			"proposalId":  a.ProposalID,
			"signer":      a.Signer,
			"outcome":     a.Outcome,
			"signature":   a.Signature,
			"submittedAt": a.SubmittedAt,
			"isValid":     a.IsValid,
		}
		if a.Nonce != nil {
			entry["nonce"] = a.Nonce.String()
		}
		out = append(out, entry)
	}
	return out
}
