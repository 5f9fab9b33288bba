package handler

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"regexp"

	"github.com/sidebet/relayer/internal/domain"
)

var addressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// MarketService is the subset of the Sync Service that the market handler
// requires. It is declared locally so the handler package does not depend on
// the concrete service implementation.
type MarketService interface {
	GetMarket(ctx context.Context, address string) (domain.Market, error)
	ListMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error)
	SyncMarket(ctx context.Context, addr string) error
	GetParticipants(ctx context.Context, market string) ([]domain.Participant, error)
	GetActiveProposal(ctx context.Context, market string) (domain.Proposal, error)
	PredictAddress(ctx context.Context, topic string, thresholdPercent int, token string, minStake *big.Int, salt *big.Int) (string, error)
}

// AttestationCounter is the subset of the Signature Service the market
// handler needs to fold yes/no attestation tallies into the full market view.
type AttestationCounter interface {
	CountAttestations(ctx context.Context, market string) (yes, no, required int, err error)
}

// MarketHandler serves the /api/markets surface.
type MarketHandler struct {
	svc     MarketService
	attests AttestationCounter
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(svc MarketService, attests AttestationCounter, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{svc: svc, attests: attests, logger: logger}
}

// ListMarkets handles GET /api/markets, with optional ?status= filtering and
// standard pagination.
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeValidationErr(w, err.Error())
		return
	}

	if raw := r.URL.Query().Get("status"); raw != "" {
		status, ok := parseMarketStatus(raw)
		if !ok {
			writeValidationErr(w, "invalid status filter")
			return
		}
		opts.Status = &status
	}

	markets, err := h.svc.ListMarkets(r.Context(), opts)
	if err != nil {
		writeErr(w, logHandler(h.logger, "ListMarkets"), err)
		return
	}

	writeOK(w, http.StatusOK, map[string]any{"markets": marketsToJSON(markets)})
}

// GetMarket handles GET /api/markets/{address}. If the market is not yet
// known, it falls back to a one-shot sync before returning it. The response
// is the full market view: base fields plus the active proposal (if any) and
// current yes/no attestation counts.
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	address := pathParam(r, "address")
	if !addressPattern.MatchString(address) {
		writeValidationErr(w, "invalid market address")
		return
	}
	address = domain.NormalizeAddress(address)

	market, err := h.svc.GetMarket(r.Context(), address)
	if err == nil {
		h.writeFullMarketView(w, r, market)
		return
	}
	if !isNotFoundErr(err) {
		writeErr(w, logHandler(h.logger, "GetMarket"), err)
		return
	}

	if syncErr := h.svc.SyncMarket(r.Context(), address); syncErr != nil {
		writeErr(w, logHandler(h.logger, "GetMarket"), syncErr)
		return
	}

	market, err = h.svc.GetMarket(r.Context(), address)
	if err != nil {
		writeErr(w, logHandler(h.logger, "GetMarket"), err)
		return
	}
	h.writeFullMarketView(w, r, market)
}

// writeFullMarketView composes the base market fields with its active
// proposal and attestation tally. A market with no active proposal (e.g.
// still Open) simply omits the "proposal" field rather than failing.
func (h *MarketHandler) writeFullMarketView(w http.ResponseWriter, r *http.Request, market domain.Market) {
	out := marketToJSON(market)

	proposal, err := h.svc.GetActiveProposal(r.Context(), market.Address)
	switch {
	case err == nil:
		out["proposal"] = proposalToJSON(proposal)
	case errors.Is(err, domain.ErrNoActiveProposal):
		// no active proposal yet; leave the field out.
	default:
		writeErr(w, logHandler(h.logger, "GetMarket"), err)
		return
	}

	yes, no, required, err := h.attests.CountAttestations(r.Context(), market.Address)
	if err != nil {
		writeErr(w, logHandler(h.logger, "GetMarket"), err)
		return
	}
	out["attestations"] = map[string]any{"yes": yes, "no": no, "required": required}

	writeOK(w, http.StatusOK, out)
}

// SyncMarket handles POST /api/markets/{address}/sync, forcing an immediate
// re-sync from the chain.
func (h *MarketHandler) SyncMarket(w http.ResponseWriter, r *http.Request) {
	address := pathParam(r, "address")
	if !addressPattern.MatchString(address) {
		writeValidationErr(w, "invalid market address")
		return
	}
	address = domain.NormalizeAddress(address)

	if err := h.svc.SyncMarket(r.Context(), address); err != nil {
		writeErr(w, logHandler(h.logger, "SyncMarket"), err)
		return
	}

	market, err := h.svc.GetMarket(r.Context(), address)
	if err != nil {
		writeErr(w, logHandler(h.logger, "SyncMarket"), err)
		return
	}
	writeOK(w, http.StatusOK, marketToJSON(market))
}

// Participants handles GET /api/markets/{address}/participants.
func (h *MarketHandler) Participants(w http.ResponseWriter, r *http.Request) {
	address := pathParam(r, "address")
	if !addressPattern.MatchString(address) {
		writeValidationErr(w, "invalid market address")
		return
	}
	address = domain.NormalizeAddress(address)

	participants, err := h.svc.GetParticipants(r.Context(), address)
	if err != nil {
		writeErr(w, logHandler(h.logger, "Participants"), err)
		return
	}

	writeOK(w, http.StatusOK, map[string]any{"participants": participantsToJSON(participants)})
}

// Proposal handles GET /api/markets/{address}/proposal.
func (h *MarketHandler) Proposal(w http.ResponseWriter, r *http.Request) {
	address := pathParam(r, "address")
	if !addressPattern.MatchString(address) {
		writeValidationErr(w, "invalid market address")
		return
	}
	address = domain.NormalizeAddress(address)

	proposal, err := h.svc.GetActiveProposal(r.Context(), address)
	if err != nil {
		writeErr(w, logHandler(h.logger, "Proposal"), err)
		return
	}

	writeOK(w, http.StatusOK, proposalToJSON(proposal))
}

// Status handles GET /api/markets/{address}/status, a lightweight variant of
// GetMarket that reports only the lifecycle status.
func (h *MarketHandler) Status(w http.ResponseWriter, r *http.Request) {
	address := pathParam(r, "address")
	if !addressPattern.MatchString(address) {
		writeValidationErr(w, "invalid market address")
		return
	}
	address = domain.NormalizeAddress(address)

	market, err := h.svc.GetMarket(r.Context(), address)
	if err != nil {
		writeErr(w, logHandler(h.logger, "Status"), err)
		return
	}

	writeOK(w, http.StatusOK, map[string]any{"address": market.Address, "status": market.Status.String()})
}

type predictAddressRequest struct {
	Topic            string `json:"topic"`
	ThresholdPercent int    `json:"thresholdPercent"`
	Token            string `json:"token"`
	MinStake         string `json:"minStake"`
	Salt             string `json:"salt"`
}

// PredictAddress handles POST /api/markets/predict-address, computing the
// deterministic factory-deployment address for a market that has not yet
// been created on-chain.
func (h *MarketHandler) PredictAddress(w http.ResponseWriter, r *http.Request) {
	var req predictAddressRequest
	if err := decodeJSON(r, &req); err != nil {
		writeValidationErr(w, "invalid request body")
		return
	}
	if req.Topic == "" {
		writeValidationErr(w, "topic is required")
		return
	}
	if req.ThresholdPercent < 51 || req.ThresholdPercent > 99 {
		writeValidationErr(w, "thresholdPercent must be between 51 and 99")
		return
	}
	if !addressPattern.MatchString(req.Token) {
		writeValidationErr(w, "invalid staking token address")
		return
	}
	minStake, ok := domain.BigIntPtr(req.MinStake)
	if !ok {
		writeValidationErr(w, "invalid minStake")
		return
	}
	salt, ok := domain.BigIntPtr(req.Salt)
	if !ok {
		writeValidationErr(w, "invalid salt")
		return
	}

	addr, err := h.svc.PredictAddress(r.Context(), req.Topic, req.ThresholdPercent, domain.NormalizeAddress(req.Token), minStake, salt)
	if err != nil {
		writeErr(w, logHandler(h.logger, "PredictAddress"), err)
		return
	}

	writeOK(w, http.StatusOK, map[string]any{"address": addr})
}

func isNotFoundErr(err error) bool {
	return domain.ClassifyErr(err) == domain.KindNotFound
}

// parseMarketStatus accepts both the documented numeric form (0..4, matching
// domain.MarketStatus's own ordering) and the string names for convenience.
func parseMarketStatus(raw string) (domain.MarketStatus, bool) {
	switch raw {
	case "open", "0":
		return domain.MarketStatusOpen, true
	case "proposed", "1":
		return domain.MarketStatusProposed, true
	case "resolved", "2":
		return domain.MarketStatusResolved, true
	case "disputed", "3":
		return domain.MarketStatusDisputed, true
	case "cancelled", "4":
		return domain.MarketStatusCancelled, true
	default:
		return 0, false
	}
}

func marketToJSON(m domain.Market) map[string]any {
	out := map[string]any{
		"address":          m.Address,
		"topic":            m.Topic,
		"thresholdPercent": m.ThresholdPercent,
		"stakingToken":     m.StakingToken,
		"participantCount": m.ParticipantCount,
		"status":           m.Status.String(),
		"createdAt":        m.CreatedAt,
		"lastSyncAt":       m.LastSyncAt,
	}
	if m.TotalStaked != nil {
		out["totalStaked"] = m.TotalStaked.String()
	}
	if m.ProposedAt != nil {
		out["proposedAt"] = *m.ProposedAt
	}
	if m.ResolvedAt != nil {
		out["resolvedAt"] = *m.ResolvedAt
	}
	return out
}

func marketsToJSON(markets []domain.Market) []map[string]any {
	out := make([]map[string]any, 0, len(markets))
	for _, m := range markets {
		out = append(out, marketToJSON(m))
	}
	return out
}

func participantsToJSON(participants []domain.Participant) []map[string]any {
	out := make([]map[string]any, 0, len(participants))
	for _, p := range participants {
		entry := map[string]any{
			"market":      p.Market,
			"user":        p.User,
			"outcome":     p.Outcome,
			"hasAttested": p.HasAttested,
		}
		if p.Stake != nil {
			entry["stake"] = p.Stake.String()
		}
		out = append(out, entry)
	}
	return out
}

func proposalToJSON(p domain.Proposal) map[string]any {
	return map[string]any{
		"id":               p.ID,
		"market":           p.Market,
		"proposer":         p.Proposer,
		"outcome":          p.Outcome,
		"disputeUntil":     p.DisputeUntil,
		"evidenceHash":     p.EvidenceHash,
		"attestationCount": p.AttestationCount,
		"isDisputed":       p.IsDisputed,
		"createdAt":        p.CreatedAt,
	}
}
