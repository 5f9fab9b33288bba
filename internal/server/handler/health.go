package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sidebet/relayer/internal/domain"
)

// StatsService is the subset of the Store the health handler reads counters
// from.
type StatsService interface {
	HealthCounts(ctx context.Context) (domain.HealthCounts, error)
}

// QueueService is the subset of the finalization queue the health handler
// reports on.
type QueueService interface {
	ListPending(ctx context.Context, limit int) ([]domain.FinalizationQueueEntry, error)
}

// HealthHandler serves the /health surface.
type HealthHandler struct {
	stats  StatsService
	queue  QueueService
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler with the provided dependencies.
func NewHealthHandler(stats StatsService, queue QueueService, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{stats: stats, queue: queue, logger: logger}
}

// HealthCheck responds with a simple liveness signal.
// GET /health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeOK(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Detailed responds with per-status market counts and aggregate counters.
// GET /health/detailed
func (h *HealthHandler) Detailed(w http.ResponseWriter, r *http.Request) {
	counts, err := h.stats.HealthCounts(r.Context())
	if err != nil {
		writeErr(w, logHandler(h.logger, "Detailed"), err)
		return
	}

	writeOK(w, http.StatusOK, map[string]any{
		"status":              "ok",
		"marketsByStatus":     counts.MarketsByStatus,
		"attestationCount":    counts.AttestationCount,
		"participantCount":    counts.ParticipantCount,
		"pendingFinalization": counts.PendingFinalization,
	})
}

// Metrics responds with the same counters as Detailed, shaped for scraping
// rather than human inspection.
// GET /health/metrics
func (h *HealthHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	counts, err := h.stats.HealthCounts(r.Context())
	if err != nil {
		writeErr(w, logHandler(h.logger, "Metrics"), err)
		return
	}

	metrics := map[string]any{
		"relayer_attestation_count":    counts.AttestationCount,
		"relayer_participant_count":    counts.ParticipantCount,
		"relayer_pending_finalization": counts.PendingFinalization,
	}
	for status, count := range counts.MarketsByStatus {
		metrics["relayer_markets_"+status] = count
	}

	writeOK(w, http.StatusOK, metrics)
}

// Queue responds with the finalization queue's pending entries.
// GET /health/queue
func (h *HealthHandler) Queue(w http.ResponseWriter, r *http.Request) {
	entries, err := h.queue.ListPending(r.Context(), 100)
	if err != nil {
		writeErr(w, logHandler(h.logger, "Queue"), err)
		return
	}

	writeOK(w, http.StatusOK, map[string]any{"queue": queueEntriesToJSON(entries)})
}

func queueEntriesToJSON(entries []domain.FinalizationQueueEntry) []map[string]any {
	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		entry := map[string]any{
			"market":         e.Market,
			"signatureCount": e.SignatureCount,
			"eligibleCount":  e.EligibleCount,
			"outcome":        e.ProposalOutcome,
			"lastCheckedAt":  e.LastCheckedAt,
			"thresholdMet":   e.ThresholdMet,
			"lastError":      e.LastError,
		}
		if e.AttemptedAt != nil {
			entry["attemptedAt"] = *e.AttemptedAt
		}
		if e.CompletedAt != nil {
			entry["completedAt"] = *e.CompletedAt
		}
		out = append(out, entry)
	}
	return out
}
