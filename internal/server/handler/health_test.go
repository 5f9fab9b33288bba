package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sidebet/relayer/internal/domain"
)

type fakeStatsService struct {
	counts domain.HealthCounts
	err    error
}

func (f *fakeStatsService) HealthCounts(ctx context.Context) (domain.HealthCounts, error) {
	return f.counts, f.err
}

type fakeQueueService struct {
	entries []domain.FinalizationQueueEntry
	err     error
}

func (f *fakeQueueService) ListPending(ctx context.Context, limit int) ([]domain.FinalizationQueueEntry, error) {
	return f.entries, f.err
}

func TestHealthCheckAlwaysOK(t *testing.T) {
	h := NewHealthHandler(&fakeStatsService{}, &fakeQueueService{}, slog.Default())

	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	h.HealthCheck(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeEnvelope(t, w.Body.Bytes())
	require.Equal(t, "ok", resp["status"])
}

func TestDetailedReportsCounts(t *testing.T) {
	stats := &fakeStatsService{counts: domain.HealthCounts{
		MarketsByStatus:     map[string]int64{"open": 2, "resolved": 1},
		AttestationCount:    10,
		ParticipantCount:    5,
		PendingFinalization: 1,
	}}
	h := NewHealthHandler(stats, &fakeQueueService{}, slog.Default())

	r := httptest.NewRequest(http.MethodGet, "/health/detailed", nil)
	w := httptest.NewRecorder()

	h.Detailed(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeEnvelope(t, w.Body.Bytes())
	require.Equal(t, float64(10), resp["attestationCount"])
}

func TestDetailedPropagatesStoreError(t *testing.T) {
	stats := &fakeStatsService{err: domain.ErrChainUnavailable}
	h := NewHealthHandler(stats, &fakeQueueService{}, slog.Default())

	r := httptest.NewRequest(http.MethodGet, "/health/detailed", nil)
	w := httptest.NewRecorder()

	h.Detailed(w, r)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestQueueListsPendingEntries(t *testing.T) {
	queue := &fakeQueueService{entries: []domain.FinalizationQueueEntry{
		{Market: "0xabc", SignatureCount: 3, EligibleCount: 5},
	}}
	h := NewHealthHandler(&fakeStatsService{}, queue, slog.Default())

	r := httptest.NewRequest(http.MethodGet, "/health/queue", nil)
	w := httptest.NewRecorder()

	h.Queue(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeEnvelope(t, w.Body.Bytes())
	entries, ok := resp["queue"].([]any)
	require.True(t, ok)
	require.Len(t, entries, 1)
}
