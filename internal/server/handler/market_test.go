package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sidebet/relayer/internal/domain"
)

type fakeMarketService struct {
	markets     map[string]domain.Market
	syncCalls   int
	syncErr     error
	predictAddr string
	predictErr  error
}

func newFakeMarketService() *fakeMarketService {
	return &fakeMarketService{markets: map[string]domain.Market{}}
}

func (f *fakeMarketService) GetMarket(ctx context.Context, address string) (domain.Market, error) {
	m, ok := f.markets[address]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}
func (f *fakeMarketService) ListMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	var out []domain.Market
	for _, m := range f.markets {
		out = append(out, m)
	}
	return out, nil
}
func (f *fakeMarketService) SyncMarket(ctx context.Context, addr string) error {
	f.syncCalls++
	if f.syncErr != nil {
		return f.syncErr
	}
	if _, ok := f.markets[addr]; !ok {
		f.markets[addr] = domain.Market{Address: addr, Status: domain.MarketStatusOpen, TotalStaked: big.NewInt(0)}
	}
	return nil
}
func (f *fakeMarketService) GetParticipants(ctx context.Context, market string) ([]domain.Participant, error) {
	return nil, nil
}
func (f *fakeMarketService) GetActiveProposal(ctx context.Context, market string) (domain.Proposal, error) {
	return domain.Proposal{}, domain.ErrNoActiveProposal
}
func (f *fakeMarketService) PredictAddress(ctx context.Context, topic string, thresholdPercent int, token string, minStake, salt *big.Int) (string, error) {
	return f.predictAddr, f.predictErr
}

type fakeMarketAttestationCounter struct {
	yes, no, required int
	countErr          error
}

func (f *fakeMarketAttestationCounter) CountAttestations(ctx context.Context, market string) (int, int, int, error) {
	return f.yes, f.no, f.required, f.countErr
}

const handlerTestAddr = "0x1111111111111111111111111111111111111111"

func decodeEnvelope(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(body, &m))
	return m
}

func TestGetMarketReturnsExisting(t *testing.T) {
	svc := newFakeMarketService()
	svc.markets[handlerTestAddr] = domain.Market{Address: handlerTestAddr, Status: domain.MarketStatusOpen, TotalStaked: big.NewInt(0)}
	h := NewMarketHandler(svc, &fakeMarketAttestationCounter{}, slog.Default())

	r := httptest.NewRequest(http.MethodGet, "/api/markets/"+handlerTestAddr, nil)
	r.SetPathValue("address", handlerTestAddr)
	w := httptest.NewRecorder()

	h.GetMarket(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 0, svc.syncCalls, "an already-known market must not trigger a sync")
	body := decodeEnvelope(t, w.Body.Bytes())
	require.Equal(t, true, body["success"])
	require.Equal(t, handlerTestAddr, body["address"])
}

func TestGetMarketFallsBackToSyncWhenUnknown(t *testing.T) {
	svc := newFakeMarketService()
	h := NewMarketHandler(svc, &fakeMarketAttestationCounter{}, slog.Default())

	r := httptest.NewRequest(http.MethodGet, "/api/markets/"+handlerTestAddr, nil)
	r.SetPathValue("address", handlerTestAddr)
	w := httptest.NewRecorder()

	h.GetMarket(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, svc.syncCalls)
}

func TestGetMarketRejectsInvalidAddress(t *testing.T) {
	svc := newFakeMarketService()
	h := NewMarketHandler(svc, &fakeMarketAttestationCounter{}, slog.Default())

	r := httptest.NewRequest(http.MethodGet, "/api/markets/not-an-address", nil)
	r.SetPathValue("address", "not-an-address")
	w := httptest.NewRecorder()

	h.GetMarket(w, r)

	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeEnvelope(t, w.Body.Bytes())
	require.Equal(t, false, body["success"])
}

func TestListMarketsRejectsInvalidStatus(t *testing.T) {
	svc := newFakeMarketService()
	h := NewMarketHandler(svc, &fakeMarketAttestationCounter{}, slog.Default())

	r := httptest.NewRequest(http.MethodGet, "/api/markets?status=bogus", nil)
	w := httptest.NewRecorder()

	h.ListMarkets(w, r)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListMarketsReturnsAll(t *testing.T) {
	svc := newFakeMarketService()
	svc.markets[handlerTestAddr] = domain.Market{Address: handlerTestAddr, Status: domain.MarketStatusOpen, TotalStaked: big.NewInt(0)}
	h := NewMarketHandler(svc, &fakeMarketAttestationCounter{}, slog.Default())

	r := httptest.NewRequest(http.MethodGet, "/api/markets", nil)
	w := httptest.NewRecorder()

	h.ListMarkets(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeEnvelope(t, w.Body.Bytes())
	markets, ok := body["markets"].([]any)
	require.True(t, ok)
	require.Len(t, markets, 1)
}

func TestPredictAddressValidatesThreshold(t *testing.T) {
	svc := newFakeMarketService()
	h := NewMarketHandler(svc, &fakeMarketAttestationCounter{}, slog.Default())

	body := `{"topic":"will it rain","thresholdPercent":150,"token":"` + handlerTestAddr + `","minStake":"1","salt":"1"}`
	r := httptest.NewRequest(http.MethodPost, "/api/markets/predict-address", strings.NewReader(body))
	w := httptest.NewRecorder()

	h.PredictAddress(w, r)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPredictAddressHappyPath(t *testing.T) {
	svc := newFakeMarketService()
	svc.predictAddr = "0xpredicted000000000000000000000000000000"
	h := NewMarketHandler(svc, &fakeMarketAttestationCounter{}, slog.Default())

	body := `{"topic":"will it rain","thresholdPercent":60,"token":"` + handlerTestAddr + `","minStake":"1","salt":"1"}`
	r := httptest.NewRequest(http.MethodPost, "/api/markets/predict-address", strings.NewReader(body))
	w := httptest.NewRecorder()

	h.PredictAddress(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	respBody := decodeEnvelope(t, w.Body.Bytes())
	require.Equal(t, svc.predictAddr, respBody["address"])
}
