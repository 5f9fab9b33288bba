package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sidebet/relayer/internal/domain"
	"github.com/sidebet/relayer/internal/service"
)

type fakeAttestationService struct {
	result    service.AttestationResult
	submitErr error
	rows      []domain.Attestation
	yes, no   int
	required  int
	countErr  error
}

func (f *fakeAttestationService) Submit(ctx context.Context, market, signer string, outcome domain.Outcome, nonce *big.Int, signature string) (service.AttestationResult, error) {
	if f.submitErr != nil {
		return service.AttestationResult{}, f.submitErr
	}
	return f.result, nil
}
func (f *fakeAttestationService) GetAttestations(ctx context.Context, market string, outcome *domain.Outcome) ([]domain.Attestation, error) {
	return f.rows, nil
}
func (f *fakeAttestationService) CountAttestations(ctx context.Context, market string) (int, int, int, error) {
	return f.yes, f.no, f.required, f.countErr
}

type fakeAttestationDeleter struct {
	deleted []string
}

func (f *fakeAttestationDeleter) CreateAttestation(ctx context.Context, a domain.Attestation) (domain.Attestation, error) {
	return domain.Attestation{}, nil
}
func (f *fakeAttestationDeleter) CountValidAttestations(ctx context.Context, market string, outcome domain.Outcome) (int, error) {
	return 0, nil
}
func (f *fakeAttestationDeleter) ListAttestations(ctx context.Context, market string, outcome *domain.Outcome) ([]domain.Attestation, error) {
	return nil, nil
}
func (f *fakeAttestationDeleter) GetAttestationsForFinalization(ctx context.Context, market string, outcome domain.Outcome) (domain.FinalizationBundle, error) {
	return domain.FinalizationBundle{}, nil
}
func (f *fakeAttestationDeleter) DeleteAttestations(ctx context.Context, market string) error {
	f.deleted = append(f.deleted, market)
	return nil
}

const attestationTestMarket = "0x1111111111111111111111111111111111111111"
const attestationTestSigner = "0x2222222222222222222222222222222222222222"

var validSignature = "0x" + strings.Repeat("a", 130)

func TestSubmitAttestationValidatesFields(t *testing.T) {
	svc := &fakeAttestationService{}
	h := NewAttestationHandler(svc, nil, slog.Default())

	body := `{"market":"bad","signer":"` + attestationTestSigner + `","outcome":1,"nonce":"1","signature":"` + validSignature + `"}`
	r := httptest.NewRequest(http.MethodPost, "/api/attestations", strings.NewReader(body))
	w := httptest.NewRecorder()

	h.Submit(w, r)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitAttestationHappyPath(t *testing.T) {
	svc := &fakeAttestationService{result: service.AttestationResult{AttestationID: 1, AttestationCount: 2, Eligible: 5, Required: 3, ThresholdMet: false}}
	h := NewAttestationHandler(svc, nil, slog.Default())

	body := `{"market":"` + attestationTestMarket + `","signer":"` + attestationTestSigner + `","outcome":1,"nonce":"1","signature":"` + validSignature + `"}`
	r := httptest.NewRequest(http.MethodPost, "/api/attestations", strings.NewReader(body))
	w := httptest.NewRecorder()

	h.Submit(w, r)

	require.Equal(t, http.StatusCreated, w.Code)
	resp := decodeEnvelope(t, w.Body.Bytes())
	require.Equal(t, float64(2), resp["attestationCount"])
}

func TestSubmitAttestationPropagatesSignatureInvalid(t *testing.T) {
	svc := &fakeAttestationService{submitErr: domain.ErrSignatureInvalid}
	h := NewAttestationHandler(svc, nil, slog.Default())

	body := `{"market":"` + attestationTestMarket + `","signer":"` + attestationTestSigner + `","outcome":1,"nonce":"1","signature":"` + validSignature + `"}`
	r := httptest.NewRequest(http.MethodPost, "/api/attestations", strings.NewReader(body))
	w := httptest.NewRecorder()

	h.Submit(w, r)

	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeEnvelope(t, w.Body.Bytes())
	require.Equal(t, "SIGNATURE_INVALID", resp["error"].(map[string]any)["code"])
}

func TestListAttestationsRequiresMarket(t *testing.T) {
	svc := &fakeAttestationService{}
	h := NewAttestationHandler(svc, nil, slog.Default())

	r := httptest.NewRequest(http.MethodGet, "/api/attestations", nil)
	w := httptest.NewRecorder()

	h.List(w, r)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCountAttestations(t *testing.T) {
	svc := &fakeAttestationService{yes: 3, no: 1, required: 5}
	h := NewAttestationHandler(svc, nil, slog.Default())

	r := httptest.NewRequest(http.MethodGet, "/api/attestations/"+attestationTestMarket+"/count", nil)
	r.SetPathValue("market", attestationTestMarket)
	w := httptest.NewRecorder()

	h.Count(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeEnvelope(t, w.Body.Bytes())
	require.Equal(t, float64(3), resp["yes"])
	require.Equal(t, float64(1), resp["no"])
	require.Equal(t, float64(5), resp["required"])
}

func TestDeleteAttestationsUsesDeleter(t *testing.T) {
	svc := &fakeAttestationService{}
	deleter := &fakeAttestationDeleter{}
	h := NewAttestationHandler(svc, deleter, slog.Default())

	r := httptest.NewRequest(http.MethodDelete, "/api/attestations/"+attestationTestMarket, nil)
	r.SetPathValue("market", attestationTestMarket)
	w := httptest.NewRecorder()

	h.Delete(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []string{attestationTestMarket}, deleter.deleted)
}
