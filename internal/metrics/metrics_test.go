package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareRecordsRequestCountAndStatus(t *testing.T) {
	AttestationsIngested.Reset()
	HTTPRequestsTotal.Reset()

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/markets", "200"))

	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/markets", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/markets", "200"))
	require.Equal(t, before+1, after)
}

func TestMiddlewareRecordsNonOKStatus(t *testing.T) {
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/markets/missing", "404"))

	r := httptest.NewRequest(http.MethodGet, "/api/markets/missing", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/markets/missing", "404"))
	require.Equal(t, before+1, after)
}

func TestHandlerExposesPrometheusFormat(t *testing.T) {
	AttestationsIngested.WithLabelValues("yes").Inc()

	r := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "relayer_attestations_ingested_total")
}

func TestOutcomeLabelsAreIndependentCounters(t *testing.T) {
	before := testutil.ToFloat64(AttestationsIngested.WithLabelValues("no"))
	AttestationsIngested.WithLabelValues("no").Inc()
	after := testutil.ToFloat64(AttestationsIngested.WithLabelValues("no"))
	require.Equal(t, before+1, after)
}
