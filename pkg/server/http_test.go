package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"influencehub/pkg/health"
	"influencehub/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRouterServesOpsEndpoints(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.RecordPayment("COMPLETED")

	r := NewRouter(RouterParams{
		Health:   health.ProvideHealth(health.HealthParams{}),
		Gatherer: reg,
	})

	for _, path := range []string{"/healthz", "/readyz"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, w.Code, path)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "COMPLETED")
}

func TestGetCertificateWithoutCert(t *testing.T) {
	s := &Server{}
	_, err := s.getCertificate(nil)
	require.Error(t, err)
}

func TestNormalizeAddr(t *testing.T) {
	require.Equal(t, ":8080", normalizeAddr("8080"))
	require.Equal(t, ":8080", normalizeAddr(":8080"))
	require.Equal(t, "127.0.0.1:8080", normalizeAddr("127.0.0.1:8080"))
	require.Equal(t, ":0", normalizeAddr(""))
}
