package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"influencehub/services/testutil"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(h HealthService, path string) *httptest.ResponseRecorder {
	r := gin.New()
	r.GET("/healthz", h.Liveness)
	r.GET("/readyz", h.Readiness)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestLiveness(t *testing.T) {
	w := serve(ProvideHealth(HealthParams{}), "/healthz")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestReadinessWithDatabase(t *testing.T) {
	db := testutil.NewTestDB(t)
	w := serve(ProvideHealth(HealthParams{DB: db}), "/readyz")
	require.Equal(t, http.StatusOK, w.Code)

	var out Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Equal(t, StatusHealthy, out.Status)
	require.Len(t, out.Deps, 1)
}

func TestReadinessReportsUnreachableRedis(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	w := serve(ProvideHealth(HealthParams{Redis: rdb}), "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var out Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Equal(t, StatusUnhealthy, out.Status)
	require.Equal(t, "redis", out.Deps[0].Name)
}
