package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pageza/platecoach/backend/config"
	"github.com/pageza/platecoach/backend/internal/audit"
	"github.com/pageza/platecoach/backend/internal/jobs"
	"github.com/pageza/platecoach/backend/internal/metrics"
	"github.com/pageza/platecoach/backend/internal/middleware"
	"github.com/pageza/platecoach/backend/internal/pdf"
	"github.com/pageza/platecoach/backend/internal/repository"
	"github.com/pageza/platecoach/backend/internal/service"
	"github.com/pageza/platecoach/backend/internal/status"
	"github.com/pageza/platecoach/backend/internal/testhelpers"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	metrics.Register()

	db := testhelpers.NewSQLiteDB(t)
	cfg := config.Default()
	cfg.Environment = config.Test
	cfg.CORSOrigins = []string{"https://app.example.com"}

	sink := audit.NewGormSink(db)
	estimator := status.NewEstimator(repository.NewPlanRepository(db), sink, cfg.Queue, nil)
	plans := service.NewPlanService(db, jobs.NewInlineRunner(1), estimator, pdf.NewRenderer(), nil, sink)

	return New(cfg, Deps{
		DB:    db,
		Plans: plans,
		Auth:  middleware.NewJWTValidator(testhelpers.TestJWTSecret),
	}, nil)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ok", body["database"])
}

func TestHealthReportsClosedDatabase(t *testing.T) {
	srv := newTestServer(t)
	sqlDB, err := srv.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	srv.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}

func TestPlanRoutesAreMounted(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/plans/"+uuid.NewString()+"/status", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/plans/"+uuid.NewString()+"/status", nil)
	req.Header.Set("Authorization", "Bearer "+testhelpers.MintToken(t, uuid.New()))
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORSHeaders(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/plans", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}
