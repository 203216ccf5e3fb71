package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/pageza/platecoach/backend/config"
	"github.com/pageza/platecoach/backend/internal/apperrors"
	"github.com/pageza/platecoach/backend/internal/audit"
	"github.com/pageza/platecoach/backend/internal/generation"
	"github.com/pageza/platecoach/backend/internal/jobs"
	"github.com/pageza/platecoach/backend/internal/llm"
	"github.com/pageza/platecoach/backend/internal/middleware"
	"github.com/pageza/platecoach/backend/internal/models"
	"github.com/pageza/platecoach/backend/internal/pdf"
	"github.com/pageza/platecoach/backend/internal/repository"
	"github.com/pageza/platecoach/backend/internal/service"
	"github.com/pageza/platecoach/backend/internal/status"
	"github.com/pageza/platecoach/backend/internal/testhelpers"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockPlanService struct {
	mock.Mock
}

func (m *mockPlanService) Submit(ctx context.Context, tenantID uuid.UUID, req service.SubmitRequest) (*models.Plan, error) {
	args := m.Called(ctx, tenantID, req)
	p, _ := args.Get(0).(*models.Plan)
	return p, args.Error(1)
}

func (m *mockPlanService) Retry(ctx context.Context, tenantID, planID uuid.UUID) (*models.Plan, error) {
	args := m.Called(ctx, tenantID, planID)
	p, _ := args.Get(0).(*models.Plan)
	return p, args.Error(1)
}

func (m *mockPlanService) Status(ctx context.Context, tenantID, planID uuid.UUID) (*status.Snapshot, error) {
	args := m.Called(ctx, tenantID, planID)
	s, _ := args.Get(0).(*status.Snapshot)
	return s, args.Error(1)
}

func (m *mockPlanService) ExportPDF(ctx context.Context, tenantID, planID uuid.UUID) (*service.Export, error) {
	args := m.Called(ctx, tenantID, planID)
	e, _ := args.Get(0).(*service.Export)
	return e, args.Error(1)
}

func (m *mockPlanService) List(ctx context.Context, tenantID uuid.UUID, statuses []string) ([]models.Plan, error) {
	args := m.Called(ctx, tenantID, statuses)
	p, _ := args.Get(0).([]models.Plan)
	return p, args.Error(1)
}

func newRouter(svc service.IPlanService) *gin.Engine {
	r := gin.New()
	NewPlanHandler(svc).RegisterRoutes(r.Group("/api/v1"), middleware.AuthMiddleware(middleware.NewJWTValidator(testhelpers.TestJWTSecret)), nil)
	return r
}

func perform(t *testing.T, r http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestErrorMapping(t *testing.T) {
	verr := apperrors.NewValidationError()
	verr.Add("age", "must be at least 16")

	tests := []struct {
		name string
		err  error
		code int
	}{
		{"validation", verr, http.StatusBadRequest},
		{"forbidden", fmt.Errorf("unknown tenant: %w", apperrors.ErrForbidden), http.StatusForbidden},
		{"not found", apperrors.ErrNotFound, http.StatusNotFound},
		{"invalid state", apperrors.InvalidState("retry", "completed", "failed"), http.StatusConflict},
		{"subscription", apperrors.ErrSubscriptionRequired, http.StatusPaymentRequired},
		{"usage", apperrors.ErrUsageLimitExceeded, http.StatusTooManyRequests},
		{"internal", fmt.Errorf("pq: connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockPlanService{}
			tenantID := uuid.New()
			svc.On("Submit", mock.Anything, tenantID, mock.Anything).Return(nil, tt.err)

			w := perform(t, newRouter(svc), http.MethodPost, "/api/v1/plans", testhelpers.MintToken(t, tenantID),
				gin.H{"questionnaire": gin.H{"name": "Sarah"}})
			assert.Equal(t, tt.code, w.Code)

			body := decode(t, w)
			if tt.code == http.StatusBadRequest {
				assert.Equal(t, map[string]any{"age": "must be at least 16"}, body["fields"])
			}
			if tt.code == http.StatusInternalServerError {
				assert.Equal(t, "internal server error", body["error"])
			}
		})
	}
}

func TestRoutesRequireAuth(t *testing.T) {
	svc := &mockPlanService{}
	r := newRouter(svc)
	id := uuid.NewString()
	for _, route := range []struct{ method, path string }{
		{http.MethodPost, "/api/v1/plans"},
		{http.MethodGet, "/api/v1/plans"},
		{http.MethodGet, "/api/v1/plans/" + id + "/status"},
		{http.MethodPost, "/api/v1/plans/" + id + "/retry"},
		{http.MethodGet, "/api/v1/plans/" + id + "/pdf"},
	} {
		w := perform(t, r, route.method, route.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, route.path)
	}
	svc.AssertNotCalled(t, "Status", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmitRequiresQuestionnaire(t *testing.T) {
	svc := &mockPlanService{}
	w := perform(t, newRouter(svc), http.MethodPost, "/api/v1/plans", testhelpers.MintToken(t, uuid.New()), gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, map[string]any{"questionnaire": "is required"}, decode(t, w)["fields"])
}

func TestMalformedPlanIDIsNotFound(t *testing.T) {
	svc := &mockPlanService{}
	w := perform(t, newRouter(svc), http.MethodGet, "/api/v1/plans/not-a-uuid/status", testhelpers.MintToken(t, uuid.New()), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExportPDFResponse(t *testing.T) {
	svc := &mockPlanService{}
	tenantID, planID := uuid.New(), uuid.New()
	svc.On("ExportPDF", mock.Anything, tenantID, planID).Return(&service.Export{
		Filename:   "nutrition-plan-sarah-2024-03-05.pdf",
		PDF:        []byte("%PDF-1.4 test"),
		ArchiveURL: "https://archive.example/x",
	}, nil)

	w := perform(t, newRouter(svc), http.MethodGet, "/api/v1/plans/"+planID.String()+"/pdf", testhelpers.MintToken(t, tenantID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="nutrition-plan-sarah-2024-03-05.pdf"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "https://archive.example/x", w.Header().Get("X-Archive-URL"))
	assert.Equal(t, "%PDF-1.4 test", w.Body.String())
}

func TestListPassesStatusFilter(t *testing.T) {
	svc := &mockPlanService{}
	tenantID := uuid.New()
	svc.On("List", mock.Anything, tenantID, []string{"failed", "pending"}).Return([]models.Plan{{ID: uuid.New(), Status: models.PlanStatusFailed}}, nil)

	w := perform(t, newRouter(svc), http.MethodGet, "/api/v1/plans?status=failed,pending", testhelpers.MintToken(t, tenantID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	plans := decode(t, w)["plans"].([]any)
	require.Len(t, plans, 1)
	assert.Equal(t, "failed", plans[0].(map[string]any)["status"])
	svc.AssertExpectations(t)
}

// stack wires the real service over SQLite with a runner that only records events.
type stack struct {
	db     *gorm.DB
	router *gin.Engine
	tenant *models.Tenant
	token  string
}

type queuedRunner struct{}

func (queuedRunner) Register(string, jobs.Handler) {}
func (queuedRunner) Send(context.Context, string, any) (string, error) {
	return uuid.NewString(), nil
}

func newStack(t *testing.T, runner jobs.Runner) *stack {
	t.Helper()
	db := testhelpers.NewSQLiteDB(t)
	sink := audit.NewGormSink(db)
	estimator := status.NewEstimator(repository.NewPlanRepository(db), sink, config.Default().Queue, nil)
	svc := service.NewPlanService(db, runner, estimator, pdf.NewRenderer(), nil, sink)
	tenant := testhelpers.CreateTenant(t, db)
	return &stack{db: db, router: newRouter(svc), tenant: tenant, token: testhelpers.MintToken(t, tenant.ID)}
}

func TestStatusContractForQueuedPlan(t *testing.T) {
	s := newStack(t, queuedRunner{})
	plan := testhelpers.CreatePlan(t, s.db, s.tenant.ID, models.PlanStatusPending, time.Now().Add(-90*time.Second))

	w := perform(t, s.router, http.MethodGet, "/api/v1/plans/"+plan.ID.String()+"/status", s.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)

	for _, key := range []string{
		"id", "status", "queuePosition", "totalInQueue", "estimatedMinutes", "elapsedSeconds",
		"errorMessage", "attempts", "plan_text", "client_name", "created_at", "updated_at",
	} {
		assert.Contains(t, body, key)
	}
	assert.Equal(t, plan.ID.String(), body["id"])
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, float64(1), body["queuePosition"])
	assert.Equal(t, float64(1), body["totalInQueue"])
	assert.Equal(t, float64(1), body["estimatedMinutes"])
	assert.GreaterOrEqual(t, body["elapsedSeconds"], float64(90))
	assert.Nil(t, body["errorMessage"])
	assert.Nil(t, body["plan_text"])
	assert.Equal(t, "Sarah", body["client_name"])
}

func TestStatusForeignTenantIsNotFound(t *testing.T) {
	s := newStack(t, queuedRunner{})
	plan := testhelpers.CreatePlan(t, s.db, s.tenant.ID, models.PlanStatusPending, time.Now())

	intruder := testhelpers.MintToken(t, uuid.New())
	w := perform(t, s.router, http.MethodGet, "/api/v1/plans/"+plan.ID.String()+"/status", intruder, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotContains(t, w.Body.String(), "queuePosition")
}

func TestSubmitAndPollCompletedPlan(t *testing.T) {
	cfg := config.Default().Generation
	db := testhelpers.NewSQLiteDB(t)
	orch := generation.NewOrchestrator(repository.NewPlanRepository(db), llm.NewFixtureProvider(), audit.NewGormSink(db), cfg, nil)
	runner := jobs.NewInlineRunner(cfg.MaxAttempts, jobs.WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }))
	runner.Register(generation.EventName, orch.Handler())

	sink := audit.NewGormSink(db)
	estimator := status.NewEstimator(repository.NewPlanRepository(db), sink, config.Default().Queue, nil)
	router := newRouter(service.NewPlanService(db, runner, estimator, pdf.NewRenderer(), nil, sink))
	tenant := testhelpers.CreateTenant(t, db)
	token := testhelpers.MintToken(t, tenant.ID)

	w := perform(t, router, http.MethodPost, "/api/v1/plans", token, gin.H{"questionnaire": gin.H{
		"name": "Sarah", "age": 34, "gender": "female", "height_cm": 168, "weight_kg": 72,
		"goal_weight_kg": 65, "activity_level": "moderately_active", "goal": "fat_loss",
		"diet_type": "vegetarian", "weekly_budget": 90, "cooking_skill": "intermediate",
		"prep_time_minutes": 20, "meals_per_day": 3, "plan_duration_days": 7, "meal_variety": "balanced",
	}})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	planID := decode(t, w)["plan"].(map[string]any)["id"].(string)

	w = perform(t, router, http.MethodGet, "/api/v1/plans/"+planID+"/status", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, float64(0), body["queuePosition"])
	assert.Equal(t, float64(0), body["estimatedMinutes"])
	assert.Equal(t, float64(1), body["attempts"])
	assert.Contains(t, body["plan_text"], "# Meal Plan")

	w = perform(t, router, http.MethodPost, "/api/v1/plans/"+planID+"/retry", token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = perform(t, router, http.MethodGet, "/api/v1/plans/"+planID+"/pdf", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")))
}
