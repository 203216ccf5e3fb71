package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/pageza/platecoach/backend/internal/apperrors"
	"github.com/pageza/platecoach/backend/internal/models"
	"github.com/pageza/platecoach/backend/internal/questionnaire"
	"github.com/pageza/platecoach/backend/internal/testhelpers"
)

func backdate(t *testing.T, db *gorm.DB, planID uuid.UUID, at time.Time) {
	t.Helper()
	require.NoError(t, db.Model(&models.Plan{}).Where("id = ?", planID).UpdateColumn("updated_at", at.UTC()).Error)
}

func TestPlanRepositoryTenantScoping(t *testing.T) {
	db := testhelpers.NewSQLiteDB(t)
	repo := NewPlanRepository(db)
	ctx := context.Background()

	owner := testhelpers.CreateTenant(t, db)
	other := testhelpers.CreateTenant(t, db)
	plan := testhelpers.CreatePlan(t, db, owner.ID, models.PlanStatusPending, time.Now())

	got, err := repo.GetForTenant(ctx, owner.ID, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, plan.ID, got.ID)
	require.NotNil(t, got.Client)
	assert.Equal(t, "Sarah", got.Client.Name)

	_, err = repo.GetForTenant(ctx, other.ID, plan.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = repo.MarkGenerating(ctx, other.ID, plan.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = repo.Fail(ctx, other.ID, plan.ID, "x")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestPlanRepositoryLifecycle(t *testing.T) {
	db := testhelpers.NewSQLiteDB(t)
	repo := NewPlanRepository(db)
	ctx := context.Background()
	tenant := testhelpers.CreateTenant(t, db)
	plan := testhelpers.CreatePlan(t, db, tenant.ID, models.PlanStatusPending, time.Now())

	for range 2 {
		started, err := repo.MarkGenerating(ctx, tenant.ID, plan.ID)
		require.NoError(t, err)
		assert.True(t, started)
	}

	got, err := repo.GetForTenant(ctx, tenant.ID, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PlanStatusGenerating, got.Status)
	assert.Equal(t, 2, got.Attempts)

	month := models.UsageMonth(time.Now())
	completion := Completion{
		TenantID: tenant.ID, PlanID: plan.ID, Text: "# Meal Plan\nOats",
		CostUSD: 0.05, InputTokens: 1000, OutputTokens: 3000, Month: month,
	}
	changed, err := repo.Complete(ctx, completion)
	require.NoError(t, err)
	assert.True(t, changed)

	// re-running the terminal step must not double count usage
	changed, err = repo.Complete(ctx, completion)
	require.NoError(t, err)
	assert.False(t, changed)

	got, err = repo.GetForTenant(ctx, tenant.ID, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PlanStatusCompleted, got.Status)
	require.NotNil(t, got.PlanText)
	assert.Equal(t, "# Meal Plan\nOats", *got.PlanText)
	assert.Equal(t, 3000, got.OutputTokens)
	assert.InDelta(t, 0.05, got.CostUSD, 1e-9)

	usage, err := NewTenantRepository(db).MonthlyUsage(ctx, tenant.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, usage)

	second := testhelpers.CreatePlan(t, db, tenant.ID, models.PlanStatusGenerating, time.Now())
	completion.PlanID = second.ID
	_, err = repo.Complete(ctx, completion)
	require.NoError(t, err)
	usage, err = NewTenantRepository(db).MonthlyUsage(ctx, tenant.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, usage)
}

func TestPlanRepositoryRetryOnlyFromFailed(t *testing.T) {
	db := testhelpers.NewSQLiteDB(t)
	repo := NewPlanRepository(db)
	ctx := context.Background()
	tenant := testhelpers.CreateTenant(t, db)
	completed := testhelpers.CreatePlan(t, db, tenant.ID, models.PlanStatusCompleted, time.Now())
	plan := testhelpers.CreatePlan(t, db, tenant.ID, models.PlanStatusGenerating, time.Now())

	ok, err := repo.ResetForRetry(ctx, tenant.ID, completed.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = repo.ResetForRetry(ctx, tenant.ID, plan.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	failed, err := repo.Fail(ctx, tenant.ID, plan.ID, "boom")
	require.NoError(t, err)
	assert.True(t, failed)
	ok, err = repo.ResetForRetry(ctx, tenant.ID, plan.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.GetForTenant(ctx, tenant.ID, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PlanStatusPending, got.Status)
	assert.Nil(t, got.ErrorMessage)
}

func TestPlanRepositorySettledPlansDoNotMove(t *testing.T) {
	db := testhelpers.NewSQLiteDB(t)
	repo := NewPlanRepository(db)
	ctx := context.Background()
	tenant := testhelpers.CreateTenant(t, db)
	month := models.UsageMonth(time.Now())

	plan := testhelpers.CreatePlan(t, db, tenant.ID, models.PlanStatusPending, time.Now())
	completion := Completion{TenantID: tenant.ID, PlanID: plan.ID, Text: "# Meal Plan\nOats", Month: month}

	// completion requires a generating plan
	changed, err := repo.Complete(ctx, completion)
	require.NoError(t, err)
	assert.False(t, changed)

	started, err := repo.MarkGenerating(ctx, tenant.ID, plan.ID)
	require.NoError(t, err)
	require.True(t, started)
	changed, err = repo.Complete(ctx, completion)
	require.NoError(t, err)
	require.True(t, changed)

	started, err = repo.MarkGenerating(ctx, tenant.ID, plan.ID)
	require.NoError(t, err)
	assert.False(t, started)
	failed, err := repo.Fail(ctx, tenant.ID, plan.ID, "boom")
	require.NoError(t, err)
	assert.False(t, failed)
	changed, err = repo.Complete(ctx, completion)
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := repo.GetForTenant(ctx, tenant.ID, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PlanStatusCompleted, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Nil(t, got.ErrorMessage)
	require.NotNil(t, got.PlanText)

	usage, err := NewTenantRepository(db).MonthlyUsage(ctx, tenant.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, usage)

	// a failed plan is settled too until it is reset for retry
	other := testhelpers.CreatePlan(t, db, tenant.ID, models.PlanStatusFailed, time.Now())
	started, err = repo.MarkGenerating(ctx, tenant.ID, other.ID)
	require.NoError(t, err)
	assert.False(t, started)
}

func TestPlanRepositoryFailIfStale(t *testing.T) {
	db := testhelpers.NewSQLiteDB(t)
	repo := NewPlanRepository(db)
	ctx := context.Background()
	tenant := testhelpers.CreateTenant(t, db)
	now := time.Now().UTC()

	stale := testhelpers.CreatePlan(t, db, tenant.ID, models.PlanStatusGenerating, now.Add(-time.Hour))
	backdate(t, db, stale.ID, now.Add(-11*time.Minute))
	fresh := testhelpers.CreatePlan(t, db, tenant.ID, models.PlanStatusGenerating, now.Add(-time.Hour))
	backdate(t, db, fresh.ID, now.Add(-time.Minute))

	cutoff := now.Add(-10 * time.Minute)

	changed, err := repo.FailIfStale(ctx, tenant.ID, stale.ID, cutoff, "timed out")
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = repo.FailIfStale(ctx, tenant.ID, stale.ID, cutoff, "timed out")
	require.NoError(t, err)
	assert.False(t, changed, "second check must be a no-op")

	changed, err = repo.FailIfStale(ctx, tenant.ID, fresh.ID, cutoff, "timed out")
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := repo.GetForTenant(ctx, tenant.ID, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PlanStatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "timed out", *got.ErrorMessage)
}

func TestPlanRepositoryQueueCounts(t *testing.T) {
	db := testhelpers.NewSQLiteDB(t)
	repo := NewPlanRepository(db)
	ctx := context.Background()
	a := testhelpers.CreateTenant(t, db)
	b := testhelpers.CreateTenant(t, db)
	base := time.Now().UTC().Add(-time.Hour)

	p1 := testhelpers.CreatePlan(t, db, a.ID, models.PlanStatusGenerating, base)
	testhelpers.CreatePlan(t, db, b.ID, models.PlanStatusCompleted, base.Add(time.Minute))
	p3 := testhelpers.CreatePlan(t, db, b.ID, models.PlanStatusPending, base.Add(2*time.Minute))
	testhelpers.CreatePlan(t, db, a.ID, models.PlanStatusFailed, base.Add(3*time.Minute))
	p5 := testhelpers.CreatePlan(t, db, a.ID, models.PlanStatusPending, base.Add(4*time.Minute))

	total, err := repo.CountInFlight(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	for want, p := range []*models.Plan{p1, p3, p5} {
		ahead, err := repo.CountInFlightBefore(ctx, p.CreatedAt)
		require.NoError(t, err)
		assert.Equal(t, int64(want), ahead)
	}

	listed, err := repo.List(ctx, a.ID, models.InFlightStatuses...)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, p1.ID, listed[0].ID)
	assert.Equal(t, p5.ID, listed[1].ID)

	all, err := repo.List(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestClientRepositorySaveQuestionnaire(t *testing.T) {
	db := testhelpers.NewSQLiteDB(t)
	repo := NewClientRepository(db)
	ctx := context.Background()
	tenant := testhelpers.CreateTenant(t, db)
	other := testhelpers.CreateTenant(t, db)

	q := &questionnaire.ClientQuestionnaire{Name: "Sarah", Age: 30, Goal: "fat_loss"}
	client, err := repo.SaveQuestionnaire(ctx, tenant.ID, nil, q)
	require.NoError(t, err)
	assert.Equal(t, "Sarah", client.Name)

	q.Age = 31
	q.Name = "Sarah J"
	updated, err := repo.SaveQuestionnaire(ctx, tenant.ID, &client.ID, q)
	require.NoError(t, err)
	assert.Equal(t, client.ID, updated.ID)

	stored, err := repo.Questionnaire(ctx, tenant.ID, client.ID)
	require.NoError(t, err)
	assert.Equal(t, 31, stored.Age)
	assert.Equal(t, "Sarah J", stored.Name)

	_, err = repo.SaveQuestionnaire(ctx, other.ID, &client.ID, q)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	_, err = repo.Questionnaire(ctx, other.ID, client.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestTenantRepositoryGet(t *testing.T) {
	db := testhelpers.NewSQLiteDB(t)
	repo := NewTenantRepository(db)
	tenant := testhelpers.CreateTenant(t, db)

	got, err := repo.Get(context.Background(), tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, "Kim Fitness", got.BusinessName)

	_, err = repo.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	usage, err := repo.MonthlyUsage(context.Background(), tenant.ID, time.Now())
	require.NoError(t, err)
	assert.Zero(t, usage)
}
