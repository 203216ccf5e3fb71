package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pageza/platecoach/backend/internal/apperrors"
	"github.com/pageza/platecoach/backend/internal/models"
)

// PlanRepository stores plans. Every read and write is scoped to a tenant
// except the queue counts, which span all tenants.
type PlanRepository struct {
	db *gorm.DB
}

// NewPlanRepository creates a plan repository
func NewPlanRepository(db *gorm.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

// Completion is the outcome of a successful generation run.
type Completion struct {
	TenantID     uuid.UUID
	PlanID       uuid.UUID
	Text         string
	CostUSD      float64
	InputTokens  int
	OutputTokens int
	Month        string
}

func (r *PlanRepository) Create(ctx context.Context, plan *models.Plan) error {
	if plan.ID == uuid.Nil {
		plan.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(plan).Error; err != nil {
		return fmt.Errorf("failed to create plan: %w", err)
	}
	return nil
}

// GetForTenant loads a plan with its client. Plans owned by another tenant are reported as not found.
func (r *PlanRepository) GetForTenant(ctx context.Context, tenantID, planID uuid.UUID) (*models.Plan, error) {
	var plan models.Plan
	err := r.db.WithContext(ctx).
		Preload("Client").
		Where("id = ? AND tenant_id = ?", planID, tenantID).
		First(&plan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("plan %s: %w", planID, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load plan: %w", err)
	}
	return &plan, nil
}

// List returns a tenant's plans in the given statuses, oldest first. No statuses means all.
func (r *PlanRepository) List(ctx context.Context, tenantID uuid.UUID, statuses ...models.PlanStatus) ([]models.Plan, error) {
	q := r.db.WithContext(ctx).Preload("Client").Where("tenant_id = ?", tenantID)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}

	var plans []models.Plan
	if err := q.Order("created_at ASC").Find(&plans).Error; err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	return plans, nil
}

// MarkGenerating moves a pending or generating plan to generating and counts
// the attempt. It reports false when the plan has already settled.
func (r *PlanRepository) MarkGenerating(ctx context.Context, tenantID, planID uuid.UUID) (bool, error) {
	res := r.scoped(ctx, tenantID, planID).
		Where("status IN ?", models.InFlightStatuses).
		Updates(map[string]any{
			"status":        models.PlanStatusGenerating,
			"attempts":      gorm.Expr("attempts + 1"),
			"error_message": nil,
		})
	return r.transitioned(ctx, res, tenantID, planID, "mark plan generating")
}

// Complete stores the generated plan and bumps the tenant's monthly usage in
// one transaction. Only a generating plan is completed; otherwise it reports
// false and leaves usage untouched.
func (r *PlanRepository) Complete(ctx context.Context, c Completion) (bool, error) {
	var transitioned bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Plan{}).
			Where("id = ? AND tenant_id = ? AND status = ?", c.PlanID, c.TenantID, models.PlanStatusGenerating).
			Updates(map[string]any{
				"status":        models.PlanStatusCompleted,
				"plan_text":     c.Text,
				"cost_usd":      c.CostUSD,
				"input_tokens":  c.InputTokens,
				"output_tokens": c.OutputTokens,
				"error_message": nil,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to complete plan: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		transitioned = true

		usage := models.TenantUsage{TenantID: c.TenantID, Month: c.Month, PlansGenerated: 1}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tenant_id"}, {Name: "month"}},
			DoUpdates: clause.Assignments(map[string]any{
				"plans_generated": gorm.Expr("tenant_usages.plans_generated + 1"),
				"updated_at":      gorm.Expr("CURRENT_TIMESTAMP"),
			}),
		}).Create(&usage).Error
		if err != nil {
			return fmt.Errorf("failed to increment usage: %w", err)
		}
		return nil
	})
	return transitioned, err
}

// Fail marks a pending or generating plan failed with a user-facing message.
// It reports false when the plan has already settled.
func (r *PlanRepository) Fail(ctx context.Context, tenantID, planID uuid.UUID, message string) (bool, error) {
	res := r.scoped(ctx, tenantID, planID).
		Where("status IN ?", models.InFlightStatuses).
		Updates(map[string]any{
			"status":        models.PlanStatusFailed,
			"error_message": message,
		})
	return r.transitioned(ctx, res, tenantID, planID, "fail plan")
}

// FailIfStale fails a plan only while it is still generating and was last
// updated before cutoff. It reports whether the plan changed.
func (r *PlanRepository) FailIfStale(ctx context.Context, tenantID, planID uuid.UUID, cutoff time.Time, message string) (bool, error) {
	res := r.scoped(ctx, tenantID, planID).
		Where("status = ? AND updated_at < ?", models.PlanStatusGenerating, cutoff.UTC()).
		Updates(map[string]any{
			"status":        models.PlanStatusFailed,
			"error_message": message,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to expire stale plan: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ResetForRetry moves a failed plan back to pending. It reports false when the plan was not failed.
func (r *PlanRepository) ResetForRetry(ctx context.Context, tenantID, planID uuid.UUID) (bool, error) {
	res := r.scoped(ctx, tenantID, planID).
		Where("status = ?", models.PlanStatusFailed).
		Updates(map[string]any{
			"status":        models.PlanStatusPending,
			"error_message": nil,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to reset plan: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// CountInFlight counts pending and generating plans across all tenants.
func (r *PlanRepository) CountInFlight(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Plan{}).
		Where("status IN ?", models.InFlightStatuses).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count in-flight plans: %w", err)
	}
	return n, nil
}

// CountInFlightBefore counts in-flight plans across all tenants created strictly before t.
func (r *PlanRepository) CountInFlightBefore(ctx context.Context, t time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Plan{}).
		Where("status IN ? AND created_at < ?", models.InFlightStatuses, t.UTC()).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count queued plans: %w", err)
	}
	return n, nil
}

func (r *PlanRepository) scoped(ctx context.Context, tenantID, planID uuid.UUID) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Plan{}).Where("id = ? AND tenant_id = ?", planID, tenantID)
}

// transitioned interprets a guarded update. No affected rows means the plan
// is either missing for this tenant or not in a state the update applies to.
func (r *PlanRepository) transitioned(ctx context.Context, res *gorm.DB, tenantID, planID uuid.UUID, op string) (bool, error) {
	if res.Error != nil {
		return false, fmt.Errorf("failed to %s: %w", op, res.Error)
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	var n int64
	if err := r.scoped(ctx, tenantID, planID).Count(&n).Error; err != nil {
		return false, fmt.Errorf("failed to %s: %w", op, err)
	}
	if n == 0 {
		return false, fmt.Errorf("plan %s: %w", planID, apperrors.ErrNotFound)
	}
	return false, nil
}
