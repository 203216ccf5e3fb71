// Package status answers plan status polls with a live queue position and ETA.
package status

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pageza/platecoach/backend/config"
	"github.com/pageza/platecoach/backend/internal/audit"
	"github.com/pageza/platecoach/backend/internal/metrics"
	"github.com/pageza/platecoach/backend/internal/models"
)

// TimeoutMessage is stored on plans that stayed in generating past the stale threshold.
const TimeoutMessage = "Generation timed out. Please retry."

// PlanReader is the subset of the plan repository the estimator needs.
type PlanReader interface {
	GetForTenant(ctx context.Context, tenantID, planID uuid.UUID) (*models.Plan, error)
	FailIfStale(ctx context.Context, tenantID, planID uuid.UUID, cutoff time.Time, message string) (bool, error)
	CountInFlight(ctx context.Context) (int64, error)
	CountInFlightBefore(ctx context.Context, t time.Time) (int64, error)
}

// Snapshot is a plan plus its queue state at the time of the check. Queue
// fields are zero unless the plan is pending or generating.
type Snapshot struct {
	Plan             *models.Plan
	QueuePosition    int
	TotalInQueue     int
	EstimatedMinutes int
	ElapsedSeconds   int
}

// Estimator computes status snapshots.
type Estimator struct {
	plans PlanReader
	audit audit.Sink
	cfg   config.QueueConfig
	log   *zap.Logger
	now   func() time.Time
}

// NewEstimator creates an estimator
func NewEstimator(plans PlanReader, sink audit.Sink, cfg config.QueueConfig, log *zap.Logger) *Estimator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Estimator{
		plans: plans,
		audit: sink,
		cfg:   cfg,
		log:   log.Named("status"),
		now:   time.Now,
	}
}

// Check loads the tenant's plan, expires it if it is stuck in generating, and
// computes its queue snapshot. A plan owned by another tenant is not found,
// and nothing else is computed for it.
func (e *Estimator) Check(ctx context.Context, tenantID, planID uuid.UUID) (*Snapshot, error) {
	plan, err := e.plans.GetForTenant(ctx, tenantID, planID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	if plan.Status == models.PlanStatusGenerating && now.Sub(plan.UpdatedAt) > e.cfg.StaleThreshold {
		plan, err = e.expire(ctx, plan, now)
		if err != nil {
			return nil, err
		}
	}

	snap := &Snapshot{
		Plan:           plan,
		ElapsedSeconds: max(0, int(now.Sub(plan.CreatedAt).Seconds())),
	}
	if !plan.Status.IsInFlight() {
		return snap, nil
	}

	ahead, err := e.plans.CountInFlightBefore(ctx, plan.CreatedAt)
	if err != nil {
		return nil, err
	}
	total, err := e.plans.CountInFlight(ctx)
	if err != nil {
		return nil, err
	}
	snap.QueuePosition = int(ahead) + 1
	snap.TotalInQueue = int(total)
	snap.EstimatedMinutes = EstimateMinutes(snap.QueuePosition, e.cfg)
	return snap, nil
}

func (e *Estimator) expire(ctx context.Context, plan *models.Plan, now time.Time) (*models.Plan, error) {
	changed, err := e.plans.FailIfStale(ctx, plan.TenantID, plan.ID, now.Add(-e.cfg.StaleThreshold), TimeoutMessage)
	if err != nil {
		return nil, err
	}
	if changed {
		stuckFor := now.Sub(plan.UpdatedAt)
		e.log.Warn("expired stale plan",
			zap.String("plan_id", plan.ID.String()),
			zap.String("tenant_id", plan.TenantID.String()),
			zap.Duration("stuck_for", stuckFor),
		)
		metrics.PlansTotal.WithLabelValues("stale").Inc()
		e.audit.Record(ctx, audit.Event{
			TenantID:     plan.TenantID,
			Action:       audit.ActionPlanTimedOut,
			ResourceType: audit.ResourcePlan,
			ResourceID:   plan.ID.String(),
			Metadata: map[string]any{
				"stuck_seconds": int(stuckFor.Seconds()),
				"attempts":      plan.Attempts,
			},
		})
	}
	return e.plans.GetForTenant(ctx, plan.TenantID, plan.ID)
}

// EstimateMinutes converts a queue position to a wait estimate in whole
// minutes, capped at cfg.ETACapMinutes when that is positive.
func EstimateMinutes(position int, cfg config.QueueConfig) int {
	if position <= 0 || cfg.Concurrency <= 0 {
		return 0
	}
	seconds := float64(position) * float64(cfg.AvgSecondsPerPlan) / float64(cfg.Concurrency)
	minutes := int(math.Ceil(seconds / 60))
	if cfg.ETACapMinutes > 0 && minutes > cfg.ETACapMinutes {
		return cfg.ETACapMinutes
	}
	return minutes
}
