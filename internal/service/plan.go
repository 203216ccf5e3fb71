package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pageza/platecoach/backend/internal/apperrors"
	"github.com/pageza/platecoach/backend/internal/audit"
	"github.com/pageza/platecoach/backend/internal/generation"
	"github.com/pageza/platecoach/backend/internal/jobs"
	"github.com/pageza/platecoach/backend/internal/logger"
	"github.com/pageza/platecoach/backend/internal/models"
	"github.com/pageza/platecoach/backend/internal/pdf"
	"github.com/pageza/platecoach/backend/internal/planparser"
	"github.com/pageza/platecoach/backend/internal/questionnaire"
	"github.com/pageza/platecoach/backend/internal/repository"
	"github.com/pageza/platecoach/backend/internal/status"
)

// EnqueueFailedMessage is stored on a plan whose generation job could not be queued.
const EnqueueFailedMessage = "We couldn't queue this plan for generation. Please retry."

// SubmitRequest is a new plan request. A nil ClientID creates a new client.
type SubmitRequest struct {
	ClientID      *uuid.UUID     `json:"client_id"`
	Questionnaire map[string]any `json:"questionnaire"`
}

// Export is a rendered plan PDF.
type Export struct {
	Filename   string
	PDF        []byte
	ArchiveURL string
}

// PlanService coordinates plan submission, retry, status and export for a tenant.
type PlanService struct {
	plans     *repository.PlanRepository
	clients   *repository.ClientRepository
	tenants   *repository.TenantRepository
	runner    jobs.Runner
	estimator *status.Estimator
	renderer  *pdf.Renderer
	archive   Archiver
	audit     audit.Sink
}

// NewPlanService creates a plan service. archive may be nil.
func NewPlanService(db *gorm.DB, runner jobs.Runner, estimator *status.Estimator, renderer *pdf.Renderer, archive Archiver, sink audit.Sink) *PlanService {
	return &PlanService{
		plans:     repository.NewPlanRepository(db),
		clients:   repository.NewClientRepository(db),
		tenants:   repository.NewTenantRepository(db),
		runner:    runner,
		estimator: estimator,
		renderer:  renderer,
		archive:   archive,
		audit:     sink,
	}
}

// Submit validates the questionnaire, checks the tenant's entitlement and
// queues a new plan for generation.
func (s *PlanService) Submit(ctx context.Context, tenantID uuid.UUID, req SubmitRequest) (*models.Plan, error) {
	q, err := questionnaire.Validate(req.Questionnaire)
	if err != nil {
		return nil, err
	}

	tenant, err := s.tenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if err := s.checkEntitlement(ctx, tenant); err != nil {
		return nil, err
	}

	client, err := s.clients.SaveQuestionnaire(ctx, tenantID, req.ClientID, q)
	if err != nil {
		return nil, err
	}

	plan := &models.Plan{
		TenantID: tenantID,
		ClientID: client.ID,
		Status:   models.PlanStatusPending,
	}
	if err := s.plans.Create(ctx, plan); err != nil {
		return nil, err
	}

	if err := s.enqueue(ctx, tenant, plan.ID, client.ID, q); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Event{
		TenantID:     tenantID,
		Action:       audit.ActionPlanRequested,
		ResourceType: audit.ResourcePlan,
		ResourceID:   plan.ID.String(),
		Metadata:     map[string]any{"client_id": client.ID.String()},
	})
	return s.plans.GetForTenant(ctx, tenantID, plan.ID)
}

// Retry re-queues a failed plan with the questionnaire captured at submission.
func (s *PlanService) Retry(ctx context.Context, tenantID, planID uuid.UUID) (*models.Plan, error) {
	plan, err := s.plans.GetForTenant(ctx, tenantID, planID)
	if err != nil {
		return nil, err
	}
	tenant, err := s.tenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	q, err := s.clients.Questionnaire(ctx, tenantID, plan.ClientID)
	if err != nil {
		return nil, err
	}

	reset, err := s.plans.ResetForRetry(ctx, tenantID, planID)
	if err != nil {
		return nil, err
	}
	if !reset {
		return nil, apperrors.InvalidState("retry", string(plan.Status), string(models.PlanStatusFailed))
	}

	if err := s.enqueue(ctx, tenant, plan.ID, plan.ClientID, q); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Event{
		TenantID:     tenantID,
		Action:       audit.ActionPlanRetryRequested,
		ResourceType: audit.ResourcePlan,
		ResourceID:   plan.ID.String(),
		Metadata:     map[string]any{"previous_attempts": plan.Attempts},
	})
	return s.plans.GetForTenant(ctx, tenantID, plan.ID)
}

// Status returns the plan's status and queue snapshot.
func (s *PlanService) Status(ctx context.Context, tenantID, planID uuid.UUID) (*status.Snapshot, error) {
	return s.estimator.Check(ctx, tenantID, planID)
}

// ExportPDF renders a completed plan with the tenant's branding. When an
// archive is configured the document is also uploaded; upload failures are
// logged and do not fail the export.
func (s *PlanService) ExportPDF(ctx context.Context, tenantID, planID uuid.UUID) (*Export, error) {
	plan, err := s.plans.GetForTenant(ctx, tenantID, planID)
	if err != nil {
		return nil, err
	}
	if plan.Status != models.PlanStatusCompleted || plan.PlanText == nil {
		return nil, apperrors.InvalidState("export", string(plan.Status), string(models.PlanStatusCompleted))
	}
	tenant, err := s.tenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	clientName := ""
	if plan.Client != nil {
		clientName = plan.Client.Name
	}
	data, err := s.renderer.Render(pdf.Document{
		Plan:         planparser.Parse(*plan.PlanText),
		ClientName:   clientName,
		AuthorName:   tenant.Name,
		BusinessName: tenant.BusinessName,
		Brand: pdf.Branding{
			Primary:   tenant.PrimaryColour,
			Secondary: tenant.SecondaryColour,
			Accent:    tenant.AccentColour,
		},
		CreatedAt: plan.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render plan %s: %w", planID, err)
	}

	export := &Export{Filename: exportFilename(clientName, plan), PDF: data}
	if s.archive != nil {
		url, err := s.archive.Put(ctx, tenantID, planID, data)
		if err != nil {
			logger.FromContext(ctx).Warn("failed to archive plan pdf",
				zap.String("plan_id", planID.String()),
				zap.Error(err),
			)
		} else {
			export.ArchiveURL = url
		}
	}

	s.audit.Record(ctx, audit.Event{
		TenantID:     tenantID,
		Action:       audit.ActionPlanExported,
		ResourceType: audit.ResourcePlan,
		ResourceID:   planID.String(),
		Metadata:     map[string]any{"bytes": len(data), "archived": export.ArchiveURL != ""},
	})
	return export, nil
}

// List returns the tenant's plans, optionally filtered by status.
func (s *PlanService) List(ctx context.Context, tenantID uuid.UUID, statuses []string) ([]models.Plan, error) {
	filter := make([]models.PlanStatus, 0, len(statuses))
	for _, raw := range statuses {
		st := models.PlanStatus(strings.ToLower(strings.TrimSpace(raw)))
		switch st {
		case models.PlanStatusPending, models.PlanStatusGenerating, models.PlanStatusCompleted, models.PlanStatusFailed:
			filter = append(filter, st)
		default:
			verr := apperrors.NewValidationError()
			verr.Add("status", "must be one of: pending, generating, completed, failed")
			return nil, verr
		}
	}
	return s.plans.List(ctx, tenantID, filter...)
}

func (s *PlanService) tenant(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	tenant, err := s.tenants.Get(ctx, tenantID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("unknown tenant %s: %w", tenantID, apperrors.ErrForbidden)
	}
	return tenant, err
}

func (s *PlanService) checkEntitlement(ctx context.Context, tenant *models.Tenant) error {
	if !tenant.HasActiveSubscription() {
		return fmt.Errorf("subscription is %s: %w", tenant.SubscriptionStatus, apperrors.ErrSubscriptionRequired)
	}
	limit := tenant.MonthlyPlanLimit()
	if limit == 0 {
		return nil
	}
	used, err := s.tenants.MonthlyUsage(ctx, tenant.ID, time.Now())
	if err != nil {
		return err
	}
	if used >= limit {
		return fmt.Errorf("%d of %d plans used this month: %w", used, limit, apperrors.ErrUsageLimitExceeded)
	}
	return nil
}

// enqueue sends the generation event. A plan whose event cannot be sent is
// marked failed so it can be retried instead of waiting forever.
func (s *PlanService) enqueue(ctx context.Context, tenant *models.Tenant, planID, clientID uuid.UUID, q *questionnaire.ClientQuestionnaire) error {
	_, err := s.runner.Send(ctx, generation.EventName, generation.Payload{
		PlanID:        planID,
		ClientID:      clientID,
		TenantID:      tenant.ID,
		Questionnaire: *q,
		BusinessName:  tenant.BusinessName,
	})
	if err == nil {
		return nil
	}

	if _, ferr := s.plans.Fail(ctx, tenant.ID, planID, EnqueueFailedMessage); ferr != nil {
		logger.FromContext(ctx).Error("failed to mark unqueued plan failed",
			zap.String("plan_id", planID.String()),
			zap.Error(ferr),
		)
	}
	return fmt.Errorf("failed to queue plan %s: %w", planID, err)
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func exportFilename(clientName string, plan *models.Plan) string {
	slug := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(clientName), "-"), "-")
	if slug == "" {
		slug = "client"
	}
	return fmt.Sprintf("nutrition-plan-%s-%s.pdf", slug, plan.CreatedAt.Format("2006-01-02"))
}
