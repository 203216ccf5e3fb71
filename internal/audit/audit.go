// Package audit records tenant-visible actions. Recording never fails the caller.
package audit

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/pageza/platecoach/backend/internal/logger"
	"github.com/pageza/platecoach/backend/internal/models"
)

// Actions
const (
	ActionPlanRequested      = "plan.requested"
	ActionPlanRetryRequested = "plan.retry_requested"
	ActionPlanGenerated      = "plan.generated"
	ActionPlanFailed         = "plan.failed"
	ActionPlanTimedOut       = "plan.timed_out"
	ActionPlanExported       = "plan.exported"
)

// ResourcePlan is the resource type for plan events.
const ResourcePlan = "plan"

// Event is a fire-and-forget audit record.
type Event struct {
	TenantID     uuid.UUID
	Action       string
	ResourceType string
	ResourceID   string
	Metadata     map[string]any
}

// Sink accepts audit events. Implementations must swallow their own errors.
type Sink interface {
	Record(ctx context.Context, ev Event)
}

// GormSink writes events to the audit_events table.
type GormSink struct {
	db *gorm.DB
}

// NewGormSink creates a sink backed by db
func NewGormSink(db *gorm.DB) *GormSink {
	return &GormSink{db: db}
}

func (s *GormSink) Record(ctx context.Context, ev Event) {
	row := models.AuditEvent{
		ID:           uuid.New(),
		TenantID:     ev.TenantID,
		Action:       ev.Action,
		ResourceType: ev.ResourceType,
		ResourceID:   ev.ResourceID,
	}
	if len(ev.Metadata) > 0 {
		if data, err := json.Marshal(ev.Metadata); err == nil {
			row.Metadata = datatypes.JSON(data)
		}
	}

	// outlives request cancellation
	if err := s.db.WithContext(context.WithoutCancel(ctx)).Create(&row).Error; err != nil {
		logger.FromContext(ctx).Warn("failed to write audit event",
			zap.String("action", ev.Action),
			zap.String("tenant_id", ev.TenantID.String()),
			zap.Error(err),
		)
	}
}
