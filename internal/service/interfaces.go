package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/pageza/platecoach/backend/internal/models"
	"github.com/pageza/platecoach/backend/internal/status"
)

// IPlanService defines the plan operations exposed over HTTP
type IPlanService interface {
	Submit(ctx context.Context, tenantID uuid.UUID, req SubmitRequest) (*models.Plan, error)
	Retry(ctx context.Context, tenantID, planID uuid.UUID) (*models.Plan, error)
	Status(ctx context.Context, tenantID, planID uuid.UUID) (*status.Snapshot, error)
	ExportPDF(ctx context.Context, tenantID, planID uuid.UUID) (*Export, error)
	List(ctx context.Context, tenantID uuid.UUID, statuses []string) ([]models.Plan, error)
}

// Archiver keeps a copy of exported PDFs and returns a download link.
type Archiver interface {
	Put(ctx context.Context, tenantID, planID uuid.UUID, pdf []byte) (string, error)
}
