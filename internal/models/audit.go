package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// AuditEvent is an append-only record of a tenant-visible action.
type AuditEvent struct {
	ID           uuid.UUID      `gorm:"type:varchar(36);primarykey" json:"id"`
	TenantID     uuid.UUID      `gorm:"type:varchar(36);not null;index" json:"tenant_id"`
	Action       string         `gorm:"size:64;not null;index" json:"action"`
	ResourceType string         `gorm:"size:32" json:"resource_type,omitempty"`
	ResourceID   string         `gorm:"size:36" json:"resource_id,omitempty"`
	Metadata     datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}
