package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// PlanStatus is the lifecycle state of a plan
type PlanStatus string

const (
	PlanStatusPending    PlanStatus = "pending"
	PlanStatusGenerating PlanStatus = "generating"
	PlanStatusCompleted  PlanStatus = "completed"
	PlanStatusFailed     PlanStatus = "failed"
)

// InFlightStatuses are the statuses counted as queued.
var InFlightStatuses = []PlanStatus{PlanStatusPending, PlanStatusGenerating}

// IsInFlight reports whether s is pending or generating.
func (s PlanStatus) IsInFlight() bool {
	return s == PlanStatusPending || s == PlanStatusGenerating
}

// Client is one of a tenant's coaching clients with their latest questionnaire.
type Client struct {
	ID            uuid.UUID      `gorm:"type:varchar(36);primarykey" json:"id"`
	TenantID      uuid.UUID      `gorm:"type:varchar(36);not null;index" json:"tenant_id"`
	Name          string         `gorm:"size:100;not null" json:"name"`
	Questionnaire datatypes.JSON `json:"questionnaire"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Plan is one generation request and its outcome.
type Plan struct {
	ID           uuid.UUID  `gorm:"type:varchar(36);primarykey" json:"id"`
	TenantID     uuid.UUID  `gorm:"type:varchar(36);not null;index" json:"tenant_id"`
	ClientID     uuid.UUID  `gorm:"type:varchar(36);not null;index" json:"client_id"`
	Client       *Client    `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	Status       PlanStatus `gorm:"size:20;not null;default:'pending';index:idx_plans_status_created,priority:1" json:"status"`
	PlanText     *string    `gorm:"type:text" json:"plan_text"`
	CostUSD      float64    `gorm:"not null;default:0" json:"cost_usd"`
	InputTokens  int        `gorm:"not null;default:0" json:"input_tokens"`
	OutputTokens int        `gorm:"not null;default:0" json:"output_tokens"`
	ErrorMessage *string    `gorm:"type:text" json:"error_message"`
	Attempts     int        `gorm:"not null;default:0" json:"attempts"`
	CreatedAt    time.Time  `gorm:"index:idx_plans_status_created,priority:2" json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
