package models

import (
	"time"

	"github.com/google/uuid"
)

// Subscription tiers
const (
	TierStarter      = "starter"
	TierProfessional = "professional"
	TierStudio       = "studio"
)

// Subscription statuses, synced from the billing provider
const (
	SubscriptionActive   = "active"
	SubscriptionTrialing = "trialing"
	SubscriptionPastDue  = "past_due"
	SubscriptionCanceled = "canceled"
	SubscriptionNone     = "none"
)

// Tenant is a trainer account. All other records are scoped to one.
type Tenant struct {
	ID                 uuid.UUID `gorm:"type:varchar(36);primarykey" json:"id"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
	Name               string    `gorm:"not null" json:"name"`
	BusinessName       string    `json:"business_name"`
	SubscriptionTier   string    `gorm:"size:20;not null;default:'starter'" json:"subscription_tier"`
	SubscriptionStatus string    `gorm:"size:20;not null;default:'none'" json:"subscription_status"`
	PrimaryColour      string    `gorm:"size:7" json:"primary_colour"`
	SecondaryColour    string    `gorm:"size:7" json:"secondary_colour"`
	AccentColour       string    `gorm:"size:7" json:"accent_colour"`
}

// HasActiveSubscription reports whether the tenant may generate plans.
func (t *Tenant) HasActiveSubscription() bool {
	return t.SubscriptionStatus == SubscriptionActive || t.SubscriptionStatus == SubscriptionTrialing
}

// MonthlyPlanLimit returns the tier's monthly plan allowance; 0 means unlimited.
func (t *Tenant) MonthlyPlanLimit() int {
	switch t.SubscriptionTier {
	case TierStudio:
		return 0
	case TierProfessional:
		return 50
	default:
		return 10
	}
}

// TenantUsage counts completed plans per tenant per calendar month ("2006-01").
type TenantUsage struct {
	TenantID       uuid.UUID `gorm:"type:varchar(36);primarykey" json:"tenant_id"`
	Month          string    `gorm:"size:7;primarykey" json:"month"`
	PlansGenerated int       `gorm:"not null;default:0" json:"plans_generated"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// UsageMonth formats t as a TenantUsage month key.
func UsageMonth(t time.Time) string {
	return t.UTC().Format("2006-01")
}
