package testhelpers

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pageza/platecoach/backend/internal/models"
	"github.com/pageza/platecoach/backend/internal/types"
)

// TestJWTSecret signs tokens minted by MintToken.
const TestJWTSecret = "test-jwt-secret"

// CreateTenant inserts an active professional-tier tenant. mutate may adjust it first.
func CreateTenant(t *testing.T, db *gorm.DB, mutate ...func(*models.Tenant)) *models.Tenant {
	t.Helper()
	tenant := &models.Tenant{
		ID:                 uuid.New(),
		Name:               "Coach Kim",
		BusinessName:       "Kim Fitness",
		SubscriptionTier:   models.TierProfessional,
		SubscriptionStatus: models.SubscriptionActive,
		PrimaryColour:      "#336699",
	}
	for _, m := range mutate {
		m(tenant)
	}
	if err := db.Create(tenant).Error; err != nil {
		t.Fatalf("failed to create tenant: %v", err)
	}
	return tenant
}

// CreatePlan inserts a client and a plan in the given status created at createdAt.
func CreatePlan(t *testing.T, db *gorm.DB, tenantID uuid.UUID, status models.PlanStatus, createdAt time.Time) *models.Plan {
	t.Helper()
	client := &models.Client{ID: uuid.New(), TenantID: tenantID, Name: "Sarah"}
	if err := db.Create(client).Error; err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	plan := &models.Plan{
		ID:        uuid.New(),
		TenantID:  tenantID,
		ClientID:  client.ID,
		Status:    status,
		CreatedAt: createdAt.UTC(),
		UpdatedAt: createdAt.UTC(),
	}
	if err := db.Create(plan).Error; err != nil {
		t.Fatalf("failed to create plan: %v", err)
	}
	return plan
}

// MintToken signs a tenant token with TestJWTSecret.
func MintToken(t *testing.T, tenantID uuid.UUID) string {
	t.Helper()
	claims := &types.TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   tenantID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		TenantID: tenantID,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(TestJWTSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}
