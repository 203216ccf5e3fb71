package types

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenClaims represents the claims in a tenant access token. Tokens are
// issued by the external identity provider; this service only verifies them.
type TokenClaims struct {
	jwt.RegisteredClaims
	TenantID uuid.UUID `json:"tenant_id"`
	Email    string    `json:"email,omitempty"`
}
