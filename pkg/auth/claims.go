package auth

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/tunecrate/tunecrate-backend/pkg/enums"
)

// IdentityTokenPayload captures the data available when minting an identity token.
type IdentityTokenPayload struct {
	SubjectID string
	Email     string
	Role      enums.UserRole
	JTI       string
}

// IdentityClaims represents the typed JWT issued by the identity provider.
// The subject is the provider's stable user id; local user rows are keyed
// off it on first sight.
type IdentityClaims struct {
	Email string         `json:"email"`
	Role  enums.UserRole `json:"role"`
	jwt.RegisteredClaims
}
