package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload carries the identity fields minted into a token.
type AccessTokenPayload struct {
	UserID   uuid.UUID
	Username string
	JTI      string
}

// AccessTokenClaims is the JWT claim set for API access tokens.
// Permission codes are resolved per request from the role tables, not
// minted into the token, so grants take effect without re-login.
type AccessTokenClaims struct {
	UserID   uuid.UUID `json:"uid"`
	Username string    `json:"username"`
	jwt.RegisteredClaims
}
