package auth

import "github.com/golang-jwt/jwt/v5"

// IdentityClaims is the token minted by the identity provider. The subject is
// the user's uid.
type IdentityClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the authenticated caller extracted from a verified token.
type Identity struct {
	UID   string
	Email string
}
