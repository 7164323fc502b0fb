package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bucketshare/bucketshare-backend/pkg/config"
	"github.com/golang-jwt/jwt/v5"
)

var jwtSigningMethod = jwt.SigningMethodHS256

var errSubjectMissing = errors.New("token subject missing")

// ParseIdentityToken verifies signature, issuer, audience and expiry, and
// returns the caller identity.
func ParseIdentityToken(cfg config.JWTConfig, tokenString string) (*Identity, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwtSigningMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
	}
	if aud := strings.TrimSpace(cfg.Audience); aud != "" {
		opts = append(opts, jwt.WithAudience(aud))
	}

	claims := &IdentityClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			return []byte(cfg.Secret), nil
		},
		opts...,
	)
	if err != nil {
		return nil, err
	}

	uid := strings.TrimSpace(claims.Subject)
	if uid == "" {
		return nil, errSubjectMissing
	}
	return &Identity{UID: uid, Email: strings.TrimSpace(claims.Email)}, nil
}

// MintIdentityToken signs a token the way the identity provider does. Used by
// local tooling and tests.
func MintIdentityToken(cfg config.JWTConfig, now time.Time, ttl time.Duration, identity Identity) (string, error) {
	if cfg.Secret == "" {
		return "", fmt.Errorf("jwt secret is required")
	}
	if identity.UID == "" {
		return "", errSubjectMissing
	}
	if ttl <= 0 {
		return "", fmt.Errorf("token ttl must be positive")
	}

	claims := IdentityClaims{
		Email: identity.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UID,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{cfg.Audience}
	}

	signed, err := jwt.NewWithClaims(jwtSigningMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}
