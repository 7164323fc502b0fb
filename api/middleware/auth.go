package middleware

import (
	"net/http"
	"strings"

	"github.com/bucketshare/bucketshare-backend/api/responses"
	pkgAuth "github.com/bucketshare/bucketshare-backend/pkg/auth"
	"github.com/bucketshare/bucketshare-backend/pkg/config"
	pkgerrors "github.com/bucketshare/bucketshare-backend/pkg/errors"
	"github.com/bucketshare/bucketshare-backend/pkg/logger"
)

// Auth verifies the identity provider's bearer token and seeds the request
// context with the caller's uid and email.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if len(raw) < 7 || !strings.EqualFold(raw[:7], "bearer ") {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}
			token := strings.TrimSpace(raw[7:])
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			identity, err := pkgAuth.ParseIdentityToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := WithIdentity(r.Context(), identity.UID, identity.Email)
			if logg != nil {
				ctx = logg.WithUserID(ctx, identity.UID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
