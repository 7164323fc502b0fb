package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bucketshare/bucketshare-backend/pkg/auth"
	"github.com/bucketshare/bucketshare-backend/pkg/config"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "https://id.bucketshare.test"}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthRejectsMissingToken(t *testing.T) {
	handler := Auth(testJWT, nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthRejectsInvalidToken(t *testing.T) {
	handler := Auth(testJWT, nil)(okHandler())

	for _, header := range []string{"Bearer invalid", "Basic abc", "Bearer "} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", header)
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("%q: expected 401 got %d", header, resp.Code)
		}
	}
}

func TestAuthAllowsValidToken(t *testing.T) {
	token, err := auth.MintIdentityToken(testJWT, time.Now(), time.Hour, auth.Identity{UID: "uid-ana", Email: "ana@example.com"})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	var uid, email string
	handler := Auth(testJWT, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid = UserIDFromContext(r.Context())
		email = EmailFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", resp.Code, resp.Body.String())
	}
	if uid != "uid-ana" || email != "ana@example.com" {
		t.Fatalf("unexpected identity uid=%q email=%q", uid, email)
	}
}
