package auth

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, secret []byte, tenantSlug string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		TenantSlug: tenantSlug,
		Role:       "ADMIN",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestMiddlewareRequire(t *testing.T) {
	secret := []byte("test-secret")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mw := NewMiddleware(secret, "trend-store-demo", logger)

	next := func(w http.ResponseWriter, r *http.Request) {
		claims, ok := FromContext(r.Context())
		if !ok {
			t.Error("expected claims in context")
		} else if claims.TenantSlug != "trend-store-demo" {
			t.Errorf("unexpected tenant slug %q", claims.TenantSlug)
		}
		w.WriteHeader(http.StatusOK)
	}

	t.Run("accepts a valid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/products", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, secret, "trend-store-demo"))
		rec := httptest.NewRecorder()

		mw.Require(next)(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("rejects a missing header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/products", nil)
		rec := httptest.NewRecorder()

		mw.Require(next)(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("rejects a token signed with another secret", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/products", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, []byte("wrong"), "trend-store-demo"))
		rec := httptest.NewRecorder()

		mw.Require(next)(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("rejects a tenant mismatch", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/products?tenant=other-store", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, secret, "trend-store-demo"))
		rec := httptest.NewRecorder()

		mw.Require(next)(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("rejects another tenant's token when the param is omitted", func(t *testing.T) {
		// No ?tenant resolves to the default storefront; a token issued
		// for a different tenant must not reach its admin surface.
		req := httptest.NewRequest(http.MethodDelete, "/products/123", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, secret, "other-store"))
		rec := httptest.NewRecorder()

		mw.Require(next)(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("accepts the default tenant's token when the param is omitted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/products", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, secret, "trend-store-demo"))
		rec := httptest.NewRecorder()

		mw.Require(next)(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("rejects a malformed scheme", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/products", nil)
		req.Header.Set("Authorization", "Basic abc123")
		rec := httptest.NewRecorder()

		mw.Require(next)(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})
}
