// Package auth gates mutating admin endpoints behind a Bearer JWT issued by
// the identity provider. The token carries the tenant slug the principal is
// an admin of; handlers compare it against the tenant they resolved.
package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/trendstore/commerce-core/internal/domain"
)

type Claims struct {
	TenantSlug string `json:"tenant_slug"`
	Role       string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type contextKey struct{}

// FromContext returns the claims stored by Middleware, if any.
func FromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(contextKey{}).(*Claims)
	return claims, ok
}

type Middleware struct {
	secret      []byte
	defaultSlug string
	logger      *slog.Logger
}

func NewMiddleware(secret []byte, defaultSlug string, logger *slog.Logger) *Middleware {
	return &Middleware{secret: secret, defaultSlug: defaultSlug, logger: logger}
}

// Require validates the Bearer token and rejects requests whose tenant claim
// does not match the tenant slug the request targets. An absent request slug
// resolves to the default storefront, which the claim must name explicitly.
func (m *Middleware) Require(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, err := m.parse(r)
		if err != nil {
			m.logger.Warn("rejected admin request", "error", err, "path", r.URL.Path)
			writeUnauthorized(w, err.Error())
			return
		}

		slug := r.URL.Query().Get("tenant")
		if slug == "" {
			slug = m.defaultSlug
		}
		if slug != claims.TenantSlug {
			writeUnauthorized(w, "token is not valid for this tenant")
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, claims)))
	}
}

func (m *Middleware) parse(r *http.Request) (*Claims, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, domain.ErrUnauthorized
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return nil, domain.ErrUnauthorized
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, domain.ErrUnauthorized
	}

	if claims.TenantSlug == "" {
		return nil, domain.ErrUnauthorized
	}

	return claims, nil
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
