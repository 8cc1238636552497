package middleware

import (
	"context"
	"net/http"

	"github.com/counsel-labs/lexrag/internal/api"
	"github.com/counsel-labs/lexrag/internal/domain"
)

type contextKey string

const (
	TenantKey contextKey = "tenant"
	APIKeyKey contextKey = "api_key"
)

const apiKeyHeader = "X-API-Key"

// Authenticator resolves an API key token to its tenant and key record.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.Tenant, *domain.APIKey, error)
}

// APIKeyAuth authenticates requests by the X-API-Key header and stores
// the resolved tenant and key on the request context.
func APIKeyAuth(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(apiKeyHeader)
			if token == "" {
				api.Error(w, http.StatusUnauthorized, "missing api key")
				return
			}

			tenant, key, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				api.Error(w, http.StatusUnauthorized, "invalid api key")
				return
			}

			ctx := context.WithValue(r.Context(), TenantKey, tenant)
			ctx = context.WithValue(ctx, APIKeyKey, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects requests whose API key lacks the admin flag.
// Must run after APIKeyAuth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := GetAPIKey(r.Context())
		if key == nil || !key.Admin {
			api.Error(w, http.StatusForbidden, "admin api key required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetTenant returns the authenticated tenant from context, nil if the
// request did not pass APIKeyAuth.
func GetTenant(ctx context.Context) *domain.Tenant {
	tenant, _ := ctx.Value(TenantKey).(*domain.Tenant)
	return tenant
}

// GetAPIKey returns the authenticated API key from context.
func GetAPIKey(ctx context.Context) *domain.APIKey {
	key, _ := ctx.Value(APIKeyKey).(*domain.APIKey)
	return key
}

// GetTenantID returns the authenticated tenant's id, "" if absent.
func GetTenantID(ctx context.Context) string {
	if tenant := GetTenant(ctx); tenant != nil {
		return tenant.ID
	}
	return ""
}
