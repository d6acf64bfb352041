package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/cloo-solutions/groundwork/internal/api"
	"github.com/cloo-solutions/groundwork/internal/domain"
)

type contextKey string

const PrincipalKey contextKey = "principal"

type AuthValidator interface {
	ValidateAPIKey(ctx context.Context, token string) (*domain.APIKey, error)
}

// APIKeyAuth resolves the bearer token to its API key and stores it as the request principal.
func APIKeyAuth(validator AuthValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.Error(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				api.Error(w, http.StatusUnauthorized, "invalid authorization format")
				return
			}

			key, err := validator.ValidateAPIKey(r.Context(), strings.TrimSpace(token))
			if err != nil || key == nil {
				api.Error(w, http.StatusUnauthorized, "invalid api key")
				return
			}

			recordPrincipal(r.Context(), key)
			ctx := context.WithValue(r.Context(), PrincipalKey, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireIngest rejects principals whose key may not write documents.
func RequireIngest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := GetPrincipal(r.Context())
		if key == nil {
			api.Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !key.CanIngest {
			api.HandleError(w, domain.ErrIngestNotAllowed)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func GetPrincipal(ctx context.Context) *domain.APIKey {
	key, _ := ctx.Value(PrincipalKey).(*domain.APIKey)
	return key
}

func GetOrgID(ctx context.Context) string {
	if key := GetPrincipal(ctx); key != nil {
		return key.OrgID
	}
	return ""
}

// GetScope returns the read scope of the principal; ok is false for anonymous requests.
func GetScope(ctx context.Context) (domain.AccessScope, bool) {
	key := GetPrincipal(ctx)
	if key == nil {
		return domain.AccessScope{}, false
	}
	return key.Scope(), true
}
