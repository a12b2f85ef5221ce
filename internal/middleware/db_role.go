package middleware

import (
	"context"
	"fmt"
	"net/http"

	"sqlmapper/internal/observability"
)

type dbRoleContextKey struct{}

// DBRoleContext carries validated database role information.
type DBRoleContext struct {
	Role      string
	Validated bool
}

// WithDBRole attaches the database role to the request context.
func WithDBRole(ctx context.Context, role string, validated bool) context.Context {
	return context.WithValue(ctx, dbRoleContextKey{}, DBRoleContext{
		Role:      role,
		Validated: validated,
	})
}

// DBRoleFromContext extracts the database role from context.
func DBRoleFromContext(ctx context.Context) (DBRoleContext, bool) {
	role, ok := ctx.Value(dbRoleContextKey{}).(DBRoleContext)
	return role, ok
}

// DBRoleConfig selects the claim carrying the role and the roles a token
// may request. An empty Allowed list accepts any role.
type DBRoleConfig struct {
	ClaimName string
	Allowed   []string
	Metrics   *observability.SecurityMetrics
}

// DBRoleMiddleware reads the role claim of an authenticated request and
// stores it for the statement executor. It must run after the OIDC
// middleware.
func DBRoleMiddleware(cfg DBRoleConfig) func(http.Handler) http.Handler {
	claimName := cfg.ClaimName
	if claimName == "" {
		claimName = "db_role"
	}
	allowed := make(map[string]struct{}, len(cfg.Allowed))
	for _, role := range cfg.Allowed {
		allowed[role] = struct{}{}
	}
	reject := func(w http.ResponseWriter, r *http.Request, status int, code, reason, message string) {
		if cfg.Metrics != nil {
			cfg.Metrics.RecordRoleRejected(r.Context(), reason)
		}
		WriteError(w, status, code, message)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth, ok := AuthFromContext(r.Context())
			if !ok {
				reject(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "unauthenticated", "missing authentication")
				return
			}
			raw, ok := auth.Claims[claimName]
			if !ok {
				reject(w, r, http.StatusForbidden, "FORBIDDEN", "missing_claim", fmt.Sprintf("missing %s claim", claimName))
				return
			}
			role, ok := raw.(string)
			if !ok || role == "" {
				reject(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid_claim", fmt.Sprintf("invalid %s claim type", claimName))
				return
			}
			if len(allowed) > 0 {
				if _, ok := allowed[role]; !ok {
					reject(w, r, http.StatusForbidden, "FORBIDDEN", "not_allowed", fmt.Sprintf("invalid database role: %s", role))
					return
				}
			}
			next.ServeHTTP(w, r.WithContext(WithDBRole(r.Context(), role, true)))
		})
	}
}
