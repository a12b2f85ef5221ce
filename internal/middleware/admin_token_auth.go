package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const defaultAdminTokenHeader = "X-Admin-Token"

// AdminTokenAuthConfig controls shared-token authentication for admin endpoints.
type AdminTokenAuthConfig struct {
	Token      string
	HeaderName string
}

// AdminTokenAuthMiddleware guards admin endpoints with a shared token sent
// in HeaderName (X-Admin-Token by default).
func AdminTokenAuthMiddleware(cfg AdminTokenAuthConfig) (func(http.Handler) http.Handler, error) {
	expected := sha256.Sum256([]byte(strings.TrimSpace(cfg.Token)))
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("admin auth token is required")
	}
	header := strings.TrimSpace(cfg.HeaderName)
	if header == "" {
		header = defaultAdminTokenHeader
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := sha256.Sum256([]byte(strings.TrimSpace(r.Header.Get(header))))
			if subtle.ConstantTimeCompare(provided[:], expected[:]) != 1 {
				WriteError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid admin token")
				return
			}
			ctx := WithAuthContext(r.Context(), AuthContext{
				Subject: "admin_token",
				Issuer:  "admin_token",
				Claims:  jwt.MapClaims{"auth_method": "admin_token"},
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}, nil
}
