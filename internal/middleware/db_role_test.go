package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDBRoleMiddleware(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if role, ok := DBRoleFromContext(r.Context()); ok {
			w.Header().Set("X-Role", role.Role)
		}
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name        string
		claims      jwt.MapClaims
		claimName   string
		allowed     []string
		wantStatus  int
		wantRole    string
		wantMessage string
	}{
		{
			name:        "missing auth context",
			wantStatus:  http.StatusUnauthorized,
			wantMessage: "missing authentication",
		},
		{
			name:        "missing claim",
			claims:      jwt.MapClaims{},
			wantStatus:  http.StatusForbidden,
			wantMessage: "missing db_role claim",
		},
		{
			name:        "custom claim name",
			claims:      jwt.MapClaims{"db_role": "app_viewer"},
			claimName:   "role",
			wantStatus:  http.StatusForbidden,
			wantMessage: "missing role claim",
		},
		{
			name:        "invalid claim type",
			claims:      jwt.MapClaims{"db_role": 123},
			wantStatus:  http.StatusBadRequest,
			wantMessage: "invalid db_role claim type",
		},
		{
			name:        "role not allowed",
			claims:      jwt.MapClaims{"db_role": "superuser"},
			allowed:     []string{"app_viewer", "app_analyst"},
			wantStatus:  http.StatusForbidden,
			wantMessage: "invalid database role: superuser",
		},
		{
			name:       "allowed role",
			claims:     jwt.MapClaims{"db_role": "app_analyst"},
			allowed:    []string{"app_viewer", "app_analyst"},
			wantStatus: http.StatusOK,
			wantRole:   "app_analyst",
		},
		{
			name:       "any role without allow list",
			claims:     jwt.MapClaims{"db_role": "reporting"},
			wantStatus: http.StatusOK,
			wantRole:   "reporting",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/statements", nil)
			if tt.claims != nil {
				req = req.WithContext(WithAuthContext(req.Context(), AuthContext{Claims: tt.claims}))
			}
			rec := httptest.NewRecorder()
			DBRoleMiddleware(DBRoleConfig{ClaimName: tt.claimName, Allowed: tt.allowed})(handler).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantRole, rec.Header().Get("X-Role"))
			if tt.wantMessage != "" {
				var body ErrorBody
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, tt.wantMessage, body.Error.Message)
			}
		})
	}
}

func TestDBRoleFromContext_Missing(t *testing.T) {
	_, ok := DBRoleFromContext(context.Background())
	assert.False(t, ok)
}
