package middleware

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "https://issuer.example.com"
	testAudience = "sqlmapper"
)

func TestNewOIDCHTTPClient_TrustsProvidedCA(t *testing.T) {
	tlsServer := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer tlsServer.Close()

	caPath := filepath.Join(t.TempDir(), "root_ca.crt")
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: tlsServer.Certificate().Raw})
	require.NoError(t, os.WriteFile(caPath, certPEM, 0o600))

	client, err := newOIDCHTTPClient(OIDCAuthConfig{CAFile: caPath})
	require.NoError(t, err)

	resp, err := client.Get(tlsServer.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()
}

func TestNewOIDCHTTPClient_FailsWithoutCAForSelfSignedServer(t *testing.T) {
	tlsServer := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer tlsServer.Close()

	client, err := newOIDCHTTPClient(OIDCAuthConfig{})
	require.NoError(t, err)

	_, err = client.Get(tlsServer.URL)
	assert.Error(t, err)
}

func TestNewOIDCHTTPClient_RejectsInvalidCAFile(t *testing.T) {
	caPath := filepath.Join(t.TempDir(), "invalid_ca.crt")
	require.NoError(t, os.WriteFile(caPath, []byte("not a certificate"), 0o600))

	_, err := newOIDCHTTPClient(OIDCAuthConfig{CAFile: caPath})
	assert.ErrorContains(t, err, "contains no certificates")
}

func TestOIDCAuthMiddleware_ConfigErrors(t *testing.T) {
	mw, err := OIDCAuthMiddleware(OIDCAuthConfig{}, nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, mw)

	_, err = OIDCAuthMiddleware(OIDCAuthConfig{Enabled: true, IssuerURL: testIssuer}, nil, nil)
	assert.ErrorContains(t, err, "issuer/audience")

	_, err = OIDCAuthMiddleware(OIDCAuthConfig{Enabled: true, IssuerURL: "http://issuer", Audience: testAudience}, nil, nil)
	assert.ErrorContains(t, err, "must use https")
}

type tokenSigner struct {
	key *rsa.PrivateKey
}

func newTokenSigner(t *testing.T) *tokenSigner {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return &tokenSigner{key: key}
}

func (s *tokenSigner) verifier() *oidc.IDTokenVerifier {
	keys := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&s.key.PublicKey}}
	return oidc.NewVerifier(testIssuer, keys, verifierConfig(OIDCAuthConfig{Audience: testAudience}))
}

func (s *tokenSigner) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.key)
	require.NoError(t, err)
	return token
}

func validClaims(now time.Time) jwt.MapClaims {
	return jwt.MapClaims{
		"iss":     testIssuer,
		"aud":     testAudience,
		"sub":     "user-42",
		"iat":     now.Unix(),
		"exp":     now.Add(time.Hour).Unix(),
		"db_role": "app_viewer",
	}
}

func TestBearerAuth(t *testing.T) {
	signer := newTokenSigner(t)
	other := newTokenSigner(t)
	now := time.Now()

	expired := validClaims(now)
	expired["exp"] = now.Add(-time.Hour).Unix()
	withinSkew := validClaims(now)
	withinSkew["exp"] = now.Add(-30 * time.Second).Unix()
	noExpiry := validClaims(now)
	delete(noExpiry, "exp")
	wrongAudience := validClaims(now)
	wrongAudience["aud"] = "someone-else"
	notYet := validClaims(now)
	notYet["nbf"] = now.Add(time.Hour).Unix()

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantMsg    string
	}{
		{"missing header", "", http.StatusUnauthorized, "missing bearer token"},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, "missing bearer token"},
		{"valid token", "Bearer " + signer.sign(t, validClaims(now)), http.StatusOK, ""},
		{"lowercase scheme", "bearer " + signer.sign(t, validClaims(now)), http.StatusOK, ""},
		{"expired within skew", "Bearer " + signer.sign(t, withinSkew), http.StatusOK, ""},
		{"expired", "Bearer " + signer.sign(t, expired), http.StatusUnauthorized, "token expired"},
		{"no expiry", "Bearer " + signer.sign(t, noExpiry), http.StatusUnauthorized, "token has no expiry"},
		{"not yet valid", "Bearer " + signer.sign(t, notYet), http.StatusUnauthorized, "token not valid yet"},
		{"wrong audience", "Bearer " + signer.sign(t, wrongAudience), http.StatusUnauthorized, "invalid token"},
		{"unknown key", "Bearer " + other.sign(t, validClaims(now)), http.StatusUnauthorized, "invalid token"},
		{"garbage", "Bearer not-a-jwt", http.StatusUnauthorized, "invalid token"},
	}

	mw := newBearerAuth(signer.verifier(), OIDCAuthConfig{IssuerURL: testIssuer, Audience: testAudience, ClockSkew: time.Minute}, nil, nil)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth, ok := AuthFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, "user-42", auth.Subject)
		assert.Equal(t, testIssuer, auth.Issuer)
		assert.Equal(t, []string{testAudience}, auth.Audience)
		assert.Equal(t, "app_viewer", auth.Claims["db_role"])
		w.WriteHeader(http.StatusOK)
	}))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/statements", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantMsg == "" {
				return
			}
			assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
			var body ErrorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "UNAUTHENTICATED", body.Error.Code)
			assert.Equal(t, tt.wantMsg, body.Error.Message)
		})
	}
}

func TestValidateTimeClaims_StringDatesRejected(t *testing.T) {
	err := validateTimeClaims(jwt.MapClaims{"exp": "tomorrow"}, time.Minute, time.Now())
	assert.EqualError(t, err, "invalid exp claim")
}

func TestAuthFromContext_Missing(t *testing.T) {
	_, ok := AuthFromContext(context.Background())
	assert.False(t, ok)
}
