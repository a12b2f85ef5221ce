package middleware

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"sqlmapper/internal/logging"
	"sqlmapper/internal/observability"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
)

const defaultClockSkew = 2 * time.Minute

// OIDCAuthConfig controls OIDC/JWKS validation behavior.
type OIDCAuthConfig struct {
	Enabled   bool
	IssuerURL string
	Audience  string
	ClockSkew time.Duration
	// CAFile adds a PEM bundle to the roots trusted when reaching the issuer.
	CAFile string
}

type authContextKey struct{}

// AuthContext carries validated JWT claims.
type AuthContext struct {
	Subject  string
	Issuer   string
	Audience []string
	Claims   jwt.MapClaims
}

// WithAuthContext attaches auth to ctx.
func WithAuthContext(ctx context.Context, auth AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// AuthFromContext returns the auth context from a request context.
func AuthFromContext(ctx context.Context) (AuthContext, bool) {
	auth, ok := ctx.Value(authContextKey{}).(AuthContext)
	return auth, ok
}

// OIDCAuthMiddleware discovers the issuer and validates Bearer tokens when
// enabled. metrics may be nil.
func OIDCAuthMiddleware(cfg OIDCAuthConfig, logger *logging.Logger, metrics *observability.SecurityMetrics) (func(http.Handler) http.Handler, error) {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler { return next }, nil
	}
	if cfg.IssuerURL == "" || cfg.Audience == "" {
		return nil, errors.New("oidc auth enabled but issuer/audience not configured")
	}
	issuerURL, err := url.Parse(cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid oidc issuer url: %w", err)
	}
	if issuerURL.Scheme != "https" {
		return nil, errors.New("oidc issuer url must use https")
	}

	httpClient, err := newOIDCHTTPClient(cfg)
	if err != nil {
		return nil, err
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize oidc provider: %w", err)
	}
	verifier := provider.Verifier(verifierConfig(cfg))
	return newBearerAuth(verifier, cfg, logger, metrics), nil
}

// verifierConfig leaves expiry to validateTimeClaims so the clock skew
// applies.
func verifierConfig(cfg OIDCAuthConfig) *oidc.Config {
	return &oidc.Config{
		ClientID:        cfg.Audience,
		SkipExpiryCheck: true,
	}
}

// newOIDCHTTPClient builds the client used for discovery and JWKS fetches.
func newOIDCHTTPClient(cfg OIDCAuthConfig) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read oidc CA file: %w", err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("oidc CA file %s contains no certificates", cfg.CAFile)
		}
		transport.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	}
	return &http.Client{Transport: transport, Timeout: 10 * time.Second}, nil
}

type bearerAuth struct {
	verifier *oidc.IDTokenVerifier
	issuer   string
	skew     time.Duration
	logger   *logging.Logger
	metrics  *observability.SecurityMetrics
}

func newBearerAuth(verifier *oidc.IDTokenVerifier, cfg OIDCAuthConfig, logger *logging.Logger, metrics *observability.SecurityMetrics) func(http.Handler) http.Handler {
	a := &bearerAuth{
		verifier: verifier,
		issuer:   cfg.IssuerURL,
		skew:     cfg.ClockSkew,
		logger:   logger,
		metrics:  metrics,
	}
	if a.skew <= 0 {
		a.skew = defaultClockSkew
	}
	return a.wrap
}

func (a *bearerAuth) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		endpoint := r.URL.Path
		if a.metrics != nil {
			a.metrics.RecordAuthAttempt(ctx, endpoint)
		}

		auth, reason, err := a.authenticate(ctx, r.Header.Get("Authorization"))
		if err != nil {
			if a.metrics != nil {
				a.metrics.RecordAuthFailure(ctx, endpoint, reason)
			}
			if a.logger != nil {
				logging.FromContext(ctx).Warn("authentication failed",
					slog.String("reason", reason),
					slog.String("error", err.Error()),
					slog.String("endpoint", endpoint),
					slog.String("remote_addr", r.RemoteAddr),
				)
			}
			w.Header().Set("WWW-Authenticate", "Bearer")
			WriteError(w, http.StatusUnauthorized, "UNAUTHENTICATED", err.Error())
			return
		}

		if a.metrics != nil {
			a.metrics.RecordAuthSuccess(ctx, endpoint, auth.Issuer)
		}
		if a.logger != nil {
			logging.FromContext(ctx).Debug("authentication successful",
				slog.String("subject", auth.Subject),
				slog.String("endpoint", endpoint),
			)
		}
		if span := trace.SpanFromContext(ctx); span.IsRecording() {
			span.SetAttributes(
				attribute.String("auth.subject", auth.Subject),
				attribute.String("auth.issuer", auth.Issuer),
				attribute.StringSlice("auth.audience", auth.Audience),
			)
		}
		next.ServeHTTP(w, r.WithContext(WithAuthContext(ctx, auth)))
	})
}

// authenticate returns the verified claims, or a metrics reason and a
// client-safe error.
func (a *bearerAuth) authenticate(ctx context.Context, header string) (AuthContext, string, error) {
	raw := bearerToken(header)
	if raw == "" {
		return AuthContext{}, "missing_token", errors.New("missing bearer token")
	}
	idToken, err := a.verifier.Verify(ctx, raw)
	if err != nil {
		return AuthContext{}, "token_verification_failed", errors.New("invalid token")
	}
	claims := jwt.MapClaims{}
	if err := idToken.Claims(&claims); err != nil {
		return AuthContext{}, "claims_parse_failed", errors.New("invalid token claims")
	}
	if err := validateTimeClaims(claims, a.skew, time.Now()); err != nil {
		return AuthContext{}, "time_validation_failed", err
	}
	aud, _ := claims.GetAudience()
	return AuthContext{
		Subject:  idToken.Subject,
		Issuer:   idToken.Issuer,
		Audience: aud,
		Claims:   claims,
	}, "", nil
}

func bearerToken(value string) string {
	scheme, token, ok := strings.Cut(value, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// validateTimeClaims requires exp and enforces exp and nbf within skew of now.
func validateTimeClaims(claims jwt.MapClaims, skew time.Duration, now time.Time) error {
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return errors.New("invalid exp claim")
	}
	if exp == nil {
		return errors.New("token has no expiry")
	}
	if now.After(exp.Add(skew)) {
		return errors.New("token expired")
	}
	nbf, err := claims.GetNotBefore()
	if err != nil {
		return errors.New("invalid nbf claim")
	}
	if nbf != nil && now.Add(skew).Before(nbf.Time) {
		return errors.New("token not valid yet")
	}
	return nil
}
