package serverapp

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"sqlmapper/internal/config"
	"sqlmapper/internal/logging"
	"sqlmapper/internal/middleware"
	"sqlmapper/internal/observability"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// protect wraps the statement routes in bearer authentication and role
// extraction when they are configured.
func protect(cfg *config.Config, logger *logging.Logger, metrics *observability.SecurityMetrics, handler http.Handler) (http.Handler, error) {
	auth := cfg.Server.Auth
	if auth.DBRoleEnabled {
		handler = middleware.DBRoleMiddleware(middleware.DBRoleConfig{
			ClaimName: auth.DBRoleClaimName,
			Allowed:   auth.DBRoleAllowed,
			Metrics:   metrics,
		})(handler)
	}
	if auth.OIDCEnabled {
		oidc, err := middleware.OIDCAuthMiddleware(middleware.OIDCAuthConfig{
			Enabled:   true,
			IssuerURL: auth.OIDCIssuerURL,
			Audience:  auth.OIDCAudience,
			ClockSkew: auth.OIDCClockSkew,
			CAFile:    auth.OIDCCAFile,
		}, logger, metrics)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize OIDC authentication: %w", err)
		}
		handler = oidc(handler)
		logger.Info("OIDC authentication enabled", slog.String("issuer", auth.OIDCIssuerURL))
	}
	return handler, nil
}

func buildRouter(cfg *config.Config, logger *logging.Logger, h *api, metrics *observability.SecurityMetrics, metricsEnabled bool) (*http.ServeMux, error) {
	routes := http.NewServeMux()
	routes.HandleFunc("GET /statements", h.listStatements)
	routes.HandleFunc("GET /statements/{id}", h.getStatement)
	routes.HandleFunc("GET /mappers/{namespace}", h.getMapper)
	routes.HandleFunc("POST /paginate", h.paginate)
	if cfg.Server.QueryEnabled {
		routes.HandleFunc("POST /statements/{id}/query", h.query)
	}
	protected, err := protect(cfg, logger, metrics, routes)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/statements", protected)
	mux.Handle("/statements/", protected)
	mux.Handle("/mappers/", protected)
	mux.Handle("/paginate", protected)
	mux.HandleFunc("GET /health", h.health)

	if cfg.Server.AdminEndpointsEnabled {
		adminAuth, err := middleware.AdminTokenAuthMiddleware(middleware.AdminTokenAuthConfig{
			Token: cfg.Server.AdminAuthToken,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize admin authentication: %w", err)
		}
		mux.Handle("POST /admin/reload", adminAuth(http.HandlerFunc(h.reload)))
		logger.Info("admin endpoints enabled", slog.String("path", "/admin/reload"))
	}

	if metricsEnabled {
		mux.Handle("GET /metrics", promhttp.Handler())
		logger.Info("metrics endpoint enabled", slog.String("path", "/metrics"))
	}
	return mux, nil
}

func wrapHTTPHandler(cfg *config.Config, logger *logging.Logger, handler http.Handler) http.Handler {
	handler = middleware.LoggingMiddleware(logger)(handler)

	if cfg.Observability.MetricsEnabled || cfg.Observability.TracingEnabled {
		handler = otelhttp.NewHandler(handler, "http.server",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return httpRootSpanName(r)
			}),
		)
		logger.Info("HTTP instrumentation enabled")
	}

	if cfg.Server.CORSEnabled {
		handler = middleware.CORSMiddleware(middleware.CORSConfig{
			Enabled:          cfg.Server.CORSEnabled,
			AllowedOrigins:   cfg.Server.CORSAllowedOrigins,
			AllowedMethods:   cfg.Server.CORSAllowedMethods,
			AllowedHeaders:   cfg.Server.CORSAllowedHeaders,
			ExposeHeaders:    cfg.Server.CORSExposeHeaders,
			AllowCredentials: cfg.Server.CORSAllowCredentials,
			MaxAge:           cfg.Server.CORSMaxAge,
		})(handler)
	}

	if cfg.Server.RateLimitEnabled {
		handler = middleware.RateLimitMiddleware(middleware.RateLimitConfig{
			Enabled: cfg.Server.RateLimitEnabled,
			RPS:     cfg.Server.RateLimitRPS,
			Burst:   cfg.Server.RateLimitBurst,
		})(handler)
	}
	return handler
}

func httpRootSpanName(r *http.Request) string {
	if r == nil {
		return "HTTP /*"
	}
	method := strings.TrimSpace(r.Method)
	if method == "" {
		method = "HTTP"
	}
	return method + " " + normalizeHTTPSpanRoute(r.URL.Path)
}

// normalizeHTTPSpanRoute collapses path parameters so span names stay
// low cardinality.
func normalizeHTTPSpanRoute(rawPath string) string {
	switch rawPath {
	case "/statements", "/paginate", "/health", "/metrics", "/admin/reload":
		return rawPath
	}
	parts := strings.Split(strings.Trim(rawPath, "/"), "/")
	switch {
	case len(parts) == 2 && parts[0] == "statements":
		return "/statements/{id}"
	case len(parts) == 3 && parts[0] == "statements" && parts[2] == "query":
		return "/statements/{id}/query"
	case len(parts) == 2 && parts[0] == "mappers":
		return "/mappers/{namespace}"
	default:
		return "/*"
	}
}

func buildServer(cfg *config.Config, handler http.Handler, serverAddr string) *http.Server {
	return &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}
