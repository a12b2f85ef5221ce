package serverapp

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
)

// Start launches the HTTP server goroutine. It requires Init to have completed.
func (a *App) Start() (<-chan error, error) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()

	if !a.initialized {
		return nil, fmt.Errorf("app is not initialized")
	}
	if a.started {
		return a.serverErrors, nil
	}

	errs := make(chan error, 1)
	srv := a.srv
	logger := a.logger
	logger.Info("server starting",
		slog.String("address", a.serverAddr),
		slog.String("dialect", a.dialect.Name()),
		slog.Bool("query_enabled", a.cfg.Server.QueryEnabled),
		slog.Bool("admin_endpoints_enabled", a.cfg.Server.AdminEndpointsEnabled),
		slog.Bool("metrics_enabled", a.cfg.Observability.MetricsEnabled),
		slog.Bool("rate_limit_enabled", a.cfg.Server.RateLimitEnabled),
	)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("server failed: %w", err)
		}
	}()
	a.serverErrors = errs
	a.started = true
	return errs, nil
}

// WaitForStop blocks until a signal arrives on stop or the server fails.
// It returns "signal" or "server_error" as the reason.
func (a *App) WaitForStop(stop <-chan os.Signal, serverErrors <-chan error) (reason string, err error) {
	if serverErrors == nil {
		a.stateMu.Lock()
		serverErrors = a.serverErrors
		a.stateMu.Unlock()
	}
	if stop == nil && serverErrors == nil {
		return "", fmt.Errorf("both stop and serverErrors channels are nil")
	}

	// A nil channel blocks forever, so either side may be absent.
	select {
	case err := <-serverErrors:
		if err == nil {
			return "server_error", fmt.Errorf("server stopped unexpectedly")
		}
		return "server_error", err
	case sig := <-stop:
		if a.logger != nil {
			a.logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		}
		return "signal", nil
	}
}
