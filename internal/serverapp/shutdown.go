package serverapp

import (
	"context"
	"log/slog"
	"time"

	"sqlmapper/internal/logging"
)

// shutdownStep releases one resource acquired by Init.
type shutdownStep struct {
	name    string
	release func(context.Context) error
}

// cleanupStack releases resources newest first, so the HTTP server stops
// taking statements before the catalog is drained and the database closed.
type cleanupStack struct {
	steps []shutdownStep
}

func (s *cleanupStack) push(name string, release func(context.Context) error) {
	s.steps = append(s.steps, shutdownStep{name: name, release: release})
}

// run releases every step. Failures are logged and do not stop later steps.
func (s *cleanupStack) run(ctx context.Context, logger *logging.Logger) {
	for len(s.steps) > 0 {
		step := s.steps[len(s.steps)-1]
		s.steps = s.steps[:len(s.steps)-1]

		started := time.Now()
		err := step.release(ctx)
		if logger == nil {
			continue
		}
		if err != nil {
			logger.Warn("shutdown step failed",
				slog.String("component", step.name),
				slog.String("error", err.Error()),
			)
			continue
		}
		logger.Info("released "+step.name, slog.Duration("duration", time.Since(started)))
	}
}

// drainCatalog closes the catalog store once a reload in progress has
// finished and logs what the final catalog served.
func drainCatalog(catalogs *catalogStore, logger *logging.Logger) func(context.Context) error {
	return func(context.Context) error {
		c := catalogs.Close()
		if c == nil {
			return nil
		}
		attrs := []any{
			slog.Int("statements", c.statements.Len()),
			slog.Int("namespaces", len(c.statements.Namespaces())),
			slog.Time("loaded_at", c.loadedAt),
		}
		if rw := catalogs.builder.rewriter; rw != nil {
			stats := rw.CacheStats()
			attrs = append(attrs,
				slog.Int("parse_cache_entries", stats.Entries),
				slog.Int64("parse_cache_hits", stats.Hits),
				slog.Int64("parse_cache_misses", stats.Misses),
			)
		}
		logger.Info("mapper catalog drained", attrs...)
		return nil
	}
}

// Shutdown releases everything Init acquired. Later calls do nothing.
func (a *App) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.shutdownOnce.Do(func() {
		a.stateMu.Lock()
		cleanup := a.cleanup
		a.cleanup = cleanupStack{}
		a.started = false
		a.stateMu.Unlock()

		cleanup.run(ctx, a.logger)
	})
	return nil
}
