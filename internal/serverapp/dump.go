package serverapp

import (
	"context"
	"fmt"
	"io"

	"sqlmapper/internal/config"
	"sqlmapper/internal/dialect"
	"sqlmapper/internal/keygen"
	"sqlmapper/internal/logging"
)

// DumpMappers compiles the mapping files for the configured dialect and
// writes one mapper document per namespace to w. It needs no database.
func DumpMappers(ctx context.Context, cfg *config.Config, logger *logging.Logger, w io.Writer) error {
	d, err := dialect.Lookup(cfg.EffectiveDialect())
	if err != nil {
		return err
	}
	b := &catalogBuilder{
		cfg:     cfg,
		logger:  logger,
		dialect: d,
		keys:    keygen.NewRegistry(logger.Logger),
	}
	statements, err := b.compile(ctx)
	if err != nil {
		return err
	}
	for _, ns := range statements.Namespaces() {
		if err := statements.WriteMapper(w, ns); err != nil {
			return fmt.Errorf("failed to write mapper %s: %w", ns, err)
		}
	}
	return nil
}
