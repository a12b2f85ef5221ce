package mapping

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"sqlmapper/internal/mapper"
	"sqlmapper/internal/metadata"
	"sqlmapper/internal/naming"
)

// BuildOptions configures Build.
type BuildOptions struct {
	Namer           *naming.Namer
	Logger          *slog.Logger
	NamespacePrefix string
	// Extra entities registered before the file's own, e.g. generated code.
	Extra []metadata.Described
}

// Build registers the file's entities, resolves their relations, declares
// the mappers and expands relation joins. The first failure is returned
// wrapped with the stage it happened in.
func Build(ctx context.Context, f *File, opts BuildOptions) (*mapper.Registry, error) {
	if opts.Namer == nil {
		opts.Namer = naming.Default()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	tracer := otel.Tracer("sqlmapper/mapping")
	ctx, span := tracer.Start(ctx, "mapping.build")
	defer span.End()

	fail := func(stage string, err error) (*mapper.Registry, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, stage)
		return nil, fmt.Errorf("%s: %w", stage, err)
	}

	meta := metadata.NewRegistry(opts.Namer, opts.Logger)
	descriptors, err := f.Descriptors()
	if err != nil {
		return fail("register", err)
	}
	_, regSpan := tracer.Start(ctx, "mapping.register")
	for _, d := range opts.Extra {
		if _, err := meta.Register(d); err != nil {
			regSpan.End()
			return fail("register", err)
		}
	}
	for _, d := range descriptors {
		if _, err := meta.Register(d); err != nil {
			regSpan.End()
			return fail("register", err)
		}
	}
	regSpan.End()

	_, resolveSpan := tracer.Start(ctx, "mapping.resolve")
	err = meta.Resolve()
	resolveSpan.End()
	if err != nil {
		return fail("resolve", err)
	}

	decls, err := f.Declarations(opts.NamespacePrefix)
	if err != nil {
		return fail("declare", err)
	}
	mappers := mapper.NewRegistry(meta, opts.Namer, opts.Logger)
	for _, decl := range decls {
		if _, err := mappers.Declare(decl); err != nil {
			return fail("declare", err)
		}
	}

	_, expandSpan := tracer.Start(ctx, "mapping.expand")
	err = mappers.Expand()
	expandSpan.End()
	if err != nil {
		return fail("expand", err)
	}

	span.SetAttributes(
		attribute.Int("sqlmapper.entities", len(meta.Entities())),
		attribute.Int("sqlmapper.mappers", len(mappers.Mappers())),
	)
	opts.Logger.Info("mapping loaded",
		slog.Int("entities", len(meta.Entities())),
		slog.Int("mappers", len(mappers.Mappers())))
	return mappers, nil
}
