package serverapp

import (
	"log/slog"

	"sqlmapper/internal/config"
	"sqlmapper/internal/logging"
	"sqlmapper/internal/observability"
)

func otelConfig(cfg *config.Config, otlp config.OTLPConfig) observability.Config {
	return observability.Config{
		ServiceName:      cfg.Observability.ServiceName,
		ServiceVersion:   cfg.Observability.ServiceVersion,
		Environment:      cfg.Observability.Environment,
		TraceSampleRatio: cfg.Observability.TraceSampleRatio,
		// The exporter settings mirror the config block field for field.
		OTLPConfig: observability.OTLPExporterConfig(otlp),
	}
}

// InitLogger builds the process logger and, when log export is enabled,
// an OTLP logger provider the caller must attach to the App for shutdown.
func InitLogger(cfg *config.Config) (*logging.Logger, *observability.LoggerProvider, error) {
	loggerCfg := logging.Config{
		Level:       cfg.Observability.Logging.Level,
		Format:      cfg.Observability.Logging.Format,
		ServiceName: cfg.Observability.ServiceName,
	}
	logger := logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	if !cfg.Observability.Logging.ExportsEnabled {
		return logger, nil, nil
	}

	logsConfig := cfg.Observability.GetLogsConfig()
	logger.Info("initializing OpenTelemetry logging",
		slog.String("otlp_endpoint", logsConfig.Endpoint),
		slog.String("otlp_protocol", logsConfig.Protocol),
		slog.Bool("insecure", logsConfig.Insecure),
	)
	provider, err := observability.InitLoggerProvider(otelConfig(cfg, logsConfig))
	if err != nil {
		return nil, nil, err
	}

	loggerCfg.LoggerProvider = provider.Provider()
	logger = logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)
	return logger, provider, nil
}

type telemetry struct {
	meterProvider   *observability.MeterProvider
	mapperMetrics   *observability.MapperMetrics
	securityMetrics *observability.SecurityMetrics
	tracerProvider  *observability.TracerProvider
}

func initMetrics(cfg *config.Config, logger *logging.Logger, t *telemetry) error {
	if !cfg.Observability.MetricsEnabled {
		return nil
	}
	logger.Info("initializing OpenTelemetry metrics",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("environment", cfg.Observability.Environment),
	)
	meterProvider, err := observability.InitMeterProvider(otelConfig(cfg, config.OTLPConfig{}))
	if err != nil {
		return err
	}
	t.meterProvider = meterProvider

	if t.mapperMetrics, err = observability.InitMetrics(logger.Logger); err != nil {
		return err
	}
	if t.securityMetrics, err = observability.NewSecurityMetrics(nil); err != nil {
		return err
	}
	return nil
}

func initTracing(cfg *config.Config, logger *logging.Logger, t *telemetry) error {
	if !cfg.Observability.TracingEnabled {
		return nil
	}
	tracesConfig := cfg.Observability.GetTracesConfig()
	logger.Info("initializing OpenTelemetry tracing",
		slog.String("otlp_endpoint", tracesConfig.Endpoint),
		slog.String("otlp_protocol", tracesConfig.Protocol),
		slog.Float64("sample_ratio", cfg.Observability.TraceSampleRatio),
	)
	tracerProvider, err := observability.InitTracerProvider(otelConfig(cfg, tracesConfig))
	if err != nil {
		return err
	}
	t.tracerProvider = tracerProvider
	return nil
}
