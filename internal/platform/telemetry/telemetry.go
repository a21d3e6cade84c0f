// Package telemetry installs the global OpenTelemetry meter provider.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/SscSPs/fiscal_journal/internal/platform/config"
)

const (
	ServiceName    = "fiscal-journal"
	exportInterval = 15 * time.Second
)

// ShutdownFunc flushes pending metrics and releases the exporter.
type ShutdownFunc func(ctx context.Context) error

// Setup installs an OTLP/gRPC meter provider as the global provider when
// cfg.OTLPEndpoint is set. Otherwise the global no-op provider is left in
// place and the returned ShutdownFunc does nothing.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ShutdownFunc, error) {
	if cfg.OTLPEndpoint == "" {
		logger.InfoContext(ctx, "metrics export disabled, OTEL_EXPORTER_OTLP_ENDPOINT not set")
		return func(context.Context) error { return nil }, nil
	}

	environment := "development"
	if cfg.IsProduction {
		environment = "production"
	}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(ServiceName),
			semconv.DeploymentEnvironment(environment),
			semconv.ServiceInstanceID(cfg.RegisterID),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.OTLPInsecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(exportInterval),
		)),
	)
	otel.SetMeterProvider(provider)

	logger.InfoContext(ctx, "metrics export initialized",
		slog.String("endpoint", cfg.OTLPEndpoint),
		slog.Bool("insecure", cfg.OTLPInsecure),
	)
	return provider.Shutdown, nil
}
