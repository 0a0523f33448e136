// Package telemetry wires the global OpenTelemetry meter provider to an
// OTLP collector over gRPC. When disabled the process keeps the default
// no-op provider and every instrument call is free.
package telemetry

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.uber.org/zap"
	"google.golang.org/grpc/credentials"
)

// Config holds telemetry configuration.
type Config struct {
	Enabled        bool          `koanf:"enabled"`
	Endpoint       string        `koanf:"endpoint"`
	Insecure       bool          `koanf:"insecure"`
	TLSSkipVerify  bool          `koanf:"tls_skip_verify"`
	ExportInterval time.Duration `koanf:"export_interval"`
	ServiceName    string        `koanf:"service_name"`
	ServiceVersion string        `koanf:"service_version"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = "localhost:4317"
	}
	if c.ExportInterval <= 0 {
		c.ExportInterval = 30 * time.Second
	}
	if c.ServiceName == "" {
		c.ServiceName = "voyaged"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "dev"
	}
}

// Telemetry owns the meter provider lifecycle.
type Telemetry struct {
	provider *sdkmetric.MeterProvider
	logger   *zap.Logger
}

// Init creates the meter provider, registers it globally, and returns a
// handle for shutdown. A disabled config returns a handle whose Shutdown is
// a no-op.
func Init(ctx context.Context, cfg Config, logger *zap.Logger) (*Telemetry, error) {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		return &Telemetry{logger: logger}, nil
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	)

	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	} else if cfg.TLSSkipVerify {
		opts = append(opts, otlpmetricgrpc.WithTLSCredentials(credentials.NewTLS(&tls.Config{
			InsecureSkipVerify: true, //nolint:gosec // explicit opt-in for internal CAs
		})))
	}

	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(cfg.ExportInterval))),
	)
	otel.SetMeterProvider(provider)

	logger.Info("telemetry initialized",
		zap.String("endpoint", cfg.Endpoint),
		zap.Duration("export_interval", cfg.ExportInterval),
	)
	return &Telemetry{provider: provider, logger: logger}, nil
}

// Shutdown flushes pending metrics and releases the exporter.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	if err := t.provider.Shutdown(ctx); err != nil {
		t.logger.Warn("telemetry shutdown failed", zap.Error(err))
		return err
	}
	return nil
}
