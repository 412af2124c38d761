package otel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ErrNoExporter is returned when OTel is enabled without anywhere to send
// records.
var ErrNoExporter = errors.New("otel enabled but no log writer or endpoint configured")

// Config holds OTel configuration
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	HostName       string
	BatchTimeout   time.Duration
	LogWriter      io.Writer // records are also written here as JSON
	Endpoint       string    // OTLP/HTTP endpoint, optional
	Insecure       bool
}

// Provider owns the log pipeline feeding the otelslog bridge. A disabled
// provider has no pipeline and every method is a no-op.
type Provider struct {
	logProvider *sdklog.LoggerProvider
}

// New builds the log pipeline described by cfg.
func New(cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{}, nil
	}
	ctx := context.Background()

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var exporters []sdklog.Exporter
	if cfg.LogWriter != nil {
		exp, err := stdoutlog.New(stdoutlog.WithWriter(cfg.LogWriter), stdoutlog.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create file log exporter: %w", err)
		}
		exporters = append(exporters, exp)
	}
	if cfg.Endpoint != "" {
		exp, err := newOTLPExporter(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP log exporter: %w", err)
		}
		exporters = append(exporters, exp)
	}
	if len(exporters) == 0 {
		return nil, ErrNoExporter
	}

	opts := []sdklog.LoggerProviderOption{sdklog.WithResource(res)}
	for _, exp := range exporters {
		opts = append(opts, sdklog.WithProcessor(
			sdklog.NewBatchProcessor(exp, sdklog.WithExportTimeout(cfg.BatchTimeout)),
		))
	}
	return &Provider{logProvider: sdklog.NewLoggerProvider(opts...)}, nil
}

func newResource(ctx context.Context, cfg Config) (*resource.Resource, error) {
	attrs := []resource.Option{resource.WithAttributes(semconv.ServiceName(cfg.ServiceName))}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.ServiceVersion(cfg.ServiceVersion)))
	}
	if cfg.HostName != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.HostName(cfg.HostName)))
	}
	return resource.New(ctx, attrs...)
}

func newOTLPExporter(ctx context.Context, cfg Config) (*otlploghttp.Exporter, error) {
	opts := []otlploghttp.Option{otlploghttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlploghttp.WithInsecure())
	}
	return otlploghttp.New(ctx, opts...)
}

// LoggerProvider is nil when disabled; the logging setup treats that as
// no OTel output.
func (p *Provider) LoggerProvider() *sdklog.LoggerProvider {
	return p.logProvider
}

// Enabled reports whether a pipeline was built.
func (p *Provider) Enabled() bool {
	return p.logProvider != nil
}

// Shutdown flushes pending records and stops the exporters.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.logProvider == nil {
		return nil
	}
	if err := p.logProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("log shutdown failed: %w", err)
	}
	return nil
}
