package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// InstrumentationName identifies this program's records in the OTel bridge.
const InstrumentationName = "tenchi-map"

// swapped in tests
var (
	osStdout io.Writer = os.Stdout
	osPipe             = os.Pipe
)

// SlogManager manages slog-based logging with optional OTel integration.
type SlogManager struct {
	logger *slog.Logger

	// OTel provider for flushing
	logProvider *sdklog.LoggerProvider
}

// NewSlogManager creates a new slog-based logging manager.
func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// Option adds outputs or context to Setup.
type Option func(*setupOptions)

type setupOptions struct {
	extra   []slog.Handler
	context ContextProvider
}

// WithHandler adds another output, e.g. a GELF handler.
func WithHandler(h slog.Handler) Option {
	return func(o *setupOptions) {
		o.extra = append(o.extra, h)
	}
}

// WithContext attaches attributes computed at log time to every record.
// Attributes added with AppendCtx are carried regardless.
func WithContext(p ContextProvider) Option {
	return func(o *setupOptions) {
		o.context = p
	}
}

// parseLevel reads names like "debug" or "WARN"; anything else is info.
func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Setup initializes the logging system. Records go to file when one is given,
// otherwise to stdout. If provider is nil, OTel logging is disabled.
func (m *SlogManager) Setup(file io.Writer, level string, provider *sdklog.LoggerProvider, opts ...Option) {
	var o setupOptions
	for _, opt := range opts {
		opt(&o)
	}

	lvl := parseLevel(level)
	m.logProvider = provider

	handlerOpts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
				}
			}
			return a
		},
	}

	out := file
	if out == nil {
		out = osStdout
	}
	handlers := []slog.Handler{slog.NewTextHandler(out, handlerOpts)}
	if provider != nil {
		handlers = append(handlers, otelslog.NewHandler(InstrumentationName, otelslog.WithLoggerProvider(provider)))
	}
	handlers = append(handlers, o.extra...)

	m.logger = slog.New(NewContextHandler(NewMultiHandler(handlers...), o.context))
	m.logger.Info("Logging initialized", "level", level)
}

// Logger returns the configured slog.Logger.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		// Return a default logger if Setup hasn't been called
		return slog.Default()
	}
	return m.logger
}

// Flush forces a flush of OTel logs if available.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider != nil {
		return m.logProvider.ForceFlush(ctx)
	}
	return nil
}
