package logging

import (
	"context"
	"log/slog"
)

// ContextProvider returns attributes describing process state at log time,
// e.g. the signed-in team.
type ContextProvider func() []slog.Attr

type ctxAttrsKey struct{}

// AppendCtx returns a context whose log records carry attrs in addition to
// any attached by parent contexts.
func AppendCtx(parent context.Context, attrs ...slog.Attr) context.Context {
	if len(attrs) == 0 {
		return parent
	}
	prev, _ := parent.Value(ctxAttrsKey{}).([]slog.Attr)
	merged := make([]slog.Attr, 0, len(prev)+len(attrs))
	merged = append(merged, prev...)
	merged = append(merged, attrs...)
	return context.WithValue(parent, ctxAttrsKey{}, merged)
}

// ContextHandler adds the provider's attributes and those attached with
// AppendCtx to every record before passing it on.
type ContextHandler struct {
	inner    slog.Handler
	provider ContextProvider
}

// NewContextHandler wraps inner. provider may be nil.
func NewContextHandler(inner slog.Handler, provider ContextProvider) *ContextHandler {
	return &ContextHandler{inner: inner, provider: provider}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.provider != nil {
		r.AddAttrs(h.provider()...)
	}
	if ctx != nil {
		if attrs, ok := ctx.Value(ctxAttrsKey{}).([]slog.Attr); ok {
			r.AddAttrs(attrs...)
		}
	}
	return h.inner.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return NewContextHandler(h.inner.WithAttrs(attrs), h.provider)
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return NewContextHandler(h.inner.WithGroup(name), h.provider)
}
