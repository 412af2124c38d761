package logging

import (
	"context"
	"errors"
	"log/slog"
)

// MultiHandler sends each record to every handler enabled for its level.
type MultiHandler struct {
	handlers []slog.Handler
}

// NewMultiHandler ignores nil handlers.
func NewMultiHandler(handlers ...slog.Handler) *MultiHandler {
	m := &MultiHandler{}
	for _, h := range handlers {
		if h != nil {
			m.handlers = append(m.handlers, h)
		}
	}
	return m
}

func (m *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle delivers to all outputs even when some fail, and reports the
// failures joined.
func (m *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range m.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return m.each(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (m *MultiHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return m
	}
	return m.each(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (m *MultiHandler) each(f func(slog.Handler) slog.Handler) *MultiHandler {
	out := &MultiHandler{handlers: make([]slog.Handler, len(m.handlers))}
	for i, h := range m.handlers {
		out.handlers[i] = f(h)
	}
	return out
}
