package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
)

// MessageWriter sends a GELF message. *gelf.Writer satisfies it.
type MessageWriter interface {
	WriteMessage(m *gelf.Message) error
}

// GelfHandler is a slog.Handler that ships records to Graylog.
type GelfHandler struct {
	writer MessageWriter
	level  slog.Leveler
	host   string
	attrs  []slog.Attr
	group  string
}

// NewGelfHandler dials the Graylog UDP input at addr.
func NewGelfHandler(addr string, level string) (*GelfHandler, error) {
	w, err := gelf.NewWriter(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to create GELF writer: %w", err)
	}
	return NewGelfHandlerWithWriter(w, parseLevel(level)), nil
}

// NewGelfHandlerWithWriter builds a handler around an existing writer.
func NewGelfHandlerWithWriter(w MessageWriter, level slog.Leveler) *GelfHandler {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return &GelfHandler{writer: w, level: level, host: host}
}

// Enabled reports whether level meets the handler's threshold.
func (h *GelfHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle converts the record to a GELF message and sends it.
func (h *GelfHandler) Handle(_ context.Context, r slog.Record) error {
	extra := make(map[string]interface{}, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		addExtra(extra, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		addExtra(extra, h.group, a)
		return true
	})

	t := r.Time
	if t.IsZero() {
		t = time.Now()
	}

	return h.writer.WriteMessage(&gelf.Message{
		Version:  "1.1",
		Host:     h.host,
		Short:    r.Message,
		TimeUnix: float64(t.UnixNano()) / float64(time.Second),
		Level:    syslogLevel(r.Level),
		Facility: InstrumentationName,
		Extra:    extra,
	})
}

// WithAttrs returns a handler that adds attrs to every message.
func (h *GelfHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		next.attrs = append(next.attrs, a)
	}
	return &next
}

// WithGroup prefixes later attribute keys with name.
func (h *GelfHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	if h.group != "" {
		next.group = h.group + "." + name
	} else {
		next.group = name
	}
	return &next
}

// addExtra flattens a into extra. GELF additional fields carry a leading
// underscore and no nesting.
func addExtra(extra map[string]interface{}, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	key := a.Key
	if prefix != "" {
		key = prefix + "." + key
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			addExtra(extra, key, ga)
		}
		return
	}
	if key == "" {
		return
	}
	key = "_" + strings.ReplaceAll(key, ".", "_")
	switch a.Value.Kind() {
	case slog.KindString:
		extra[key] = a.Value.String()
	case slog.KindInt64:
		extra[key] = a.Value.Int64()
	case slog.KindUint64:
		extra[key] = a.Value.Uint64()
	case slog.KindFloat64:
		extra[key] = a.Value.Float64()
	case slog.KindBool:
		extra[key] = a.Value.Bool()
	default:
		extra[key] = a.Value.String()
	}
}

func syslogLevel(l slog.Level) int32 {
	switch {
	case l >= slog.LevelError:
		return 3
	case l >= slog.LevelWarn:
		return 4
	case l >= slog.LevelInfo:
		return 6
	default:
		return 7
	}
}
