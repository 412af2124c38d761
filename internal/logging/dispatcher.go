package logging

import (
	"fmt"

	"github.com/rs/zerolog"
)

// DispatcherLogger feeds the dispatcher's key/value log calls into zerolog.
type DispatcherLogger struct {
	logger zerolog.Logger
}

// NewDispatcherLogger tags every entry with component=dispatcher.
func NewDispatcherLogger(logger zerolog.Logger) *DispatcherLogger {
	return &DispatcherLogger{logger: logger.With().Str("component", "dispatcher").Logger()}
}

func (l *DispatcherLogger) Debug(msg string, keysAndValues ...any) {
	emit(l.logger.Debug(), msg, keysAndValues)
}

func (l *DispatcherLogger) Info(msg string, keysAndValues ...any) {
	emit(l.logger.Info(), msg, keysAndValues)
}

func (l *DispatcherLogger) Error(msg string, keysAndValues ...any) {
	emit(l.logger.Error(), msg, keysAndValues)
}

// emit adds pairs to e. Non-string keys are formatted; a trailing key
// without a value is dropped.
func emit(e *zerolog.Event, msg string, keysAndValues []any) {
	if e == nil {
		return
	}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		switch v := keysAndValues[i+1].(type) {
		case error:
			e = e.AnErr(key, v)
		case fmt.Stringer:
			e = e.Stringer(key, v)
		default:
			e = e.Interface(key, v)
		}
	}
	e.Msg(msg)
}
