package observability

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hanko-field/storefront/internal/platform/requestctx"
)

const defaultLogLevel = "info"

// EventLogger is the structured logging hook accepted by services.
type EventLogger func(ctx context.Context, event string, fields map[string]any)

// NewLogger builds the JSON logger used in Cloud Run. Keys follow Cloud Logging conventions so
// severity is picked up without an agent. Unknown levels fall back to info.
func NewLogger(level string) (*zap.Logger, error) {
	atom := zap.NewAtomicLevel()
	if err := atom.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil || strings.TrimSpace(level) == "" {
		_ = atom.UnmarshalText([]byte(defaultLogLevel))
	}

	cfg := zap.Config{
		Level:    atom,
		Encoding: "json",
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey:    "message",
			TimeKey:       "timestamp",
			LevelKey:      "severity",
			CallerKey:     "caller",
			StacktraceKey: "stacktrace",
			EncodeTime:    zapcore.RFC3339NanoTimeEncoder,
			EncodeCaller:  zapcore.ShortCallerEncoder,
			EncodeLevel: func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
				enc.AppendString(strings.ToUpper(l.String()))
			},
		},
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: true,
	}
	return cfg.Build()
}

// WithLogger injects the logger into the provided context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return requestctx.WithLogger(ctx, logger)
}

// FromContext retrieves the logger from context, defaulting to a no-op logger.
func FromContext(ctx context.Context) *zap.Logger {
	return requestctx.Logger(ctx)
}

// NewEventLogger adapts zap to the service logging hook. The request-scoped logger stored in ctx
// wins over base so request ids and trace ids are attached automatically.
func NewEventLogger(base *zap.Logger) EventLogger {
	if base == nil {
		base = zap.NewNop()
	}
	return func(ctx context.Context, event string, fields map[string]any) {
		logger := requestctx.Logger(ctx)
		if logger == requestctx.NoopLogger() {
			logger = base
		}

		keys := make([]string, 0, len(fields))
		for key := range fields {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		zapFields := make([]zap.Field, 0, len(keys)+1)
		zapFields = append(zapFields, zap.String("event", event))
		for _, key := range keys {
			value := fields[key]
			if err, ok := value.(error); ok {
				zapFields = append(zapFields, zap.NamedError(key, err))
				continue
			}
			zapFields = append(zapFields, zap.Any(key, value))
		}

		if ce := logger.Check(eventLevel(event, fields), event); ce != nil {
			ce.Write(zapFields...)
		}
	}
}

// eventLevel picks a severity from the event name. Events carrying an error field are at least warnings.
func eventLevel(event string, fields map[string]any) zapcore.Level {
	lower := strings.ToLower(event)
	switch {
	case strings.HasSuffix(lower, "_failed"), strings.HasSuffix(lower, ".failed"), strings.Contains(lower, "error"):
		return zapcore.ErrorLevel
	case strings.Contains(lower, "mismatch"), strings.Contains(lower, "shortfall"),
		strings.Contains(lower, "dropped"), strings.Contains(lower, "skipped"):
		return zapcore.WarnLevel
	}
	if _, ok := fields["error"]; ok {
		return zapcore.WarnLevel
	}
	return zapcore.InfoLevel
}

// PrintfAdapter adapts zap to printf-style logging interfaces such as kafka.Logger.
type PrintfAdapter struct {
	logger *zap.SugaredLogger
	level  zapcore.Level
}

// NewPrintfAdapter creates a PrintfAdapter emitting at info level.
func NewPrintfAdapter(logger *zap.Logger) PrintfAdapter {
	return NewLeveledPrintfAdapter(logger, zapcore.InfoLevel)
}

// NewLeveledPrintfAdapter creates a PrintfAdapter emitting at the supplied level.
func NewLeveledPrintfAdapter(logger *zap.Logger, level zapcore.Level) PrintfAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return PrintfAdapter{logger: logger.Sugar(), level: level}
}

// Printf implements printf-style logging.
func (a PrintfAdapter) Printf(format string, args ...any) {
	if a.logger == nil {
		return
	}
	a.logger.Logf(a.level, "%s", fmt.Sprintf(format, args...))
}
