package arbor

import "go.uber.org/zap"

// Logger is the interface the framework logs through. Structured key-value
// pairs keep the output parseable regardless of the backing library.
//
// All kernel operations (component resolution, module loading, route
// resolution, lifecycle transitions) are logged via this interface, so
// applications control how framework logs appear.
//
// The variadic arguments are key-value pairs:
//
//	logger.Info("component resolved", "id", "db", "namespace", "app/Connection")
//
// This shape is directly compatible with slog, zap's sugared logger and
// similar structured loggers.
type Logger interface {
	// Info logs normal application events like component resolution and
	// module loading.
	Info(msg string, args ...any)

	// Error logs failures worth noting even when the application keeps
	// running.
	Error(msg string, args ...any)

	// Warn logs unusual conditions that do not prevent normal operation.
	Warn(msg string, args ...any)

	// Debug logs detailed diagnostics, typically disabled in production.
	Debug(msg string, args ...any)
}

// zapLogger adapts a zap sugared logger to the Logger interface.
type zapLogger struct {
	s *zap.SugaredLogger
}

// NewZapLogger wraps a zap logger for framework use. The caller keeps
// ownership and flushes it on shutdown.
func NewZapLogger(l *zap.Logger) Logger {
	return &zapLogger{s: l.Sugar()}
}

// NewDevelopmentLogger builds a human-readable zap-backed logger for local
// runs and examples.
func NewDevelopmentLogger() (Logger, error) {
	l, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}
	return NewZapLogger(l), nil
}

// NewNopLogger discards everything. It is the default when an application
// is built without a logger.
func NewNopLogger() Logger {
	return NewZapLogger(zap.NewNop())
}

func (l *zapLogger) Info(msg string, args ...any)  { l.s.Infow(msg, args...) }
func (l *zapLogger) Error(msg string, args ...any) { l.s.Errorw(msg, args...) }
func (l *zapLogger) Warn(msg string, args ...any)  { l.s.Warnw(msg, args...) }
func (l *zapLogger) Debug(msg string, args ...any) { l.s.Debugw(msg, args...) }
