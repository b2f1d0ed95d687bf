package peersock

import "log/slog"

// Logger is the interface for structured logging.
// *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// defaultLogger returns slog.Default tagged with the package component.
func defaultLogger() Logger {
	return slog.Default().With("component", "peersock")
}
