package tinysip

import "log/slog"

var defLogger *slog.Logger

// SetDefaultLogger sets the logger used by the engine. Must be called
// before any Engine is constructed if the default (slog.Default()) is
// not desired.
func SetDefaultLogger(l *slog.Logger) {
	defLogger = l
}

// DefaultLogger returns the engine's current logger.
func DefaultLogger() *slog.Logger {
	if defLogger != nil {
		return defLogger
	}
	return slog.Default()
}
