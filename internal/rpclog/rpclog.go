// Package rpclog adapts zerolog into a package-level logger, switched
// between a human-readable console writer and a no-op/quiet leveled logger
// by a Debug flag.
package rpclog

import (
	"io"
	"log/slog"
	"os"

	"github.com/rs/zerolog"
)

// Logger wraps a zerolog.Logger with the handful of calls the runtime needs.
// It also carries a log/slog.Logger at the same verbosity for the few
// dependencies (suture's event hook) that speak slog instead of zerolog.
type Logger struct {
	z zerolog.Logger
	s *slog.Logger
}

// New builds a Logger. debug=true yields a pretty console writer at Debug
// level; debug=false yields a quiet logger at Error level only, a dev/prod
// logging split.
func New(debug bool) *Logger {
	if debug {
		w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
		return &Logger{
			z: zerolog.New(w).With().Timestamp().Logger().Level(zerolog.DebugLevel),
			s: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})),
		}
	}
	return &Logger{
		z: zerolog.New(os.Stderr).Level(zerolog.ErrorLevel),
		s: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})),
	}
}

// Noop returns a Logger that discards everything, used as the default when
// the caller supplies none.
func Noop() *Logger {
	return &Logger{
		z: zerolog.New(io.Discard).Level(zerolog.Disabled),
		s: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// Slog returns the slog.Logger view of this Logger, for libraries (suture's
// event hook) that take a *slog.Logger rather than our own interface.
func (l *Logger) Slog() *slog.Logger { return l.s }

func (l *Logger) Debugf(format string, args ...any) {
	l.z.Debug().Msgf(format, args...)
}

func (l *Logger) Infof(format string, args ...any) {
	l.z.Info().Msgf(format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	l.z.Error().Msgf(format, args...)
}

// WithPath returns a child logger tagged with the procedure path as a
// stable context field via zerolog's With().
func (l *Logger) WithPath(path string) *Logger {
	return &Logger{z: l.z.With().Str("path", path).Logger()}
}
