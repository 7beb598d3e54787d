package logger

import (
	"io"

	"github.com/rs/zerolog"
)

// NullLogger discards everything, matching the teacher's NullLogger: by
// default nothing is printed unless a caller wires in a real logger.
type NullLogger struct{}

func (l *NullLogger) Debugf(format string, args ...interface{}) {}
func (l *NullLogger) Infof(format string, args ...interface{})  {}
func (l *NullLogger) Warnf(format string, args ...interface{})  {}
func (l *NullLogger) Errorf(format string, args ...interface{}) {}

// Zerolog adapts the DebugLogger interface onto a zerolog.Logger. The
// daemon constructs one of these at startup; library code and tests that
// don't care about output keep using NullLogger. The teacher's own
// DebugLogger wraps bare log.Printf with a "[LEVEL]" prefix; this module
// keeps the same call-site shape (Debugf/Infof/Warnf/Errorf) but backs it
// with zerolog so every event carries a level and a timestamp instead of
// a string prefix.
type Zerolog struct {
	l     zerolog.Logger
	debug bool
}

// New builds a Zerolog logger writing to w. When debug is false, Debugf
// calls are dropped before formatting to avoid paying for verbose
// argument construction on the hot UDP receive path.
func New(w io.Writer, debug bool) *Zerolog {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return &Zerolog{
		l:     zerolog.New(w).Level(level).With().Timestamp().Logger(),
		debug: debug,
	}
}

func (z *Zerolog) Debugf(format string, args ...interface{}) {
	if !z.debug {
		return
	}
	z.l.Debug().Msgf(format, args...)
}
func (z *Zerolog) Infof(format string, args ...interface{})  { z.l.Info().Msgf(format, args...) }
func (z *Zerolog) Warnf(format string, args ...interface{})  { z.l.Warn().Msgf(format, args...) }
func (z *Zerolog) Errorf(format string, args ...interface{}) { z.l.Error().Msgf(format, args...) }
