package logger

import (
	"github.com/pion/logging"
	"github.com/rs/zerolog"
)

// PionLogger routes pion library logs through a Logger.
type PionLogger struct {
	log *Logger
}

// NewPionLogger returns a pion LoggerFactory that logs at level and above.
func NewPionLogger(root *Logger, level zerolog.Level) *PionLogger {
	l := root.Level(level)
	return &PionLogger{log: &Logger{logger: &l}}
}

// NewLogger implements logging.LoggerFactory.
func (p *PionLogger) NewLogger(scope string) logging.LeveledLogger {
	return pionScope{log: p.log.Extend(p.log.With().Str("mod", scope))}
}

type pionScope struct {
	log *Logger
}

func (p pionScope) Trace(msg string) { p.log.WithLevel(zerolog.TraceLevel).Msg(msg) }

func (p pionScope) Tracef(format string, args ...any) {
	p.log.WithLevel(zerolog.TraceLevel).Msgf(format, args...)
}

func (p pionScope) Debug(msg string) { p.log.Debug().Msg(msg) }

func (p pionScope) Debugf(format string, args ...any) { p.log.Debug().Msgf(format, args...) }

func (p pionScope) Info(msg string) { p.log.Info().Msg(msg) }

func (p pionScope) Infof(format string, args ...any) { p.log.Info().Msgf(format, args...) }

func (p pionScope) Warn(msg string) { p.log.Warn().Msg(msg) }

func (p pionScope) Warnf(format string, args ...any) { p.log.Warn().Msgf(format, args...) }

func (p pionScope) Error(msg string) { p.log.Error().Msg(msg) }

func (p pionScope) Errorf(format string, args ...any) { p.log.Error().Msgf(format, args...) }
