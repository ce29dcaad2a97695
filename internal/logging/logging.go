// Package logging provides structured logging for capsize built on zerolog.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger with capsize-specific configuration.
// A nil *Logger is valid and discards everything, so callers never need
// nil checks around optional logging.
type Logger struct {
	logger zerolog.Logger
}

// Config holds logging configuration.
type Config struct {
	Level  string    // debug, info, warn, error
	Format string    // json, console
	Output io.Writer // defaults to stderr
}

// New creates a new logger with the given configuration. Unknown levels
// fall back to info.
func New(cfg Config) *Logger {
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	logger := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()

	return &Logger{logger: logger}
}

// Disabled returns a logger that discards all output.
func Disabled() *Logger {
	return &Logger{logger: zerolog.New(io.Discard).Level(zerolog.Disabled)}
}

// WithSession adds a session ID field to the logger.
func (l *Logger) WithSession(sessionID string) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{logger: l.logger.With().Str("session_id", sessionID).Logger()}
}

// WithEncoder adds an encoder name field to the logger.
func (l *Logger) WithEncoder(encoder string) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{logger: l.logger.With().Str("encoder", encoder).Logger()}
}

// WithField adds an arbitrary field to the logger.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{logger: l.logger.With().Interface(key, value).Logger()}
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string) {
	if l == nil {
		return
	}
	l.logger.Debug().Msg(msg)
}

// Debugf logs a formatted debug message.
func (l *Logger) Debugf(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.logger.Debug().Msgf(format, args...)
}

// Info logs an info message.
func (l *Logger) Info(msg string) {
	if l == nil {
		return
	}
	l.logger.Info().Msg(msg)
}

// Infof logs a formatted info message.
func (l *Logger) Infof(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.logger.Info().Msgf(format, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string) {
	if l == nil {
		return
	}
	l.logger.Warn().Msg(msg)
}

// Warnf logs a formatted warning message.
func (l *Logger) Warnf(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.logger.Warn().Msgf(format, args...)
}

// Error logs an error message.
func (l *Logger) Error(msg string) {
	if l == nil {
		return
	}
	l.logger.Error().Msg(msg)
}

// Errorf logs a formatted error message.
func (l *Logger) Errorf(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.logger.Error().Msgf(format, args...)
}

// ErrorWithErr logs an error message with an attached error.
func (l *Logger) ErrorWithErr(msg string, err error) {
	if l == nil {
		return
	}
	l.logger.Error().Err(err).Msg(msg)
}

// LogPlan logs the resolved encode plan parameters.
func (l *Logger) LogPlan(videoKbps, audioKbps uint32, targetBytes uint64, encoder string, twoPass bool) {
	if l == nil {
		return
	}
	l.logger.Info().
		Uint32("video_kbps", videoKbps).
		Uint32("audio_kbps", audioKbps).
		Uint64("target_bytes", targetBytes).
		Str("encoder", encoder).
		Bool("two_pass", twoPass).
		Msg("Encode plan resolved")
}

// LogFallback logs an encoder fallback transition with its reason.
func (l *Logger) LogFallback(from, to, reason string) {
	if l == nil {
		return
	}
	l.logger.Warn().
		Str("from", from).
		Str("to", to).
		Str("reason", reason).
		Msg("Encoder fallback")
}

// LogHardware logs the outcome of hardware detection.
func (l *Logger) LogHardware(encoders, devices int, preferred string) {
	if l == nil {
		return
	}
	l.logger.Info().
		Int("encoders", encoders).
		Int("devices", devices).
		Str("preferred", preferred).
		Msg("Hardware detection complete")
}

// LogEncodeProgress logs an encoding progress sample.
func (l *Logger) LogEncodeProgress(percent float32, fps, speed float32) {
	if l == nil {
		return
	}
	l.logger.Debug().
		Float32("percent", percent).
		Float32("fps", fps).
		Float32("speed", speed).
		Msg("Encoding progress")
}
