package logging

import (
	"context"
	"io"
	"log"
	"log/slog"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// LevelTrace sits below slog's debug level so hclog trace output can be
// filtered independently.
const LevelTrace = slog.LevelDebug - 4

// NewHCLogger exposes a slog logger through hclog's interface for
// components built against hashicorp tooling.
func NewHCLogger(logger *slog.Logger) hclog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &slogAdapter{logger: logger}
}

type slogAdapter struct {
	logger  *slog.Logger
	name    string
	implied []interface{}
}

func (s *slogAdapter) isEnabled(level slog.Level) bool {
	return s.logger.Enabled(context.Background(), level)
}

func (s *slogAdapter) Log(level hclog.Level, msg string, args ...interface{}) {
	switch level {
	case hclog.Trace:
		s.Trace(msg, args...)
	case hclog.Debug:
		s.Debug(msg, args...)
	case hclog.Warn:
		s.Warn(msg, args...)
	case hclog.Error:
		s.Error(msg, args...)
	case hclog.Off:
	default:
		s.Info(msg, args...)
	}
}

func (s *slogAdapter) Trace(msg string, args ...interface{}) {
	if s.IsTrace() {
		s.logger.Log(context.Background(), LevelTrace, msg, args...)
	}
}

func (s *slogAdapter) Debug(msg string, args ...interface{}) {
	if s.IsDebug() {
		s.logger.Debug(msg, args...)
	}
}

func (s *slogAdapter) Info(msg string, args ...interface{}) {
	if s.IsInfo() {
		s.logger.Info(msg, args...)
	}
}

func (s *slogAdapter) Warn(msg string, args ...interface{}) {
	if s.IsWarn() {
		s.logger.Warn(msg, args...)
	}
}

func (s *slogAdapter) Error(msg string, args ...interface{}) {
	if s.IsError() {
		s.logger.Error(msg, args...)
	}
}

func (s *slogAdapter) IsTrace() bool { return s.isEnabled(LevelTrace) }
func (s *slogAdapter) IsDebug() bool { return s.isEnabled(slog.LevelDebug) }
func (s *slogAdapter) IsInfo() bool  { return s.isEnabled(slog.LevelInfo) }
func (s *slogAdapter) IsWarn() bool  { return s.isEnabled(slog.LevelWarn) }
func (s *slogAdapter) IsError() bool { return s.isEnabled(slog.LevelError) }

func (s *slogAdapter) ImpliedArgs() []interface{} {
	return s.implied
}

func (s *slogAdapter) With(args ...interface{}) hclog.Logger {
	implied := append(append([]interface{}(nil), s.implied...), args...)
	return &slogAdapter{
		logger:  s.logger.With(args...),
		name:    s.name,
		implied: implied,
	}
}

func (s *slogAdapter) Name() string {
	return s.name
}

// Named nests names with a dot, the way hclog's own loggers do.
func (s *slogAdapter) Named(name string) hclog.Logger {
	full := name
	if s.name != "" {
		full = s.name + "." + name
	}
	return &slogAdapter{
		logger:  s.logger.With("logger", full),
		name:    full,
		implied: s.implied,
	}
}

func (s *slogAdapter) ResetNamed(name string) hclog.Logger {
	return &slogAdapter{
		logger:  s.logger.With("logger", name),
		name:    name,
		implied: s.implied,
	}
}

func (s *slogAdapter) SetLevel(level hclog.Level) {}

func (s *slogAdapter) GetLevel() hclog.Level {
	switch {
	case s.isEnabled(LevelTrace):
		return hclog.Trace
	case s.isEnabled(slog.LevelDebug):
		return hclog.Debug
	case s.isEnabled(slog.LevelInfo):
		return hclog.Info
	case s.isEnabled(slog.LevelWarn):
		return hclog.Warn
	case s.isEnabled(slog.LevelError):
		return hclog.Error
	}
	return hclog.Off
}

func (s *slogAdapter) StandardLogger(opts *hclog.StandardLoggerOptions) *log.Logger {
	return log.New(s.StandardWriter(opts), "", 0)
}

func (s *slogAdapter) StandardWriter(opts *hclog.StandardLoggerOptions) io.Writer {
	level := slog.LevelInfo
	if opts != nil && opts.ForceLevel != hclog.NoLevel {
		level = toSlogLevel(opts.ForceLevel)
	}
	return &lineWriter{logger: s.logger, level: level}
}

type lineWriter struct {
	logger *slog.Logger
	level  slog.Level
}

func (w *lineWriter) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n")
	if msg != "" {
		w.logger.Log(context.Background(), w.level, msg)
	}
	return len(p), nil
}

func toSlogLevel(level hclog.Level) slog.Level {
	switch level {
	case hclog.Trace:
		return LevelTrace
	case hclog.Debug:
		return slog.LevelDebug
	case hclog.Warn:
		return slog.LevelWarn
	case hclog.Error:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
