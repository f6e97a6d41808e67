package logger

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// StdOutLogger implements Logger using charmbracelet/log
type StdOutLogger struct {
	logger *log.Logger
}

// Ensure StdOutLogger implements the Logger interface
var _ Logger = (*StdOutLogger)(nil)

// NewStdOutLogger creates a logger writing to stdout at the given level,
// unknown levels fall back to info
func NewStdOutLogger(level string) *StdOutLogger {
	return NewWriterLogger(os.Stdout, level)
}

// NewWriterLogger creates a logger writing to w at the given level
func NewWriterLogger(w io.Writer, level string) *StdOutLogger {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}

	l := log.NewWithOptions(w, log.Options{
		Level:           lvl,
		ReportTimestamp: true,
		Prefix:          "modeltypes",
	})

	return &StdOutLogger{logger: l}
}

// SetStyles overrides the default charmbracelet styles
func (l *StdOutLogger) SetStyles(styles *log.Styles) {
	if styles != nil {
		l.logger.SetStyles(styles)
	}
}

func (l *StdOutLogger) Info(msg string, args ...any) {
	l.logger.Info(msg, args...)
}

func (l *StdOutLogger) Debug(msg string, args ...any) {
	l.logger.Debug(msg, args...)
}

func (l *StdOutLogger) Warn(msg string, args ...any) {
	l.logger.Warn(msg, args...)
}

func (l *StdOutLogger) Error(msg string, args ...any) {
	l.logger.Error(msg, args...)
}

func (l *StdOutLogger) With(args ...any) Logger {
	return &StdOutLogger{logger: l.logger.With(args...)}
}
