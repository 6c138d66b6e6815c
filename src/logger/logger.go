package logger

import (
	"io"
	"os"
	"strings"

	"stock-exchange/src/models"

	"github.com/sirupsen/logrus"
)

// -----------------------------------------------------------------------------

// Logger is a named component logger with printf-style methods.
type Logger struct {
	name  string
	entry *logrus.Entry
}

// -----------------------------------------------------------------------------

// NewLogger creates a new Logger instance. config may be *models.MConfig, in which case
// its log_level is honoured; anything else logs at INFO.
func NewLogger(config interface{}, name string) *Logger {
	base := logrus.New()
	base.SetOutput(os.Stdout)
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	base.SetLevel(logrus.InfoLevel)

	if cfg, ok := config.(*models.MConfig); ok && cfg != nil {
		base.SetLevel(parseLevel(cfg.LogLevel))
	}

	return &Logger{
		name:  name,
		entry: base.WithField("component", name),
	}
}

// -----------------------------------------------------------------------------

// NewDiscardLogger returns a logger that writes nowhere. Used in tests.
func NewDiscardLogger(name string) *Logger {
	base := logrus.New()
	base.SetOutput(io.Discard)
	return &Logger{name: name, entry: base.WithField("component", name)}
}

// -----------------------------------------------------------------------------

func parseLevel(level string) logrus.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return logrus.DebugLevel
	case "WARNING", "WARN":
		return logrus.WarnLevel
	case "ERROR":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// -----------------------------------------------------------------------------

// Named derives a logger for a sub-component sharing the same backend.
func (l *Logger) Named(name string) *Logger {
	return &Logger{name: name, entry: l.entry.WithField("component", name)}
}

// -----------------------------------------------------------------------------

// Debug logs debugging messages
func (l *Logger) Debug(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

// -----------------------------------------------------------------------------

// Warning logs recoverable problems
func (l *Logger) Warning(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}

// -----------------------------------------------------------------------------

// Info logs informational messages
func (l *Logger) Info(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

// -----------------------------------------------------------------------------

// Error logs error messages
func (l *Logger) Error(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}

// -----------------------------------------------------------------------------

// Critical logs critical errors and exits the application
func (l *Logger) Critical(format string, args ...interface{}) {
	l.entry.Fatalf(format, args...)
}
