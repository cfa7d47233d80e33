package logger

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// LogrusLogger implements the ports.Logger interface on top of logrus.
type LogrusLogger struct {
	logger *logrus.Logger
}

// LogLevel defines the logging level.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) logrus() logrus.Level {
	switch l {
	case LevelDebug:
		return logrus.DebugLevel
	case LevelWarn:
		return logrus.WarnLevel
	case LevelError:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// ParseLevel converts a string level to LogLevel.
func ParseLevel(levelStr string) LogLevel {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo // Default to Info
	}
}

// Options configures a LogrusLogger.
type Options struct {
	Level  LogLevel
	Output io.Writer // os.Stderr if nil
	JSON   bool      // JSON lines instead of text
}

// NewLogrusLogger creates a logger writing to os.Stderr with a text formatter.
func NewLogrusLogger(level LogLevel) *LogrusLogger {
	return NewLogrusLoggerWithOptions(Options{Level: level})
}

// NewLogrusLoggerWithOptions creates a logger from explicit options.
func NewLogrusLoggerWithOptions(opts Options) *LogrusLogger {
	l := logrus.New()
	l.SetLevel(opts.Level.logrus())
	if opts.Output != nil {
		l.SetOutput(opts.Output)
	} else {
		l.SetOutput(os.Stderr)
	}
	if opts.JSON {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05.000"})
	}
	return &LogrusLogger{logger: l}
}

func (l *LogrusLogger) entry(ctx context.Context, fields []map[string]interface{}) *logrus.Entry {
	e := l.logger.WithContext(ctx)
	if len(fields) > 0 && fields[0] != nil {
		e = e.WithFields(logrus.Fields(fields[0]))
	}
	return e
}

// Debug logs a message at Debug level.
func (l *LogrusLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.entry(ctx, fields).Debug(msg)
}

// Info logs a message at Info level.
func (l *LogrusLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.entry(ctx, fields).Info(msg)
}

// Warn logs a message at Warning level.
func (l *LogrusLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.entry(ctx, fields).Warn(msg)
}

// Error logs an error message at Error level.
func (l *LogrusLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	l.entry(ctx, fields).WithError(err).Error(msg)
}
