package logger

import (
	"context"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls where and how log entries are written.
type Options struct {
	Level string
	// Format is "json" (default) or "text".
	Format string
	// File enables size based rotation through lumberjack when set.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	// Stdout keeps writing to stdout in addition to File.
	Stdout bool
	// Stderr replaces stdout with stderr, for processes whose stdout
	// carries a protocol.
	Stderr bool
}

// LogrusLogger wraps a logrus logger to implement the Logger interface.
type LogrusLogger struct {
	logger *logrus.Logger
	entry  *logrus.Entry
	closer io.Closer
}

// NewLogrusLogger creates a JSON logger writing to stdout at the given level.
func NewLogrusLogger(level string) *LogrusLogger {
	return NewLogrusLoggerWithOptions(Options{Level: level})
}

// NewLogrusLoggerWithOptions creates a logger from opts.
func NewLogrusLoggerWithOptions(opts Options) *LogrusLogger {
	logger := logrus.New()
	if opts.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	var console io.Writer = os.Stdout
	if opts.Stderr {
		console = os.Stderr
	}
	out := console
	var closer io.Closer
	if opts.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		}
		closer = rotator
		out = rotator
		if opts.Stdout {
			out = io.MultiWriter(console, rotator)
		}
	}
	logger.SetOutput(out)

	logLevel, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	return &LogrusLogger{
		logger: logger,
		entry:  logrus.NewEntry(logger),
		closer: closer,
	}
}

// Close flushes and closes the rotating log file, if any.
func (l *LogrusLogger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

func (l *LogrusLogger) at(ctx context.Context, fields Fields) *logrus.Entry {
	entry := l.entry
	if ctx != nil {
		entry = entry.WithContext(ctx)
	}
	if len(fields) > 0 {
		entry = entry.WithFields(logrus.Fields(fields))
	}
	return entry
}

// Debug logs a debug-level message.
func (l *LogrusLogger) Debug(ctx context.Context, msg string, fields Fields) {
	l.at(ctx, fields).Debug(msg)
}

// Info logs an info-level message.
func (l *LogrusLogger) Info(ctx context.Context, msg string, fields Fields) {
	l.at(ctx, fields).Info(msg)
}

// Warn logs a warning-level message.
func (l *LogrusLogger) Warn(ctx context.Context, msg string, fields Fields) {
	l.at(ctx, fields).Warn(msg)
}

// Error logs an error-level message.
func (l *LogrusLogger) Error(ctx context.Context, msg string, fields Fields) {
	l.at(ctx, fields).Error(msg)
}

// WithField returns a new logger with the given field added.
func (l *LogrusLogger) WithField(key string, value interface{}) Logger {
	return &LogrusLogger{
		logger: l.logger,
		entry:  l.entry.WithField(key, value),
		closer: l.closer,
	}
}

// WithFields returns a new logger with the given fields added.
func (l *LogrusLogger) WithFields(fields Fields) Logger {
	return &LogrusLogger{
		logger: l.logger,
		entry:  l.entry.WithFields(logrus.Fields(fields)),
		closer: l.closer,
	}
}
