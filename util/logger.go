// Package util provides low-level helpers shared by all other packages.
package util

import (
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel controls output verbosity.
type LogLevel int

const (
	LogQuiet   LogLevel = 0
	LogNormal  LogLevel = 1
	LogVerbose LogLevel = 2
	LogDebug   LogLevel = 3
)

// Logger writes levelled messages through a zap core.  The printf-style
// API is kept so call sites read the same at every verbosity.
type Logger struct {
	level      LogLevel
	mu         sync.Mutex
	output     zapcore.WriteSyncer
	timestamps bool // if true, prepend wall-clock timestamps
	fields     []zap.Field
	sugar      *zap.SugaredLogger
}

// NewLogger returns a Logger that prints messages at or below the given
// verbosity (0 = quiet, 1 = normal, 2 = verbose, 3 = debug) to stderr.
func NewLogger(verbosity int) *Logger {
	l := &Logger{
		level:      LogLevel(verbosity),
		output:     zapcore.Lock(os.Stderr),
		timestamps: verbosity >= 3, // auto-enable timestamps in debug mode
	}
	l.rebuild()
	return l
}

// NewFileLogger is NewLogger writing to a size-rotated file instead of
// stderr.
func NewFileLogger(verbosity int, path string) *Logger {
	l := NewLogger(verbosity)
	l.SetOutput(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     28, // days
	})
	return l
}

// SetTimestamps enables or disables timestamp prefixes.
func (l *Logger) SetTimestamps(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.timestamps = on
	l.rebuild()
}

// SetOutput overrides the output writer (default: os.Stderr).
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = zapcore.AddSync(w)
	l.rebuild()
}

// Level returns the current log level.
func (l *Logger) Level() LogLevel { return l.level }

// With returns a child logger that tags every line with key=val.
func (l *Logger) With(key string, val interface{}) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	child := &Logger{
		level:      l.level,
		output:     l.output,
		timestamps: l.timestamps,
		fields:     append(append([]zap.Field(nil), l.fields...), zap.Any(key, val)),
	}
	child.rebuild()
	return child
}

// Sync flushes buffered output.
func (l *Logger) Sync() error { return l.current().Sync() }

// Info prints when verbosity ≥ 1.
func (l *Logger) Info(format string, args ...interface{}) {
	if l.level >= LogNormal {
		l.current().Infof(format, args...)
	}
}

// Warn prints when verbosity ≥ 1.
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.level >= LogNormal {
		l.current().Warnf(format, args...)
	}
}

// Verbose prints when verbosity ≥ 2.
func (l *Logger) Verbose(format string, args ...interface{}) {
	if l.level >= LogVerbose {
		l.current().Debugf(format, args...)
	}
}

// Debug prints when verbosity ≥ 3.  Lines carry a trace marker so they
// can be told apart from Verbose output.
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.level >= LogDebug {
		l.current().Debugf("trace: "+format, args...)
	}
}

// Error always prints regardless of verbosity.
func (l *Logger) Error(format string, args ...interface{}) {
	l.current().Errorf(format, args...)
}

func (l *Logger) current() *zap.SugaredLogger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sugar
}

// rebuild recreates the zap core; callers hold l.mu (or own l exclusively).
func (l *Logger) rebuild() {
	enc := zapcore.EncoderConfig{
		LevelKey:         "level",
		MessageKey:       "msg",
		EncodeLevel:      bracketLevel,
		EncodeTime:       zapcore.TimeEncoderOfLayout("15:04:05.000"),
		ConsoleSeparator: " ",
	}
	if l.timestamps {
		enc.TimeKey = "ts"
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), l.output, zapcore.DebugLevel)
	l.sugar = zap.New(core).With(l.fields...).Sugar()
}

// bracketLevel renders levels as [ERR], [WRN], [INF], [DBG].
func bracketLevel(lvl zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	var s string
	switch lvl {
	case zapcore.DebugLevel:
		s = "DBG"
	case zapcore.InfoLevel:
		s = "INF"
	case zapcore.WarnLevel:
		s = "WRN"
	default:
		s = "ERR"
	}
	enc.AppendString(fmt.Sprintf("[%s]", s))
}
