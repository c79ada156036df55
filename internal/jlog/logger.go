// Package jlog provides structured logging for jbridge using zap.
package jlog

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger with jbridge-specific helpers.
type Logger struct {
	*zap.Logger
	onTrace func(category, name, detail string)
}

var (
	// L is the global logger instance.
	L    *Logger
	once sync.Once
)

// Init initializes the global logger. Safe to call multiple times; only
// the first call takes effect.
func Init(debug bool) {
	once.Do(func() {
		L = New(debug)
	})
}

// New creates a new Logger instance.
func New(debug bool) *Logger {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		logger = zap.NewNop()
	}

	return &Logger{Logger: logger}
}

// NewNop creates a no-op logger, for tests.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// SetOnTrace installs a callback invoked alongside every Trace call.
func (l *Logger) SetOnTrace(fn func(category, name, detail string)) {
	l.onTrace = fn
}

// Trace logs a bridge event at debug level and forwards it to the trace
// callback if one is installed. This is the primary logging entry point
// for Components A-F.
func (l *Logger) Trace(category, name, detail string) {
	if l.onTrace != nil {
		l.onTrace(category, name, detail)
	}
	l.Debug("bridge",
		zap.String("cat", category),
		zap.String("op", name),
		zap.String("detail", detail),
	)
}

// WithCategory returns a logger with the category field preset.
func (l *Logger) WithCategory(category string) *Logger {
	return &Logger{
		Logger:  l.Logger.With(zap.String("cat", category)),
		onTrace: l.onTrace,
	}
}

// Class creates a class-name field.
func Class(name string) zap.Field { return zap.String("class", name) }

// Member creates a member-name field.
func Member(name string) zap.Field { return zap.String("member", name) }

// Handle creates a JNI handle field, hex-formatted.
func Handle(h uint64) zap.Field { return zap.String("handle", Hex(h)) }

// Hex formats a uint64 as a 0x-prefixed hex string.
func Hex(v uint64) string {
	const digits = "0123456789abcdef"
	if v == 0 {
		return "0x0"
	}
	buf := make([]byte, 16)
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = digits[v&0xf]
		v >>= 4
	}
	return "0x" + string(buf[i:])
}
