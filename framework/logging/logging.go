// Package logging builds the zap logger used by the container and the
// inspector.
package logging

import (
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/km-arc/lightcontainer/framework/config"
)

// ANSI color codes for console logging
const (
	reset      = "\033[0m"
	debugColor = "\033[36m"
	infoColor  = "\033[32m"
	warnColor  = "\033[33m"
	errorColor = "\033[31m"
	fatalColor = "\033[35m"
)

// Option configures New.
type Option func(*options)

type options struct {
	out io.Writer
}

// WithOutput writes log entries to w instead of stdout.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.out = w }
}

// New returns a JSON logger when cfg.Format is "json" and a colored console
// logger otherwise.
func New(cfg config.LogConfig, opts ...Option) *zap.Logger {
	o := options{out: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}

	level := ParseLevel(cfg.Level)
	var encoder zapcore.Encoder
	if strings.EqualFold(cfg.Format, "json") {
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	} else {
		encoder = zapcore.NewConsoleEncoder(consoleEncoderConfig())
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(o.out), zap.NewAtomicLevelAt(level))
	return zap.New(core, zap.AddCaller())
}

// ParseLevel maps a level name to a zap level. Unknown names are info.
func ParseLevel(name string) zapcore.Level {
	switch strings.ToLower(name) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	}
	return zapcore.InfoLevel
}

func consoleEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    colorLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

func colorLevelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	var color string
	switch level {
	case zapcore.DebugLevel:
		color = debugColor
	case zapcore.InfoLevel:
		color = infoColor
	case zapcore.WarnLevel:
		color = warnColor
	case zapcore.ErrorLevel:
		color = errorColor
	case zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		color = fatalColor
	default:
		color = reset
	}
	enc.AppendString(color + level.CapitalString() + reset)
}
