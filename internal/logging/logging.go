// Package logging builds the zap logger shared by osss-compose packages.
//
// Diagnostics go to stderr through a console encoder. Command results are
// not logged; they are printed to stdout by the cli package.
package logging

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls logger construction.
type Options struct {
	// Verbose lowers the level to Debug.
	Verbose bool

	// Output defaults to os.Stderr.
	Output io.Writer

	// Color enables ANSI level colours. The cli enables it when stderr is a
	// terminal.
	Color bool
}

// New returns a console logger.
func New(opts Options) *zap.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	level := zap.InfoLevel
	if opts.Verbose {
		level = zap.DebugLevel
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(EncoderConfig(opts.Color)),
		zapcore.Lock(zapcore.AddSync(out)),
		level,
	)

	logOpts := []zap.Option{zap.AddStacktrace(zapcore.PanicLevel)}
	if opts.Verbose {
		logOpts = append(logOpts, zap.AddCaller())
	}
	return zap.New(core, logOpts...).Named("osss-compose")
}

// EncoderConfig is the console encoder layout: short time, level, message,
// then fields.
func EncoderConfig(color bool) zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "T"
	cfg.LevelKey = "L"
	cfg.NameKey = ""
	cfg.CallerKey = "C"
	cfg.MessageKey = "M"
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	if color {
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return cfg
}

// OrNop returns l, or a no-op logger when l is nil. Constructors use it so
// callers may pass nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
