// Package logger provides a structured logging solution using Zap.
// Records go to the console (colored, human-readable) and to a daily-rolling,
// size-capped log file that is buffered and flushed periodically.
package logger

import (
	"os"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

// File sink defaults.
const (
	DefaultFileName      = "lhmtester"
	DefaultMaxSizeMB     = 10
	DefaultMaxFiles      = 10
	DefaultFlushInterval = 150 * time.Millisecond
	defaultBufferSize    = 256 * 1024
)

// consoleTimeLayout renders timestamps as "10-16 14:03:59".
const consoleTimeLayout = "01-02 15:04:05"

// Options configures the logger.
type Options struct {
	// DevMode adds caller information and debug level.
	DevMode bool

	// Level is the minimum level (debug, info, warn, error).
	Level string

	// Dir is the log directory. Empty disables the file sink.
	Dir string

	// FileName is the log file base name, combined with the date.
	FileName string

	// MaxSizeMB caps a single log file.
	MaxSizeMB int

	// MaxFiles is the number of log files retained.
	MaxFiles int

	// FlushInterval is how often buffered file records are written out.
	FlushInterval time.Duration
}

// continueOnFatal lets fatal-severity records through without exiting:
// the caller decides whether a fault ends the process.
type continueOnFatal struct{}

func (continueOnFatal) OnWrite(*zapcore.CheckedEntry, []zapcore.Field) {}

// New creates the console + file logger. The returned cleanup function
// flushes buffered records and closes the log file.
func New(opts Options) (*zap.Logger, func() error, error) {
	level := zapcore.InfoLevel
	if opts.DevMode {
		level = zapcore.DebugLevel
	}
	if opts.Level != "" {
		if err := level.Set(strings.ToLower(opts.Level)); err != nil {
			return nil, nil, err
		}
	}

	colored := term.IsTerminal(int(os.Stdout.Fd()))
	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder(colored), zapcore.Lock(os.Stdout), level),
	}
	cleanup := func() error { return nil }

	if opts.Dir != "" {
		roller, err := newDailyRoller(opts.Dir, orDefault(opts.FileName, DefaultFileName),
			orDefaultInt(opts.MaxSizeMB, DefaultMaxSizeMB), orDefaultInt(opts.MaxFiles, DefaultMaxFiles))
		if err != nil {
			return nil, nil, err
		}

		flush := opts.FlushInterval
		if flush <= 0 {
			flush = DefaultFlushInterval
		}
		buffered := &zapcore.BufferedWriteSyncer{
			WS:            zapcore.AddSync(roller),
			Size:          defaultBufferSize,
			FlushInterval: flush,
		}

		cores = append(cores, zapcore.NewCore(consoleEncoder(false), buffered, level))
		cleanup = func() error {
			return multierr.Combine(buffered.Stop(), roller.Close())
		}
	}

	return zap.New(zapcore.NewTee(cores...), buildOptions(opts.DevMode)...), cleanup, nil
}

// NewWithWriter creates a logger that writes to a custom writer (useful for testing).
func NewWithWriter(devMode bool, writer zapcore.WriteSyncer) *zap.Logger {
	level := zapcore.InfoLevel
	if devMode {
		level = zapcore.DebugLevel
	}

	core := zapcore.NewCore(consoleEncoder(false), writer, level)
	return zap.New(core, buildOptions(devMode)...)
}

// Sync flushes any buffered log entries.
// Applications should take care to call Sync before exiting.
func Sync(logger *zap.Logger) {
	// Ignore sync errors on stdout/stderr as they're expected in some environments
	_ = logger.Sync()
}

// Fault logs msg at fatal severity without terminating the process, whatever
// fatal hook logger was built with.
func Fault(logger *zap.Logger, msg string, fields ...zap.Field) {
	if ce := logger.WithOptions(zap.WithFatalHook(continueOnFatal{})).Check(zapcore.FatalLevel, msg); ce != nil {
		ce.Write(fields...)
	}
}

func buildOptions(devMode bool) []zap.Option {
	opts := []zap.Option{zap.WithFatalHook(continueOnFatal{})}
	if devMode {
		opts = append(opts, zap.AddCaller())
	}
	return opts
}

func consoleEncoder(colored bool) zapcore.Encoder {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout(consoleTimeLayout)
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	if colored {
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.ConsoleSeparator = " "
	return zapcore.NewConsoleEncoder(cfg)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func orDefaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
