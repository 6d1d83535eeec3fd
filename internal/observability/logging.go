// Package observability provides the shared zap loggers for the daemon
// and the CLI commands.
package observability

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logger for the daemon. JSON output, suitable
// for log aggregation.
var Logger = zap.NewNop()

// CLILogger is the logger for interactive commands. Console encoding,
// human-readable timestamps, writes to stderr so JSONL output on stdout
// stays clean.
var CLILogger = zap.NewNop()

// ParseLevel converts a config level string into a zap level.
func ParseLevel(level string) (zapcore.Level, error) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return l, nil
}

// InitLogger initializes the daemon logger at the given level.
func InitLogger(level string) error {
	l, err := ParseLevel(level)
	if err != nil {
		return err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(l)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	Logger = logger
	return nil
}

// InitCLILogger initializes the CLI logger at the given level.
func InitCLILogger(level string) error {
	l, err := ParseLevel(level)
	if err != nil {
		return err
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(l)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build CLI logger: %w", err)
	}

	CLILogger = logger
	return nil
}

// Sync flushes buffered log entries. Best-effort, called on shutdown.
func Sync() {
	_ = Logger.Sync()
	_ = CLILogger.Sync()
}
