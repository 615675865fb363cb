// Package logging builds the structured logger shared by the engine and
// the CLI.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LevelEnv overrides the level chosen by New.
const LevelEnv = "COURIER_LOG_LEVEL"

// New returns a JSON logger writing to stderr at info level, or debug when
// verbose is set. COURIER_LOG_LEVEL, when present, wins over both.
func New(verbose bool) (*zap.Logger, error) {
	level, err := Level(verbose)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.Sampling = nil
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// Level resolves the log level from the environment and the verbose flag.
func Level(verbose bool) (zapcore.Level, error) {
	if s := os.Getenv(LevelEnv); s != "" {
		level, err := zapcore.ParseLevel(s)
		if err != nil {
			return zapcore.InfoLevel, fmt.Errorf("failed to parse %s: %w", LevelEnv, err)
		}
		return level, nil
	}

	if verbose {
		return zapcore.DebugLevel, nil
	}
	return zapcore.InfoLevel, nil
}
