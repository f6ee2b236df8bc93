// Package logger builds the zap.Logger the rest of the proxy logs
// through, grounded on the console-preset pattern swgp-go's logging
// package uses.
package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a zap.Logger for the given preset and level, plus the
// zap.AtomicLevel backing it so a config reload can adjust the level of
// an already-running logger (SPEC_FULL.md §4.9: log level is
// live-reloadable).
//
//   - "console" (default): colored, timestamped console output.
//   - "console-nocolor": same, without color; suited to log files.
//   - "production": zap's built-in production preset (JSON).
//   - "development": zap's built-in development preset.
func New(preset string, level zapcore.Level) (*zap.Logger, zap.AtomicLevel, error) {
	switch preset {
	case "", "console":
		al := zap.NewAtomicLevelAt(level)
		return newConsole(al, false), al, nil
	case "console-nocolor":
		al := zap.NewAtomicLevelAt(level)
		return newConsole(al, true), al, nil
	}

	var cfg zap.Config
	switch preset {
	case "production":
		cfg = zap.NewProductionConfig()
	case "development":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, zap.AtomicLevel{}, fmt.Errorf("logger: unrecognized preset %q", preset)
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	log, err := cfg.Build()
	return log, cfg.Level, err
}

func newConsole(level zap.AtomicLevel, noColor bool) *zap.Logger {
	ec := zapcore.EncoderConfig{
		TimeKey:        "T",
		LevelKey:       "L",
		NameKey:        "N",
		CallerKey:      "C",
		MessageKey:     "M",
		StacktraceKey:  "S",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalColorLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	if noColor {
		ec.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(ec), zapcore.Lock(os.Stderr), level)
	return zap.New(core)
}
