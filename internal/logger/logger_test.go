package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewKnownPresets(t *testing.T) {
	for _, preset := range []string{"", "console", "console-nocolor", "production", "development"} {
		log, level, err := New(preset, zapcore.InfoLevel)
		if err != nil {
			t.Fatalf("preset %q: %v", preset, err)
		}
		if log == nil {
			t.Fatalf("preset %q: expected non-nil logger", preset)
		}
		if level.Level() != zapcore.InfoLevel {
			t.Fatalf("preset %q: expected info level, got %v", preset, level.Level())
		}
	}
}

func TestNewUnrecognizedPresetFails(t *testing.T) {
	if _, _, err := New("not-a-real-preset", zapcore.InfoLevel); err == nil {
		t.Fatal("expected error for unrecognized preset")
	}
}

func TestAtomicLevelAdjustsRunningLogger(t *testing.T) {
	_, level, err := New("console", zapcore.InfoLevel)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	level.SetLevel(zapcore.DebugLevel)
	if level.Level() != zapcore.DebugLevel {
		t.Fatalf("expected debug level after SetLevel, got %v", level.Level())
	}
}
