package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		env, level string
		enabled    zapcore.Level
		disabled   zapcore.Level
	}{
		{"prod", "warn", zapcore.WarnLevel, zapcore.InfoLevel},
		{"dev", "debug", zapcore.DebugLevel, zapcore.DebugLevel - 1},
		{"dev", "loud", zapcore.InfoLevel, zapcore.DebugLevel},
	}
	for _, tt := range tests {
		logger, err := New(tt.env, tt.level)
		if err != nil {
			t.Fatalf("New(%q, %q): %v", tt.env, tt.level, err)
		}
		if !logger.Core().Enabled(tt.enabled) {
			t.Errorf("%s/%s: %s should be enabled", tt.env, tt.level, tt.enabled)
		}
		if logger.Core().Enabled(tt.disabled) {
			t.Errorf("%s/%s: %s should be disabled", tt.env, tt.level, tt.disabled)
		}
	}
}
