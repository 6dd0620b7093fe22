package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"", zapcore.InfoLevel, false},
		{"info", zapcore.InfoLevel, false},
		{"DEBUG", zapcore.DebugLevel, false},
		{"warn", zapcore.WarnLevel, false},
		{"warning", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{" info ", zapcore.InfoLevel, false},
		{"verbose", zapcore.InfoLevel, true},
	}
	for _, tt := range tests {
		got, err := parseLevel(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseLevel(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseLevel(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseLevel(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestNewBuildsBothFormats(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		logger, err := New("debug", format)
		if err != nil {
			t.Fatalf("New(debug, %s): %v", format, err)
		}
		logger.Debug("logger constructed")
		_ = logger.Sync()
	}

	if _, err := New("nope", "json"); err == nil {
		t.Error("expected error for unknown level")
	}
}
