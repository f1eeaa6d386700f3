package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestLevelFromString(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		" WARN ":  zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"info":    zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
		"verbose": zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := levelFromString(in); got != want {
			t.Errorf("levelFromString(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewHonoursLevel(t *testing.T) {
	log, err := New("error")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if log.Core().Enabled(zapcore.InfoLevel) {
		t.Error("info should be disabled at error level")
	}
	if !log.Core().Enabled(zapcore.ErrorLevel) {
		t.Error("error should be enabled at error level")
	}
}
