package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{LogLevel(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("LogLevel(%d).String() = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestLogging_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelInfo, &buf)

	Debug("Test", "debug message should be suppressed")
	Info("Test", "info message %d", 1)

	output := buf.String()
	if strings.Contains(output, "debug message") {
		t.Error("debug output should be filtered at info level")
	}
	if !strings.Contains(output, "info message 1") {
		t.Errorf("info output missing, got: %s", output)
	}
	if !strings.Contains(output, "subsystem=Test") {
		t.Errorf("subsystem attribute missing, got: %s", output)
	}
}

func TestLogging_ErrorAttribute(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelDebug, &buf)

	Error("Test", errTest, "operation failed")

	output := buf.String()
	if !strings.Contains(output, "boom") {
		t.Errorf("error attribute missing, got: %s", output)
	}
}

var errTest = errBoom{}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }
