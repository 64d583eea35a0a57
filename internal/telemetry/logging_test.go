package telemetry

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLoggerWritesJSONL(t *testing.T) {
	dir := t.TempDir()
	logger, closer, err := NewLogger(dir, "info", true)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Info("pool drained", "pool", "interactive", "completed", 12)
	closer.Close()

	data, err := os.ReadFile(filepath.Join(dir, "logs", "governor.jsonl"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	line := string(data)
	if !strings.Contains(line, `"msg":"pool drained"`) {
		t.Errorf("missing message: %s", line)
	}
	if !strings.Contains(line, `"timestamp"`) {
		t.Errorf("time key not renamed: %s", line)
	}
	if !strings.Contains(line, `"component":"governor"`) {
		t.Errorf("missing component attr: %s", line)
	}
}

func TestLoggerRedactsSensitiveAttrs(t *testing.T) {
	dir := t.TempDir()
	logger, closer, err := NewLogger(dir, "debug", true)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Info("provider configured", "api_key", "abcd1234efgh5678ijkl")
	closer.Close()

	data, _ := os.ReadFile(filepath.Join(dir, "logs", "governor.jsonl"))
	if strings.Contains(string(data), "abcd1234efgh5678ijkl") {
		t.Fatal("api key leaked into log file")
	}
	if !strings.Contains(string(data), "[REDACTED]") {
		t.Fatal("expected redaction marker")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
