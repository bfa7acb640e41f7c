package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  slog.Level
	}{
		{"info", "info", slog.LevelInfo},
		{"debug", "debug", slog.LevelDebug},
		{"trace", "trace", LevelTrace},
		{"uppercase DEBUG", "DEBUG", slog.LevelDebug},
		{"mixed case Trace", "Trace", LevelTrace},
		{"unknown defaults to info", "verbose", slog.LevelInfo},
		{"empty defaults to info", "", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		name       string
		level      string
		logAtTrace bool
		logAtDebug bool
	}{
		{"info filters debug", "info", false, false},
		{"debug passes debug", "debug", false, true},
		{"trace passes trace", "trace", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(tt.level, &buf)

			logger.Log(t.Context(), LevelTrace, "trace message")
			if got := strings.Contains(buf.String(), "trace message"); got != tt.logAtTrace {
				t.Errorf("trace visible = %v, want %v (buf: %q)", got, tt.logAtTrace, buf.String())
			}

			buf.Reset()
			logger.Debug("debug message")
			if got := strings.Contains(buf.String(), "debug message"); got != tt.logAtDebug {
				t.Errorf("debug visible = %v, want %v (buf: %q)", got, tt.logAtDebug, buf.String())
			}
		})
	}
}

func TestNewLogger_TraceLabel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("trace", &buf)
	logger.Log(t.Context(), LevelTrace, "candidate")

	if !strings.Contains(buf.String(), "level=TRACE") {
		t.Errorf("expected level=TRACE label, got %q", buf.String())
	}
}

func TestNewJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger("info", &buf)
	logger.Info("allocation finished", "error", "12")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "allocation finished" {
		t.Errorf("msg = %v, want 'allocation finished'", entry["msg"])
	}
}

func TestNewDecisionLogger_InfoLevel(t *testing.T) {
	dir := t.TempDir()
	dl := NewDecisionLogger(dir, "info")

	if dl != nil {
		t.Error("expected nil DecisionLogger at info level")
	}

	// Nil logger should still be safe to use
	dl.Log(map[string]any{"event": "test"})
	dl.Close()

	if _, err := os.Stat(filepath.Join(dir, DecisionFileName)); err == nil {
		t.Error("decisions.jsonl should not exist at info level")
	}
}

func TestNewDecisionLogger_DebugLevel(t *testing.T) {
	dir := t.TempDir()
	dl := NewDecisionLogger(dir, "debug")
	defer dl.Close()

	dl.Log(map[string]any{"event": "refine_move", "tier": "D30", "change": 1})
	dl.Log(map[string]any{"event": "refine_stop"})

	data, err := os.ReadFile(filepath.Join(dir, DecisionFileName))
	if err != nil {
		t.Fatalf("failed to read decisions.jsonl: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), string(data))
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("failed to parse JSONL entry: %v", err)
	}
	if entry["event"] != "refine_move" {
		t.Errorf("event = %v, want refine_move", entry["event"])
	}
	if entry["tier"] != "D30" {
		t.Errorf("tier = %v, want D30", entry["tier"])
	}
	if _, ok := entry["time"]; !ok {
		t.Error("expected 'time' field in decision log entry")
	}
}

func TestDecisionWriter_DoesNotMutateEvent(t *testing.T) {
	var buf bytes.Buffer
	dl := NewDecisionWriter(&buf)

	event := map[string]any{"event": "x"}
	dl.Log(event)

	if _, ok := event["time"]; ok {
		t.Error("Log mutated caller's map")
	}
	if !dl.Enabled() {
		t.Error("Enabled() = false for writer-backed logger")
	}

	dl.Close()
	dl.Log(map[string]any{"event": "after close"})
	if strings.Contains(buf.String(), "after close") {
		t.Error("Log wrote after Close")
	}
}

func TestDecisionLogger_NilSafety(t *testing.T) {
	var dl *DecisionLogger
	dl.Log(map[string]any{"event": "test"})
	dl.Close()
	if dl.Enabled() {
		t.Error("nil logger reports Enabled")
	}
	if NewDecisionWriter(nil) != nil {
		t.Error("NewDecisionWriter(nil) should return nil")
	}
}
