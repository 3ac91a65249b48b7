package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, Options{Level: "info"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Info("task created", "name", "blink")

	if out := buf.String(); !strings.Contains(out, "task created") || !strings.Contains(out, "name=blink") {
		t.Fatalf("text output = %q", out)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, Options{Format: "JSON"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Info("halted", "ticks", 42)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "halted" || rec["ticks"] != float64(42) {
		t.Fatalf("record = %v", rec)
	}
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := New(&buf, Options{Level: "warn"})

	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info logged at warn level: %q", buf.String())
	}
}

func TestDebugOverridesLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := New(&buf, Options{Level: "error", Debug: true})

	logger.Debug("systick configured")
	if !strings.Contains(buf.String(), "systick configured") {
		t.Fatalf("debug record missing: %q", buf.String())
	}
}

func TestDiscardDropsErrors(t *testing.T) {
	if Discard().Enabled(context.Background(), slog.LevelError) {
		t.Fatalf("Discard() logger enabled at error level")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"off":     LevelOff,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v, want %v", in, got, err, want)
		}
	}
	if _, err := ParseLevel("bogus"); err == nil {
		t.Fatalf("ParseLevel(bogus) succeeded")
	}
}

func TestUnknownFormat(t *testing.T) {
	if _, err := New(nil, Options{Format: "xml"}); err == nil {
		t.Fatalf("New() accepted format xml")
	}
}
