// SPDX-License-Identifier: Apache-2.0

package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{in: "", want: slog.LevelInfo},
		{in: "debug", want: slog.LevelDebug},
		{in: "info", want: slog.LevelInfo},
		{in: "warn", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: "ERROR", want: slog.LevelError},
		{in: "unknown", want: slog.LevelInfo},
	}

	for _, tc := range cases {
		if got := parseLevel(tc.in); got != tc.want {
			t.Fatalf("parseLevel(%q): expected %v got %v", tc.in, tc.want, got)
		}
	}
}

func TestNewLoggerProdWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "prod", "info")
	logger.Info("checkpoint received", "workflow_id", "wf_1")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected json line, got %q: %v", buf.String(), err)
	}
	if entry["workflow_id"] != "wf_1" {
		t.Fatalf("expected workflow_id attribute, got %v", entry)
	}
}

func TestNewLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "dev", "warn")
	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line should be filtered at warn: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("expected warn line, got %q", out)
	}
}

func TestNewLogger(t *testing.T) {
	if logger := NewLogger("dev", "debug"); logger == nil {
		t.Fatal("expected dev logger")
	}
	if logger := NewLogger("prod", ""); logger == nil {
		t.Fatal("expected prod logger")
	}
}

func TestNewLoggerToWritesToGivenWriter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "prod", "debug")
	logger.Debug("cli step", "step", "gofmt")

	if !strings.Contains(buf.String(), `"step":"gofmt"`) {
		t.Fatalf("expected JSON log line in writer, got %q", buf.String())
	}
}
