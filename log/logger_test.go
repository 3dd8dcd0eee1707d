package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid log line %q: %v", line, err)
		}
		out = append(out, entry)
	}
	return out
}

func TestLogger_RunContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("20260829_1200").WithOutput(&buf)

	logger.Info("run started", map[string]any{"theme": "halloween"})

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e["run_id"] != "20260829_1200" {
		t.Errorf("missing run context: %v", e)
	}
	if e["message"] != "run started" {
		t.Errorf("unexpected message %v", e["message"])
	}
	if e["level"] != "info" {
		t.Errorf("unexpected level %v", e["level"])
	}
	fields, ok := e["fields"].(map[string]any)
	if !ok || fields["theme"] != "halloween" {
		t.Errorf("unexpected fields %v", e["fields"])
	}
}

func TestLogger_EmptyRunID(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("").WithOutput(&buf)

	logger.Warn("no run yet", nil)

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if _, ok := entries[0]["run_id"]; ok {
		t.Error("run_id should be absent without a run")
	}
}

func TestSugaredLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("r1").WithOutput(&buf)

	logger.Sugar().Infof("fetched %d pages", 3)

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0]["message"] != "fetched 3 pages" {
		t.Errorf("unexpected message %v", entries[0]["message"])
	}
}
