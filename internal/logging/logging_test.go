package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"FilingMonitor/internal/config"
)

func TestLevelFromString(t *testing.T) {
	t.Parallel()

	cases := map[string]slog.Level{
		"error":   slog.LevelError,
		"WARNING": slog.LevelWarn,
		" info ":  slog.LevelInfo,
		"":        slog.LevelDebug,
	}
	for in, want := range cases {
		if got := levelFromString(in); got != want {
			t.Fatalf("levelFromString(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewWritesJSONFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger := New(config.LoggingConfig{Level: "error", Dir: dir})
	logger.With("component", "test").Debug("file only", "filing_id", "F1")

	raw, err := os.ReadFile(filepath.Join(dir, logFileName))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}

	line := strings.TrimSpace(string(raw))
	var rec map[string]any
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, line)
	}
	if rec["component"] != "test" || rec["filing_id"] != "F1" {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestOrDiscard(t *testing.T) {
	t.Parallel()

	if OrDiscard(nil) == nil {
		t.Fatalf("expected discard logger")
	}
}
