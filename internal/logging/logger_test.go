package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestConfigureJSON(t *testing.T) {
	t.Cleanup(func() { SetLogger(nil) })

	var buf bytes.Buffer
	Configure(Config{Level: LevelDebug, Format: "json", Output: &buf})

	WithStatement("executor", "blog.selectAll").Debug("==> Preparing", "sql", "SELECT 1")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected json record, got %q: %v", buf.String(), err)
	}
	if record["component"] != "executor" || record["statement"] != "blog.selectAll" {
		t.Fatalf("unexpected record %v", record)
	}
}

func TestDefaultLoggerSkipsDebug(t *testing.T) {
	t.Cleanup(func() { SetLogger(nil) })

	var buf bytes.Buffer
	Configure(Config{Level: LevelWarn, Output: &buf})

	WithComponent("cache").Debug("hit ratio", "ratio", 0.5)
	WithCache("users").Warn("slow")

	out := buf.String()
	if strings.Contains(out, "hit ratio") {
		t.Fatalf("debug record should be filtered: %q", out)
	}
	if !strings.Contains(out, "cache=users") {
		t.Fatalf("expected cache attribute: %q", out)
	}
}

func TestLoggerNeverNil(t *testing.T) {
	SetLogger(nil)
	if Logger() == nil {
		t.Fatal("expected default logger")
	}
}
