package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func resetLogging(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	Configure("text", LogLevelInfo, nil)
	SetOutput(&buf)
	t.Cleanup(func() {
		Configure("text", LogLevelInfo, nil)
	})
	return &buf
}

func TestTextHandlerIncludesComponentAndAttrs(t *testing.T) {
	buf := resetLogging(t)

	Get(Allocator).With("zone_id", 3).Info("Segment selected", "segment_id", 9)

	line := buf.String()
	if !strings.Contains(line, "[allocator]") {
		t.Fatalf("missing component in %q", line)
	}
	if !strings.Contains(line, "Segment selected zone_id=3 segment_id=9") {
		t.Fatalf("unexpected line %q", line)
	}
}

func TestComponentLevelOverridesDefault(t *testing.T) {
	buf := resetLogging(t)

	Get(Store).Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug line written at info level: %q", buf.String())
	}

	SetComponentLevel(Store, LogLevelDebug)
	Get(Store).Debug("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("expected debug line after override, got %q", buf.String())
	}

	ClearComponentLevel(Store)
	buf.Reset()
	Get(Store).Debug("hidden again")
	if buf.Len() != 0 {
		t.Fatalf("debug line written after clearing override: %q", buf.String())
	}
}

func TestGroupInheritsParentLevel(t *testing.T) {
	buf := resetLogging(t)
	SetComponentLevel(API, LogLevelDebug)

	Get(API).WithGroup("http").Debug("request")
	if !strings.Contains(buf.String(), "[api.http]") {
		t.Fatalf("expected nested component, got %q", buf.String())
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	Configure("json", LogLevelInfo, map[string]LogLevel{Pool: LogLevelWarn})
	SetOutput(&buf)
	t.Cleanup(func() { Configure("text", LogLevelInfo, nil) })

	Get(Pool).Info("dropped")
	Get(Pool).Warn("kept", "zone_id", 1)

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("output is not a single JSON record: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "kept" || rec["component"] != Pool {
		t.Fatalf("unexpected record %v", rec)
	}
}

func TestWithScopeSkipsZeroValues(t *testing.T) {
	buf := resetLogging(t)

	WithScope(Get(Scope), ScopeAttrs{ZoneID: 2, Type: "virtual"}).Info("scoped")

	line := buf.String()
	if !strings.Contains(line, "zone_id=2") || !strings.Contains(line, "type=virtual") {
		t.Fatalf("missing scope attrs in %q", line)
	}
	if strings.Contains(line, "pod_id") || strings.Contains(line, "account_id") {
		t.Fatalf("zero attrs should be omitted: %q", line)
	}
}

func TestTextQuotesAndFlattensGroups(t *testing.T) {
	buf := resetLogging(t)

	Get(API).Info("Request failed",
		"error", "no available network segment",
		slog.Group("req", "method", "POST", "path", "/api/v1/segments"),
	)

	line := buf.String()
	if !strings.Contains(line, `error="no available network segment"`) {
		t.Fatalf("value with spaces not quoted: %q", line)
	}
	if !strings.Contains(line, "req.method=POST req.path=/api/v1/segments") {
		t.Fatalf("group not flattened: %q", line)
	}
}

func TestParseLevel(t *testing.T) {
	if DefaultLevel() != LogLevelInfo {
		t.Fatalf("default level = %s, want info", DefaultLevel())
	}
	Configure("text", "warning", nil)
	t.Cleanup(func() { Configure("text", LogLevelInfo, nil) })
	if DefaultLevel() != LogLevelWarn {
		t.Fatalf("level = %s, want warn", DefaultLevel())
	}
}
