package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LogLevelDebug},
		{"INFO", LogLevelInfo},
		{"warn", LogLevelWarn},
		{"warning", LogLevelWarn},
		{"error", LogLevelError},
		{"", LogLevelInfo},
		{"bogus", LogLevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: "info", Format: "json", Output: zapcore.AddSync(&buf)})

	l.Info("uploaded", Fields{"saved_as": "photo.jpg", "bytes": 12})

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not json: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "uploaded" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["saved_as"] != "photo.jpg" {
		t.Errorf("saved_as = %v", entry["saved_as"])
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v", entry["level"])
	}
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: "warn", Format: "json", Output: zapcore.AddSync(&buf)})

	l.Debug("hidden", nil)
	l.Info("hidden", nil)
	if buf.Len() != 0 {
		t.Fatalf("expected nothing below warn, got %q", buf.String())
	}

	l.Warn("shown", nil)
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("expected warn entry, got %q", buf.String())
	}
}

func TestLogger_WithContextAddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Format: "json", Output: zapcore.AddSync(&buf)})

	ctx := ContextWithRequestID(context.Background(), "abc123")
	l.WithContext(ctx).Info("hello", nil)

	if !strings.Contains(buf.String(), `"request_id":"abc123"`) {
		t.Fatalf("expected request_id in %q", buf.String())
	}
}

func TestNewRequestID(t *testing.T) {
	a := NewRequestID()
	b := NewRequestID()
	if len(a) != 32 {
		t.Fatalf("expected 32 chars, got %d (%q)", len(a), a)
	}
	if a == b {
		t.Fatal("expected distinct ids")
	}
	if RequestIDFromContext(context.Background()) != "" {
		t.Fatal("expected empty id on bare context")
	}
}
