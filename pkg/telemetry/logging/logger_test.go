package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v\n%s", err, buf.String())
	}
	return entry
}

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		level   string
		debug   bool
		info    bool
		wantErr bool
	}{
		{level: "debug", debug: true, info: true},
		{level: "info", info: true},
		{level: "", info: true},
		{level: "WARN"},
		{level: "verbose", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger, err := New(Config{Level: tt.level, Writer: &bytes.Buffer{}})
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error: %v", err)
			}
			ctx := context.Background()
			if got := logger.Enabled(ctx, slog.LevelDebug); got != tt.debug {
				t.Errorf("debug enabled = %v, want %v", got, tt.debug)
			}
			if got := logger.Enabled(ctx, slog.LevelInfo); got != tt.info {
				t.Errorf("info enabled = %v, want %v", got, tt.info)
			}
		})
	}
}

func TestNew_InvalidFormat(t *testing.T) {
	if _, err := New(Config{Format: "console"}); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Format: "text", Writer: &buf})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	logger.Info("hello", "tier", "Gold")
	if !strings.Contains(buf.String(), "tier=Gold") {
		t.Errorf("text output = %q", buf.String())
	}
}

func TestContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Writer: &buf})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx := WithDistributorID(context.Background(), 42)
	ctx = WithTriggerID(ctx, "msg-1")
	ctx = WithOperator(ctx, "alice")
	ctx = WithRequestID(ctx, "req-9")

	logger.With("component", "test").InfoContext(ctx, "resolved")
	entry := decodeLine(t, &buf)

	if entry["distributor_id"] != float64(42) {
		t.Errorf("distributor_id = %v", entry["distributor_id"])
	}
	for key, want := range map[string]string{
		"trigger_id": "msg-1",
		"operator":   "alice",
		"request_id": "req-9",
		"component":  "test",
	} {
		if entry[key] != want {
			t.Errorf("%s = %v, want %q", key, entry[key], want)
		}
	}
}

func TestContextGetters_Empty(t *testing.T) {
	ctx := context.Background()
	if _, ok := GetDistributorID(ctx); ok {
		t.Error("GetDistributorID found a value in an empty context")
	}
	if GetTriggerID(ctx) != "" || GetOperator(ctx) != "" || GetRequestID(ctx) != "" {
		t.Error("getters returned values from an empty context")
	}
}

func TestRedaction(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Writer: &buf})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	logger.Info("connecting",
		"dsn", "postgres://ascent:hunter2@db:5432/ascent",
		"password", "hunter2",
		"path", "data/ascent.db",
	)
	out := buf.String()
	if strings.Contains(out, "hunter2") {
		t.Errorf("secret leaked: %s", out)
	}
	if !strings.Contains(out, "data/ascent.db") {
		t.Errorf("ordinary attribute lost: %s", out)
	}
}

func TestRedactDSN(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"postgres://u:p@h/db", "postgres://u:[REDACTED]@h/db"},
		{"host=h user=u password=secret dbname=d", "host=h user=u password=[REDACTED] dbname=d"},
		{"file:data/ascent.db?_pragma=busy_timeout(5000)", "file:data/ascent.db?_pragma=busy_timeout(5000)"},
	}
	for _, tt := range tests {
		if got := RedactDSN(tt.in); got != tt.want {
			t.Errorf("RedactDSN(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
