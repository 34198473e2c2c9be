package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected valid JSON log output, got error: %v\nraw output: %s", err, buf.String())
	}
	return entry
}

func TestSetup_ReturnsJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf, slog.LevelInfo)

	l.Info("test message", slog.String("key", "value"))

	entry := decode(t, &buf)
	if entry["msg"] != "test message" {
		t.Errorf("msg = %q, want %q", entry["msg"], "test message")
	}
	if entry["key"] != "value" {
		t.Errorf("key = %q, want %q", entry["key"], "value")
	}
	if _, ok := entry["time"]; !ok {
		t.Error("expected 'time' field in JSON log output")
	}
}

func TestSetup_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf, slog.LevelWarn)

	l.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("Info が Warn レベルで出力されました: %s", buf.String())
	}

	l.Warn("warning test")
	entry := decode(t, &buf)
	if entry["level"] != "WARN" {
		t.Errorf("level = %q, want %q", entry["level"], "WARN")
	}
}

func TestSetup_RedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf, slog.LevelInfo)

	l.Info("token issued",
		slog.String("external_id", "user_1"),
		slog.String("token", "eyJhbGciOiJIUzI1NiJ9.payload.sig"),
		slog.String("Authorization", "Bearer abc"),
	)

	if strings.Contains(buf.String(), "eyJhbGciOiJIUzI1NiJ9") || strings.Contains(buf.String(), "Bearer abc") {
		t.Fatalf("ログに秘密情報が含まれています: %s", buf.String())
	}
	entry := decode(t, &buf)
	if entry["token"] != redacted {
		t.Errorf("token = %v, want %q", entry["token"], redacted)
	}
	if entry["external_id"] != "user_1" {
		t.Errorf("external_id = %v, want %q", entry["external_id"], "user_1")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestMaskDatabaseURL(t *testing.T) {
	got := MaskDatabaseURL("postgres://codemeet:s3cret@db:5432/codemeet?sslmode=disable")
	if strings.Contains(got, "s3cret") {
		t.Errorf("パスワードがマスクされていません: %s", got)
	}
	if !strings.Contains(got, "codemeet:xxxxx@db:5432") {
		t.Errorf("MaskDatabaseURL = %q", got)
	}

	if got := MaskDatabaseURL("postgres://db:5432/codemeet"); got != "postgres://db:5432/codemeet" {
		t.Errorf("認証情報のないURLが変更されました: %s", got)
	}
}

func TestSetupDefault_SetsGlobalLogger(t *testing.T) {
	orig := slog.Default()
	t.Cleanup(func() { slog.SetDefault(orig) })

	var buf bytes.Buffer
	SetupDefault(&buf, "debug")

	slog.Default().Debug("global test", slog.String("test_key", "test_val"))

	entry := decode(t, &buf)
	if entry["msg"] != "global test" {
		t.Errorf("msg = %q, want %q", entry["msg"], "global test")
	}
	if entry["test_key"] != "test_val" {
		t.Errorf("test_key = %q, want %q", entry["test_key"], "test_val")
	}
}
