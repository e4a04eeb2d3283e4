package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"

	"messagehub/internal/config"
)

func TestZapBackendWritesJSONWithCommonAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := Init(Config{
		Service: "demo",
		Env:     EnvProd,
		Backend: BackendZap,
		Output:  &buf,
	})
	log.Info("hello", slog.Int("n", 3))

	var m map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &m); err != nil {
		t.Fatalf("expected JSON, got %q: %v", buf.String(), err)
	}
	if m["msg"] != "hello" {
		t.Fatalf("msg mismatch: %v", m["msg"])
	}
	if m["service"] != "demo" || m["env"] != "prod" {
		t.Fatalf("common attrs missing: %v", m)
	}
	if m["n"] != float64(3) {
		t.Fatalf("attr n missing: %v", m)
	}
}

func TestStdBackendRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := Init(Config{Env: EnvDev, Level: slog.LevelWarn, Output: &buf})
	log.Info("dropped")
	log.Warn("kept")
	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("info record should be filtered: %s", out)
	}
	if !strings.Contains(out, "kept") {
		t.Fatalf("warn record missing: %s", out)
	}
}

func TestAttrsFromCtx(t *testing.T) {
	if attrs := AttrsFromCtx(context.Background()); attrs != nil {
		t.Fatalf("expected no attrs without span, got %v", attrs)
	}
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x01, 0x02},
		SpanID:     trace.SpanID{0x03},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	var buf bytes.Buffer
	log := Init(Config{Env: EnvProd, Backend: BackendStd, Output: &buf})
	log.InfoContext(ctx, "with trace", AttrsFromCtx(ctx)...)

	var m map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m["trace_id"] != sc.TraceID().String() || m["span_id"] != sc.SpanID().String() {
		t.Fatalf("trace attrs missing: %v", m)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "requests.log")
	w, err := RotatingFile(config.LogFile{Path: path, MaxSize: 1})
	if err != nil {
		t.Fatalf("RotatingFile: %v", err)
	}
	defer w.Close()
	if _, err := w.Write([]byte("line\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := RotatingFile(config.LogFile{}); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
