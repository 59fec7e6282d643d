package logger

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func captureStdout(fn func()) string {
	orig := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w
	defer func() {
		os.Stdout = orig
	}()

	fn()

	_ = w.Close()
	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	_ = r.Close()
	return buf.String()
}

func TestInit_DevStd_TextOutput(t *testing.T) {
	out := captureStdout(func() {
		Init(Config{
			Service: "demo",
			Version: "v0.0.1",
			Env:     EnvDev,
			Backend: BackendStd,
			Level:   slog.LevelDebug,
		})
		slog.Info("hello realtime")
	})

	if strings.Contains(out, "{") && strings.Contains(out, "}") {
		t.Fatalf("expected text output in dev/std, got JSON: %s", out)
	}
	if !strings.Contains(out, "hello realtime") {
		t.Fatalf("message missing: %s", out)
	}
	if !strings.Contains(out, "service=demo") {
		t.Fatalf("service attr missing: %s", out)
	}
	if !strings.Contains(out, "env=dev") {
		t.Fatalf("env attr missing: %s", out)
	}
}

func TestInit_ProdZap_JSONOutput(t *testing.T) {
	out := captureStdout(func() {
		Init(Config{
			Service: "demo",
			Env:     EnvProd,
			Backend: BackendZap,
		})
		slog.Info("json please")
	})

	if !strings.Contains(out, "{") || !strings.Contains(out, `"msg"`) {
		t.Fatalf("expected JSON output in prod/zap: %s", out)
	}
	if !strings.Contains(out, "json please") {
		t.Fatalf("message missing: %s", out)
	}
}

func TestWith_AddsComponent(t *testing.T) {
	out := captureStdout(func() {
		Init(Config{Env: EnvDev, Backend: BackendStd})
		With("realtime").Info("component test")
	})

	if !strings.Contains(out, "component=realtime") {
		t.Fatalf("component attr missing: %s", out)
	}
}

func TestDetectEnv(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	if got := DetectEnv(); got != EnvProd {
		t.Fatalf("got %q, want prod", got)
	}
	t.Setenv("APP_ENV", "staging")
	if got := DetectEnv(); got != EnvStage {
		t.Fatalf("got %q, want stage", got)
	}
	t.Setenv("APP_ENV", "")
	if got := DetectEnv(); got != EnvDev {
		t.Fatalf("got %q, want dev", got)
	}
}
