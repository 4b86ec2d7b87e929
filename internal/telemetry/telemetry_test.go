package telemetry

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hkuds/ugate/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestInitLoggerFile(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	path := filepath.Join(t.TempDir(), "logs", "ugate.log")
	logger, closer, err := InitLogger(config.LoggingConfig{Level: "warn", File: path, MaxSize: 1})
	if err != nil {
		t.Fatalf("InitLogger: %v", err)
	}

	logger.Info("dropped")
	logger.Warn("kept", "transport", "airtel")
	closer.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if strings.Contains(out, "dropped") {
		t.Error("info line written at warn level")
	}
	if !strings.Contains(out, `"transport":"airtel"`) {
		t.Errorf("log output = %q", out)
	}
}

func TestInitTracingDisabled(t *testing.T) {
	tracer, shutdown, err := InitTracing(context.Background(), config.TracingConfig{}, "test")
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	defer shutdown()

	_, span := tracer.Start(context.Background(), "noop")
	if span.SpanContext().IsValid() {
		t.Error("disabled tracing produced a recording span")
	}
	span.End()
}
