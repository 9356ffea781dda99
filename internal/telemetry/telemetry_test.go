package telemetry

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogLevel(t *testing.T) {
	tests := []struct {
		env  string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Setenv("HYDROSIM_LOG_LEVEL", tt.env)
		if got := LogLevel(); got != tt.want {
			t.Errorf("LogLevel(%q) = %v, want %v", tt.env, got, tt.want)
		}
	}
}

func TestContextLogger(t *testing.T) {
	assert.Equal(t, slog.Default(), FromContext(context.Background()))

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	ctx := WithLogger(context.Background(), logger)
	WithUnit(FromContext(ctx), "soil").Info("hello")
	assert.Contains(t, buf.String(), "unit=soil")
}

func TestSetupLoggerJSON(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	t.Setenv("HYDROSIM_LOG_FORMAT", "json")
	var buf bytes.Buffer
	SetupLogger(&buf).Info("x", "k", 1)
	assert.True(t, strings.HasPrefix(buf.String(), "{"))
}

func TestWriteMetrics(t *testing.T) {
	CompileCache.WithLabelValues("hit").Inc()
	path := filepath.Join(t.TempDir(), "hydrosim.prom")
	require.NoError(t, WriteMetrics(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hydrosim_compile_cache_lookups_total")
}

func TestTracingExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := SetupTracing(&buf)
	require.NoError(t, err)

	_, span := StartRun(context.Background(), "bucket", "soil", 3, 10)
	EndSpan(span, errors.New("boom"))
	require.NoError(t, shutdown(context.Background()))

	assert.Contains(t, buf.String(), "bucket.Run")
	assert.Contains(t, buf.String(), "boom")
}
