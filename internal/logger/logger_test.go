package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModuleLoggerLevels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		level     LogLevel
		logFunc   func(l Logger)
		wantEntry bool
	}{
		{"debug suppressed at info", LogLevelInfo, func(l Logger) { l.Debug("hidden") }, false},
		{"info shown at info", LogLevelInfo, func(l Logger) { l.Info("shown") }, true},
		{"trace shown at trace", LogLevelTrace, func(l Logger) { l.Trace("shown") }, true},
		{"warn suppressed at error", LogLevelError, func(l Logger) { l.Warn("hidden") }, false},
		{"explicit level honoured", LogLevelWarn, func(l Logger) { l.Log(LogLevelDebug, "hidden") }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			buf := &bytes.Buffer{}
			tt.logFunc(NewSlogLogger(buf, tt.level, time.UTC))
			assert.Equal(t, tt.wantEntry, buf.Len() > 0, "output: %q", buf.String())
		})
	}
}

func TestTraceLevelRendersAsTrace(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	NewSlogLogger(buf, LogLevelTrace, time.UTC).Trace("sql query")
	assert.Contains(t, buf.String(), "level=TRACE")
	assert.NotContains(t, buf.String(), "time=")
}

func TestWithAndModuleFields(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	base := NewSlogLogger(buf, LogLevelDebug, time.UTC)
	child := base.Module("collection").With(String("user_id", "u1"))
	child.Module("writer").Info("committed", Uint64("revision", 3), Float64("ratio", 0.123456))

	out := buf.String()
	assert.Contains(t, out, "module=collection.writer")
	assert.Contains(t, out, "user_id=u1")
	assert.Contains(t, out, "revision=3")
	assert.Contains(t, out, "ratio=0.123")
}

func TestWithContextAddsTraceID(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	l := NewSlogLogger(buf, LogLevelInfo, time.UTC)
	l.WithContext(WithTraceID(context.Background(), "req-42")).Info("handled")
	assert.Contains(t, buf.String(), "trace_id=req-42")

	buf.Reset()
	l.WithContext(context.Background()).Info("plain")
	assert.NotContains(t, buf.String(), "trace_id")
}

func TestCentralLoggerModuleFileOutput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", "api.log")

	cl, err := NewCentralLogger(&LoggingConfig{
		DefaultLevel: "info",
		Timezone:     "UTC",
		Console:      &ConsoleOutput{Enabled: false},
		ModuleOutputs: map[string]ModuleOutput{
			"api": {Enabled: true, FilePath: path, Level: "debug"},
		},
	})
	require.NoError(t, err)

	cl.Module("api").Debug("request", String("path", "/api/v1/records"))
	require.NoError(t, cl.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(data))), &entry))
	assert.Equal(t, "request", entry["msg"])
	assert.Equal(t, "api", entry["module"])
	assert.Equal(t, "/api/v1/records", entry["path"])
}

func TestNewCentralLoggerRejectsBadInput(t *testing.T) {
	t.Parallel()

	_, err := NewCentralLogger(nil)
	require.Error(t, err)

	_, err = NewCentralLogger(&LoggingConfig{Timezone: "Mars/Olympus_Mons"})
	require.Error(t, err)
}

func TestRedactSensitiveData(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "/identify?apikey=[REDACTED]", RedactSensitiveData("/identify?apikey=abcdef"))
	assert.Equal(t, "Authorization: Bearer [REDACTED]", RedactSensitiveData("Authorization: Bearer abc.def"))
	assert.Equal(t, "nothing here", RedactSensitiveData("nothing here"))
	assert.True(t, IsSensitiveKey("Password"))
	assert.False(t, IsSensitiveKey("email"))
}
