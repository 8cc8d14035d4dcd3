package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelDebug, Output: &buf, JSON: true})
	require.NotNil(t, logger)

	t.Run("Levels", func(t *testing.T) {
		for _, msg := range []string{"debug msg", "info msg", "warn msg", "error msg"} {
			buf.Reset()
			switch msg {
			case "debug msg":
				logger.Debug(msg)
			case "info msg":
				logger.Info(msg)
			case "warn msg":
				logger.Warn(msg)
			default:
				logger.Error(msg)
			}
			assert.Contains(t, buf.String(), msg)
		}
	})

	t.Run("DynamicLevel", func(t *testing.T) {
		logger.SetLevel(LevelError)
		assert.Equal(t, LevelError, logger.GetLevel())

		buf.Reset()
		logger.Info("should not appear")
		assert.Zero(t, buf.Len(), "Logged info message when level was Error")

		logger.SetLevel(LevelDebug)
	})

	t.Run("WithComponent", func(t *testing.T) {
		buf.Reset()
		logger.WithComponent("compiler").Info("msg")
		assert.Contains(t, buf.String(), "compiler")
	})

	t.Run("With", func(t *testing.T) {
		buf.Reset()
		logger.With("service", "ssh").Info("msg")
		assert.Contains(t, buf.String(), `"service":"ssh"`)
	})

	t.Run("Audit", func(t *testing.T) {
		buf.Reset()
		logger.Audit("apply", "ruleset", map[string]any{"commands": 12})
		assert.Contains(t, buf.String(), "AUDIT")
		assert.Contains(t, buf.String(), "ruleset")
	})
}

func TestConsoleHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, Output: &buf})
	SetProcessName("ptables")

	logger.WithComponent("Backend").Warn("rule skipped", "service", "web server", "token", "example.invalid")

	line := buf.String()
	assert.Contains(t, line, "ptables[")
	assert.Contains(t, line, "[warn] backend: rule skipped")
	assert.Contains(t, line, `service="web server"`)
	assert.Contains(t, line, "token=example.invalid")
	assert.True(t, strings.HasSuffix(line, "\n"))
}

func TestConsoleHandlerGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, Output: &buf})

	logger.WithGroup("knock").Info("chain", "ports", 3)
	assert.Contains(t, buf.String(), "knock.ports=3")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"loud", LevelInfo, true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseLevel(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ptables.log")
	cfg := DefaultConfig()
	cfg.File = path

	New(cfg).Info("written to file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}

func TestDefaultLogger(t *testing.T) {
	require.NotNil(t, Default())

	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Output = &buf
	SetDefault(New(cfg))

	Debug("debug")
	Info("info")
	Warn("warn")
	Error("error")
	WithComponent("comp").Info("comp msg")

	assert.NotZero(t, buf.Len(), "Default logger captured no output")
}

func TestJSONLogParsing(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Output: &buf, JSON: true})

	l.Info("json test", "key", "value")

	var data map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &data))
	assert.Equal(t, "json test", data["msg"])
	assert.Equal(t, "value", data["key"])
	assert.Equal(t, "INFO", data["level"])
}

func TestDiscard(t *testing.T) {
	l := Discard()
	l.Error("nothing")
	assert.False(t, l.Enabled(context.Background(), LevelError))
}
