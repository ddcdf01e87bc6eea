package events_test

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/safe/internal/config"
	"github.com/TheMichaelB/safe/internal/events"
)

func TestNewLogger(t *testing.T) {
	cfg := &config.LogConfig{
		Level:  "debug",
		Format: "json",
		File:   filepath.Join(t.TempDir(), "safe.log"),
	}

	logger, err := events.NewLogger(cfg)
	require.NoError(t, err)
	assert.NotNil(t, logger)
	assert.True(t, logger.Enabled(events.DebugLevel))
}

func TestLoggerWithField(t *testing.T) {
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.InfoLevel, "json", &buf)

	logger.WithField("test_field", "test_value").Info("test message")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "test_value", entry["test_field"])
	assert.Equal(t, "test message", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "test-host", entry["hostname"])
}

func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.InfoLevel, "json", &buf)

	fields := map[string]interface{}{
		"path": "notes/report.pdf",
		"size": 42,
	}

	logger.WithFields(fields).Info("multi-field test")

	output := buf.String()
	assert.Contains(t, output, `"path":"notes/report.pdf"`)
	assert.Contains(t, output, `"size":42`)
	assert.Contains(t, output, `"msg":"multi-field test"`)
}

func TestLoggerRedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.DebugLevel, "json", &buf)

	logger.WithFields(map[string]interface{}{
		"password":      "correct-horse",
		"derived_key":   []byte{1, 2, 3},
		"plaintext_len": 10,
		"path":          "a.txt",
	}).Debug("redaction")

	output := buf.String()
	assert.NotContains(t, output, "correct-horse")
	assert.Contains(t, output, `"password":"[REDACTED]"`)
	assert.Contains(t, output, `"derived_key":"[REDACTED]"`)
	assert.Contains(t, output, `"path":"a.txt"`)
}

func TestLoggerLevels(t *testing.T) {
	tests := []struct {
		name      string
		logLevel  events.LogLevel
		msgLevel  events.LogLevel
		shouldLog bool
	}{
		{"debug logger, debug message", events.DebugLevel, events.DebugLevel, true},
		{"debug logger, info message", events.DebugLevel, events.InfoLevel, true},
		{"info logger, debug message", events.InfoLevel, events.DebugLevel, false},
		{"info logger, info message", events.InfoLevel, events.InfoLevel, true},
		{"error logger, warn message", events.ErrorLevel, events.WarnLevel, false},
		{"error logger, error message", events.ErrorLevel, events.ErrorLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := events.NewTestLogger(tt.logLevel, "text", &buf)

			switch tt.msgLevel {
			case events.DebugLevel:
				logger.Debug("test debug")
			case events.InfoLevel:
				logger.Info("test info")
			case events.WarnLevel:
				logger.Warn("test warn")
			case events.ErrorLevel:
				logger.Error("test error")
			}

			if tt.shouldLog {
				assert.NotEmpty(t, buf.String())
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestLoggerTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.InfoLevel, "text", &buf)

	logger.WithField("component", "store").WithField("alpha", 1).Info("test message")

	output := buf.String()
	assert.Contains(t, output, "[INFO]")
	assert.Contains(t, output, "test message")
	assert.Contains(t, output, "alpha=1 component=store")
	assert.NotContains(t, output, "\033[", "test writers are never colored")
}

func TestLoggerWithError(t *testing.T) {
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.InfoLevel, "json", &buf)

	logger.WithError(assert.AnError).Error("operation failed")

	output := buf.String()
	assert.Contains(t, output, `"error":"assert.AnError general error for testing"`)
	assert.Contains(t, output, `"msg":"operation failed"`)
	assert.Contains(t, output, `"level":"error"`)

	assert.Same(t, logger, logger.WithError(nil))
}

func TestLoggerConcurrentWrites(t *testing.T) {
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.InfoLevel, "json", &buf)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			logger.WithField("n", n).Info("concurrent")
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 20)
	for _, line := range lines {
		var entry map[string]interface{}
		assert.NoError(t, json.Unmarshal([]byte(line), &entry))
	}
}
