// internal/observability/logger_test.go
package observability

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/voxtest/fauxmic/internal/config"
)

// syncBuffer adapts a strings.Builder into a zapcore.WriteSyncer so tests can
// inspect console output without touching the real stdout.
type syncBuffer struct {
	strings.Builder
}

func (s *syncBuffer) Sync() error { return nil }

var _ zapcore.WriteSyncer = (*syncBuffer)(nil)

func TestInitialize(t *testing.T) {
	t.Run("should initialize a console logger", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)

		buf := &syncBuffer{}
		Initialize(config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "TestService",
		}, buf)

		logger := GetLogger()
		logger.Info("This is a test message.")

		output := buf.String()
		assert.Contains(t, output, "INFO", "Output should contain the log level")
		assert.Contains(t, output, "This is a test message.", "Output should contain the message")
		assert.Contains(t, output, "TestService.", "Output should carry the service name")
	})

	t.Run("should emit structured JSON when configured", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)

		buf := &syncBuffer{}
		Initialize(config.LoggerConfig{
			Level:       "info",
			Format:      "json",
			ServiceName: "TestService",
		}, buf)

		GetLogger().Info("structured entry")

		line := strings.TrimSpace(buf.String())
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry), "JSON output must parse: %s", line)
		assert.Equal(t, "INFO", entry["level"])
		assert.Equal(t, "structured entry", entry["msg"])
	})

	t.Run("should respect the configured level", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)

		buf := &syncBuffer{}
		Initialize(config.LoggerConfig{
			Level:       "warn",
			Format:      "json",
			ServiceName: "TestService",
		}, buf)

		logger := GetLogger()
		logger.Info("should be filtered")
		logger.Warn("should appear")

		output := buf.String()
		assert.NotContains(t, output, "should be filtered")
		assert.Contains(t, output, "should appear")
	})

	t.Run("should fall back to info on an invalid level", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)

		buf := &syncBuffer{}
		Initialize(config.LoggerConfig{
			Level:       "not-a-level",
			Format:      "json",
			ServiceName: "TestService",
		}, buf)

		logger := GetLogger()
		logger.Debug("debug is below info")
		logger.Info("info passes")

		output := buf.String()
		assert.NotContains(t, output, "debug is below info")
		assert.Contains(t, output, "info passes")
	})

	t.Run("should only initialize once", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)

		first := &syncBuffer{}
		second := &syncBuffer{}
		Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "First"}, first)
		Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "Second"}, second)

		GetLogger().Info("single home")
		assert.Contains(t, first.String(), "single home")
		assert.Empty(t, second.String(), "A second Initialize must be a no-op")
	})

	t.Run("should tee entries into the rotating log file", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)

		logFile := filepath.Join(t.TempDir(), "harness.log")
		Initialize(config.LoggerConfig{
			Level:       "info",
			Format:      "console",
			ServiceName: "TestService",
			LogFile:     logFile,
			MaxSize:     1,
		}, &syncBuffer{})

		GetLogger().Info("file bound entry")
		Sync()

		contents, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(contents), "file bound entry")

		var entry map[string]interface{}
		line := strings.TrimSpace(strings.Split(string(contents), "\n")[0])
		require.NoError(t, json.Unmarshal([]byte(line), &entry), "File output must be JSON")
	})
}

func TestGetLoggerFallback(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	logger := GetLogger()
	require.NotNil(t, logger, "Fallback logger must never be nil")
	// The fallback must be usable without panicking.
	logger.Debug("fallback smoke test")
}
