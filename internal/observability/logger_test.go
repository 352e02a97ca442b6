// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/scenario-cli/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// -- Test Helper Functions --

// lockedBuffer is a goroutine-safe sink for the console core.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Sync() error { return nil }

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// initForTest resets the global logger and points the console core at a buffer.
func initForTest(t *testing.T, cfg config.LoggerConfig) *lockedBuffer {
	t.Helper()
	ResetForTest()
	t.Cleanup(ResetForTest)
	out := &lockedBuffer{}
	Initialize(cfg, zapcore.AddSync(out))
	return out
}

// -- Test Cases --

func TestInitialize(t *testing.T) {
	t.Run("console logger colorizes levels", func(t *testing.T) {
		out := initForTest(t, config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "TestService",
			Color:       true,
		})

		GetLogger().Info("iteration finished.")
		Sync()

		output := out.String()
		assert.Contains(t, output, "INFO")
		assert.Contains(t, output, "iteration finished.")
		assert.Contains(t, output, "TestService.")
		assert.Contains(t, output, "\x1b[")
		assert.Contains(t, output, "INFO\x1b[0m")
	})

	t.Run("console logger without color", func(t *testing.T) {
		out := initForTest(t, config.LoggerConfig{Level: "info", Format: "console"})

		GetLogger().Info("plain.")
		Sync()

		assert.Contains(t, out.String(), "INFO")
		assert.NotContains(t, out.String(), "\x1b[")
	})

	t.Run("json logger emits structured fields", func(t *testing.T) {
		out := initForTest(t, config.LoggerConfig{
			Level:       "info",
			Format:      "json",
			ServiceName: "JSONTest",
		})

		GetLogger().Warn("precondition failed.", zap.String("run_id", "abc"))
		Sync()

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(out.String()), &entry))
		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, "JSONTest", entry["logger"])
		assert.Equal(t, "precondition failed.", entry["msg"])
		assert.Equal(t, "abc", entry["run_id"])
	})

	t.Run("level filters debug lines", func(t *testing.T) {
		out := initForTest(t, config.LoggerConfig{Level: "info", Format: "json"})

		GetLogger().Debug("dispatching step.")
		Sync()

		assert.Empty(t, out.String())
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		out := initForTest(t, config.LoggerConfig{Level: "chatty", Format: "json"})

		GetLogger().Debug("hidden")
		GetLogger().Info("shown")
		Sync()

		assert.NotContains(t, out.String(), "hidden")
		assert.Contains(t, out.String(), "shown")
	})

	t.Run("writes to a log file if configured", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "run.log")
		initForTest(t, config.LoggerConfig{
			Level:   "debug",
			Format:  "console",
			LogFile: logFile,
			MaxSize: 1,
		})

		GetLogger().Error("screenshot captured.")
		Sync()

		content, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(content), "screenshot captured.")
		// The file core is always JSON.
		assert.Contains(t, string(content), `"level":"ERROR"`)
	})

	t.Run("only initializes once", func(t *testing.T) {
		out := initForTest(t, config.LoggerConfig{Level: "info", ServiceName: "First"})
		first := GetLogger()

		Initialize(config.LoggerConfig{Level: "debug", ServiceName: "Second"}, zapcore.AddSync(&lockedBuffer{}))
		second := GetLogger()

		assert.Same(t, first, second)
		second.Info("test")
		Sync()

		assert.Contains(t, out.String(), "First")
		assert.NotContains(t, out.String(), "Second")
	})
}

func TestGetLogger(t *testing.T) {
	t.Run("returns a fallback logger if not initialized", func(t *testing.T) {
		ResetForTest()
		assert.False(t, IsInitialized())
		require.NotNil(t, GetLogger())
	})

	t.Run("returns the global logger after initialization", func(t *testing.T) {
		initForTest(t, config.LoggerConfig{Level: "info", ServiceName: "GlobalTest"})
		assert.True(t, IsInitialized())
		assert.Same(t, globalLogger.Load(), GetLogger())
	})
}
