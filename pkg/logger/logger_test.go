package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func resetGlobal(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		mu.Lock()
		globalLogger = zap.NewNop()
		mu.Unlock()
	})
}

func TestInitConfiguresGlobalLogger(t *testing.T) {
	resetGlobal(t)

	require.NoError(t, Init("debug"))
	require.True(t, Logger().Core().Enabled(zap.DebugLevel))
}

func TestInitFallsBackToInfo(t *testing.T) {
	resetGlobal(t)

	require.NoError(t, Init("chatty"))
	require.False(t, Logger().Core().Enabled(zap.DebugLevel))
	require.True(t, Logger().Core().Enabled(zap.InfoLevel))
}

func TestInitWithOptionsWritesToFile(t *testing.T) {
	resetGlobal(t)

	path := filepath.Join(t.TempDir(), "client.log")
	require.NoError(t, InitWithOptions(Options{
		Level:       "info",
		Encoding:    "console",
		OutputPaths: []string{path},
	}))

	Info("subscription opened", zap.String("user_id", "u-1"))
	_ = Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "subscription opened")
}

func TestWithModuleAttachesModuleField(t *testing.T) {
	resetGlobal(t)
	core, recorded := observer.New(zap.InfoLevel)
	globalLogger = zap.New(core)

	WithModule("guard").Info("decision")

	entries := recorded.All()
	require.Len(t, entries, 1)
	require.Equal(t, "guard", entries[0].ContextMap()["module"])
}

func TestReplaceRestoresPrevious(t *testing.T) {
	resetGlobal(t)

	core, logs := observer.New(zap.InfoLevel)
	restore := Replace(zap.New(core))
	Info("swapped")
	restore()
	Info("dropped")

	require.Equal(t, 1, logs.Len())
	require.Equal(t, "swapped", logs.All()[0].Message)
}
