package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew_DefaultsToInfoLevelOnBadInput(t *testing.T) {
	log, err := New(Config{Level: "not-a-level", Format: "json", OutputFile: "stdout"})
	require.NoError(t, err)
	require.True(t, log.Core().Enabled(zapcore.InfoLevel))
}

func TestNew_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	log, err := New(Config{Level: "debug", Format: "json", OutputFile: path})
	require.NoError(t, err)
	log.Info("hello")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "hello")
	require.Contains(t, string(data), "foliodb")
}

func TestNew_ConsoleFormat(t *testing.T) {
	_, err := New(Config{Level: "warn", Format: "console", OutputFile: "stderr"})
	require.NoError(t, err)
}
