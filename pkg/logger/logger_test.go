package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("WARNING"))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("nonsense"))
}

func TestSetLevel(t *testing.T) {
	Init(&Config{Level: "info", Format: "console", Output: "stderr"})
	assert.False(t, IsDebugEnabled())

	EnableDebug()
	assert.True(t, IsDebugEnabled())

	SetLevel("error")
	assert.False(t, IsDebugEnabled())
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "farm.log")
	Init(&Config{Level: "debug", Format: "json", Output: "file", FilePath: path, MaxSize: 1})

	Info("manager started", "workers", 4)
	Named("worker").Debugw("task received", "task", "t-1")
	Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "manager started")
	assert.Contains(t, string(data), `"workers":4`)
	assert.Contains(t, string(data), "task received")

	Init(nil)
}
