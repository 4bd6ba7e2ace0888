package observability

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/soocke/pixel-auto/config"
)

func TestNewLogger_ConsoleLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(config.LogConfig{Level: "warn", Format: "console"}, zapcore.AddSync(&buf))
	logger.Info("hidden")
	logger.Warn("shown", zap.Int("x", 3))
	require.NoError(t, Sync(logger))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "pixel-auto")
}

func TestNewLogger_JSONWithFile(t *testing.T) {
	var buf bytes.Buffer
	file := filepath.Join(t.TempDir(), "logs", "pixel-auto.log")
	logger := NewLogger(config.LogConfig{Level: "bogus", Format: "json", File: file, MaxSize: 1}, zapcore.AddSync(&buf))
	logger.Debug("dropped")
	logger.Info("clicked", zap.Int("x", 960))
	require.NoError(t, Sync(logger))

	assert.Contains(t, buf.String(), `"msg":"clicked"`)
	assert.NotContains(t, buf.String(), "dropped")
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"x":960`)
}

func TestSync_Nil(t *testing.T) {
	assert.NoError(t, Sync(nil))
}
