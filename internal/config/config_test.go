package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, ":8000", cfg.Server.Listen)
	assert.Len(t, cfg.Server.AllowedOrigins, 6)
	assert.Equal(t, "python", cfg.Python.Interpreter)
	assert.Equal(t, 640, cfg.Camera.Width)
	assert.Equal(t, 480, cfg.Camera.Height)
	assert.Equal(t, 30, cfg.Camera.FrameRate)
	assert.Contains(t, cfg.Storage.CalibrationDir, filepath.Join("huggingface", "lerobot", "calibration"))
	assert.Equal(t, 30*time.Second, cfg.Hub.ParsedTimeout())
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8000", cfg.Server.Listen)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "openbot.yaml")
	data := []byte(`
server:
  listen: ":9090"
python:
  interpreter: /opt/venv/bin/python
camera:
  frame_rate: 15
hub:
  timeout: 5s
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Listen)
	assert.Equal(t, "/opt/venv/bin/python", cfg.Python.Interpreter)
	assert.Equal(t, 15, cfg.Camera.FrameRate)
	assert.Equal(t, 5*time.Second, cfg.Hub.ParsedTimeout())
	// Untouched sections keep their defaults.
	assert.Equal(t, 640, cfg.Camera.Width)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "openbot.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: ["), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("OPENBOT_LISTEN", "127.0.0.1:7777")
	t.Setenv("OPENBOT_PYTHON", "python3.11")
	t.Setenv("OPENBOT_LOG_LEVEL", "debug")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7777", cfg.Server.Listen)
	assert.Equal(t, "python3.11", cfg.Python.Interpreter)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "verbose"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Logging.Format = "xml"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Camera.FrameRate = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Server.Listen = ""
	assert.Error(t, cfg.Validate())
}

func TestHubTimeoutFallback(t *testing.T) {
	assert.Equal(t, 30*time.Second, HubConfig{Timeout: "nonsense"}.ParsedTimeout())
	assert.Equal(t, 30*time.Second, HubConfig{}.ParsedTimeout())
	assert.Equal(t, time.Minute, HubConfig{Timeout: "1m"}.ParsedTimeout())
}
