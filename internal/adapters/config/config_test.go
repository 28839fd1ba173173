package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, []string{"websocket", "polling"}, cfg.Socket.Transports)
	assert.Equal(t, 10, cfg.Socket.ReconnectionAttempts)
	assert.Equal(t, 1000, cfg.Socket.ReconnectionDelayMs)
	assert.Equal(t, 5000, cfg.Socket.ReconnectionDelayMaxMs)
	assert.Equal(t, 10, cfg.Notification.ToastDurationSeconds)
	assert.Equal(t, "/socket.io/", cfg.Socket.Path)
	assert.True(t, cfg.Notification.AudioEnabled)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "notifier.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
socket:
  url: https://api.example.test
  reconnection_attempts: 3
notification:
  push_permission: granted
`), 0o600))

	t.Setenv("TALAGAS_NOTIFIER_AUTH_API_KEY", "from-env")

	cfg, err := Load(File(file))
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.test", cfg.Socket.URL)
	assert.Equal(t, 3, cfg.Socket.ReconnectionAttempts)
	assert.Equal(t, "granted", cfg.Notification.PushPermission)
	assert.Equal(t, "from-env", cfg.Auth.APIKey)
	// untouched keys keep defaults
	assert.Equal(t, 5000, cfg.Socket.ReconnectionDelayMaxMs)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(File(filepath.Join(t.TempDir(), "absent.yaml")))
	assert.Error(t, err)
}

func TestStaticProvider(t *testing.T) {
	cfg := Defaults()
	p := NewStaticProvider(cfg)
	assert.Same(t, cfg, p.Get())
}
