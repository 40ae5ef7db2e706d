package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edgard/webhookd/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	req := require.New(t)

	path := writeConfig(t, "webhook:\n  secret: s3cret\n")
	cfg, err := config.Load(path)
	req.NoError(err)

	req.Equal("info", cfg.Log.Level)
	req.Equal("json", cfg.Log.Format)
	req.Equal(":8080", cfg.Server.ListenAddr)
	req.Equal(10*time.Second, cfg.Server.ShutdownTimeout)
	req.Equal("webhookd.db", cfg.Database.Path)
	req.Equal(5*time.Second, cfg.Database.OpTimeout)
	req.Equal("s3cret", cfg.Webhook.Secret)
	req.False(cfg.Maintenance.Enabled)
	req.Equal("0 4 * * *", cfg.Maintenance.Schedule)
}

func TestLoadOverrides(t *testing.T) {
	req := require.New(t)

	path := writeConfig(t, `
log:
  level: debug
  format: text
server:
  listen_addr: ":9090"
database:
  path: /tmp/other.db
  op_timeout: 2s
webhook:
  secret: s3cret
maintenance:
  enabled: true
  schedule: "0 3 * * *"
`)
	cfg, err := config.Load(path)
	req.NoError(err)

	req.Equal("debug", cfg.Log.Level)
	req.Equal("text", cfg.Log.Format)
	req.Equal(":9090", cfg.Server.ListenAddr)
	req.Equal("/tmp/other.db", cfg.Database.Path)
	req.Equal(2*time.Second, cfg.Database.OpTimeout)
	req.True(cfg.Maintenance.Enabled)
	req.Equal("0 3 * * *", cfg.Maintenance.Schedule)
}

func TestLoadRequiresSecret(t *testing.T) {
	req := require.New(t)

	path := writeConfig(t, "log:\n  level: info\n")
	_, err := config.Load(path)
	req.Error(err)
	req.True(errors.Is(err, config.ErrConfiguration))
}

func TestLoadRejectsInvalidLevel(t *testing.T) {
	req := require.New(t)

	path := writeConfig(t, "log:\n  level: loud\nwebhook:\n  secret: s3cret\n")
	_, err := config.Load(path)
	req.Error(err)
	req.True(errors.Is(err, config.ErrConfiguration))
}

func TestLoadSecretFromEnv(t *testing.T) {
	req := require.New(t)
	t.Setenv("WEBHOOKD_WEBHOOK_SECRET", "from-env")

	path := writeConfig(t, "log:\n  level: info\n")
	cfg, err := config.Load(path)
	req.NoError(err)
	req.Equal("from-env", cfg.Webhook.Secret)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	req := require.New(t)
	t.Setenv("WEBHOOKD_WEBHOOK_SECRET", "from-env")

	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	req.NoError(err)
	req.Equal("info", cfg.Log.Level)
	req.Equal("from-env", cfg.Webhook.Secret)
}
