package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("POSTGRES_CONN", "postgres://market@localhost/market?sslmode=disable")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, "postgres://market@localhost/market?sslmode=disable", cfg.DB.DSN)
	require.Equal(t, "0.0.0.0:8080", cfg.Server.Address)
	require.Equal(t, 72*time.Hour, cfg.Workflow.HotAfter)
	require.Equal(t, 5*time.Second, cfg.Workflow.MutationLease)
	require.Equal(t, 15*time.Minute, cfg.Workflow.EmailLockTTL)
	require.Equal(t, 2*time.Minute, cfg.Worker.MailInterval)
	require.Equal(t, 20, cfg.Worker.CRMBatch)
	require.Equal(t, "INBOX", cfg.Mail.Mailbox)
	require.False(t, cfg.Redis.Enabled)
	require.False(t, cfg.CRM.Enabled)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte(`
database:
  dsn: postgres://file/market
server:
  address: ":9000"
workflow:
  hot_after: 48h
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))
	t.Setenv("MARKET_WORKER_CRM_BATCH", "5")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	require.Equal(t, "postgres://file/market", cfg.DB.DSN)
	require.Equal(t, ":9000", cfg.Server.Address)
	require.Equal(t, 48*time.Hour, cfg.Workflow.HotAfter)
	require.Equal(t, 5, cfg.Worker.CRMBatch)
}

func TestLoadConfigRequiresDSN(t *testing.T) {
	t.Setenv("POSTGRES_CONN", "")
	t.Setenv("MARKET_DATABASE_DSN", "")

	_, err := LoadConfig(t.TempDir())
	require.Error(t, err)
}
