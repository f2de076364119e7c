package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenNoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "./data", cfg.LedgerDir)
	assert.Equal(t, ":9090", cfg.OpsListenAddr)
	assert.Equal(t, 10.0, cfg.RiskGuard.MaxDrawdownPct)
	require.Len(t, cfg.Agents, 3)
	assert.Equal(t, "fibo1", cfg.Agents[0].ID)
}

func TestLoadReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
log_level: debug
ledger_dir: /var/lib/g13
tick_period: 5s
agents:
  - id: fibo1
    login: 5001
    server: Demo-Server
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/var/lib/g13", cfg.LedgerDir)
	assert.Equal(t, int64(5001), cfg.Agents[0].Credentials.Login)
	assert.Equal(t, "Demo-Server", cfg.Agents[0].Credentials.Server)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
}
