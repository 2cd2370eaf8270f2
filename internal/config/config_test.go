package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestDefaultConfig_AllFieldsPopulated(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, "info", cfg.Logging.LogLevel)
	assert.Equal(t, "auto", cfg.Logging.LogFormat)

	assert.Equal(t, "hdfs", cfg.Paths.Scheme)
	assert.Equal(t, "hdfs://localhost:8020", cfg.Paths.DefaultFS)

	assert.Equal(t, 10*time.Second, cfg.Repair.InitialDelayDuration())
	assert.Equal(t, time.Second, cfg.Repair.PeriodDuration())

	assert.Equal(t, []string{"localhost"}, cfg.Remote.Addresses)
	assert.Equal(t, 8038, cfg.Remote.RPCPort)
	assert.Equal(t, 200*time.Second, cfg.Remote.ConnectionTimeoutDuration())
	assert.Equal(t, 3, cfg.Remote.RPCRetryTotal)
	assert.Equal(t, 2, cfg.Remote.FullRetryTotal)
	assert.Equal(t, 8, cfg.Remote.PoolMaxTotal)
	assert.Equal(t, 8, cfg.Remote.PoolMaxIdle)
	assert.Equal(t, 0, cfg.Remote.PoolMinIdle)
	assert.True(t, cfg.Remote.Compress)

	assert.Empty(t, cfg.Catalog.DBPath)
	assert.Equal(t, time.Second, cfg.Catalog.PollIntervalDuration())
	assert.Equal(t, 100, cfg.Catalog.BatchSize)

	assert.Empty(t, cfg.Daemon.PIDFile)
	assert.Empty(t, cfg.Daemon.MetricsListen)
	assert.Equal(t, ":8038", cfg.Daemon.ServeListen)
}

func TestDefaultConfig_Valid(t *testing.T) {
	assert.NoError(t, Validate(DefaultConfig()))
}

func TestDefaultConfigPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")

	path := DefaultConfigPath()
	assert.Equal(t, "config.toml", filepath.Base(path))
	assert.Contains(t, path, appName)
}

func TestResolvePath_Precedence(t *testing.T) {
	assert.Equal(t, "/cli.toml", ResolvePath(EnvOverrides{ConfigPath: "/env.toml"}, CLIOverrides{ConfigPath: "/cli.toml"}))
	assert.Equal(t, "/env.toml", ResolvePath(EnvOverrides{ConfigPath: "/env.toml"}, CLIOverrides{}))
	assert.Equal(t, DefaultConfigPath(), ResolvePath(EnvOverrides{}, CLIOverrides{}))
}
