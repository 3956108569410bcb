package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "promise-engine", cfg.App.Name)
	assert.Equal(t, "promises.db", cfg.Database.Path)
	assert.Equal(t, 4, cfg.Pool.Size)
	assert.Equal(t, time.Hour, cfg.Pool.DefaultTimeout)
	assert.Equal(t, time.Second, cfg.Scheduler.Tick)
	assert.Equal(t, 30*time.Second, cfg.Resolver.PollInterval)
	assert.True(t, cfg.Resolver.FailDependents)
	assert.Equal(t, 30*time.Second, cfg.Retry.InitialDelay)
	assert.Equal(t, 15*time.Minute, cfg.Retry.MaxDelay)
	assert.Equal(t, 2.0, cfg.Retry.Multiplier)
	assert.Equal(t, 5*time.Minute, cfg.Recovery.ScanInterval)
	assert.Equal(t, 30*time.Minute, cfg.Recovery.StallAfter)
	assert.Equal(t, 30*24*time.Hour, cfg.Recovery.Retention)
	assert.False(t, cfg.NATS.Enabled)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	contents := `
database:
  path: /var/lib/promises.db
pool:
  size: 8
  default_timeout: 10m
  task_timeouts:
    shell_command: 2m
resolver:
  poll_interval: 5s
  fail_dependents: false
nats:
  enabled: true
  url: nats://nats.internal:4222
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(contents), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/promises.db", cfg.Database.Path)
	assert.Equal(t, 8, cfg.Pool.Size)
	assert.Equal(t, 10*time.Minute, cfg.Pool.DefaultTimeout)
	assert.Equal(t, 2*time.Minute, cfg.Pool.TaskTimeouts["shell_command"])
	assert.Equal(t, 5*time.Second, cfg.Resolver.PollInterval)
	assert.False(t, cfg.Resolver.FailDependents)
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, "nats://nats.internal:4222", cfg.NATS.URL)

	// Unset keys keep their defaults
	assert.Equal(t, time.Second, cfg.Scheduler.Tick)
}
