package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.MetricsAddr)
	assert.Equal(t, 30*time.Second, cfg.Requeue.NotReady)
	assert.Equal(t, 60*time.Second, cfg.Requeue.Error)
	assert.Equal(t, "exec", cfg.Kustomize.Mode)
	assert.Equal(t, 8, cfg.Sync.Concurrency)
}

func TestLoadPriority(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
metricsaddr: ":9090"
cache:
  dir: /var/cache/syncer
requeue:
  notready: 45s
kustomize:
  mode: builtin
`), 0o600))

	t.Setenv("SYNCER__REQUEUE__NOTREADY", "15s")
	t.Setenv("SYNCER__SYNC__CONCURRENCY", "2")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.String("metrics-addr", ":8080", "")
	fs.Bool("enable-leader-election", false, "")
	require.NoError(t, fs.Parse([]string{"--enable-leader-election"}))

	cfg, err := Load(path, fs, map[string]string{
		"metrics-addr":           "metricsaddr",
		"enable-leader-election": "leaderelection",
	})
	require.NoError(t, err)

	// file value survives because the flag was not set explicitly
	assert.Equal(t, ":9090", cfg.MetricsAddr)
	assert.True(t, cfg.LeaderElection)
	assert.Equal(t, "/var/cache/syncer", cfg.Cache.Dir)
	assert.Equal(t, 15*time.Second, cfg.Requeue.NotReady)
	assert.Equal(t, 2, cfg.Sync.Concurrency)
	assert.Equal(t, "builtin", cfg.Kustomize.Mode)
	// untouched defaults
	assert.Equal(t, 10*time.Minute, cfg.Requeue.ErrorMax)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil, nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	for _, test := range []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "kustomize mode", mutate: func(c *Config) { c.Kustomize.Mode = "docker" }},
		{name: "concurrency", mutate: func(c *Config) { c.Sync.Concurrency = 0 }},
		{name: "error max below error", mutate: func(c *Config) { c.Requeue.ErrorMax = time.Second }},
		{name: "cache dir", mutate: func(c *Config) { c.Cache.Dir = "" }},
		{name: "log level", mutate: func(c *Config) { c.LogLevel = "trace" }},
	} {
		cfg := Default()
		test.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", test.name)
		}
	}

	cfg := Default()
	assert.NoError(t, cfg.Validate())
}
