package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 300, cfg.IntervalSeconds)
	assert.Equal(t, 5*time.Minute, cfg.Interval())
	assert.Equal(t, "device_data.json", cfg.RegistryPath)
	assert.Equal(t, "availability_data.csv", cfg.LogPath)
	assert.Equal(t, 2*time.Second, cfg.ProbeTimeout())
	assert.Equal(t, 8, cfg.Probe.Concurrency)
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().IntervalSeconds, cfg.IntervalSeconds)
}

func TestLoadOverridesAndFillsGaps(t *testing.T) {
	path := writeConfig(t, `
interval_seconds: 60
registry_path: /var/lib/devmon/devices.json
probe:
  timeout_ms: 1000
  fallback_port: 0
http:
  addr: ":9090"
logging:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, time.Minute, cfg.Interval())
	assert.Equal(t, "/var/lib/devmon/devices.json", cfg.RegistryPath)
	assert.Equal(t, "availability_data.csv", cfg.LogPath)
	assert.Equal(t, time.Second, cfg.ProbeTimeout())
	assert.Equal(t, 80, cfg.Probe.FallbackPort)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadRejectsNegativeConcurrency(t *testing.T) {
	path := writeConfig(t, "probe:\n  concurrency: -2\n")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsSharedPaths(t *testing.T) {
	path := writeConfig(t, "registry_path: data.txt\nlog_path: data.txt\n")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "interval_seconds: [oops\n")

	_, err := Load(path)
	assert.ErrorContains(t, err, "parse config")
}
