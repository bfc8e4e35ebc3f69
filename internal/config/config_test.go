package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/saludcampo/offlinesync/internal/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "offlinesync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Zero(t, cfg.Queue.MaxAttempts)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
data_dir: /var/lib/offlinesync
queue:
  max_attempts: 2
remote:
  dsn: postgres://app:secret@db:5432/salud
  connect_timeout: 5s
connectivity:
  check_interval: 10s
  max_check_backoff: 1m
scheduler:
  queue_interval: 30s
logging:
  level: debug
telemetry:
  otlp_endpoint: http://collector:4318
audit:
  enabled: false
  actor: promotor-12
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/offlinesync", cfg.DataDir)
	assert.Equal(t, 2, cfg.Queue.MaxAttempts)
	assert.Equal(t, "postgres://app:secret@db:5432/salud", cfg.Remote.DSN)
	assert.Equal(t, 5*time.Second, cfg.Remote.ConnectTimeout)
	assert.Equal(t, 10*time.Second, cfg.Connectivity.CheckInterval)
	assert.Equal(t, time.Minute, cfg.Connectivity.MaxCheckBackoff)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.QueueInterval)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "http://collector:4318", cfg.Telemetry.OTLPEndpoint)
	assert.Equal(t, "offlinesync", cfg.Telemetry.ServiceName, "unset keys keep defaults")
	assert.False(t, cfg.Audit.Enabled)
	assert.Equal(t, "promotor-12", cfg.Audit.Actor)
}

func TestLoadFromEnvPath(t *testing.T) {
	path := writeConfig(t, "data_dir: ./elsewhere\n")
	t.Setenv(EnvConfigPath, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "./elsewhere", cfg.DataDir)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "data_dir: ./from-file\n")
	t.Setenv("OFFLINESYNC_DATA_DIR", "/tmp/from-env")
	t.Setenv("OFFLINESYNC_REMOTE_DSN", "postgres://u:p@h/db")
	t.Setenv("OFFLINESYNC_LOG_LEVEL", "warn")
	t.Setenv("OFFLINESYNC_OTLP_ENDPOINT", "https://otel.example.com")
	t.Setenv("OFFLINESYNC_MAX_ATTEMPTS", "3")
	t.Setenv("OFFLINESYNC_AUDIT_ACTOR", "tablet-04")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "tablet-04", cfg.Audit.Actor)
	assert.True(t, cfg.Audit.Enabled, "audit stays enabled by default")
	assert.Equal(t, "/tmp/from-env", cfg.DataDir)
	assert.Equal(t, "postgres://u:p@h/db", cfg.Remote.DSN)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "https://otel.example.com", cfg.Telemetry.OTLPEndpoint)
	assert.Equal(t, 3, cfg.Queue.MaxAttempts)
}

func TestLoadErrors(t *testing.T) {
	t.Setenv(EnvConfigPath, "")

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, apperrors.Is(err, apperrors.ErrConfig), "missing file: %v", err)

	_, err = Load(writeConfig(t, "queue: [not, a, map]\n"))
	assert.True(t, apperrors.Is(err, apperrors.ErrConfig), "bad yaml: %v", err)

	t.Setenv("OFFLINESYNC_MAX_ATTEMPTS", "two")
	_, err = Load("")
	assert.True(t, apperrors.Is(err, apperrors.ErrConfig), "bad env: %v", err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty data dir", func(c *Config) { c.DataDir = " " }},
		{"negative max attempts", func(c *Config) { c.Queue.MaxAttempts = -1 }},
		{"zero connect timeout", func(c *Config) { c.Remote.ConnectTimeout = 0 }},
		{"zero check interval", func(c *Config) { c.Connectivity.CheckInterval = 0 }},
		{"backoff below interval", func(c *Config) { c.Connectivity.MaxCheckBackoff = time.Second }},
		{"zero queue interval", func(c *Config) { c.Scheduler.QueueInterval = 0 }},
		{"unknown log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}

	require.NoError(t, Default().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			assert.True(t, apperrors.Is(err, apperrors.ErrConfig), "got %v", err)
		})
	}
}

func TestMaskDSN(t *testing.T) {
	assert.Equal(t, "postgres://app:***@db:5432/salud", MaskDSN("postgres://app:secret@db:5432/salud"))
	assert.Equal(t, "postgres://app@db/salud", MaskDSN("postgres://app@db/salud"))
	assert.Equal(t, "", MaskDSN(""))

	cfg := Default()
	cfg.Remote.DSN = "postgres://app:secret@db/salud"
	assert.NotContains(t, cfg.String(), "secret")
	assert.Contains(t, cfg.String(), "app:***@db")
}
