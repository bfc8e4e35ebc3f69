// Package config loads runtime configuration for the offline sync service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/saludcampo/offlinesync/internal/errors"
)

// EnvConfigPath names the config file when no path is given explicitly.
const EnvConfigPath = "OFFLINESYNC_CONFIG"

// Config is the full configuration tree.
type Config struct {
	DataDir      string             `yaml:"data_dir"`
	Queue        QueueConfig        `yaml:"queue"`
	Remote       RemoteConfig       `yaml:"remote"`
	Connectivity ConnectivityConfig `yaml:"connectivity"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	Logging      LoggingConfig      `yaml:"logging"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
	Audit        AuditConfig        `yaml:"audit"`
}

// QueueConfig controls the durable queue.
type QueueConfig struct {
	// MaxAttempts marks an entry FAILED once a failed attempt reaches it.
	// Zero retries forever.
	MaxAttempts int `yaml:"max_attempts"`
}

// RemoteConfig points at the remote relational store.
type RemoteConfig struct {
	DSN            string        `yaml:"dsn"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// ConnectivityConfig tunes the connectivity check loop.
type ConnectivityConfig struct {
	CheckInterval   time.Duration `yaml:"check_interval"`
	MaxCheckBackoff time.Duration `yaml:"max_check_backoff"`
}

// SchedulerConfig tunes background draining.
type SchedulerConfig struct {
	QueueInterval time.Duration `yaml:"queue_interval"`
}

// LoggingConfig sets the minimum log level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// TelemetryConfig configures the OTLP metrics exporter.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

// AuditConfig controls the audit events written for every record created
// in the remote store.
type AuditConfig struct {
	Enabled bool `yaml:"enabled"`
	// Actor is stored as the author of each event, e.g. the operator or
	// device id. Events without an actor are still recorded.
	Actor string `yaml:"actor"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		DataDir: "./data",
		Queue:   QueueConfig{MaxAttempts: 0},
		Remote: RemoteConfig{
			ConnectTimeout: 10 * time.Second,
		},
		Connectivity: ConnectivityConfig{
			CheckInterval:   15 * time.Second,
			MaxCheckBackoff: 2 * time.Minute,
		},
		Scheduler: SchedulerConfig{
			QueueInterval: time.Minute,
		},
		Logging: LoggingConfig{Level: "info"},
		Telemetry: TelemetryConfig{
			ServiceName: "offlinesync",
		},
		Audit: AuditConfig{Enabled: true},
	}
}

// Load reads path (or $OFFLINESYNC_CONFIG) over the defaults, applies
// environment overrides and validates the result. A missing path is not an
// error; the defaults are used.
func Load(path string) (Config, error) {
	cfg := Default()

	path = strings.TrimSpace(path)
	if path == "" {
		path = strings.TrimSpace(os.Getenv(EnvConfigPath))
	}
	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return Config{}, apperrors.Wrap(apperrors.ErrConfig, "read config", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, apperrors.Wrap(apperrors.ErrConfig, "unmarshal config", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := strings.TrimSpace(os.Getenv("OFFLINESYNC_DATA_DIR")); v != "" {
		c.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv("OFFLINESYNC_REMOTE_DSN")); v != "" {
		c.Remote.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("OFFLINESYNC_LOG_LEVEL")); v != "" {
		c.Logging.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("OFFLINESYNC_OTLP_ENDPOINT")); v != "" {
		c.Telemetry.OTLPEndpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("OFFLINESYNC_AUDIT_ACTOR")); v != "" {
		c.Audit.Actor = v
	}
	if v := strings.TrimSpace(os.Getenv("OFFLINESYNC_MAX_ATTEMPTS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrConfig, "OFFLINESYNC_MAX_ATTEMPTS", err)
		}
		c.Queue.MaxAttempts = n
	}
	return nil
}

// Validate performs semantic validation.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return apperrors.New(apperrors.ErrConfig, "data_dir required")
	}
	if c.Queue.MaxAttempts < 0 {
		return apperrors.Newf(apperrors.ErrConfig, "queue.max_attempts must be >=0, got %d", c.Queue.MaxAttempts)
	}
	if c.Remote.ConnectTimeout <= 0 {
		return apperrors.New(apperrors.ErrConfig, "remote.connect_timeout must be >0")
	}
	if c.Connectivity.CheckInterval <= 0 {
		return apperrors.New(apperrors.ErrConfig, "connectivity.check_interval must be >0")
	}
	if c.Connectivity.MaxCheckBackoff < c.Connectivity.CheckInterval {
		return apperrors.New(apperrors.ErrConfig, "connectivity.max_check_backoff must be >= check_interval")
	}
	if c.Scheduler.QueueInterval <= 0 {
		return apperrors.New(apperrors.ErrConfig, "scheduler.queue_interval must be >0")
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Level)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return apperrors.Newf(apperrors.ErrConfig, "logging.level %q unknown", c.Logging.Level)
	}
	return nil
}

// String renders the config as YAML with the DSN password masked.
func (c Config) String() string {
	masked := c
	masked.Remote.DSN = MaskDSN(c.Remote.DSN)
	out, err := yaml.Marshal(masked)
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(out)
}

// MaskDSN hides the password of a postgres URL.
func MaskDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return dsn
	}
	creds := dsn[scheme+3 : at]
	colon := strings.Index(creds, ":")
	if colon < 0 {
		return dsn
	}
	return dsn[:scheme+3] + creds[:colon] + ":***" + dsn[at:]
}
