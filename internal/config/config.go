package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Storage        StorageConfig        `yaml:"storage" mapstructure:"storage"`
	Snapshot       SnapshotConfig       `yaml:"snapshot" mapstructure:"snapshot"`
	Upstream       UpstreamConfig       `yaml:"upstream" mapstructure:"upstream"`
	Jobstore       JobstoreConfig       `yaml:"jobstore" mapstructure:"jobstore"`
	Reconciliation ReconciliationConfig `yaml:"reconciliation" mapstructure:"reconciliation"`
	Server         ServerConfig         `yaml:"server" mapstructure:"server"`
	Log            LogConfig            `yaml:"log" mapstructure:"log"`
}

// StorageConfig configures the blob storage backend for snapshots.
type StorageConfig struct {
	Provider string    `yaml:"provider" mapstructure:"provider"`
	Path     string    `yaml:"path" mapstructure:"path"`
	GCS      GCSConfig `yaml:"gcs" mapstructure:"gcs"`
}

// GCSConfig holds Google Cloud Storage settings, used when
// storage.provider is "gcs".
type GCSConfig struct {
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	Prefix          string `yaml:"prefix" mapstructure:"prefix"`
	CredentialsFile string `yaml:"credentials_file" mapstructure:"credentials_file"`
}

// SnapshotConfig tunes snapshot writes.
type SnapshotConfig struct {
	WriteConcurrency int `yaml:"write_concurrency" mapstructure:"write_concurrency"`
}

// UpstreamConfig configures the dashboard statistics endpoint.
type UpstreamConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	Burst       int     `yaml:"burst" mapstructure:"burst"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
}

// JobstoreConfig configures the reconciliation job database.
type JobstoreConfig struct {
	Driver      string     `yaml:"driver" mapstructure:"driver"`
	Path        string     `yaml:"path" mapstructure:"path"`
	DatabaseURL string     `yaml:"database_url" mapstructure:"database_url"`
	Pool        PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// PoolConfig holds Postgres connection pool tuning.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// ReconciliationConfig holds the runner's operational settings. The
// per-job monitoring parameters live in blob storage and are managed by
// the config subcommands, not here.
type ReconciliationConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// ServerConfig configures the read-only HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DISTRICTSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("storage.provider", "local")
	v.SetDefault("storage.path", "data")
	v.SetDefault("snapshot.write_concurrency", 8)
	v.SetDefault("upstream.user_agent", "districtsync/1.0")
	v.SetDefault("upstream.timeout_secs", 30)
	v.SetDefault("upstream.rate_limit", 2)
	v.SetDefault("upstream.burst", 2)
	v.SetDefault("upstream.max_retries", 3)
	v.SetDefault("jobstore.driver", "sqlite")
	v.SetDefault("jobstore.path", "data/jobs.db")
	v.SetDefault("reconciliation.workers", 4)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
