package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Storage    StorageConfig    `mapstructure:"storage"`
	RawLog     RawLogConfig     `mapstructure:"rawlog"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Downstream DownstreamConfig `mapstructure:"downstream"`
	Ingestion  IngestionConfig  `mapstructure:"ingestion"`
	Recon      ReconConfig      `mapstructure:"recon"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type AuthConfig struct {
	APIKey string `mapstructure:"api_key"`
}

type StorageConfig struct {
	Type     string         `mapstructure:"type"` // "postgres" or "memory"
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ConnString renders the pgx connection string.
func (p PostgresConfig) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

type RawLogConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	URL           string `mapstructure:"url"`
	Username      string `mapstructure:"username"`
	Password      string `mapstructure:"password"`
	TLSSkipVerify bool   `mapstructure:"tls_skip_verify"`
	IndexPrefix   string `mapstructure:"index_prefix"`
}

type QueueConfig struct {
	Backend string `mapstructure:"backend"` // "nats" or "channel"
	NatsURL string `mapstructure:"nats_url"`
	Depth   int    `mapstructure:"depth"` // channel backend buffer size
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	URL     string        `mapstructure:"url"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type DownstreamConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	JWT            string        `mapstructure:"jwt"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	RetryBase      time.Duration `mapstructure:"retry_base"`
}

type IngestionConfig struct {
	MaxBodySize     int  `mapstructure:"max_body_size"`
	AllowMetaOnly   bool `mapstructure:"allow_meta_only"`
	RejectSynthetic bool `mapstructure:"reject_synthetic"`
}

type ReconConfig struct {
	Lookback     time.Duration `mapstructure:"lookback"`
	OKWindow     time.Duration `mapstructure:"ok_window"`
	DelayedAfter time.Duration `mapstructure:"delayed_after"`
	Workers      int           `mapstructure:"workers"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("auth.api_key", "")
	v.SetDefault("storage.type", "postgres")
	v.SetDefault("storage.postgres.host", "localhost")
	v.SetDefault("storage.postgres.port", 5432)
	v.SetDefault("storage.postgres.user", "bridge")
	v.SetDefault("storage.postgres.password", "bridge")
	v.SetDefault("storage.postgres.database", "xerxes")
	v.SetDefault("storage.postgres.sslmode", "disable")
	v.SetDefault("rawlog.enabled", false)
	v.SetDefault("rawlog.url", "https://localhost:9200")
	v.SetDefault("rawlog.username", "admin")
	v.SetDefault("rawlog.tls_skip_verify", true)
	v.SetDefault("rawlog.index_prefix", "bridge-raw")
	v.SetDefault("queue.backend", "channel")
	v.SetDefault("queue.nats_url", "nats://localhost:4222")
	v.SetDefault("queue.depth", 10000)
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.url", "redis://localhost:6379/0")
	v.SetDefault("cache.ttl", "10m")
	v.SetDefault("downstream.base_url", "https://eu.thingsboard.cloud")
	v.SetDefault("downstream.attempt_timeout", "5s")
	v.SetDefault("downstream.max_attempts", 5)
	v.SetDefault("downstream.retry_base", "200ms")
	v.SetDefault("ingestion.max_body_size", 1048576)
	v.SetDefault("ingestion.allow_meta_only", true)
	v.SetDefault("ingestion.reject_synthetic", false)
	v.SetDefault("recon.lookback", "3h")
	v.SetDefault("recon.ok_window", "15m")
	v.SetDefault("recon.delayed_after", "60m")
	v.SetDefault("recon.workers", 8)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/xerxes/bridge")
	}

	// Environment variables override
	v.SetEnvPrefix("BRIDGE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
