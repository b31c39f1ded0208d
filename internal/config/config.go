package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // debug, release
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StorageConfig selects and configures the storage backend.
type StorageConfig struct {
	Mode string `mapstructure:"mode"` // "badger" or "sqlite"
	Path string `mapstructure:"path"`
}

// SyncConfig contains the feed pipeline policy knobs.
type SyncConfig struct {
	FetchInterval    time.Duration `mapstructure:"fetch_interval"`
	FetchTimeout     time.Duration `mapstructure:"fetch_timeout"`
	FetchConcurrency int           `mapstructure:"fetch_concurrency"`
	MaxRetries       int           `mapstructure:"max_retries"`
	ItemsPerFeed     int           `mapstructure:"items_per_feed"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// Load loads configuration from file and environment variables.
// Priority: ENV vars > config.yaml > defaults.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	viper.SetEnvPrefix("KUPU")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Config file is optional.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "127.0.0.1")
	viper.SetDefault("server.port", 8520)
	viper.SetDefault("server.mode", "release")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.shutdown_timeout", "10s")

	viper.SetDefault("storage.mode", "badger")
	viper.SetDefault("storage.path", "./data/kupukupu")

	viper.SetDefault("sync.fetch_interval", "60m")
	viper.SetDefault("sync.fetch_timeout", "30s")
	viper.SetDefault("sync.fetch_concurrency", 10)
	viper.SetDefault("sync.max_retries", 3)
	viper.SetDefault("sync.items_per_feed", 10)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

func validate(cfg *Config) error {
	if cfg.Server.Mode != "debug" && cfg.Server.Mode != "release" {
		return fmt.Errorf("server.mode must be 'debug' or 'release', got: %s", cfg.Server.Mode)
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got: %d", cfg.Server.Port)
	}

	if cfg.Storage.Mode != "badger" && cfg.Storage.Mode != "sqlite" {
		return fmt.Errorf("storage.mode must be 'badger' or 'sqlite', got: %s", cfg.Storage.Mode)
	}
	if cfg.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}

	if cfg.Sync.FetchInterval < time.Minute {
		return fmt.Errorf("sync.fetch_interval must be at least 1m, got: %s", cfg.Sync.FetchInterval)
	}
	if cfg.Sync.FetchTimeout <= 0 {
		return fmt.Errorf("sync.fetch_timeout must be positive, got: %s", cfg.Sync.FetchTimeout)
	}
	if cfg.Sync.FetchConcurrency < 1 {
		return fmt.Errorf("sync.fetch_concurrency must be at least 1, got: %d", cfg.Sync.FetchConcurrency)
	}
	if cfg.Sync.MaxRetries < 1 {
		return fmt.Errorf("sync.max_retries must be at least 1, got: %d", cfg.Sync.MaxRetries)
	}
	if cfg.Sync.ItemsPerFeed < 1 {
		return fmt.Errorf("sync.items_per_feed must be at least 1, got: %d", cfg.Sync.ItemsPerFeed)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error, got: %s", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" && cfg.Logging.Format != "text" {
		return fmt.Errorf("logging.format must be 'json' or 'text', got: %s", cfg.Logging.Format)
	}

	return nil
}
