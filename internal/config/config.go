// Package config provides configuration management for the WhatsApp
// dual-backend orchestrator.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper" // v1.17.0
)

// Config is the root configuration structure for the orchestrator.
type Config struct {
	Server  ServerConfig
	Backend BackendPairConfig
	Timeout TimeoutConfig
	Retry   RetryConfig
	Redis   RedisConfig
	Audit   AuditConfig
	Routing RoutingConfig
}

// ServerConfig holds the internal operations HTTP server configuration.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// BackendConfig describes one backend bridge's base URL.
type BackendConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// BackendPairConfig holds configuration for both backend bridges.
type BackendPairConfig struct {
	Go      BackendConfig `mapstructure:"go_bridge"`
	Baileys BackendConfig `mapstructure:"baileys_bridge"`
}

// TimeoutConfig holds the named-timeout policy (spec §4.2/§6).
type TimeoutConfig struct {
	Default time.Duration `mapstructure:"default_timeout"`
	Media   time.Duration `mapstructure:"media_timeout"`
	Short   time.Duration `mapstructure:"short_timeout"`
	Health  time.Duration `mapstructure:"health_check_timeout"`
}

// RetryConfig holds reconciliation retry parameters (spec §4.4.1).
type RetryConfig struct {
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	HealthCacheTTL time.Duration `mapstructure:"health_cache_ttl"`
}

// RedisConfig holds the optional best-effort Health Snapshot mirror.
// A Redis outage never affects health semantics; Enabled defaults to
// false.
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	KeyTTL   time.Duration `mapstructure:"key_ttl"`
}

// AuditConfig holds the optional Run Recorder database. Enabled
// defaults to false; the orchestrator runs correctly without it.
type AuditConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RoutingConfig holds routing defaults.
type RoutingConfig struct {
	DefaultStrategy string `mapstructure:"default_routing_strategy"`
}

// Load loads and validates orchestrator configuration from environment
// variables and an optional config file.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix("WA_ORCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/wa-orchestrator/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 9090)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("backend.go_bridge.base_url", "http://localhost:8080")
	v.SetDefault("backend.baileys_bridge.base_url", "http://localhost:8081")

	v.SetDefault("timeout.default_timeout", "30s")
	v.SetDefault("timeout.media_timeout", "60s")
	v.SetDefault("timeout.short_timeout", "10s")
	v.SetDefault("timeout.health_check_timeout", "5s")

	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.retry_delay", "1s")
	v.SetDefault("retry.health_cache_ttl", "1s")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_ttl", "10s")

	v.SetDefault("audit.enabled", false)
	v.SetDefault("audit.max_open_conns", 10)
	v.SetDefault("audit.max_idle_conns", 5)
	v.SetDefault("audit.conn_max_lifetime", "15m")

	v.SetDefault("routing.default_routing_strategy", "PREFER_G")
}

func (cfg *Config) validate() error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	if cfg.Backend.Go.BaseURL == "" {
		return fmt.Errorf("go_bridge base_url is required")
	}
	if cfg.Backend.Baileys.BaseURL == "" {
		return fmt.Errorf("baileys_bridge base_url is required")
	}
	if cfg.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries cannot be negative")
	}
	if cfg.Retry.HealthCacheTTL <= 0 {
		return fmt.Errorf("retry.health_cache_ttl must be positive")
	}
	if cfg.Redis.Enabled && cfg.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}
	if cfg.Audit.Enabled && cfg.Audit.DSN == "" {
		return fmt.Errorf("audit.dsn is required when audit is enabled")
	}
	return nil
}
