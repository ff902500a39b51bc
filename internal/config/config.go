// Package config provides unified configuration loading for the parts assistant.
// Supports YAML files, .env files, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // support hours are evaluated in a named zone

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the parts assistant.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Cache         CacheConfig         `yaml:"cache"`
	Assistant     AssistantConfig     `yaml:"assistant"`
	Support       SupportConfig       `yaml:"support"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	// TrustProxy takes the client address from X-Forwarded-For/X-Real-IP.
	// Enable only behind a reverse proxy that overwrites those headers.
	TrustProxy bool `yaml:"trust_proxy"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"` // sqlite or postgres
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	JournalMode  string `yaml:"journal_mode"`
}

// PostgresConfig holds Postgres-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	Driver     string        `yaml:"driver"` // memory or redis
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	Prefix   string `yaml:"prefix"`
}

// AssistantConfig tunes the conversation and matching behaviour.
type AssistantConfig struct {
	DefaultLanguage          string        `yaml:"default_language"`
	ContextTTL               time.Duration `yaml:"context_ttl"`
	TaxonomyCacheTTL         time.Duration `yaml:"taxonomy_cache_ttl"`
	DefaultPriority          string        `yaml:"default_priority"`
	AutoEscalateBelow        float64       `yaml:"auto_escalate_below"` // 0 disables
	HistoryLimit             int           `yaml:"history_limit"`
	WaitMinutesPerPosition   int           `yaml:"wait_minutes_per_position"`
	RecomputeConcurrency     int           `yaml:"recompute_concurrency"`
	KnowledgeResultLimit     int           `yaml:"knowledge_result_limit"`
	QuickReplyLimit          int           `yaml:"quick_reply_limit"`
	RecommendationsInReplies bool          `yaml:"recommendations_in_replies"`
	JanitorInterval          time.Duration `yaml:"janitor_interval"` // 0 disables the background janitor
	StaleEscalationAfter     time.Duration `yaml:"stale_escalation_after"`
}

// SupportConfig describes the human support desk.
type SupportConfig struct {
	Phone         string `yaml:"phone"`
	Email         string `yaml:"email"`
	Timezone      string `yaml:"timezone"`
	WeekdayOpen   int    `yaml:"weekday_open"`
	WeekdayClose  int    `yaml:"weekday_close"`
	SaturdayOpen  int    `yaml:"saturday_open"`
	SaturdayClose int    `yaml:"saturday_close"`
}

// RateLimitConfig holds per-client request limits for the API.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// Load reads configuration from a YAML file, loads .env files and applies environment overrides.
func Load(path string) (*Config, error) {
	// Missing .env files are fine; the environment may already be populated.
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}

		if cfg.Database.Driver == "sqlite" && cfg.Database.SQLite.Path != ":memory:" {
			cfg.Database.SQLite.Path = ResolveRelativePath(path, cfg.Database.SQLite.Path)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8086,
			ReadTimeout:      15 * time.Second,
			WriteTimeout:     15 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{
				Path:         "/tmp/parts-assistant.db",
				MaxOpenConns: 1,
				JournalMode:  "WAL",
			},
			Postgres: PostgresConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Cache: CacheConfig{
			Driver:     "memory",
			TTL:        5 * time.Minute,
			MaxEntries: 10000,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				DB:       0,
				PoolSize: 10,
				Prefix:   "pa:",
			},
		},
		Assistant: AssistantConfig{
			DefaultLanguage:          "en",
			ContextTTL:               30 * time.Minute,
			TaxonomyCacheTTL:         10 * time.Minute,
			DefaultPriority:          "medium",
			AutoEscalateBelow:        0,
			HistoryLimit:             50,
			WaitMinutesPerPosition:   3,
			RecomputeConcurrency:     4,
			KnowledgeResultLimit:     3,
			QuickReplyLimit:          4,
			RecommendationsInReplies: true,
			JanitorInterval:          5 * time.Minute,
			StaleEscalationAfter:     15 * time.Minute,
		},
		Support: SupportConfig{
			Phone:         "+48 123 456 789",
			Email:         "support@machineparts.example",
			Timezone:      "Europe/Warsaw",
			WeekdayOpen:   8,
			WeekdayClose:  18,
			SaturdayOpen:  9,
			SaturdayClose: 14,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 20,
			Burst:             40,
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			ServiceName: "parts-assistant",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return fmt.Errorf("invalid database driver: %s", c.Database.Driver)
	}

	if c.Database.Driver == "postgres" && c.Database.Postgres.DSN == "" {
		return fmt.Errorf("postgres driver requires a dsn")
	}

	if c.Cache.Driver != "memory" && c.Cache.Driver != "redis" {
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	switch c.Assistant.DefaultLanguage {
	case "en", "pl":
	default:
		return fmt.Errorf("unsupported default language: %s", c.Assistant.DefaultLanguage)
	}

	switch c.Assistant.DefaultPriority {
	case "low", "medium", "high", "urgent":
	default:
		return fmt.Errorf("invalid default priority: %s", c.Assistant.DefaultPriority)
	}

	if c.Assistant.AutoEscalateBelow < 0 || c.Assistant.AutoEscalateBelow > 100 {
		return fmt.Errorf("auto_escalate_below must be between 0 and 100")
	}

	if c.Assistant.ContextTTL <= 0 {
		return fmt.Errorf("context_ttl must be positive")
	}

	if c.Assistant.JanitorInterval < 0 || c.Assistant.StaleEscalationAfter < 0 {
		return fmt.Errorf("janitor durations must not be negative")
	}

	if _, err := time.LoadLocation(c.Support.Timezone); err != nil {
		return fmt.Errorf("invalid support timezone %q: %w", c.Support.Timezone, err)
	}

	if c.RateLimit.Enabled && c.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests_per_second must be positive when rate limiting is enabled")
	}

	return nil
}

// DatabaseDSN returns the appropriate database connection string.
func (c *Config) DatabaseDSN() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.SQLite.Path
	}
	return c.Database.Postgres.DSN
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("SERVER_TRUST_PROXY"); v != "" {
		if trust, err := strconv.ParseBool(v); err == nil {
			cfg.Server.TrustProxy = trust
		}
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		if strings.HasPrefix(v, "sqlite:") {
			cfg.Database.Driver = "sqlite"
			cfg.Database.SQLite.Path = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.Database.Driver = "postgres"
			cfg.Database.Postgres.DSN = v
		}
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}

	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Cache.Redis.Password = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}

	if v := os.Getenv("ASSISTANT_CONTEXT_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Assistant.ContextTTL = d
		}
	}

	if v := os.Getenv("ASSISTANT_DEFAULT_LANGUAGE"); v != "" {
		cfg.Assistant.DefaultLanguage = v
	}

	if v := os.Getenv("SUPPORT_TIMEZONE"); v != "" {
		cfg.Support.Timezone = v
	}

	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		if rps, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimit.RequestsPerSecond = rps
			cfg.RateLimit.Enabled = rps > 0
		}
	}
}

// ResolveRelativePath resolves a path relative to the config file location.
func ResolveRelativePath(configPath, targetPath string) string {
	if filepath.IsAbs(targetPath) {
		return targetPath
	}
	configDir := filepath.Dir(configPath)
	return filepath.Join(configDir, targetPath)
}
