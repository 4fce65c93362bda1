// Package config loads pipeline configuration from a YAML file and
// RADFLOW_-prefixed environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/radiology-findings-pipeline/internal/domain"
)

// Manager loads and validates the pipeline configuration using Viper.
type Manager struct {
	config *domain.Config
}

// NewManager creates a configuration manager and loads configuration.
func NewManager() (*Manager, error) {
	m := &Manager{}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from file, environment, and defaults.
func (m *Manager) loadConfig() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/radiology-findings-pipeline/")

	viper.SetEnvPrefix("RADFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	m.setDefaults()

	// Config file is optional; defaults and environment cover it.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := viper.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.config = config
	return nil
}

func (m *Manager) setDefaults() {
	viper.SetDefault("environment", "development")

	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")

	// Report source defaults
	viper.SetDefault("source.host", "localhost")
	viper.SetDefault("source.port", 5432)
	viper.SetDefault("source.database", "reports")
	viper.SetDefault("source.username", "postgres")
	viper.SetDefault("source.password", "")
	viper.SetDefault("source.ssl_mode", "disable")
	viper.SetDefault("source.radiology_table", "radiology_reports")
	viper.SetDefault("source.clinical_table", "clinical_reports")
	viper.SetDefault("source.max_open_conns", 25)
	viper.SetDefault("source.max_idle_conns", 5)
	viper.SetDefault("source.conn_max_lifetime", "5m")

	// Findings store defaults
	viper.SetDefault("store.backend", "sqlite")
	viper.SetDefault("store.sqlite_path", "data/findings.db")
	viper.SetDefault("store.migrations_path", "migrations/postgres")
	viper.SetDefault("store.max_conns", 10)
	viper.SetDefault("store.min_conns", 2)
	viper.SetDefault("store.max_conn_lifetime", "1h")
	viper.SetDefault("store.max_conn_idle", "30m")

	// Extraction oracle defaults
	viper.SetDefault("oracle.base_url", "https://generativelanguage.googleapis.com")
	viper.SetDefault("oracle.model", "gemini-1.5-flash")
	viper.SetDefault("oracle.timeout", "60s")
	viper.SetDefault("oracle.rate_limit", 2)
	viper.SetDefault("oracle.retry_count", 3)

	// Cache defaults
	viper.SetDefault("cache.enabled", false)
	viper.SetDefault("cache.redis_url", "redis://localhost:6379")
	viper.SetDefault("cache.default_ttl", "24h")
	viper.SetDefault("cache.max_items", 1024)
	viper.SetDefault("cache.max_retries", 3)
	viper.SetDefault("cache.pool_size", 10)
	viper.SetDefault("cache.pool_timeout", "4s")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
}

// GetConfig returns the complete configuration.
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// Reload reloads the configuration.
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate checks the loaded configuration for usable values.
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Source.Host == "" {
		return fmt.Errorf("source host is required")
	}
	if config.Source.Database == "" {
		return fmt.Errorf("source database is required")
	}
	if config.Source.RadiologyTable == "" || config.Source.ClinicalTable == "" {
		return fmt.Errorf("source report tables are required")
	}

	switch config.Store.Backend {
	case "sqlite":
		if config.Store.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required")
		}
	case "postgres":
		if config.Store.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required")
		}
	default:
		return fmt.Errorf("invalid store backend: %s", config.Store.Backend)
	}

	if config.Oracle.BaseURL == "" {
		return fmt.Errorf("oracle base URL is required")
	}
	if config.Oracle.Model == "" {
		return fmt.Errorf("oracle model is required")
	}

	if config.Cache.Enabled && config.Cache.RedisURL == "" {
		return fmt.Errorf("Redis URL is required when the cache is enabled")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// SourceDSN returns the report-source connection string.
func (m *Manager) SourceDSN() string {
	src := m.config.Source
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		src.Host, src.Port, src.Username, src.Password, src.Database, src.SSLMode)
}

// IsProduction returns true when running in production mode.
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.config.Environment) == "production"
}
