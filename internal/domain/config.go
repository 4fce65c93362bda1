package domain

import "time"

// Config is the complete pipeline configuration, loaded by internal/config.
type Config struct {
	Environment string        `mapstructure:"environment"`
	Server      ServerConfig  `mapstructure:"server"`
	Source      SourceConfig  `mapstructure:"source"`
	Store       StoreConfig   `mapstructure:"store"`
	Oracle      OracleConfig  `mapstructure:"oracle"`
	Cache       CacheConfig   `mapstructure:"cache"`
	Logging     LoggingConfig `mapstructure:"logging"`
}

// ServerConfig configures the HTTP read API.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// SourceConfig configures the SQL report source.
type SourceConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	RadiologyTable  string        `mapstructure:"radiology_table"`
	ClinicalTable   string        `mapstructure:"clinical_table"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// StoreConfig configures the findings store. Backend selects between the
// embedded SQLite store and a PostgreSQL pool.
type StoreConfig struct {
	Backend        string        `mapstructure:"backend"`
	SQLitePath     string        `mapstructure:"sqlite_path"`
	PostgresURL    string        `mapstructure:"postgres_url"`
	MigrationsPath string        `mapstructure:"migrations_path"`
	MaxConns       int32         `mapstructure:"max_conns"`
	MinConns       int32         `mapstructure:"min_conns"`
	MaxConnLife    time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdle    time.Duration `mapstructure:"max_conn_idle"`
}

// OracleConfig configures the LLM extraction oracle client.
type OracleConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	Model      string        `mapstructure:"model"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RateLimit  int           `mapstructure:"rate_limit"`
	RetryCount int           `mapstructure:"retry_count"`
}

// CacheConfig configures the optional oracle response cache.
type CacheConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	RedisURL    string        `mapstructure:"redis_url"`
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
	MaxItems    int           `mapstructure:"max_items"`
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
}

// LoggingConfig configures structured logging output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
