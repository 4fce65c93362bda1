package config

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiology-findings-pipeline/internal/domain"
)

func TestNewManager_Defaults(t *testing.T) {
	manager, err := NewManager()
	require.NoError(t, err)

	cfg := manager.GetConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, "data/findings.db", cfg.Store.SQLitePath)
	assert.Equal(t, "radiology_reports", cfg.Source.RadiologyTable)
	assert.Equal(t, "clinical_reports", cfg.Source.ClinicalTable)
	assert.Equal(t, "gemini-1.5-flash", cfg.Oracle.Model)
	assert.False(t, cfg.Cache.Enabled)

	assert.NoError(t, manager.Validate())
}

func TestManager_EnvOverride(t *testing.T) {
	t.Setenv("RADFLOW_SERVER_PORT", "9090")
	t.Setenv("RADFLOW_STORE_BACKEND", "postgres")
	t.Setenv("RADFLOW_STORE_POSTGRES_URL", "postgres://findings:secret@db:5432/findings")

	manager, err := NewManager()
	require.NoError(t, err)

	cfg := manager.GetConfig()
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Store.Backend)
	assert.NoError(t, manager.Validate())
}

func TestManager_Validate(t *testing.T) {
	manager, err := NewManager()
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*domain.Config)
	}{
		{"bad port", func(c *domain.Config) { c.Server.Port = 0 }},
		{"missing source host", func(c *domain.Config) { c.Source.Host = "" }},
		{"missing tables", func(c *domain.Config) { c.Source.RadiologyTable = "" }},
		{"unknown backend", func(c *domain.Config) { c.Store.Backend = "oracle-db" }},
		{"postgres without url", func(c *domain.Config) {
			c.Store.Backend = "postgres"
			c.Store.PostgresURL = ""
		}},
		{"bad log level", func(c *domain.Config) { c.Logging.Level = "verbose" }},
		{"cache enabled without url", func(c *domain.Config) {
			c.Cache.Enabled = true
			c.Cache.RedisURL = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, manager.Reload())
			tt.mutate(manager.GetConfig())
			assert.Error(t, manager.Validate())
		})
	}
}

func TestManager_SourceDSN(t *testing.T) {
	manager, err := NewManager()
	require.NoError(t, err)

	cfg := manager.GetConfig()
	cfg.Source.Host = "reports-db"
	cfg.Source.Port = 5433
	cfg.Source.Username = "reader"
	cfg.Source.Password = "secret"
	cfg.Source.Database = "hospital"
	cfg.Source.SSLMode = "require"

	assert.Equal(t,
		"host=reports-db port=5433 user=reader password=secret dbname=hospital sslmode=require",
		manager.SourceDSN())
}

func TestNewLogger(t *testing.T) {
	logger := NewLogger(domain.LoggingConfig{Level: "debug", Format: "json"})
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)

	logger = NewLogger(domain.LoggingConfig{Level: "nope", Format: "text"})
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)
}
