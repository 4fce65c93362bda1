// Package main runs the findings HTTP API as a standalone service.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/radiology-findings-pipeline/internal/api"
	"github.com/radiology-findings-pipeline/internal/config"
	"github.com/radiology-findings-pipeline/internal/database"
	"github.com/radiology-findings-pipeline/internal/domain"
	"github.com/radiology-findings-pipeline/internal/service"
	"github.com/radiology-findings-pipeline/internal/source"
	"github.com/radiology-findings-pipeline/internal/store"
	"github.com/radiology-findings-pipeline/pkg/extraction"
)

func main() {
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger := config.NewLogger(cfg.Logging)
	logger.WithField("addr", cfg.Server.Host).Info("Starting findings API server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down")
		cancel()
	}()

	var st domain.FindingsStore
	switch cfg.Store.Backend {
	case "postgres":
		db, err := database.NewConnection(ctx, cfg.Store, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect findings database")
		}
		defer db.Close()
		st, err = store.NewPostgresStore(ctx, db, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to open findings store")
		}
	default:
		sqliteStore, err := store.NewSQLiteStore(cfg.Store.SQLitePath, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to open findings store")
		}
		defer sqliteStore.Close()
		st = sqliteStore
	}

	src, err := source.NewSQLReportSource(cfg.Source, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect report source")
	}
	defer src.Close()

	oracleClient := extraction.NewClient(cfg.Oracle, logger)
	var shared *extraction.RedisCache
	if cfg.Cache.Enabled {
		shared, err = extraction.NewRedisCache(cfg.Cache)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect extraction cache")
		}
		defer shared.Close()
	}
	oracle := extraction.NewResilientOracle(oracleClient, cfg.Cache, shared, logger)

	server := api.NewServer(cfg, api.Services{
		Reader: service.NewFindingsReader(st, logger),
		Ingest: service.NewIngestService(src, oracle, st, logger),
		Retry: service.NewRetryCoordinator(st, oracle.Extract,
			src.RadiologyReportText, src.ClinicalReportText, logger),
		Store: st,
	}, logger)

	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}

	logger.Info("Server stopped")
}
