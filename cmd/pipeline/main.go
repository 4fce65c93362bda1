// Package main provides the pipeline CLI: batch ingest, retry of incomplete
// records, store reset, schema migration, and the API server, selected by
// subcommand.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

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
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger := config.NewLogger(cfg.Logging)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received")
		cancel()
	}()

	var runErr error
	switch os.Args[1] {
	case "ingest":
		runErr = runIngest(ctx, cfg, logger)
	case "retry":
		runErr = runRetry(ctx, cfg, logger)
	case "reset":
		runErr = runReset(ctx, cfg, logger)
	case "migrate":
		runErr = runMigrate(ctx, cfg, logger)
	case "serve":
		runErr = runServe(ctx, cfg, logger)
	default:
		usage()
		os.Exit(2)
	}

	if runErr != nil {
		logger.WithError(runErr).Fatal("Command failed")
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: pipeline <command>

commands:
  ingest   fetch reports, extract findings for new pairs, persist them
  retry    re-run extraction for stored records with missing fields
  reset    destroy and recreate the findings store (requires --confirm)
  migrate  apply PostgreSQL schema migrations
  serve    run the findings HTTP API`)
}

// openStore builds the configured findings store backend.
func openStore(ctx context.Context, cfg *domain.Config, logger *logrus.Logger) (domain.FindingsStore, func(), error) {
	switch cfg.Store.Backend {
	case "postgres":
		db, err := database.NewConnection(ctx, cfg.Store, logger)
		if err != nil {
			return nil, nil, err
		}
		st, err := store.NewPostgresStore(ctx, db, logger)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return st, db.Close, nil
	default:
		st, err := store.NewSQLiteStore(cfg.Store.SQLitePath, logger)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { st.Close() }, nil
	}
}

// buildOracle assembles the oracle client with its resilience wrapper.
func buildOracle(cfg *domain.Config, logger *logrus.Logger) (domain.ExtractionOracle, error) {
	client := extraction.NewClient(cfg.Oracle, logger)

	var shared *extraction.RedisCache
	if cfg.Cache.Enabled {
		var err error
		shared, err = extraction.NewRedisCache(cfg.Cache)
		if err != nil {
			return nil, fmt.Errorf("connecting extraction cache: %w", err)
		}
	}

	return extraction.NewResilientOracle(client, cfg.Cache, shared, logger), nil
}

func runIngest(ctx context.Context, cfg *domain.Config, logger *logrus.Logger) error {
	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	src, err := source.NewSQLReportSource(cfg.Source, logger)
	if err != nil {
		return err
	}
	defer src.Close()

	oracle, err := buildOracle(cfg, logger)
	if err != nil {
		return err
	}

	summary, err := service.NewIngestService(src, oracle, st, logger).Run(ctx)
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"run_id":   summary.RunID,
		"inserted": summary.Inserted,
		"failures": summary.Failures,
	}).Info("Ingest complete")
	return nil
}

func runRetry(ctx context.Context, cfg *domain.Config, logger *logrus.Logger) error {
	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	src, err := source.NewSQLReportSource(cfg.Source, logger)
	if err != nil {
		return err
	}
	defer src.Close()

	oracle, err := buildOracle(cfg, logger)
	if err != nil {
		return err
	}

	coordinator := service.NewRetryCoordinator(st, oracle.Extract,
		src.RadiologyReportText, src.ClinicalReportText, logger)

	updated, err := coordinator.Retry(ctx)
	if err != nil {
		return err
	}

	logger.WithField("updated", updated).Info("Retry pass complete")
	return nil
}

func runReset(ctx context.Context, cfg *domain.Config, logger *logrus.Logger) error {
	if len(os.Args) < 3 || os.Args[2] != "--confirm" {
		return fmt.Errorf("reset destroys all findings, re-run with --confirm")
	}

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	return st.Reset(ctx)
}

func runMigrate(ctx context.Context, cfg *domain.Config, logger *logrus.Logger) error {
	if cfg.Store.Backend != "postgres" {
		return fmt.Errorf("migrate applies to the postgres backend; sqlite migrates itself on open")
	}

	runner, err := database.NewMigrationRunner(cfg.Store.PostgresURL, cfg.Store.MigrationsPath, logger)
	if err != nil {
		return err
	}
	defer runner.Close()

	return runner.Up(ctx)
}

func runServe(ctx context.Context, cfg *domain.Config, logger *logrus.Logger) error {
	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	src, err := source.NewSQLReportSource(cfg.Source, logger)
	if err != nil {
		return err
	}
	defer src.Close()

	oracle, err := buildOracle(cfg, logger)
	if err != nil {
		return err
	}

	server := api.NewServer(cfg, api.Services{
		Reader: service.NewFindingsReader(st, logger),
		Ingest: service.NewIngestService(src, oracle, st, logger),
		Retry: service.NewRetryCoordinator(st, oracle.Extract,
			src.RadiologyReportText, src.ClinicalReportText, logger),
		Store: st,
	}, logger)

	return server.Start(ctx)
}
