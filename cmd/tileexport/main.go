package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/pscheid92/geoportal/internal/config"
	"github.com/pscheid92/geoportal/internal/logging"
	"github.com/pscheid92/geoportal/mapping"
	"github.com/pscheid92/geoportal/portal"
)

func setupConfig() *config.Config {
	// .env is optional, real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupClient(cfg *config.Config) *portal.Client {
	opts := []portal.Option{
		portal.WithLogger(slog.Default()),
	}
	if cfg.Username != "" {
		tokens := portal.NewTokenManager(cfg.PortalURL, cfg.Username, cfg.Password,
			portal.WithTokenReferer(cfg.Referer))
		opts = append(opts, portal.WithTokenProvider(tokens))
	}
	return portal.New(cfg.PortalURL, opts...)
}

func main() {
	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	serviceLog := logging.WithService(cfg.ServiceURL)
	serviceLog.Info("Tile export starting", "env", cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := setupClient(cfg)

	layer, err := mapping.New(ctx, client, cfg.ServiceURL,
		mapping.WithPollInterval(cfg.PollInterval))
	if err != nil {
		logging.WithError(err).Error("Failed to load map service")
		os.Exit(1)
	}

	opts := mapping.ExportTilesOptions{
		Levels:       cfg.Levels,
		ExportExtent: cfg.ExportExtent,
		TilePackage:  cfg.TilePackage,
	}

	estimate, err := layer.EstimateExportTilesSize(ctx, opts)
	if err != nil {
		if errors.Is(err, mapping.ErrExportNotAllowed) {
			serviceLog.Error("Service does not allow tile export")
			os.Exit(1)
		}
		logging.WithError(err).Error("Failed to estimate export size")
		os.Exit(1)
	}
	serviceLog.Info("Export estimated",
		"tiles", estimate.TotalTilesToExport,
		"bytes", estimate.TotalSize)

	maxTiles := layer.Properties().MaxExportTilesCount
	if maxTiles > 0 && estimate.TotalTilesToExport > int64(maxTiles) {
		serviceLog.Error("Estimate exceeds the service's export limit",
			"tiles", estimate.TotalTilesToExport, "limit", maxTiles)
		os.Exit(1)
	}

	started := time.Now()
	job, err := layer.SubmitExportTiles(ctx, opts)
	if err != nil {
		logging.WithError(err).Error("Failed to submit export job")
		os.Exit(1)
	}
	jobLog := logging.WithJob(job.ID)
	jobLog.Info("Export job submitted")

	info, err := job.Wait(ctx)
	if err != nil {
		jobLog.Error("Export job failed", "error", err)
		os.Exit(1)
	}

	result, err := layer.CollectExportedTiles(ctx, info, cfg.DestDir)
	if err != nil {
		logging.WithError(err).Error("Failed to download exported tiles")
		os.Exit(1)
	}

	jobLog.Info("Export finished",
		"files", len(result.Paths),
		"folders", len(result.Folders),
		"duration", time.Since(started).Round(time.Second))
	for _, path := range result.Paths {
		slog.Info("Downloaded", "path", path)
	}
}
