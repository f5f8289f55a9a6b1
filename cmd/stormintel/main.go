package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/canvassiq/storm-intel/internal/adapter/hailmap"
	"github.com/canvassiq/storm-intel/internal/adapter/httpapi"
	kafkaadapter "github.com/canvassiq/storm-intel/internal/adapter/kafka"
	"github.com/canvassiq/storm-intel/internal/adapter/noaa"
	"github.com/canvassiq/storm-intel/internal/adapter/nws"
	"github.com/canvassiq/storm-intel/internal/config"
	"github.com/canvassiq/storm-intel/internal/geocode"
	"github.com/canvassiq/storm-intel/internal/observability"
	"github.com/canvassiq/storm-intel/internal/search"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	geocoder := geocode.NewCachedGeocoder(geocode.NewChain(
		geocode.NewCensusClient(cfg.GeocodeTimeout),
		geocode.NewNominatimClient(cfg.GeocodeTimeout),
		logger,
	), cfg.GeocodeCacheSize)

	catalog, err := hailmap.NewClient(cfg.HailMapAPIKey, geocoder, metrics, logger, hailmap.Options{
		Timeout:  cfg.ProviderTimeout,
		CacheTTL: cfg.CatalogCacheTTL,
		CacheMax: cfg.CachePruneSize,
	})
	if err != nil {
		logger.Error("failed to initialize hail catalog", "error", err)
		os.Exit(1)
	}

	archive := noaa.NewArchive(
		noaa.NewDirectoryResolver("", cfg.ProviderTimeout),
		metrics, logger,
		noaa.Options{
			CacheTTL: cfg.ArchiveCacheTTL,
			CacheMax: cfg.CachePruneSize,
		},
	)

	alerts := nws.NewClient(metrics, logger, nws.Options{
		Timeout:  cfg.ProviderTimeout,
		CacheTTL: cfg.AlertsCacheTTL,
		CacheMax: cfg.CachePruneSize,
	})

	// Event publishing is optional; without brokers the orchestrator runs
	// search-only.
	var publisher search.Publisher
	var kafkaPublisher *kafkaadapter.Publisher
	if cfg.KafkaEnabled {
		kafkaPublisher = kafkaadapter.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		publisher = kafkaPublisher
		logger.Info("kafka publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	} else {
		logger.Info("kafka publishing disabled")
	}

	orchestrator := search.New(catalog, archive, alerts, geocoder, publisher, logger, metrics)

	srv := httpapi.NewServer(cfg.HTTPAddr, orchestrator, orchestrator, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if kafkaPublisher != nil {
		if err := kafkaPublisher.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
