package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/flowmesh/tieredstore/internal/config"
	"github.com/flowmesh/tieredstore/internal/fetcher"
	"github.com/flowmesh/tieredstore/internal/logger"
	"github.com/flowmesh/tieredstore/internal/metrics"
	"github.com/flowmesh/tieredstore/internal/storage/flatfile"
	"github.com/flowmesh/tieredstore/internal/storage/metastore"
	"github.com/flowmesh/tieredstore/internal/tracing"
	"github.com/flowmesh/tieredstore/internal/version"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "tieredstore: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if err := logger.Init(&logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		Broker:     cfg.Store.BrokerName,
		Rotation:   cfg.Logging.Rotation,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	log.Info().Str("version", version.Get().Version).Msg("Starting tiered store fetcher")

	ctx := context.Background()

	tracingCfg := tracing.DefaultTracingConfig()
	tracingCfg.Enabled = cfg.Metrics.TracingEnabled
	tracingCfg.Endpoint = cfg.Metrics.TracingEndpoint
	tracingCfg.SampleRatio = cfg.Metrics.TracingSampleRatio
	tracingCfg.ServiceVersion = version.Get().Version
	tracingProvider, err := tracing.NewProvider(tracingCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer tracingProvider.Shutdown(ctx)

	provider, err := flatfile.NewPebbleProvider(cfg.Store.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open tier provider: %w", err)
	}
	defer provider.Close()

	metaStore, err := metastore.NewStore(filepath.Join(cfg.Store.DataDir, "metadata"))
	if err != nil {
		return fmt.Errorf("failed to open metadata store: %w", err)
	}

	manager := flatfile.NewManager(provider, flatfile.Options{
		MinFactor:     cfg.ReadAhead.MinFactor,
		FactorCeiling: cfg.ReadAhead.MessageCountThreshold,
	})

	fetcherMetrics := metrics.NewFetcherMetrics()

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Addr, cfg.Metrics.Path, fetcherMetrics.Registry())
		if err := metricsServer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer metricsServer.Stop(ctx)
	}

	engine, err := fetcher.NewFetcher(fetcher.NewConfigFromApp(cfg), manager, metaStore, fetcherMetrics)
	if err != nil {
		return fmt.Errorf("failed to build fetcher: %w", err)
	}
	defer engine.Close()

	log.Info().
		Str("broker", cfg.Store.BrokerName).
		Str("data_dir", cfg.Store.DataDir).
		Int("queues", len(provider.Queues())).
		Msg("Tiered store fetcher ready")

	// Block until shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Shutting down")

	return nil
}
