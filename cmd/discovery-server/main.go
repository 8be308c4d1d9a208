// Package main provides the entry point for the publication discovery server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/meridianbio/publication-discovery-service/internal/acquire"
	"github.com/meridianbio/publication-discovery-service/internal/cache"
	"github.com/meridianbio/publication-discovery-service/internal/config"
	"github.com/meridianbio/publication-discovery-service/internal/database"
	"github.com/meridianbio/publication-discovery-service/internal/fanout"
	"github.com/meridianbio/publication-discovery-service/internal/merge"
	"github.com/meridianbio/publication-discovery-service/internal/observability"
	"github.com/meridianbio/publication-discovery-service/internal/pipeline"
	"github.com/meridianbio/publication-discovery-service/internal/resilience"
	"github.com/meridianbio/publication-discovery-service/internal/score"
	"github.com/meridianbio/publication-discovery-service/internal/server"
	"github.com/meridianbio/publication-discovery-service/internal/sources"
	"github.com/meridianbio/publication-discovery-service/internal/sources/arxiv"
	"github.com/meridianbio/publication-discovery-service/internal/sources/crossref"
	"github.com/meridianbio/publication-discovery-service/internal/sources/europepmc"
	"github.com/meridianbio/publication-discovery-service/internal/sources/openalex"
	"github.com/meridianbio/publication-discovery-service/internal/sources/pubmed"
	"github.com/meridianbio/publication-discovery-service/internal/sources/semanticscholar"
	"github.com/meridianbio/publication-discovery-service/internal/sources/unpaywall"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().Msg("publication-discovery-service starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Metrics are always collected; the handler is only mounted when
	// exposure is enabled.
	metrics := observability.NewMetrics("pubfinder")
	var metricsHandler http.Handler
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsHandler = promhttp.Handler()
		metricsPath = cfg.Metrics.Path
	}

	// Select the cache backend. The memory backend needs no database;
	// the postgres backend shares staleness decisions across instances.
	var db *database.DB
	var store cache.Store
	switch cfg.Cache.Backend {
	case "postgres":
		db, err = database.New(ctx, &cfg.Database, logger)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()
		logger.Info().Msg("database connection established")

		if cfg.Database.MigrationAutoRun {
			migrator, err := database.NewMigrator(db, cfg.Database.MigrationPath, logger)
			if err != nil {
				return fmt.Errorf("create migrator: %w", err)
			}
			defer func() {
				if closeErr := migrator.Close(); closeErr != nil {
					logger.Error().Err(closeErr).Msg("failed to close migrator")
				}
			}()

			if err := migrator.Up(); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
		}

		store = cache.NewPostgres(db)
	default:
		memory := cache.NewMemory(cache.MemoryConfig{SweepInterval: cfg.Cache.SweepInterval}, logger)
		defer memory.Close()
		store = memory
	}
	logger.Info().Str("backend", cfg.Cache.Backend).Msg("cache store ready")

	// Register every source provider; disabled sources are filtered at
	// fan-out time.
	registry := buildRegistry(cfg)
	limiters := sources.NewLimiterPool()
	logger.Info().
		Int("registered", registry.Len()).
		Int("enabled", len(registry.Enabled())).
		Msg("source providers registered")

	retrySchedule := resilience.RetryConfig{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
	}

	orchestrator := fanout.New(registry, limiters, fanout.Config{
		MaxConcurrency:      cfg.Fanout.MaxConcurrency,
		PerSourceTimeout:    cfg.Fanout.PerSourceTimeout,
		MaxResultsPerSource: cfg.Fanout.MaxResultsPerSource,
		EarlyStopThreshold:  cfg.Fanout.EarlyStopThreshold,
		Retry:               retrySchedule,
	}, logger, metrics)

	merger := merge.New(merge.Config{
		FuzzyThreshold:  cfg.Merge.FuzzyThreshold,
		FuzzyYearWindow: cfg.Merge.FuzzyYearWindow,
	}, logger)

	scorer, err := score.New(score.Weights{
		KeywordMatch:      cfg.Scoring.KeywordMatch,
		ContentSimilarity: cfg.Scoring.ContentSimilarity,
		Recency:           cfg.Scoring.Recency,
		Venue:             cfg.Scoring.Venue,
		CitationImpact:    cfg.Scoring.CitationImpact,
		SourceQuality:     cfg.Scoring.SourceQuality,
	})
	if err != nil {
		return fmt.Errorf("create scorer: %w", err)
	}

	downloader := acquire.NewDownloader(acquire.DownloaderConfig{
		Timeout:   cfg.Download.AttemptTimeout,
		MaxSize:   cfg.Download.MaxSizeBytes,
		UserAgent: cfg.Download.UserAgent,
	})
	waterfall := acquire.NewWaterfall(downloader, acquire.WaterfallConfig{
		OutputDir:      cfg.Download.OutputDir,
		AttemptTimeout: cfg.Download.AttemptTimeout,
		Retry:          retrySchedule,
	}, logger)

	discovery := pipeline.NewDiscovery(
		orchestrator,
		merger,
		scorer,
		store,
		nil,
		metrics,
		pipeline.DiscoveryConfig{CacheTTL: cfg.Cache.TTL},
		logger,
	)
	acquisition := pipeline.NewAcquisition(
		waterfall,
		nil,
		metrics,
		pipeline.AcquisitionConfig{MaxConcurrent: cfg.Download.MaxConcurrent},
		logger,
	)

	httpCfg := server.Config{
		Address:         cfg.Server.HTTPAddress(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     2 * time.Minute,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MetricsPath:     metricsPath,
	}
	httpSrv := server.NewServer(httpCfg, discovery, acquisition, db, metricsHandler, logger)

	// Channel to collect server errors.
	errCh := make(chan error, 1)

	go func() {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	logger.Info().
		Str("http_address", httpCfg.Address).
		Msg("publication-discovery-service is ready")

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	// Graceful shutdown.
	logger.Info().Msg("shutting down publication-discovery-service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	logger.Info().Msg("publication-discovery-service shutdown complete")
	return nil
}

// buildRegistry registers all source provider adapters from configuration.
func buildRegistry(cfg *config.Config) *sources.Registry {
	registry := sources.NewRegistry()

	registry.Register(openalex.New(openalex.Config{
		BaseURL:    cfg.Sources.OpenAlex.BaseURL,
		Email:      cfg.Sources.OpenAlex.Email,
		Timeout:    cfg.Sources.OpenAlex.Timeout,
		RateLimit:  cfg.Sources.OpenAlex.RateLimit,
		MaxResults: cfg.Sources.OpenAlex.MaxResults,
		Enabled:    cfg.Sources.OpenAlex.Enabled,
	}))
	registry.Register(pubmed.New(pubmed.Config{
		BaseURL:    cfg.Sources.PubMed.BaseURL,
		APIKey:     cfg.Sources.PubMed.APIKey,
		Timeout:    cfg.Sources.PubMed.Timeout,
		RateLimit:  cfg.Sources.PubMed.RateLimit,
		MaxResults: cfg.Sources.PubMed.MaxResults,
		Enabled:    cfg.Sources.PubMed.Enabled,
	}))
	registry.Register(crossref.New(crossref.Config{
		BaseURL:    cfg.Sources.Crossref.BaseURL,
		Email:      cfg.Sources.Crossref.Email,
		Timeout:    cfg.Sources.Crossref.Timeout,
		RateLimit:  cfg.Sources.Crossref.RateLimit,
		MaxResults: cfg.Sources.Crossref.MaxResults,
		Enabled:    cfg.Sources.Crossref.Enabled,
	}))
	registry.Register(europepmc.New(europepmc.Config{
		BaseURL:    cfg.Sources.EuropePMC.BaseURL,
		Timeout:    cfg.Sources.EuropePMC.Timeout,
		RateLimit:  cfg.Sources.EuropePMC.RateLimit,
		MaxResults: cfg.Sources.EuropePMC.MaxResults,
		Enabled:    cfg.Sources.EuropePMC.Enabled,
	}))
	registry.Register(unpaywall.New(unpaywall.Config{
		BaseURL:   cfg.Sources.Unpaywall.BaseURL,
		Email:     cfg.Sources.Unpaywall.Email,
		Timeout:   cfg.Sources.Unpaywall.Timeout,
		RateLimit: cfg.Sources.Unpaywall.RateLimit,
		Enabled:   cfg.Sources.Unpaywall.Enabled,
	}))
	registry.Register(semanticscholar.New(semanticscholar.Config{
		BaseURL:    cfg.Sources.SemanticScholar.BaseURL,
		APIKey:     cfg.Sources.SemanticScholar.APIKey,
		Timeout:    cfg.Sources.SemanticScholar.Timeout,
		RateLimit:  cfg.Sources.SemanticScholar.RateLimit,
		MaxResults: cfg.Sources.SemanticScholar.MaxResults,
		Enabled:    cfg.Sources.SemanticScholar.Enabled,
	}))
	registry.Register(arxiv.New(arxiv.Config{
		BaseURL:    cfg.Sources.ArXiv.BaseURL,
		Timeout:    cfg.Sources.ArXiv.Timeout,
		RateLimit:  cfg.Sources.ArXiv.RateLimit,
		MaxResults: cfg.Sources.ArXiv.MaxResults,
		Enabled:    cfg.Sources.ArXiv.Enabled,
	}))

	return registry
}

