package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/advisorstack/oracle-advisor/internal/api"
	"github.com/advisorstack/oracle-advisor/internal/cache"
	"github.com/advisorstack/oracle-advisor/internal/config"
	"github.com/advisorstack/oracle-advisor/internal/engine"
	"github.com/advisorstack/oracle-advisor/internal/extractors"
	"github.com/advisorstack/oracle-advisor/internal/index"
	"github.com/advisorstack/oracle-advisor/internal/llm"
	"github.com/advisorstack/oracle-advisor/internal/metrics"
	"github.com/advisorstack/oracle-advisor/internal/models"
	"github.com/advisorstack/oracle-advisor/internal/patterns"
	"github.com/advisorstack/oracle-advisor/internal/repo"
	"github.com/advisorstack/oracle-advisor/internal/services"
	"github.com/advisorstack/oracle-advisor/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting oracle-advisor", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	var cacheProvider cache.Provider = cache.NoopProvider{}
	switch cfg.Cache.Backend {
	case "memory":
		cacheProvider = cache.NewMemoryProvider()
	case "sqlite":
		provider, err := cache.NewSQLiteProvider(cfg.Cache.Path)
		if err != nil {
			logger.Warn("sqlite cache unavailable, falling back to memory", slog.Any("error", err))
			cacheProvider = cache.NewMemoryProvider()
		} else {
			cacheProvider = provider
		}
	}
	defer cacheProvider.Close()

	var indexOpts []index.Option
	if cfg.Index.Path != "" {
		store, err := index.NewStore(cfg.Index.Path)
		if err != nil {
			logger.Error("failed to open index store", slog.Any("error", err))
			os.Exit(1)
		}
		defer store.Close()
		indexOpts = append(indexOpts, index.WithStore(store))
	}
	if cfg.Index.MinSimilarity > 0 {
		indexOpts = append(indexOpts, index.WithMinSimilarity(cfg.Index.MinSimilarity))
	}
	retrievalIndex, err := index.New(cfg.Index.Dimensions, logger, indexOpts...)
	if err != nil {
		logger.Error("failed to build retrieval index", slog.Any("error", err))
		os.Exit(1)
	}

	profiles, err := engine.LoadProfiles(cfg.Profiles.Dir)
	if err != nil {
		logger.Error("failed to load scoring profiles", slog.Any("error", err))
		os.Exit(1)
	}

	telemetryClient := repo.NewTelemetryClient(cfg.Telemetry.BaseURL, map[models.SourceType]string{
		models.SourceQueryPlan:    cfg.Telemetry.PlanPath,
		models.SourceAuditEvent:   cfg.Telemetry.AuditPath,
		models.SourceBackupConfig: cfg.Telemetry.BackupPath,
	}, cfg.Telemetry.Timeout)

	llmClient := llm.NewHTTPClient(llm.Config{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
	})
	embedder := llm.NewHTTPEmbedder(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.EmbeddingModel, cfg.LLM.Timeout)
	limiter := llm.NewRateLimiter(cfg.LLM.RatePerSecond, cfg.LLM.RateBurst)
	retryPolicy := llm.RetryPolicy{
		MaxAttempts: cfg.LLM.MaxRetries,
		BaseDelay:   cfg.LLM.RetryBaseDelay,
		Jitter:      true,
	}

	grounding := engine.GroundingCheck{Mode: engine.GroundingMode(cfg.Grounding.Mode)}
	generator := engine.NewGenerator(llmClient, limiter, retryPolicy, grounding, logger)
	router := engine.NewRouter(llmClient, limiter, retryPolicy, logger)

	pipeline := engine.NewPipeline(engine.PipelineConfig{
		Source:    telemetryClient,
		Registry:  extractors.DefaultRegistry(),
		Scorer:    engine.NewScorer(),
		Profiles:  profiles,
		Router:    router,
		Embedder:  embedder,
		Index:     retrievalIndex,
		Generator: generator,
		Cache:     cacheProvider,
		CacheTTL:  cfg.Cache.TTL,
		TopK:      cfg.Index.TopK,
		Logger:    logger,
	})

	miner := patterns.NewMiner(24*time.Hour, logger)
	advisorService := services.NewAdvisorService(logger, pipeline, miner)
	handler := api.NewHandler(advisorService, retrievalIndex, embedder, miner, logger)

	server, err := api.NewServer(cfg.Server, handler.Routes())
	if err != nil {
		logger.Error("failed to create HTTP server", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("HTTP server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("oracle-advisor stopped")
}
