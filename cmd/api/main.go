package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/ledger-search/internal/api/handlers"
	"github.com/dvloznov/ledger-search/internal/api/middleware"
	"github.com/dvloznov/ledger-search/internal/app"
	"github.com/dvloznov/ledger-search/internal/config"
	"github.com/dvloznov/ledger-search/internal/indexer"
	"github.com/dvloznov/ledger-search/internal/jobs/inmemory"
	"github.com/dvloznov/ledger-search/internal/logger"
	"github.com/dvloznov/ledger-search/internal/search"
	"github.com/dvloznov/ledger-search/internal/snapshot"
)

func main() {
	// Parse command-line flags
	var (
		envFile = flag.String("env", ".env", "Path to an optional .env file")
		port    = flag.Int("port", 0, "HTTP server port (overrides LEDGER_PORT)")
	)
	flag.Parse()

	boot := logger.New()

	cfg, err := config.Load(*envFile)
	if err != nil {
		boot.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *port != 0 {
		cfg.Port = *port
	}

	log, err := logger.NewFromConfig(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	if err != nil {
		boot.Fatal().Err(err).Msg("Invalid logging configuration")
	}

	ctx := logger.WithContext(context.Background(), log)

	svc, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer svc.Close()

	// Serve whatever artifacts are on disk; queries fail with 503 until an
	// index is loaded or rebuilt.
	holder := snapshot.NewHolder(nil)
	if snap, err := holder.Reload(cfg.IndexPath, cfg.MetadataPath); err != nil {
		log.Warn().Err(err).
			Str("index_path", cfg.IndexPath).
			Str("metadata_path", cfg.MetadataPath).
			Msg("No index loaded; run build-index or POST /api/index/rebuild")
	} else {
		log.Info().Int("records", snap.Len()).Int("dim", snap.Index.Dim()).Str("build_id", snap.BuildID).Msg("Index loaded")
	}

	builder, err := svc.NewBuilder(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open transactions source")
	}

	sum, err := svc.NewSummarizer(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create summarizer")
	}

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.JobQueueSize, jobStore,
		inmemory.WithWorkers(cfg.JobWorkers),
		inmemory.WithLogger(log),
	)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	log.Info().Int("workers", cfg.JobWorkers).Msg("Starting rebuild worker")
	if err := jobQueue.Start(workerCtx, indexer.RebuildJobHandler(builder, holder)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start rebuild worker")
	}

	// Initialize handlers
	var builds handlers.BuildLister
	if svc.BuildLog != nil {
		builds = svc.BuildLog
	}
	router := handlers.NewRouter(handlers.Routes{
		Search:    handlers.NewSearchHandler(search.NewPipeline(holder, svc.Embedder, log), cfg.DefaultTopK, cfg.DefaultInitialFetch, log),
		Summarize: handlers.NewSummarizeHandler(sum, log),
		Index:     handlers.NewIndexHandler(holder, builds, jobQueue, cfg.IndexPath, cfg.MetadataPath, log),
		Jobs:      handlers.NewJobsHandler(jobStore, log),
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      middleware.Chain(router, log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("addr", server.Addr).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight builds
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}
