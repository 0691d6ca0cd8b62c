package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/expense-tracker/internal/api"
	"github.com/dvloznov/expense-tracker/internal/app"
	"github.com/dvloznov/expense-tracker/internal/config"
	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/dvloznov/expense-tracker/internal/infra/observability"
	"github.com/dvloznov/expense-tracker/internal/jobs/inmemory"
	"github.com/dvloznov/expense-tracker/internal/logger"
	"github.com/dvloznov/expense-tracker/internal/pipeline"
	"github.com/dvloznov/expense-tracker/internal/receipts"
)

func main() {
	port := flag.String("port", "", "HTTP server port (overrides PORT)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log := logger.New()
		var cerr *domain.ConfigurationError
		if errors.As(err, &cerr) {
			log.Fatal().Strs("missing", cerr.Missing).Interface("invalid", cerr.Invalid).Msg("Invalid configuration")
		}
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *port != "" {
		cfg.Port = *port
	}

	log := logger.NewWithLevel(cfg.LogLevel)
	ctx := logger.WithContext(context.Background(), log)
	metrics := observability.NewMetrics()

	var closers app.Closers
	defer func() {
		if err := closers.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to release resources")
		}
	}()

	store, err := app.OpenLedger(ctx, cfg, log, metrics)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger")
	}
	closers.Add(store.Close)

	monitor, err := app.NewMonitor(cfg, log, metrics)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure alert")
	}

	blobs, err := app.NewBlobStore(ctx, cfg, &closers)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open receipt storage")
	}
	intake := receipts.NewIntake(blobs)

	extractor, err := app.NewExtractor(ctx, cfg, log, metrics)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create extractor")
	}

	insights, err := app.NewInsights(ctx, cfg, log, metrics, &closers)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create insights")
	}

	sinks := app.NewSinks(ctx, cfg, log, &closers)
	recorder := app.NewRecorder(cfg, store, monitor, sinks, log, metrics)

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.JobQueueSize, jobStore,
		inmemory.WithWorkers(cfg.JobWorkers),
		inmemory.WithObserver(metrics),
		inmemory.WithLogger(log),
	)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	jobHandler := pipeline.NewExtractJobHandler(pipeline.NewReceiptPipeline(intake, extractor), log)
	if err := jobQueue.Start(workerCtx, jobHandler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job worker")
	}

	handler := api.NewRouter(api.Deps{
		Transactions: recorder,
		Intake:       intake,
		Publisher:    jobQueue,
		Jobs:         jobStore,
		Insights:     insights,
		Metrics:      metrics,
		Currency:     cfg.Currency,
		Log:          log,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.ExtractTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("port", cfg.Port).
			Str("ledger", store.Path()).
			Str("threshold", cfg.AlertThreshold.StringFixed(2)).
			Str("alert_mode", string(cfg.AlertMode)).
			Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Let in-flight extractions finish before the workers' context goes away.
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Server exited")
}
