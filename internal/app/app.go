// Package app builds the long-lived components shared by the binaries
// from a loaded configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/expense-tracker/internal/alert"
	"github.com/dvloznov/expense-tracker/internal/config"
	infraBQ "github.com/dvloznov/expense-tracker/internal/infra/bigquery"
	"github.com/dvloznov/expense-tracker/internal/infra/observability"
	"github.com/dvloznov/expense-tracker/internal/infra/resilience"
	"github.com/dvloznov/expense-tracker/internal/ledger"
	"github.com/dvloznov/expense-tracker/internal/notionsync"
	"github.com/dvloznov/expense-tracker/internal/pipeline"
	"github.com/dvloznov/expense-tracker/internal/receipts"
	"github.com/rs/zerolog"
)

// Closer releases a component. Closers run in reverse order of creation.
type Closer func() error

// Closers collects cleanup functions.
type Closers []Closer

// Add registers c.
func (cs *Closers) Add(c Closer) {
	*cs = append(*cs, c)
}

// Close runs every closer, last added first, and joins their errors.
func (cs Closers) Close() error {
	var errs []error
	for i := len(cs) - 1; i >= 0; i-- {
		if err := cs[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OpenLedger opens the workbook at cfg.LedgerPath. A recovered workbook is
// logged and counted, never returned as an error.
func OpenLedger(ctx context.Context, cfg *config.Config, log zerolog.Logger, metrics *observability.Metrics) (*ledger.Store, error) {
	opts := []ledger.Option{ledger.WithLogger(log)}
	if metrics != nil {
		opts = append(opts, ledger.WithRecoveryObserver(metrics))
	}
	store, err := ledger.Open(ctx, cfg.LedgerPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("opening ledger %s: %w", cfg.LedgerPath, err)
	}
	return store, nil
}

// NewMonitor builds the threshold alert. Alerts go out by SMTP when
// credentials are configured and are only logged otherwise.
func NewMonitor(cfg *config.Config, log zerolog.Logger, metrics *observability.Metrics) (*alert.Monitor, error) {
	a, err := alert.New(cfg.AlertThreshold, cfg.AlertRecipient, alert.WithCurrency(cfg.Currency))
	if err != nil {
		return nil, err
	}

	var notifier alert.Notifier
	if cfg.SMTPConfigured() {
		smtp, err := alert.NewSMTPNotifier(alert.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPSender,
			Password: cfg.SMTPPassword,
			Timeout:  cfg.SMTPTimeout,
		})
		if err != nil {
			return nil, err
		}
		notifier = smtp
	} else {
		log.Warn().Msg("SMTP not configured - alerts will only be logged")
		notifier = alert.NewLogNotifier(log)
	}

	opts := []alert.MonitorOption{
		alert.WithMode(alert.Mode(cfg.AlertMode)),
		alert.WithLogger(log),
	}
	if metrics != nil {
		opts = append(opts, alert.WithObserver(metrics))
	}
	return alert.NewMonitor(a, notifier, opts...), nil
}

// NewBlobStore stores receipts in GCS when a bucket is configured and in
// cfg.UploadDir otherwise.
func NewBlobStore(ctx context.Context, cfg *config.Config, closers *Closers) (receipts.BlobStore, error) {
	if cfg.GCSBucket != "" {
		store, err := receipts.NewGCSStore(ctx, cfg.GCSBucket)
		if err != nil {
			return nil, err
		}
		closers.Add(store.Close)
		return store, nil
	}
	return receipts.NewLocalStore(cfg.UploadDir)
}

// NewExtractor builds the Gemini vision extractor.
func NewExtractor(ctx context.Context, cfg *config.Config, log zerolog.Logger, metrics *observability.Metrics) (*pipeline.GeminiExtractor, error) {
	opts := []pipeline.ExtractorOption{pipeline.WithExtractorLogger(log)}
	if metrics != nil {
		opts = append(opts, pipeline.WithExtractorMetrics(metrics))
	}
	return pipeline.NewGeminiExtractor(ctx, pipeline.ExtractorConfig{
		APIKey:  cfg.GeminiAPIKey,
		Model:   cfg.GeminiModel,
		Timeout: cfg.ExtractTimeout,
		Resilience: resilience.Config{
			MaxRetries:     cfg.ExtractMaxRetries,
			InitialBackoff: cfg.ExtractInitialBackoff,
			MaxConcurrency: cfg.ExtractMaxConcurrency,
		},
	}, opts...)
}

// NewInsights builds the cached spending-insights generator.
func NewInsights(ctx context.Context, cfg *config.Config, log zerolog.Logger, metrics *observability.Metrics, closers *Closers) (*pipeline.Insights, error) {
	var m pipeline.Metrics
	if metrics != nil {
		m = metrics
	}
	ins, err := pipeline.NewInsights(ctx, pipeline.InsightsConfig{
		APIKey:   cfg.GeminiAPIKey,
		Model:    cfg.GeminiModel,
		Currency: cfg.Currency,
		Timeout:  cfg.ExtractTimeout,
		CacheTTL: cfg.InsightsCacheTTL,
	}, m, log)
	if err != nil {
		return nil, err
	}
	closers.Add(func() error { ins.Close(); return nil })
	return ins, nil
}

// NewBigQueryMirror connects to the configured expenses table and makes
// sure it exists.
func NewBigQueryMirror(ctx context.Context, cfg *config.Config, closers *Closers) (*infraBQ.Mirror, error) {
	repo, err := infraBQ.NewBigQueryExpenseRepository(ctx, infraBQ.Config{
		Project: cfg.BigQueryProject,
		Dataset: cfg.BigQueryDataset,
		Table:   cfg.BigQueryTable,
	})
	if err != nil {
		return nil, err
	}
	closers.Add(repo.Close)
	if err := repo.EnsureTable(ctx); err != nil {
		return nil, err
	}
	return infraBQ.NewMirror(repo, cfg.Currency), nil
}

// NewNotionSyncer returns the Notion mirror for the configured database.
func NewNotionSyncer(cfg *config.Config) *notionsync.Syncer {
	return notionsync.NewSyncer(notionsync.NewNotionClient(cfg.NotionToken), cfg.NotionDatabaseID)
}

// NewSinks returns every configured mirror. A mirror that fails to start is
// logged and left out; the ledger stays the source of truth.
func NewSinks(ctx context.Context, cfg *config.Config, log zerolog.Logger, closers *Closers) []pipeline.Sink {
	var sinks []pipeline.Sink
	if cfg.BigQueryConfigured() {
		mirror, err := NewBigQueryMirror(ctx, cfg, closers)
		if err != nil {
			log.Warn().Err(err).Str("sink", "bigquery").Msg("Mirror disabled")
		} else {
			sinks = append(sinks, mirror)
		}
	}
	if cfg.NotionConfigured() {
		sinks = append(sinks, NewNotionSyncer(cfg))
	}
	for _, s := range sinks {
		log.Info().Str("sink", s.Name()).Msg("Mirror enabled")
	}
	return sinks
}

// NewRecorder wires the ledger, the alert monitor and the mirrors.
func NewRecorder(cfg *config.Config, store *ledger.Store, monitor *alert.Monitor, sinks []pipeline.Sink, log zerolog.Logger, metrics *observability.Metrics) *pipeline.Recorder {
	opts := []pipeline.RecorderOption{
		pipeline.WithSinks(sinks...),
		pipeline.WithMirrorTimeout(cfg.MirrorTimeout),
		pipeline.WithRecorderLogger(log),
	}
	if metrics != nil {
		opts = append(opts, pipeline.WithRecorderMetrics(metrics))
	}
	return pipeline.NewRecorder(store, monitor, opts...)
}
