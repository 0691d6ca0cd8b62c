package pipeline

import (
	"context"
	"time"

	"github.com/dvloznov/expense-tracker/internal/alert"
	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/shopspring/decimal"
)

// Extractor reads a receipt image and returns the model's one-line CSV answer.
type Extractor interface {
	ExtractLine(ctx context.Context, image []byte, mimeType string) (string, error)
}

// Fetcher loads stored receipt bytes by URI.
// receipts.Intake satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// Ledger is the part of the ledger store the recorder needs.
// ledger.Store satisfies it.
type Ledger interface {
	Append(ctx context.Context, tx domain.Transaction) error
	Remove(ctx context.Context, id string) (bool, error)
	All() []domain.Transaction
	Total() decimal.Decimal
}

// AlertChecker evaluates a new total and delivers the alert when it fires.
// alert.Monitor satisfies it.
type AlertChecker interface {
	Check(ctx context.Context, total decimal.Decimal) *alert.Message
	Alert() *alert.Alert
}

// Sink receives a copy of every recorded transaction, such as the BigQuery
// table or the Notion database. Sink failures never fail a record.
type Sink interface {
	Name() string
	Push(ctx context.Context, tx domain.Transaction) error
}

// Metrics is the subset of observability.Metrics used by the pipeline.
type Metrics interface {
	ObserveTransaction(op string)
	SetTotal(total decimal.Decimal)
	ObserveExtraction(result string, d time.Duration)
	RecordTokens(prompt, completion int)
	IncrExternalError(service string)
	IncrCacheHit(cache string)
	IncrCacheMiss(cache string)
}

// nopMetrics discards everything.
type nopMetrics struct{}

func (nopMetrics) ObserveTransaction(string) {}
func (nopMetrics) SetTotal(decimal.Decimal) {}
func (nopMetrics) ObserveExtraction(string, time.Duration) {}
func (nopMetrics) RecordTokens(int, int) {}
func (nopMetrics) IncrExternalError(string) {}
func (nopMetrics) IncrCacheHit(string) {}
func (nopMetrics) IncrCacheMiss(string) {}
