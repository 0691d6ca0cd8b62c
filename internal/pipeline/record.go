package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/dvloznov/expense-tracker/internal/alert"
	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const maxConcurrentSinks = 4

// RecordResult is what a successful record reports back.
type RecordResult struct {
	Transaction domain.Transaction
	Total       decimal.Decimal
	// Alert is set when the new total fired the threshold alert.
	Alert *alert.Message
}

// CategoryTotal is the spend for one category.
type CategoryTotal struct {
	Category domain.Category
	Total    decimal.Decimal
	Count    int
}

// Summary describes the ledger as a whole.
type Summary struct {
	Count         int
	Total         decimal.Decimal
	Threshold     decimal.Decimal
	OverThreshold bool
	// ByCategory lists every category in enum order, including empty ones.
	ByCategory []CategoryTotal
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithSinks adds mirrors that receive every recorded transaction.
func WithSinks(sinks ...Sink) RecorderOption {
	return func(r *Recorder) { r.sinks = append(r.sinks, sinks...) }
}

// WithMirrorTimeout bounds the whole sink fan-out.
func WithMirrorTimeout(d time.Duration) RecorderOption {
	return func(r *Recorder) {
		if d > 0 {
			r.mirrorTimeout = d
		}
	}
}

// WithRecorderMetrics reports ledger mutations and the running total.
func WithRecorderMetrics(m Metrics) RecorderOption {
	return func(r *Recorder) { r.metrics = m }
}

// WithRecorderLogger sets the logger.
func WithRecorderLogger(log zerolog.Logger) RecorderOption {
	return func(r *Recorder) { r.log = log }
}

// Recorder appends confirmed transactions to the ledger, checks the threshold
// alert against the new total and copies the transaction to every sink.
type Recorder struct {
	ledger        Ledger
	monitor       AlertChecker
	sinks         []Sink
	mirrorTimeout time.Duration
	metrics       Metrics
	log           zerolog.Logger

	// mu pairs each append with the total that includes it.
	mu sync.Mutex
}

// NewRecorder creates a Recorder.
func NewRecorder(ledger Ledger, monitor AlertChecker, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		ledger:        ledger,
		monitor:       monitor,
		mirrorTimeout: DefaultMirrorTimeout,
		metrics:       nopMetrics{},
		log:           zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends tx and evaluates the alert on the new total.
// Only ledger errors are returned; alert and sink failures are logged.
func (r *Recorder) Record(ctx context.Context, tx domain.Transaction) (RecordResult, error) {
	r.mu.Lock()
	if err := r.ledger.Append(ctx, tx); err != nil {
		r.mu.Unlock()
		return RecordResult{}, err
	}
	total := r.ledger.Total()
	r.mu.Unlock()

	r.metrics.ObserveTransaction("recorded")
	r.metrics.SetTotal(total)
	r.log.Info().
		Str("txn_id", tx.ID).
		Str("amount", tx.AmountString()).
		Str("category", tx.Category.String()).
		Str("total", total.StringFixed(2)).
		Msg("Transaction recorded")

	msg := r.monitor.Check(ctx, total)
	r.mirror(ctx, tx)

	return RecordResult{Transaction: tx, Total: total, Alert: msg}, nil
}

// mirror pushes tx to every sink concurrently and waits for all of them.
func (r *Recorder) mirror(ctx context.Context, tx domain.Transaction) {
	if len(r.sinks) == 0 {
		return
	}

	// The caller going away must not cut a mirror write short.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.mirrorTimeout)
	defer cancel()

	var g errgroup.Group
	g.SetLimit(maxConcurrentSinks)
	for _, sink := range r.sinks {
		sink := sink
		g.Go(func() error {
			if err := sink.Push(ctx, tx); err != nil {
				r.metrics.IncrExternalError(sink.Name())
				r.log.Warn().
					Err(err).
					Str("event", "mirror_failed").
					Str("sink", sink.Name()).
					Str("txn_id", tx.ID).
					Msg("Mirror write failed")
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Remove deletes the transaction with id. It reports false when no such
// transaction exists. A removal that brings the total back under the
// threshold rearms the alert; it never sends one.
func (r *Recorder) Remove(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	removed, err := r.ledger.Remove(ctx, id)
	if err != nil || !removed {
		r.mu.Unlock()
		return removed, err
	}
	total := r.ledger.Total()
	r.mu.Unlock()

	r.metrics.ObserveTransaction("removed")
	r.metrics.SetTotal(total)
	r.log.Info().Str("txn_id", id).Str("total", total.StringFixed(2)).Msg("Transaction removed")

	if _, over := r.monitor.Alert().Evaluate(total); !over {
		r.monitor.Check(ctx, total)
	}
	return true, nil
}

// Transactions returns every transaction in insertion order.
func (r *Recorder) Transactions() []domain.Transaction {
	return r.ledger.All()
}

// Total returns the current ledger total.
func (r *Recorder) Total() decimal.Decimal {
	return r.ledger.Total()
}

// Summary aggregates the ledger by category.
func (r *Recorder) Summary() Summary {
	txs := r.ledger.All()

	cats := domain.Categories()
	out := make([]CategoryTotal, len(cats))
	index := make(map[domain.Category]int, len(cats))
	for i, c := range cats {
		out[i] = CategoryTotal{Category: c, Total: decimal.Zero}
		index[c] = i
	}

	total := decimal.Zero
	for _, tx := range txs {
		total = total.Add(tx.Amount)
		i, ok := index[tx.Category]
		if !ok {
			i = index[domain.DefaultCategory]
		}
		out[i].Total = out[i].Total.Add(tx.Amount)
		out[i].Count++
	}

	threshold := r.monitor.Alert().Threshold()
	_, over := r.monitor.Alert().Evaluate(total)
	return Summary{
		Count:         len(txs),
		Total:         total,
		Threshold:     threshold,
		OverThreshold: over,
		ByCategory:    out,
	}
}
