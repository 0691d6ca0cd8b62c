package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/expense-tracker/internal/domain"
)

// ExpenseRepository is the mirror's storage contract.
type ExpenseRepository interface {
	InsertExpenses(ctx context.Context, rows []*ExpenseRow) error
	ListExpenseIDs(ctx context.Context) (map[string]struct{}, error)
	QueryCategoryTotals(ctx context.Context) ([]CategoryTotalRow, error)
}

// Config selects the mirror table.
type Config struct {
	Project string
	Dataset string
	Table   string
}

// BigQueryExpenseRepository is the concrete ExpenseRepository. It holds a
// shared BigQuery client to avoid creating a new connection per operation.
type BigQueryExpenseRepository struct {
	client *bigquery.Client
	ref    TableRef
}

// NewBigQueryExpenseRepository creates a client for cfg.Project.
func NewBigQueryExpenseRepository(ctx context.Context, cfg Config) (*BigQueryExpenseRepository, error) {
	client, err := bigquery.NewClient(ctx, cfg.Project)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryExpenseRepository: creating client: %w", err)
	}
	return &BigQueryExpenseRepository{
		client: client,
		ref:    TableRef{Project: cfg.Project, Dataset: cfg.Dataset, Table: cfg.Table},
	}, nil
}

// Close closes the BigQuery client connection.
func (r *BigQueryExpenseRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// EnsureTable creates the mirror table if needed.
func (r *BigQueryExpenseRepository) EnsureTable(ctx context.Context) error {
	return EnsureTableWithClient(ctx, r.client, r.ref)
}

// InsertExpenses delegates to InsertExpensesWithClient with the shared client.
func (r *BigQueryExpenseRepository) InsertExpenses(ctx context.Context, rows []*ExpenseRow) error {
	return InsertExpensesWithClient(ctx, r.client, r.ref, rows)
}

// ListExpenseIDs delegates to ListExpenseIDsWithClient with the shared client.
func (r *BigQueryExpenseRepository) ListExpenseIDs(ctx context.Context) (map[string]struct{}, error) {
	return ListExpenseIDsWithClient(ctx, r.client, r.ref)
}

// QueryCategoryTotals delegates to QueryCategoryTotalsWithClient with the shared client.
func (r *BigQueryExpenseRepository) QueryCategoryTotals(ctx context.Context) ([]CategoryTotalRow, error) {
	return QueryCategoryTotalsWithClient(ctx, r.client, r.ref)
}

// Mirror pushes ledger transactions into an ExpenseRepository.
// It implements pipeline.Sink.
type Mirror struct {
	repo     ExpenseRepository
	currency string
	now      func() time.Time
}

// NewMirror creates a mirror writing amounts in currency.
func NewMirror(repo ExpenseRepository, currency string) *Mirror {
	return &Mirror{repo: repo, currency: currency, now: time.Now}
}

// Name identifies the sink in logs and metrics.
func (m *Mirror) Name() string { return "bigquery" }

// Push mirrors one transaction.
func (m *Mirror) Push(ctx context.Context, tx domain.Transaction) error {
	return m.repo.InsertExpenses(ctx, []*ExpenseRow{RowFromTransaction(tx, m.currency, m.now())})
}

// SyncResult reports what SyncAll did.
type SyncResult struct {
	Inserted int
	Skipped  int
}

// SyncAll inserts every transaction that is not mirrored yet.
func (m *Mirror) SyncAll(ctx context.Context, txs []domain.Transaction) (SyncResult, error) {
	existing, err := m.repo.ListExpenseIDs(ctx)
	if err != nil {
		return SyncResult{}, err
	}

	now := m.now()
	var rows []*ExpenseRow
	for _, tx := range txs {
		if _, ok := existing[tx.ID]; ok {
			continue
		}
		rows = append(rows, RowFromTransaction(tx, m.currency, now))
	}

	if err := m.repo.InsertExpenses(ctx, rows); err != nil {
		return SyncResult{}, err
	}
	return SyncResult{Inserted: len(rows), Skipped: len(txs) - len(rows)}, nil
}

// CategoryTotals returns mirrored totals per category.
func (m *Mirror) CategoryTotals(ctx context.Context) ([]CategoryTotalRow, error) {
	return m.repo.QueryCategoryTotals(ctx)
}

var _ ExpenseRepository = (*BigQueryExpenseRepository)(nil)
