package bigquery

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/dvloznov/expense-tracker/internal/domain"
)

type fakeRepo struct {
	existing map[string]struct{}
	inserted []*ExpenseRow
	err      error
}

func (f *fakeRepo) InsertExpenses(ctx context.Context, rows []*ExpenseRow) error {
	if f.err != nil {
		return f.err
	}
	f.inserted = append(f.inserted, rows...)
	return nil
}

func (f *fakeRepo) ListExpenseIDs(ctx context.Context) (map[string]struct{}, error) {
	return f.existing, f.err
}

func (f *fakeRepo) QueryCategoryTotals(ctx context.Context) ([]CategoryTotalRow, error) {
	return nil, f.err
}

func mustTx(t *testing.T, id, date, amount, name, category string) domain.Transaction {
	t.Helper()
	tx, err := domain.NewTransaction(date, amount, name, category, id)
	if err != nil {
		t.Fatalf("NewTransaction: %v", err)
	}
	return tx
}

func TestRowFromTransaction(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.FixedZone("MYT", 8*3600))
	tx := mustTx(t, "t1", "2024-03-15", "25.90", "Restaurant ABC", "food")

	row := RowFromTransaction(tx, "RM", now)

	if row.TransactionID != "t1" || row.Currency != "RM" || row.CategoryName != "Food" {
		t.Errorf("row = %+v", row)
	}
	if row.Amount.Cmp(big.NewRat(259, 10)) != 0 {
		t.Errorf("amount = %s, want 259/10", row.Amount.RatString())
	}
	if row.TransactionDate.String() != "2024-03-15" {
		t.Errorf("date = %s", row.TransactionDate)
	}
	if row.CreatedTS.Location() != time.UTC {
		t.Error("created_ts should be UTC")
	}
}

func TestExpenseRow_ToTransactionRoundTrip(t *testing.T) {
	tx := mustTx(t, "t2", "2024-03-01", "3000", "Landlord", "Rent")
	back, err := RowFromTransaction(tx, "RM", time.Now()).ToTransaction()
	if err != nil {
		t.Fatalf("ToTransaction: %v", err)
	}
	if back.ID != tx.ID || !back.Amount.Equal(tx.Amount) || back.Category != tx.Category || back.Date != tx.Date {
		t.Errorf("round trip = %+v, want %+v", back, tx)
	}

	if _, err := (&ExpenseRow{TransactionID: "t3"}).ToTransaction(); err == nil {
		t.Error("expected error for NULL amount")
	}
}

func TestSaversUseTransactionIDAsInsertID(t *testing.T) {
	rows := []*ExpenseRow{{TransactionID: "a"}, {TransactionID: "b"}}
	got := savers(rows)
	if len(got) != 2 || got[0].InsertID != "a" || got[1].InsertID != "b" {
		t.Errorf("savers = %+v", got)
	}
}

func TestTableRefString(t *testing.T) {
	ref := TableRef{Project: "p", Dataset: "finance", Table: "expenses"}
	if got := ref.String(); got != "`p.finance.expenses`" {
		t.Errorf("String() = %s", got)
	}
}

func TestMirror_SyncAllSkipsMirroredRows(t *testing.T) {
	repo := &fakeRepo{existing: map[string]struct{}{"t1": {}}}
	m := NewMirror(repo, "RM")

	res, err := m.SyncAll(context.Background(), []domain.Transaction{
		mustTx(t, "t1", "2024-03-01", "1", "A", "Food"),
		mustTx(t, "t2", "2024-03-02", "2", "B", "Transport"),
	})
	if err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	if res.Inserted != 1 || res.Skipped != 1 {
		t.Errorf("result = %+v", res)
	}
	if len(repo.inserted) != 1 || repo.inserted[0].TransactionID != "t2" {
		t.Errorf("inserted = %+v", repo.inserted)
	}
}

func TestMirror_PushPropagatesErrors(t *testing.T) {
	repo := &fakeRepo{err: errors.New("quota exceeded")}
	m := NewMirror(repo, "RM")
	if m.Name() != "bigquery" {
		t.Errorf("Name() = %q", m.Name())
	}
	if err := m.Push(context.Background(), mustTx(t, "t1", "2024-03-01", "1", "A", "Food")); err == nil {
		t.Error("expected error")
	}
}
