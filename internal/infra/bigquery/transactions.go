// Package bigquery mirrors the ledger into a BigQuery table for analysis.
// The workbook stays the source of truth.
package bigquery

import (
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/shopspring/decimal"
)

// ExpenseRow is one mirrored transaction.
type ExpenseRow struct {
	TransactionID   string     `bigquery:"transaction_id"`   // REQUIRED
	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED
	Amount          *big.Rat   `bigquery:"amount"`           // REQUIRED NUMERIC
	Currency        string     `bigquery:"currency"`         // REQUIRED
	BusinessName    string     `bigquery:"business_name"`
	CategoryName    string     `bigquery:"category_name"` // REQUIRED
	CreatedTS       time.Time  `bigquery:"created_ts"`    // REQUIRED
}

// CategoryTotalRow is one row of the per-category totals query.
type CategoryTotalRow struct {
	CategoryName string   `bigquery:"category_name"`
	Total        *big.Rat `bigquery:"total"`
	Count        int64    `bigquery:"n"`
}

// RowFromTransaction maps a ledger transaction to its mirror row.
func RowFromTransaction(tx domain.Transaction, currency string, now time.Time) *ExpenseRow {
	return &ExpenseRow{
		TransactionID:   tx.ID,
		TransactionDate: tx.Date,
		Amount:          tx.Amount.Rat(),
		Currency:        currency,
		BusinessName:    tx.BusinessName,
		CategoryName:    tx.Category.String(),
		CreatedTS:       now.UTC(),
	}
}

// ToTransaction maps a mirror row back to a transaction.
func (r *ExpenseRow) ToTransaction() (domain.Transaction, error) {
	if r.Amount == nil {
		return domain.Transaction{}, fmt.Errorf("row %s: amount is NULL", r.TransactionID)
	}
	amount, err := ratToDecimal(r.Amount)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("row %s: %w", r.TransactionID, err)
	}
	tx := domain.Transaction{
		ID:           r.TransactionID,
		Date:         r.TransactionDate,
		Amount:       amount,
		BusinessName: r.BusinessName,
		Category:     domain.Classify(r.CategoryName),
	}
	if err := tx.Validate(); err != nil {
		return domain.Transaction{}, fmt.Errorf("row %s: %w", r.TransactionID, err)
	}
	return tx, nil
}

// ratToDecimal converts a BigQuery NUMERIC, which carries at most nine
// fractional digits.
func ratToDecimal(r *big.Rat) (decimal.Decimal, error) {
	return decimal.NewFromString(r.FloatString(9))
}

// savers attaches each row's transaction id as the streaming insert id so
// re-sending a row within the dedup window does not duplicate it.
func savers(rows []*ExpenseRow) []*bigquery.StructSaver {
	out := make([]*bigquery.StructSaver, 0, len(rows))
	for _, r := range rows {
		out = append(out, &bigquery.StructSaver{Struct: r, InsertID: r.TransactionID})
	}
	return out
}
