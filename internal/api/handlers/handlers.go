// Package handlers implements the HTTP endpoints of the expense tracker.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dvloznov/expense-tracker/internal/api/middleware"
	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/dvloznov/expense-tracker/internal/pipeline"
	"github.com/dvloznov/expense-tracker/internal/receipts"
	"github.com/shopspring/decimal"
)

// TransactionService records and reads ledger transactions.
// pipeline.Recorder implements it.
type TransactionService interface {
	Record(ctx context.Context, tx domain.Transaction) (pipeline.RecordResult, error)
	Remove(ctx context.Context, id string) (bool, error)
	Transactions() []domain.Transaction
	Total() decimal.Decimal
	Summary() pipeline.Summary
}

// ReceiptIntake stores validated uploads. receipts.Intake implements it.
type ReceiptIntake interface {
	Accept(ctx context.Context, filename string, data []byte) (*receipts.Receipt, error)
}

// InsightsService produces a narrative summary of the ledger.
type InsightsService interface {
	Summarize(ctx context.Context, txs []domain.Transaction) (string, error)
}

// Health handles GET /health.
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// errorResponse is the body of a failed transaction request. Field and Line
// let a client point the user at what to correct.
type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
	Line  string `json:"line,omitempty"`
}

// writeDomainError maps domain error kinds to status codes.
func writeDomainError(w http.ResponseWriter, err error) bool {
	var verr *domain.ValidationError
	var perr *domain.ParseError
	switch {
	case errors.As(err, &perr):
		resp := errorResponse{Error: err.Error(), Line: perr.Line}
		if errors.As(perr.Err, &verr) {
			resp.Field = verr.Field
		}
		middleware.WriteJSON(w, http.StatusUnprocessableEntity, resp)
	case errors.As(err, &verr):
		middleware.WriteJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Field: verr.Field})
	case errors.Is(err, domain.ErrDuplicateID):
		middleware.WriteError(w, http.StatusConflict, "Transaction id already exists")
	case errors.Is(err, domain.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, "Not found")
	default:
		return false
	}
	return true
}
