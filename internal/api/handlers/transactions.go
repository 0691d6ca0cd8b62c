package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/dvloznov/expense-tracker/internal/alert"
	"github.com/dvloznov/expense-tracker/internal/api/middleware"
	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

// TransactionsHandler handles transaction endpoints.
type TransactionsHandler struct {
	svc      TransactionService
	currency string
	log      zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(svc TransactionService, currency string, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{svc: svc, currency: currency, log: log}
}

type recordResponse struct {
	Transaction domain.Transaction `json:"transaction"`
	Total       string             `json:"total"`
	Alert       *alert.Message     `json:"alert,omitempty"`
}

// CreateTransaction handles POST /api/transactions
func (h *TransactionsHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var in domain.TransactionInput
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&in); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	tx, err := in.Build()
	if err != nil {
		writeDomainError(w, err)
		return
	}

	res, err := h.svc.Record(r.Context(), tx)
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.log.Error().Err(err).Str("txn_id", tx.ID).Msg("Failed to record transaction")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to record transaction")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, recordResponse{
		Transaction: res.Transaction,
		Total:       res.Total.StringFixed(2),
		Alert:       res.Alert,
	})
}

// ParseLine handles POST /api/transactions/parse. It turns a canonical line
// into a draft without recording it.
func (h *TransactionsHandler) ParseLine(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Line string `json:"line"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	tx, err := domain.FromLine(req.Line)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"draft": tx,
		"line":  tx.ToLine(),
	})
}

// ListTransactions handles GET /api/transactions
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	txs := h.svc.Transactions()
	if txs == nil {
		txs = []domain.Transaction{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
		"count":        len(txs),
		"total":        h.svc.Total().StringFixed(2),
		"currency":     h.currency,
	})
}

// DeleteTransaction handles DELETE /api/transactions/{id}
func (h *TransactionsHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	removed, err := h.svc.Remove(r.Context(), id)
	if err != nil {
		h.log.Error().Err(err).Str("txn_id", id).Msg("Failed to remove transaction")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to remove transaction")
		return
	}
	if !removed {
		middleware.WriteError(w, http.StatusNotFound, "Transaction not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type categoryTotalResponse struct {
	Category domain.Category `json:"category"`
	Total    string          `json:"total"`
	Count    int             `json:"count"`
}

type summaryResponse struct {
	Count         int                     `json:"count"`
	Total         string                  `json:"total"`
	Threshold     string                  `json:"threshold"`
	OverThreshold bool                    `json:"over_threshold"`
	Currency      string                  `json:"currency"`
	ByCategory    []categoryTotalResponse `json:"by_category"`
}

// GetSummary handles GET /api/summary
func (h *TransactionsHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	s := h.svc.Summary()

	resp := summaryResponse{
		Count:         s.Count,
		Total:         s.Total.StringFixed(2),
		Threshold:     s.Threshold.StringFixed(2),
		OverThreshold: s.OverThreshold,
		Currency:      h.currency,
		ByCategory:    make([]categoryTotalResponse, 0, len(s.ByCategory)),
	}
	for _, c := range s.ByCategory {
		resp.ByCategory = append(resp.ByCategory, categoryTotalResponse{
			Category: c.Category,
			Total:    c.Total.StringFixed(2),
			Count:    c.Count,
		})
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

// ListCategories handles GET /api/categories
func ListCategories(w http.ResponseWriter, r *http.Request) {
	categories := domain.Categories()
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"categories": categories,
		"default":    domain.DefaultCategory,
		"count":      len(categories),
	})
}
