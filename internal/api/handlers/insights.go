package handlers

import (
	"errors"
	"net/http"

	"github.com/dvloznov/expense-tracker/internal/api/middleware"
	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/rs/zerolog"
)

// InsightsHandler serves model-written spending insights.
type InsightsHandler struct {
	insights InsightsService
	svc      TransactionService
	log      zerolog.Logger
}

// NewInsightsHandler creates a new insights handler.
func NewInsightsHandler(insights InsightsService, svc TransactionService, log zerolog.Logger) *InsightsHandler {
	return &InsightsHandler{insights: insights, svc: svc, log: log}
}

// GetInsights handles GET /api/insights
func (h *InsightsHandler) GetInsights(w http.ResponseWriter, r *http.Request) {
	txs := h.svc.Transactions()

	text, err := h.insights.Summarize(r.Context(), txs)
	if err != nil {
		h.log.Error().Err(err).Int("transaction_count", len(txs)).Msg("Failed to generate insights")
		var ext *domain.ExternalServiceError
		if errors.As(err, &ext) {
			middleware.WriteError(w, http.StatusBadGateway, "Insights are unavailable right now")
			return
		}
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to generate insights")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"insights":          text,
		"transaction_count": len(txs),
	})
}
