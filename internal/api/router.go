// Package api assembles the HTTP surface: routes, middleware and handlers.
package api

import (
	"net/http"

	"github.com/dvloznov/expense-tracker/internal/api/handlers"
	"github.com/dvloznov/expense-tracker/internal/api/middleware"
	"github.com/dvloznov/expense-tracker/internal/jobs"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Deps are the collaborators the routes need. Insights and Metrics are
// optional; their routes are not mounted when nil.
type Deps struct {
	Transactions handlers.TransactionService
	Intake       handlers.ReceiptIntake
	Publisher    jobs.Publisher
	Jobs         jobs.JobStore
	Insights     handlers.InsightsService
	Metrics      MetricsHandler
	Currency     string
	Log          zerolog.Logger
}

// MetricsHandler records request metrics and serves the exposition page.
// observability.Metrics implements it.
type MetricsHandler interface {
	middleware.RequestRecorder
	Handler() http.Handler
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	var rec middleware.RequestRecorder
	if d.Metrics != nil {
		rec = d.Metrics
	}

	r.Use(middleware.Recovery(d.Log))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(d.Log, rec))
	r.Use(middleware.CORS)

	r.Get("/health", handlers.Health)
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler())
	}

	transactions := handlers.NewTransactionsHandler(d.Transactions, d.Currency, d.Log)
	receipts := handlers.NewReceiptsHandler(d.Intake, d.Publisher, d.Log)
	jobsHandler := handlers.NewJobsHandler(d.Jobs, d.Log)

	r.Route("/api", func(r chi.Router) {
		r.Post("/receipts", receipts.UploadReceipt)

		r.Get("/jobs", jobsHandler.ListJobs)
		r.Get("/jobs/{id}", jobsHandler.GetJob)

		r.Post("/transactions/parse", transactions.ParseLine)
		r.Post("/transactions", transactions.CreateTransaction)
		r.Get("/transactions", transactions.ListTransactions)
		r.Delete("/transactions/{id}", transactions.DeleteTransaction)

		r.Get("/summary", transactions.GetSummary)
		r.Get("/categories", handlers.ListCategories)

		if d.Insights != nil {
			insights := handlers.NewInsightsHandler(d.Insights, d.Transactions, d.Log)
			r.Get("/insights", insights.GetInsights)
		}
	})

	return r
}
