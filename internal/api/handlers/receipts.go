package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/dvloznov/expense-tracker/internal/api/middleware"
	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/dvloznov/expense-tracker/internal/jobs"
	"github.com/dvloznov/expense-tracker/internal/receipts"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// ReceiptFormField is the multipart field carrying the image.
const ReceiptFormField = "receipt"

// multipart overhead allowed on top of receipts.MaxSize
const formOverhead = 1 << 20

// ReceiptsHandler accepts receipt uploads and queues their extraction.
type ReceiptsHandler struct {
	intake    ReceiptIntake
	publisher jobs.Publisher
	log       zerolog.Logger
}

// NewReceiptsHandler creates a new receipts handler.
func NewReceiptsHandler(intake ReceiptIntake, publisher jobs.Publisher, log zerolog.Logger) *ReceiptsHandler {
	return &ReceiptsHandler{intake: intake, publisher: publisher, log: log}
}

// UploadReceipt handles POST /api/receipts
func (h *ReceiptsHandler) UploadReceipt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, receipts.MaxSize+formOverhead)
	file, header, err := r.FormFile(ReceiptFormField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, receipts.ErrTooLarge.Error())
			return
		}
		middleware.WriteError(w, http.StatusBadRequest, "Multipart field 'receipt' is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, receipts.MaxSize+1))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Failed to read upload")
		return
	}

	receipt, err := h.intake.Accept(ctx, header.Filename, data)
	if err != nil {
		switch {
		case errors.Is(err, receipts.ErrEmpty), errors.Is(err, receipts.ErrInvalidImage):
			middleware.WriteError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, receipts.ErrTooLarge):
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, err.Error())
		case errors.Is(err, receipts.ErrUnsupportedType):
			middleware.WriteError(w, http.StatusUnsupportedMediaType, err.Error())
		default:
			h.log.Error().Err(err).Str("filename", header.Filename).Msg("Failed to store receipt")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to store receipt")
		}
		return
	}

	job := &jobs.ExtractReceiptJob{
		ReceiptID:  receipt.ID,
		ReceiptURI: receipt.URI,
		MIMEType:   receipt.MIMEType,
	}
	if err := h.publisher.PublishExtractReceipt(ctx, job); err != nil {
		h.log.Error().Err(err).Str("receipt_id", receipt.ID).Msg("Failed to enqueue extraction job")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Failed to enqueue extraction job")
		return
	}
	// Workers own the job from here; only the id is read back.
	jobID := job.JobID

	h.log.Info().
		Str("job_id", jobID).
		Str("receipt_id", receipt.ID).
		Str("uri", receipt.URI).
		Int("bytes", receipt.Size).
		Msg("Extraction job enqueued")

	w.Header().Set("Location", "/api/jobs/"+jobID)
	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id":     jobID,
		"receipt_id": receipt.ID,
		"status":     string(jobs.JobStatusPending),
	})
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		ReceiptID: query.Get("receipt_id"),
		Status:    jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}
	if jobsList == nil {
		jobsList = []*jobs.ExtractReceiptJob{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
