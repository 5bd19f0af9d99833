package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tpelligrinomid/midrag/internal/api"
	"github.com/tpelligrinomid/midrag/internal/api/middleware"
	"github.com/tpelligrinomid/midrag/internal/domain"
	"github.com/tpelligrinomid/midrag/internal/service"
)

type IngestionService interface {
	Ingest(ctx context.Context, input service.IngestInput) (int, error)
}

type IngestJobEnqueuer interface {
	Create(ctx context.Context, job *domain.IngestJob) error
	GetByID(ctx context.Context, id string) (*domain.IngestJob, error)
}

type IngestHandler struct {
	svc  IngestionService
	jobs IngestJobEnqueuer
}

func NewIngestHandler(svc IngestionService, jobs IngestJobEnqueuer) *IngestHandler {
	return &IngestHandler{svc: svc, jobs: jobs}
}

type IngestRequest struct {
	SourceType string            `json:"source_type"`
	SourceID   string            `json:"source_id"`
	Title      string            `json:"title"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata"`
}

type IngestResponse struct {
	ChunksCreated int `json:"chunks_created"`
}

type IngestJobResponse struct {
	JobID       string `json:"job_id"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
	ProcessedAt string `json:"processed_at,omitempty"`
}

// Ingest handles POST /ingest. With ?async=1 the document is queued for the
// background worker instead of being processed inline.
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.SourceID == "" {
		api.Error(w, http.StatusBadRequest, "source_id is required")
		return
	}
	sourceType := domain.SourceType(req.SourceType)
	if !domain.IsValidSourceType(sourceType) {
		api.Error(w, http.StatusBadRequest, "invalid source type")
		return
	}

	tenantID := middleware.GetTenantID(r.Context())

	if isAsync(r) {
		job := &domain.IngestJob{
			ID:         uuid.NewString(),
			TenantID:   tenantID,
			SourceType: sourceType,
			SourceID:   req.SourceID,
			Title:      req.Title,
			Content:    req.Content,
			Metadata:   req.Metadata,
			Status:     domain.IngestJobStatusPending,
			CreatedAt:  time.Now().UTC(),
		}
		if err := h.jobs.Create(r.Context(), job); err != nil {
			api.HandleError(w, err)
			return
		}
		api.Success(w, http.StatusAccepted, IngestJobResponse{JobID: job.ID, Status: string(job.Status)})
		return
	}

	count, err := h.svc.Ingest(r.Context(), service.IngestInput{
		TenantID:   tenantID,
		SourceType: sourceType,
		SourceID:   req.SourceID,
		Title:      req.Title,
		Content:    req.Content,
		Metadata:   req.Metadata,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, IngestResponse{ChunksCreated: count})
}

// GetJob handles GET /ingest/jobs/{jobID}.
func (h *IngestHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if jobID == "" {
		api.Error(w, http.StatusBadRequest, "job ID is required")
		return
	}

	job, err := h.jobs.GetByID(r.Context(), jobID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	// Jobs are tenant-private; a mismatched tenant sees not-found.
	if job.TenantID != middleware.GetTenantID(r.Context()) {
		api.HandleError(w, domain.ErrIngestJobNotFound)
		return
	}

	resp := IngestJobResponse{
		JobID:  job.ID,
		Status: string(job.Status),
		Error:  job.Error,
	}
	if job.ProcessedAt != nil {
		resp.ProcessedAt = job.ProcessedAt.Format("2006-01-02T15:04:05Z")
	}
	api.Success(w, http.StatusOK, resp)
}

func isAsync(r *http.Request) bool {
	switch r.URL.Query().Get("async") {
	case "1", "true":
		return true
	}
	return false
}
