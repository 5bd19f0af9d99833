package domain

import (
	"fmt"
	"time"
)

// IngestJobStatus represents the status of an asynchronous ingestion job
type IngestJobStatus string

const (
	IngestJobStatusPending    IngestJobStatus = "pending"
	IngestJobStatusProcessing IngestJobStatus = "processing"
	IngestJobStatusCompleted  IngestJobStatus = "completed"
	IngestJobStatusFailed     IngestJobStatus = "failed"
)

// IngestJob represents a queued ingestion of one source document. Jobs carry
// the full document so a retry never depends on the collaborator re-sending it.
type IngestJob struct {
	ID          string
	TenantID    string
	SourceType  SourceType
	SourceID    string
	Title       string
	Content     string
	Metadata    map[string]string
	Status      IngestJobStatus
	Retries     int32
	Error       string
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// ValidateIngestJob validates an IngestJob instance
func ValidateIngestJob(j *IngestJob) error {
	if j == nil {
		return fmt.Errorf("ingest job cannot be nil")
	}
	if j.ID == "" {
		return fmt.Errorf("ingest job ID is required")
	}
	if j.SourceID == "" {
		return fmt.Errorf("ingest job source ID is required")
	}
	if !IsValidSourceType(j.SourceType) {
		return fmt.Errorf("ingest job source type is invalid: %s", j.SourceType)
	}
	if !isValidIngestJobStatus(j.Status) {
		return fmt.Errorf("ingest job status is invalid: %s", j.Status)
	}
	if j.Retries < 0 {
		return fmt.Errorf("ingest job retries cannot be negative")
	}
	return nil
}

func isValidIngestJobStatus(s IngestJobStatus) bool {
	switch s {
	case IngestJobStatusPending, IngestJobStatusProcessing,
		IngestJobStatusCompleted, IngestJobStatusFailed:
		return true
	}
	return false
}
