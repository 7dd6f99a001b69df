package dtos

import (
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/caseflow/modules/cases/domain/caserow"
	"github.com/iota-uz/caseflow/modules/imports/domain/importjob"
)

type CreateImportRequest struct {
	Filename  string `json:"filename" validate:"required,max=255"`
	TotalRows int    `json:"totalRows" validate:"required,gt=0"`
}

type SuggestMappingRequest struct {
	Headers []string `json:"headers" validate:"required,min=1"`
}

type SuggestMappingResponse struct {
	Mapping         map[string]string `json:"mapping"`
	MissingRequired []string          `json:"missingRequired,omitempty"`
}

type ChunkRequest struct {
	ChunkIndex *int          `json:"chunkIndex" validate:"required,gte=0"`
	Rows       []caserow.Row `json:"rows" validate:"required,min=1,dive"`
}

type ImportResponse struct {
	ID           uuid.UUID  `json:"id"`
	Filename     string     `json:"filename"`
	TotalRows    int        `json:"totalRows"`
	SuccessCount int        `json:"successCount"`
	FailureCount int        `json:"failureCount"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

func NewImportResponse(job *importjob.ImportJob) ImportResponse {
	return ImportResponse{
		ID:           job.ID,
		Filename:     job.Filename,
		TotalRows:    job.TotalRows,
		SuccessCount: job.SuccessCount,
		FailureCount: job.FailureCount,
		Status:       job.Status,
		CreatedAt:    job.CreatedAt,
		CompletedAt:  job.CompletedAt,
	}
}

// ImportListResponse is one page of the caller's imports, newest first.
// NextCursor is empty on the last page.
type ImportListResponse struct {
	Imports    []ImportResponse `json:"imports"`
	NextCursor string           `json:"nextCursor,omitempty"`
}

type ChunkSummaryResponse struct {
	ChunkIndex   int       `json:"chunkIndex"`
	RowCount     int       `json:"rowCount"`
	SuccessCount int       `json:"successCount"`
	FailureCount int       `json:"failureCount"`
	CreatedCount int       `json:"createdCount"`
	UpdatedCount int       `json:"updatedCount"`
	ReceivedAt   time.Time `json:"receivedAt"`
}

// ImportDetailResponse is the job with its chunks in ascending index order,
// a first page of errors and the audit trail.
type ImportDetailResponse struct {
	ImportResponse
	Chunks []ChunkSummaryResponse `json:"chunks"`
	Errors []RowErrorResponse     `json:"errors"`
	Audits []AuditEntryResponse   `json:"audits"`
}

type ChunkResponse struct {
	ChunkIndex   int            `json:"chunkIndex"`
	RowCount     int            `json:"rowCount"`
	SuccessCount int            `json:"successCount"`
	FailureCount int            `json:"failureCount"`
	CreatedCount int            `json:"createdCount"`
	UpdatedCount int            `json:"updatedCount"`
	Replayed     bool           `json:"replayed"`
	Import       ImportResponse `json:"import"`
}

type RowErrorResponse struct {
	RowNumber int    `json:"rowNumber"`
	Field     string `json:"field"`
	Message   string `json:"message"`
}

type ErrorsPageResponse struct {
	Errors []RowErrorResponse `json:"errors"`
	Total  int                `json:"total"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}

type AuditEntryResponse struct {
	Event     string         `json:"event"`
	ActorID   uuid.UUID      `json:"actorId"`
	Meta      map[string]any `json:"meta,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}
