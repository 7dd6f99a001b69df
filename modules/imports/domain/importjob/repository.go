package importjob

import (
	"context"

	"github.com/google/uuid"

	"github.com/iota-uz/caseflow/modules/cases/domain/caserow"
)

type Repository interface {
	Create(ctx context.Context, job *ImportJob) error
	GetByID(ctx context.Context, id uuid.UUID) (*ImportJob, error)
	// ListByCreator pages newest-first; cursor is the last-seen job id of
	// the previous page, uuid.Nil for the first page.
	ListByCreator(ctx context.Context, createdBy uuid.UUID, cursor uuid.UUID, limit int) ([]*ImportJob, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	// AddCounts atomically increments the progress counters and returns
	// the updated job.
	AddCounts(ctx context.Context, id uuid.UUID, success, failure int) (*ImportJob, error)
	// FinishIfDone moves the job to its terminal status when all declared
	// rows are accounted for. Exactly one concurrent caller wins; the
	// second return value reports whether this call was the winner.
	FinishIfDone(ctx context.Context, id uuid.UUID) (*ImportJob, bool, error)

	// ClaimChunk inserts the chunk marker and reports whether this caller
	// claimed it. A false return means the chunk was already processed
	// (or is being processed) by someone else.
	ClaimChunk(ctx context.Context, importID uuid.UUID, index, rowCount int) (bool, error)
	UpdateChunkCounts(ctx context.Context, chunk *Chunk) error
	GetChunk(ctx context.Context, importID uuid.UUID, index int) (*Chunk, error)
	// Chunks lists the import's chunk summaries in ascending index order.
	Chunks(ctx context.Context, importID uuid.UUID) ([]*Chunk, error)

	// RecordSuccess inserts the success ledger row. A false return means a
	// SUCCESS record for this case key already exists in this import.
	RecordSuccess(ctx context.Context, rec *RowRecord) (bool, error)
	// UpdateRowResult fills in the case id and action on the SUCCESS ledger
	// row once the upsert has run.
	UpdateRowResult(ctx context.Context, rec *RowRecord) error
	// RecordFailure inserts a FAILED ledger row; there is no uniqueness on
	// failures, every attempt leaves a record.
	RecordFailure(ctx context.Context, rec *RowRecord) error
	AddErrors(ctx context.Context, importID uuid.UUID, chunkIndex int, errs []caserow.FieldError) error
	Errors(ctx context.Context, importID uuid.UUID, limit, offset int) ([]*RowError, error)
	CountErrors(ctx context.Context, importID uuid.UUID) (int, error)

	AddAudit(ctx context.Context, entry *AuditEntry) error
	Audits(ctx context.Context, importID uuid.UUID) ([]*AuditEntry, error)
}
