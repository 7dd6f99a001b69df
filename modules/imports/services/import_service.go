package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/iota-uz/caseflow/modules/cases/domain/caserecord"
	"github.com/iota-uz/caseflow/modules/cases/domain/caserow"
	"github.com/iota-uz/caseflow/modules/imports/domain/importjob"
	"github.com/iota-uz/caseflow/pkg/composables"
	"github.com/iota-uz/caseflow/pkg/eventbus"
	"github.com/iota-uz/caseflow/pkg/serrors"
)

var (
	ErrImportNotFound = serrors.NewError("NOT_FOUND", "import not found", "")
	ErrNotOwner       = serrors.NewError("FORBIDDEN", "import belongs to another user", "")
	ErrImportComplete = serrors.NewError("IMPORT_COMPLETE", "import already reached a terminal status", "")
	ErrChunkTooLarge  = serrors.NewError("CHUNK_TOO_LARGE", "chunk exceeds the row limit", "")
	ErrEmptyImport    = serrors.NewError("VALIDATION_ERROR", "totalRows must be positive", "")
)

// duplicate across chunks of the same import, detected by the ledger
const dupAcrossFileMessage = "duplicate caseId in import (already imported by an earlier chunk)"

type ImportServiceOptions struct {
	Imports   importjob.Repository
	Cases     caserecord.Repository
	Publisher eventbus.EventBus
	// MaxChunkRows rejects oversized chunks before any row is touched.
	MaxChunkRows int
	// Now is swappable for tests; defaults to time.Now.
	Now func() time.Time
	// InTx is swappable for tests; defaults to composables.InTx.
	InTx func(ctx context.Context, fn func(context.Context) error) error
}

type ImportService struct {
	imports      importjob.Repository
	cases        caserecord.Repository
	publisher    eventbus.EventBus
	maxChunkRows int
	now          func() time.Time
	inTx         func(ctx context.Context, fn func(context.Context) error) error
}

func NewImportService(opts ImportServiceOptions) *ImportService {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	maxChunkRows := opts.MaxChunkRows
	if maxChunkRows <= 0 {
		maxChunkRows = 1000
	}
	inTx := opts.InTx
	if inTx == nil {
		inTx = composables.InTx
	}
	return &ImportService{
		imports:      opts.Imports,
		cases:        opts.Cases,
		publisher:    opts.Publisher,
		maxChunkRows: maxChunkRows,
		now:          now,
		inTx:         inTx,
	}
}

// Create registers a new import job. totalRows is the count of valid rows
// the client will upload in chunks.
func (s *ImportService) Create(ctx context.Context, filename string, totalRows int) (*importjob.ImportJob, error) {
	actor, err := composables.UseActor(ctx)
	if err != nil {
		return nil, err
	}
	if totalRows <= 0 {
		return nil, ErrEmptyImport
	}

	job := &importjob.ImportJob{
		ID:        uuid.New(),
		CreatedBy: actor.UserID,
		Filename:  filename,
		TotalRows: totalRows,
		Status:    importjob.StatusDraft,
	}
	err = s.inTx(ctx, func(txCtx context.Context) error {
		if err := s.imports.Create(txCtx, job); err != nil {
			return errors.Wrap(err, "create import job")
		}
		return s.imports.AddAudit(txCtx, &importjob.AuditEntry{
			ImportID: job.ID,
			Event:    importjob.AuditImportCreated,
			ActorID:  actor.UserID,
			Meta: map[string]any{
				"filename":  filename,
				"totalRows": totalRows,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	s.publish(importjob.CreatedEvent{Job: *job})
	return job, nil
}

// ChunkSummary is what a chunk submission returns: the counts of this chunk
// and a snapshot of overall progress. Replayed is true when the chunk was
// already processed and the stored counts were returned instead.
type ChunkSummary struct {
	Chunk    importjob.Chunk
	Job      importjob.ImportJob
	Replayed bool
}

// ProcessChunk runs one chunk of normalized rows through the ledger inside a
// single transaction. Resubmitting a chunk index is safe: the stored summary
// is returned and no row is processed twice.
func (s *ImportService) ProcessChunk(ctx context.Context, importID uuid.UUID, chunkIndex int, rows []caserow.Row) (*ChunkSummary, error) {
	actor, err := composables.UseActor(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) > s.maxChunkRows {
		return nil, ErrChunkTooLarge.WithDetails("%d rows, limit %d", len(rows), s.maxChunkRows)
	}

	job, err := s.loadOwnedJob(ctx, importID, actor)
	if err != nil {
		return nil, err
	}
	if job.Terminal() {
		// Replays of chunks from a finished import still answer with the
		// stored counts so a drained offline queue converges.
		if chunk, chunkErr := s.imports.GetChunk(ctx, importID, chunkIndex); chunkErr == nil {
			return &ChunkSummary{Chunk: *chunk, Job: *job, Replayed: true}, nil
		}
		return nil, ErrImportComplete
	}

	chunk := importjob.Chunk{
		ImportID: importID,
		Index:    chunkIndex,
		RowCount: len(rows),
	}
	claimed := false

	err = s.inTx(ctx, func(txCtx context.Context) error {
		var txErr error
		claimed, txErr = s.imports.ClaimChunk(txCtx, importID, chunkIndex, len(rows))
		if txErr != nil {
			return txErr
		}
		if !claimed {
			return nil
		}

		if txErr := s.imports.MarkProcessing(txCtx, importID); txErr != nil {
			return txErr
		}

		if txErr := s.processRows(txCtx, job, &chunk, rows, actor); txErr != nil {
			return txErr
		}

		if txErr := s.imports.UpdateChunkCounts(txCtx, &chunk); txErr != nil {
			return txErr
		}
		updated, txErr := s.imports.AddCounts(txCtx, importID, chunk.SuccessCount, chunk.FailureCount)
		if txErr != nil {
			return txErr
		}
		*job = *updated

		return s.imports.AddAudit(txCtx, &importjob.AuditEntry{
			ImportID: importID,
			Event:    importjob.AuditChunkProcessed,
			ActorID:  actor.UserID,
			Meta: map[string]any{
				"chunkIndex":   chunkIndex,
				"rowCount":     chunk.RowCount,
				"successCount": chunk.SuccessCount,
				"failureCount": chunk.FailureCount,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	if !claimed {
		// Lost the claim: the chunk committed earlier (or concurrently).
		stored, err := s.imports.GetChunk(ctx, importID, chunkIndex)
		if err != nil {
			return nil, err
		}
		current, err := s.imports.GetByID(ctx, importID)
		if err != nil {
			return nil, err
		}
		return &ChunkSummary{Chunk: *stored, Job: *current, Replayed: true}, nil
	}

	finished, err := s.finishIfDone(ctx, importID, actor)
	if err != nil {
		return nil, err
	}
	if finished != nil {
		*job = *finished
	}

	s.publish(importjob.ChunkProcessedEvent{Job: *job, Chunk: chunk})
	return &ChunkSummary{Chunk: chunk, Job: *job}, nil
}

// processRows validates and applies each row. Failures never abort the
// chunk; they are recorded and counted. Normalization reruns here so the
// ledger never depends on client-side cleanup.
func (s *ImportService) processRows(ctx context.Context, job *importjob.ImportJob, chunk *importjob.Chunk, rows []caserow.Row, actor *composables.Actor) error {
	now := s.now()
	seen := caserow.NewSeenKeys()

	for _, row := range rows {
		row = caserow.Clean(row)
		payload, err := json.Marshal(row)
		if err != nil {
			return errors.Wrap(err, "marshal row payload")
		}

		fieldErrs := caserow.Validate(row, seen, now)
		if len(fieldErrs) > 0 {
			chunk.FailureCount++
			if err := s.recordFailedRow(ctx, job, chunk, row, payload, fieldErrs); err != nil {
				return err
			}
			continue
		}

		dob, err := time.Parse(caserow.DateLayout, row.DOB)
		if err != nil {
			return errors.Wrap(err, "parse validated dob")
		}

		rec := &caserecord.CaseRecord{
			CaseKey:       row.CaseKey,
			ApplicantName: row.ApplicantName,
			DOB:           dob,
			Email:         optional(row.Email),
			Phone:         optional(row.Phone),
			Category:      row.Category,
			Priority:      row.Priority,
			Status:        row.Status,
		}

		// The ledger row goes in before the case mutation: if another chunk
		// of this import already landed the same case key, the insert is a
		// no-op and the case is left untouched.
		record := &importjob.RowRecord{
			ImportID:   job.ID,
			ChunkIndex: chunk.Index,
			RowNumber:  row.RowNumber,
			CaseKey:    row.CaseKey,
			Outcome:    importjob.OutcomeSuccess,
			Payload:    payload,
		}
		stored, upserted, err := s.applyRow(ctx, job, rec, record, actor)
		if err != nil {
			return err
		}
		if !stored {
			chunk.FailureCount++
			dupErrs := []caserow.FieldError{{
				RowNumber: row.RowNumber,
				Field:     caserow.FieldCaseKey,
				Message:   dupAcrossFileMessage,
			}}
			if err := s.recordFailedRow(ctx, job, chunk, row, payload, dupErrs); err != nil {
				return err
			}
			continue
		}

		chunk.SuccessCount++
		if upserted {
			chunk.CreatedCount++
		} else {
			chunk.UpdatedCount++
		}
	}
	return nil
}

// recordFailedRow writes the FAILED ledger row plus one ImportError per
// offending field.
func (s *ImportService) recordFailedRow(ctx context.Context, job *importjob.ImportJob, chunk *importjob.Chunk, row caserow.Row, payload []byte, fieldErrs []caserow.FieldError) error {
	messages := make([]string, 0, len(fieldErrs))
	for _, e := range fieldErrs {
		messages = append(messages, e.Field+": "+e.Message)
	}
	if err := s.imports.RecordFailure(ctx, &importjob.RowRecord{
		ImportID:   job.ID,
		ChunkIndex: chunk.Index,
		RowNumber:  row.RowNumber,
		CaseKey:    row.CaseKey,
		Outcome:    importjob.OutcomeFailed,
		Message:    strings.Join(messages, "; "),
		Payload:    payload,
	}); err != nil {
		return err
	}
	return s.imports.AddErrors(ctx, job.ID, chunk.Index, fieldErrs)
}

// applyRow reserves the ledger slot for the case key and, when won, upserts
// the case and its history. Returns (stored, created).
func (s *ImportService) applyRow(ctx context.Context, job *importjob.ImportJob, rec *caserecord.CaseRecord, record *importjob.RowRecord, actor *composables.Actor) (bool, bool, error) {
	// Reserve the slot under a throwaway case id, then fill in the real
	// one after the upsert. Both statements run in the chunk transaction.
	record.CaseID = uuid.New()
	stored, err := s.imports.RecordSuccess(ctx, record)
	if err != nil {
		return false, false, err
	}
	if !stored {
		return false, false, nil
	}

	saved, created, err := s.cases.Upsert(ctx, rec)
	if err != nil {
		return false, false, err
	}
	record.CaseID = saved.ID

	action := caserecord.ActionUpdated
	if created {
		action = caserecord.ActionCreated
	}
	record.Action = action
	if err := s.imports.UpdateRowResult(ctx, record); err != nil {
		return false, false, err
	}
	if err := s.cases.AppendHistory(ctx, &caserecord.HistoryEntry{
		CaseID:   saved.ID,
		ImportID: &job.ID,
		Action:   action,
		ActorID:  actor.UserID,
	}); err != nil {
		return false, false, err
	}
	return true, created, nil
}

// finishIfDone flips the job to its terminal status. The conditional update
// guarantees a single winner, so the completion audit fires exactly once.
func (s *ImportService) finishIfDone(ctx context.Context, importID uuid.UUID, actor *composables.Actor) (*importjob.ImportJob, error) {
	var job *importjob.ImportJob
	var won bool
	err := s.inTx(ctx, func(txCtx context.Context) error {
		var txErr error
		job, won, txErr = s.imports.FinishIfDone(txCtx, importID)
		if txErr != nil {
			return txErr
		}
		if !won {
			return nil
		}
		event := importjob.AuditImportComplete
		if job.Status == importjob.StatusFailed {
			event = importjob.AuditImportFailed
		}
		return s.imports.AddAudit(txCtx, &importjob.AuditEntry{
			ImportID: importID,
			Event:    event,
			ActorID:  actor.UserID,
			Meta: map[string]any{
				"successCount": job.SuccessCount,
				"failureCount": job.FailureCount,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	if won {
		s.publish(importjob.CompletedEvent{Job: *job})
	}
	return job, nil
}

// GetStatus returns the job counters alone; ownership is checked.
func (s *ImportService) GetStatus(ctx context.Context, importID uuid.UUID) (*importjob.ImportJob, error) {
	actor, err := composables.UseActor(ctx)
	if err != nil {
		return nil, err
	}
	return s.loadOwnedJob(ctx, importID, actor)
}

// ImportDetail is the full read model of one import: the job, its chunks in
// ascending index order, a first page of errors and the audit trail.
type ImportDetail struct {
	Job    *importjob.ImportJob
	Chunks []*importjob.Chunk
	Errors []*importjob.RowError
	Audits []*importjob.AuditEntry
}

// detailErrorLimit caps the errors embedded in the detail view; the errors
// endpoint pages through the rest.
const detailErrorLimit = 100

func (s *ImportService) GetDetail(ctx context.Context, importID uuid.UUID) (*ImportDetail, error) {
	actor, err := composables.UseActor(ctx)
	if err != nil {
		return nil, err
	}
	job, err := s.loadOwnedJob(ctx, importID, actor)
	if err != nil {
		return nil, err
	}
	chunks, err := s.imports.Chunks(ctx, importID)
	if err != nil {
		return nil, err
	}
	rowErrs, err := s.imports.Errors(ctx, importID, detailErrorLimit, 0)
	if err != nil {
		return nil, err
	}
	audits, err := s.imports.Audits(ctx, importID)
	if err != nil {
		return nil, err
	}
	return &ImportDetail{Job: job, Chunks: chunks, Errors: rowErrs, Audits: audits}, nil
}

// List pages the caller's imports newest first. cursor is the id of the last
// job of the previous page, uuid.Nil for the first page.
func (s *ImportService) List(ctx context.Context, cursor uuid.UUID, limit int) ([]*importjob.ImportJob, error) {
	actor, err := composables.UseActor(ctx)
	if err != nil {
		return nil, err
	}
	return s.imports.ListByCreator(ctx, actor.UserID, cursor, limit)
}

// Errors returns one page of the import's validation errors.
func (s *ImportService) Errors(ctx context.Context, importID uuid.UUID, limit, offset int) ([]*importjob.RowError, int, error) {
	actor, err := composables.UseActor(ctx)
	if err != nil {
		return nil, 0, err
	}
	if _, err := s.loadOwnedJob(ctx, importID, actor); err != nil {
		return nil, 0, err
	}
	errs, err := s.imports.Errors(ctx, importID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.imports.CountErrors(ctx, importID)
	if err != nil {
		return nil, 0, err
	}
	return errs, total, nil
}

func (s *ImportService) Audits(ctx context.Context, importID uuid.UUID) ([]*importjob.AuditEntry, error) {
	actor, err := composables.UseActor(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.loadOwnedJob(ctx, importID, actor); err != nil {
		return nil, err
	}
	return s.imports.Audits(ctx, importID)
}

func (s *ImportService) loadOwnedJob(ctx context.Context, importID uuid.UUID, actor *composables.Actor) (*importjob.ImportJob, error) {
	job, err := s.imports.GetByID(ctx, importID)
	if err != nil {
		return nil, ErrImportNotFound
	}
	if job.CreatedBy != actor.UserID {
		return nil, ErrNotOwner
	}
	return job, nil
}

func (s *ImportService) publish(event any) {
	if s.publisher != nil {
		s.publisher.Publish(event)
	}
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
