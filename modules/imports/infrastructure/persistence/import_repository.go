package persistence

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iota-uz/caseflow/modules/cases/domain/caserow"
	"github.com/iota-uz/caseflow/modules/imports/domain/importjob"
	"github.com/iota-uz/caseflow/pkg/composables"
)

var (
	ErrImportNotFound = errors.New("import not found")
	ErrChunkNotFound  = errors.New("chunk not found")
)

type ImportRepository struct{}

func NewImportRepository() *ImportRepository {
	return &ImportRepository{}
}

func (r *ImportRepository) Create(ctx context.Context, job *importjob.ImportJob) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	return tx.QueryRow(ctx, `
		INSERT INTO import_jobs (id, created_by, filename, total_rows, status)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at, updated_at
		`,
		pgUUID(job.ID), pgUUID(job.CreatedBy), job.Filename, job.TotalRows, job.Status,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
}

const importJobColumns = `id, created_by, filename, total_rows, success_count, failure_count, status, created_at, updated_at, completed_at`

func scanImportJob(row pgx.Row) (*importjob.ImportJob, error) {
	var job importjob.ImportJob
	var completedAt pgtype.Timestamptz
	err := row.Scan(
		&job.ID, &job.CreatedBy, &job.Filename, &job.TotalRows,
		&job.SuccessCount, &job.FailureCount, &job.Status,
		&job.CreatedAt, &job.UpdatedAt, &completedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrImportNotFound
	}
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	return &job, nil
}

func (r *ImportRepository) GetByID(ctx context.Context, id uuid.UUID) (*importjob.ImportJob, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	return scanImportJob(tx.QueryRow(ctx,
		`SELECT `+importJobColumns+` FROM import_jobs WHERE id = $1`, pgUUID(id)))
}

func (r *ImportRepository) ListByCreator(ctx context.Context, createdBy uuid.UUID, cursor uuid.UUID, limit int) ([]*importjob.ImportJob, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	var cursorArg any
	if cursor != uuid.Nil {
		cursorArg = pgUUID(cursor)
	}
	rows, err := tx.Query(ctx, `
		SELECT `+importJobColumns+`
		FROM import_jobs
		WHERE created_by = $1
		  AND ($2::uuid IS NULL
		       OR (created_at, id) < (SELECT created_at, id FROM import_jobs WHERE id = $2))
		ORDER BY created_at DESC, id DESC
		LIMIT $3
		`, pgUUID(createdBy), cursorArg, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*importjob.ImportJob
	for rows.Next() {
		job, err := scanImportJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *ImportRepository) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		UPDATE import_jobs
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3
		`, pgUUID(id), importjob.StatusProcessing, importjob.StatusDraft)
	return err
}

func (r *ImportRepository) AddCounts(ctx context.Context, id uuid.UUID, success, failure int) (*importjob.ImportJob, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	return scanImportJob(tx.QueryRow(ctx, `
		UPDATE import_jobs
		SET success_count = success_count + $2,
		    failure_count = failure_count + $3,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+importJobColumns+`
		`, pgUUID(id), success, failure))
}

func (r *ImportRepository) FinishIfDone(ctx context.Context, id uuid.UUID) (*importjob.ImportJob, bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, false, err
	}

	// Single conditional update; with concurrent chunk writers exactly one
	// call observes the PROCESSING -> terminal transition.
	job, err := scanImportJob(tx.QueryRow(ctx, `
		UPDATE import_jobs
		SET status = CASE WHEN failure_count > 0 THEN $2 ELSE $3 END,
		    completed_at = now(),
		    updated_at = now()
		WHERE id = $1
		  AND status = $4
		  AND success_count + failure_count >= total_rows
		RETURNING `+importJobColumns+`
		`, pgUUID(id), importjob.StatusFailed, importjob.StatusCompleted, importjob.StatusProcessing))
	if errors.Is(err, ErrImportNotFound) {
		job, err := r.GetByID(ctx, id)
		return job, false, err
	}
	if err != nil {
		return nil, false, err
	}
	return job, true, nil
}

func (r *ImportRepository) ClaimChunk(ctx context.Context, importID uuid.UUID, index, rowCount int) (bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return false, err
	}
	tag, err := tx.Exec(ctx, `
		INSERT INTO import_chunks (import_id, chunk_index, row_count)
		VALUES ($1,$2,$3)
		ON CONFLICT (import_id, chunk_index) DO NOTHING
		`, pgUUID(importID), index, rowCount)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *ImportRepository) UpdateChunkCounts(ctx context.Context, chunk *importjob.Chunk) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		UPDATE import_chunks
		SET success_count = $3,
		    failure_count = $4,
		    created_count = $5,
		    updated_count = $6
		WHERE import_id = $1 AND chunk_index = $2
		`, pgUUID(chunk.ImportID), chunk.Index,
		chunk.SuccessCount, chunk.FailureCount, chunk.CreatedCount, chunk.UpdatedCount)
	return err
}

func (r *ImportRepository) GetChunk(ctx context.Context, importID uuid.UUID, index int) (*importjob.Chunk, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	var chunk importjob.Chunk
	err = tx.QueryRow(ctx, `
		SELECT import_id, chunk_index, row_count, success_count, failure_count, created_count, updated_count, received_at
		FROM import_chunks
		WHERE import_id = $1 AND chunk_index = $2
		`, pgUUID(importID), index).Scan(
		&chunk.ImportID, &chunk.Index, &chunk.RowCount,
		&chunk.SuccessCount, &chunk.FailureCount,
		&chunk.CreatedCount, &chunk.UpdatedCount, &chunk.ReceivedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrChunkNotFound
	}
	if err != nil {
		return nil, err
	}
	return &chunk, nil
}

func (r *ImportRepository) Chunks(ctx context.Context, importID uuid.UUID) ([]*importjob.Chunk, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `
		SELECT import_id, chunk_index, row_count, success_count, failure_count, created_count, updated_count, received_at
		FROM import_chunks
		WHERE import_id = $1
		ORDER BY chunk_index
		`, pgUUID(importID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*importjob.Chunk
	for rows.Next() {
		var chunk importjob.Chunk
		if err := rows.Scan(
			&chunk.ImportID, &chunk.Index, &chunk.RowCount,
			&chunk.SuccessCount, &chunk.FailureCount,
			&chunk.CreatedCount, &chunk.UpdatedCount, &chunk.ReceivedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, &chunk)
	}
	return out, rows.Err()
}

func (r *ImportRepository) RecordSuccess(ctx context.Context, rec *importjob.RowRecord) (bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return false, err
	}
	// The partial unique index on (import_id, case_key) WHERE outcome =
	// 'SUCCESS' turns a repeated case key into a zero-row insert.
	tag, err := tx.Exec(ctx, `
		INSERT INTO import_rows (import_id, chunk_index, row_number, case_key, outcome, action, case_id, payload)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (import_id, case_key) WHERE outcome = 'SUCCESS' DO NOTHING
		`, pgUUID(rec.ImportID), rec.ChunkIndex, rec.RowNumber,
		rec.CaseKey, rec.Outcome, rec.Action, pgUUID(rec.CaseID), payloadArg(rec))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *ImportRepository) UpdateRowResult(ctx context.Context, rec *importjob.RowRecord) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		UPDATE import_rows
		SET case_id = $3, action = $4
		WHERE import_id = $1 AND case_key = $2 AND outcome = 'SUCCESS'
		`, pgUUID(rec.ImportID), rec.CaseKey, pgUUID(rec.CaseID), rec.Action)
	return err
}

func (r *ImportRepository) RecordFailure(ctx context.Context, rec *importjob.RowRecord) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO import_rows (import_id, chunk_index, row_number, case_key, outcome, message, payload)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, pgUUID(rec.ImportID), rec.ChunkIndex, rec.RowNumber,
		rec.CaseKey, rec.Outcome, rec.Message, payloadArg(rec))
	return err
}

func payloadArg(rec *importjob.RowRecord) any {
	if len(rec.Payload) == 0 {
		return nil
	}
	return []byte(rec.Payload)
}

func (r *ImportRepository) AddErrors(ctx context.Context, importID uuid.UUID, chunkIndex int, errs []caserow.FieldError) error {
	if len(errs) == 0 {
		return nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	rows := make([][]any, 0, len(errs))
	for _, e := range errs {
		rows = append(rows, []any{pgUUID(importID), chunkIndex, e.RowNumber, e.Field, e.Message})
	}
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"import_errors"},
		[]string{"import_id", "chunk_index", "row_number", "field", "message"},
		pgx.CopyFromRows(rows),
	)
	return err
}

func (r *ImportRepository) Errors(ctx context.Context, importID uuid.UUID, limit, offset int) ([]*importjob.RowError, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `
		SELECT id, import_id, chunk_index, row_number, field, message, created_at
		FROM import_errors
		WHERE import_id = $1
		ORDER BY row_number, field, id
		LIMIT $2 OFFSET $3
		`, pgUUID(importID), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*importjob.RowError
	for rows.Next() {
		var e importjob.RowError
		if err := rows.Scan(&e.ID, &e.ImportID, &e.ChunkIndex, &e.RowNumber, &e.Field, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (r *ImportRepository) CountErrors(ctx context.Context, importID uuid.UUID) (int, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	var n int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM import_errors WHERE import_id = $1`, pgUUID(importID)).Scan(&n)
	return n, err
}

func (r *ImportRepository) AddAudit(ctx context.Context, entry *importjob.AuditEntry) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	meta, err := json.Marshal(entry.Meta)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO import_audits (import_id, event, actor_id, meta)
		VALUES ($1,$2,$3,$4::jsonb)
		`, pgUUID(entry.ImportID), entry.Event, pgUUID(entry.ActorID), meta)
	return err
}

func (r *ImportRepository) Audits(ctx context.Context, importID uuid.UUID) ([]*importjob.AuditEntry, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `
		SELECT id, import_id, event, actor_id, meta, created_at
		FROM import_audits
		WHERE import_id = $1
		ORDER BY id
		`, pgUUID(importID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*importjob.AuditEntry
	for rows.Next() {
		var e importjob.AuditEntry
		var meta []byte
		if err := rows.Scan(&e.ID, &e.ImportID, &e.Event, &e.ActorID, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Meta); err != nil {
				return nil, err
			}
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
