package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/caseflow/modules/cases/domain/caserecord"
	"github.com/iota-uz/caseflow/modules/cases/domain/caserow"
	"github.com/iota-uz/caseflow/modules/imports/domain/importjob"
	"github.com/iota-uz/caseflow/modules/imports/services"
	"github.com/iota-uz/caseflow/pkg/composables"
)

var testNow = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

func passthroughTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

type fixture struct {
	svc     *services.ImportService
	imports *memImportRepo
	cases   *memCaseRepo
	actor   *composables.Actor
	ctx     context.Context
	events  []any
}

type recordingBus struct {
	events *[]any
}

func (b recordingBus) Publish(args ...interface{}) {
	*b.events = append(*b.events, args...)
}
func (recordingBus) Subscribe(interface{})   {}
func (recordingBus) Unsubscribe(interface{}) {}
func (recordingBus) Clear()                  {}
func (recordingBus) SubscribersCount() int   { return 0 }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		imports: newMemImportRepo(),
		cases:   newMemCaseRepo(),
		actor:   &composables.Actor{UserID: uuid.New(), Email: "clerk@example.com"},
	}
	f.svc = services.NewImportService(services.ImportServiceOptions{
		Imports:      f.imports,
		Cases:        f.cases,
		Publisher:    recordingBus{events: &f.events},
		MaxChunkRows: 5,
		Now:          func() time.Time { return testNow },
		InTx:         passthroughTx,
	})
	f.ctx = composables.WithActor(context.Background(), f.actor)
	return f
}

func row(num int, caseKey string) caserow.Row {
	return caserow.Row{
		RowNumber:     num,
		CaseKey:       caseKey,
		ApplicantName: "Jane Doe",
		DOB:           "1990-01-02",
		Category:      caserow.CategoryTax,
		Priority:      caserow.PriorityLow,
		Status:        caserow.StatusNew,
	}
}

func TestCreate_RegistersJobAndAudit(t *testing.T) {
	f := newFixture(t)

	job, err := f.svc.Create(f.ctx, "cases.csv", 3)
	require.NoError(t, err)
	assert.Equal(t, importjob.StatusDraft, job.Status)
	assert.Equal(t, f.actor.UserID, job.CreatedBy)
	assert.Equal(t, []string{importjob.AuditImportCreated}, f.imports.auditEvents(job.ID))
	require.Len(t, f.events, 1)
	assert.IsType(t, importjob.CreatedEvent{}, f.events[0])
}

func TestCreate_RejectsNonPositiveTotal(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(f.ctx, "cases.csv", 0)
	assert.ErrorIs(t, err, services.ErrEmptyImport)
}

func TestProcessChunk_ValidRowsCreateAndUpdateCases(t *testing.T) {
	f := newFixture(t)
	job, err := f.svc.Create(f.ctx, "cases.csv", 2)
	require.NoError(t, err)

	// C-2 exists already, so the import updates it.
	_, _, err = f.cases.Upsert(f.ctx, &caserecord.CaseRecord{
		CaseKey:       "C-2",
		ApplicantName: "Old Name",
		DOB:           time.Date(1990, 1, 2, 0, 0, 0, 0, time.UTC),
		Category:      caserow.CategoryTax,
		Priority:      caserow.PriorityLow,
		Status:        caserow.StatusNew,
	})
	require.NoError(t, err)

	summary, err := f.svc.ProcessChunk(f.ctx, job.ID, 0, []caserow.Row{row(1, "C-1"), row(2, "C-2")})
	require.NoError(t, err)

	assert.False(t, summary.Replayed)
	assert.Equal(t, 2, summary.Chunk.SuccessCount)
	assert.Equal(t, 0, summary.Chunk.FailureCount)
	assert.Equal(t, 1, summary.Chunk.CreatedCount)
	assert.Equal(t, 1, summary.Chunk.UpdatedCount)

	rec, err := f.cases.GetByCaseKey(f.ctx, "C-1")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", rec.ApplicantName)
	history, err := f.cases.History(f.ctx, rec.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "CREATED", history[0].Action)
}

func TestProcessChunk_InvalidRowsAreRecordedNotFatal(t *testing.T) {
	f := newFixture(t)
	job, err := f.svc.Create(f.ctx, "cases.csv", 2)
	require.NoError(t, err)

	bad := row(2, "C-2")
	bad.DOB = "3000-01-01"

	summary, err := f.svc.ProcessChunk(f.ctx, job.ID, 0, []caserow.Row{row(1, "C-1"), bad})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Chunk.SuccessCount)
	assert.Equal(t, 1, summary.Chunk.FailureCount)

	errs, total, err := f.svc.Errors(f.ctx, job.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, errs, 1)
	assert.Equal(t, 2, errs[0].RowNumber)
	assert.Equal(t, caserow.FieldDOB, errs[0].Field)

	// The failed row never touched the case table.
	_, err = f.cases.GetByCaseKey(f.ctx, "C-2")
	assert.Error(t, err)
}

func TestProcessChunk_DuplicateWithinChunk(t *testing.T) {
	f := newFixture(t)
	job, err := f.svc.Create(f.ctx, "cases.csv", 2)
	require.NoError(t, err)

	summary, err := f.svc.ProcessChunk(f.ctx, job.ID, 0, []caserow.Row{row(1, "C-1"), row(2, "C-1")})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Chunk.SuccessCount)
	assert.Equal(t, 1, summary.Chunk.FailureCount)

	errs, _, err := f.svc.Errors(f.ctx, job.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, 2, errs[0].RowNumber)
	assert.Contains(t, errs[0].Message, "duplicate caseId in file")
}

func TestProcessChunk_DuplicateAcrossChunks(t *testing.T) {
	f := newFixture(t)
	job, err := f.svc.Create(f.ctx, "cases.csv", 4)
	require.NoError(t, err)

	_, err = f.svc.ProcessChunk(f.ctx, job.ID, 0, []caserow.Row{row(1, "C-1"), row(2, "C-2")})
	require.NoError(t, err)

	before, err := f.cases.GetByCaseKey(f.ctx, "C-1")
	require.NoError(t, err)

	// Chunk 1 re-sends C-1 with a different name; the ledger blocks it.
	repeat := row(3, "C-1")
	repeat.ApplicantName = "Someone Else"
	summary, err := f.svc.ProcessChunk(f.ctx, job.ID, 1, []caserow.Row{repeat, row(4, "C-3")})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Chunk.SuccessCount)
	assert.Equal(t, 1, summary.Chunk.FailureCount)

	after, err := f.cases.GetByCaseKey(f.ctx, "C-1")
	require.NoError(t, err)
	assert.Equal(t, before.ApplicantName, after.ApplicantName, "blocked duplicate must not mutate the case")

	errs, _, err := f.svc.Errors(f.ctx, job.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, 3, errs[0].RowNumber)
	assert.Contains(t, errs[0].Message, "duplicate caseId in import")
}

func TestProcessChunk_ReplayReturnsStoredCountsOnce(t *testing.T) {
	f := newFixture(t)
	job, err := f.svc.Create(f.ctx, "cases.csv", 4)
	require.NoError(t, err)

	rows := []caserow.Row{row(1, "C-1"), row(2, "C-2")}
	first, err := f.svc.ProcessChunk(f.ctx, job.ID, 0, rows)
	require.NoError(t, err)
	require.False(t, first.Replayed)

	replay, err := f.svc.ProcessChunk(f.ctx, job.ID, 0, rows)
	require.NoError(t, err)
	assert.True(t, replay.Replayed)
	assert.Equal(t, first.Chunk.SuccessCount, replay.Chunk.SuccessCount)
	assert.Equal(t, first.Chunk.FailureCount, replay.Chunk.FailureCount)

	// Progress counters unchanged by the replay.
	status, err := f.svc.GetStatus(f.ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, status.SuccessCount)
	assert.Equal(t, 0, status.FailureCount)

	// Only one CHUNK_PROCESSED audit for the chunk.
	events := f.imports.auditEvents(job.ID)
	count := 0
	for _, e := range events {
		if e == importjob.AuditChunkProcessed {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestProcessChunk_CompletionFiresExactlyOnce(t *testing.T) {
	f := newFixture(t)
	job, err := f.svc.Create(f.ctx, "cases.csv", 2)
	require.NoError(t, err)

	summary, err := f.svc.ProcessChunk(f.ctx, job.ID, 0, []caserow.Row{row(1, "C-1"), row(2, "C-2")})
	require.NoError(t, err)
	assert.Equal(t, importjob.StatusCompleted, summary.Job.Status)
	require.NotNil(t, summary.Job.CompletedAt)

	events := f.imports.auditEvents(job.ID)
	completions := 0
	for _, e := range events {
		if e == importjob.AuditImportComplete {
			completions++
		}
	}
	assert.Equal(t, 1, completions)

	// A replay after completion still answers with the stored chunk.
	replay, err := f.svc.ProcessChunk(f.ctx, job.ID, 0, []caserow.Row{row(1, "C-1"), row(2, "C-2")})
	require.NoError(t, err)
	assert.True(t, replay.Replayed)

	completions = 0
	for _, e := range f.imports.auditEvents(job.ID) {
		if e == importjob.AuditImportComplete {
			completions++
		}
	}
	assert.Equal(t, 1, completions, "replay must not emit a second completion audit")
}

func TestProcessChunk_AnyFailedRowMarksJobFailed(t *testing.T) {
	f := newFixture(t)
	job, err := f.svc.Create(f.ctx, "cases.csv", 3)
	require.NoError(t, err)

	bad := row(2, "C-2")
	bad.DOB = "1899-01-01"

	summary, err := f.svc.ProcessChunk(f.ctx, job.ID, 0, []caserow.Row{row(1, "C-1"), bad, row(3, "C-3")})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Chunk.SuccessCount)
	assert.Equal(t, 1, summary.Chunk.FailureCount)
	// Not a 100% clean run, so the job lands on FAILED even though two rows
	// committed.
	assert.Equal(t, importjob.StatusFailed, summary.Job.Status)
	require.NotNil(t, summary.Job.CompletedAt)

	errs, _, err := f.svc.Errors(f.ctx, job.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, 2, errs[0].RowNumber)
	assert.Equal(t, caserow.FieldDOB, errs[0].Field)
}

func TestProcessChunk_SameKeyAcrossJobsUpdatesCase(t *testing.T) {
	f := newFixture(t)

	first, err := f.svc.Create(f.ctx, "batch1.csv", 1)
	require.NoError(t, err)
	_, err = f.svc.ProcessChunk(f.ctx, first.ID, 0, []caserow.Row{row(1, "C-1")})
	require.NoError(t, err)

	// A later import may legitimately re-use the key to update the case.
	second, err := f.svc.Create(f.ctx, "batch2.csv", 1)
	require.NoError(t, err)
	reimported := row(1, "C-1")
	reimported.ApplicantName = "Jane Doe-Smith"
	summary, err := f.svc.ProcessChunk(f.ctx, second.ID, 0, []caserow.Row{reimported})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Chunk.SuccessCount)
	assert.Equal(t, 1, summary.Chunk.UpdatedCount)
	assert.Equal(t, 0, summary.Chunk.CreatedCount)

	rec, err := f.cases.GetByCaseKey(f.ctx, "C-1")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe-Smith", rec.ApplicantName)
}

func TestGetDetail_IncludesChunksErrorsAndAudits(t *testing.T) {
	f := newFixture(t)
	job, err := f.svc.Create(f.ctx, "cases.csv", 3)
	require.NoError(t, err)

	// Chunks land out of order; the detail view still lists them ascending.
	_, err = f.svc.ProcessChunk(f.ctx, job.ID, 1, []caserow.Row{row(3, "C-3")})
	require.NoError(t, err)
	bad := row(2, "C-2")
	bad.DOB = ""
	_, err = f.svc.ProcessChunk(f.ctx, job.ID, 0, []caserow.Row{row(1, "C-1"), bad})
	require.NoError(t, err)

	detail, err := f.svc.GetDetail(f.ctx, job.ID)
	require.NoError(t, err)

	assert.Equal(t, job.ID, detail.Job.ID)
	require.Len(t, detail.Chunks, 2)
	assert.Equal(t, 0, detail.Chunks[0].Index)
	assert.Equal(t, 1, detail.Chunks[1].Index)
	assert.Equal(t, 1, detail.Chunks[0].FailureCount)

	require.Len(t, detail.Errors, 1)
	assert.Equal(t, 2, detail.Errors[0].RowNumber)
	assert.Equal(t, caserow.FieldDOB, detail.Errors[0].Field)

	events := make([]string, 0, len(detail.Audits))
	for _, a := range detail.Audits {
		events = append(events, a.Event)
	}
	assert.Contains(t, events, importjob.AuditImportCreated)
	assert.Contains(t, events, importjob.AuditChunkProcessed)
	assert.Contains(t, events, importjob.AuditImportFailed)
}

func TestList_CursorPagination(t *testing.T) {
	f := newFixture(t)
	first, err := f.svc.Create(f.ctx, "a.csv", 1)
	require.NoError(t, err)
	second, err := f.svc.Create(f.ctx, "b.csv", 1)
	require.NoError(t, err)
	third, err := f.svc.Create(f.ctx, "c.csv", 1)
	require.NoError(t, err)

	page, err := f.svc.List(f.ctx, uuid.Nil, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, third.ID, page[0].ID)
	assert.Equal(t, second.ID, page[1].ID)

	rest, err := f.svc.List(f.ctx, page[1].ID, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, first.ID, rest[0].ID)
}

func TestProcessChunk_AllRowsFailedMarksJobFailed(t *testing.T) {
	f := newFixture(t)
	job, err := f.svc.Create(f.ctx, "cases.csv", 1)
	require.NoError(t, err)

	bad := row(1, "")
	summary, err := f.svc.ProcessChunk(f.ctx, job.ID, 0, []caserow.Row{bad})
	require.NoError(t, err)
	assert.Equal(t, importjob.StatusFailed, summary.Job.Status)
}

func TestProcessChunk_UnknownChunkOnTerminalImportRejected(t *testing.T) {
	f := newFixture(t)
	job, err := f.svc.Create(f.ctx, "cases.csv", 1)
	require.NoError(t, err)

	_, err = f.svc.ProcessChunk(f.ctx, job.ID, 0, []caserow.Row{row(1, "C-1")})
	require.NoError(t, err)

	_, err = f.svc.ProcessChunk(f.ctx, job.ID, 7, []caserow.Row{row(2, "C-2")})
	assert.ErrorIs(t, err, services.ErrImportComplete)
}

func TestProcessChunk_OwnershipEnforced(t *testing.T) {
	f := newFixture(t)
	job, err := f.svc.Create(f.ctx, "cases.csv", 1)
	require.NoError(t, err)

	stranger := composables.WithActor(context.Background(), &composables.Actor{UserID: uuid.New()})
	_, err = f.svc.ProcessChunk(stranger, job.ID, 0, []caserow.Row{row(1, "C-1")})
	assert.ErrorIs(t, err, services.ErrNotOwner)

	_, err = f.svc.GetStatus(stranger, job.ID)
	assert.ErrorIs(t, err, services.ErrNotOwner)
}

func TestProcessChunk_UnknownImport(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ProcessChunk(f.ctx, uuid.New(), 0, []caserow.Row{row(1, "C-1")})
	assert.ErrorIs(t, err, services.ErrImportNotFound)
}

func TestProcessChunk_OversizedChunkRejected(t *testing.T) {
	f := newFixture(t)
	job, err := f.svc.Create(f.ctx, "cases.csv", 10)
	require.NoError(t, err)

	rows := make([]caserow.Row, 6) // fixture limit is 5
	for i := range rows {
		rows[i] = row(i+1, uuid.NewString())
	}
	_, err = f.svc.ProcessChunk(f.ctx, job.ID, 0, rows)
	assert.ErrorIs(t, err, services.ErrChunkTooLarge)
}

func TestProcessChunk_MissingActor(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ProcessChunk(context.Background(), uuid.New(), 0, nil)
	assert.True(t, errors.Is(err, composables.ErrNoActor))
}
