package services_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/caseflow/modules/cases/domain/caserecord"
	"github.com/iota-uz/caseflow/modules/cases/domain/caserow"
	"github.com/iota-uz/caseflow/modules/imports/domain/importjob"
)

var errNotFound = errors.New("not found")

type chunkKey struct {
	importID uuid.UUID
	index    int
}

type memImportRepo struct {
	mu     sync.Mutex
	jobs   map[uuid.UUID]*importjob.ImportJob
	chunks map[chunkKey]*importjob.Chunk
	// one SUCCESS slot per (import, case key)
	successKeys map[string]bool
	rows        []*importjob.RowRecord
	errs        []*importjob.RowError
	audits      []*importjob.AuditEntry
	nextErrID   int64
	seq         int
}

func newMemImportRepo() *memImportRepo {
	return &memImportRepo{
		jobs:        make(map[uuid.UUID]*importjob.ImportJob),
		chunks:      make(map[chunkKey]*importjob.Chunk),
		successKeys: make(map[string]bool),
	}
}

func (m *memImportRepo) Create(_ context.Context, job *importjob.ImportJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Synthetic strictly increasing timestamps keep list ordering stable.
	m.seq++
	now := time.Unix(1_700_000_000, 0).Add(time.Duration(m.seq) * time.Second)
	job.CreatedAt = now
	job.UpdatedAt = now
	clone := *job
	m.jobs[job.ID] = &clone
	return nil
}

func (m *memImportRepo) GetByID(_ context.Context, id uuid.UUID) (*importjob.ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, errNotFound
	}
	clone := *job
	return &clone, nil
}

func (m *memImportRepo) ListByCreator(_ context.Context, createdBy uuid.UUID, cursor uuid.UUID, limit int) ([]*importjob.ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*importjob.ImportJob
	for _, job := range m.jobs {
		if job.CreatedBy == createdBy {
			clone := *job
			all = append(all, &clone)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if cursor != uuid.Nil {
		for i, job := range all {
			if job.ID == cursor {
				all = all[i+1:]
				break
			}
		}
	}
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *memImportRepo) MarkProcessing(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[id]; ok && job.Status == importjob.StatusDraft {
		job.Status = importjob.StatusProcessing
	}
	return nil
}

func (m *memImportRepo) AddCounts(_ context.Context, id uuid.UUID, success, failure int) (*importjob.ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, errNotFound
	}
	job.SuccessCount += success
	job.FailureCount += failure
	clone := *job
	return &clone, nil
}

func (m *memImportRepo) FinishIfDone(_ context.Context, id uuid.UUID) (*importjob.ImportJob, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, false, errNotFound
	}
	if job.Status == importjob.StatusProcessing && job.SuccessCount+job.FailureCount >= job.TotalRows {
		job.Status = job.FinalStatus()
		now := time.Now()
		job.CompletedAt = &now
		clone := *job
		return &clone, true, nil
	}
	clone := *job
	return &clone, false, nil
}

func (m *memImportRepo) ClaimChunk(_ context.Context, importID uuid.UUID, index, rowCount int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := chunkKey{importID, index}
	if _, exists := m.chunks[key]; exists {
		return false, nil
	}
	m.chunks[key] = &importjob.Chunk{
		ImportID:   importID,
		Index:      index,
		RowCount:   rowCount,
		ReceivedAt: time.Now(),
	}
	return true, nil
}

func (m *memImportRepo) UpdateChunkCounts(_ context.Context, chunk *importjob.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.chunks[chunkKey{chunk.ImportID, chunk.Index}]
	if !ok {
		return errNotFound
	}
	stored.SuccessCount = chunk.SuccessCount
	stored.FailureCount = chunk.FailureCount
	stored.CreatedCount = chunk.CreatedCount
	stored.UpdatedCount = chunk.UpdatedCount
	return nil
}

func (m *memImportRepo) GetChunk(_ context.Context, importID uuid.UUID, index int) (*importjob.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chunk, ok := m.chunks[chunkKey{importID, index}]
	if !ok {
		return nil, errNotFound
	}
	clone := *chunk
	return &clone, nil
}

func (m *memImportRepo) Chunks(_ context.Context, importID uuid.UUID) ([]*importjob.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*importjob.Chunk
	for key, chunk := range m.chunks {
		if key.importID == importID {
			clone := *chunk
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (m *memImportRepo) RecordSuccess(_ context.Context, rec *importjob.RowRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fmt.Sprintf("%s/%s", rec.ImportID, rec.CaseKey)
	if m.successKeys[key] {
		return false, nil
	}
	m.successKeys[key] = true
	clone := *rec
	m.rows = append(m.rows, &clone)
	return true, nil
}

func (m *memImportRepo) UpdateRowResult(_ context.Context, rec *importjob.RowRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, stored := range m.rows {
		if stored.ImportID == rec.ImportID && stored.CaseKey == rec.CaseKey && stored.Outcome == importjob.OutcomeSuccess {
			stored.CaseID = rec.CaseID
			stored.Action = rec.Action
		}
	}
	return nil
}

func (m *memImportRepo) RecordFailure(_ context.Context, rec *importjob.RowRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *rec
	m.rows = append(m.rows, &clone)
	return nil
}

func (m *memImportRepo) AddErrors(_ context.Context, importID uuid.UUID, chunkIndex int, errs []caserow.FieldError) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range errs {
		m.nextErrID++
		m.errs = append(m.errs, &importjob.RowError{
			ID:         m.nextErrID,
			ImportID:   importID,
			ChunkIndex: chunkIndex,
			RowNumber:  e.RowNumber,
			Field:      e.Field,
			Message:    e.Message,
			CreatedAt:  time.Now(),
		})
	}
	return nil
}

func (m *memImportRepo) Errors(_ context.Context, importID uuid.UUID, limit, offset int) ([]*importjob.RowError, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*importjob.RowError
	for _, e := range m.errs {
		if e.ImportID == importID {
			all = append(all, e)
		}
	}
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *memImportRepo) CountErrors(_ context.Context, importID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.errs {
		if e.ImportID == importID {
			n++
		}
	}
	return n, nil
}

func (m *memImportRepo) AddAudit(_ context.Context, entry *importjob.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *entry
	m.audits = append(m.audits, &clone)
	return nil
}

func (m *memImportRepo) Audits(_ context.Context, importID uuid.UUID) ([]*importjob.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*importjob.AuditEntry
	for _, a := range m.audits {
		if a.ImportID == importID {
			clone := *a
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (m *memImportRepo) auditEvents(importID uuid.UUID) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, a := range m.audits {
		if a.ImportID == importID {
			out = append(out, a.Event)
		}
	}
	return out
}

type memCaseRepo struct {
	mu      sync.Mutex
	byKey   map[string]*caserecord.CaseRecord
	history []*caserecord.HistoryEntry
}

func newMemCaseRepo() *memCaseRepo {
	return &memCaseRepo{byKey: make(map[string]*caserecord.CaseRecord)}
}

func (m *memCaseRepo) Upsert(_ context.Context, rec *caserecord.CaseRecord) (*caserecord.CaseRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if existing, ok := m.byKey[rec.CaseKey]; ok {
		updated := *rec
		updated.ID = existing.ID
		updated.CreatedAt = existing.CreatedAt
		updated.UpdatedAt = now
		m.byKey[rec.CaseKey] = &updated
		clone := updated
		return &clone, false, nil
	}
	created := *rec
	created.ID = uuid.New()
	created.CreatedAt = now
	created.UpdatedAt = now
	m.byKey[rec.CaseKey] = &created
	clone := created
	return &clone, true, nil
}

func (m *memCaseRepo) GetByCaseKey(_ context.Context, caseKey string) (*caserecord.CaseRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byKey[caseKey]
	if !ok {
		return nil, errNotFound
	}
	clone := *rec
	return &clone, nil
}

func (m *memCaseRepo) AppendHistory(_ context.Context, entry *caserecord.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *entry
	clone.ID = int64(len(m.history) + 1)
	m.history = append(m.history, &clone)
	return nil
}

func (m *memCaseRepo) History(_ context.Context, caseID uuid.UUID, limit, offset int) ([]*caserecord.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*caserecord.HistoryEntry
	for _, h := range m.history {
		if h.CaseID == caseID {
			clone := *h
			out = append(out, &clone)
		}
	}
	return out, nil
}
