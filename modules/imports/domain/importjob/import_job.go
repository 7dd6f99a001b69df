package importjob

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	StatusDraft      = "DRAFT"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// Row outcomes recorded in the ledger.
const (
	OutcomeSuccess = "SUCCESS"
	OutcomeFailed  = "FAILED"
)

// Audit events appended per state change.
const (
	AuditImportCreated  = "IMPORT_CREATED"
	AuditChunkProcessed = "CHUNK_PROCESSED"
	AuditImportComplete = "IMPORT_COMPLETED"
	AuditImportFailed   = "IMPORT_FAILED"
)

// ImportJob is the server-side ledger entry for one bulk upload.
// TotalRows is the number of valid rows the client declared it will send;
// the job completes once success plus failure counts reach it.
type ImportJob struct {
	ID           uuid.UUID  `json:"id"`
	CreatedBy    uuid.UUID  `json:"created_by"`
	Filename     string     `json:"filename"`
	TotalRows    int        `json:"total_rows"`
	SuccessCount int        `json:"success_count"`
	FailureCount int        `json:"failure_count"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

func (j *ImportJob) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

func (j *ImportJob) Done() bool {
	return j.SuccessCount+j.FailureCount >= j.TotalRows
}

// FinalStatus is the terminal status the job lands on. COMPLETED means a
// fully clean run; a single failed row marks the whole job FAILED even though
// its successful rows stay committed.
func (j *ImportJob) FinalStatus() string {
	if j.FailureCount > 0 {
		return StatusFailed
	}
	return StatusCompleted
}

// Chunk is the stored summary of one processed chunk. Replaying the same
// chunk index returns these counts instead of reprocessing the rows.
type Chunk struct {
	ImportID     uuid.UUID `json:"import_id"`
	Index        int       `json:"index"`
	RowCount     int       `json:"row_count"`
	SuccessCount int       `json:"success_count"`
	FailureCount int       `json:"failure_count"`
	CreatedCount int       `json:"created_count"`
	UpdatedCount int       `json:"updated_count"`
	ReceivedAt   time.Time `json:"received_at"`
}

// RowRecord is one attempted row in the ledger, success or failure. At most
// one SUCCESS record exists per (import, case key); the unique index enforces
// it. Failed rows carry the failure message and no case id.
type RowRecord struct {
	ImportID   uuid.UUID       `json:"import_id"`
	ChunkIndex int             `json:"chunk_index"`
	RowNumber  int             `json:"row_number"`
	CaseKey    string          `json:"case_key"`
	Outcome    string          `json:"outcome"`
	Action     string          `json:"action"`
	Message    string          `json:"message,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	CaseID     uuid.UUID       `json:"case_id"`
}

// RowError is one validation failure attached to an import.
type RowError struct {
	ID         int64     `json:"id"`
	ImportID   uuid.UUID `json:"import_id"`
	ChunkIndex int       `json:"chunk_index"`
	RowNumber  int       `json:"row_number"`
	Field      string    `json:"field"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
}

// AuditEntry is one line of the import's audit trail.
type AuditEntry struct {
	ID        int64          `json:"id"`
	ImportID  uuid.UUID      `json:"import_id"`
	Event     string         `json:"event"`
	ActorID   uuid.UUID      `json:"actor_id"`
	Meta      map[string]any `json:"meta,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
