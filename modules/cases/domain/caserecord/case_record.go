package caserecord

import (
	"time"

	"github.com/google/uuid"
)

// History actions recorded per case mutation.
const (
	ActionCreated = "CREATED"
	ActionUpdated = "UPDATED"
)

// CaseRecord is the persisted case. CaseKey is the external id carried by
// import files; it is unique across the table.
type CaseRecord struct {
	ID            uuid.UUID `json:"id"`
	CaseKey       string    `json:"caseId"`
	ApplicantName string    `json:"applicantName"`
	DOB           time.Time `json:"dob"`
	Email         *string   `json:"email,omitempty"`
	Phone         *string   `json:"phone,omitempty"`
	Category      string    `json:"category"`
	Priority      string    `json:"priority"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// HistoryEntry is one line of a case's audit trail. ImportID is set when
// the change came in through a bulk import.
type HistoryEntry struct {
	ID        int64      `json:"id"`
	CaseID    uuid.UUID  `json:"case_id"`
	ImportID  *uuid.UUID `json:"import_id,omitempty"`
	Action    string     `json:"action"`
	ActorID   uuid.UUID  `json:"actor_id"`
	CreatedAt time.Time  `json:"created_at"`
}
