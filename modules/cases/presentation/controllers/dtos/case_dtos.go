package dtos

import (
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/caseflow/modules/cases/domain/caserecord"
	"github.com/iota-uz/caseflow/modules/cases/domain/caserow"
)

type CaseResponse struct {
	ID            uuid.UUID `json:"id"`
	CaseKey       string    `json:"caseId"`
	ApplicantName string    `json:"applicantName"`
	DOB           string    `json:"dob"`
	Email         *string   `json:"email,omitempty"`
	Phone         *string   `json:"phone,omitempty"`
	Category      string    `json:"category"`
	Priority      string    `json:"priority"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func NewCaseResponse(rec *caserecord.CaseRecord) CaseResponse {
	return CaseResponse{
		ID:            rec.ID,
		CaseKey:       rec.CaseKey,
		ApplicantName: rec.ApplicantName,
		DOB:           rec.DOB.Format(caserow.DateLayout),
		Email:         rec.Email,
		Phone:         rec.Phone,
		Category:      rec.Category,
		Priority:      rec.Priority,
		Status:        rec.Status,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	}
}

type HistoryEntryResponse struct {
	ID        int64      `json:"id"`
	Action    string     `json:"action"`
	ImportID  *uuid.UUID `json:"importId,omitempty"`
	ActorID   uuid.UUID  `json:"actorId"`
	CreatedAt time.Time  `json:"createdAt"`
}

func NewHistoryEntryResponse(e *caserecord.HistoryEntry) HistoryEntryResponse {
	return HistoryEntryResponse{
		ID:        e.ID,
		Action:    e.Action,
		ImportID:  e.ImportID,
		ActorID:   e.ActorID,
		CreatedAt: e.CreatedAt,
	}
}
