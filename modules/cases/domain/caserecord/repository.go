package caserecord

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Upsert inserts or updates by case key and reports whether a new
	// record was created.
	Upsert(ctx context.Context, rec *CaseRecord) (*CaseRecord, bool, error)
	GetByCaseKey(ctx context.Context, caseKey string) (*CaseRecord, error)
	AppendHistory(ctx context.Context, entry *HistoryEntry) error
	History(ctx context.Context, caseID uuid.UUID, limit, offset int) ([]*HistoryEntry, error)
}
