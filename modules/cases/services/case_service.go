package services

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/iota-uz/caseflow/modules/cases/domain/caserecord"
	"github.com/iota-uz/caseflow/modules/cases/infrastructure/persistence"
	"github.com/iota-uz/caseflow/pkg/serrors"
)

var ErrCaseNotFound = serrors.NewError("NOT_FOUND", "case not found", "")

// CaseService is the read side of the case store. Writes go through the
// import pipeline only.
type CaseService struct {
	repo caserecord.Repository
}

func NewCaseService(repo caserecord.Repository) *CaseService {
	return &CaseService{repo: repo}
}

func (s *CaseService) GetByCaseKey(ctx context.Context, caseKey string) (*caserecord.CaseRecord, error) {
	rec, err := s.repo.GetByCaseKey(ctx, caseKey)
	if errors.Is(err, persistence.ErrCaseNotFound) {
		return nil, ErrCaseNotFound.WithDetails("caseId %s", caseKey)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// History lists the audit trail of a case, newest first.
func (s *CaseService) History(ctx context.Context, caseKey string, limit, offset int) ([]*caserecord.HistoryEntry, error) {
	rec, err := s.GetByCaseKey(ctx, caseKey)
	if err != nil {
		return nil, err
	}
	return s.repo.History(ctx, rec.ID, limit, offset)
}
