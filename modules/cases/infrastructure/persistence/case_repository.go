package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iota-uz/caseflow/modules/cases/domain/caserecord"
	"github.com/iota-uz/caseflow/pkg/composables"
)

var ErrCaseNotFound = errors.New("case not found")

type CaseRepository struct{}

func NewCaseRepository() *CaseRepository {
	return &CaseRepository{}
}

func (r *CaseRepository) Upsert(ctx context.Context, rec *caserecord.CaseRecord) (*caserecord.CaseRecord, bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, false, err
	}

	out := *rec
	var inserted bool
	// xmax = 0 only holds for freshly inserted tuples, which distinguishes
	// the insert path from the conflict-update path in one round trip.
	err = tx.QueryRow(ctx, `
		INSERT INTO cases (
			id, case_key, applicant_name, dob, email, phone, category, priority, status
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (case_key) DO UPDATE SET
			applicant_name = EXCLUDED.applicant_name,
			dob            = EXCLUDED.dob,
			email          = EXCLUDED.email,
			phone          = EXCLUDED.phone,
			category       = EXCLUDED.category,
			priority       = EXCLUDED.priority,
			status         = EXCLUDED.status,
			updated_at     = now()
		RETURNING id, created_at, updated_at, (xmax = 0) AS inserted
		`,
		pgUUID(orNewUUID(rec.ID)),
		rec.CaseKey,
		rec.ApplicantName,
		pgDate(rec.DOB),
		pgText(rec.Email),
		pgText(rec.Phone),
		rec.Category,
		rec.Priority,
		rec.Status,
	).Scan(&out.ID, &out.CreatedAt, &out.UpdatedAt, &inserted)
	if err != nil {
		return nil, false, err
	}
	return &out, inserted, nil
}

func (r *CaseRepository) GetByCaseKey(ctx context.Context, caseKey string) (*caserecord.CaseRecord, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	var rec caserecord.CaseRecord
	var email, phone pgtype.Text
	err = tx.QueryRow(ctx, `
		SELECT id, case_key, applicant_name, dob, email, phone, category, priority, status, created_at, updated_at
		FROM cases
		WHERE case_key = $1
		`, caseKey).Scan(
		&rec.ID, &rec.CaseKey, &rec.ApplicantName, &rec.DOB,
		&email, &phone, &rec.Category, &rec.Priority, &rec.Status,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCaseNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.Email = textPtr(email)
	rec.Phone = textPtr(phone)
	return &rec, nil
}

func (r *CaseRepository) AppendHistory(ctx context.Context, entry *caserecord.HistoryEntry) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO case_history (case_id, import_id, action, actor_id)
		VALUES ($1,$2,$3,$4)
		`,
		pgUUID(entry.CaseID),
		pgUUIDPtr(entry.ImportID),
		entry.Action,
		pgUUID(entry.ActorID),
	)
	return err
}

func (r *CaseRepository) History(ctx context.Context, caseID uuid.UUID, limit, offset int) ([]*caserecord.HistoryEntry, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT id, case_id, import_id, action, actor_id, created_at
		FROM case_history
		WHERE case_id = $1
		ORDER BY id DESC
		LIMIT $2 OFFSET $3
		`, pgUUID(caseID), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*caserecord.HistoryEntry
	for rows.Next() {
		var e caserecord.HistoryEntry
		var importID pgtype.UUID
		if err := rows.Scan(&e.ID, &e.CaseID, &importID, &e.Action, &e.ActorID, &e.CreatedAt); err != nil {
			return nil, err
		}
		if importID.Valid {
			id := uuid.UUID(importID.Bytes)
			e.ImportID = &id
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
