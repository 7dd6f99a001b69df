package persistence

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iota-uz/caseflow/modules/core/domain/session"
	"github.com/iota-uz/caseflow/pkg/composables"
)

var ErrSessionNotFound = errors.New("session not found")

type SessionRepository struct{}

func NewSessionRepository() *SessionRepository {
	return &SessionRepository{}
}

func (r *SessionRepository) Create(ctx context.Context, s *session.Session) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	return tx.QueryRow(ctx, `
		INSERT INTO sessions (token, user_id, email, expires_at)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at
		`, s.Token, pgtype.UUID{Bytes: s.UserID, Valid: true}, s.Email, s.ExpiresAt,
	).Scan(&s.CreatedAt)
}

func (r *SessionRepository) GetByToken(ctx context.Context, token string) (*session.Session, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	var s session.Session
	err = tx.QueryRow(ctx, `
		SELECT token, user_id, email, expires_at, created_at
		FROM sessions
		WHERE token = $1
		`, token).Scan(&s.Token, &s.UserID, &s.Email, &s.ExpiresAt, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	tag, err := tx.Exec(ctx, `DELETE FROM sessions WHERE expires_at < now()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
