package session

import "context"

type Repository interface {
	Create(ctx context.Context, s *Session) error
	GetByToken(ctx context.Context, token string) (*Session, error)
	DeleteExpired(ctx context.Context) (int64, error)
}
