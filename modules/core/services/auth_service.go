package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/caseflow/modules/core/domain/session"
	"github.com/iota-uz/caseflow/pkg/composables"
	"github.com/iota-uz/caseflow/pkg/serrors"
)

var ErrInvalidSession = serrors.NewError("UNAUTHORIZED", "invalid or expired session", "")

type AuthService struct {
	sessions        session.Repository
	sessionDuration time.Duration
	now             func() time.Time
}

func NewAuthService(sessions session.Repository, sessionDuration time.Duration) *AuthService {
	return &AuthService{
		sessions:        sessions,
		sessionDuration: sessionDuration,
		now:             time.Now,
	}
}

// Authenticate resolves a bearer token into an actor.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*composables.Actor, error) {
	sess, err := s.sessions.GetByToken(ctx, token)
	if err != nil {
		return nil, ErrInvalidSession
	}
	if sess.Expired(s.now()) {
		return nil, ErrInvalidSession
	}
	return &composables.Actor{UserID: sess.UserID, Email: sess.Email}, nil
}

// CreateSession mints a token for the given user. Used by seed tooling.
func (s *AuthService) CreateSession(ctx context.Context, userID uuid.UUID, email string) (*session.Session, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	sess := &session.Session{
		Token:     hex.EncodeToString(buf),
		UserID:    userID,
		Email:     email,
		ExpiresAt: s.now().Add(s.sessionDuration),
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}
