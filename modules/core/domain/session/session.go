package session

import (
	"time"

	"github.com/google/uuid"
)

// Session is an opaque bearer token tied to a user. Tokens are provisioned
// out of band (seed tooling or an upstream identity service).
type Session struct {
	Token     string    `json:"token"`
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
