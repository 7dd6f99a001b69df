package composables

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/caseflow/pkg/constants"
)

var (
	ErrNoLogger = errors.New("logger not found")
	ErrNoActor  = errors.New("actor not found")
)

type Params struct {
	IP            string
	UserAgent     string
	Authenticated bool
	Request       *http.Request
	Writer        http.ResponseWriter
}

// UseParams returns the request parameters from the context.
// If the parameters are not found, the second return value will be false.
func UseParams(ctx context.Context) (*Params, bool) {
	params, ok := ctx.Value(constants.ParamsKey).(*Params)
	return params, ok
}

// WithParams returns a new context with the request parameters.
func WithParams(ctx context.Context, params *Params) context.Context {
	return context.WithValue(ctx, constants.ParamsKey, params)
}

// UseLogger returns the logger from the context.
// Panics when the logging middleware did not run.
func UseLogger(ctx context.Context) *logrus.Entry {
	logger := ctx.Value(constants.LoggerKey)
	if logger == nil {
		panic("logger not found")
	}
	return logger.(*logrus.Entry)
}

// TryUseLogger is the non-panicking variant for code paths shared with CLIs.
func TryUseLogger(ctx context.Context) (*logrus.Entry, bool) {
	logger, ok := ctx.Value(constants.LoggerKey).(*logrus.Entry)
	return logger, ok
}

// Actor identifies the authenticated user behind a request.
type Actor struct {
	UserID uuid.UUID
	Email  string
}

func WithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, constants.ActorKey, actor)
}

func UseActor(ctx context.Context) (*Actor, error) {
	actor, ok := ctx.Value(constants.ActorKey).(*Actor)
	if !ok || actor == nil {
		return nil, ErrNoActor
	}
	return actor, nil
}

// UseAuthenticated reports whether an actor is attached to the context.
func UseAuthenticated(ctx context.Context) bool {
	_, err := UseActor(ctx)
	return err == nil
}

// UseIP returns the IP address from the context.
// If the IP address is not found, the second return value will be false.
func UseIP(ctx context.Context) (string, bool) {
	params, ok := UseParams(ctx)
	if !ok {
		return "", false
	}
	return params.IP, true
}

// UseUserAgent returns the user agent from the context.
// If the user agent is not found, the second return value will be false.
func UseUserAgent(ctx context.Context) (string, bool) {
	params, ok := UseParams(ctx)
	if !ok {
		return "", false
	}
	return params.UserAgent, true
}
