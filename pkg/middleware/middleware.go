package middleware

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/gorilla/mux"

	"github.com/iota-uz/caseflow/pkg/composables"
	"github.com/iota-uz/caseflow/pkg/configuration"
	"github.com/iota-uz/caseflow/pkg/constants"
	"github.com/iota-uz/caseflow/pkg/httpapi"
)

// Provide stores a static value under the given context key for every request.
func Provide(key constants.ContextKey, value any) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), key, value)))
		})
	}
}

// RequestParams attaches request metadata used by audit logging.
func RequestParams() mux.MiddlewareFunc {
	conf := configuration.Use()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			params := &composables.Params{
				IP:        getRealIP(r, conf),
				UserAgent: r.UserAgent(),
				Request:   r,
				Writer:    w,
			}
			next.ServeHTTP(w, r.WithContext(composables.WithParams(r.Context(), params)))
		})
	}
}

func Cors(allowedOrigins ...string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && slices.Contains(allowedOrigins, origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// TokenAuthenticator resolves a session token into an actor.
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, token string) (*composables.Actor, error)
}

// Authorize guards /api routes with session-token auth. The token is read
// from the Authorization header (Bearer scheme) or the sid cookie.
func Authorize(auth TokenAuthenticator) mux.MiddlewareFunc {
	conf := configuration.Use()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isAPIPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			token := bearerToken(r)
			if token == "" {
				if c, err := r.Cookie(conf.SidCookieKey); err == nil {
					token = c.Value
				}
			}
			if token == "" {
				_ = httpapi.WriteError(w, http.StatusUnauthorized, httpapi.CodeUnauthorized, "missing session token", nil)
				return
			}
			actor, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				_ = httpapi.WriteError(w, http.StatusUnauthorized, httpapi.CodeUnauthorized, "invalid or expired session token", nil)
				return
			}
			next.ServeHTTP(w, r.WithContext(composables.WithActor(r.Context(), actor)))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
