// Package api holds the HTTP middleware shared by all route groups: session
// resolution and per-client rate limiting.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"cinelog/internal/auth"
	"cinelog/models"
)

// sessionResolver validates a bearer token. Satisfied by the persistence
// backend's Store.
type sessionResolver interface {
	SessionFromToken(ctx context.Context, token string) (models.Session, error)
}

// SessionMiddleware resolves the bearer token into a session and injects the
// identity into the request context. Requests without a valid session are
// rejected with 401.
func SessionMiddleware(resolver sessionResolver) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			token := extractToken(r)
			if token == "" {
				writeAuthError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			session, err := resolver.SessionFromToken(r.Context(), token)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "invalid or expired session")
				return
			}
			next.ServeHTTP(w, r.WithContext(withSession(r.Context(), session)))
		})
	}
}

// OptionalSessionMiddleware resolves the bearer token when present but lets
// anonymous requests through. Handlers decide per-operation whether identity
// is required.
func OptionalSessionMiddleware(resolver sessionResolver) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token != "" {
				if session, err := resolver.SessionFromToken(r.Context(), token); err == nil {
					r = r.WithContext(withSession(r.Context(), session))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func withSession(ctx context.Context, session models.Session) context.Context {
	ctx = context.WithValue(ctx, auth.ContextKeyUserID, session.UserID)
	return context.WithValue(ctx, auth.ContextKeySession, session)
}

// extractToken pulls the bearer token from the Authorization header or the
// token query parameter.
func extractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
