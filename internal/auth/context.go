package auth

import (
	"net/http"

	"cinelog/models"
)

// ContextKey is the type used for context keys.
type ContextKey string

const (
	// ContextKeyUserID is the key for the authenticated user id.
	ContextKeyUserID ContextKey = "userID"
	// ContextKeySession is the key for the resolved session.
	ContextKeySession ContextKey = "session"
)

// GetUserID retrieves the authenticated user id from the request context.
// Empty means the request carries no valid session.
func GetUserID(r *http.Request) string {
	if id, ok := r.Context().Value(ContextKeyUserID).(string); ok {
		return id
	}
	return ""
}

// GetSession retrieves the resolved session from the request context.
func GetSession(r *http.Request) (models.Session, bool) {
	session, ok := r.Context().Value(ContextKeySession).(models.Session)
	return session, ok
}
