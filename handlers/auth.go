package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"cinelog/internal/backend"
	"cinelog/models"
	"cinelog/services/sessions"
)

type sessionService interface {
	SignUp(ctx context.Context, email, password, username string) (models.Session, error)
	SignIn(ctx context.Context, email, password string) (models.Session, error)
	SignOut(ctx context.Context) error
	Current() (models.Session, error)
}

var _ sessionService = (*sessions.Service)(nil)

// AuthHandler serves sign-up, sign-in, sign-out and the current-session
// lookup.
type AuthHandler struct {
	Service sessionService
}

func NewAuthHandler(service sessionService) *AuthHandler {
	return &AuthHandler{Service: service}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username,omitempty"`
}

func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	session, err := h.Service.SignUp(r.Context(), body.Email, body.Password, body.Username)
	if err != nil {
		writeAuthServiceError(w, err)
		return
	}
	writeJSON(w, session)
}

func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	session, err := h.Service.SignIn(r.Context(), body.Email, body.Password)
	if err != nil {
		writeAuthServiceError(w, err)
		return
	}
	writeJSON(w, session)
}

func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.SignOut(r.Context()); err != nil {
		// The local session is gone either way; report success.
		writeJSON(w, map[string]string{"status": "signed out"})
		return
	}
	writeJSON(w, map[string]string{"status": "signed out"})
}

func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	session, err := h.Service.Current()
	if err != nil {
		http.Error(w, "not signed in", http.StatusUnauthorized)
		return
	}
	writeJSON(w, session)
}

func decodeCredentials(w http.ResponseWriter, r *http.Request) (credentials, bool) {
	var body credentials
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return credentials{}, false
	}
	if strings.TrimSpace(body.Email) == "" || body.Password == "" {
		http.Error(w, "email and password are required", http.StatusBadRequest)
		return credentials{}, false
	}
	return body, true
}

func writeAuthServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, backend.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, backend.ErrEmailTaken):
		status = http.StatusConflict
	}
	http.Error(w, err.Error(), status)
}
