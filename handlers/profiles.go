package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"cinelog/models"
	"cinelog/services/profiles"
)

const maxAvatarBytes = 5 << 20

type profileService interface {
	Get(ctx context.Context) (models.Profile, error)
	Update(ctx context.Context, username string) (models.Profile, error)
	UploadAvatar(ctx context.Context, filename string, data io.Reader) (models.Profile, error)
}

var _ profileService = (*profiles.Service)(nil)

// ProfileHandler serves the signed-in user's profile.
type ProfileHandler struct {
	Service profileService
}

func NewProfileHandler(service profileService) *ProfileHandler {
	return &ProfileHandler{Service: service}
}

func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	profile, err := h.Service.Get(r.Context())
	if err != nil {
		writeProfileError(w, err)
		return
	}
	writeJSON(w, profile)
}

func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	profile, err := h.Service.Update(r.Context(), body.Username)
	if err != nil {
		writeProfileError(w, err)
		return
	}
	writeJSON(w, profile)
}

func (h *ProfileHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxAvatarBytes); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("avatar")
	if err != nil {
		http.Error(w, "avatar file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	profile, err := h.Service.UploadAvatar(r.Context(), header.Filename, io.LimitReader(file, maxAvatarBytes))
	if err != nil {
		writeProfileError(w, err)
		return
	}
	writeJSON(w, profile)
}

func writeProfileError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, profiles.ErrAuthRequired) {
		status = http.StatusUnauthorized
	}
	http.Error(w, err.Error(), status)
}
