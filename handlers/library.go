package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"cinelog/models"
	"cinelog/services/library"
)

type libraryService interface {
	List(ctx context.Context, kind models.ListKind) ([]models.LibraryItem, error)
	Add(ctx context.Context, kind models.ListKind, item models.MediaItem) error
	Remove(ctx context.Context, kind models.ListKind, mediaType models.MediaType, mediaID string) error
	Toggle(ctx context.Context, kind models.ListKind, item models.MediaItem) (bool, error)
}

var _ libraryService = (*library.Service)(nil)

// LibraryHandler serves the favorites, watchlist, and watched collections.
type LibraryHandler struct {
	Service libraryService
}

func NewLibraryHandler(service libraryService) *LibraryHandler {
	return &LibraryHandler{Service: service}
}

func (h *LibraryHandler) List(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	items, err := h.Service.List(r.Context(), kind)
	if err != nil {
		writeLibraryError(w, err)
		return
	}
	writeJSON(w, items)
}

func (h *LibraryHandler) Add(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}

	var body models.MediaItem
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if body.ID == 0 || !body.MediaType.Valid() {
		http.Error(w, "id and mediaType are required", http.StatusBadRequest)
		return
	}

	if err := h.Service.Add(r.Context(), kind, body); err != nil {
		writeLibraryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *LibraryHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}

	var body models.MediaItem
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if body.ID == 0 || !body.MediaType.Valid() {
		http.Error(w, "id and mediaType are required", http.StatusBadRequest)
		return
	}

	present, err := h.Service.Toggle(r.Context(), kind, body)
	if err != nil {
		writeLibraryError(w, err)
		return
	}
	writeJSON(w, map[string]bool{"present": present})
}

func (h *LibraryHandler) Remove(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}

	vars := mux.Vars(r)
	mediaType := models.MediaType(vars["mediaType"])
	if !mediaType.Valid() {
		http.Error(w, "invalid media type", http.StatusBadRequest)
		return
	}

	if err := h.Service.Remove(r.Context(), kind, mediaType, vars["id"]); err != nil {
		writeLibraryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *LibraryHandler) kind(w http.ResponseWriter, r *http.Request) (models.ListKind, bool) {
	kind := models.ListKind(mux.Vars(r)["kind"])
	if !kind.Valid() {
		http.Error(w, "unknown list kind", http.StatusNotFound)
		return "", false
	}
	return kind, true
}

func writeLibraryError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, library.ErrAuthRequired):
		status = http.StatusUnauthorized
	case errors.Is(err, library.ErrInvalidListKind):
		status = http.StatusNotFound
	case errors.Is(err, library.ErrMutationInFlight):
		status = http.StatusConflict
	}
	http.Error(w, err.Error(), status)
}
