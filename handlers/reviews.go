package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"cinelog/models"
	"cinelog/services/reviews"
)

type reviewService interface {
	Mine(ctx context.Context, mediaType models.MediaType, mediaID string) (*models.Review, error)
	ListForTitle(ctx context.Context, mediaType models.MediaType, mediaID string, page int) (reviews.Page, error)
	Upsert(ctx context.Context, mediaType models.MediaType, mediaID string, rating float64, content string) (models.Review, error)
	Delete(ctx context.Context, mediaType models.MediaType, mediaID string) error
}

var _ reviewService = (*reviews.Service)(nil)

// ReviewsHandler serves per-title review listings and the signed-in user's
// own review.
type ReviewsHandler struct {
	Service reviewService
}

func NewReviewsHandler(service reviewService) *ReviewsHandler {
	return &ReviewsHandler{Service: service}
}

func (h *ReviewsHandler) List(w http.ResponseWriter, r *http.Request) {
	mediaType, mediaID, ok := h.title(w, r)
	if !ok {
		return
	}
	page, err := h.Service.ListForTitle(r.Context(), mediaType, mediaID, queryPage(r))
	if err != nil {
		writeReviewError(w, err)
		return
	}
	writeJSON(w, page)
}

func (h *ReviewsHandler) Mine(w http.ResponseWriter, r *http.Request) {
	mediaType, mediaID, ok := h.title(w, r)
	if !ok {
		return
	}
	review, err := h.Service.Mine(r.Context(), mediaType, mediaID)
	if err != nil {
		writeReviewError(w, err)
		return
	}
	if review == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, review)
}

func (h *ReviewsHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	mediaType, mediaID, ok := h.title(w, r)
	if !ok {
		return
	}

	var body struct {
		Rating  float64 `json:"rating"`
		Content string  `json:"content"`
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	review, err := h.Service.Upsert(r.Context(), mediaType, mediaID, body.Rating, body.Content)
	if err != nil {
		writeReviewError(w, err)
		return
	}
	writeJSON(w, review)
}

func (h *ReviewsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	mediaType, mediaID, ok := h.title(w, r)
	if !ok {
		return
	}
	if err := h.Service.Delete(r.Context(), mediaType, mediaID); err != nil {
		writeReviewError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ReviewsHandler) title(w http.ResponseWriter, r *http.Request) (models.MediaType, string, bool) {
	vars := mux.Vars(r)
	mediaType := models.MediaType(vars["mediaType"])
	if mediaType != models.MediaTypeMovie && mediaType != models.MediaTypeTV {
		http.Error(w, "reviews exist for movies and tv only", http.StatusBadRequest)
		return "", "", false
	}
	return mediaType, vars["id"], true
}

func writeReviewError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, reviews.ErrAuthRequired):
		status = http.StatusUnauthorized
	case errors.Is(err, models.ErrRatingOutOfRange),
		errors.Is(err, models.ErrRatingGranular),
		errors.Is(err, models.ErrContentRequired):
		status = http.StatusBadRequest
	case errors.Is(err, reviews.ErrMutationInFlight):
		status = http.StatusConflict
	}
	http.Error(w, err.Error(), status)
}
