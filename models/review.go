package models

import (
	"errors"
	"math"
	"strings"
	"time"
)

var (
	ErrRatingOutOfRange = errors.New("rating must be between 0 and 10")
	ErrRatingGranular   = errors.New("rating must be in half-point steps")
	ErrContentRequired  = errors.New("review content is required")
)

// Review is a user's review of a single title. Exactly one review may exist
// per (UserID, MediaID, MediaType) triple; the persistence backend enforces
// this as an upsert-on-conflict constraint.
type Review struct {
	ID        string    `json:"id,omitempty"` // empty until persisted
	UserID    string    `json:"userId"`
	MediaID   string    `json:"movieId"` // string form of the upstream numeric id
	MediaType MediaType `json:"mediaType"`
	Rating    float64   `json:"rating"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Validate checks the user-controlled fields before a write is attempted.
func (r Review) Validate() error {
	if r.Rating < 0 || r.Rating > 10 {
		return ErrRatingOutOfRange
	}
	if math.Mod(r.Rating*2, 1) != 0 {
		return ErrRatingGranular
	}
	if strings.TrimSpace(r.Content) == "" {
		return ErrContentRequired
	}
	return nil
}
