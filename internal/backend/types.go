// Package backend is the client side of the persistence collaborator: an
// authenticated CRUD surface over the user-data collections plus a blob
// store for avatars and session-based auth. Two implementations exist — a
// REST client for the hosted backend and a SQLite store for self-hosted and
// offline use. Everything above this package is implementation-agnostic.
package backend

import (
	"context"
	"errors"
	"io"

	"cinelog/models"
)

var (
	ErrNotFound           = errors.New("record not found")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrSessionInvalid     = errors.New("session invalid or expired")
)

// Store is the persistence backend contract. Row-level constraints (one
// review per user/title, snapshot immutability) are owned here, not by the
// services above.
type Store interface {
	// Auth.
	SignUp(ctx context.Context, email, password, username string) (models.Session, error)
	SignIn(ctx context.Context, email, password string) (models.Session, error)
	SignOut(ctx context.Context, token string) error
	SessionFromToken(ctx context.Context, token string) (models.Session, error)

	// Library collections (favorites / watchlist / watched).
	ListLibrary(ctx context.Context, kind models.ListKind, userID string) ([]models.LibraryItem, error)
	UpsertLibraryItem(ctx context.Context, kind models.ListKind, item models.LibraryItem) error
	DeleteLibraryItem(ctx context.Context, kind models.ListKind, userID string, mediaType models.MediaType, mediaID string) error

	// Reviews. Upsert resolves conflicts on the (user, mediaType, mediaID)
	// triple, keeping the original row identity.
	GetReview(ctx context.Context, userID string, mediaType models.MediaType, mediaID string) (*models.Review, error)
	ListReviews(ctx context.Context, mediaType models.MediaType, mediaID string, page, pageSize int) ([]models.Review, int, error)
	UpsertReview(ctx context.Context, review models.Review) (models.Review, error)
	DeleteReview(ctx context.Context, userID string, mediaType models.MediaType, mediaID string) error

	// Profiles.
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	UpsertProfile(ctx context.Context, profile models.Profile) (models.Profile, error)
	UploadAvatar(ctx context.Context, userID, filename string, data io.Reader) (string, error)
}
