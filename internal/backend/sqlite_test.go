package backend

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinelog/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:", t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAuthFlow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	session, err := store.SignUp(ctx, "Alice@Example.com", "hunter22", "alice")
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, "alice@example.com", session.Email)

	// Duplicate email, case-insensitive.
	_, err = store.SignUp(ctx, "alice@example.com", "other", "")
	assert.ErrorIs(t, err, ErrEmailTaken)

	// Profile was created alongside the account.
	profile, err := store.GetProfile(ctx, session.UserID)
	require.NoError(t, err)
	assert.Equal(t, "alice", profile.Username)

	_, err = store.SignIn(ctx, "alice@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	signed, err := store.SignIn(ctx, "alice@example.com", "hunter22")
	require.NoError(t, err)

	resolved, err := store.SessionFromToken(ctx, signed.Token)
	require.NoError(t, err)
	assert.Equal(t, session.UserID, resolved.UserID)

	require.NoError(t, store.SignOut(ctx, signed.Token))
	_, err = store.SessionFromToken(ctx, signed.Token)
	assert.ErrorIs(t, err, ErrSessionInvalid)
}

func TestLibraryCRUD(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	item := models.LibraryItem{
		UserID:    "u1",
		MediaID:   "603",
		MediaType: models.MediaTypeMovie,
		Title:     "The Matrix",
		Year:      1999,
	}
	require.NoError(t, store.UpsertLibraryItem(ctx, models.ListFavorites, item))

	// Re-add with different snapshot fields keeps the original row.
	changed := item
	changed.Title = "Renamed"
	require.NoError(t, store.UpsertLibraryItem(ctx, models.ListFavorites, changed))

	items, err := store.ListLibrary(ctx, models.ListFavorites, "u1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "The Matrix", items[0].Title)
	assert.False(t, items[0].AddedAt.IsZero())

	// Kinds are independent collections.
	require.NoError(t, store.UpsertLibraryItem(ctx, models.ListWatched, item))
	watched, err := store.ListLibrary(ctx, models.ListWatched, "u1")
	require.NoError(t, err)
	assert.Len(t, watched, 1)

	require.NoError(t, store.DeleteLibraryItem(ctx, models.ListFavorites, "u1", models.MediaTypeMovie, "603"))
	items, err = store.ListLibrary(ctx, models.ListFavorites, "u1")
	require.NoError(t, err)
	assert.Empty(t, items)
	watched, err = store.ListLibrary(ctx, models.ListWatched, "u1")
	require.NoError(t, err)
	assert.Len(t, watched, 1, "delete must be scoped to one kind")
}

func TestReviewUpsertKeepsIdentity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.UpsertReview(ctx, models.Review{
		UserID:    "u1",
		MediaID:   "603",
		MediaType: models.MediaTypeMovie,
		Rating:    8,
		Content:   "great",
	})
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)

	second, err := store.UpsertReview(ctx, models.Review{
		UserID:    "u1",
		MediaID:   "603",
		MediaType: models.MediaTypeMovie,
		Rating:    9.5,
		Content:   "even better on rewatch",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "upsert must keep the original row id")
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, 9.5, second.Rating)

	reviews, total, err := store.ListReviews(ctx, models.MediaTypeMovie, "603", 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, reviews, 1)

	require.NoError(t, store.DeleteReview(ctx, "u1", models.MediaTypeMovie, "603"))
	_, err = store.GetReview(ctx, "u1", models.MediaTypeMovie, "603")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReviewPagination(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := store.UpsertReview(ctx, models.Review{
			UserID:    string(rune('a' + i)),
			MediaID:   "42",
			MediaType: models.MediaTypeTV,
			Rating:    7,
			Content:   "ok",
		})
		require.NoError(t, err)
	}

	page, total, err := store.ListReviews(ctx, models.MediaTypeTV, "42", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, page, 2)

	last, _, err := store.ListReviews(ctx, models.MediaTypeTV, "42", 3, 2)
	require.NoError(t, err)
	assert.Len(t, last, 1)
}

func TestProfileUpsertAndAvatar(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetProfile(ctx, "u1")
	require.True(t, errors.Is(err, ErrNotFound))

	profile, err := store.UpsertProfile(ctx, models.Profile{ID: "u1", Username: "neo"})
	require.NoError(t, err)
	assert.Equal(t, "neo", profile.Username)
	assert.False(t, profile.UpdatedAt.IsZero())

	url, err := store.UploadAvatar(ctx, "u1", "face.png", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "/avatars/u1_face.png", url)
}
