package reviews

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinelog/internal/backend"
	"cinelog/internal/querycache"
	"cinelog/models"
)

type staticIdentity string

func (s staticIdentity) UserID() string { return string(s) }

// fakeReviewStore implements the review slice of the backend contract with
// call counters so cache interaction is observable.
type fakeReviewStore struct {
	backend.Store

	mu        sync.Mutex
	byUser    map[string]models.Review
	listCalls int
	getCalls  int
	nextID    int
}

func newFakeReviewStore() *fakeReviewStore {
	return &fakeReviewStore{byUser: make(map[string]models.Review)}
}

func (f *fakeReviewStore) key(userID string, mt models.MediaType, id string) string {
	return userID + "/" + string(mt) + "/" + id
}

func (f *fakeReviewStore) GetReview(_ context.Context, userID string, mt models.MediaType, mediaID string) (*models.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	r, ok := f.byUser[f.key(userID, mt, mediaID)]
	if !ok {
		return nil, backend.ErrNotFound
	}
	return &r, nil
}

func (f *fakeReviewStore) ListReviews(_ context.Context, mt models.MediaType, mediaID string, page, pageSize int) ([]models.Review, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	var out []models.Review
	for _, r := range f.byUser {
		if r.MediaType == mt && r.MediaID == mediaID {
			out = append(out, r)
		}
	}
	return out, len(out), nil
}

func (f *fakeReviewStore) UpsertReview(_ context.Context, review models.Review) (models.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := f.key(review.UserID, review.MediaType, review.MediaID)
	if existing, ok := f.byUser[k]; ok {
		existing.Rating = review.Rating
		existing.Content = review.Content
		f.byUser[k] = existing
		return existing, nil
	}
	f.nextID++
	review.ID = "r" + string(rune('0'+f.nextID))
	review.CreatedAt = time.Now()
	f.byUser[k] = review
	return review, nil
}

func (f *fakeReviewStore) DeleteReview(_ context.Context, userID string, mt models.MediaType, mediaID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byUser, f.key(userID, mt, mediaID))
	return nil
}

func newTestService(t *testing.T, store backend.Store, userID string) *Service {
	t.Helper()
	cache := querycache.New(time.Hour)
	t.Cleanup(cache.Close)
	return NewService(store, cache, staticIdentity(userID))
}

func TestUpsertValidates(t *testing.T) {
	store := newFakeReviewStore()
	svc := newTestService(t, store, "u1")
	ctx := context.Background()

	_, err := svc.Upsert(ctx, models.MediaTypeMovie, "603", 11, "too high")
	assert.ErrorIs(t, err, models.ErrRatingOutOfRange)

	_, err = svc.Upsert(ctx, models.MediaTypeMovie, "603", 7.3, "odd step")
	assert.ErrorIs(t, err, models.ErrRatingGranular)

	_, err = svc.Upsert(ctx, models.MediaTypeMovie, "603", 7.5, "")
	assert.ErrorIs(t, err, models.ErrContentRequired)

	stored, err := svc.Upsert(ctx, models.MediaTypeMovie, "603", 7.5, "solid")
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ID)
}

func TestUpsertRequiresAuth(t *testing.T) {
	store := newFakeReviewStore()
	svc := newTestService(t, store, "")

	_, err := svc.Upsert(context.Background(), models.MediaTypeMovie, "603", 8, "x")
	assert.ErrorIs(t, err, ErrAuthRequired)
	assert.Empty(t, store.byUser, "auth gate fires before any backend write")
}

func TestOwnReviewOverlaysListing(t *testing.T) {
	store := newFakeReviewStore()
	// Another user's review exists remotely.
	_, err := store.UpsertReview(context.Background(), models.Review{
		UserID: "other", MediaID: "603", MediaType: models.MediaTypeMovie,
		Rating: 6, Content: "fine",
	})
	require.NoError(t, err)

	svc := newTestService(t, store, "u1")
	ctx := context.Background()

	mine, err := svc.Upsert(ctx, models.MediaTypeMovie, "603", 9.5, "masterpiece")
	require.NoError(t, err)

	page, err := svc.ListForTitle(ctx, models.MediaTypeMovie, "603", 1)
	require.NoError(t, err)
	require.NotNil(t, page.Mine)
	assert.Equal(t, mine.ID, page.Mine.ID)
	require.NotEmpty(t, page.Reviews)
	assert.Equal(t, mine.ID, page.Reviews[0].ID, "own review must be first")

	seen := map[string]int{}
	for _, r := range page.Reviews {
		seen[r.ID]++
	}
	assert.Equal(t, 1, seen[mine.ID], "own review must not be duplicated")
}

func TestEditVisibleImmediatelyAfterUpsert(t *testing.T) {
	store := newFakeReviewStore()
	svc := newTestService(t, store, "u1")
	ctx := context.Background()

	_, err := svc.Upsert(ctx, models.MediaTypeMovie, "603", 7, "first take")
	require.NoError(t, err)
	page, err := svc.ListForTitle(ctx, models.MediaTypeMovie, "603", 1)
	require.NoError(t, err)
	require.NotEmpty(t, page.Reviews)
	assert.Equal(t, "first take", page.Reviews[0].Content)

	// Edit and re-read: the upsert invalidated both the listing and the
	// own-review entry, so the new content shows up without waiting for TTL.
	_, err = svc.Upsert(ctx, models.MediaTypeMovie, "603", 8, "second take")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		page, err := svc.ListForTitle(ctx, models.MediaTypeMovie, "603", 1)
		if err != nil || len(page.Reviews) == 0 {
			return false
		}
		return page.Reviews[0].Content == "second take"
	}, time.Second, 5*time.Millisecond)
}

func TestListingCachedPerTitle(t *testing.T) {
	store := newFakeReviewStore()
	svc := newTestService(t, store, "")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.ListForTitle(ctx, models.MediaTypeMovie, "603", 1)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, store.listCalls, "repeated listings should hit the cache")

	_, err := svc.ListForTitle(ctx, models.MediaTypeMovie, "604", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, store.listCalls, "a different title is a different cache entry")
}

func TestDeleteInvalidatesOwnReview(t *testing.T) {
	store := newFakeReviewStore()
	svc := newTestService(t, store, "u1")
	ctx := context.Background()

	_, err := svc.Upsert(ctx, models.MediaTypeMovie, "603", 8, "keeper")
	require.NoError(t, err)
	mine, err := svc.Mine(ctx, models.MediaTypeMovie, "603")
	require.NoError(t, err)
	require.NotNil(t, mine)

	require.NoError(t, svc.Delete(ctx, models.MediaTypeMovie, "603"))

	assert.Eventually(t, func() bool {
		mine, err := svc.Mine(ctx, models.MediaTypeMovie, "603")
		return err == nil && mine == nil
	}, time.Second, 5*time.Millisecond)
}
