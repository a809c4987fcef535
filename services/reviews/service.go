// Package reviews manages user reviews of titles. Listings for a title come
// from the backend through the shared query cache; the signed-in user's own
// review is fetched separately and overlaid on top of the page so their
// latest edit is visible even while the listing cache is still stale.
package reviews

import (
	"context"
	"errors"
	"log"
	"strconv"
	"sync"
	"time"

	"cinelog/internal/backend"
	"cinelog/internal/querycache"
	"cinelog/models"
)

var (
	ErrAuthRequired     = errors.New("sign in required")
	ErrMutationInFlight = errors.New("review mutation already in flight")
)

const (
	listStaleAfter = 5 * time.Minute
	mineStaleAfter = 10 * time.Minute
	pageSize       = 20
)

// Page is one page of reviews for a title, with the caller's own review (if
// any) merged in first.
type Page struct {
	Reviews []models.Review `json:"reviews"`
	Total   int             `json:"total"`
	Page    int             `json:"page"`
	Mine    *models.Review  `json:"mine,omitempty"`
}

type identityProvider interface {
	UserID() string
}

// Service exposes review reads and writes.
type Service struct {
	store    backend.Store
	cache    *querycache.Cache
	identity identityProvider

	mu       sync.Mutex
	inFlight map[string]bool
}

func NewService(store backend.Store, cache *querycache.Cache, identity identityProvider) *Service {
	return &Service{
		store:    store,
		cache:    cache,
		identity: identity,
		inFlight: make(map[string]bool),
	}
}

// Mine returns the signed-in user's review of the title, or nil when none
// exists.
func (s *Service) Mine(ctx context.Context, mediaType models.MediaType, mediaID string) (*models.Review, error) {
	userID := s.identity.UserID()
	if userID == "" {
		return nil, ErrAuthRequired
	}

	key := querycache.NewKey("myreview", userID, string(mediaType), mediaID)
	return querycache.Read(ctx, s.cache, key, mineStaleAfter, func(ctx context.Context) (*models.Review, error) {
		review, err := s.store.GetReview(ctx, userID, mediaType, mediaID)
		if errors.Is(err, backend.ErrNotFound) {
			return nil, nil
		}
		return review, err
	})
}

// ListForTitle returns one page of reviews for a title. When signed in, the
// user's own review is overlaid first and deduplicated against the page.
func (s *Service) ListForTitle(ctx context.Context, mediaType models.MediaType, mediaID string, page int) (Page, error) {
	if page < 1 {
		page = 1
	}

	type listing struct {
		Reviews []models.Review
		Total   int
	}
	key := querycache.NewKey("reviews", string(mediaType), mediaID, strconv.Itoa(page))
	remote, err := querycache.Read(ctx, s.cache, key, listStaleAfter, func(ctx context.Context) (listing, error) {
		reviews, total, err := s.store.ListReviews(ctx, mediaType, mediaID, page, pageSize)
		return listing{Reviews: reviews, Total: total}, err
	})
	if err != nil {
		return Page{}, err
	}

	result := Page{Reviews: remote.Reviews, Total: remote.Total, Page: page}
	if s.identity.UserID() == "" {
		return result, nil
	}

	mine, err := s.Mine(ctx, mediaType, mediaID)
	if err != nil {
		// The listing is still useful without the overlay.
		log.Printf("[reviews] overlay fetch failed for %s/%s: %v", mediaType, mediaID, err)
		return result, nil
	}
	result.Mine = mine
	if page == 1 {
		result.Reviews = MergeLocalFirst(mine, remote.Reviews, func(r models.Review) string { return r.ID })
	} else if mine != nil {
		// Deeper pages only drop the duplicate; the overlay row lives on
		// page one.
		result.Reviews = dropByID(remote.Reviews, mine.ID)
	}
	return result, nil
}

// Upsert validates and writes the user's review, then invalidates the
// listing pages for the title and the user's own-review entry.
func (s *Service) Upsert(ctx context.Context, mediaType models.MediaType, mediaID string, rating float64, content string) (models.Review, error) {
	userID := s.identity.UserID()
	if userID == "" {
		return models.Review{}, ErrAuthRequired
	}

	review := models.Review{
		UserID:    userID,
		MediaID:   mediaID,
		MediaType: mediaType,
		Rating:    rating,
		Content:   content,
	}
	if err := review.Validate(); err != nil {
		return models.Review{}, err
	}

	release, err := s.acquire(userID, mediaType, mediaID)
	if err != nil {
		return models.Review{}, err
	}
	defer release()

	stored, err := s.store.UpsertReview(ctx, review)
	if err != nil {
		return models.Review{}, err
	}
	s.invalidate(userID, mediaType, mediaID)
	return stored, nil
}

// Delete removes the user's review of the title.
func (s *Service) Delete(ctx context.Context, mediaType models.MediaType, mediaID string) error {
	userID := s.identity.UserID()
	if userID == "" {
		return ErrAuthRequired
	}

	release, err := s.acquire(userID, mediaType, mediaID)
	if err != nil {
		return err
	}
	defer release()

	if err := s.store.DeleteReview(ctx, userID, mediaType, mediaID); err != nil {
		return err
	}
	s.invalidate(userID, mediaType, mediaID)
	return nil
}

func (s *Service) acquire(userID string, mediaType models.MediaType, mediaID string) (func(), error) {
	guard := userID + "|" + string(mediaType) + "|" + mediaID
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[guard] {
		return nil, ErrMutationInFlight
	}
	s.inFlight[guard] = true
	return func() {
		s.mu.Lock()
		delete(s.inFlight, guard)
		s.mu.Unlock()
	}, nil
}

// invalidate drops every cached listing page for the title plus the user's
// own-review entry. Other titles and other users are untouched.
func (s *Service) invalidate(userID string, mediaType models.MediaType, mediaID string) {
	n := s.cache.Invalidate(querycache.PrefixPredicate("reviews", string(mediaType), mediaID))
	n += s.cache.Invalidate(querycache.PrefixPredicate("myreview", userID, string(mediaType), mediaID))
	log.Printf("[reviews] invalidated %d cached queries for %s/%s", n, mediaType, mediaID)
}

func dropByID(reviews []models.Review, id string) []models.Review {
	out := make([]models.Review, 0, len(reviews))
	for _, r := range reviews {
		if r.ID == id {
			continue
		}
		out = append(out, r)
	}
	return out
}
