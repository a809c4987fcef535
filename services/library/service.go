// Package library manages the per-user collections: favorites, watchlist and
// watched. Reads go through the shared query cache; mutations write through
// to the persistence backend and invalidate exactly the (kind, user) slice of
// the cache they touched. Signed-out users get a local-file fallback for
// favorites only.
package library

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"cinelog/internal/backend"
	"cinelog/internal/localstore"
	"cinelog/internal/querycache"
	"cinelog/models"
)

var (
	ErrAuthRequired     = errors.New("sign in required")
	ErrInvalidListKind  = errors.New("unknown list kind")
	ErrMutationInFlight = errors.New("mutation already in flight for this title")
)

const listStaleAfter = 5 * time.Minute

// identityProvider is the slice of the session service this package needs.
type identityProvider interface {
	UserID() string
}

// Service exposes the library collections.
type Service struct {
	store    backend.Store
	local    *localstore.Store
	cache    *querycache.Cache
	identity identityProvider

	mu       sync.Mutex
	inFlight map[string]bool
}

// NewService wires the library service. local may be nil, in which case
// signed-out favorites are unavailable.
func NewService(store backend.Store, local *localstore.Store, cache *querycache.Cache, identity identityProvider) *Service {
	return &Service{
		store:    store,
		local:    local,
		cache:    cache,
		identity: identity,
		inFlight: make(map[string]bool),
	}
}

// List returns the user's collection of the given kind. A signed-out user can
// still read favorites from the local file; the other kinds require a
// session.
func (s *Service) List(ctx context.Context, kind models.ListKind) ([]models.LibraryItem, error) {
	if !kind.Valid() {
		return nil, ErrInvalidListKind
	}
	userID := s.identity.UserID()
	if userID == "" {
		if kind == models.ListFavorites && s.local != nil {
			return s.local.Favorites(), nil
		}
		return nil, ErrAuthRequired
	}

	key := querycache.NewKey("library", string(kind), userID)
	return querycache.Read(ctx, s.cache, key, listStaleAfter, func(ctx context.Context) ([]models.LibraryItem, error) {
		return s.store.ListLibrary(ctx, kind, userID)
	})
}

// Contains reports whether the title is in the user's collection. It reads
// through the same cached list as List, so it never costs an extra backend
// round-trip.
func (s *Service) Contains(ctx context.Context, kind models.ListKind, mediaType models.MediaType, mediaID string) (bool, error) {
	items, err := s.List(ctx, kind)
	if err != nil {
		return false, err
	}
	for _, it := range items {
		if it.MediaType == mediaType && it.MediaID == mediaID {
			return true, nil
		}
	}
	return false, nil
}

// Add snapshots the catalog item into the user's collection.
func (s *Service) Add(ctx context.Context, kind models.ListKind, item models.MediaItem) error {
	if !kind.Valid() {
		return ErrInvalidListKind
	}
	userID := s.identity.UserID()
	if userID == "" {
		if kind == models.ListFavorites && s.local != nil {
			snap := models.SnapshotOf("", item)
			return s.local.Add(snap)
		}
		return ErrAuthRequired
	}

	snap := models.SnapshotOf(userID, item)
	release, err := s.acquire(kind, snap.MediaType, snap.MediaID)
	if err != nil {
		return err
	}
	defer release()

	if err := s.store.UpsertLibraryItem(ctx, kind, snap); err != nil {
		return err
	}
	s.invalidate(kind, userID)
	return nil
}

// Remove deletes the title from the user's collection.
func (s *Service) Remove(ctx context.Context, kind models.ListKind, mediaType models.MediaType, mediaID string) error {
	if !kind.Valid() {
		return ErrInvalidListKind
	}
	userID := s.identity.UserID()
	if userID == "" {
		if kind == models.ListFavorites && s.local != nil {
			return s.local.Remove(mediaType, mediaID)
		}
		return ErrAuthRequired
	}

	release, err := s.acquire(kind, mediaType, mediaID)
	if err != nil {
		return err
	}
	defer release()

	if err := s.store.DeleteLibraryItem(ctx, kind, userID, mediaType, mediaID); err != nil {
		return err
	}
	s.invalidate(kind, userID)
	return nil
}

// Toggle adds the item when absent and removes it when present, returning the
// resulting membership.
func (s *Service) Toggle(ctx context.Context, kind models.ListKind, item models.MediaItem) (bool, error) {
	mediaID := models.SnapshotOf("", item).MediaID
	present, err := s.Contains(ctx, kind, item.MediaType, mediaID)
	if err != nil {
		return false, err
	}
	if present {
		if err := s.Remove(ctx, kind, item.MediaType, mediaID); err != nil {
			return true, err
		}
		return false, nil
	}
	if err := s.Add(ctx, kind, item); err != nil {
		return false, err
	}
	return true, nil
}

// acquire marks a (kind, title) mutation as in flight so double-clicks fail
// fast instead of racing each other.
func (s *Service) acquire(kind models.ListKind, mediaType models.MediaType, mediaID string) (func(), error) {
	guard := string(kind) + "|" + string(mediaType) + "|" + mediaID
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

// invalidate drops only the cached list the mutation touched. Other kinds and
// other users keep their cached data.
func (s *Service) invalidate(kind models.ListKind, userID string) {
	n := s.cache.Invalidate(querycache.PrefixPredicate("library", string(kind), userID))
	log.Printf("[library] invalidated %d cached %s queries for user %s", n, kind, userID)
}

// InvalidateUser drops every cached library query for the user. Called on
// sign-out so the next session never sees another identity's lists.
func (s *Service) InvalidateUser(userID string) {
	for _, kind := range []models.ListKind{models.ListFavorites, models.ListWatchlist, models.ListWatched} {
		s.cache.Invalidate(querycache.PrefixPredicate("library", string(kind), userID))
	}
}
