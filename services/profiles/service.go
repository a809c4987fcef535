// Package profiles manages the user's display profile. Profiles are created
// lazily: reading a profile that does not exist yet materializes an empty
// one, so callers never branch on "no profile".
package profiles

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"cinelog/internal/backend"
	"cinelog/internal/querycache"
	"cinelog/models"
)

var ErrAuthRequired = errors.New("sign in required")

const profileStaleAfter = 30 * time.Minute

type identityProvider interface {
	UserID() string
}

// Service exposes profile reads and writes for the signed-in user.
type Service struct {
	store    backend.Store
	cache    *querycache.Cache
	identity identityProvider
}

func NewService(store backend.Store, cache *querycache.Cache, identity identityProvider) *Service {
	return &Service{store: store, cache: cache, identity: identity}
}

// Get returns the signed-in user's profile, creating an empty one on first
// read.
func (s *Service) Get(ctx context.Context) (models.Profile, error) {
	userID := s.identity.UserID()
	if userID == "" {
		return models.Profile{}, ErrAuthRequired
	}

	key := querycache.NewKey("profile", userID)
	return querycache.Read(ctx, s.cache, key, profileStaleAfter, func(ctx context.Context) (models.Profile, error) {
		profile, err := s.store.GetProfile(ctx, userID)
		if errors.Is(err, backend.ErrNotFound) {
			created, err := s.store.UpsertProfile(ctx, models.Profile{ID: userID})
			if err != nil {
				return models.Profile{}, err
			}
			log.Printf("[profiles] materialized empty profile for user %s", userID)
			return created, nil
		}
		if err != nil {
			return models.Profile{}, err
		}
		return *profile, nil
	})
}

// Update writes the username (and keeps the stored avatar), then invalidates
// the cached profile.
func (s *Service) Update(ctx context.Context, username string) (models.Profile, error) {
	userID := s.identity.UserID()
	if userID == "" {
		return models.Profile{}, ErrAuthRequired
	}

	current, err := s.currentProfile(ctx, userID)
	if err != nil {
		return models.Profile{}, err
	}
	current.Username = username
	stored, err := s.store.UpsertProfile(ctx, current)
	if err != nil {
		return models.Profile{}, err
	}
	s.invalidate(userID)
	return stored, nil
}

// UploadAvatar stores the image and records its URL on the profile.
func (s *Service) UploadAvatar(ctx context.Context, filename string, data io.Reader) (models.Profile, error) {
	userID := s.identity.UserID()
	if userID == "" {
		return models.Profile{}, ErrAuthRequired
	}

	url, err := s.store.UploadAvatar(ctx, userID, filename, data)
	if err != nil {
		return models.Profile{}, err
	}

	current, err := s.currentProfile(ctx, userID)
	if err != nil {
		return models.Profile{}, err
	}
	current.AvatarURL = url
	stored, err := s.store.UpsertProfile(ctx, current)
	if err != nil {
		return models.Profile{}, err
	}
	s.invalidate(userID)
	return stored, nil
}

// currentProfile reads the stored row directly, never through the cache:
// mutations must build on the latest persisted state, and an invalidated
// cache entry still serves its old value until the refetch lands.
func (s *Service) currentProfile(ctx context.Context, userID string) (models.Profile, error) {
	profile, err := s.store.GetProfile(ctx, userID)
	if errors.Is(err, backend.ErrNotFound) {
		return models.Profile{ID: userID}, nil
	}
	if err != nil {
		return models.Profile{}, err
	}
	return *profile, nil
}

func (s *Service) invalidate(userID string) {
	s.cache.Invalidate(querycache.PrefixPredicate("profile", userID))
}
