// Package localstore keeps the signed-out user's favorites in a single JSON
// file under the data directory. It is a fallback surface: once a user signs
// in, the persistence backend owns the library and this file is left alone.
package localstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"cinelog/models"
)

const favoritesFile = "cinelog_favorites.json"

// Store is a mutex-guarded favorites file. All methods are safe for
// concurrent use; every mutation rewrites the file atomically.
type Store struct {
	mu    sync.RWMutex
	path  string
	items []models.LibraryItem
}

// Open loads (or initializes) the favorites file inside dataDir.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s := &Store{path: filepath.Join(dataDir, favoritesFile)}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Favorites returns a copy of the stored list, newest first.
func (s *Store) Favorites() []models.LibraryItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.LibraryItem, len(s.items))
	copy(out, s.items)
	return out
}

// Has reports whether the title is already a favorite.
func (s *Store) Has(mediaType models.MediaType, mediaID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexOf(mediaType, mediaID) >= 0
}

// Add stores the snapshot unless the title is already present.
func (s *Store) Add(item models.LibraryItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexOf(item.MediaType, item.MediaID) >= 0 {
		return nil
	}
	if item.AddedAt.IsZero() {
		item.AddedAt = time.Now().UTC()
	}
	s.items = append([]models.LibraryItem{item}, s.items...)
	return s.saveLocked()
}

// Remove drops the title; removing an absent title is a no-op.
func (s *Store) Remove(mediaType models.MediaType, mediaID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(mediaType, mediaID)
	if i < 0 {
		return nil
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	return s.saveLocked()
}

func (s *Store) indexOf(mediaType models.MediaType, mediaID string) int {
	for i, it := range s.items {
		if it.MediaType == mediaType && it.MediaID == mediaID {
			return i
		}
	}
	return -1
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read favorites file: %w", err)
	}
	if err := json.Unmarshal(data, &s.items); err != nil {
		return fmt.Errorf("parse favorites file: %w", err)
	}
	return nil
}

func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(s.items, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
