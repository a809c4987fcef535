package models

import (
	"strconv"
	"time"
)

// ListKind names the per-user library collections. The three kinds share one
// row shape and differ only in meaning.
type ListKind string

const (
	ListFavorites ListKind = "favorites"
	ListWatchlist ListKind = "watchlist"
	ListWatched   ListKind = "watched"
)

// Valid reports whether k names a known library collection.
func (k ListKind) Valid() bool {
	switch k {
	case ListFavorites, ListWatchlist, ListWatched:
		return true
	}
	return false
}

// LibraryItem is one entry in a user's favorites, watchlist, or watched list.
// The display fields are a denormalized snapshot captured at insertion time;
// they are intentionally not kept in sync with later upstream changes.
type LibraryItem struct {
	UserID      string    `json:"userId"`
	MediaID     string    `json:"movieId"`
	MediaType   MediaType `json:"mediaType"`
	Title       string    `json:"title"`
	PosterPath  string    `json:"posterPath,omitempty"`
	Overview    string    `json:"overview,omitempty"`
	VoteAverage float64   `json:"voteAverage,omitempty"`
	Year        int       `json:"year,omitempty"`
	AddedAt     time.Time `json:"addedAt"`
}

// SnapshotOf builds a library entry from a normalized catalog item.
func SnapshotOf(userID string, m MediaItem) LibraryItem {
	return LibraryItem{
		UserID:      userID,
		MediaID:     strconv.FormatInt(m.ID, 10),
		MediaType:   m.MediaType,
		Title:       m.DisplayTitle(),
		PosterPath:  m.PosterPath,
		Overview:    m.Overview,
		VoteAverage: m.VoteAverage,
		Year:        m.Year(),
	}
}
