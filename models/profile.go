package models

import "time"

// Profile is the public-facing row for an authenticated user, created lazily
// on first read. The ID equals the backend user ID.
type Profile struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	AvatarURL string    `json:"avatarUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
