package catalog

// Raw upstream payload shapes. Search results are shallower than direct
// detail fetches, so every field is optional; the normalizer owns the
// defaulting.

// RawMediaItem is one entry of an upstream results array. Movies carry
// title/release_date, TV shows carry name/first_air_date, people carry
// name/known_for. The media_type discriminator is present in multi-search
// and trending payloads; detail endpoints omit it and the client fills it in.
type RawMediaItem struct {
	ID         int64   `json:"id"`
	MediaType  string  `json:"media_type"`
	Popularity float64 `json:"popularity"`

	Title        string  `json:"title"`
	Name         string  `json:"name"`
	ReleaseDate  string  `json:"release_date"`
	FirstAirDate string  `json:"first_air_date"`
	Overview     string  `json:"overview"`
	PosterPath   string  `json:"poster_path"`
	BackdropPath string  `json:"backdrop_path"`
	VoteAverage  float64 `json:"vote_average"`
	VoteCount    int64   `json:"vote_count"`
	GenreIDs     []int64 `json:"genre_ids"`

	KnownForDepartment string         `json:"known_for_department"`
	ProfilePath        string         `json:"profile_path"`
	KnownFor           []RawMediaItem `json:"known_for"`

	// Detail payloads expand genres into objects instead of genre_ids.
	Genres []rawGenre `json:"genres"`
}

type rawGenre struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type rawGenreList struct {
	Genres []rawGenre `json:"genres"`
}

// rawPage is the paginated results envelope every list endpoint returns.
type rawPage struct {
	Page         int            `json:"page"`
	Results      []RawMediaItem `json:"results"`
	TotalPages   int            `json:"total_pages"`
	TotalResults int            `json:"total_results"`
}
