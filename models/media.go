package models

// MediaType discriminates the variants of a MediaItem. It is decided once at
// normalization time and never re-inferred downstream by field sniffing.
type MediaType string

const (
	MediaTypeMovie  MediaType = "movie"
	MediaTypeTV     MediaType = "tv"
	MediaTypePerson MediaType = "person"
)

// Valid reports whether t is one of the known media types.
func (t MediaType) Valid() bool {
	switch t {
	case MediaTypeMovie, MediaTypeTV, MediaTypePerson:
		return true
	}
	return false
}

// MediaItem is the canonical shape for anything the upstream catalog returns:
// a movie, a TV show, or a person. ID and MediaType jointly form identity;
// the same numeric ID may legitimately appear under different media types.
type MediaItem struct {
	ID         int64     `json:"id"`
	MediaType  MediaType `json:"mediaType"`
	Popularity float64   `json:"popularity"`

	// Movie / TV fields. TV titles are carried in Title as well; the
	// upstream's name/first_air_date aliases are resolved by the normalizer.
	Title        string  `json:"title,omitempty"`
	ReleaseDate  string  `json:"releaseDate,omitempty"`
	Overview     string  `json:"overview,omitempty"`
	PosterPath   string  `json:"posterPath,omitempty"`
	BackdropPath string  `json:"backdropPath,omitempty"`
	VoteAverage  float64 `json:"voteAverage,omitempty"`
	VoteCount    int64   `json:"voteCount,omitempty"`
	GenreIDs     []int64 `json:"genreIds,omitempty"`

	// Person fields. KnownFor is depth-limited to one level: entries never
	// carry a nested KnownFor of their own.
	Name               string      `json:"name,omitempty"`
	KnownForDepartment string      `json:"knownForDepartment,omitempty"`
	ProfilePath        string      `json:"profilePath,omitempty"`
	KnownFor           []MediaItem `json:"knownFor,omitempty"`
}

// DisplayTitle returns the title for movies/TV and the name for people.
func (m MediaItem) DisplayTitle() string {
	if m.MediaType == MediaTypePerson {
		return m.Name
	}
	return m.Title
}

// Year extracts the release year from ReleaseDate, or 0 when unknown.
func (m MediaItem) Year() int {
	if len(m.ReleaseDate) < 4 {
		return 0
	}
	year := 0
	for _, r := range m.ReleaseDate[:4] {
		if r < '0' || r > '9' {
			return 0
		}
		year = year*10 + int(r-'0')
	}
	return year
}

// Genre is a reference entry from the upstream genre list.
type Genre struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// PagedResults is one page of catalog results plus pagination metadata.
type PagedResults struct {
	Page         int         `json:"page"`
	TotalPages   int         `json:"totalPages"`
	TotalResults int         `json:"totalResults"`
	Items        []MediaItem `json:"items"`
}
