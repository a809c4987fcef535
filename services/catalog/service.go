package catalog

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cinelog/internal/querycache"
	"cinelog/models"
)

// ErrAllSectionsFailed is the critical-failure case for the home page batch:
// every section query failed, so there is nothing to render at all. Partial
// failures are reported on the individual sections instead.
var ErrAllSectionsFailed = errors.New("all home sections failed to load")

// ErrUnknownList rejects movie rail names the upstream does not serve.
var ErrUnknownList = errors.New("unknown movie list")

// Minimum query lengths before a search is worth issuing. Person search
// needs two characters, multi search fires on anything non-empty.
const (
	MinMultiQueryLen  = 1
	MinPersonQueryLen = 2
)

// TTLs groups the staleness classes used by catalog reads. Search results go
// stale quickly, list rails are medium-lived, and reference data like genre
// lists changes rarely.
type TTLs struct {
	Search    time.Duration
	List      time.Duration
	Details   time.Duration
	Reference time.Duration
}

// DefaultTTLs returns the staleness windows used when config has no say.
func DefaultTTLs() TTLs {
	return TTLs{
		Search:    5 * time.Minute,
		List:      30 * time.Minute,
		Details:   6 * time.Hour,
		Reference: 7 * 24 * time.Hour,
	}
}

// Service answers all catalog reads through the shared query cache, issuing
// upstream fetches only on miss or staleness and normalizing every payload
// on the way in.
type Service struct {
	tmdb  *tmdbClient
	cache *querycache.Cache
	ttl   TTLs
}

// NewService constructs the catalog service. baseURL is overridable for
// tests; pass "" for the production endpoint.
func NewService(token, language, baseURL string, cache *querycache.Cache, ttl TTLs) *Service {
	if ttl == (TTLs{}) {
		ttl = DefaultTTLs()
	}
	return &Service{
		tmdb:  newTMDBClient(token, language, baseURL, &http.Client{Timeout: 15 * time.Second}),
		cache: cache,
		ttl:   ttl,
	}
}

// normalizeMediaType folds the loose spellings accepted on the wire into the
// two list types the upstream understands.
func normalizeMediaType(mediaType string) string {
	switch strings.ToLower(strings.TrimSpace(mediaType)) {
	case "movie", "movies", "film", "films":
		return "movie"
	default:
		return "tv"
	}
}

// SearchMulti searches movies, TV shows, and people in one query. Queries
// below the minimum length resolve to an empty page without touching the
// upstream; the debounced input pipeline upstream of this call keeps
// keystroke-level traffic away entirely.
func (s *Service) SearchMulti(ctx context.Context, query string, page int) (models.PagedResults, error) {
	query = strings.TrimSpace(query)
	if len(query) < MinMultiQueryLen {
		return models.PagedResults{Items: []models.MediaItem{}}, nil
	}
	if page < 1 {
		page = 1
	}
	key := querycache.NewKey("search", "multi", query, strconv.Itoa(page))
	return querycache.Read(ctx, s.cache, key, s.ttl.Search, func(ctx context.Context) (models.PagedResults, error) {
		raw, err := s.tmdb.searchMulti(ctx, query, page)
		if err != nil {
			return models.PagedResults{}, err
		}
		return normalizePage(raw), nil
	})
}

// SearchPeople searches people only.
func (s *Service) SearchPeople(ctx context.Context, query string, page int) (models.PagedResults, error) {
	query = strings.TrimSpace(query)
	if len(query) < MinPersonQueryLen {
		return models.PagedResults{Items: []models.MediaItem{}}, nil
	}
	if page < 1 {
		page = 1
	}
	key := querycache.NewKey("search", "person", query, strconv.Itoa(page))
	return querycache.Read(ctx, s.cache, key, s.ttl.Search, func(ctx context.Context) (models.PagedResults, error) {
		raw, err := s.tmdb.searchPeople(ctx, query, page)
		if err != nil {
			return models.PagedResults{}, err
		}
		// Person search payloads omit media_type.
		for i := range raw.Results {
			if raw.Results[i].MediaType == "" {
				raw.Results[i].MediaType = "person"
			}
		}
		return normalizePage(raw), nil
	})
}

// Trending returns the trending rail for the given media type and window
// (day|week).
func (s *Service) Trending(ctx context.Context, mediaType, window string) ([]models.MediaItem, error) {
	mt := normalizeMediaType(mediaType)
	if window != "day" {
		window = "week"
	}
	key := querycache.NewKey("trending", mt, window)
	return querycache.Read(ctx, s.cache, key, s.ttl.List, func(ctx context.Context) ([]models.MediaItem, error) {
		raw, err := s.tmdb.trending(ctx, mt, window)
		if err != nil {
			return nil, err
		}
		return NormalizeAll(raw.Results), nil
	})
}

// Discover lists titles filtered by genre and sort order.
func (s *Service) Discover(ctx context.Context, mediaType string, genreID int64, sortBy string, page int) (models.PagedResults, error) {
	mt := normalizeMediaType(mediaType)
	if page < 1 {
		page = 1
	}
	key := querycache.NewKey("discover", mt, strconv.FormatInt(genreID, 10), sortBy, strconv.Itoa(page))
	return querycache.Read(ctx, s.cache, key, s.ttl.List, func(ctx context.Context) (models.PagedResults, error) {
		raw, err := s.tmdb.discover(ctx, mt, genreID, sortBy, page)
		if err != nil {
			return models.PagedResults{}, err
		}
		for i := range raw.Results {
			if raw.Results[i].MediaType == "" {
				raw.Results[i].MediaType = mt
			}
		}
		return normalizePage(raw), nil
	})
}

// Details fetches the full record for one title.
func (s *Service) Details(ctx context.Context, mediaType string, id int64) (*models.MediaItem, error) {
	mt := normalizeMediaType(mediaType)
	key := querycache.NewKey("details", mt, strconv.FormatInt(id, 10))
	return querycache.Read(ctx, s.cache, key, s.ttl.Details, func(ctx context.Context) (*models.MediaItem, error) {
		raw, err := s.tmdb.details(ctx, mt, id)
		if err != nil {
			return nil, err
		}
		return Normalize(*raw), nil
	})
}

// Similar lists titles related to the given one.
func (s *Service) Similar(ctx context.Context, mediaType string, id int64) ([]models.MediaItem, error) {
	mt := normalizeMediaType(mediaType)
	key := querycache.NewKey("similar", mt, strconv.FormatInt(id, 10))
	return querycache.Read(ctx, s.cache, key, s.ttl.List, func(ctx context.Context) ([]models.MediaItem, error) {
		raw, err := s.tmdb.similar(ctx, mt, id)
		if err != nil {
			return nil, err
		}
		return NormalizeAll(raw.Results), nil
	})
}

// MovieList returns one of the standard movie rails: popular, top_rated,
// upcoming, or now_playing.
func (s *Service) MovieList(ctx context.Context, list string, page int) (models.PagedResults, error) {
	switch list {
	case "popular", "top_rated", "upcoming", "now_playing":
	default:
		return models.PagedResults{}, ErrUnknownList
	}
	if page < 1 {
		page = 1
	}
	key := querycache.NewKey("movielist", list, strconv.Itoa(page))
	return querycache.Read(ctx, s.cache, key, s.ttl.List, func(ctx context.Context) (models.PagedResults, error) {
		raw, err := s.tmdb.movieList(ctx, list, page)
		if err != nil {
			return models.PagedResults{}, err
		}
		for i := range raw.Results {
			if raw.Results[i].MediaType == "" {
				raw.Results[i].MediaType = "movie"
			}
		}
		return normalizePage(raw), nil
	})
}

// Genres returns the reference genre list for a media type. This replaces
// the per-resource ad hoc genre cache with a long staleness window in the
// shared cache.
func (s *Service) Genres(ctx context.Context, mediaType string) ([]models.Genre, error) {
	mt := normalizeMediaType(mediaType)
	key := querycache.NewKey("genres", mt)
	return querycache.Read(ctx, s.cache, key, s.ttl.Reference, func(ctx context.Context) ([]models.Genre, error) {
		raws, err := s.tmdb.genres(ctx, mt)
		if err != nil {
			return nil, err
		}
		genres := make([]models.Genre, 0, len(raws))
		for _, g := range raws {
			genres = append(genres, models.Genre{ID: g.ID, Name: g.Name})
		}
		return genres, nil
	})
}

// PersonDetails fetches one person record.
func (s *Service) PersonDetails(ctx context.Context, id int64) (*models.MediaItem, error) {
	key := querycache.NewKey("person", strconv.FormatInt(id, 10))
	return querycache.Read(ctx, s.cache, key, s.ttl.Details, func(ctx context.Context) (*models.MediaItem, error) {
		raw, err := s.tmdb.person(ctx, id)
		if err != nil {
			return nil, err
		}
		return Normalize(*raw), nil
	})
}

// HomeSection is one independently loaded rail of the home page.
type HomeSection struct {
	ID     string             `json:"id"`
	Title  string             `json:"title"`
	Items  []models.MediaItem `json:"items"`
	Failed bool               `json:"failed,omitempty"`
}

// HomePage is the aggregate result of the home batch. Partial is set when
// some but not all sections failed, so the consumer can render a degraded
// view instead of a full-page error.
type HomePage struct {
	Sections []HomeSection `json:"sections"`
	Partial  bool          `json:"partial,omitempty"`
}

// HomeSections loads every home rail concurrently. Sections resolve and
// commit to the cache independently; one broken rail does not block the
// rest. Only the all-failed case returns an error.
func (s *Service) HomeSections(ctx context.Context) (*HomePage, error) {
	type section struct {
		id    string
		title string
		fetch querycache.FetchFunc
	}

	listFetch := func(list string) querycache.FetchFunc {
		return func(ctx context.Context) (any, error) {
			raw, err := s.tmdb.movieList(ctx, list, 1)
			if err != nil {
				return nil, err
			}
			for i := range raw.Results {
				if raw.Results[i].MediaType == "" {
					raw.Results[i].MediaType = "movie"
				}
			}
			return NormalizeAll(raw.Results), nil
		}
	}
	trendingFetch := func(mt string) querycache.FetchFunc {
		return func(ctx context.Context) (any, error) {
			raw, err := s.tmdb.trending(ctx, mt, "week")
			if err != nil {
				return nil, err
			}
			return NormalizeAll(raw.Results), nil
		}
	}

	sections := []section{
		{"trending-movies", "Trending Movies", trendingFetch("movie")},
		{"trending-tv", "Trending TV", trendingFetch("tv")},
		{"popular", "Popular", listFetch("popular")},
		{"top-rated", "Top Rated", listFetch("top_rated")},
		{"upcoming", "Upcoming", listFetch("upcoming")},
		{"now-playing", "Now Playing", listFetch("now_playing")},
	}

	queries := make([]querycache.Query, len(sections))
	for i, sec := range sections {
		queries[i] = querycache.Query{
			Key:        querycache.NewKey("home", sec.id),
			StaleAfter: s.ttl.List,
			Fetch:      sec.fetch,
		}
	}

	batch := s.cache.NewBatch(queries...)
	results := batch.Run(ctx)

	if batch.AllFailed() {
		log.Printf("[catalog] home page critical failure: all %d sections failed", len(sections))
		return nil, ErrAllSectionsFailed
	}

	page := &HomePage{Partial: batch.PartiallyFailed()}
	for i, r := range results {
		sec := HomeSection{ID: sections[i].id, Title: sections[i].title, Items: []models.MediaItem{}}
		if r.Status == querycache.StatusError {
			sec.Failed = true
			log.Printf("[catalog] home section %s failed: %v", sec.ID, r.Err)
		} else if items, ok := r.Value.([]models.MediaItem); ok {
			sec.Items = items
		}
		page.Sections = append(page.Sections, sec)
	}
	return page, nil
}
