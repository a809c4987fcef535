package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/time/rate"
)

const defaultTMDBBaseURL = "https://api.themoviedb.org/3"

// ErrUpstream marks any failure of the metadata API: network errors, 5xx,
// and 4xx alike. Consumers fall back to cached data where available and
// surface a per-section error otherwise.
var ErrUpstream = errors.New("metadata upstream request failed")

// tmdbClient talks to the upstream metadata API. Every request carries the
// bearer credential and a normalized language parameter. Transient failures
// (network, 5xx) are retried a bounded number of times; 4xx responses are
// deterministic bad requests and are never retried.
type tmdbClient struct {
	baseURL    string
	token      string
	language   string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func newTMDBClient(token, language, baseURL string, httpClient *http.Client) *tmdbClient {
	if baseURL == "" {
		baseURL = defaultTMDBBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &tmdbClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		language:   normalizeLanguage(language),
		httpClient: httpClient,
		// TMDB tolerates ~50 req/s; stay well under it.
		limiter: rate.NewLimiter(rate.Limit(20), 40),
	}
}

func (c *tmdbClient) isConfigured() bool {
	return strings.TrimSpace(c.token) != ""
}

// normalizeLanguage maps loose inputs ("en", "pt_br") to the BCP-47 form the
// upstream expects.
func normalizeLanguage(lang string) string {
	lang = strings.TrimSpace(strings.ReplaceAll(lang, "_", "-"))
	if lang == "" {
		return "en-US"
	}
	parts := strings.SplitN(lang, "-", 2)
	if len(parts) == 2 {
		return strings.ToLower(parts[0]) + "-" + strings.ToUpper(parts[1])
	}
	return strings.ToLower(lang) + "-US"
}

func (c *tmdbClient) get(ctx context.Context, path string, params url.Values, out any) error {
	if !c.isConfigured() {
		return fmt.Errorf("%w: no API credential configured", ErrUpstream)
	}
	if params == nil {
		params = url.Values{}
	}
	params.Set("language", c.language)
	endpoint := c.baseURL + path + "?" + params.Encode()

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	return retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("Authorization", "Bearer "+c.token)
			req.Header.Set("Accept", "application/json")

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrUpstream, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode >= 400 {
				io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
				statusErr := fmt.Errorf("%w: %s returned %d", ErrUpstream, path, resp.StatusCode)
				if resp.StatusCode < 500 {
					// Deterministic bad request; retrying cannot help.
					return retry.Unrecoverable(statusErr)
				}
				return statusErr
			}

			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return retry.Unrecoverable(fmt.Errorf("%w: decode %s: %v", ErrUpstream, path, err))
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}

func (c *tmdbClient) searchMulti(ctx context.Context, query string, page int) (*rawPage, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("page", strconv.Itoa(page))
	params.Set("include_adult", "false")
	var out rawPage
	if err := c.get(ctx, "/search/multi", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *tmdbClient) searchPeople(ctx context.Context, query string, page int) (*rawPage, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("page", strconv.Itoa(page))
	params.Set("include_adult", "false")
	var out rawPage
	if err := c.get(ctx, "/search/person", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// trending fetches /trending/{movie|tv}/{day|week}. Entries carry the
// media_type discriminator already.
func (c *tmdbClient) trending(ctx context.Context, mediaType, window string) (*rawPage, error) {
	if window != "day" {
		window = "week"
	}
	var out rawPage
	if err := c.get(ctx, "/trending/"+mediaType+"/"+window, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *tmdbClient) discover(ctx context.Context, mediaType string, genreID int64, sortBy string, page int) (*rawPage, error) {
	params := url.Values{}
	if genreID > 0 {
		params.Set("with_genres", strconv.FormatInt(genreID, 10))
	}
	if sortBy == "" {
		sortBy = "popularity.desc"
	}
	params.Set("sort_by", sortBy)
	params.Set("page", strconv.Itoa(page))
	var out rawPage
	if err := c.get(ctx, "/discover/"+mediaType, params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// movieList fetches one of the fixed movie rails: popular, top_rated,
// upcoming, now_playing.
func (c *tmdbClient) movieList(ctx context.Context, list string, page int) (*rawPage, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	var out rawPage
	if err := c.get(ctx, "/movie/"+list, params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *tmdbClient) details(ctx context.Context, mediaType string, id int64) (*RawMediaItem, error) {
	var out RawMediaItem
	if err := c.get(ctx, "/"+mediaType+"/"+strconv.FormatInt(id, 10), nil, &out); err != nil {
		return nil, err
	}
	// Detail payloads have no media_type field.
	out.MediaType = mediaType
	return &out, nil
}

func (c *tmdbClient) similar(ctx context.Context, mediaType string, id int64) (*rawPage, error) {
	var out rawPage
	if err := c.get(ctx, "/"+mediaType+"/"+strconv.FormatInt(id, 10)+"/similar", nil, &out); err != nil {
		return nil, err
	}
	// Similar results inherit the media type of the title they relate to.
	for i := range out.Results {
		if out.Results[i].MediaType == "" {
			out.Results[i].MediaType = mediaType
		}
	}
	return &out, nil
}

func (c *tmdbClient) genres(ctx context.Context, mediaType string) ([]rawGenre, error) {
	var out rawGenreList
	if err := c.get(ctx, "/genre/"+mediaType+"/list", nil, &out); err != nil {
		return nil, err
	}
	return out.Genres, nil
}

func (c *tmdbClient) person(ctx context.Context, id int64) (*RawMediaItem, error) {
	var out RawMediaItem
	if err := c.get(ctx, "/person/"+strconv.FormatInt(id, 10), nil, &out); err != nil {
		return nil, err
	}
	out.MediaType = "person"
	return &out, nil
}
