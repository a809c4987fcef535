package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cinelog/models"
)

// Client talks to the hosted backend-as-a-service: row CRUD under
// /rest/v1/{collection}, auth under /auth/v1, blobs under /storage/v1. The
// project API key rides on every request; the user's session token is added
// when one is available.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	// tokenSource supplies the current session token, typically wired to the
	// sessions service. May be nil for anonymous reads.
	tokenSource func() string
}

// NewClient constructs a REST backend client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// SetTokenSource wires the provider of the current session token.
func (c *Client) SetTokenSource(source func() string) {
	c.tokenSource = source
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any, headers map[string]string) error {
	_, err := c.doHeaders(ctx, method, path, query, body, out, headers)
	return err
}

// doHeaders is do plus the response headers, for endpoints that carry
// metadata there (row counts in Content-Range).
func (c *Client) doHeaders(ctx context.Context, method, path string, query url.Values, body any, out any, headers map[string]string) (http.Header, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if c.tokenSource != nil {
		if token := c.tokenSource(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrSessionInvalid
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("backend %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return resp.Header, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return nil, err
	}
	return resp.Header, nil
}

type authResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	User        struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

func (r authResponse) session() models.Session {
	now := time.Now()
	return models.Session{
		Token:     r.AccessToken,
		UserID:    r.User.ID,
		Email:     r.User.Email,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Duration(r.ExpiresIn) * time.Second),
	}
}

func (c *Client) SignUp(ctx context.Context, email, password, username string) (models.Session, error) {
	var out authResponse
	body := map[string]any{
		"email":    email,
		"password": password,
		"data":     map[string]string{"username": username},
	}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/signup", nil, body, &out, nil); err != nil {
		if strings.Contains(err.Error(), "already registered") {
			return models.Session{}, ErrEmailTaken
		}
		return models.Session{}, err
	}
	return out.session(), nil
}

func (c *Client) SignIn(ctx context.Context, email, password string) (models.Session, error) {
	query := url.Values{"grant_type": {"password"}}
	body := map[string]string{"email": email, "password": password}
	var out authResponse
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token", query, body, &out, nil); err != nil {
		if err == ErrSessionInvalid {
			return models.Session{}, ErrInvalidCredentials
		}
		return models.Session{}, err
	}
	return out.session(), nil
}

func (c *Client) SignOut(ctx context.Context, token string) error {
	headers := map[string]string{"Authorization": "Bearer " + token}
	return c.do(ctx, http.MethodPost, "/auth/v1/logout", nil, nil, nil, headers)
}

func (c *Client) SessionFromToken(ctx context.Context, token string) (models.Session, error) {
	headers := map[string]string{"Authorization": "Bearer " + token}
	var out struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if err := c.do(ctx, http.MethodGet, "/auth/v1/user", nil, nil, &out, headers); err != nil {
		return models.Session{}, err
	}
	return models.Session{Token: token, UserID: out.ID, Email: out.Email}, nil
}

// libraryRow is the wire shape of a library collection row.
type libraryRow struct {
	UserID      string    `json:"user_id"`
	MediaID     string    `json:"media_id"`
	MediaType   string    `json:"media_type"`
	Title       string    `json:"title"`
	PosterPath  string    `json:"poster_path,omitempty"`
	Overview    string    `json:"overview,omitempty"`
	VoteAverage float64   `json:"vote_average,omitempty"`
	Year        int       `json:"year,omitempty"`
	AddedAt     time.Time `json:"added_at"`
}

func (r libraryRow) item() models.LibraryItem {
	return models.LibraryItem{
		UserID:      r.UserID,
		MediaID:     r.MediaID,
		MediaType:   models.MediaType(r.MediaType),
		Title:       r.Title,
		PosterPath:  r.PosterPath,
		Overview:    r.Overview,
		VoteAverage: r.VoteAverage,
		Year:        r.Year,
		AddedAt:     r.AddedAt,
	}
}

func toLibraryRow(item models.LibraryItem) libraryRow {
	return libraryRow{
		UserID:      item.UserID,
		MediaID:     item.MediaID,
		MediaType:   string(item.MediaType),
		Title:       item.Title,
		PosterPath:  item.PosterPath,
		Overview:    item.Overview,
		VoteAverage: item.VoteAverage,
		Year:        item.Year,
		AddedAt:     item.AddedAt,
	}
}

func (c *Client) ListLibrary(ctx context.Context, kind models.ListKind, userID string) ([]models.LibraryItem, error) {
	query := url.Values{
		"select":  {"*"},
		"user_id": {"eq." + userID},
		"order":   {"added_at.desc"},
	}
	var rows []libraryRow
	if err := c.do(ctx, http.MethodGet, "/rest/v1/"+string(kind), query, nil, &rows, nil); err != nil {
		return nil, err
	}
	items := make([]models.LibraryItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, r.item())
	}
	return items, nil
}

func (c *Client) UpsertLibraryItem(ctx context.Context, kind models.ListKind, item models.LibraryItem) error {
	query := url.Values{"on_conflict": {"user_id,media_type,media_id"}}
	headers := map[string]string{"Prefer": "resolution=merge-duplicates"}
	return c.do(ctx, http.MethodPost, "/rest/v1/"+string(kind), query, toLibraryRow(item), nil, headers)
}

func (c *Client) DeleteLibraryItem(ctx context.Context, kind models.ListKind, userID string, mediaType models.MediaType, mediaID string) error {
	query := url.Values{
		"user_id":    {"eq." + userID},
		"media_type": {"eq." + string(mediaType)},
		"media_id":   {"eq." + mediaID},
	}
	return c.do(ctx, http.MethodDelete, "/rest/v1/"+string(kind), query, nil, nil, nil)
}

type reviewRow struct {
	ID        string    `json:"id,omitempty"`
	UserID    string    `json:"user_id"`
	MediaID   string    `json:"media_id"`
	MediaType string    `json:"media_type"`
	Rating    float64   `json:"rating"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

func (r reviewRow) review() models.Review {
	return models.Review{
		ID:        r.ID,
		UserID:    r.UserID,
		MediaID:   r.MediaID,
		MediaType: models.MediaType(r.MediaType),
		Rating:    r.Rating,
		Content:   r.Content,
		CreatedAt: r.CreatedAt,
	}
}

func (c *Client) GetReview(ctx context.Context, userID string, mediaType models.MediaType, mediaID string) (*models.Review, error) {
	query := url.Values{
		"select":     {"*"},
		"user_id":    {"eq." + userID},
		"media_type": {"eq." + string(mediaType)},
		"media_id":   {"eq." + mediaID},
		"limit":      {"1"},
	}
	var rows []reviewRow
	if err := c.do(ctx, http.MethodGet, "/rest/v1/reviews", query, nil, &rows, nil); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	review := rows[0].review()
	return &review, nil
}

func (c *Client) ListReviews(ctx context.Context, mediaType models.MediaType, mediaID string, page, pageSize int) ([]models.Review, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize
	query := url.Values{
		"select":     {"*"},
		"media_type": {"eq." + string(mediaType)},
		"media_id":   {"eq." + mediaID},
		"order":      {"created_at.desc"},
		"limit":      {strconv.Itoa(pageSize)},
		"offset":     {strconv.Itoa(offset)},
	}
	headers := map[string]string{"Prefer": "count=exact"}
	var rows []reviewRow
	respHeaders, err := c.doHeaders(ctx, http.MethodGet, "/rest/v1/reviews", query, nil, &rows, headers)
	if err != nil {
		return nil, 0, err
	}
	reviews := make([]models.Review, 0, len(rows))
	for _, r := range rows {
		reviews = append(reviews, r.review())
	}
	total, ok := contentRangeTotal(respHeaders.Get("Content-Range"))
	if !ok {
		// The backend omitted the exact count; the page extent is the best
		// lower bound available.
		total = offset + len(reviews)
	}
	return reviews, total, nil
}

// contentRangeTotal extracts the exact row count from a Content-Range header
// ("0-19/45" or "*/45"). Returns false for an absent header or an unknown
// total ("0-19/*").
func contentRangeTotal(header string) (int, bool) {
	_, suffix, found := strings.Cut(header, "/")
	if !found || suffix == "*" {
		return 0, false
	}
	total, err := strconv.Atoi(suffix)
	if err != nil || total < 0 {
		return 0, false
	}
	return total, true
}

func (c *Client) UpsertReview(ctx context.Context, review models.Review) (models.Review, error) {
	row := reviewRow{
		ID:        review.ID,
		UserID:    review.UserID,
		MediaID:   review.MediaID,
		MediaType: string(review.MediaType),
		Rating:    review.Rating,
		Content:   review.Content,
	}
	query := url.Values{"on_conflict": {"user_id,media_type,media_id"}}
	headers := map[string]string{"Prefer": "resolution=merge-duplicates,return=representation"}
	var rows []reviewRow
	if err := c.do(ctx, http.MethodPost, "/rest/v1/reviews", query, row, &rows, headers); err != nil {
		return models.Review{}, err
	}
	if len(rows) == 0 {
		return review, nil
	}
	return rows[0].review(), nil
}

func (c *Client) DeleteReview(ctx context.Context, userID string, mediaType models.MediaType, mediaID string) error {
	query := url.Values{
		"user_id":    {"eq." + userID},
		"media_type": {"eq." + string(mediaType)},
		"media_id":   {"eq." + mediaID},
	}
	return c.do(ctx, http.MethodDelete, "/rest/v1/reviews", query, nil, nil, nil)
}

type profileRow struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

func (c *Client) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	query := url.Values{"select": {"*"}, "id": {"eq." + userID}, "limit": {"1"}}
	var rows []profileRow
	if err := c.do(ctx, http.MethodGet, "/rest/v1/profiles", query, nil, &rows, nil); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	r := rows[0]
	return &models.Profile{ID: r.ID, Username: r.Username, AvatarURL: r.AvatarURL, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt}, nil
}

func (c *Client) UpsertProfile(ctx context.Context, profile models.Profile) (models.Profile, error) {
	row := profileRow{ID: profile.ID, Username: profile.Username, AvatarURL: profile.AvatarURL}
	query := url.Values{"on_conflict": {"id"}}
	headers := map[string]string{"Prefer": "resolution=merge-duplicates,return=representation"}
	var rows []profileRow
	if err := c.do(ctx, http.MethodPost, "/rest/v1/profiles", query, row, &rows, headers); err != nil {
		return models.Profile{}, err
	}
	if len(rows) == 0 {
		return profile, nil
	}
	r := rows[0]
	return models.Profile{ID: r.ID, Username: r.Username, AvatarURL: r.AvatarURL, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt}, nil
}

// UploadAvatar streams the image to the blob store and returns its public
// URL.
func (c *Client) UploadAvatar(ctx context.Context, userID, filename string, data io.Reader) (string, error) {
	objectPath := "/storage/v1/object/avatars/" + userID + "/" + url.PathEscape(filename)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+objectPath, data)
	if err != nil {
		return "", err
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Content-Type", "application/octet-stream")
	if c.tokenSource != nil {
		if token := c.tokenSource(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("backend avatar upload: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	io.Copy(io.Discard, resp.Body)
	return c.baseURL + "/storage/v1/object/public/avatars/" + userID + "/" + url.PathEscape(filename), nil
}

var _ Store = (*Client)(nil)
