package backend

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"golang.org/x/crypto/bcrypt"

	"cinelog/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

const sessionDuration = 30 * 24 * time.Hour

// SQLiteStore implements Store on a local database for self-hosted and
// offline use. Avatar blobs land in a directory next to the database.
type SQLiteStore struct {
	db        *sql.DB
	avatarDir string
}

// NewSQLiteStore opens (creating if needed) the database at path and runs
// pending migrations. Use ":memory:" for tests.
func NewSQLiteStore(path, avatarDir string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = path + "?_foreign_keys=on&_journal_mode=WAL"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, err
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	if avatarDir != "" {
		if err := os.MkdirAll(avatarDir, 0o755); err != nil {
			db.Close()
			return nil, fmt.Errorf("create avatar dir: %w", err)
		}
	}
	return &SQLiteStore{db: db, avatarDir: avatarDir}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SignUp(ctx context.Context, email, password, username string) (models.Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return models.Session{}, ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.Session{}, err
	}

	userID := uuid.NewString()
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		userID, email, string(hash), now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return models.Session{}, ErrEmailTaken
		}
		return models.Session{}, err
	}

	if username != "" {
		profile := models.Profile{ID: userID, Username: username}
		if _, err := s.UpsertProfile(ctx, profile); err != nil {
			return models.Session{}, err
		}
	}
	return s.createSession(ctx, userID, email)
}

func (s *SQLiteStore) SignIn(ctx context.Context, email, password string) (models.Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var userID, hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, password_hash FROM users WHERE email = ?`, email).Scan(&userID, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return models.Session{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return models.Session{}, ErrInvalidCredentials
	}
	return s.createSession(ctx, userID, email)
}

func (s *SQLiteStore) createSession(ctx context.Context, userID, email string) (models.Session, error) {
	now := time.Now().UTC()
	session := models.Session{
		Token:     uuid.NewString(),
		UserID:    userID,
		Email:     email,
		CreatedAt: now,
		ExpiresAt: now.Add(sessionDuration),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (token, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		session.Token, session.UserID, session.CreatedAt, session.ExpiresAt)
	if err != nil {
		return models.Session{}, err
	}
	return session, nil
}

func (s *SQLiteStore) SignOut(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token)
	return err
}

func (s *SQLiteStore) SessionFromToken(ctx context.Context, token string) (models.Session, error) {
	var session models.Session
	err := s.db.QueryRowContext(ctx,
		`SELECT s.token, s.user_id, u.email, s.created_at, s.expires_at
		   FROM sessions s JOIN users u ON u.id = s.user_id
		  WHERE s.token = ?`, token).
		Scan(&session.Token, &session.UserID, &session.Email, &session.CreatedAt, &session.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Session{}, ErrSessionInvalid
	}
	if err != nil {
		return models.Session{}, err
	}
	if session.IsExpired() {
		s.SignOut(ctx, token)
		return models.Session{}, ErrSessionInvalid
	}
	return session, nil
}

func (s *SQLiteStore) ListLibrary(ctx context.Context, kind models.ListKind, userID string) ([]models.LibraryItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, media_type, media_id, title, poster_path, overview, vote_average, year, added_at
		   FROM library WHERE kind = ? AND user_id = ? ORDER BY added_at DESC`,
		string(kind), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.LibraryItem{}
	for rows.Next() {
		var item models.LibraryItem
		var mediaType string
		if err := rows.Scan(&item.UserID, &mediaType, &item.MediaID, &item.Title,
			&item.PosterPath, &item.Overview, &item.VoteAverage, &item.Year, &item.AddedAt); err != nil {
			return nil, err
		}
		item.MediaType = models.MediaType(mediaType)
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *SQLiteStore) UpsertLibraryItem(ctx context.Context, kind models.ListKind, item models.LibraryItem) error {
	addedAt := item.AddedAt
	if addedAt.IsZero() {
		addedAt = time.Now().UTC()
	}
	// The snapshot is point-in-time: on conflict the original row wins so a
	// re-add does not silently refresh display fields.
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO library (kind, user_id, media_type, media_id, title, poster_path, overview, vote_average, year, added_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (kind, user_id, media_type, media_id) DO NOTHING`,
		string(kind), item.UserID, string(item.MediaType), item.MediaID,
		item.Title, item.PosterPath, item.Overview, item.VoteAverage, item.Year, addedAt)
	return err
}

func (s *SQLiteStore) DeleteLibraryItem(ctx context.Context, kind models.ListKind, userID string, mediaType models.MediaType, mediaID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM library WHERE kind = ? AND user_id = ? AND media_type = ? AND media_id = ?`,
		string(kind), userID, string(mediaType), mediaID)
	return err
}

func (s *SQLiteStore) GetReview(ctx context.Context, userID string, mediaType models.MediaType, mediaID string) (*models.Review, error) {
	review, err := s.scanReview(s.db.QueryRowContext(ctx,
		`SELECT id, user_id, media_type, media_id, rating, content, created_at
		   FROM reviews WHERE user_id = ? AND media_type = ? AND media_id = ?`,
		userID, string(mediaType), mediaID))
	if err != nil {
		return nil, err
	}
	return review, nil
}

func (s *SQLiteStore) scanReview(row *sql.Row) (*models.Review, error) {
	var review models.Review
	var mediaType string
	err := row.Scan(&review.ID, &review.UserID, &mediaType, &review.MediaID,
		&review.Rating, &review.Content, &review.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	review.MediaType = models.MediaType(mediaType)
	return &review, nil
}

func (s *SQLiteStore) ListReviews(ctx context.Context, mediaType models.MediaType, mediaID string, page, pageSize int) ([]models.Review, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reviews WHERE media_type = ? AND media_id = ?`,
		string(mediaType), mediaID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, media_type, media_id, rating, content, created_at
		   FROM reviews WHERE media_type = ? AND media_id = ?
		  ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		string(mediaType), mediaID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	reviews := []models.Review{}
	for rows.Next() {
		var review models.Review
		var mt string
		if err := rows.Scan(&review.ID, &review.UserID, &mt, &review.MediaID,
			&review.Rating, &review.Content, &review.CreatedAt); err != nil {
			return nil, 0, err
		}
		review.MediaType = models.MediaType(mt)
		reviews = append(reviews, review)
	}
	return reviews, total, rows.Err()
}

// UpsertReview inserts or, on the (user, mediaType, mediaID) conflict,
// updates rating and content while keeping the original row id and creation
// time.
func (s *SQLiteStore) UpsertReview(ctx context.Context, review models.Review) (models.Review, error) {
	id := review.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reviews (id, user_id, media_type, media_id, rating, content, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, media_type, media_id)
		 DO UPDATE SET rating = excluded.rating, content = excluded.content`,
		id, review.UserID, string(review.MediaType), review.MediaID,
		review.Rating, review.Content, now)
	if err != nil {
		return models.Review{}, err
	}

	stored, err := s.GetReview(ctx, review.UserID, review.MediaType, review.MediaID)
	if err != nil {
		return models.Review{}, err
	}
	return *stored, nil
}

func (s *SQLiteStore) DeleteReview(ctx context.Context, userID string, mediaType models.MediaType, mediaID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM reviews WHERE user_id = ? AND media_type = ? AND media_id = ?`,
		userID, string(mediaType), mediaID)
	return err
}

func (s *SQLiteStore) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var profile models.Profile
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, avatar_url, created_at, updated_at FROM profiles WHERE id = ?`,
		userID).Scan(&profile.ID, &profile.Username, &profile.AvatarURL, &profile.CreatedAt, &profile.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (s *SQLiteStore) UpsertProfile(ctx context.Context, profile models.Profile) (models.Profile, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles (id, username, avatar_url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		     username = excluded.username,
		     avatar_url = excluded.avatar_url,
		     updated_at = excluded.updated_at`,
		profile.ID, profile.Username, profile.AvatarURL, now, now)
	if err != nil {
		return models.Profile{}, err
	}
	stored, err := s.GetProfile(ctx, profile.ID)
	if err != nil {
		return models.Profile{}, err
	}
	return *stored, nil
}

func (s *SQLiteStore) UploadAvatar(ctx context.Context, userID, filename string, data io.Reader) (string, error) {
	if s.avatarDir == "" {
		return "", errors.New("avatar storage not configured")
	}
	name := userID + "_" + filepath.Base(filename)
	path := filepath.Join(s.avatarDir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, data); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return "/avatars/" + name, nil
}

var _ Store = (*SQLiteStore)(nil)
