// Package sessions tracks the current authenticated identity. The rest of
// the application treats it as the single source of truth for "who is signed
// in": services read the user id from here, and subscribers are notified on
// every change so user-scoped cached queries can be torn down.
package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"cinelog/internal/backend"
	"cinelog/models"
)

var ErrNotSignedIn = errors.New("not signed in")

// Service holds the current session, persists it across restarts, and fans
// out change notifications.
type Service struct {
	store backend.Store

	mu      sync.RWMutex
	path    string
	current *models.Session
	subs    []chan models.Session
}

// NewService creates the session holder. storageDir is where session.json is
// kept so a valid session survives restarts; if empty the session lives only
// in memory.
func NewService(store backend.Store, storageDir string) (*Service, error) {
	svc := &Service{store: store}

	if strings.TrimSpace(storageDir) != "" {
		if err := os.MkdirAll(storageDir, 0o755); err != nil {
			return nil, fmt.Errorf("create sessions dir: %w", err)
		}
		svc.path = filepath.Join(storageDir, "session.json")
		if err := svc.load(); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Current returns a copy of the active session, or ErrNotSignedIn.
func (s *Service) Current() (models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil || s.current.IsExpired() {
		return models.Session{}, ErrNotSignedIn
	}
	return *s.current, nil
}

// UserID returns the signed-in user id, or "" when signed out.
func (s *Service) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil || s.current.IsExpired() {
		return ""
	}
	return s.current.UserID
}

// Token returns the bearer token for backend calls, or "" when signed out.
func (s *Service) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil || s.current.IsExpired() {
		return ""
	}
	return s.current.Token
}

func (s *Service) SignUp(ctx context.Context, email, password, username string) (models.Session, error) {
	session, err := s.store.SignUp(ctx, email, password, username)
	if err != nil {
		return models.Session{}, err
	}
	s.setCurrent(&session)
	log.Printf("[sessions] signed up user %s", session.UserID)
	return session, nil
}

func (s *Service) SignIn(ctx context.Context, email, password string) (models.Session, error) {
	session, err := s.store.SignIn(ctx, email, password)
	if err != nil {
		return models.Session{}, err
	}
	s.setCurrent(&session)
	log.Printf("[sessions] signed in user %s", session.UserID)
	return session, nil
}

// Resume validates a previously issued token and restores the session.
func (s *Service) Resume(ctx context.Context, token string) (models.Session, error) {
	session, err := s.store.SessionFromToken(ctx, token)
	if err != nil {
		return models.Session{}, err
	}
	s.setCurrent(&session)
	return session, nil
}

// SignOut revokes the current session. Local state is cleared even when the
// backend call fails so the client never stays stuck signed in.
func (s *Service) SignOut(ctx context.Context) error {
	s.mu.RLock()
	current := s.current
	s.mu.RUnlock()
	if current == nil {
		return nil
	}

	err := s.store.SignOut(ctx, current.Token)
	if err != nil {
		log.Printf("[sessions] backend sign-out failed: %v", err)
	}
	s.setCurrent(nil)
	log.Printf("[sessions] signed out user %s", current.UserID)
	return err
}

// Subscribe returns a channel that receives a session snapshot on every auth
// change, plus a cancel func that removes the subscription. A zero-value
// session means "signed out". Publishers never block; a slow subscriber only
// sees the latest change.
func (s *Service) Subscribe() (<-chan models.Session, func()) {
	ch := make(chan models.Session, 1)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub == ch {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
	return ch, cancel
}

func (s *Service) setCurrent(session *models.Session) {
	s.mu.Lock()
	s.current = session
	subs := make([]chan models.Session, len(s.subs))
	copy(subs, s.subs)
	if err := s.saveLocked(); err != nil {
		log.Printf("[sessions] failed to persist session: %v", err)
	}
	s.mu.Unlock()

	var snapshot models.Session
	if session != nil {
		snapshot = *session
	}
	for _, ch := range subs {
		select {
		case ch <- snapshot:
		default:
			// Drop the stale pending snapshot in favor of the newest one.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snapshot:
			default:
			}
		}
	}
}

func (s *Service) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read session file: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		log.Printf("[sessions] discarding unreadable session file: %v", err)
		return nil
	}
	if session.Token == "" || session.IsExpired() {
		return nil
	}
	s.current = &session
	return nil
}

func (s *Service) saveLocked() error {
	if s.path == "" {
		return nil
	}
	if s.current == nil {
		err := os.Remove(s.path)
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	data, err := json.MarshalIndent(s.current, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
