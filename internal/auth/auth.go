// Package auth obtains and resolves the API token used for backend
// requests.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	customhttp "github.com/BenjaminSRussell/scrapedeck/internal/http"
	"github.com/BenjaminSRussell/scrapedeck/internal/storage"
	"github.com/BenjaminSRussell/scrapedeck/internal/types"
)

const (
	tokenPath = "/auth/token/"
	userPath  = "/auth/user/"
)

// Credentials are posted to the token endpoint
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// User is the account the current token belongs to
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// SessionStore persists the login between invocations
type SessionStore interface {
	SaveSession(ctx context.Context, sess storage.Session) error
	LoadSession(ctx context.Context) (*storage.Session, error)
	ClearSession(ctx context.Context) error
}

// Service logs in against the backend and keeps the resulting session
type Service struct {
	client *customhttp.Client
	store  SessionStore
	logger *zap.Logger
}

// NewService creates a new auth service
func NewService(client *customhttp.Client, store SessionStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{client: client, store: store, logger: logger}
}

// Login exchanges credentials for a token and stores it
func (s *Service) Login(ctx context.Context, creds Credentials, scheme string) (*storage.Session, error) {
	creds.Username = strings.TrimSpace(creds.Username)
	if creds.Username == "" {
		return nil, types.NewValidationError("username", "username is required")
	}
	if creds.Password == "" {
		return nil, types.NewValidationError("password", "password is required")
	}

	var resp struct {
		Token string `json:"token"`
	}
	// The token endpoint must not receive a stale Authorization header.
	anon := s.client.WithSession(customhttp.Session{})
	if err := anon.PostJSON(ctx, tokenPath, creds, &resp); err != nil {
		return nil, fmt.Errorf("failed to log in: %w", err)
	}
	if resp.Token == "" {
		return nil, fmt.Errorf("failed to log in: backend returned no token")
	}

	sess := storage.Session{Token: resp.Token, Scheme: scheme, Username: creds.Username}
	if err := s.store.SaveSession(ctx, sess); err != nil {
		return nil, err
	}
	s.logger.Info("logged in", zap.String("user", creds.Username))
	return &sess, nil
}

// Logout forgets the stored token. The backend keeps no server-side
// session for token auth, so nothing is sent.
func (s *Service) Logout(ctx context.Context) error {
	return s.store.ClearSession(ctx)
}

// Current returns the stored session, or nil when logged out
func (s *Service) Current(ctx context.Context) (*storage.Session, error) {
	sess, err := s.store.LoadSession(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Whoami asks the backend which user the client's token belongs to
func (s *Service) Whoami(ctx context.Context) (*User, error) {
	var u User
	if err := s.client.GetJSON(ctx, userPath, nil, &u); err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}
	return &u, nil
}

// Resolve picks the session for outgoing requests. An explicit token
// (from config or environment) wins over the stored login.
func Resolve(ctx context.Context, store SessionStore, token, scheme string) customhttp.Session {
	if token != "" {
		return customhttp.Session{Token: token, Scheme: scheme}
	}
	if store == nil {
		return customhttp.Session{}
	}
	sess, err := store.LoadSession(ctx)
	if err != nil {
		return customhttp.Session{}
	}
	if sess.Scheme != "" {
		scheme = sess.Scheme
	}
	return customhttp.Session{Token: sess.Token, Scheme: scheme}
}
