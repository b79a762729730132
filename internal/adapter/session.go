package adapter

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/oauth2"

	"github.com/MKhiriev/go-vault-sync/internal/config"
)

// Session manages the OAuth2 access token for the storage API. It performs
// the password grant once at login and then hands out auto-refreshing tokens
// through the oauth2 token source.
type Session struct {
	conf oauth2.Config

	mu     sync.Mutex
	source oauth2.TokenSource
}

// NewSession builds a Session from the adapter configuration. The session is
// unauthenticated until Login succeeds.
func NewSession(cfg config.Adapter) *Session {
	return &Session{
		conf: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: cfg.TokenURL},
		},
	}
}

// Login exchanges the account credentials for a token via the password grant
// and installs a reusing token source that refreshes transparently.
func (s *Session) Login(ctx context.Context, username, password string) error {
	tok, err := s.conf.PasswordCredentialsToken(ctx, username, password)
	if err != nil {
		return fmt.Errorf("password grant: %w", err)
	}

	s.mu.Lock()
	s.source = s.conf.TokenSource(ctx, tok)
	s.mu.Unlock()
	return nil
}

// AccessToken returns a currently valid access token, refreshing it if
// needed. Returns ErrPermissionDenied (wrapped) when the session has not
// logged in or the refresh is rejected.
func (s *Session) AccessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	source := s.source
	s.mu.Unlock()

	if source == nil {
		return "", fmt.Errorf("%w: session not authenticated", ErrPermissionDenied)
	}

	tok, err := source.Token()
	if err != nil {
		return "", fmt.Errorf("%w: token refresh: %v", ErrPermissionDenied, err)
	}
	return tok.AccessToken, nil
}
