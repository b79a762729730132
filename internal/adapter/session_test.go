package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MKhiriev/go-vault-sync/internal/config"
)

func TestSession_AccessTokenBeforeLogin(t *testing.T) {
	s := NewSession(config.Adapter{TokenURL: "http://localhost/token"})

	_, err := s.AccessToken(context.Background())
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestSession_LoginAndAccessToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "password", r.Form.Get("grant_type"))
		assert.Equal(t, "alice", r.Form.Get("username"))
		assert.Equal(t, "s3cret", r.Form.Get("password"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "token-123",
			"token_type":   "bearer",
			"expires_in":   3600,
		})
	}))
	defer srv.Close()

	s := NewSession(config.Adapter{
		TokenURL: srv.URL + "/token",
		ClientID: "vaultsync",
	})
	require.NoError(t, s.Login(context.Background(), "alice", "s3cret"))

	token, err := s.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-123", token)
}

func TestSession_LoginRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	s := NewSession(config.Adapter{TokenURL: srv.URL + "/token"})
	err := s.Login(context.Background(), "alice", "wrong")
	assert.Error(t, err)
}
