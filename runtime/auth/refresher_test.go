package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/convostream/pkg/testutil"
)

func refreshServer(t *testing.T, handler http.HandlerFunc) (*HTTPRefresher, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPRefresher(srv.URL+"/", srv.Client()), srv
}

func staleCredential() Credential {
	return Credential{
		AccessToken:                testutil.MintToken("alice", time.Unix(1_000, 0)),
		RefreshToken:               "refresh-1",
		AccessTokenExpiresAtMillis: 1_000_000,
		Subject:                    "alice",
	}
}

func TestHTTPRefresherSuccess(t *testing.T) {
	exp := time.Unix(1_900_000_000, 0)
	fresh := testutil.MintToken("alice", exp)

	refresher, _ := refreshServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, RefreshPath, r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh-1", r.PostForm.Get("refresh_token"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": fresh, "token_type": "bearer"})
	})

	prior := staleCredential()
	prior.LastError = ErrorRefreshFailed
	got := refresher.Refresh(context.Background(), prior)

	assert.Equal(t, fresh, got.AccessToken)
	assert.Equal(t, "refresh-1", got.RefreshToken, "refresh token is preserved")
	assert.Equal(t, exp.UnixMilli(), got.AccessTokenExpiresAtMillis)
	assert.Equal(t, ErrorNone, got.LastError)
}

func TestHTTPRefresherFailuresKeepTokens(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"unauthorized", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"Invalid refresh token"}`))
		}},
		{"server error", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"malformed body", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"access_token":`))
		}},
		{"empty token", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"access_token":"","token_type":"bearer"}`))
		}},
		{"undecodable token", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"access_token":"opaque","token_type":"bearer"}`))
		}},
		{"missing exp", func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]string{
				"access_token": testutil.MintToken("alice", time.Time{}),
				"token_type":   "bearer",
			})
		}},
		{"wrong token type", func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]string{
				"access_token": testutil.MintToken("alice", time.Unix(1_900_000_000, 0)),
				"token_type":   "mac",
			})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			refresher, _ := refreshServer(t, tt.handler)
			prior := staleCredential()

			got := refresher.Refresh(context.Background(), prior)

			assert.Equal(t, ErrorRefreshFailed, got.LastError)
			assert.Equal(t, prior.AccessToken, got.AccessToken)
			assert.Equal(t, prior.RefreshToken, got.RefreshToken)
			assert.Equal(t, prior.AccessTokenExpiresAtMillis, got.AccessTokenExpiresAtMillis)
		})
	}
}

func TestHTTPRefresherNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	refresher := NewHTTPRefresher(srv.URL, srv.Client())
	srv.Close()

	prior := staleCredential()
	got := refresher.Refresh(context.Background(), prior)
	again := refresher.Refresh(context.Background(), got)

	assert.Equal(t, ErrorRefreshFailed, got.LastError)
	assert.Equal(t, prior.RefreshToken, got.RefreshToken)
	assert.Equal(t, prior.AccessToken, got.AccessToken)
	assert.Equal(t, got, again, "repeated failure is stable")
}

func TestHTTPRefresherWithoutRefreshToken(t *testing.T) {
	called := false
	refresher, _ := refreshServer(t, func(http.ResponseWriter, *http.Request) { called = true })

	got := refresher.Refresh(context.Background(), Credential{AccessToken: "a"})
	assert.Equal(t, ErrorRefreshFailed, got.LastError)
	assert.False(t, called)
}

func TestNewHTTPRefresherEndpoint(t *testing.T) {
	r := NewHTTPRefresher("http://api.local:8000/", nil)
	assert.Equal(t, "http://api.local:8000/token/refresh", r.Endpoint())
}
