package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	mux *http.ServeMux

	accessToken  string
	refreshToken string
	refreshes    int
	uploads      int
}

func newFakeAPI() *fakeAPI {
	api := &fakeAPI{
		mux:          http.NewServeMux(),
		accessToken:  "access-1",
		refreshToken: "refresh-1",
	}

	api.mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Password != "good-password" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid_credentials", "message": "incorrect username or password"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data":    api.authData(),
		})
	})

	api.mux.HandleFunc("POST /api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			RefreshToken string `json:"refreshToken"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.RefreshToken != api.refreshToken {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "session_invalid", "message": "the session has expired or is invalid"})
			return
		}
		api.refreshes++
		api.accessToken = "access-2"
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data":    api.tokenData(),
		})
	})

	api.mux.HandleFunc("GET /api/auth/verify", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+api.accessToken {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "token_expired", "message": "the authentication token has expired"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})

	api.mux.HandleFunc("POST /api/photos/upload", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+api.accessToken {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "token_expired", "message": "the authentication token has expired"})
			return
		}
		api.uploads++
		writeJSON(w, http.StatusCreated, map[string]any{
			"success": true,
			"data":    map[string]any{"id": "photo-1"},
		})
	})

	return api
}

func (a *fakeAPI) tokenData() map[string]any {
	return map[string]any{
		"accessToken":  a.accessToken,
		"refreshToken": a.refreshToken,
		"expiresIn":    int64(24 * time.Hour / time.Second),
	}
}

func (a *fakeAPI) authData() map[string]any {
	return map[string]any{
		"user": map[string]any{
			"id":       "user-1",
			"username": "operator1",
			"role":     "operator",
		},
		"tokens": a.tokenData(),
	}
}

func writeJSON(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(api.mux)
	t.Cleanup(srv.Close)

	c, err := New(Options{
		BaseURL:     srv.URL,
		CachePath:   filepath.Join(t.TempDir(), "session"),
		CacheSecret: "test-secret",
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func photoFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "photo.jpg")
	require.NoError(t, os.WriteFile(path, []byte{0xff, 0xd8, 0xff, 0xe0}, 0o600))
	return path
}

func TestLoginCachesSession(t *testing.T) {
	api := newFakeAPI()
	c := newTestClient(t, api)

	session, err := c.Login(context.Background(), "operator1", "good-password")
	require.NoError(t, err)
	assert.Equal(t, "access-1", session.AccessToken)
	assert.Equal(t, "operator1", session.Username)

	got, err := c.Session(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.AccessToken, got.AccessToken)
}

func TestLoginFailureLeavesNoSession(t *testing.T) {
	api := newFakeAPI()
	c := newTestClient(t, api)

	_, err := c.Login(context.Background(), "operator1", "bad-password")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "invalid_credentials", apiErr.Code)

	_, err = c.Session(context.Background())
	assert.ErrorIs(t, err, ErrNoSession)
}

// The retry-once contract: an expired access token triggers exactly one
// refresh and a replay of the original request.
func TestUploadRetriesOnceAfterExpiry(t *testing.T) {
	api := newFakeAPI()
	c := newTestClient(t, api)

	_, err := c.Login(context.Background(), "operator1", "good-password")
	require.NoError(t, err)

	// Server rotates its expected token; the cached one is now stale.
	api.accessToken = "access-2"

	result, err := c.UploadPhoto(context.Background(), PhotoUpload{
		Path:      photoFile(t),
		Latitude:  41.0,
		Longitude: 29.0,
	})
	require.NoError(t, err)
	assert.Contains(t, string(result), "photo-1")
	assert.Equal(t, 1, api.refreshes)
	assert.Equal(t, 1, api.uploads)
}

func TestUploadWithoutSession(t *testing.T) {
	api := newFakeAPI()
	c := newTestClient(t, api)

	_, err := c.UploadPhoto(context.Background(), PhotoUpload{Path: photoFile(t)})
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestLogoutClearsCacheEvenIfServerRejects(t *testing.T) {
	api := newFakeAPI()
	c := newTestClient(t, api)

	_, err := c.Login(context.Background(), "operator1", "good-password")
	require.NoError(t, err)

	// Invalidate server-side state so logout gets a 401 back.
	api.accessToken = "rotated-away"

	require.NoError(t, c.Logout(context.Background()))
	_, err = c.Session(context.Background())
	assert.ErrorIs(t, err, ErrNoSession)
}
