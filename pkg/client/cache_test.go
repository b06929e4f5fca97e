package client

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cachePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "session")
}

func TestSessionCacheRoundTrip(t *testing.T) {
	cache := NewSessionCache(cachePath(t), "cache-secret")

	saved := CachedSession{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Hour).Truncate(time.Second),
		UserID:       "user-1",
		Username:     "operator1",
		Role:         "operator",
	}
	require.NoError(t, cache.Save(saved))

	loaded, err := cache.Load()
	require.NoError(t, err)
	assert.Equal(t, saved.AccessToken, loaded.AccessToken)
	assert.Equal(t, saved.RefreshToken, loaded.RefreshToken)
	assert.Equal(t, saved.UserID, loaded.UserID)
	assert.False(t, loaded.SavedAt.IsZero())
}

func TestSessionCacheWrongKeyLooksAbsent(t *testing.T) {
	path := cachePath(t)
	cache := NewSessionCache(path, "right-secret")
	require.NoError(t, cache.Save(CachedSession{AccessToken: "access"}))

	other := NewSessionCache(path, "wrong-secret")
	_, err := other.Load()
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestSessionCacheMissingFile(t *testing.T) {
	cache := NewSessionCache(cachePath(t), "secret")
	_, err := cache.Load()
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestSessionCacheCorruptFile(t *testing.T) {
	path := cachePath(t)
	require.NoError(t, os.WriteFile(path, []byte("junk"), 0o600))

	cache := NewSessionCache(path, "secret")
	_, err := cache.Load()
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestSessionCacheFileIsNotPlaintext(t *testing.T) {
	path := cachePath(t)
	cache := NewSessionCache(path, "secret")
	require.NoError(t, cache.Save(CachedSession{AccessToken: "very-secret-token"}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "very-secret-token")
}

func TestSessionCacheClearIsIdempotent(t *testing.T) {
	cache := NewSessionCache(cachePath(t), "secret")
	require.NoError(t, cache.Save(CachedSession{AccessToken: "access"}))

	require.NoError(t, cache.Clear())
	require.NoError(t, cache.Clear())

	_, err := cache.Load()
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestStale(t *testing.T) {
	session := CachedSession{SavedAt: time.Now()}
	assert.False(t, session.Stale(time.Now()))
	assert.True(t, session.Stale(time.Now().Add(StaleAfter+time.Minute)))
}
