package client

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrNoSession covers every way a cached session can be absent: no file, a
// corrupt file, or a file sealed under a different key. Callers react the
// same way to all three, by logging in again.
var ErrNoSession = errors.New("no cached session")

// StaleAfter is how long a cached session is trusted without server-side
// verification.
const StaleAfter = 30 * time.Minute

// CachedSession is what survives between invocations of a client.
type CachedSession struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
	UserID       string    `json:"userId"`
	Username     string    `json:"username"`
	Role         string    `json:"role"`
	SavedAt      time.Time `json:"savedAt"`
}

// Stale reports whether the session is old enough to need re-verification.
func (s CachedSession) Stale(now time.Time) bool {
	return now.Sub(s.SavedAt) > StaleAfter
}

// SessionCache persists one session to disk, sealed with an AEAD so a
// copied cache file is useless without the key material.
type SessionCache struct {
	path string
	key  []byte
}

// NewSessionCache derives the sealing key from the secret. The same secret
// must be supplied to read the cache back.
func NewSessionCache(path string, secret string) *SessionCache {
	key := sha256.Sum256([]byte(secret))
	return &SessionCache{path: path, key: key[:]}
}

func (c *SessionCache) Save(session CachedSession) error {
	session.SavedAt = time.Now()

	plaintext, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return fmt.Errorf("init cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, plaintext, nil)

	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("cache dir: %w", err)
	}
	if err := os.WriteFile(c.path, sealed, 0o600); err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	return nil
}

func (c *SessionCache) Load() (CachedSession, error) {
	sealed, err := os.ReadFile(c.path)
	if err != nil {
		return CachedSession{}, ErrNoSession
	}

	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return CachedSession{}, fmt.Errorf("init cipher: %w", err)
	}
	if len(sealed) < aead.NonceSize() {
		return CachedSession{}, ErrNoSession
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return CachedSession{}, ErrNoSession
	}

	var session CachedSession
	if err := json.Unmarshal(plaintext, &session); err != nil {
		return CachedSession{}, ErrNoSession
	}
	return session, nil
}

// Clear removes the cache file. Clearing an absent cache succeeds.
func (c *SessionCache) Clear() error {
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
