// Package client is the field-side library for the photo registration API.
// It keeps one authenticated session in an encrypted on-disk cache, refreshes
// the access token transparently, and drops the session after prolonged
// inactivity.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

const defaultIdleTimeout = 2 * time.Hour

// Options configure a Client.
type Options struct {
	BaseURL     string
	CachePath   string
	CacheSecret string

	// IdleTimeout is how long without activity before the watchdog drops
	// the cached session. Zero means the default of two hours.
	IdleTimeout time.Duration

	HTTPClient *http.Client
}

type Client struct {
	baseURL string
	http    *http.Client
	cache   *SessionCache

	mu           sync.Mutex
	session      CachedSession
	hasSession   bool
	lastActivity time.Time

	idleTimeout time.Duration
	stopWatch   chan struct{}
	watchOnce   sync.Once
}

func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("a base URL is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	idle := opts.IdleTimeout
	if idle <= 0 {
		idle = defaultIdleTimeout
	}
	cachePath := opts.CachePath
	if cachePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve cache path: %w", err)
		}
		cachePath = filepath.Join(home, ".fotoreg", "session")
	}

	c := &Client{
		baseURL:     opts.BaseURL,
		http:        httpClient,
		cache:       NewSessionCache(cachePath, opts.CacheSecret),
		idleTimeout: idle,
		stopWatch:   make(chan struct{}),
	}

	if session, err := c.cache.Load(); err == nil {
		c.session = session
		c.hasSession = true
		c.lastActivity = time.Now()
	}
	return c, nil
}

// Close stops the idle watchdog. The cached session stays on disk.
func (c *Client) Close() {
	c.watchOnce.Do(func() {})
	select {
	case <-c.stopWatch:
	default:
		close(c.stopWatch)
	}
}

// Session returns the current session, verifying it against the server if
// the cache is stale. A stale session that no longer verifies is refreshed
// once; if that also fails the caller must log in again.
func (c *Client) Session(ctx context.Context) (CachedSession, error) {
	c.mu.Lock()
	session := c.session
	has := c.hasSession
	c.mu.Unlock()

	if !has {
		return CachedSession{}, ErrNoSession
	}
	if !session.Stale(time.Now()) {
		return session, nil
	}

	if err := c.verify(ctx); err != nil {
		if err := c.refresh(ctx); err != nil {
			c.dropSession()
			return CachedSession{}, ErrNoSession
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session, nil
}

type envelope struct {
	Success    bool            `json:"success"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error"`
	RetryAfter int             `json:"retryAfter"`
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

type tokenData struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

type authData struct {
	User struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		Role     string `json:"role"`
	} `json:"user"`
	Tokens tokenData `json:"tokens"`
}

// Login authenticates and caches the resulting session. It also starts the
// idle watchdog on first use.
func (c *Client) Login(ctx context.Context, username, password string) (CachedSession, error) {
	body := map[string]string{
		"username":   username,
		"password":   password,
		"deviceInfo": "fieldclient",
	}
	var data authData
	if err := c.call(ctx, http.MethodPost, "/api/auth/login", body, "", &data); err != nil {
		return CachedSession{}, err
	}

	session := CachedSession{
		AccessToken:  data.Tokens.AccessToken,
		RefreshToken: data.Tokens.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(data.Tokens.ExpiresIn) * time.Second),
		UserID:       data.User.ID,
		Username:     data.User.Username,
		Role:         data.User.Role,
	}
	c.storeSession(session)
	c.startWatchdog()
	return session, nil
}

// Logout invalidates the server-side session and clears the cache. Both
// sides are best effort; a dead server still clears the local cache.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	session := c.session
	has := c.hasSession
	c.mu.Unlock()

	if has {
		body := map[string]string{"refreshToken": session.RefreshToken}
		if err := c.call(ctx, http.MethodPost, "/api/auth/logout", body, session.AccessToken, nil); err != nil {
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				c.dropSession()
				return err
			}
		}
	}
	c.dropSession()
	return nil
}

// Whoami verifies the session with the server and returns the identity.
func (c *Client) Whoami(ctx context.Context) (CachedSession, error) {
	if err := c.verify(ctx); err != nil {
		return CachedSession{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasSession {
		return CachedSession{}, ErrNoSession
	}
	return c.session, nil
}

// PhotoUpload is the metadata accompanying an upload.
type PhotoUpload struct {
	Path        string
	Latitude    float64
	Longitude   float64
	Orientation *float64
	Altitude    *float64
	Accuracy    *float64
	CapturedAt  time.Time
}

// UploadPhoto registers a photo file with its capture metadata.
func (c *Client) UploadPhoto(ctx context.Context, upload PhotoUpload) (json.RawMessage, error) {
	file, err := os.Open(upload.Path)
	if err != nil {
		return nil, fmt.Errorf("open photo: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("photo", filepath.Base(upload.Path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("read photo: %w", err)
	}

	w.WriteField("latitude", strconv.FormatFloat(upload.Latitude, 'f', -1, 64))
	w.WriteField("longitude", strconv.FormatFloat(upload.Longitude, 'f', -1, 64))
	if upload.Orientation != nil {
		w.WriteField("orientation", strconv.FormatFloat(*upload.Orientation, 'f', -1, 64))
	}
	if upload.Altitude != nil {
		w.WriteField("altitude", strconv.FormatFloat(*upload.Altitude, 'f', -1, 64))
	}
	if upload.Accuracy != nil {
		w.WriteField("accuracy", strconv.FormatFloat(*upload.Accuracy, 'f', -1, 64))
	}
	if !upload.CapturedAt.IsZero() {
		w.WriteField("capturedAt", upload.CapturedAt.Format(time.RFC3339))
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	var data json.RawMessage
	err = c.authedDo(ctx, func(token string) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/photos/upload", bytes.NewReader(buf.Bytes()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", w.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+token)
		return req, nil
	}, &data)
	return data, err
}

// verify asks the server whether the cached access token still works.
func (c *Client) verify(ctx context.Context) error {
	c.mu.Lock()
	session := c.session
	has := c.hasSession
	c.mu.Unlock()

	if !has {
		return ErrNoSession
	}
	if err := c.call(ctx, http.MethodGet, "/api/auth/verify", nil, session.AccessToken, nil); err != nil {
		return err
	}

	c.mu.Lock()
	c.session.SavedAt = time.Now()
	session = c.session
	c.mu.Unlock()
	c.cache.Save(session)
	return nil
}

// refresh exchanges the cached refresh token for a new access token.
func (c *Client) refresh(ctx context.Context) error {
	c.mu.Lock()
	session := c.session
	has := c.hasSession
	c.mu.Unlock()

	if !has {
		return ErrNoSession
	}

	body := map[string]string{"refreshToken": session.RefreshToken}
	var data tokenData
	if err := c.call(ctx, http.MethodPost, "/api/auth/refresh", body, "", &data); err != nil {
		return err
	}

	session.AccessToken = data.AccessToken
	session.ExpiresAt = time.Now().Add(time.Duration(data.ExpiresIn) * time.Second)
	c.storeSession(session)
	return nil
}

// authedDo runs an authenticated request, retrying exactly once after a
// token_expired response by refreshing the access token. Any other 401
// drops the cached session.
func (c *Client) authedDo(ctx context.Context, build func(token string) (*http.Request, error), out any) error {
	c.mu.Lock()
	session := c.session
	has := c.hasSession
	c.mu.Unlock()

	if !has {
		return ErrNoSession
	}
	c.touch()

	err := c.doRequest(build, session.AccessToken, out)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
		if apiErr.Code != "token_expired" {
			c.dropSession()
			return err
		}
		if refreshErr := c.refresh(ctx); refreshErr != nil {
			c.dropSession()
			return err
		}
		c.mu.Lock()
		token := c.session.AccessToken
		c.mu.Unlock()
		return c.doRequest(build, token, out)
	}
	return err
}

func (c *Client) doRequest(build func(token string) (*http.Request, error), token string, out any) error {
	req, err := build(token)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeEnvelope(resp, out)
}

// call issues a JSON request. An empty token sends no Authorization header.
func (c *Client) call(ctx context.Context, method, path string, body any, token string, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeEnvelope(resp, out)
}

func decodeEnvelope(resp *http.Response, out any) error {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= 400 {
			return &APIError{Status: resp.StatusCode, Code: "unexpected_response", Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("decode response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return &APIError{Status: resp.StatusCode, Code: env.Error, Message: env.Message}
	}
	if out != nil && env.Data != nil {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

func (c *Client) storeSession(session CachedSession) {
	c.mu.Lock()
	c.session = session
	c.hasSession = true
	c.lastActivity = time.Now()
	c.mu.Unlock()
	c.cache.Save(session)
}

func (c *Client) dropSession() {
	c.mu.Lock()
	c.session = CachedSession{}
	c.hasSession = false
	c.mu.Unlock()
	c.cache.Clear()
}

func (c *Client) touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// startWatchdog clears the session after the idle timeout. One goroutine
// per client, started lazily on login.
func (c *Client) startWatchdog() {
	c.watchOnce.Do(func() {
		go func() {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-c.stopWatch:
					return
				case <-ticker.C:
					c.mu.Lock()
					idle := c.hasSession && time.Since(c.lastActivity) > c.idleTimeout
					c.mu.Unlock()
					if idle {
						c.dropSession()
					}
				}
			}
		}()
	})
}
