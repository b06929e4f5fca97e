package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fotoreg/api/internal/models"
	"fotoreg/api/internal/repository"
	"fotoreg/api/internal/response"
	"fotoreg/api/internal/security"
)

const testSecret = "middleware-test-secret"

type fakeSessions struct {
	byToken map[string]models.Session
	touched []string
}

func (f *fakeSessions) FindActiveByAccessToken(ctx context.Context, token string) (models.Session, error) {
	s, ok := f.byToken[token]
	if !ok {
		return models.Session{}, repository.ErrSessionNotFound
	}
	return s, nil
}

func (f *fakeSessions) TouchActivity(ctx context.Context, sessionID string) error {
	f.touched = append(f.touched, sessionID)
	return nil
}

type fakeUsers struct {
	byID map[string]models.User
}

func (f *fakeUsers) GetByID(ctx context.Context, id string) (models.User, error) {
	user, ok := f.byID[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return user, nil
}

type authFixture struct {
	users    *fakeUsers
	sessions *fakeSessions
	user     models.User
	token    string
}

func newAuthFixture(t *testing.T) authFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	user := models.User{
		ID:       "user-1",
		Username: "operator1",
		Role:     models.UserRoleOperator,
		Status:   models.UserStatusActive,
	}
	token, err := security.IssueAccessToken(testSecret, user, time.Hour)
	require.NoError(t, err)

	return authFixture{
		users: &fakeUsers{byID: map[string]models.User{user.ID: user}},
		sessions: &fakeSessions{byToken: map[string]models.Session{
			token: {ID: "session-1", UserID: user.ID, SessionToken: token, IsActive: true, ExpiresAt: time.Now().Add(time.Hour)},
		}},
		user:  user,
		token: token,
	}
}

func authRouter(fx authFixture) *gin.Engine {
	router := gin.New()
	router.GET("/private", Auth(testSecret, fx.users, fx.sessions, zerolog.Nop()), func(c *gin.Context) {
		user, _ := CurrentUser(c)
		response.OK(c, "", gin.H{"userId": user.ID})
	})
	router.GET("/mixed", OptionalAuth(testSecret, fx.users, fx.sessions), func(c *gin.Context) {
		if user, ok := CurrentUser(c); ok {
			response.OK(c, "", gin.H{"userId": user.ID})
			return
		}
		response.OK(c, "", gin.H{"anonymous": true})
	})
	return router
}

func doRequest(router *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestAuthAcceptsLiveSession(t *testing.T) {
	fx := newAuthFixture(t)
	rec := doRequest(authRouter(fx), "/private", fx.token)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "user-1")
}

func TestAuthMissingToken(t *testing.T) {
	fx := newAuthFixture(t)
	rec := doRequest(authRouter(fx), "/private", "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "token_required", errorCode(t, rec))
}

func TestAuthMalformedToken(t *testing.T) {
	fx := newAuthFixture(t)
	rec := doRequest(authRouter(fx), "/private", "garbage")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "token_invalid", errorCode(t, rec))
}

func TestAuthExpiredToken(t *testing.T) {
	fx := newAuthFixture(t)
	expired, err := security.IssueAccessToken(testSecret, fx.user, -time.Minute)
	require.NoError(t, err)

	rec := doRequest(authRouter(fx), "/private", expired)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "token_expired", errorCode(t, rec))
}

// A verified signature whose session row is gone must not authenticate.
// This is the replay case: logout, then reuse the still-unexpired token.
func TestAuthRevokedSessionReplay(t *testing.T) {
	fx := newAuthFixture(t)
	delete(fx.sessions.byToken, fx.token)

	rec := doRequest(authRouter(fx), "/private", fx.token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "session_invalid", errorCode(t, rec))
}

func TestAuthInactiveUser(t *testing.T) {
	fx := newAuthFixture(t)
	user := fx.users.byID["user-1"]
	user.Status = models.UserStatusInactive
	fx.users.byID["user-1"] = user

	rec := doRequest(authRouter(fx), "/private", fx.token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "user_invalid", errorCode(t, rec))
}

func TestOptionalAuthAnonymousPasses(t *testing.T) {
	fx := newAuthFixture(t)
	rec := doRequest(authRouter(fx), "/mixed", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "anonymous")
}

func TestOptionalAuthResolvesIdentity(t *testing.T) {
	fx := newAuthFixture(t)
	rec := doRequest(authRouter(fx), "/mixed", fx.token)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "user-1")
}

// The asymmetry: the same garbled token that 401s the hard gateway is
// simply treated as anonymous here.
func TestOptionalAuthBadTokenIsAnonymous(t *testing.T) {
	fx := newAuthFixture(t)

	rec := doRequest(authRouter(fx), "/mixed", "garbage")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "anonymous")

	rec = doRequest(authRouter(fx), "/private", "garbage")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "token_invalid", errorCode(t, rec))
}

// A revoked session behaves like a missing token on the optional path.
func TestOptionalAuthRevokedSessionIsAnonymous(t *testing.T) {
	fx := newAuthFixture(t)
	delete(fx.sessions.byToken, fx.token)

	rec := doRequest(authRouter(fx), "/mixed", fx.token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "anonymous")
}
