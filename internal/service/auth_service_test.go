package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fotoreg/api/internal/apperr"
	"fotoreg/api/internal/audit"
	"fotoreg/api/internal/config"
	"fotoreg/api/internal/models"
	"fotoreg/api/internal/repository"
	"fotoreg/api/internal/security"
)

type fakeUserStore struct {
	users     map[string]models.User
	updateErr error
	updates   []repository.UserUpdate
}

func (f *fakeUserStore) FindByUsername(ctx context.Context, username string) (models.User, error) {
	for _, user := range f.users {
		if user.Username == username {
			return user, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (f *fakeUserStore) GetByID(ctx context.Context, id string) (models.User, error) {
	user, ok := f.users[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return user, nil
}

func (f *fakeUserStore) Update(ctx context.Context, id string, update repository.UserUpdate) error {
	f.updates = append(f.updates, update)
	if f.updateErr != nil {
		return f.updateErr
	}
	user, ok := f.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	if update.PasswordHash != nil {
		user.PasswordHash = update.PasswordHash
	}
	f.users[id] = user
	return nil
}

type fakeSessionStore struct {
	sessions  map[string]models.Session
	createErr error
}

func (f *fakeSessionStore) CreateAtLogin(ctx context.Context, session models.Session) error {
	if f.createErr != nil {
		return f.createErr
	}
	if f.sessions == nil {
		f.sessions = make(map[string]models.Session)
	}
	f.sessions[session.ID] = session
	return nil
}

func (f *fakeSessionStore) FindActiveByAccessToken(ctx context.Context, token string) (models.Session, error) {
	for _, s := range f.sessions {
		if s.SessionToken == token && s.IsActive && s.ExpiresAt.After(time.Now()) {
			return s, nil
		}
	}
	return models.Session{}, repository.ErrSessionNotFound
}

func (f *fakeSessionStore) FindActiveByRefreshToken(ctx context.Context, token string) (models.Session, error) {
	for _, s := range f.sessions {
		if s.RefreshToken == token && s.IsActive && s.ExpiresAt.After(time.Now()) {
			return s, nil
		}
	}
	return models.Session{}, repository.ErrSessionNotFound
}

func (f *fakeSessionStore) Invalidate(ctx context.Context, userID string, refreshToken string) error {
	for id, s := range f.sessions {
		if s.UserID == userID && s.RefreshToken == refreshToken {
			s.IsActive = false
			f.sessions[id] = s
		}
	}
	return nil
}

func (f *fakeSessionStore) InvalidateAllForUser(ctx context.Context, userID string) error {
	for id, s := range f.sessions {
		if s.UserID == userID {
			s.IsActive = false
			f.sessions[id] = s
		}
	}
	return nil
}

func (f *fakeSessionStore) UpdateAccessToken(ctx context.Context, sessionID string, accessToken string) error {
	s, ok := f.sessions[sessionID]
	if !ok {
		return repository.ErrSessionNotFound
	}
	s.SessionToken = accessToken
	f.sessions[sessionID] = s
	return nil
}

func (f *fakeSessionStore) ListByUser(ctx context.Context, userID string) ([]models.Session, error) {
	var out []models.Session
	for _, s := range f.sessions {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeHub struct {
	userEvents  []string
	adminEvents []string
}

func (f *fakeHub) EmitToUser(userID string, event string, data any) {
	f.userEvents = append(f.userEvents, event)
}

func (f *fakeHub) EmitToAdmins(event string, data any) {
	f.adminEvents = append(f.adminEvents, event)
}

type fakeRecorder struct {
	events []audit.Event
}

func (f *fakeRecorder) Record(ctx context.Context, event audit.Event) {
	f.events = append(f.events, event)
}

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		Security: config.SecurityConfig{
			JWTSecret:     "test-secret",
			JWTAccessTTL:  time.Hour,
			JWTRefreshTTL: 24 * time.Hour,
			SessionTTL:    24 * time.Hour,
		},
	}
}

func newAuthFixture(t *testing.T) (*AuthService, *fakeUserStore, *fakeSessionStore, *fakeHub, *fakeRecorder) {
	t.Helper()

	hash, err := security.HashPassword("operator-password")
	require.NoError(t, err)

	users := &fakeUserStore{users: map[string]models.User{
		"user-1": {
			ID:           "user-1",
			Username:     "operator1",
			PasswordHash: hash,
			Role:         models.UserRoleOperator,
			Status:       models.UserStatusActive,
		},
	}}
	sessions := &fakeSessionStore{sessions: map[string]models.Session{}}
	hub := &fakeHub{}
	recorder := &fakeRecorder{}

	svc := NewAuthService(users, sessions, hub, recorder, testConfig(), zerolog.Nop())
	return svc, users, sessions, hub, recorder
}

func TestLoginOpensSession(t *testing.T) {
	svc, _, sessions, hub, recorder := newAuthFixture(t)

	result, err := svc.Login(context.Background(), LoginInput{
		Username: "operator1",
		Password: "operator-password",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.AccessToken)
	assert.NotEmpty(t, result.RefreshToken)
	require.Len(t, sessions.sessions, 1)

	for _, s := range sessions.sessions {
		assert.Equal(t, result.AccessToken, s.SessionToken)
		assert.Equal(t, result.RefreshToken, s.RefreshToken)
		assert.True(t, s.IsActive)
		assert.WithinDuration(t, time.Now().Add(24*time.Hour), s.ExpiresAt, time.Minute)
	}

	require.Len(t, recorder.events, 1)
	assert.Equal(t, "login", recorder.events[0].Action)
	assert.Contains(t, hub.userEvents, "login_success")
}

func TestLoginWrongPasswordAndUnknownUserLookAlike(t *testing.T) {
	svc, _, _, _, _ := newAuthFixture(t)

	_, errWrongPass := svc.Login(context.Background(), LoginInput{Username: "operator1", Password: "nope"})
	_, errNoUser := svc.Login(context.Background(), LoginInput{Username: "ghost", Password: "nope"})

	assert.ErrorIs(t, errWrongPass, apperr.ErrInvalidCredentials)
	assert.ErrorIs(t, errNoUser, apperr.ErrInvalidCredentials)
}

func TestLoginInactiveUser(t *testing.T) {
	svc, users, _, _, _ := newAuthFixture(t)
	user := users.users["user-1"]
	user.Status = models.UserStatusInactive
	users.users["user-1"] = user

	_, err := svc.Login(context.Background(), LoginInput{Username: "operator1", Password: "operator-password"})
	assert.ErrorIs(t, err, apperr.ErrUserInactive)
}

func TestLoginSessionWriteFailureFailsLogin(t *testing.T) {
	svc, _, sessions, _, recorder := newAuthFixture(t)
	sessions.createErr = errors.New("db down")

	_, err := svc.Login(context.Background(), LoginInput{Username: "operator1", Password: "operator-password"})
	assert.Error(t, err)
	assert.Empty(t, recorder.events)
}

func TestRefreshRotatesOnlyAccessToken(t *testing.T) {
	svc, _, sessions, _, _ := newAuthFixture(t)

	login, err := svc.Login(context.Background(), LoginInput{Username: "operator1", Password: "operator-password"})
	require.NoError(t, err)

	// Token payloads embed issue time at second resolution.
	time.Sleep(1100 * time.Millisecond)

	refreshed, err := svc.Refresh(context.Background(), login.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, login.AccessToken, refreshed.AccessToken)
	assert.Equal(t, login.RefreshToken, refreshed.RefreshToken)

	// The ledger now authenticates the new token, not the old one.
	_, err = sessions.FindActiveByAccessToken(context.Background(), refreshed.AccessToken)
	assert.NoError(t, err)
	_, err = sessions.FindActiveByAccessToken(context.Background(), login.AccessToken)
	assert.Error(t, err)
}

func TestRefreshAfterLogoutFails(t *testing.T) {
	svc, _, _, _, _ := newAuthFixture(t)

	login, err := svc.Login(context.Background(), LoginInput{Username: "operator1", Password: "operator-password"})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), "user-1", login.RefreshToken, "", ""))

	_, err = svc.Refresh(context.Background(), login.RefreshToken)
	assert.ErrorIs(t, err, apperr.ErrSessionInvalid)
}

func TestRefreshGarbageToken(t *testing.T) {
	svc, _, _, _, _ := newAuthFixture(t)

	_, err := svc.Refresh(context.Background(), "garbage")
	assert.ErrorIs(t, err, apperr.ErrTokenInvalid)
}

func TestLogoutIsIdempotent(t *testing.T) {
	svc, _, _, _, _ := newAuthFixture(t)

	login, err := svc.Login(context.Background(), LoginInput{Username: "operator1", Password: "operator-password"})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), "user-1", login.RefreshToken, "", ""))
	require.NoError(t, svc.Logout(context.Background(), "user-1", login.RefreshToken, "", ""))
	require.NoError(t, svc.Logout(context.Background(), "user-1", "never-existed", "", ""))
}

func TestResolveTokenRequiresLiveSession(t *testing.T) {
	svc, _, _, _, _ := newAuthFixture(t)

	login, err := svc.Login(context.Background(), LoginInput{Username: "operator1", Password: "operator-password"})
	require.NoError(t, err)

	user, err := svc.ResolveToken(context.Background(), login.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", user.ID)

	// A valid signature over a dead session authenticates nothing.
	require.NoError(t, svc.Logout(context.Background(), "user-1", login.RefreshToken, "", ""))
	_, err = svc.ResolveToken(context.Background(), login.AccessToken)
	assert.ErrorIs(t, err, apperr.ErrSessionInvalid)
}

func TestChangePasswordKillsAllSessions(t *testing.T) {
	svc, users, sessions, _, recorder := newAuthFixture(t)

	login, err := svc.Login(context.Background(), LoginInput{Username: "operator1", Password: "operator-password"})
	require.NoError(t, err)

	err = svc.ChangePassword(context.Background(), "user-1", "operator-password", "a brand new password", "", "")
	require.NoError(t, err)

	for _, s := range sessions.sessions {
		assert.False(t, s.IsActive)
	}
	_, err = svc.Refresh(context.Background(), login.RefreshToken)
	assert.Error(t, err)

	ok, err := security.VerifyPassword("a brand new password", users.users["user-1"].PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)

	actions := make([]string, 0, len(recorder.events))
	for _, e := range recorder.events {
		actions = append(actions, e.Action)
	}
	assert.Contains(t, actions, "password_change")
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	svc, _, _, _, _ := newAuthFixture(t)

	err := svc.ChangePassword(context.Background(), "user-1", "wrong", "new password here", "", "")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)
}
