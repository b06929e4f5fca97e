package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fotoreg/api/internal/models"
	"fotoreg/api/internal/repository"
	"fotoreg/api/internal/security"
)

type fakeAdminUserStore struct {
	users   map[string]models.User
	updates []repository.UserUpdate
}

func (f *fakeAdminUserStore) Create(ctx context.Context, user models.User) error {
	f.users[user.ID] = user
	return nil
}

func (f *fakeAdminUserStore) GetByID(ctx context.Context, id string) (models.User, error) {
	user, ok := f.users[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return user, nil
}

func (f *fakeAdminUserStore) FindByUsername(ctx context.Context, username string) (models.User, error) {
	for _, user := range f.users {
		if user.Username == username {
			return user, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (f *fakeAdminUserStore) List(ctx context.Context, filter repository.UserFilter, limit, offset int) ([]models.User, int, error) {
	var out []models.User
	for _, user := range f.users {
		out = append(out, user)
	}
	return out, len(out), nil
}

func (f *fakeAdminUserStore) ListByRole(ctx context.Context, role models.UserRole) ([]models.User, error) {
	var out []models.User
	for _, user := range f.users {
		if user.Role == role {
			out = append(out, user)
		}
	}
	return out, nil
}

func (f *fakeAdminUserStore) CountByRole(ctx context.Context, role models.UserRole) (int, error) {
	users, _ := f.ListByRole(ctx, role)
	return len(users), nil
}

func (f *fakeAdminUserStore) Update(ctx context.Context, id string, update repository.UserUpdate) error {
	f.updates = append(f.updates, update)
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

func (f *fakeAdminUserStore) SoftDelete(ctx context.Context, id string) error {
	user, ok := f.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	user.Status = models.UserStatusDeleted
	f.users[id] = user
	return nil
}

type fakeUserSessions struct {
	revoked []string
}

func (f *fakeUserSessions) InvalidateAllForUser(ctx context.Context, userID string) error {
	f.revoked = append(f.revoked, userID)
	return nil
}

type userFixture struct {
	svc      *UserService
	store    *fakeAdminUserStore
	sessions *fakeUserSessions
	recorder *fakeRecorder
	admin    models.User
	target   models.User
}

func newUserFixture(t *testing.T) userFixture {
	t.Helper()

	oldHash, err := security.HashPassword("old password 123")
	require.NoError(t, err)

	admin := models.User{ID: "admin-1", Username: "admin", Role: models.UserRoleAdmin, Status: models.UserStatusActive}
	target := models.User{
		ID:           "op-1",
		Username:     "operator1",
		Role:         models.UserRoleOperator,
		Status:       models.UserStatusActive,
		PasswordHash: oldHash,
		LastLogin:    func() *time.Time { now := time.Now(); return &now }(),
	}

	store := &fakeAdminUserStore{users: map[string]models.User{admin.ID: admin, target.ID: target}}
	sessions := &fakeUserSessions{}
	recorder := &fakeRecorder{}
	svc := NewUserService(store, sessions, recorder, zerolog.Nop())

	return userFixture{svc: svc, store: store, sessions: sessions, recorder: recorder, admin: admin, target: target}
}

func TestResetPasswordRotatesCredentialAndKillsSessions(t *testing.T) {
	fx := newUserFixture(t)

	err := fx.svc.ResetPassword(context.Background(), fx.admin, fx.target.ID, "a brand new password", "10.0.0.1", "test")
	require.NoError(t, err)

	updated := fx.store.users[fx.target.ID]
	ok, err := security.VerifyPassword("a brand new password", updated.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = security.VerifyPassword("old password 123", updated.PasswordHash)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, []string{fx.target.ID}, fx.sessions.revoked)

	require.Len(t, fx.recorder.events, 1)
	assert.Equal(t, "reset_password", fx.recorder.events[0].Action)
	assert.Equal(t, fx.target.ID, fx.recorder.events[0].RecordID)
}

func TestResetPasswordRejectsShortPassword(t *testing.T) {
	fx := newUserFixture(t)

	err := fx.svc.ResetPassword(context.Background(), fx.admin, fx.target.ID, "short", "10.0.0.1", "test")
	require.Error(t, err)
	assert.Empty(t, fx.store.updates)
	assert.Empty(t, fx.sessions.revoked)
}

func TestResetPasswordUnknownUser(t *testing.T) {
	fx := newUserFixture(t)

	err := fx.svc.ResetPassword(context.Background(), fx.admin, "ghost", "a brand new password", "10.0.0.1", "test")
	require.Error(t, err)
	assert.Empty(t, fx.sessions.revoked)
}
