package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"fotoreg/api/internal/apperr"
	"fotoreg/api/internal/audit"
	"fotoreg/api/internal/config"
	"fotoreg/api/internal/ids"
	"fotoreg/api/internal/models"
	"fotoreg/api/internal/repository"
	"fotoreg/api/internal/security"
)

// AuthUserStore is the user persistence surface the auth flows need.
type AuthUserStore interface {
	FindByUsername(ctx context.Context, username string) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	Update(ctx context.Context, id string, update repository.UserUpdate) error
}

// AuthSessionStore is the session ledger surface the auth flows need.
type AuthSessionStore interface {
	CreateAtLogin(ctx context.Context, session models.Session) error
	FindActiveByAccessToken(ctx context.Context, token string) (models.Session, error)
	FindActiveByRefreshToken(ctx context.Context, token string) (models.Session, error)
	Invalidate(ctx context.Context, userID string, refreshToken string) error
	InvalidateAllForUser(ctx context.Context, userID string) error
	UpdateAccessToken(ctx context.Context, sessionID string, accessToken string) error
	ListByUser(ctx context.Context, userID string) ([]models.Session, error)
}

// Broadcaster pushes realtime events.
type Broadcaster interface {
	EmitToUser(userID string, event string, data any)
	EmitToAdmins(event string, data any)
}

// AuditRecorder writes best-effort trail entries.
type AuditRecorder interface {
	Record(ctx context.Context, event audit.Event)
}

type AuthService struct {
	users    AuthUserStore
	sessions AuthSessionStore
	hub      Broadcaster
	audit    AuditRecorder
	cfg      *config.AppConfig
	log      zerolog.Logger
}

func NewAuthService(
	users AuthUserStore,
	sessions AuthSessionStore,
	hub Broadcaster,
	recorder AuditRecorder,
	cfg *config.AppConfig,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		hub:      hub,
		audit:    recorder,
		cfg:      cfg,
		log:      log.With().Str("component", "auth").Logger(),
	}
}

type LoginInput struct {
	Username   string
	Password   string
	DeviceInfo string
	IPAddress  string
	UserAgent  string
}

type AuthResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	User         models.User
}

// Login verifies credentials and opens a session. The session row and the
// last-login stamp land in one transaction; the audit entry is written after
// the commit and never fails the login. A wrong username and a wrong
// password are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (AuthResult, error) {
	user, err := s.users.FindByUsername(ctx, input.Username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return AuthResult{}, apperr.ErrInvalidCredentials
		}
		return AuthResult{}, apperr.From(err)
	}

	ok, err := security.VerifyPassword(input.Password, user.PasswordHash)
	if err != nil || !ok {
		return AuthResult{}, apperr.ErrInvalidCredentials
	}
	if user.Status != models.UserStatusActive {
		return AuthResult{}, apperr.ErrUserInactive
	}

	accessToken, err := security.IssueAccessToken(s.cfg.Security.JWTSecret, user, s.cfg.Security.JWTAccessTTL)
	if err != nil {
		return AuthResult{}, apperr.From(err)
	}
	refreshToken, err := security.IssueRefreshToken(s.cfg.Security.JWTSecret, user.ID, s.cfg.Security.JWTRefreshTTL)
	if err != nil {
		return AuthResult{}, apperr.From(err)
	}

	now := time.Now()
	session := models.Session{
		ID:           ids.New(),
		UserID:       user.ID,
		SessionToken: accessToken,
		RefreshToken: refreshToken,
		DeviceInfo:   input.DeviceInfo,
		IPAddress:    input.IPAddress,
		UserAgent:    input.UserAgent,
		IsActive:     true,
		ExpiresAt:    now.Add(s.cfg.Security.SessionTTL),
		CreatedAt:    now,
		LastActivity: now,
	}
	if err := s.sessions.CreateAtLogin(ctx, session); err != nil {
		return AuthResult{}, apperr.From(err)
	}

	s.audit.Record(ctx, audit.Event{
		UserID:    user.ID,
		Action:    "login",
		TableName: "user_sessions",
		RecordID:  session.ID,
		IPAddress: input.IPAddress,
		UserAgent: input.UserAgent,
	})
	s.hub.EmitToUser(user.ID, "login_success", map[string]any{
		"userId":    user.ID,
		"username":  user.Username,
		"loginTime": now,
	})

	user.LastLogin = &now
	return AuthResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    session.ExpiresAt,
		User:         user,
	}, nil
}

// Refresh exchanges a valid refresh token for a new access token. The
// refresh token itself is not rotated; the session row must still be active
// and unexpired, so a logout kills the refresh path too. Concurrent
// refreshes race benignly: the last writer's access token is the one the
// ledger keeps.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (AuthResult, error) {
	claims, err := security.ParseRefreshToken(refreshToken, s.cfg.Security.JWTSecret)
	if err != nil {
		if errors.Is(err, security.ErrTokenExpired) {
			return AuthResult{}, apperr.ErrTokenExpired
		}
		return AuthResult{}, apperr.ErrTokenInvalid
	}

	session, err := s.sessions.FindActiveByRefreshToken(ctx, refreshToken)
	if err != nil {
		return AuthResult{}, apperr.ErrSessionInvalid
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil || user.Status != models.UserStatusActive {
		return AuthResult{}, apperr.ErrUserInvalid
	}

	accessToken, err := security.IssueAccessToken(s.cfg.Security.JWTSecret, user, s.cfg.Security.JWTAccessTTL)
	if err != nil {
		return AuthResult{}, apperr.From(err)
	}
	if err := s.sessions.UpdateAccessToken(ctx, session.ID, accessToken); err != nil {
		return AuthResult{}, apperr.From(err)
	}

	return AuthResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    session.ExpiresAt,
		User:         user,
	}, nil
}

// Logout deactivates the session owning the refresh token. Logging out a
// session that is already gone succeeds; the caller cannot distinguish the
// two cases and does not need to.
func (s *AuthService) Logout(ctx context.Context, userID string, refreshToken string, ipAddress, userAgent string) error {
	if err := s.sessions.Invalidate(ctx, userID, refreshToken); err != nil {
		return apperr.From(err)
	}
	s.audit.Record(ctx, audit.Event{
		UserID:    userID,
		Action:    "logout",
		TableName: "user_sessions",
		IPAddress: ipAddress,
		UserAgent: userAgent,
	})
	s.hub.EmitToUser(userID, "logout_success", map[string]any{"userId": userID})
	return nil
}

// ResolveToken authenticates a raw access token the same way the HTTP
// gateway does: signature, then ledger, then user status. Used by the
// realtime layer.
func (s *AuthService) ResolveToken(ctx context.Context, token string) (models.User, error) {
	if _, err := security.ParseAccessToken(token, s.cfg.Security.JWTSecret); err != nil {
		if errors.Is(err, security.ErrTokenExpired) {
			return models.User{}, apperr.ErrTokenExpired
		}
		return models.User{}, apperr.ErrTokenInvalid
	}

	session, err := s.sessions.FindActiveByAccessToken(ctx, token)
	if err != nil {
		return models.User{}, apperr.ErrSessionInvalid
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil || user.Status != models.UserStatusActive {
		return models.User{}, apperr.ErrUserInvalid
	}
	return user, nil
}

// Sessions lists a user's session rows, newest first.
func (s *AuthService) Sessions(ctx context.Context, userID string) ([]models.Session, error) {
	sessions, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperr.From(err)
	}
	return sessions, nil
}

// ChangePassword verifies the current password, stores a new hash and kills
// every session of the user. The caller must log in again.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword, ipAddress, userAgent string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return apperr.From(err)
	}
	ok, err := security.VerifyPassword(currentPassword, user.PasswordHash)
	if err != nil || !ok {
		return apperr.WithMessage(apperr.ErrInvalidCredentials, "current password is incorrect")
	}

	hash, err := security.HashPassword(newPassword)
	if err != nil {
		return apperr.From(err)
	}
	if err := s.users.Update(ctx, userID, repository.UserUpdate{PasswordHash: hash}); err != nil {
		return apperr.From(err)
	}
	if err := s.sessions.InvalidateAllForUser(ctx, userID); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("session sweep after password change failed")
	}

	s.audit.Record(ctx, audit.Event{
		UserID:    userID,
		Action:    "password_change",
		TableName: "users",
		RecordID:  userID,
		IPAddress: ipAddress,
		UserAgent: userAgent,
	})
	return nil
}

var (
	_ AuthUserStore    = (*repository.UserRepository)(nil)
	_ AuthSessionStore = (*repository.SessionRepository)(nil)
)
