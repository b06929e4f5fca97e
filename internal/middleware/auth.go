package middleware

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"fotoreg/api/internal/apperr"
	"fotoreg/api/internal/models"
	"fotoreg/api/internal/repository"
	"fotoreg/api/internal/response"
	"fotoreg/api/internal/security"
)

// Context keys for the authenticated identity.
const (
	ContextUserKey    = "current_user"
	ContextSessionKey = "current_session"
)

// SessionStore is the slice of the session ledger the gateway needs.
type SessionStore interface {
	FindActiveByAccessToken(ctx context.Context, token string) (models.Session, error)
	TouchActivity(ctx context.Context, sessionID string) error
}

// UserStore resolves token subjects to live user rows.
type UserStore interface {
	GetByID(ctx context.Context, id string) (models.User, error)
}

// Auth authenticates a request with a Bearer access token. A verified
// signature alone is never sufficient: the token must also map to an active,
// unexpired session row whose owner is still an active user. Each failure
// mode maps to a distinct 401 code so clients know whether a refresh can
// help.
func Auth(secret string, users UserStore, sessions SessionStore, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			response.AbortError(c, apperr.ErrTokenRequired)
			return
		}

		claims, err := security.ParseAccessToken(token, secret)
		if err != nil {
			if errors.Is(err, security.ErrTokenExpired) {
				response.AbortError(c, apperr.ErrTokenExpired)
				return
			}
			response.AbortError(c, apperr.ErrTokenInvalid)
			return
		}

		session, err := sessions.FindActiveByAccessToken(c.Request.Context(), token)
		if err != nil {
			response.AbortError(c, apperr.ErrSessionInvalid)
			return
		}

		user, err := users.GetByID(c.Request.Context(), claims.UserID)
		if err != nil || user.Status != models.UserStatusActive {
			response.AbortError(c, apperr.ErrUserInvalid)
			return
		}

		// Fire and forget: a stale last_activity stamp never fails a request.
		go func(sessionID string) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := sessions.TouchActivity(ctx, sessionID); err != nil {
				logger.Debug().Err(err).Str("session_id", sessionID).Msg("activity stamp failed")
			}
		}(session.ID)

		c.Set(ContextUserKey, user)
		c.Set(ContextSessionKey, session)
		c.Next()
	}
}

// OptionalAuth resolves an identity when the request carries a usable
// token and otherwise proceeds unauthenticated. A garbled or revoked
// token is treated the same as no token at all; only Auth turns bad
// credentials into a 401.
func OptionalAuth(secret string, users UserStore, sessions SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.Next()
			return
		}

		claims, err := security.ParseAccessToken(token, secret)
		if err != nil {
			c.Next()
			return
		}

		session, err := sessions.FindActiveByAccessToken(c.Request.Context(), token)
		if err != nil {
			c.Next()
			return
		}

		user, err := users.GetByID(c.Request.Context(), claims.UserID)
		if err != nil || user.Status != models.UserStatusActive {
			c.Next()
			return
		}

		c.Set(ContextUserKey, user)
		c.Set(ContextSessionKey, session)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

// CurrentUser returns the identity set by Auth, if any.
func CurrentUser(c *gin.Context) (models.User, bool) {
	val, ok := c.Get(ContextUserKey)
	if !ok {
		return models.User{}, false
	}
	user, ok := val.(models.User)
	return user, ok
}

// CurrentSession returns the session set by Auth, if any.
func CurrentSession(c *gin.Context) (models.Session, bool) {
	val, ok := c.Get(ContextSessionKey)
	if !ok {
		return models.Session{}, false
	}
	session, ok := val.(models.Session)
	return session, ok
}

var _ SessionStore = (*repository.SessionRepository)(nil)
var _ UserStore = (*repository.UserRepository)(nil)
