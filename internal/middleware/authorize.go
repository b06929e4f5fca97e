package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"fotoreg/api/internal/apperr"
	"fotoreg/api/internal/models"
	"fotoreg/api/internal/repository"
	"fotoreg/api/internal/response"
)

// PermissionStore resolves a user's explicitly granted permission keys.
type PermissionStore interface {
	GrantedKeys(ctx context.Context, userID string) ([]string, error)
}

// RequireRoles allows only users holding one of the given roles. It must run
// after Auth.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	roleSet := make(map[models.UserRole]struct{}, len(roles))
	for _, role := range roles {
		roleSet[role] = struct{}{}
	}

	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			response.AbortError(c, apperr.ErrTokenRequired)
			return
		}
		if _, allowed := roleSet[user.Role]; !allowed {
			response.AbortError(c, apperr.ErrForbidden)
			return
		}
		c.Next()
	}
}

// RequirePermissions allows users granted every listed key. Admins bypass
// the lookup entirely.
func RequirePermissions(store PermissionStore, keys ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			response.AbortError(c, apperr.ErrTokenRequired)
			return
		}
		if user.Role == models.UserRoleAdmin {
			c.Next()
			return
		}

		granted, err := store.GrantedKeys(c.Request.Context(), user.ID)
		if err != nil {
			response.AbortError(c, apperr.ErrInternal)
			return
		}
		grantedSet := make(map[string]struct{}, len(granted))
		for _, key := range granted {
			grantedSet[key] = struct{}{}
		}
		for _, key := range keys {
			if _, ok := grantedSet[key]; !ok {
				response.AbortError(c, apperr.ErrForbidden)
				return
			}
		}
		c.Next()
	}
}

// OwnerLookup resolves a route parameter to the id of the user owning the
// addressed resource.
type OwnerLookup func(ctx context.Context, resourceID string) (string, error)

// RequireOwnership allows the resource owner or an admin. The lookup error
// surfaces as 404 so non-owners cannot probe for existence.
func RequireOwnership(param string, lookup OwnerLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			response.AbortError(c, apperr.ErrTokenRequired)
			return
		}
		if user.Role == models.UserRoleAdmin {
			c.Next()
			return
		}

		ownerID, err := lookup(c.Request.Context(), c.Param(param))
		if err != nil {
			response.AbortError(c, apperr.ErrNotFound)
			return
		}
		if ownerID != user.ID {
			response.AbortError(c, apperr.ErrForbidden)
			return
		}
		c.Next()
	}
}

var _ PermissionStore = (*repository.PermissionRepository)(nil)
