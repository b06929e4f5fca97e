package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"fotoreg/api/internal/models"
	"fotoreg/api/internal/response"
)

type fakePermissions struct {
	granted map[string][]string
}

func (f *fakePermissions) GrantedKeys(ctx context.Context, userID string) ([]string, error) {
	return f.granted[userID], nil
}

func identityInjector(user models.User) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ContextUserKey, user)
	}
}

func adminUser() models.User {
	return models.User{ID: "admin-1", Role: models.UserRoleAdmin, Status: models.UserStatusActive}
}

func operatorUser() models.User {
	return models.User{ID: "op-1", Role: models.UserRoleOperator, Status: models.UserStatusActive}
}

func TestRequireRoles(t *testing.T) {
	gin.SetMode(gin.TestMode)

	run := func(user models.User) int {
		router := gin.New()
		router.GET("/admin", identityInjector(user), RequireRoles(models.UserRoleAdmin), func(c *gin.Context) {
			response.OK(c, "", nil)
		})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin", nil))
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, run(adminUser()))
	assert.Equal(t, http.StatusForbidden, run(operatorUser()))
}

func TestRequireRolesWithoutIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.GET("/admin", RequireRoles(models.UserRoleAdmin), func(c *gin.Context) {
		response.OK(c, "", nil)
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequirePermissions(t *testing.T) {
	gin.SetMode(gin.TestMode)
	perms := &fakePermissions{granted: map[string][]string{
		"op-1": {"audit.view"},
	}}

	run := func(user models.User, keys ...string) int {
		router := gin.New()
		router.GET("/guarded", identityInjector(user), RequirePermissions(perms, keys...), func(c *gin.Context) {
			response.OK(c, "", nil)
		})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/guarded", nil))
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, run(operatorUser(), "audit.view"))
	assert.Equal(t, http.StatusForbidden, run(operatorUser(), "audit.view", "audit.export"))

	// Admins never hit the permission lookup.
	assert.Equal(t, http.StatusOK, run(adminUser(), "anything.at.all"))
}

func TestRequireOwnership(t *testing.T) {
	gin.SetMode(gin.TestMode)

	lookup := func(ctx context.Context, resourceID string) (string, error) {
		if resourceID == "photo-1" {
			return "op-1", nil
		}
		return "", errors.New("not found")
	}

	run := func(user models.User, path string) int {
		router := gin.New()
		router.DELETE("/photos/:id", identityInjector(user), RequireOwnership("id", lookup), func(c *gin.Context) {
			response.OK(c, "", nil)
		})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, path, nil))
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, run(operatorUser(), "/photos/photo-1"))
	assert.Equal(t, http.StatusForbidden, run(models.User{ID: "op-2", Role: models.UserRoleOperator}, "/photos/photo-1"))
	assert.Equal(t, http.StatusOK, run(adminUser(), "/photos/photo-1"))

	// Unknown resources are a 404, not a 403, for non-owners.
	assert.Equal(t, http.StatusNotFound, run(operatorUser(), "/photos/ghost"))
}

// Comment reads carry the same visibility rule as the photo itself:
// another operator's comment thread is off limits, the admin's is not.
func TestRequireOwnershipGatesCommentReads(t *testing.T) {
	gin.SetMode(gin.TestMode)

	lookup := func(ctx context.Context, resourceID string) (string, error) {
		if resourceID == "photo-1" {
			return "op-1", nil
		}
		return "", errors.New("not found")
	}

	run := func(user models.User) int {
		router := gin.New()
		router.GET("/photos/:id/comments", identityInjector(user), RequireOwnership("id", lookup), func(c *gin.Context) {
			response.OK(c, "", gin.H{"comments": []string{}})
		})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/photos/photo-1/comments", nil))
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, run(operatorUser()))
	assert.Equal(t, http.StatusForbidden, run(models.User{ID: "op-2", Role: models.UserRoleOperator}))
	assert.Equal(t, http.StatusOK, run(adminUser()))
}
