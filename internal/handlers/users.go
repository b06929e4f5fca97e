package handlers

import (
	"github.com/gin-gonic/gin"

	"fotoreg/api/internal/apperr"
	"fotoreg/api/internal/middleware"
	"fotoreg/api/internal/models"
	"fotoreg/api/internal/repository"
	"fotoreg/api/internal/response"
	"fotoreg/api/internal/service"
)

func (h HandlerSet) ListUsers(c *gin.Context) {
	page, limit := pageParams(c)
	filter := repository.UserFilter{
		Role:   c.Query("role"),
		Status: c.Query("status"),
		Search: c.Query("search"),
	}

	users, total, err := h.userService.List(c.Request.Context(), filter, limit, (page-1)*limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	payload := make([]userPayload, 0, len(users))
	for _, user := range users {
		payload = append(payload, toUserPayload(user))
	}
	response.OK(c, "", gin.H{
		"users":      payload,
		"pagination": paginationFor(page, limit, total),
	})
}

type createUserRequest struct {
	Username string `json:"username" binding:"required,min=3"`
	Password string `json:"password" binding:"required,min=8"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	Role     string `json:"role" binding:"required"`
}

func (h HandlerSet) CreateUser(c *gin.Context) {
	actor, _ := middleware.CurrentUser(c)

	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperr.WithMessage(apperr.ErrValidation, "username, password and role are required"))
		return
	}

	user, err := h.userService.Create(c.Request.Context(), actor, service.CreateUserInput{
		Username: req.Username,
		Password: req.Password,
		Email:    req.Email,
		FullName: req.FullName,
		Role:     models.UserRole(req.Role),
	}, c.ClientIP(), c.GetHeader("User-Agent"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, "user created", toUserPayload(user))
}

// ListOperators returns every non-deleted operator account.
func (h HandlerSet) ListOperators(c *gin.Context) {
	operators, err := h.userService.Operators(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	payload := make([]userPayload, 0, len(operators))
	for _, op := range operators {
		payload = append(payload, toUserPayload(op))
	}
	response.OK(c, "", gin.H{"operators": payload})
}

func (h HandlerSet) UserStats(c *gin.Context) {
	counts, err := h.userService.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "", gin.H{
		"admins":    counts.Admins,
		"operators": counts.Operators,
	})
}

// GetUser returns a profile. Operators may only read their own; admins
// may read anyone's.
func (h HandlerSet) GetUser(c *gin.Context) {
	actor, _ := middleware.CurrentUser(c)
	id := c.Param("id")
	if actor.Role != models.UserRoleAdmin && id != actor.ID {
		response.Error(c, apperr.ErrForbidden)
		return
	}

	user, err := h.userService.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "", toUserPayload(user))
}

type updateUserRequest struct {
	Email    *string `json:"email"`
	FullName *string `json:"fullName"`
	Role     *string `json:"role"`
	Status   *string `json:"status"`
}

func (h HandlerSet) UpdateUser(c *gin.Context) {
	actor, _ := middleware.CurrentUser(c)

	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperr.WithMessage(apperr.ErrValidation, "invalid update payload"))
		return
	}

	input := service.UpdateUserInput{
		Email:    req.Email,
		FullName: req.FullName,
	}
	if req.Role != nil {
		role := models.UserRole(*req.Role)
		input.Role = &role
	}
	if req.Status != nil {
		status := models.UserStatus(*req.Status)
		input.Status = &status
	}

	user, err := h.userService.Update(c.Request.Context(), actor, c.Param("id"), input, c.ClientIP(), c.GetHeader("User-Agent"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "user updated", toUserPayload(user))
}

type resetPasswordRequest struct {
	NewPassword string `json:"newPassword" binding:"required,min=8"`
}

func (h HandlerSet) ResetPassword(c *gin.Context) {
	actor, _ := middleware.CurrentUser(c)

	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperr.WithMessage(apperr.ErrValidation, "a new password of at least 8 characters is required"))
		return
	}

	err := h.userService.ResetPassword(c.Request.Context(), actor, c.Param("id"), req.NewPassword, c.ClientIP(), c.GetHeader("User-Agent"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "password reset", nil)
}

func (h HandlerSet) DeleteUser(c *gin.Context) {
	actor, _ := middleware.CurrentUser(c)

	if err := h.userService.Delete(c.Request.Context(), actor, c.Param("id"), c.ClientIP(), c.GetHeader("User-Agent")); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "user deleted", nil)
}
