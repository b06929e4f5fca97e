package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"fotoreg/api/internal/apperr"
	"fotoreg/api/internal/middleware"
	"fotoreg/api/internal/models"
	"fotoreg/api/internal/response"
	"fotoreg/api/internal/service"
)

type loginRequest struct {
	Username   string `json:"username" binding:"required"`
	Password   string `json:"password" binding:"required"`
	DeviceInfo string `json:"deviceInfo"`
}

type userPayload struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email,omitempty"`
	FullName     string     `json:"fullName"`
	ProfilePhoto *string    `json:"profilePhoto,omitempty"`
	Role         string     `json:"role"`
	Status       string     `json:"status"`
	LastLogin    *time.Time `json:"lastLogin,omitempty"`
}

type tokenPayload struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

type authPayload struct {
	User   userPayload  `json:"user"`
	Tokens tokenPayload `json:"tokens"`
}

func toUserPayload(user models.User) userPayload {
	return userPayload{
		ID:           user.ID,
		Username:     user.Username,
		Email:        user.Email,
		FullName:     user.FullName,
		ProfilePhoto: user.ProfilePhoto,
		Role:         string(user.Role),
		Status:       string(user.Status),
		LastLogin:    user.LastLogin,
	}
}

func toAuthPayload(result service.AuthResult) authPayload {
	return authPayload{
		User: toUserPayload(result.User),
		Tokens: tokenPayload{
			AccessToken:  result.AccessToken,
			RefreshToken: result.RefreshToken,
			ExpiresIn:    int64(time.Until(result.ExpiresAt).Seconds()),
		},
	}
}

func (h HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperr.WithMessage(apperr.ErrValidation, "username and password are required"))
		return
	}

	result, err := h.authService.Login(c.Request.Context(), service.LoginInput{
		Username:   req.Username,
		Password:   req.Password,
		DeviceInfo: req.DeviceInfo,
		IPAddress:  c.ClientIP(),
		UserAgent:  c.GetHeader("User-Agent"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, "login successful", toAuthPayload(result))
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

func (h HandlerSet) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperr.WithMessage(apperr.ErrValidation, "a refresh token is required"))
		return
	}

	result, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, "token refreshed", gin.H{
		"accessToken": result.AccessToken,
		"expiresIn":   int64(time.Until(result.ExpiresAt).Seconds()),
	})
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

func (h HandlerSet) Logout(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	var req logoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperr.WithMessage(apperr.ErrValidation, "a refresh token is required"))
		return
	}

	if err := h.authService.Logout(c.Request.Context(), user.ID, req.RefreshToken, c.ClientIP(), c.GetHeader("User-Agent")); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, "logout successful", nil)
}

// Verify echoes the identity the gateway already resolved. Reaching this
// handler proves the token, the session and the user are all valid.
func (h HandlerSet) Verify(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	response.OK(c, "token valid", gin.H{"user": toUserPayload(user)})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,min=8"`
}

func (h HandlerSet) ChangePassword(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperr.WithMessage(apperr.ErrValidation, "current and new password are required, minimum 8 characters"))
		return
	}

	err := h.authService.ChangePassword(c.Request.Context(), user.ID, req.CurrentPassword, req.NewPassword, c.ClientIP(), c.GetHeader("User-Agent"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, "password changed, please log in again", nil)
}

type sessionPayload struct {
	ID           string    `json:"id"`
	DeviceInfo   string    `json:"deviceInfo"`
	IPAddress    string    `json:"ipAddress"`
	IsActive     bool      `json:"isActive"`
	ExpiresAt    time.Time `json:"expiresAt"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
	Current      bool      `json:"current"`
}

func (h HandlerSet) ListSessions(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	current, _ := middleware.CurrentSession(c)

	sessions, err := h.authService.Sessions(c.Request.Context(), user.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	payload := make([]sessionPayload, 0, len(sessions))
	for _, s := range sessions {
		payload = append(payload, sessionPayload{
			ID:           s.ID,
			DeviceInfo:   s.DeviceInfo,
			IPAddress:    s.IPAddress,
			IsActive:     s.IsActive,
			ExpiresAt:    s.ExpiresAt,
			CreatedAt:    s.CreatedAt,
			LastActivity: s.LastActivity,
			Current:      s.ID == current.ID,
		})
	}
	response.OK(c, "", gin.H{"sessions": payload})
}
