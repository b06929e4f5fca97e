package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fotoreg/api/internal/apperr"
)

// Pagination describes a paginated collection.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

type successEnvelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type errorEnvelope struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

// OK sends a 200 success envelope.
func OK(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, successEnvelope{Success: true, Message: message, Data: data})
}

// Created sends a 201 success envelope.
func Created(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusCreated, successEnvelope{Success: true, Message: message, Data: data})
}

// Error sends the error envelope for err and returns without aborting.
func Error(c *gin.Context, err error) {
	appErr := apperr.From(err)
	c.JSON(appErr.Status, errorEnvelope{Error: appErr.Code, Message: appErr.Message})
}

// AbortError sends the error envelope and aborts the handler chain.
// Meant for middleware.
func AbortError(c *gin.Context, err error) {
	appErr := apperr.From(err)
	c.AbortWithStatusJSON(appErr.Status, errorEnvelope{Error: appErr.Code, Message: appErr.Message})
}

// AbortRateLimited sends a 429 with a retry-after hint in seconds.
func AbortRateLimited(c *gin.Context, retryAfter int) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, errorEnvelope{
		Error:      apperr.ErrRateLimit.Code,
		Message:    apperr.ErrRateLimit.Message,
		RetryAfter: retryAfter,
	})
}
