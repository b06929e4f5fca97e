package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fotoreg/api/internal/middleware"
	"fotoreg/api/internal/response"
)

type healthResponse struct {
	Status      string `json:"status"`
	Database    string `json:"database"`
	Cache       string `json:"cache"`
	Environment string `json:"environment"`
	Realtime    int    `json:"realtimeClients"`
}

func (h HandlerSet) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	dbStatus := "ok"
	if err := h.db.Ping(ctx); err != nil {
		dbStatus = "error"
		h.log.Error().Err(err).Msg("database ping failed")
	}

	cacheStatus := "ok"
	if err := h.cache.Ping(ctx).Err(); err != nil {
		cacheStatus = "error"
		h.log.Error().Err(err).Msg("redis ping failed")
	}

	c.JSON(http.StatusOK, healthResponse{
		Status:      "ok",
		Database:    dbStatus,
		Cache:       cacheStatus,
		Environment: h.cfg.Environment,
		Realtime:    h.hub.ConnectedCount(),
	})
}

// Status is a mixed endpoint: anonymous callers get the public service
// state, authenticated callers additionally see who they are.
func (h HandlerSet) Status(c *gin.Context) {
	data := gin.H{
		"service": "fotoreg-api",
		"time":    time.Now().UTC(),
	}
	if user, ok := middleware.CurrentUser(c); ok {
		data["authenticated"] = true
		data["user"] = toUserPayload(user)
	} else {
		data["authenticated"] = false
	}
	response.OK(c, "", data)
}
