package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"fotoreg/api/internal/apperr"
	"fotoreg/api/internal/middleware"
	"fotoreg/api/internal/models"
	"fotoreg/api/internal/response"
	"fotoreg/api/internal/ws"
)

// ReportLocation accepts a position sample over HTTP. The realtime socket
// is the preferred path; this exists for clients without one.
func (h HandlerSet) ReportLocation(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	var sample ws.LocationUpdate
	if err := c.ShouldBindJSON(&sample); err != nil {
		response.Error(c, apperr.WithMessage(apperr.ErrValidation, "latitude and longitude are required"))
		return
	}

	if err := h.locationService.Record(c.Request.Context(), user.ID, sample); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "location recorded", nil)
}

func (h HandlerSet) LatestLocations(c *gin.Context) {
	locations, err := h.locationService.Latest(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	payload := make([]gin.H, 0, len(locations))
	for _, loc := range locations {
		payload = append(payload, gin.H{
			"userId":       loc.UserID,
			"username":     loc.Username,
			"fullName":     loc.FullName,
			"profilePhoto": loc.ProfilePhoto,
			"latitude":     loc.Latitude,
			"longitude":    loc.Longitude,
			"accuracy":     loc.Accuracy,
			"recordedAt":   loc.RecordedAt,
		})
	}
	response.OK(c, "", gin.H{"locations": payload})
}

// LocationHistory returns an operator's trail. Operators may only read
// their own; admins may read anyone's.
func (h HandlerSet) LocationHistory(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	if user.Role != models.UserRoleAdmin && c.Param("userId") != user.ID {
		response.Error(c, apperr.ErrForbidden)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "1000"))

	locations, err := h.locationService.History(
		c.Request.Context(),
		c.Param("userId"),
		optionalTime(c.Query("from")),
		optionalTime(c.Query("to")),
		limit,
	)
	if err != nil {
		response.Error(c, err)
		return
	}

	payload := make([]gin.H, 0, len(locations))
	for _, loc := range locations {
		payload = append(payload, gin.H{
			"latitude":   loc.Latitude,
			"longitude":  loc.Longitude,
			"altitude":   loc.Altitude,
			"accuracy":   loc.Accuracy,
			"speed":      loc.Speed,
			"heading":    loc.Heading,
			"recordedAt": loc.RecordedAt,
		})
	}
	response.OK(c, "", gin.H{"userId": c.Param("userId"), "locations": payload})
}
