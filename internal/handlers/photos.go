package handlers

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"fotoreg/api/internal/apperr"
	"fotoreg/api/internal/middleware"
	"fotoreg/api/internal/models"
	"fotoreg/api/internal/response"
	"fotoreg/api/internal/service"
)

type photoPayload struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Username    string    `json:"username"`
	FullName    string    `json:"fullName"`
	FileName    string    `json:"fileName"`
	FileSize    int64     `json:"fileSize"`
	MimeType    string    `json:"mimeType"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Orientation *float64  `json:"orientation,omitempty"`
	Altitude    *float64  `json:"altitude,omitempty"`
	Accuracy    *float64  `json:"accuracy,omitempty"`
	CapturedAt  time.Time `json:"capturedAt"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toPhotoPayload(photo models.Photo) photoPayload {
	return photoPayload{
		ID:          photo.ID,
		UserID:      photo.UserID,
		Username:    photo.Username,
		FullName:    photo.FullName,
		FileName:    photo.FileName,
		FileSize:    photo.FileSize,
		MimeType:    photo.MimeType,
		Latitude:    photo.Latitude,
		Longitude:   photo.Longitude,
		Orientation: photo.Orientation,
		Altitude:    photo.Altitude,
		Accuracy:    photo.Accuracy,
		CapturedAt:  photo.CapturedAt,
		CreatedAt:   photo.CreatedAt,
	}
}

func (h HandlerSet) UploadPhoto(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	file, header, err := c.Request.FormFile("photo")
	if err != nil {
		response.Error(c, apperr.WithMessage(apperr.ErrValidation, "a photo file is required"))
		return
	}
	defer file.Close()

	latitude, err := strconv.ParseFloat(c.PostForm("latitude"), 64)
	if err != nil {
		response.Error(c, apperr.WithMessage(apperr.ErrValidation, "latitude is required"))
		return
	}
	longitude, err := strconv.ParseFloat(c.PostForm("longitude"), 64)
	if err != nil {
		response.Error(c, apperr.WithMessage(apperr.ErrValidation, "longitude is required"))
		return
	}

	input := service.UploadInput{
		User:      user,
		File:      file,
		Header:    header,
		Latitude:  latitude,
		Longitude: longitude,
		IPAddress: c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
	}
	input.Comment = strings.TrimSpace(c.PostForm("comment"))
	input.Orientation = optionalFloat(c.PostForm("orientation"))
	input.Altitude = optionalFloat(c.PostForm("altitude"))
	input.Accuracy = optionalFloat(c.PostForm("accuracy"))
	if capturedAt, err := time.Parse(time.RFC3339, c.PostForm("capturedAt")); err == nil {
		input.CapturedAt = capturedAt
	}

	photo, err := h.photoService.Upload(c.Request.Context(), input)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, "photo registered", toPhotoPayload(photo))
}

func optionalFloat(raw string) *float64 {
	if raw == "" {
		return nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &value
}

// ListPhotos returns the caller's photos; admins see everyone's and may
// filter by user, date range and radius.
func (h HandlerSet) ListPhotos(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	page, limit := pageParams(c)
	filter := models.PhotoFilter{}

	if user.Role == models.UserRoleAdmin {
		filter.UserID = c.Query("userId")
		filter.DateFrom = optionalTime(c.Query("dateFrom"))
		filter.DateTo = optionalTime(c.Query("dateTo"))
		filter.Latitude = optionalFloat(c.Query("latitude"))
		filter.Longitude = optionalFloat(c.Query("longitude"))
		filter.RadiusKm = optionalFloat(c.Query("radiusKm"))
	} else {
		filter.UserID = user.ID
	}

	photos, total, err := h.photoService.List(c.Request.Context(), filter, limit, (page-1)*limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	payload := make([]photoPayload, 0, len(photos))
	for _, photo := range photos {
		payload = append(payload, toPhotoPayload(photo))
	}
	response.OK(c, "", gin.H{
		"photos":     payload,
		"pagination": paginationFor(page, limit, total),
	})
}

// MyPhotos is the operator shortcut for their own uploads.
func (h HandlerSet) MyPhotos(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	page, limit := pageParams(c)

	photos, total, err := h.photoService.List(c.Request.Context(), models.PhotoFilter{UserID: user.ID}, limit, (page-1)*limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	payload := make([]photoPayload, 0, len(photos))
	for _, photo := range photos {
		payload = append(payload, toPhotoPayload(photo))
	}
	response.OK(c, "", gin.H{
		"photos":     payload,
		"pagination": paginationFor(page, limit, total),
	})
}

// SearchPhotos matches file names, comments and uploader usernames.
// Operators search within their own photos only.
func (h HandlerSet) SearchPhotos(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	term := strings.TrimSpace(c.Query("q"))
	if term == "" {
		response.Error(c, apperr.WithMessage(apperr.ErrValidation, "query parameter q is required"))
		return
	}

	page, limit := pageParams(c)
	filter := models.PhotoFilter{Search: term}
	if user.Role != models.UserRoleAdmin {
		filter.UserID = user.ID
	}

	photos, total, err := h.photoService.List(c.Request.Context(), filter, limit, (page-1)*limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	payload := make([]photoPayload, 0, len(photos))
	for _, photo := range photos {
		payload = append(payload, toPhotoPayload(photo))
	}
	response.OK(c, "", gin.H{
		"photos":     payload,
		"pagination": paginationFor(page, limit, total),
	})
}

func (h HandlerSet) GetPhoto(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	photo, err := h.photoService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if user.Role != models.UserRoleAdmin && photo.UserID != user.ID {
		response.Error(c, apperr.ErrForbidden)
		return
	}

	response.OK(c, "", toPhotoPayload(photo))
}

func (h HandlerSet) DownloadPhoto(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	photo, reader, err := h.photoService.Download(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer reader.Close()

	if user.Role != models.UserRoleAdmin && photo.UserID != user.ID {
		response.Error(c, apperr.ErrForbidden)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+photo.FileName+`"`)
	c.Header("Content-Type", photo.MimeType)
	c.Status(200)
	io.Copy(c.Writer, reader)
}

func (h HandlerSet) DeletePhoto(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	if err := h.photoService.Delete(c.Request.Context(), user, c.Param("id"), c.ClientIP(), c.GetHeader("User-Agent")); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "photo deleted", nil)
}

func (h HandlerSet) PhotoStats(c *gin.Context) {
	stats, err := h.photoService.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "", gin.H{
		"totalPhotos":    stats.TotalPhotos,
		"totalOperators": stats.TotalOperators,
		"totalBytes":     stats.TotalBytes,
		"firstCapture":   stats.FirstCapture,
		"lastCapture":    stats.LastCapture,
	})
}

type commentRequest struct {
	Comment string `json:"comment" binding:"required"`
}

func (h HandlerSet) CreateComment(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperr.WithMessage(apperr.ErrValidation, "a comment body is required"))
		return
	}

	comment, err := h.photoService.Comment(c.Request.Context(), user, c.Param("id"), req.Comment)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "comment added", gin.H{
		"id":        comment.ID,
		"photoId":   comment.PhotoID,
		"comment":   comment.Comment,
		"username":  comment.Username,
		"createdAt": comment.CreatedAt,
	})
}

func (h HandlerSet) ListComments(c *gin.Context) {
	comments, err := h.photoService.Comments(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "", gin.H{"comments": comments})
}

func pageParams(c *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}

func paginationFor(page, limit, total int) response.Pagination {
	pages := total / limit
	if total%limit != 0 {
		pages++
	}
	return response.Pagination{Page: page, Limit: limit, Total: total, Pages: pages}
}

func optionalTime(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	return &t
}
