package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"fotoreg/api/internal/apperr"
	"fotoreg/api/internal/audit"
	"fotoreg/api/internal/config"
	"fotoreg/api/internal/ids"
	"fotoreg/api/internal/media/sniffer"
	"fotoreg/api/internal/models"
	"fotoreg/api/internal/repository"
	"fotoreg/api/internal/security"
	"fotoreg/api/internal/storage"
)

// PhotoStore is the photo persistence surface the service needs.
type PhotoStore interface {
	Create(ctx context.Context, photo models.Photo) error
	GetByID(ctx context.Context, id string) (models.Photo, error)
	OwnerID(ctx context.Context, id string) (string, error)
	List(ctx context.Context, filter models.PhotoFilter, limit, offset int) ([]models.Photo, int, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (models.PhotoStats, error)
	CreateComment(ctx context.Context, comment models.PhotoComment) error
	ListComments(ctx context.Context, photoID string) ([]models.PhotoComment, error)
}

type PhotoService struct {
	photos PhotoStore
	store  *storage.ObjectStore
	hub    Broadcaster
	audit  AuditRecorder
	cfg    *config.AppConfig
	log    zerolog.Logger
}

func NewPhotoService(
	photos PhotoStore,
	store *storage.ObjectStore,
	hub Broadcaster,
	recorder AuditRecorder,
	cfg *config.AppConfig,
	log zerolog.Logger,
) *PhotoService {
	return &PhotoService{
		photos: photos,
		store:  store,
		hub:    hub,
		audit:  recorder,
		cfg:    cfg,
		log:    log.With().Str("component", "photos").Logger(),
	}
}

type UploadInput struct {
	User        models.User
	File        multipart.File
	Header      *multipart.FileHeader
	Latitude    float64
	Longitude   float64
	Orientation *float64
	Altitude    *float64
	Accuracy    *float64
	CapturedAt  time.Time
	Comment     string
	IPAddress   string
	UserAgent   string
}

// Upload validates, stores and registers a geotagged photo. The declared
// content type must match what the bytes actually are; the stored record
// carries a checksum plus an HMAC signature binding the object to its
// capture metadata.
func (s *PhotoService) Upload(ctx context.Context, input UploadInput) (models.Photo, error) {
	if input.File == nil || input.Header == nil {
		return models.Photo{}, apperr.WithMessage(apperr.ErrValidation, "a photo file is required")
	}
	if input.Header.Size > s.cfg.Upload.MaxFileSize {
		return models.Photo{}, apperr.WithMessage(apperr.ErrValidation, "the photo exceeds the maximum file size")
	}
	if input.Latitude < -90 || input.Latitude > 90 || input.Longitude < -180 || input.Longitude > 180 {
		return models.Photo{}, apperr.WithMessage(apperr.ErrValidation, "coordinates out of range")
	}

	head := make([]byte, 512)
	n, err := input.File.Read(head)
	if err != nil && !errors.Is(err, io.EOF) {
		return models.Photo{}, fmt.Errorf("read head: %w", err)
	}
	head = head[:n]

	var data []byte
	if seeker, ok := input.File.(io.ReadSeeker); ok {
		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			return models.Photo{}, fmt.Errorf("rewind: %w", err)
		}
		data, err = io.ReadAll(seeker)
		if err != nil {
			return models.Photo{}, fmt.Errorf("read file: %w", err)
		}
	} else {
		rest, err := io.ReadAll(input.File)
		if err != nil {
			return models.Photo{}, fmt.Errorf("read file: %w", err)
		}
		data = append(head, rest...)
	}
	if len(data) == 0 {
		return models.Photo{}, apperr.WithMessage(apperr.ErrValidation, "the photo file is empty")
	}

	detected, err := sniffer.DetectHead(head)
	if err != nil {
		return models.Photo{}, apperr.WithMessage(apperr.ErrValidation, "unsupported photo format")
	}
	declared := sniffer.DeclaredMIME(input.Header.Header)
	if declared != "" && declared != detected.MIME {
		return models.Photo{}, apperr.WithMessage(apperr.ErrValidation, "the declared content type does not match the file")
	}

	capturedAt := input.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now()
	}

	photoID := ids.New()
	objectKey := fmt.Sprintf("%s/%s/%s.%s", input.User.ID, capturedAt.Format("2006/01"), photoID, detected.Type)

	checksum := sha256.Sum256(data)
	signature := security.SignResource(s.cfg.Security.SignatureSecret,
		photoID,
		input.User.ID,
		objectKey,
		strconv.FormatFloat(input.Latitude, 'f', -1, 64),
		strconv.FormatFloat(input.Longitude, 'f', -1, 64),
		capturedAt.UTC().Format(time.RFC3339),
	)

	if err := s.store.PutPhoto(ctx, objectKey, bytes.NewReader(data), int64(len(data)), detected.MIME); err != nil {
		return models.Photo{}, apperr.From(err)
	}

	photo := models.Photo{
		ID:          photoID,
		UserID:      input.User.ID,
		Bucket:      s.store.PhotoBucket(),
		ObjectKey:   objectKey,
		FileName:    input.Header.Filename,
		FileSize:    int64(len(data)),
		MimeType:    detected.MIME,
		Checksum:    checksum[:],
		Signature:   signature,
		Latitude:    input.Latitude,
		Longitude:   input.Longitude,
		Orientation: input.Orientation,
		Altitude:    input.Altitude,
		Accuracy:    input.Accuracy,
		CapturedAt:  capturedAt,
		Username:    input.User.Username,
		FullName:    input.User.FullName,
	}
	if err := s.photos.Create(ctx, photo); err != nil {
		// The object is already in the store; try to undo so a failed
		// register does not leak orphans.
		if rmErr := s.store.RemovePhoto(ctx, photo.Bucket, objectKey); rmErr != nil {
			s.log.Error().Err(rmErr).Str("object_key", objectKey).Msg("orphan object cleanup failed")
		}
		return models.Photo{}, apperr.From(err)
	}

	if text := strings.TrimSpace(input.Comment); text != "" {
		initial := models.PhotoComment{
			ID:       ids.New(),
			PhotoID:  photoID,
			UserID:   input.User.ID,
			Comment:  text,
			Username: input.User.Username,
		}
		if err := s.photos.CreateComment(ctx, initial); err != nil {
			s.log.Warn().Err(err).Str("photo_id", photoID).Msg("initial comment not saved")
		}
	}

	s.audit.Record(ctx, audit.Event{
		UserID:    input.User.ID,
		Action:    "photo_upload",
		TableName: "photos",
		RecordID:  photoID,
		NewValues: map[string]any{
			"fileName":  photo.FileName,
			"latitude":  photo.Latitude,
			"longitude": photo.Longitude,
		},
		IPAddress: input.IPAddress,
		UserAgent: input.UserAgent,
	})
	s.hub.EmitToAdmins("photo_uploaded", map[string]any{
		"photoId":    photoID,
		"userId":     input.User.ID,
		"username":   input.User.Username,
		"latitude":   photo.Latitude,
		"longitude":  photo.Longitude,
		"capturedAt": capturedAt,
	})

	return photo, nil
}

// Get returns a photo record with its signature verified. A record whose
// signature no longer matches its metadata is reported, not returned.
func (s *PhotoService) Get(ctx context.Context, id string) (models.Photo, error) {
	photo, err := s.photos.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrPhotoNotFound) {
			return models.Photo{}, apperr.ErrNotFound
		}
		return models.Photo{}, apperr.From(err)
	}

	valid := security.VerifyResource(s.cfg.Security.SignatureSecret, photo.Signature,
		photo.ID,
		photo.UserID,
		photo.ObjectKey,
		strconv.FormatFloat(photo.Latitude, 'f', -1, 64),
		strconv.FormatFloat(photo.Longitude, 'f', -1, 64),
		photo.CapturedAt.UTC().Format(time.RFC3339),
	)
	if !valid {
		s.log.Error().Str("photo_id", photo.ID).Msg("photo signature mismatch")
		return models.Photo{}, apperr.WithMessage(apperr.ErrInternal, "the photo record failed integrity verification")
	}
	return photo, nil
}

// Download opens the stored binary for a photo.
func (s *PhotoService) Download(ctx context.Context, id string) (models.Photo, io.ReadCloser, error) {
	photo, err := s.Get(ctx, id)
	if err != nil {
		return models.Photo{}, nil, err
	}
	reader, err := s.store.GetPhoto(ctx, photo.Bucket, photo.ObjectKey)
	if err != nil {
		return models.Photo{}, nil, apperr.From(err)
	}
	return photo, reader, nil
}

// List returns photos matching the filter plus the total count.
func (s *PhotoService) List(ctx context.Context, filter models.PhotoFilter, limit, offset int) ([]models.Photo, int, error) {
	photos, total, err := s.photos.List(ctx, filter, limit, offset)
	if err != nil {
		return nil, 0, apperr.From(err)
	}
	return photos, total, nil
}

// Delete removes a photo record and its stored binary.
func (s *PhotoService) Delete(ctx context.Context, actor models.User, id string, ipAddress, userAgent string) error {
	photo, err := s.photos.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrPhotoNotFound) {
			return apperr.ErrNotFound
		}
		return apperr.From(err)
	}

	if err := s.photos.Delete(ctx, id); err != nil {
		return apperr.From(err)
	}
	if err := s.store.RemovePhoto(ctx, photo.Bucket, photo.ObjectKey); err != nil {
		s.log.Warn().Err(err).Str("object_key", photo.ObjectKey).Msg("stored object removal failed")
	}

	s.audit.Record(ctx, audit.Event{
		UserID:    actor.ID,
		Action:    "photo_delete",
		TableName: "photos",
		RecordID:  id,
		OldValues: map[string]any{
			"fileName": photo.FileName,
			"userId":   photo.UserID,
		},
		IPAddress: ipAddress,
		UserAgent: userAgent,
	})
	return nil
}

// Stats aggregates capture counts.
func (s *PhotoService) Stats(ctx context.Context) (models.PhotoStats, error) {
	stats, err := s.photos.Stats(ctx)
	if err != nil {
		return models.PhotoStats{}, apperr.From(err)
	}
	return stats, nil
}

// Comment attaches a comment to a photo.
func (s *PhotoService) Comment(ctx context.Context, actor models.User, photoID, text string) (models.PhotoComment, error) {
	if text == "" {
		return models.PhotoComment{}, apperr.WithMessage(apperr.ErrValidation, "a comment body is required")
	}
	if _, err := s.photos.OwnerID(ctx, photoID); err != nil {
		return models.PhotoComment{}, apperr.ErrNotFound
	}

	comment := models.PhotoComment{
		ID:       ids.New(),
		PhotoID:  photoID,
		UserID:   actor.ID,
		Comment:  text,
		Username: actor.Username,
	}
	if err := s.photos.CreateComment(ctx, comment); err != nil {
		return models.PhotoComment{}, apperr.From(err)
	}
	return comment, nil
}

// Comments lists a photo's comments, oldest first.
func (s *PhotoService) Comments(ctx context.Context, photoID string) ([]models.PhotoComment, error) {
	comments, err := s.photos.ListComments(ctx, photoID)
	if err != nil {
		return nil, apperr.From(err)
	}
	return comments, nil
}

var _ PhotoStore = (*repository.PhotoRepository)(nil)
