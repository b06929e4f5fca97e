package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"fotoreg/api/internal/apperr"
	"fotoreg/api/internal/ids"
	"fotoreg/api/internal/models"
	"fotoreg/api/internal/repository"
	"fotoreg/api/internal/ws"
)

// LocationStore is the persistence surface for position samples.
type LocationStore interface {
	Create(ctx context.Context, loc models.UserLocation) error
	Latest(ctx context.Context) ([]models.UserLocation, error)
	History(ctx context.Context, userID string, from, to *time.Time, limit int) ([]models.UserLocation, error)
}

// LocationUserStore resolves sample senders for broadcast enrichment.
type LocationUserStore interface {
	GetByID(ctx context.Context, id string) (models.User, error)
}

type LocationService struct {
	locations LocationStore
	users     LocationUserStore
	hub       Broadcaster
	log       zerolog.Logger
}

func NewLocationService(locations LocationStore, users LocationUserStore, hub Broadcaster, log zerolog.Logger) *LocationService {
	return &LocationService{
		locations: locations,
		users:     users,
		hub:       hub,
		log:       log.With().Str("component", "locations").Logger(),
	}
}

// Record persists a position sample and pushes it to the admin room. It
// satisfies the realtime layer's sink so samples arriving over the socket
// and over HTTP take the same path.
func (s *LocationService) Record(ctx context.Context, userID string, sample ws.LocationUpdate) error {
	if sample.Latitude < -90 || sample.Latitude > 90 || sample.Longitude < -180 || sample.Longitude > 180 {
		return apperr.WithMessage(apperr.ErrValidation, "coordinates out of range")
	}

	recordedAt := sample.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}

	loc := models.UserLocation{
		ID:         ids.New(),
		UserID:     userID,
		Latitude:   sample.Latitude,
		Longitude:  sample.Longitude,
		Altitude:   sample.Altitude,
		Accuracy:   sample.Accuracy,
		Speed:      sample.Speed,
		Heading:    sample.Heading,
		RecordedAt: recordedAt,
	}
	if err := s.locations.Create(ctx, loc); err != nil {
		return apperr.From(err)
	}

	payload := map[string]any{
		"userId":     userID,
		"latitude":   loc.Latitude,
		"longitude":  loc.Longitude,
		"recordedAt": recordedAt,
	}
	if user, err := s.users.GetByID(ctx, userID); err == nil {
		payload["username"] = user.Username
		payload["fullName"] = user.FullName
	}
	s.hub.EmitToAdmins("operator_location", payload)
	return nil
}

// Latest returns the most recent sample per active operator.
func (s *LocationService) Latest(ctx context.Context) ([]models.UserLocation, error) {
	locations, err := s.locations.Latest(ctx)
	if err != nil {
		return nil, apperr.From(err)
	}
	return locations, nil
}

// History returns a user's samples in a time range, oldest first.
func (s *LocationService) History(ctx context.Context, userID string, from, to *time.Time, limit int) ([]models.UserLocation, error) {
	if limit <= 0 || limit > 5000 {
		limit = 1000
	}
	locations, err := s.locations.History(ctx, userID, from, to, limit)
	if err != nil {
		return nil, apperr.From(err)
	}
	return locations, nil
}

var (
	_ LocationStore     = (*repository.LocationRepository)(nil)
	_ ws.LocationSink   = (*LocationService)(nil)
	_ LocationUserStore = (*repository.UserRepository)(nil)
)
