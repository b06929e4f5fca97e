package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fotoreg/api/internal/models"
)

type LocationRepository struct {
	pool *pgxpool.Pool
}

func NewLocationRepository(pool *pgxpool.Pool) *LocationRepository {
	return &LocationRepository{pool: pool}
}

func (r *LocationRepository) Create(ctx context.Context, loc models.UserLocation) error {
	const query = `
		INSERT INTO user_locations (
			id, user_id, latitude, longitude, altitude, accuracy, speed, heading,
			recorded_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
	`
	_, err := r.pool.Exec(ctx, query,
		loc.ID,
		loc.UserID,
		loc.Latitude,
		loc.Longitude,
		loc.Altitude,
		loc.Accuracy,
		loc.Speed,
		loc.Heading,
		loc.RecordedAt,
	)
	return err
}

// Latest returns the most recent sample per active operator, for the live
// map. Operators with no samples yet are absent.
func (r *LocationRepository) Latest(ctx context.Context) ([]models.UserLocation, error) {
	const query = `
		SELECT DISTINCT ON (l.user_id)
			l.id, l.user_id, l.latitude, l.longitude, l.altitude, l.accuracy,
			l.speed, l.heading, l.recorded_at, l.created_at,
			u.username, u.full_name, u.profile_photo
		FROM user_locations l
		JOIN users u ON u.id = l.user_id
		WHERE u.status = 'active'
		ORDER BY l.user_id, l.recorded_at DESC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.scanAll(rows)
}

// History returns a user's samples in a time range, oldest first.
func (r *LocationRepository) History(ctx context.Context, userID string, from, to *time.Time, limit int) ([]models.UserLocation, error) {
	where := []string{"l.user_id = $1"}
	args := []any{userID}

	if from != nil {
		args = append(args, *from)
		where = append(where, fmt.Sprintf("l.recorded_at >= $%d", len(args)))
	}
	if to != nil {
		args = append(args, *to)
		where = append(where, fmt.Sprintf("l.recorded_at <= $%d", len(args)))
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT
			l.id, l.user_id, l.latitude, l.longitude, l.altitude, l.accuracy,
			l.speed, l.heading, l.recorded_at, l.created_at,
			u.username, u.full_name, u.profile_photo
		FROM user_locations l
		JOIN users u ON u.id = l.user_id
		WHERE %s
		ORDER BY l.recorded_at
		LIMIT $%d`, strings.Join(where, " AND "), len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.scanAll(rows)
}

// DeleteOlderThan drops samples recorded before the cutoff and reports how
// many were removed.
func (r *LocationRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM user_locations WHERE recorded_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *LocationRepository) scanAll(rows pgx.Rows) ([]models.UserLocation, error) {
	var locations []models.UserLocation
	for rows.Next() {
		var loc models.UserLocation
		if err := rows.Scan(
			&loc.ID,
			&loc.UserID,
			&loc.Latitude,
			&loc.Longitude,
			&loc.Altitude,
			&loc.Accuracy,
			&loc.Speed,
			&loc.Heading,
			&loc.RecordedAt,
			&loc.CreatedAt,
			&loc.Username,
			&loc.FullName,
			&loc.ProfilePhoto,
		); err != nil {
			return nil, err
		}
		locations = append(locations, loc)
	}
	return locations, rows.Err()
}
