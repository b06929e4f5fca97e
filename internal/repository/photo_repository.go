package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fotoreg/api/internal/models"
)

var (
	ErrPhotoNotFound   = errors.New("photo not found")
	ErrCommentNotFound = errors.New("comment not found")
)

type PhotoRepository struct {
	pool *pgxpool.Pool
}

func NewPhotoRepository(pool *pgxpool.Pool) *PhotoRepository {
	return &PhotoRepository{pool: pool}
}

const photoColumns = `
	p.id, p.user_id, p.bucket, p.object_key, p.file_name, p.file_size, p.mime_type,
	p.checksum, p.signature, p.latitude, p.longitude, p.orientation, p.altitude,
	p.accuracy, p.captured_at, p.created_at, p.updated_at,
	u.username, u.full_name`

const photoJoin = ` FROM photos p JOIN users u ON u.id = p.user_id`

func (r *PhotoRepository) Create(ctx context.Context, photo models.Photo) error {
	const query = `
		INSERT INTO photos (
			id, user_id, bucket, object_key, file_name, file_size, mime_type,
			checksum, signature, latitude, longitude, orientation, altitude,
			accuracy, captured_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12, $13,
			$14, $15, NOW(), NOW()
		)
	`
	_, err := r.pool.Exec(ctx, query,
		photo.ID,
		photo.UserID,
		photo.Bucket,
		photo.ObjectKey,
		photo.FileName,
		photo.FileSize,
		photo.MimeType,
		photo.Checksum,
		photo.Signature,
		photo.Latitude,
		photo.Longitude,
		photo.Orientation,
		photo.Altitude,
		photo.Accuracy,
		photo.CapturedAt,
	)
	return err
}

func (r *PhotoRepository) GetByID(ctx context.Context, id string) (models.Photo, error) {
	const query = `SELECT` + photoColumns + photoJoin + ` WHERE p.id = $1`
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

// OwnerID returns just the owning user id, for ownership checks that do not
// need the full row.
func (r *PhotoRepository) OwnerID(ctx context.Context, id string) (string, error) {
	const query = `SELECT user_id FROM photos WHERE id = $1`
	var ownerID string
	if err := r.pool.QueryRow(ctx, query, id).Scan(&ownerID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrPhotoNotFound
		}
		return "", err
	}
	return ownerID, nil
}

// List returns photos matching the filter, newest capture first, plus the
// total count for pagination. The radius filter is a haversine distance on
// the stored coordinates and only applies when all three of its fields are
// set.
func (r *PhotoRepository) List(ctx context.Context, filter models.PhotoFilter, limit, offset int) ([]models.Photo, int, error) {
	where := []string{"1=1"}
	args := []any{}

	if filter.UserID != "" {
		args = append(args, filter.UserID)
		where = append(where, fmt.Sprintf("p.user_id = $%d", len(args)))
	}
	if filter.DateFrom != nil {
		args = append(args, *filter.DateFrom)
		where = append(where, fmt.Sprintf("p.captured_at >= $%d", len(args)))
	}
	if filter.DateTo != nil {
		args = append(args, *filter.DateTo)
		where = append(where, fmt.Sprintf("p.captured_at <= $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := len(args)
		where = append(where, fmt.Sprintf(`(
			p.file_name ILIKE $%d OR u.username ILIKE $%d OR
			EXISTS (SELECT 1 FROM photo_comments pc WHERE pc.photo_id = p.id AND pc.comment ILIKE $%d)
		)`, n, n, n))
	}
	if filter.Latitude != nil && filter.Longitude != nil && filter.RadiusKm != nil {
		args = append(args, *filter.Latitude, *filter.Longitude, *filter.RadiusKm)
		latArg, lonArg, radArg := len(args)-2, len(args)-1, len(args)
		where = append(where, fmt.Sprintf(`
			2 * 6371 * asin(sqrt(
				pow(sin(radians(p.latitude - $%d) / 2), 2) +
				cos(radians($%d)) * cos(radians(p.latitude)) *
				pow(sin(radians(p.longitude - $%d) / 2), 2)
			)) <= $%d`, latArg, latArg, lonArg, radArg))
	}

	whereClause := strings.Join(where, " AND ")

	var total int
	countQuery := `SELECT COUNT(*)` + photoJoin + ` WHERE ` + whereClause
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	listQuery := fmt.Sprintf(
		`SELECT`+photoColumns+photoJoin+` WHERE %s ORDER BY p.captured_at DESC LIMIT $%d OFFSET $%d`,
		whereClause, len(args)-1, len(args),
	)

	rows, err := r.pool.Query(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	photos, err := r.scanAll(rows)
	if err != nil {
		return nil, 0, err
	}
	return photos, total, nil
}

func (r *PhotoRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Photo, int, error) {
	return r.List(ctx, models.PhotoFilter{UserID: userID}, limit, offset)
}

func (r *PhotoRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM photos WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrPhotoNotFound
	}
	return nil
}

// Stats aggregates capture counts for the admin dashboard.
func (r *PhotoRepository) Stats(ctx context.Context) (models.PhotoStats, error) {
	var stats models.PhotoStats
	const query = `
		SELECT
			COUNT(*),
			COUNT(DISTINCT user_id),
			COALESCE(SUM(file_size), 0),
			MIN(captured_at),
			MAX(captured_at)
		FROM photos
	`
	err := r.pool.QueryRow(ctx, query).Scan(
		&stats.TotalPhotos,
		&stats.TotalOperators,
		&stats.TotalBytes,
		&stats.FirstCapture,
		&stats.LastCapture,
	)
	return stats, err
}

func (r *PhotoRepository) CreateComment(ctx context.Context, comment models.PhotoComment) error {
	const query = `
		INSERT INTO photo_comments (id, photo_id, user_id, comment, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`
	_, err := r.pool.Exec(ctx, query, comment.ID, comment.PhotoID, comment.UserID, comment.Comment)
	return err
}

func (r *PhotoRepository) ListComments(ctx context.Context, photoID string) ([]models.PhotoComment, error) {
	const query = `
		SELECT c.id, c.photo_id, c.user_id, c.comment, c.created_at, u.username
		FROM photo_comments c
		JOIN users u ON u.id = c.user_id
		WHERE c.photo_id = $1
		ORDER BY c.created_at
	`
	rows, err := r.pool.Query(ctx, query, photoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []models.PhotoComment
	for rows.Next() {
		var c models.PhotoComment
		if err := rows.Scan(&c.ID, &c.PhotoID, &c.UserID, &c.Comment, &c.CreatedAt, &c.Username); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func (r *PhotoRepository) DeleteComment(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM photo_comments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrCommentNotFound
	}
	return nil
}

func (r *PhotoRepository) scanAll(rows pgx.Rows) ([]models.Photo, error) {
	var photos []models.Photo
	for rows.Next() {
		photo, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		photos = append(photos, photo)
	}
	return photos, rows.Err()
}

func (r *PhotoRepository) scanOne(row rowScanner) (models.Photo, error) {
	var photo models.Photo
	if err := row.Scan(
		&photo.ID,
		&photo.UserID,
		&photo.Bucket,
		&photo.ObjectKey,
		&photo.FileName,
		&photo.FileSize,
		&photo.MimeType,
		&photo.Checksum,
		&photo.Signature,
		&photo.Latitude,
		&photo.Longitude,
		&photo.Orientation,
		&photo.Altitude,
		&photo.Accuracy,
		&photo.CapturedAt,
		&photo.CreatedAt,
		&photo.UpdatedAt,
		&photo.Username,
		&photo.FullName,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Photo{}, ErrPhotoNotFound
		}
		return models.Photo{}, err
	}
	return photo, nil
}
