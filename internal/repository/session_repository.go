package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fotoreg/api/internal/models"
)

// ErrSessionNotFound covers every lookup miss: revoked, expired and
// never-existed sessions are deliberately indistinguishable to callers.
var ErrSessionNotFound = errors.New("session not found")

type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

const sessionColumns = `id, user_id, session_token, refresh_token, device_info, ip_address, user_agent, is_active, expires_at, created_at, last_activity`

// CreateAtLogin inserts the session row and stamps the user's last_login in
// one transaction, so a crash cannot leave a logged-in-looking user without
// a session row.
func (r *SessionRepository) CreateAtLogin(ctx context.Context, session models.Session) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const insert = `
		INSERT INTO user_sessions (
			id, user_id, session_token, refresh_token, device_info, ip_address, user_agent, is_active, expires_at, created_at, last_activity
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, TRUE, $8, NOW(), NOW()
		)
	`
	if _, err := tx.Exec(ctx, insert,
		session.ID,
		session.UserID,
		session.SessionToken,
		session.RefreshToken,
		session.DeviceInfo,
		session.IPAddress,
		session.UserAgent,
		session.ExpiresAt,
	); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE users SET last_login = NOW(), updated_at = NOW() WHERE id = $1`,
		session.UserID,
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// FindActiveByAccessToken returns the session currently bound to the access
// token, only while it is active and unexpired.
func (r *SessionRepository) FindActiveByAccessToken(ctx context.Context, accessToken string) (models.Session, error) {
	const query = `
		SELECT ` + sessionColumns + `
		FROM user_sessions
		WHERE session_token = $1 AND is_active = TRUE AND expires_at > NOW()
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, accessToken))
}

// FindActiveByRefreshToken returns the session holding the refresh token,
// only while it is active and unexpired.
func (r *SessionRepository) FindActiveByRefreshToken(ctx context.Context, refreshToken string) (models.Session, error) {
	const query = `
		SELECT ` + sessionColumns + `
		FROM user_sessions
		WHERE refresh_token = $1 AND is_active = TRUE AND expires_at > NOW()
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, refreshToken))
}

// Invalidate deactivates the session matching (user, refresh token).
// Idempotent: deactivating an already-inactive or missing session succeeds.
func (r *SessionRepository) Invalidate(ctx context.Context, userID string, refreshToken string) error {
	const query = `
		UPDATE user_sessions
		SET is_active = FALSE, last_activity = NOW()
		WHERE user_id = $1 AND refresh_token = $2
	`
	_, err := r.pool.Exec(ctx, query, userID, refreshToken)
	return err
}

// InvalidateAllForUser revokes every session of a user, used when an account
// is deactivated or deleted.
func (r *SessionRepository) InvalidateAllForUser(ctx context.Context, userID string) error {
	const query = `
		UPDATE user_sessions
		SET is_active = FALSE, last_activity = NOW()
		WHERE user_id = $1 AND is_active = TRUE
	`
	_, err := r.pool.Exec(ctx, query, userID)
	return err
}

// UpdateAccessToken rotates the stored access token at refresh time. The
// refresh token stays; concurrent refreshes resolve last-write-wins.
func (r *SessionRepository) UpdateAccessToken(ctx context.Context, sessionID string, accessToken string) error {
	const query = `
		UPDATE user_sessions
		SET session_token = $2, last_activity = NOW()
		WHERE id = $1
	`
	_, err := r.pool.Exec(ctx, query, sessionID, accessToken)
	return err
}

// TouchActivity stamps last_activity. Callers treat a failure here as
// non-fatal to the request it piggybacks on.
func (r *SessionRepository) TouchActivity(ctx context.Context, sessionID string) error {
	const query = `UPDATE user_sessions SET last_activity = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, sessionID)
	return err
}

// DeleteExpired removes sessions whose expiry predates the cutoff. Rows are
// kept for a grace period after expiry so recent activity remains auditable.
func (r *SessionRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	const query = `DELETE FROM user_sessions WHERE expires_at < $1`
	cmd, err := r.pool.Exec(ctx, query, before)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

// ListByUser returns a user's sessions, most recently active first.
func (r *SessionRepository) ListByUser(ctx context.Context, userID string) ([]models.Session, error) {
	const query = `
		SELECT ` + sessionColumns + `
		FROM user_sessions
		WHERE user_id = $1
		ORDER BY last_activity DESC
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		session, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SessionRepository) scanOne(row rowScanner) (models.Session, error) {
	var session models.Session
	if err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.SessionToken,
		&session.RefreshToken,
		&session.DeviceInfo,
		&session.IPAddress,
		&session.UserAgent,
		&session.IsActive,
		&session.ExpiresAt,
		&session.CreatedAt,
		&session.LastActivity,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Session{}, ErrSessionNotFound
		}
		return models.Session{}, err
	}
	return session, nil
}
