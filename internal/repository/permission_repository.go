package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PermissionRepository struct {
	pool *pgxpool.Pool
}

func NewPermissionRepository(pool *pgxpool.Pool) *PermissionRepository {
	return &PermissionRepository{pool: pool}
}

// GrantedKeys returns the permission keys explicitly granted to the user.
func (r *PermissionRepository) GrantedKeys(ctx context.Context, userID string) ([]string, error) {
	const query = `
		SELECT permission_key FROM user_permissions
		WHERE user_id = $1 AND is_granted = TRUE
		ORDER BY permission_key
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Grant upserts an explicit grant for the user.
func (r *PermissionRepository) Grant(ctx context.Context, id, userID, key string) error {
	const query = `
		INSERT INTO user_permissions (id, user_id, permission_key, is_granted, created_at)
		VALUES ($1, $2, $3, TRUE, NOW())
		ON CONFLICT (user_id, permission_key) DO UPDATE SET is_granted = TRUE
	`
	_, err := r.pool.Exec(ctx, query, id, userID, key)
	return err
}

// Revoke flips an existing grant off; a missing grant is a no-op.
func (r *PermissionRepository) Revoke(ctx context.Context, userID, key string) error {
	const query = `
		UPDATE user_permissions SET is_granted = FALSE
		WHERE user_id = $1 AND permission_key = $2
	`
	_, err := r.pool.Exec(ctx, query, userID, key)
	return err
}
