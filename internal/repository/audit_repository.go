package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"fotoreg/api/internal/models"
)

type AuditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

func (r *AuditRepository) Insert(ctx context.Context, entry models.AuditLogEntry) error {
	const query = `
		INSERT INTO audit_logs (
			id, user_id, action, table_name, record_id, old_values, new_values,
			ip_address, user_agent, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
	`
	_, err := r.pool.Exec(ctx, query,
		entry.ID,
		entry.UserID,
		entry.Action,
		entry.TableName,
		entry.RecordID,
		entry.OldValues,
		entry.NewValues,
		entry.IPAddress,
		entry.UserAgent,
	)
	return err
}

const auditColumns = `
	a.id, a.user_id, a.action, a.table_name, a.record_id, a.old_values,
	a.new_values, a.ip_address, a.user_agent, a.created_at,
	COALESCE(u.username, ''), COALESCE(u.full_name, '')`

const auditJoin = ` FROM audit_logs a LEFT JOIN users u ON u.id = a.user_id`

// List returns entries matching the filter, newest first, plus the total
// count for pagination.
func (r *AuditRepository) List(ctx context.Context, filter models.AuditFilter, limit, offset int) ([]models.AuditLogEntry, int, error) {
	where := []string{"1=1"}
	args := []any{}

	if filter.UserID != "" {
		args = append(args, filter.UserID)
		where = append(where, fmt.Sprintf("a.user_id = $%d", len(args)))
	}
	if filter.Action != "" {
		args = append(args, filter.Action)
		where = append(where, fmt.Sprintf("a.action = $%d", len(args)))
	}
	if filter.TableName != "" {
		args = append(args, filter.TableName)
		where = append(where, fmt.Sprintf("a.table_name = $%d", len(args)))
	}
	if filter.DateFrom != nil {
		args = append(args, *filter.DateFrom)
		where = append(where, fmt.Sprintf("a.created_at >= $%d", len(args)))
	}
	if filter.DateTo != nil {
		args = append(args, *filter.DateTo)
		where = append(where, fmt.Sprintf("a.created_at <= $%d", len(args)))
	}

	whereClause := strings.Join(where, " AND ")

	var total int
	countQuery := `SELECT COUNT(*)` + auditJoin + ` WHERE ` + whereClause
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	listQuery := fmt.Sprintf(
		`SELECT`+auditColumns+auditJoin+` WHERE %s ORDER BY a.created_at DESC LIMIT $%d OFFSET $%d`,
		whereClause, len(args)-1, len(args),
	)

	rows, err := r.pool.Query(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []models.AuditLogEntry
	for rows.Next() {
		var e models.AuditLogEntry
		if err := rows.Scan(
			&e.ID, &e.UserID, &e.Action, &e.TableName, &e.RecordID,
			&e.OldValues, &e.NewValues, &e.IPAddress, &e.UserAgent, &e.CreatedAt,
			&e.Username, &e.FullName,
		); err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// Stats summarises the audit trail for the admin dashboard.
func (r *AuditRepository) Stats(ctx context.Context) (models.AuditStats, error) {
	var stats models.AuditStats
	const query = `
		SELECT
			COUNT(*),
			COUNT(DISTINCT user_id),
			COUNT(DISTINCT action),
			MIN(created_at),
			MAX(created_at)
		FROM audit_logs
	`
	if err := r.pool.QueryRow(ctx, query).Scan(
		&stats.TotalEntries,
		&stats.TotalUsers,
		&stats.TotalActions,
		&stats.FirstEntry,
		&stats.LastEntry,
	); err != nil {
		return models.AuditStats{}, err
	}

	const topQuery = `
		SELECT action, COUNT(*) AS total
		FROM audit_logs
		GROUP BY action
		ORDER BY total DESC
		LIMIT 10
	`
	rows, err := r.pool.Query(ctx, topQuery)
	if err != nil {
		return models.AuditStats{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var ac models.ActionCount
		if err := rows.Scan(&ac.Action, &ac.Count); err != nil {
			return models.AuditStats{}, err
		}
		stats.TopActions = append(stats.TopActions, ac)
	}
	return stats, rows.Err()
}

// DeleteOlderThan prunes entries created before the cutoff and reports how
// many were removed.
func (r *AuditRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM audit_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
