package store

import (
	"context"
	"time"

	"github.com/miniiam/apiserver/types"
)

const auditColumns = `id, user_id, action, details, ip_address, timestamp`

// PostgresAuditRepository appends and reads audit log entries.
type PostgresAuditRepository struct {
	db querier
}

func NewAuditRepository(db querier) *PostgresAuditRepository {
	return &PostgresAuditRepository{db: db}
}

func (r *PostgresAuditRepository) Append(ctx context.Context, entry types.AuditLogEntry) (types.AuditLogEntry, error) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	const query = `
		INSERT INTO audit_logs (user_id, action, details, ip_address, timestamp)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		entry.UserID,
		entry.Action,
		entry.Details,
		entry.IPAddress,
		entry.Timestamp,
	).Scan(&entry.ID); err != nil {
		if isForeignKeyViolation(err) {
			return types.AuditLogEntry{}, ErrNotFound
		}
		return types.AuditLogEntry{}, err
	}
	return entry, nil
}

func (r *PostgresAuditRepository) List(ctx context.Context) ([]types.AuditLogEntry, error) {
	const query = `SELECT ` + auditColumns + ` FROM audit_logs ORDER BY id`
	return r.list(ctx, query)
}

func (r *PostgresAuditRepository) ListByUser(ctx context.Context, userID int) ([]types.AuditLogEntry, error) {
	const query = `SELECT ` + auditColumns + ` FROM audit_logs WHERE user_id = $1 ORDER BY id`
	return r.list(ctx, query, userID)
}

func (r *PostgresAuditRepository) list(ctx context.Context, query string, args ...any) ([]types.AuditLogEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]types.AuditLogEntry, 0)
	for rows.Next() {
		var entry types.AuditLogEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.UserID,
			&entry.Action,
			&entry.Details,
			&entry.IPAddress,
			&entry.Timestamp,
		); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
