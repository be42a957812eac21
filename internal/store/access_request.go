package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/miniiam/apiserver/types"
)

const accessRequestColumns = `id, user_id, resource, reason, status, approved_by, created_at`

// PostgresAccessRequestRepository handles persistence for access requests.
type PostgresAccessRequestRepository struct {
	db querier
}

func NewAccessRequestRepository(db querier) *PostgresAccessRequestRepository {
	return &PostgresAccessRequestRepository{db: db}
}

func (r *PostgresAccessRequestRepository) Get(ctx context.Context, id int) (types.AccessRequest, error) {
	const query = `SELECT ` + accessRequestColumns + ` FROM access_requests WHERE id = $1`
	return scanAccessRequest(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresAccessRequestRepository) ListByUser(ctx context.Context, userID int) ([]types.AccessRequest, error) {
	const query = `
		SELECT ` + accessRequestColumns + `
		FROM access_requests
		WHERE user_id = $1
		ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	requests := make([]types.AccessRequest, 0)
	for rows.Next() {
		req, err := scanAccessRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *PostgresAccessRequestRepository) Create(ctx context.Context, req types.AccessRequest) (types.AccessRequest, error) {
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	if req.Status == "" {
		req.Status = types.StatusPending
	}

	const query = `
		INSERT INTO access_requests (user_id, resource, reason, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		req.UserID,
		req.Resource,
		req.Reason,
		string(req.Status),
		req.CreatedAt,
	).Scan(&req.ID); err != nil {
		if isForeignKeyViolation(err) {
			return types.AccessRequest{}, ErrNotFound
		}
		return types.AccessRequest{}, err
	}
	return req, nil
}

// Resolve only matches a row that is still Pending, so of two concurrent
// resolutions the second blocks on the row lock and then updates nothing.
func (r *PostgresAccessRequestRepository) Resolve(ctx context.Context, id int, status types.RequestStatus, approvedBy string) (types.AccessRequest, error) {
	const query = `
		UPDATE access_requests
		SET status = $1,
			approved_by = $2
		WHERE id = $3 AND status = $4
		RETURNING ` + accessRequestColumns
	req, err := scanAccessRequest(r.db.QueryRowContext(
		ctx,
		query,
		string(status),
		approvedBy,
		id,
		string(types.StatusPending),
	))
	if err == nil {
		return req, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return types.AccessRequest{}, err
	}

	if _, err := r.Get(ctx, id); err != nil {
		return types.AccessRequest{}, err
	}
	return types.AccessRequest{}, ErrConflict
}

func scanAccessRequest(row rowScanner) (types.AccessRequest, error) {
	var req types.AccessRequest
	err := row.Scan(
		&req.ID,
		&req.UserID,
		&req.Resource,
		&req.Reason,
		&req.Status,
		&req.ApprovedBy,
		&req.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.AccessRequest{}, ErrNotFound
		}
		return types.AccessRequest{}, err
	}
	return req, nil
}
