package store

import (
	"context"
	"time"

	"github.com/miniiam/apiserver/types"
)

// UserRepository persists identity records.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	List(ctx context.Context) ([]types.User, error)
	// Create returns ErrDuplicate when the username is taken.
	Create(ctx context.Context, user types.User) (types.User, error)
	// Deactivate flips an active user to inactive. It returns ErrNotFound for an
	// unknown id and ErrConflict when the user is already inactive.
	Deactivate(ctx context.Context, id int) error
	RecordLogin(ctx context.Context, id int, at time.Time) error
}

// AccessRequestRepository persists access requests.
type AccessRequestRepository interface {
	Get(ctx context.Context, id int) (types.AccessRequest, error)
	ListByUser(ctx context.Context, userID int) ([]types.AccessRequest, error)
	Create(ctx context.Context, req types.AccessRequest) (types.AccessRequest, error)
	// Resolve moves a Pending request to status in a single compare-and-set.
	// It returns ErrNotFound for an unknown id and ErrConflict when the request
	// is no longer Pending.
	Resolve(ctx context.Context, id int, status types.RequestStatus, approvedBy string) (types.AccessRequest, error)
}

// AuditRepository appends to and scans the audit trail. There is no update or delete.
type AuditRepository interface {
	Append(ctx context.Context, entry types.AuditLogEntry) (types.AuditLogEntry, error)
	List(ctx context.Context) ([]types.AuditLogEntry, error)
	ListByUser(ctx context.Context, userID int) ([]types.AuditLogEntry, error)
}

// Repositories groups the repositories that share one transactional scope.
type Repositories interface {
	Users() UserRepository
	AccessRequests() AccessRequestRepository
	AuditLog() AuditRepository
}

// Store exposes the repositories outside a transaction and runs units of work.
type Store interface {
	Repositories

	// WithTx runs fn in a single transaction. The transaction commits only when
	// fn returns nil; any error rolls back every write made through repos.
	WithTx(ctx context.Context, fn func(repos Repositories) error) error
}
