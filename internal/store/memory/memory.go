// Package memory provides an in-process implementation of store.Store.
// It backs the "memory" store backend used for local development and tests.
package memory

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/miniiam/apiserver/internal/store"
	"github.com/miniiam/apiserver/types"
)

var _ store.Store = (*Store)(nil)

type data struct {
	users         map[int]types.User
	requests      map[int]types.AccessRequest
	audit         []types.AuditLogEntry
	nextUserID    int
	nextRequestID int
	nextAuditID   int
}

func (d *data) clone() *data {
	c := &data{
		users:         make(map[int]types.User, len(d.users)),
		requests:      make(map[int]types.AccessRequest, len(d.requests)),
		audit:         append([]types.AuditLogEntry(nil), d.audit...),
		nextUserID:    d.nextUserID,
		nextRequestID: d.nextRequestID,
		nextAuditID:   d.nextAuditID,
	}
	for id, user := range d.users {
		c.users[id] = user
	}
	for id, req := range d.requests {
		c.requests[id] = req
	}
	return c
}

// Store keeps every record in memory. Transactions are serialized and applied
// copy-on-write, so a failed unit of work leaves no trace.
type Store struct {
	mu   sync.RWMutex
	data *data
}

// New constructs an empty in-memory store.
func New() *Store {
	slog.Info("Initialized in-memory store")
	return &Store{
		data: &data{
			users:    make(map[int]types.User),
			requests: make(map[int]types.AccessRequest),
		},
	}
}

func (s *Store) Users() store.UserRepository {
	return &userRepo{scope{s: s}}
}

func (s *Store) AccessRequests() store.AccessRequestRepository {
	return &accessRequestRepo{scope{s: s}}
}

func (s *Store) AuditLog() store.AuditRepository {
	return &auditRepo{scope{s: s}}
}

// WithTx holds the store's write lock for the duration of fn and publishes
// fn's writes only when it returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(repos store.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.data.clone()
	if err := fn(txRepositories{scope{tx: work}}); err != nil {
		return err
	}
	s.data = work
	return nil
}

// SetDepartment reassigns a user's department outside any audited workflow.
// It exists for fixtures; the service exposes no department change.
func (s *Store) SetDepartment(ctx context.Context, id int, department *string) error {
	return scope{s: s}.write(func(d *data) error {
		user, ok := d.users[id]
		if !ok {
			return store.ErrNotFound
		}
		user.Department = department
		d.users[id] = user
		return nil
	})
}

type txRepositories struct {
	scope scope
}

func (r txRepositories) Users() store.UserRepository {
	return &userRepo{r.scope}
}

func (r txRepositories) AccessRequests() store.AccessRequestRepository {
	return &accessRequestRepo{r.scope}
}

func (r txRepositories) AuditLog() store.AuditRepository {
	return &auditRepo{r.scope}
}

// scope routes repository calls either to a transaction's working copy,
// which is already guarded by WithTx, or to the live data under the store lock.
type scope struct {
	s  *Store
	tx *data
}

func (sc scope) read(fn func(d *data) error) error {
	if sc.tx != nil {
		return fn(sc.tx)
	}
	sc.s.mu.RLock()
	defer sc.s.mu.RUnlock()
	return fn(sc.s.data)
}

func (sc scope) write(fn func(d *data) error) error {
	if sc.tx != nil {
		return fn(sc.tx)
	}
	sc.s.mu.Lock()
	defer sc.s.mu.Unlock()
	return fn(sc.s.data)
}

type userRepo struct {
	scope
}

func (r *userRepo) GetByID(ctx context.Context, id int) (types.User, error) {
	var user types.User
	err := r.read(func(d *data) error {
		found, ok := d.users[id]
		if !ok {
			return store.ErrNotFound
		}
		user = found
		return nil
	})
	return user, err
}

func (r *userRepo) GetByUsername(ctx context.Context, username string) (types.User, error) {
	var user types.User
	err := r.read(func(d *data) error {
		for _, candidate := range d.users {
			if candidate.Username == username {
				user = candidate
				return nil
			}
		}
		return store.ErrNotFound
	})
	return user, err
}

func (r *userRepo) List(ctx context.Context) ([]types.User, error) {
	users := make([]types.User, 0)
	err := r.read(func(d *data) error {
		for _, user := range d.users {
			users = append(users, user)
		}
		return nil
	})
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, err
}

func (r *userRepo) Create(ctx context.Context, user types.User) (types.User, error) {
	err := r.write(func(d *data) error {
		for _, existing := range d.users {
			if existing.Username == user.Username {
				return store.ErrDuplicate
			}
		}
		d.nextUserID++
		user.ID = d.nextUserID
		d.users[user.ID] = user
		return nil
	})
	if err != nil {
		return types.User{}, err
	}
	return user, nil
}

func (r *userRepo) Deactivate(ctx context.Context, id int) error {
	return r.write(func(d *data) error {
		user, ok := d.users[id]
		if !ok {
			return store.ErrNotFound
		}
		if !user.Active {
			return store.ErrConflict
		}
		user.Active = false
		d.users[id] = user
		return nil
	})
}

func (r *userRepo) RecordLogin(ctx context.Context, id int, at time.Time) error {
	return r.write(func(d *data) error {
		user, ok := d.users[id]
		if !ok {
			return store.ErrNotFound
		}
		user.LastLogin = &at
		d.users[id] = user
		return nil
	})
}

type accessRequestRepo struct {
	scope
}

func (r *accessRequestRepo) Get(ctx context.Context, id int) (types.AccessRequest, error) {
	var req types.AccessRequest
	err := r.read(func(d *data) error {
		found, ok := d.requests[id]
		if !ok {
			return store.ErrNotFound
		}
		req = found
		return nil
	})
	return req, err
}

func (r *accessRequestRepo) ListByUser(ctx context.Context, userID int) ([]types.AccessRequest, error) {
	requests := make([]types.AccessRequest, 0)
	err := r.read(func(d *data) error {
		for _, req := range d.requests {
			if req.UserID == userID {
				requests = append(requests, req)
			}
		}
		return nil
	})
	sort.Slice(requests, func(i, j int) bool { return requests[i].ID < requests[j].ID })
	return requests, err
}

func (r *accessRequestRepo) Create(ctx context.Context, req types.AccessRequest) (types.AccessRequest, error) {
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	if req.Status == "" {
		req.Status = types.StatusPending
	}
	err := r.write(func(d *data) error {
		if _, ok := d.users[req.UserID]; !ok {
			return store.ErrNotFound
		}
		d.nextRequestID++
		req.ID = d.nextRequestID
		d.requests[req.ID] = req
		return nil
	})
	if err != nil {
		return types.AccessRequest{}, err
	}
	return req, nil
}

func (r *accessRequestRepo) Resolve(ctx context.Context, id int, status types.RequestStatus, approvedBy string) (types.AccessRequest, error) {
	var resolved types.AccessRequest
	err := r.write(func(d *data) error {
		req, ok := d.requests[id]
		if !ok {
			return store.ErrNotFound
		}
		if req.Status != types.StatusPending {
			return store.ErrConflict
		}
		req.Status = status
		req.ApprovedBy = &approvedBy
		d.requests[id] = req
		resolved = req
		return nil
	})
	if err != nil {
		return types.AccessRequest{}, err
	}
	return resolved, nil
}

type auditRepo struct {
	scope
}

func (r *auditRepo) Append(ctx context.Context, entry types.AuditLogEntry) (types.AuditLogEntry, error) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	err := r.write(func(d *data) error {
		if _, ok := d.users[entry.UserID]; !ok {
			return store.ErrNotFound
		}
		d.nextAuditID++
		entry.ID = d.nextAuditID
		d.audit = append(d.audit, entry)
		return nil
	})
	if err != nil {
		return types.AuditLogEntry{}, err
	}
	return entry, nil
}

func (r *auditRepo) List(ctx context.Context) ([]types.AuditLogEntry, error) {
	var entries []types.AuditLogEntry
	err := r.read(func(d *data) error {
		entries = append(make([]types.AuditLogEntry, 0, len(d.audit)), d.audit...)
		return nil
	})
	return entries, err
}

func (r *auditRepo) ListByUser(ctx context.Context, userID int) ([]types.AuditLogEntry, error) {
	entries := make([]types.AuditLogEntry, 0)
	err := r.read(func(d *data) error {
		for _, entry := range d.audit {
			if entry.UserID == userID {
				entries = append(entries, entry)
			}
		}
		return nil
	})
	return entries, err
}
