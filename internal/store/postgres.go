package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// SQLSTATE codes Postgres reports for constraint violations.
const (
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
)

// querier is satisfied by both *sql.DB and *sql.Tx so a repository can run
// inside or outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

var (
	_ Store                   = (*PostgresStore)(nil)
	_ UserRepository          = (*PostgresUserRepository)(nil)
	_ AccessRequestRepository = (*PostgresAccessRequestRepository)(nil)
	_ AuditRepository         = (*PostgresAuditRepository)(nil)
)

// PostgresStore implements Store on top of a Postgres connection pool.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Users() UserRepository {
	return NewUserRepository(s.db)
}

func (s *PostgresStore) AccessRequests() AccessRequestRepository {
	return NewAccessRequestRepository(s.db)
}

func (s *PostgresStore) AuditLog() AuditRepository {
	return NewAuditRepository(s.db)
}

// WithTx runs fn inside a database transaction.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(repos Repositories) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(txRepositories{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback transaction: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type txRepositories struct {
	tx *sql.Tx
}

func (r txRepositories) Users() UserRepository {
	return NewUserRepository(r.tx)
}

func (r txRepositories) AccessRequests() AccessRequestRepository {
	return NewAccessRequestRepository(r.tx)
}

func (r txRepositories) AuditLog() AuditRepository {
	return NewAuditRepository(r.tx)
}

func isUniqueViolation(err error) bool {
	return hasCode(err, pgUniqueViolation)
}

// isForeignKeyViolation reports a reference to a user that does not exist.
func isForeignKeyViolation(err error) bool {
	return hasCode(err, pgForeignKeyViolation)
}

func hasCode(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == code
}
