package services

import (
	"errors"
	"fmt"

	"github.com/miniiam/apiserver/internal/audit"
	"github.com/miniiam/apiserver/internal/authz"
)

// Kind classifies an error for callers that need to react to it.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindAuthentication Kind = "authentication"
	KindAuthorization  Kind = "authorization"
	KindNotFound       Kind = "not_found"
	KindConflict       Kind = "conflict"
	KindAuditWrite     Kind = "audit_write"
	KindInternal       Kind = "internal"
)

// Error is a service error with a machine-readable kind.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	ErrInvalidInput       = &Error{Kind: KindValidation, Message: "invalid input"}
	ErrInvalidRole        = &Error{Kind: KindValidation, Message: "invalid role"}
	ErrInvalidDecision    = &Error{Kind: KindValidation, Message: "decision must be Approved or Rejected"}
	ErrDuplicateUsername  = &Error{Kind: KindValidation, Message: "username already exists"}
	ErrInvalidCredentials = &Error{Kind: KindAuthentication, Message: "invalid credentials"}
	ErrForbidden          = &Error{Kind: KindAuthorization, Message: "insufficient permissions"}
	ErrUserNotFound       = &Error{Kind: KindNotFound, Message: "user not found"}
	ErrRequestNotFound    = &Error{Kind: KindNotFound, Message: "access request not found"}
	ErrAlreadyInactive    = &Error{Kind: KindConflict, Message: "user is already inactive"}
	ErrAlreadyProcessed   = &Error{Kind: KindConflict, Message: "access request already processed"}
	ErrAuditWrite         = &Error{Kind: KindAuditWrite, Message: "audit write failed; changes rolled back"}
	ErrExportUnavailable  = &Error{Kind: KindInternal, Message: "report export is not configured"}
)

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Kind
	}
	return KindInternal
}

func invalid(base *Error, detail string) error {
	return fmt.Errorf("%w: %s", base, detail)
}

// forbidden converts an authorization decision into a service error that
// names the unmet requirement.
func forbidden(err error) error {
	var denial *authz.ForbiddenError
	if errors.As(err, &denial) {
		return fmt.Errorf("%w: %s", ErrForbidden, denial.Requirement)
	}
	return fmt.Errorf("%w: %v", ErrForbidden, err)
}

// ledgerError maps a failed audit append to ErrAuditWrite and passes every
// other error through unchanged.
func ledgerError(err error) error {
	if errors.Is(err, audit.ErrWriteFailed) {
		return fmt.Errorf("%w: %v", ErrAuditWrite, err)
	}
	return err
}
