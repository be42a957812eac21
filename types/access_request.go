package types

import "time"

// RequestStatus is the lifecycle state of an access request.
type RequestStatus string

// Supported request states. Pending is the only non-terminal state.
const (
	// StatusPending indicates the request awaits a decision.
	StatusPending RequestStatus = "Pending"

	// StatusApproved indicates an authorized approver granted the request.
	StatusApproved RequestStatus = "Approved"

	// StatusRejected indicates an authorized approver denied the request.
	StatusRejected RequestStatus = "Rejected"
)

// Terminal reports whether no further transition is possible from s.
func (s RequestStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// AccessRequest represents a user's request to access a named resource.
type AccessRequest struct {
	// ID is the unique identifier of the request.
	ID int `json:"id" db:"id"`

	// UserID identifies the requesting user.
	UserID int `json:"user_id" db:"user_id"`

	// Resource is the name of the resource access is requested for.
	Resource string `json:"resource" db:"resource"`

	// Reason is the free-text justification supplied by the requester.
	Reason string `json:"reason" db:"reason"`

	// Status is Pending until the request is resolved exactly once.
	Status RequestStatus `json:"status" db:"status"`

	// ApprovedBy is the username of the approver that resolved the request.
	// It is nil while the request is pending.
	ApprovedBy *string `json:"approved_by" db:"approved_by"`

	// CreatedAt is the timestamp when the request was submitted.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
