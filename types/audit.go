package types

import "time"

// AuditLogEntry is an immutable record of a privileged action.
// Entries are append-only; nothing updates or deletes them.
type AuditLogEntry struct {
	// ID is the unique identifier of the entry.
	ID int `json:"id" db:"id"`

	// UserID identifies the acting user.
	UserID int `json:"user_id" db:"user_id"`

	// Action is the action tag, e.g. "DEPROVISION".
	Action string `json:"action" db:"action"`

	// Details is a human-readable description of the action.
	Details *string `json:"details" db:"details"`

	// IPAddress is the network address the action originated from, when known.
	IPAddress *string `json:"ip_address" db:"ip_address"`

	// Timestamp is assigned by the ledger at write time.
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}
