package types

import "time"

// Role is the authorization level of a user. The set of roles is closed.
type Role string

// Supported roles.
const (
	RoleAdmin    Role = "Admin"
	RoleManager  Role = "Manager"
	RoleEmployee Role = "Employee"
)

// Roles returns every valid role.
func Roles() []Role {
	return []Role{RoleAdmin, RoleManager, RoleEmployee}
}

// Valid reports whether r is one of the enumerated roles.
// The comparison is exact: "admin" is not a valid role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleEmployee:
		return true
	default:
		return false
	}
}

// Privileged reports whether the role carries approval or administration rights.
func (r Role) Privileged() bool {
	return r == RoleAdmin || r == RoleManager
}

// User represents an identity record.
// Users are never physically deleted; deprovisioning clears Active.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Username is the unique login name chosen at registration.
	Username string `json:"username" db:"username"`

	// PasswordHash stores the one-way hash of the user's secret.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// Role is one of Admin, Manager or Employee.
	Role Role `json:"role" db:"role"`

	// Department scopes a Manager's approval rights. It may be empty.
	Department *string `json:"department" db:"department"`

	// Active is false once the user has been deprovisioned.
	Active bool `json:"active" db:"is_active"`

	// LastLogin is the timestamp of the most recent successful authentication.
	LastLogin *time.Time `json:"last_login" db:"last_login"`
}

// DepartmentName returns the department or the empty string.
func (u User) DepartmentName() string {
	if u.Department == nil {
		return ""
	}
	return *u.Department
}
