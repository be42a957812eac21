package types

import "time"

// AccessReview is the periodic review of every account and its privileges.
type AccessReview struct {
	Generated time.Time           `json:"generated"`
	Users     []AccessReviewEntry `json:"users"`
	Summary   AccessReviewSummary `json:"summary"`
}

// AccessReviewEntry summarises one account for review.
type AccessReviewEntry struct {
	Username   string     `json:"username"`
	Role       Role       `json:"role"`
	Department *string    `json:"department"`
	Active     bool       `json:"active"`
	LastLogin  *time.Time `json:"last_login"`
	Privileged bool       `json:"privileged"`
}

// AccessReviewSummary holds the aggregate counts of a review.
type AccessReviewSummary struct {
	Total      int `json:"total"`
	Active     int `json:"active"`
	Privileged int `json:"privileged"`
}

// AccessReviewExport is the evidence bundle written to object storage:
// the review together with the full audit trail at generation time.
type AccessReviewExport struct {
	Review   AccessReview    `json:"review"`
	AuditLog []AuditLogEntry `json:"audit_log"`
}
