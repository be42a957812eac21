// Package services implements the identity, access-request and reporting use
// cases. Every privileged decision is made by the authz package against the
// caller's live user record.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/miniiam/apiserver/internal/auth"
	"github.com/miniiam/apiserver/internal/store"
)

// liveClaim re-reads the caller's record and returns claim with the current
// role and department. The active flag is not consulted.
func liveClaim(ctx context.Context, users store.UserRepository, claim auth.Claim) (auth.Claim, error) {
	user, err := users.GetByID(ctx, claim.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return auth.Claim{}, fmt.Errorf("%w: unknown identity", ErrForbidden)
		}
		return auth.Claim{}, fmt.Errorf("load caller %d: %w", claim.UserID, err)
	}
	if user.Username != claim.Subject {
		return auth.Claim{}, fmt.Errorf("%w: unknown identity", ErrForbidden)
	}
	return claim.Refresh(user), nil
}
